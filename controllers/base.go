package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/microblog/middleware"
	"github.com/cppla/microblog/services"
	"github.com/cppla/microblog/session"
	"github.com/cppla/microblog/utils"
)

// pages holds what every HTML handler needs to render and flash.
type pages struct {
	sessions *session.Manager
}

// render executes the named template with the layout data every page expects.
func (p pages) render(ctx *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	reqCtx := ctx.Request.Context()
	data["CurrentUser"] = middleware.CurrentUser(ctx)
	data["Flashes"] = p.sessions.PopFlashes(reqCtx)
	data["CSRFToken"] = p.sessions.CSRFToken(reqCtx)
	ctx.HTML(status, name, data)
}

func (p pages) flash(ctx *gin.Context, category, message string) {
	p.sessions.AddFlash(ctx.Request.Context(), category, message)
}

// redirect flashes a message and sends the browser to location with 302.
func (p pages) redirect(ctx *gin.Context, location, category, message string) {
	if message != "" {
		p.flash(ctx, category, message)
	}
	ctx.Redirect(http.StatusFound, location)
}

func (p pages) notFound(ctx *gin.Context) {
	p.render(ctx, http.StatusNotFound, "error.html", gin.H{
		"Title":   "Not Found",
		"Status":  http.StatusNotFound,
		"Message": "The page you are looking for does not exist.",
	})
}

func (p pages) forbidden(ctx *gin.Context) {
	p.render(ctx, http.StatusForbidden, "error.html", gin.H{
		"Title":   "Forbidden",
		"Status":  http.StatusForbidden,
		"Message": "You are not allowed to do that.",
	})
}

func (p pages) serverError(ctx *gin.Context, err error) {
	utils.Logger.Error("request failed",
		zap.Error(err),
		zap.String("path", ctx.Request.URL.Path),
		zap.String("request_id", ctx.GetString(middleware.ContextRequestIDKey)),
	)
	p.render(ctx, http.StatusInternalServerError, "error.html", gin.H{
		"Title":   "Server Error",
		"Status":  http.StatusInternalServerError,
		"Message": "Something went wrong on our side. Please try again later.",
	})
}

// fail maps a service error onto the response for it.
func (p pages) fail(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		p.notFound(ctx)
	case errors.Is(err, services.ErrForbidden):
		p.forbidden(ctx)
	case errors.Is(err, services.ErrUnauthenticated):
		p.redirect(ctx, "/login", session.CategoryInfo, "Please log in to access this page.")
	default:
		p.serverError(ctx, err)
	}
}

// parseID reads the numeric :id path parameter. Anything else is a 404.
func parseID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
