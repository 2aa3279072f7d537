package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/microblog/middleware"
	"github.com/cppla/microblog/services"
	"github.com/cppla/microblog/session"
	"github.com/cppla/microblog/utils"
)

// UserController serves the admin-only user list and the health probe.
type UserController struct {
	pages
	users *services.UserService
}

// NewUserController creates a new UserController instance.
func NewUserController(users *services.UserService, sessions *session.Manager) *UserController {
	return &UserController{pages: pages{sessions: sessions}, users: users}
}

// ListUsers renders every account for admins.
func (u *UserController) ListUsers(ctx *gin.Context) {
	users, err := u.users.ListUsers(ctx.Request.Context(), middleware.CurrentUser(ctx))
	if errors.Is(err, services.ErrForbidden) {
		u.redirect(ctx, "/", session.CategoryDanger, "You do not have permission to access this page.")
		return
	}
	if err != nil {
		u.serverError(ctx, err)
		return
	}
	u.render(ctx, http.StatusOK, "user.html", gin.H{"Title": "Users", "Users": users})
}

// Health reports liveness as JSON.
func (u *UserController) Health(ctx *gin.Context) {
	utils.Success(ctx, gin.H{"status": "ok"})
}

// NotFound renders the 404 page for unmatched routes.
func (u *UserController) NotFound(ctx *gin.Context) {
	u.notFound(ctx)
}
