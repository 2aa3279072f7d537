package controllers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/microblog/middleware"
	"github.com/cppla/microblog/services"
	"github.com/cppla/microblog/session"
	"github.com/cppla/microblog/utils"
)

// AuthController handles registration, login and logout.
type AuthController struct {
	pages
	auth         *services.AuthService
	tokens       *utils.TokenIssuer
	blacklist    *utils.TokenBlacklist
	cookieSecure bool
}

// NewAuthController creates a new AuthController instance.
func NewAuthController(auth *services.AuthService, sessions *session.Manager, tokens *utils.TokenIssuer, blacklist *utils.TokenBlacklist, cookieSecure bool) *AuthController {
	return &AuthController{
		pages:        pages{sessions: sessions},
		auth:         auth,
		tokens:       tokens,
		blacklist:    blacklist,
		cookieSecure: cookieSecure,
	}
}

// RegisterPage shows the empty registration form.
func (a *AuthController) RegisterPage(ctx *gin.Context) {
	a.render(ctx, http.StatusOK, "register.html", gin.H{"Title": "Register", "Form": registrationForm{}})
}

// Register creates an account and sends the user to the login page.
func (a *AuthController) Register(ctx *gin.Context) {
	var form registrationForm
	if err := ctx.ShouldBind(&form); err != nil {
		form.Password, form.ConfirmPassword = "", ""
		a.render(ctx, http.StatusOK, "register.html", gin.H{"Title": "Register", "Form": form, "Errors": fieldErrors(err)})
		return
	}

	_, err := a.auth.Register(ctx.Request.Context(), form.Username, form.Email, form.Password)
	if err != nil {
		var dup *services.DuplicateIdentityError
		switch {
		case errors.As(err, &dup) && dup.Field == services.FieldEmail:
			a.flash(ctx, session.CategoryDanger, "Email is already registered. Please use a different email.")
		case errors.As(err, &dup):
			a.flash(ctx, session.CategoryDanger, "Username is already taken. Please choose a different username.")
		case errors.Is(err, services.ErrValidationFailed):
			a.flash(ctx, session.CategoryDanger, "Please fill in every field with a valid value.")
		default:
			a.serverError(ctx, err)
			return
		}
		form.Password, form.ConfirmPassword = "", ""
		a.render(ctx, http.StatusOK, "register.html", gin.H{"Title": "Register", "Form": form})
		return
	}

	a.redirect(ctx, "/login", session.CategorySuccess, "Your account has been created! You can now log in.")
}

// LoginPage shows the login form.
func (a *AuthController) LoginPage(ctx *gin.Context) {
	form := loginForm{Next: ctx.Query("next")}
	a.render(ctx, http.StatusOK, "login.html", gin.H{"Title": "Login", "Form": form})
}

// Login verifies credentials, issues the identity cookie and rotates the session.
func (a *AuthController) Login(ctx *gin.Context) {
	var form loginForm
	if err := ctx.ShouldBind(&form); err != nil {
		form.Password = ""
		a.render(ctx, http.StatusOK, "login.html", gin.H{"Title": "Login", "Form": form, "Errors": fieldErrors(err)})
		return
	}
	if form.Next == "" {
		form.Next = ctx.Query("next")
	}

	reqCtx := ctx.Request.Context()
	user, err := a.auth.Login(reqCtx, form.Email, form.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		a.flash(ctx, session.CategoryDanger, "Login unsuccessful. Please check your email and password.")
		form.Password = ""
		a.render(ctx, http.StatusOK, "login.html", gin.H{"Title": "Login", "Form": form})
		return
	}
	if err != nil {
		a.serverError(ctx, err)
		return
	}

	token, _, err := a.tokens.Generate(user.ID)
	if err != nil {
		a.serverError(ctx, err)
		return
	}
	if err := a.sessions.RenewToken(reqCtx); err != nil {
		a.serverError(ctx, err)
		return
	}
	middleware.SetToken(ctx, token, int(a.tokens.TTL().Seconds()), form.Remember, a.cookieSecure)
	utils.Sugar.Infow("user logged in", "user_id", user.ID)

	a.redirect(ctx, safeNext(form.Next), session.CategorySuccess, "Login successful!")
}

// Logout revokes the identity token until it would have expired anyway.
func (a *AuthController) Logout(ctx *gin.Context) {
	reqCtx := ctx.Request.Context()
	if claims := middleware.CurrentClaims(ctx); claims != nil && claims.ExpiresAt != nil {
		a.blacklist.Revoke(reqCtx, claims.ID, claims.ExpiresAt.Time)
	}
	middleware.ClearToken(ctx, a.cookieSecure)
	if err := a.sessions.RenewToken(reqCtx); err != nil {
		a.serverError(ctx, err)
		return
	}
	a.redirect(ctx, "/", session.CategoryInfo, "You have been logged out.")
}

// safeNext only accepts paths on this site; anything else goes home.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return next
}
