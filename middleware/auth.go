package middleware

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/microblog/models"
	"github.com/cppla/microblog/services"
	"github.com/cppla/microblog/session"
	"github.com/cppla/microblog/utils"
)

const (
	// TokenCookie carries the signed identity token.
	TokenCookie = "blog_token"
	// ContextUserKey stores the authenticated *models.User inside Gin context.
	ContextUserKey = "current_user"
	// ContextClaimsKey stores the parsed token claims, used to revoke on logout.
	ContextClaimsKey = "token_claims"
)

// LoadIdentity resolves the token cookie to a user. Anonymous requests pass through untouched;
// a bad, revoked or orphaned token is treated as anonymous and its cookie is cleared.
// Storage failures while loading the user abort with 500.
func LoadIdentity(tokens *utils.TokenIssuer, blacklist *utils.TokenBlacklist, auth *services.AuthService, secure bool) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		raw, err := ctx.Cookie(TokenCookie)
		if err != nil || raw == "" {
			ctx.Next()
			return
		}

		claims, err := tokens.Parse(raw)
		if err != nil || blacklist.IsRevoked(ctx.Request.Context(), claims.ID) {
			ClearToken(ctx, secure)
			ctx.Next()
			return
		}

		user, err := auth.CurrentUser(ctx.Request.Context(), claims.UserID)
		if errors.Is(err, services.ErrUnauthenticated) {
			ClearToken(ctx, secure)
			ctx.Next()
			return
		}
		if err != nil {
			// storage failure; the cookie stays
			utils.Logger.Error("load current user",
				zap.Error(err),
				zap.Uint("user_id", claims.UserID),
				zap.String("request_id", ctx.GetString(ContextRequestIDKey)),
			)
			AbortWithPage(ctx, http.StatusInternalServerError, "Server Error",
				"Something went wrong on our side. Please try again later.")
			return
		}

		ctx.Set(ContextUserKey, user)
		ctx.Set(ContextClaimsKey, claims)
		ctx.Next()
	}
}

// CurrentUser returns the signed-in user, or nil for anonymous requests.
func CurrentUser(ctx *gin.Context) *models.User {
	if v, ok := ctx.Get(ContextUserKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}

// CurrentClaims returns the claims of the token that authenticated the request.
func CurrentClaims(ctx *gin.Context) *utils.Claims {
	if v, ok := ctx.Get(ContextClaimsKey); ok {
		if claims, ok := v.(*utils.Claims); ok {
			return claims
		}
	}
	return nil
}

// SetToken writes the identity cookie. persistent keeps it across browser restarts.
func SetToken(ctx *gin.Context, token string, maxAge int, persistent, secure bool) {
	if !persistent {
		maxAge = 0
	}
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(TokenCookie, token, maxAge, "/", "", secure, true)
}

// ClearToken expires the identity cookie.
func ClearToken(ctx *gin.Context, secure bool) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(TokenCookie, "", -1, "/", "", secure, true)
}

// RequireAuth redirects anonymous visitors to the login page, remembering where they were going.
func RequireAuth(sessions *session.Manager) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if CurrentUser(ctx) != nil {
			ctx.Next()
			return
		}
		sessions.AddFlash(ctx.Request.Context(), session.CategoryInfo, "Please log in to access this page.")
		target := "/login?next=" + url.QueryEscape(ctx.Request.URL.RequestURI())
		ctx.Redirect(http.StatusFound, target)
		ctx.Abort()
	}
}

// RequireAdmin turns away users without the admin flag. It must run after RequireAuth.
func RequireAdmin(sessions *session.Manager) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if user := CurrentUser(ctx); user != nil && user.IsAdmin {
			ctx.Next()
			return
		}
		sessions.AddFlash(ctx.Request.Context(), session.CategoryDanger, "You do not have permission to access this page.")
		ctx.Redirect(http.StatusFound, "/")
		ctx.Abort()
	}
}
