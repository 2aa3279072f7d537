package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/microblog/session"
)

const (
	// CSRFField is the hidden form field carrying the token.
	CSRFField = "csrf_token"
	// CSRFHeader is accepted as an alternative to the form field.
	CSRFHeader = "X-CSRF-Token"
)

// CSRF rejects state-changing requests whose token does not match the session's.
// When disabled it lets everything through; forms still render a token.
func CSRF(sessions *session.Manager, enabled bool) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !enabled || isSafeMethod(ctx.Request.Method) {
			ctx.Next()
			return
		}

		sent := ctx.GetHeader(CSRFHeader)
		if sent == "" {
			sent = ctx.PostForm(CSRFField)
		}
		want := sessions.CSRFToken(ctx.Request.Context())
		if sent == "" || subtle.ConstantTimeCompare([]byte(sent), []byte(want)) != 1 {
			AbortWithPage(ctx, http.StatusBadRequest, "Bad Request",
				"The form has expired or was not submitted from this site. Please go back and try again.")
			return
		}
		ctx.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
