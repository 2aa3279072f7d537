package middleware

import "github.com/gin-gonic/gin"

// AbortWithPage renders the shared error page and stops the handler chain.
func AbortWithPage(ctx *gin.Context, status int, title, message string) {
	ctx.HTML(status, "error.html", gin.H{
		"Title":       title,
		"Status":      status,
		"Message":     message,
		"CurrentUser": CurrentUser(ctx),
	})
	ctx.Abort()
}
