package controllers

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/cppla/microblog/services"
)

func init() {
	// usernames end up in /user/:username, so only path-safe characters are allowed
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return services.ValidUsername(fl.Field().String())
		})
	}
}

type registrationForm struct {
	Username        string `form:"username" binding:"required,min=2,max=20,username"`
	Email           string `form:"email" binding:"required,email,max=120"`
	Password        string `form:"password" binding:"required,min=6"`
	ConfirmPassword string `form:"confirm_password" binding:"required,eqfield=Password"`
}

type loginForm struct {
	Email    string `form:"email" binding:"required,email,max=120"`
	Password string `form:"password" binding:"required"`
	Remember bool   `form:"remember"`
	Next     string `form:"next"`
}

type postForm struct {
	Title   string `form:"title" binding:"required,max=100"`
	Content string `form:"content" binding:"required"`
}

type commentForm struct {
	Content string `form:"content" binding:"required"`
}

// fieldErrors turns binding errors into one message per form field, keyed by struct field name.
func fieldErrors(err error) map[string]string {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["Form"] = "Invalid form submission."
		return out
	}
	for _, fe := range verrs {
		if _, seen := out[fe.Field()]; seen {
			continue
		}
		out[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Invalid email address."
	case "min":
		return fmt.Sprintf("Field must be at least %s characters long.", fe.Param())
	case "max":
		return fmt.Sprintf("Field cannot be longer than %s characters.", fe.Param())
	case "username":
		return "Username may only contain letters, digits, underscores and hyphens."
	case "eqfield":
		return "Passwords must match."
	default:
		return "Invalid value."
	}
}
