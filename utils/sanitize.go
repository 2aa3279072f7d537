package utils

import (
	"html/template"

	"github.com/microcosm-cc/bluemonday"
)

var sanitizer = bluemonday.UGCPolicy()

// Sanitize cleans HTML content to prevent XSS attacks.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}

// SafeHTML sanitizes user content for direct output in templates.
func SafeHTML(input string) template.HTML {
	return template.HTML(sanitizer.Sanitize(input))
}
