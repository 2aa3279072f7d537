// Package templates embeds the HTML pages served by the controllers.
package templates

import (
	"embed"
	"html/template"
	"time"

	"github.com/cppla/microblog/utils"
)

//go:embed *.html
var files embed.FS

// Load parses every page together with the shared layout blocks.
func Load() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"ugc":  utils.SafeHTML,
		"date": formatDate,
	}).ParseFS(files, "*.html")
}

func formatDate(t time.Time) string {
	return t.Format("January 2, 2006")
}
