// Package web holds the HTML pages served by the chat server.
package web

import (
	"bytes"
	"embed"
	"html/template"

	"github.com/yuin/goldmark"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses every page template. Pages may call the "markdown"
// function to render stored message text.
func Templates() (*template.Template, error) {
	return template.New("pages").
		Funcs(template.FuncMap{"markdown": RenderMarkdown}).
		ParseFS(templateFS, "templates/*.html")
}

// RenderMarkdown converts message text to HTML. Raw HTML in the source is
// omitted, not passed through.
func RenderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}
