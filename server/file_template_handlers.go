package server

import (
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFiles embed.FS

// ParseTemplate parses one page from the embedded templates directory.
func ParseTemplate(name string) (*template.Template, error) {
	tmpl, err := template.ParseFS(templateFiles, "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("[ParseTemplate] %s: %w", name, err)
	}
	return tmpl, nil
}
