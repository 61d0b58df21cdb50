package receipt

import (
	_ "embed"
	"html/template"
)

//go:embed static/index.html
var indexHTML string

//go:embed static/app.css
var appCSS []byte

//go:embed static/app.js
var appJS []byte

// parseIndexTemplate parses the embedded dashboard template
func parseIndexTemplate() *template.Template {
	return template.Must(template.New("index").Parse(indexHTML))
}
