// Package greeting renders the HTML greeting page.
//
// In unsafe mode the name and IP are pasted into the template source before it is
// parsed, so any template syntax they carry is evaluated with the service Config as
// data and the sprig function map available. Safe mode treats both as escaped data.
package greeting

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/0xReLogic/TryHackMe/internal/config"
)

const safeLayout = `<h1>Hello, {{.Name}}!</h1><h2>Public IP: <code>{{.PublicIP}}</code></h2>`

// Page is the data bound to the safe template.
type Page struct {
	Name     string
	PublicIP string
}

// Compose interpolates name and ip into the greeting markup without escaping.
func Compose(name, ip string) string {
	return fmt.Sprintf("<h1>Hello, %s!</h1><h2>Public IP: <code>%s</code></h2>", name, ip)
}

// Renderer turns a resolved name and IP into the response body.
type Renderer struct {
	mode config.TemplateMode
	cfg  config.Config
	safe *htmltemplate.Template
}

// NewRenderer builds a renderer for cfg.TemplateMode.
func NewRenderer(cfg config.Config) *Renderer {
	return &Renderer{
		mode: cfg.TemplateMode,
		cfg:  cfg,
		safe: htmltemplate.Must(htmltemplate.New("greeting").Parse(safeLayout)),
	}
}

// Mode reports the active template mode.
func (r *Renderer) Mode() config.TemplateMode {
	return r.mode
}

// Render produces the greeting. Errors are only possible in unsafe mode, when the
// interpolated values contain malformed or failing template actions.
func (r *Renderer) Render(name, ip string) (string, error) {
	var buf bytes.Buffer
	if r.mode == config.ModeSafe {
		if err := r.safe.Execute(&buf, Page{Name: name, PublicIP: ip}); err != nil {
			return "", fmt.Errorf("execute greeting: %w", err)
		}
		return buf.String(), nil
	}

	tmpl, err := template.New("greeting").Funcs(sprig.TxtFuncMap()).Parse(Compose(name, ip))
	if err != nil {
		return "", fmt.Errorf("parse greeting: %w", err)
	}
	if err := tmpl.Execute(&buf, r.cfg); err != nil {
		return "", fmt.Errorf("execute greeting: %w", err)
	}
	return buf.String(), nil
}
