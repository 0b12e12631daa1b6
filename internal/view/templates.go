// Package view renders the embedded HTML templates.
package view

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quoteflow/quoteflow/internal/shared"
	"github.com/quoteflow/quoteflow/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	IsAdmin     bool
	Data        any
}

// NewEngine parses the embedded templates once at startup.
func NewEngine(currencyPrefix string) (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(v any) string {
			return formatTime(v, "02 Jan 2006")
		},
		"formatDateTime": func(v any) string {
			return formatTime(v, "02 Jan 2006 15:04")
		},
		"money": func(d decimal.Decimal) string {
			return currencyPrefix + d.StringFixed(2)
		},
		"amount": func(d decimal.Decimal) string {
			return d.StringFixed(2)
		},
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// formatTime renders both time.Time and *time.Time values; nil and zero
// times render empty.
func formatTime(v any, layout string) string {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format(layout)
	case *time.Time:
		if t == nil || t.IsZero() {
			return ""
		}
		return t.Format(layout)
	}
	return ""
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}
