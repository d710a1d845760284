package classifier

import (
	"fmt"
	"strings"
	"text/template"
)

// FallbackTemplate renders intents that have no template of their own
const FallbackTemplate = "{{.Category}} standby"

// DefaultTemplates are the announcement phrasings used when none are configured
var DefaultTemplates = map[string]string{
	"CLASS_TO_LANES": "{{.Category}} to the lanes",
	"CLASS_STANDBY":  "{{.Category}} standby",
}

// TemplateData is what a message template can reference
type TemplateData struct {
	Category   string
	CategoryID int
	Intent     string
	Transcript string
	EventID    string
}

// Renderer selects and executes the per-intent message template
type Renderer struct {
	templates map[string]*template.Template
	fallback  *template.Template
}

// NewRenderer parses the template table. Every template is test-executed so
// a broken one fails at startup rather than on the first announcement.
func NewRenderer(templates map[string]string) (*Renderer, error) {
	if len(templates) == 0 {
		templates = DefaultTemplates
	}

	fallback, err := parseTemplate("fallback", FallbackTemplate)
	if err != nil {
		return nil, err
	}

	r := &Renderer{
		templates: make(map[string]*template.Template, len(templates)),
		fallback:  fallback,
	}
	for intent, text := range templates {
		tmpl, err := parseTemplate(intent, text)
		if err != nil {
			return nil, err
		}
		r.templates[intent] = tmpl
	}
	return r, nil
}

func parseTemplate(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template for %q: %w", name, err)
	}
	if err := tmpl.Execute(&strings.Builder{}, TemplateData{Category: "x", Intent: name}); err != nil {
		return nil, fmt.Errorf("failed to execute template for %q: %w", name, err)
	}
	return tmpl, nil
}

// Render produces the message text for an intent
func (r *Renderer) Render(data TemplateData) (string, error) {
	tmpl, ok := r.templates[data.Intent]
	if !ok {
		tmpl = r.fallback
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render %q: %w", data.Intent, err)
	}
	return strings.TrimSpace(b.String()), nil
}
