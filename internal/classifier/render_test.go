package classifier

import (
	"strings"
	"testing"
)

func TestRendererDefaults(t *testing.T) {
	r, err := NewRenderer(nil)
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}

	tests := []struct {
		intent   string
		expected string
	}{
		{"CLASS_TO_LANES", "Super Pro to the lanes"},
		{"CLASS_STANDBY", "Super Pro standby"},
		{"CLASS_UNKNOWN", "Super Pro standby"},
	}

	for _, tt := range tests {
		got, err := r.Render(TemplateData{Category: "Super Pro", Intent: tt.intent})
		if err != nil {
			t.Errorf("Render(%s) failed: %v", tt.intent, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("Render(%s): expected %q, got %q", tt.intent, tt.expected, got)
		}
	}
}

func TestRendererCustomTemplates(t *testing.T) {
	r, err := NewRenderer(map[string]string{
		"CLASS_TO_LANES": "  Attention: {{.Category}} (#{{.CategoryID}}) report to the lanes{{if .EventID}} for {{.EventID}}{{end}} ",
	})
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}

	got, err := r.Render(TemplateData{Category: "Street", CategoryID: 6, Intent: "CLASS_TO_LANES", EventID: "spring-nats"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if want := "Attention: Street (#6) report to the lanes for spring-nats"; got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	// Intents without a template use the fallback
	got, err = r.Render(TemplateData{Category: "Street", Intent: "CLASS_STANDBY"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got != "Street standby" {
		t.Errorf("Expected fallback text, got %q", got)
	}
}

func TestNewRendererErrors(t *testing.T) {
	tests := []struct {
		name      string
		templates map[string]string
		errorMsg  string
	}{
		{
			name:      "parse error",
			templates: map[string]string{"CLASS_STANDBY": "{{.Category"},
			errorMsg:  `failed to parse template for "CLASS_STANDBY"`,
		},
		{
			name:      "unknown field",
			templates: map[string]string{"CLASS_TO_LANES": "{{.Lane}} now"},
			errorMsg:  `failed to execute template for "CLASS_TO_LANES"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRenderer(tt.templates)
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.errorMsg)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
			}
		})
	}
}
