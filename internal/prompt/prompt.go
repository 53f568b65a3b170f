// Package prompt loads the assistant persona used to frame every completion.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Persona is the YAML persona file.
type Persona struct {
	System        string `yaml:"system"`
	ReplyGuidance string `yaml:"reply_guidance"`
	Welcome       string `yaml:"welcome"`

	guidance *template.Template
}

// Default returns the embedded persona.
func Default() *Persona {
	p, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("prompt: embedded persona: %v", err))
	}
	return p
}

// Load reads a persona file. An empty path yields Default().
func Load(path string) (*Persona, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompt: read %s: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes persona YAML and compiles the guidance template.
func Parse(b []byte) (*Persona, error) {
	var p Persona
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("prompt: decode: %w", err)
	}
	p.System = strings.TrimSpace(p.System)
	p.Welcome = strings.TrimSpace(p.Welcome)
	t, err := template.New("guidance").Option("missingkey=error").Parse(strings.TrimSpace(p.ReplyGuidance))
	if err != nil {
		return nil, fmt.Errorf("prompt: reply_guidance: %w", err)
	}
	p.guidance = t
	return &p, nil
}

// SystemMessage joins the system text with the rendered reply guidance.
// maxReplyChars <= 0 omits the guidance.
func (p *Persona) SystemMessage(maxReplyChars int) (string, error) {
	if maxReplyChars <= 0 || p.guidance == nil {
		return p.System, nil
	}
	var b strings.Builder
	if err := p.guidance.Execute(&b, struct{ MaxReplyChars int }{maxReplyChars}); err != nil {
		return "", fmt.Errorf("prompt: render guidance: %w", err)
	}
	g := strings.TrimSpace(b.String())
	switch {
	case g == "":
		return p.System, nil
	case p.System == "":
		return g, nil
	}
	return p.System + "\n\n" + g, nil
}
