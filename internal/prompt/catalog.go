package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultCatalog []byte

// Template names in the catalog.
const (
	TemplateAnalysis   = "analysis"
	TemplateStrategy   = "strategy"
	TemplateBlueprint  = "blueprint"
	TemplateVoice      = "voice"
	TemplateChunk      = "chunk"
	TemplateChunkRules = "chunk_rules"
	TemplateSEO        = "seo"
	TemplateHumanize   = "humanize"
	TemplateMeta       = "meta"
	TemplateImage      = "image"
)

var requiredTemplates = []string{
	TemplateAnalysis, TemplateStrategy, TemplateBlueprint, TemplateVoice,
	TemplateChunk, TemplateChunkRules, TemplateSEO, TemplateHumanize,
	TemplateMeta, TemplateImage,
}

// Template is a named system and body pair.
type Template struct {
	System string `yaml:"system"`
	Body   string `yaml:"body"`
}

// Rendered is a template after substitution.
type Rendered struct {
	System string
	Prompt string
}

// Catalog holds the prompt templates.
type Catalog struct {
	templates map[string]Template
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog parses YAML and checks that every required template exists.
func ParseCatalog(data []byte) (*Catalog, error) {
	templates := make(map[string]Template)
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("parse prompt catalog: %w", err)
	}
	var missing []string
	for _, name := range requiredTemplates {
		if strings.TrimSpace(templates[name].Body) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("prompt catalog missing templates: %s", strings.Join(missing, ", "))
	}
	return &Catalog{templates: templates}, nil
}

// Render renders the named template with values.
func (c *Catalog) Render(name string, values Values) (Rendered, error) {
	tpl, ok := c.templates[name]
	if !ok {
		return Rendered{}, fmt.Errorf("unknown prompt template %q", name)
	}
	return Rendered{
		System: strings.TrimSpace(Render(tpl.System, values)),
		Prompt: tidy(Render(tpl.Body, values)),
	}, nil
}

// tidy trims trailing spaces and collapses runs of blank lines left behind by
// omitted blocks.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
