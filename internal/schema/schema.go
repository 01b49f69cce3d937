// Package schema holds the extraction field schemas shipped with the binary.
// The YAML files describe every field the analyzers may emit; prompts are
// rendered from them so the model and the storage layer never drift apart.
package schema

import (
	_ "embed"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed avis.yaml
var avisYAML []byte

//go:embed deep.yaml
var deepYAML []byte

// Field describes one extractable field.
type Field struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
}

// Schema is an ordered set of extractable fields.
type Schema struct {
	Fields []Field `yaml:"fields"`
}

// Field returns the named field definition, if present.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// PromptLines renders the schema as prompt bullet lines, one per field.
func (s *Schema) PromptLines() string {
	var sb strings.Builder
	for _, f := range s.Fields {
		sb.WriteString("- ")
		sb.WriteString(f.Name)
		sb.WriteString(" (")
		sb.WriteString(f.Type)
		sb.WriteString("): ")
		sb.WriteString(f.Description)
		sb.WriteString("\n")
	}
	return sb.String()
}

var (
	loadOnce sync.Once
	avis     Schema
	deep     Schema
	loadErr  error
)

func load() {
	loadOnce.Do(func() {
		if err := yaml.Unmarshal(avisYAML, &avis); err != nil {
			loadErr = eris.Wrap(err, "schema: parse avis.yaml")
			return
		}
		if err := yaml.Unmarshal(deepYAML, &deep); err != nil {
			loadErr = eris.Wrap(err, "schema: parse deep.yaml")
		}
	})
}

// Avis returns the shallow-pass field schema.
func Avis() (*Schema, error) {
	load()
	if loadErr != nil {
		return nil, loadErr
	}
	return &avis, nil
}

// Deep returns the deep-pass field schema.
func Deep() (*Schema, error) {
	load()
	if loadErr != nil {
		return nil, loadErr
	}
	return &deep, nil
}
