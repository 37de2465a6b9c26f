// Package schema holds the per-type payload schemas and the validator that
// turns raw employer input into a normalized, typed payload.
package schema

import (
	"bytes"
	"embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"esocial/internal/events/models"
	dErrors "esocial/pkg/domain-errors"
)

const schemaBaseURL = "https://esocial.local/schemas/"

//go:embed schemas/*.json
var schemaFS embed.FS

// Registry maps each event type to its compiled schema. It is immutable after
// NewRegistry returns and safe for concurrent use.
type Registry struct {
	schemas map[models.EventType]*jsonschema.Schema
}

// NewRegistry compiles the embedded schema of every event type. A failure here
// is a build defect, so callers usually treat it as fatal.
func NewRegistry() (*Registry, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true

	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read embedded schemas: %w", err)
	}
	for _, entry := range entries {
		raw, err := schemaFS.ReadFile("schemas/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", entry.Name(), err)
		}
		if err := c.AddResource(schemaBaseURL+entry.Name(), bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", entry.Name(), err)
		}
	}

	r := &Registry{schemas: make(map[models.EventType]*jsonschema.Schema, len(models.AllEventTypes()))}
	for _, t := range models.AllEventTypes() {
		compiled, err := c.Compile(schemaURL(t))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", t, err)
		}
		r.schemas[t] = compiled
	}
	return r, nil
}

func schemaURL(t models.EventType) string {
	return schemaBaseURL + string(t) + ".json"
}

// Schema returns the compiled schema of t, or CodeUnknownEventType.
func (r *Registry) Schema(t models.EventType) (*jsonschema.Schema, error) {
	s, ok := r.schemas[t]
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnknownEventType, "unknown event type: "+string(t))
	}
	return s, nil
}

// RequiredFields lists the top-level properties t's schema requires.
func (r *Registry) RequiredFields(t models.EventType) ([]string, error) {
	s, err := r.Schema(t)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), s.Required...), nil
}
