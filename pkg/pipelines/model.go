package pipelines

import (
	"context"
	"encoding/json"
	"strings"
)

// Record is one stored pipeline row. Attribute names match the table schema.
type Record struct {
	PartitionKey           string  `json:"PartitionKey"`
	RowKey                 string  `json:"RowKey"`
	PipelineName           *string `json:"PipelineName,omitempty"`
	PipelineLink           *string `json:"PipelineLink,omitempty"`
	PipelineDescription    *string `json:"PipelineDescription,omitempty"`
	InputFieldInstructions *string `json:"InputFieldInstructions,omitempty"`
}

// Descriptor is the client-facing projection of a Record.
type Descriptor struct {
	Name                   *string        `json:"name"`
	Link                   *string        `json:"link"`
	Description            *string        `json:"description"`
	InputFieldInstructions map[string]any `json:"inputFieldInstructions"`
}

// Store reads pipeline records. An unknown tenant yields an empty slice, not an error.
type Store interface {
	ListByTenant(ctx context.Context, tenantID string) ([]Record, error)
}

// Descriptor projects r. Instructions that are absent or not a JSON object become {};
// ok is false only when a non-empty value failed to parse as an object.
func (r Record) Descriptor() (d Descriptor, ok bool) {
	d = Descriptor{
		Name:        r.PipelineName,
		Link:        r.PipelineLink,
		Description: r.PipelineDescription,
	}
	d.InputFieldInstructions, ok = parseInstructions(r.InputFieldInstructions)
	return d, ok
}

func parseInstructions(raw *string) (map[string]any, bool) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return map[string]any{}, true
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(*raw), &m); err != nil {
		return map[string]any{}, false
	}
	if m == nil { // literal null
		return map[string]any{}, true
	}
	return m, true
}

func ptr(s string) *string { return &s }
