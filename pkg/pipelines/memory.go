package pipelines

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type memStore struct {
	byTenant map[string][]Record
}

// NewMemoryStore serves records from memory, keyed by partition key.
func NewMemoryStore(log *zap.SugaredLogger, records []Record) Store {
	m := &memStore{byTenant: map[string][]Record{}}
	for _, r := range records {
		m.byTenant[r.PartitionKey] = append(m.byTenant[r.PartitionKey], r)
	}
	for _, rs := range m.byTenant {
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].RowKey < rs[j].RowKey })
	}
	log.Infow("memory pipeline store ready", "records", len(records), "tenants", len(m.byTenant))
	return m
}

func (m *memStore) ListByTenant(_ context.Context, tenantID string) ([]Record, error) {
	out := make([]Record, len(m.byTenant[tenantID]))
	copy(out, m.byTenant[tenantID])
	return out, nil
}

// seedEntry accepts either a JSON string or a nested object for the instructions.
type seedEntry struct {
	Tenant       string  `json:"tenant" yaml:"tenant"`
	ID           string  `json:"id" yaml:"id"`
	Name         *string `json:"name" yaml:"name"`
	Link         *string `json:"link" yaml:"link"`
	Description  *string `json:"description" yaml:"description"`
	Instructions any     `json:"inputFieldInstructions" yaml:"inputFieldInstructions"`
}

// ParseSeed decodes seed entries. YAML is a superset of JSON, so one decoder serves both.
func ParseSeed(data []byte) ([]Record, error) {
	var entries []seedEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode pipeline seed: %w", err)
	}
	records := make([]Record, 0, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Tenant) == "" {
			return nil, fmt.Errorf("pipeline seed entry %d: tenant is required", i)
		}
		id := e.ID
		if id == "" {
			id = fmt.Sprintf("%s-%03d", e.Tenant, i)
		}
		r := Record{
			PartitionKey:        e.Tenant,
			RowKey:              id,
			PipelineName:        e.Name,
			PipelineLink:        e.Link,
			PipelineDescription: e.Description,
		}
		switch v := e.Instructions.(type) {
		case nil:
		case string:
			r.InputFieldInstructions = ptr(v)
		default:
			buf, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("pipeline seed entry %d: %w", i, err)
			}
			r.InputFieldInstructions = ptr(string(buf))
		}
		records = append(records, r)
	}
	return records, nil
}

// LoadSeed reads records from inline JSON and/or a YAML or JSON file.
func LoadSeed(inline, file string) ([]Record, error) {
	var out []Record
	if inline != "" {
		rs, err := ParseSeed([]byte(inline))
		if err != nil {
			return nil, err
		}
		out = append(out, rs...)
	}
	if file != "" {
		data, err := os.ReadFile(filepath.Clean(file))
		if err != nil {
			return nil, fmt.Errorf("read pipeline seed: %w", err)
		}
		rs, err := ParseSeed(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rs...)
	}
	return out, nil
}
