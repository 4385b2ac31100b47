package memstore

import (
	"context"
	"fmt"

	"github.com/pg-sharding/xorder/pkg/config"
	"github.com/pg-sharding/xorder/pkg/models/prange"
)

// Dataset is the file form of a store: a topology plus its documents.
type Dataset struct {
	Ranges    []prange.Range `json:"ranges" yaml:"ranges" toml:"ranges"`
	Documents []*Document    `json:"documents" yaml:"documents" toml:"documents"`
}

// LoadDataset reads a .json, .yaml or .toml dataset file.
func LoadDataset(path string) (*Dataset, error) {
	var ds Dataset
	if err := config.DecodeFile(path, &ds); err != nil {
		return nil, err
	}
	for _, doc := range ds.Documents {
		body, ok := normalize(doc.Body).(map[string]any)
		if !ok && doc.Body != nil {
			return nil, fmt.Errorf("document %q: body is not an object", doc.ID)
		}
		doc.Body = body
	}
	return &ds, nil
}

// FromDataset builds a store holding ds.
func FromDataset(ctx context.Context, backupPath string, ds *Dataset) (*MemStore, error) {
	s, err := New(backupPath, ds.Ranges...)
	if err != nil {
		return nil, err
	}
	for _, doc := range ds.Documents {
		if err := s.Put(ctx, doc); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// normalize turns the map[interface{}]interface{} trees yaml.v2 produces
// into the map[string]any form the value package digests.
func normalize(v any) any {
	switch x := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[fmt.Sprint(k)] = normalize(e)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = normalize(e)
		}
		return m
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	}
	return v
}
