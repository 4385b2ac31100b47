// Package memstore is an in-memory partitioned document store. It serves
// sorted partition pages through transport.PageFetcher and can split and
// merge its partition ranges, which makes it the reference backend of the
// merge engine.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/pg-sharding/xorder/pkg/models/prange"
	"github.com/pg-sharding/xorder/pkg/xlog"
)

// Document is one stored document. PK is the partition key, ID is the rid.
type Document struct {
	ID   string         `json:"id" yaml:"id" toml:"id"`
	PK   string         `json:"pk" yaml:"pk" toml:"pk"`
	Body map[string]any `json:"body" yaml:"body" toml:"body"`
}

type MemStore struct {
	mu sync.RWMutex

	Ranges map[string]*prange.Range `json:"ranges"`
	Docs   map[string]*Document     `json:"docs"`

	backupPath string
}

func New(backupPath string, ranges ...prange.Range) (*MemStore, error) {
	s := &MemStore{
		Ranges:     map[string]*prange.Range{},
		Docs:       map[string]*Document{},
		backupPath: backupPath,
	}
	if len(ranges) == 0 {
		return s, nil
	}
	if err := prange.ValidateTopology(ranges); err != nil {
		return nil, err
	}
	for _, r := range ranges {
		r := r
		s.Ranges[r.Min] = &r
	}
	return s, nil
}

// Restore loads a store from its backup file, creating an empty store when
// the file does not exist yet.
func Restore(backupPath string) (*MemStore, error) {
	s, err := New(backupPath)
	if err != nil {
		return nil, err
	}
	if backupPath == "" {
		return s, nil
	}
	if _, err := os.Stat(backupPath); err != nil {
		xlog.Zero.Info().Err(err).Msg("memstore backup file not exists. Creating new one.")
		f, err := os.Create(backupPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return s, nil
	}
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

// DumpState writes the store to its backup file through a temporary file.
func (s *MemStore) DumpState() error {
	if s.backupPath == "" {
		return nil
	}
	tmpPath := s.backupPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	state, err := json.MarshalIndent(s, "", "	")
	if err != nil {
		return err
	}
	if _, err := f.Write(state); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.backupPath)
}

// ==============================================================================
//                                  DOCUMENTS
// ==============================================================================

// Put stores doc, assigning a random ID when it has none.
func (s *MemStore) Put(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if s.rangeOf(doc.PK) == nil {
		return fmt.Errorf("no partition range holds key %q", doc.PK)
	}
	xlog.Zero.Debug().Str("id", doc.ID).Str("pk", doc.PK).Msg("memstore: put document")

	return ExecuteCommands(s.DumpState, NewPutCommand(s.Docs, doc.ID, doc))
}

func (s *MemStore) Get(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.Docs[id]
	if !ok {
		return nil, fmt.Errorf("document %q not found", id)
	}
	return doc, nil
}

func (s *MemStore) Delete(ctx context.Context, id string) error {
	xlog.Zero.Debug().Str("id", id).Msg("memstore: delete document")
	s.mu.Lock()
	defer s.mu.Unlock()

	return ExecuteCommands(s.DumpState, NewDeleteCommand(s.Docs, id))
}

// Truncate removes every document and keeps the topology.
func (s *MemStore) Truncate(ctx context.Context) error {
	xlog.Zero.Debug().Msg("memstore: truncate documents")
	s.mu.Lock()
	defer s.mu.Unlock()

	return ExecuteCommands(s.DumpState, NewTruncateCommand(s.Docs))
}

// ==============================================================================
//                                   TOPOLOGY
// ==============================================================================

// ListRanges returns the current topology ordered by Min.
func (s *MemStore) ListRanges(ctx context.Context) []prange.Range {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret := make([]prange.Range, 0, len(s.Ranges))
	for _, r := range s.Ranges {
		ret = append(ret, *r)
	}
	prange.SortRanges(ret)
	return ret
}

// Split cuts the range starting at start into [start, at) and [at, max).
func (s *MemStore) Split(ctx context.Context, start string, at string) error {
	xlog.Zero.Debug().Str("range", start).Str("at", at).Msg("memstore: split range")
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.Ranges[start]
	if !ok {
		return fmt.Errorf("partition range starting at %q not found", start)
	}
	if at == r.Min || !r.Contains(at) {
		return fmt.Errorf("split point %q is not inside %s", at, r)
	}

	left := &prange.Range{Min: r.Min, Max: at}
	right := &prange.Range{Min: at, Max: r.Max}
	return ExecuteCommands(s.DumpState,
		NewPutCommand(s.Ranges, left.Min, left),
		NewPutCommand(s.Ranges, right.Min, right),
	)
}

// Merge joins the range starting at start with its right neighbour.
func (s *MemStore) Merge(ctx context.Context, start string) error {
	xlog.Zero.Debug().Str("range", start).Msg("memstore: merge range")
	s.mu.Lock()
	defer s.mu.Unlock()

	left, ok := s.Ranges[start]
	if !ok {
		return fmt.Errorf("partition range starting at %q not found", start)
	}
	if left.Max == "" {
		return fmt.Errorf("partition range %s has no right neighbour", left)
	}
	right, ok := s.Ranges[left.Max]
	if !ok {
		return fmt.Errorf("partition range starting at %q not found", left.Max)
	}

	merged := &prange.Range{Min: left.Min, Max: right.Max}
	return ExecuteCommands(s.DumpState,
		NewDeleteCommand(s.Ranges, right.Min),
		NewPutCommand(s.Ranges, merged.Min, merged),
	)
}

func (s *MemStore) rangeOf(pk string) *prange.Range {
	for _, r := range s.Ranges {
		if r.Contains(pk) {
			return r
		}
	}
	return nil
}
