package memstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pg-sharding/xorder/pkg/memstore"
	"github.com/pg-sharding/xorder/pkg/models/prange"
)

var halves = []prange.Range{
	{Min: "", Max: "m"},
	{Min: "m", Max: ""},
}

func TestPutAndDelete(t *testing.T) {
	assertions := assert.New(t)
	ctx := context.Background()

	s, err := memstore.New("", halves...)
	require.NoError(t, err)

	doc := &memstore.Document{PK: "a", Body: map[string]any{"n": 1.0}}
	require.NoError(t, s.Put(ctx, doc))
	assertions.NotEmpty(doc.ID)

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assertions.Equal(doc, got)

	require.NoError(t, s.Delete(ctx, doc.ID))
	_, err = s.Get(ctx, doc.ID)
	assertions.Error(err)

	assertions.Error(s.Delete(ctx, doc.ID))
}

func TestPutOutsideTopology(t *testing.T) {
	s, err := memstore.New("", prange.Range{Min: "b", Max: "c"})
	require.NoError(t, err)

	assert.Error(t, s.Put(context.Background(), &memstore.Document{ID: "x", PK: "a"}))
}

func TestNewRejectsOverlappingRanges(t *testing.T) {
	_, err := memstore.New("", prange.Range{Min: "", Max: "m"}, prange.Range{Min: "k", Max: ""})
	assert.Error(t, err)
}

func TestSplitAndMerge(t *testing.T) {
	assertions := assert.New(t)
	ctx := context.Background()

	s, err := memstore.New("", halves...)
	require.NoError(t, err)

	require.NoError(t, s.Split(ctx, "m", "t"))
	assertions.Equal([]prange.Range{
		{Min: "", Max: "m"},
		{Min: "m", Max: "t"},
		{Min: "t", Max: ""},
	}, s.ListRanges(ctx))

	assertions.Error(s.Split(ctx, "m", "m"))
	assertions.Error(s.Split(ctx, "m", "z"))
	assertions.Error(s.Split(ctx, "q", "r"))

	require.NoError(t, s.Merge(ctx, ""))
	assertions.Equal([]prange.Range{
		{Min: "", Max: "t"},
		{Min: "t", Max: ""},
	}, s.ListRanges(ctx))

	assertions.Error(s.Merge(ctx, "t"))
}

func TestExecuteCommandsUndoesOnSaverFailure(t *testing.T) {
	assertions := assert.New(t)

	m := map[string]int{"a": 1}
	err := memstore.ExecuteCommands(
		func() error { return errors.New("disk full") },
		memstore.NewPutCommand(m, "a", 2),
		memstore.NewPutCommand(m, "b", 3),
		memstore.NewDeleteCommand(m, "a"),
	)
	assertions.EqualError(err, "disk full")
	assertions.Equal(map[string]int{"a": 1}, m)
}

func TestExecuteCommandsUndoesCompletedOnly(t *testing.T) {
	assertions := assert.New(t)

	m := map[string]int{"a": 1}
	undone := false
	err := memstore.ExecuteCommands(
		func() error { return nil },
		memstore.NewTruncateCommand(m),
		memstore.NewCustomCommand(
			func() error { return errors.New("boom") },
			func() error { undone = true; return nil },
		),
	)
	assertions.EqualError(err, "boom")
	assertions.False(undone)
	assertions.Equal(map[string]int{"a": 1}, m)
}

func TestDumpAndRestore(t *testing.T) {
	assertions := assert.New(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	s, err := memstore.Restore(path)
	require.NoError(t, err)
	assertions.Empty(s.ListRanges(ctx))

	s, err = memstore.New(path, halves...)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, &memstore.Document{ID: "d1", PK: "q", Body: map[string]any{"n": 2.0}}))
	require.NoError(t, s.Split(ctx, "", "f"))

	restored, err := memstore.Restore(path)
	require.NoError(t, err)
	assertions.Equal(s.ListRanges(ctx), restored.ListRanges(ctx))

	doc, err := restored.Get(ctx, "d1")
	require.NoError(t, err)
	assertions.Equal("q", doc.PK)
	assertions.Equal(map[string]any{"n": 2.0}, doc.Body)
}
