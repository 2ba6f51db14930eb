package indexing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/xref/internal/core"
	"github.com/standardbeagle/xref/internal/intern"
	"github.com/standardbeagle/xref/internal/types"
)

func sealed(t *testing.T, m *Merger, n uint64) *core.IndexVersion {
	t.Helper()
	return m.Seal(SealMeta{Number: n, BuildID: "test"})
}

func occurrencesOf(t *testing.T, v *core.IndexVersion, raw string) []types.Occurrence {
	t.Helper()
	id, ok := v.LookupRaw(raw)
	if !ok {
		return nil
	}
	return v.Occurrences(id)
}

func TestMergerAddAndSeal(t *testing.T) {
	m := NewMerger(intern.New(), nil)
	stats := m.Add(fileBatch(0, 1,
		types.FileRecords{
			Path:    "a.c",
			Content: []byte("def Foo\nuse Foo\n"),
			Records: []types.Record{
				record("Foo", types.KindUse, 2, 4),
				record("Foo", types.KindDefinition, 1, 4),
				record("Foo", types.KindDefinition, 1, 4), // duplicate
			},
		},
	))
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 3, stats.Records)
	assert.Equal(t, 2, stats.Occurrences)
	assert.Equal(t, 1, stats.Duplicates)

	v := sealed(t, m, 1)
	occs := occurrencesOf(t, v, "t:Foo")
	require.Len(t, occs, 2)
	assert.Equal(t, types.KindDefinition, occs[0].Kind)
	assert.Equal(t, 1, occs[0].Line)
	assert.Equal(t, 2, occs[1].Line)

	id, _ := v.LookupRaw("t:Foo")
	assert.Equal(t, "Foo", v.DisplayName(id))
	assert.Equal(t, []string{"a.c"}, v.Paths())
	f, ok := v.File("a.c")
	require.True(t, ok)
	assert.Equal(t, []string{"def Foo", "use Foo"}, f.Lines)
}

func TestMergerAddIsIdempotent(t *testing.T) {
	batch := fileBatch(0, 1, types.FileRecords{
		Path:    "a.c",
		Records: []types.Record{record("Foo", types.KindDefinition, 1, 0), record("Bar", types.KindUse, 3, 2)},
	})

	once := NewMerger(intern.New(), nil)
	once.Add(batch)
	twice := NewMerger(intern.New(), nil)
	twice.Add(batch)
	stats := twice.Add(batch)
	assert.Equal(t, 1, stats.Replaced)

	a, b := sealed(t, once, 1), sealed(t, twice, 1)
	assert.Equal(t, occurrencesOf(t, a, "t:Foo"), occurrencesOf(t, b, "t:Foo"))
	assert.Equal(t, occurrencesOf(t, a, "t:Bar"), occurrencesOf(t, b, "t:Bar"))
	assert.Equal(t, a.Stats().Occurrences, b.Stats().Occurrences)
}

func TestMergerReplacesFile(t *testing.T) {
	m := NewMerger(intern.New(), nil)
	m.Add(fileBatch(0, 1, types.FileRecords{
		Path:    "a.c",
		Records: []types.Record{record("Old", types.KindDefinition, 1, 0), record("Kept", types.KindUse, 2, 0)},
	}))
	m.Add(fileBatch(0, 1, types.FileRecords{
		Path:    "a.c",
		Records: []types.Record{record("Kept", types.KindUse, 5, 0)},
	}))

	v := sealed(t, m, 1)
	assert.Empty(t, occurrencesOf(t, v, "t:Old"), "symbols without occurrences leave lookup")
	kept := occurrencesOf(t, v, "t:Kept")
	require.Len(t, kept, 1)
	assert.Equal(t, 5, kept[0].Line)
}

func TestMergerEmptyRecordsClearFile(t *testing.T) {
	m := NewMerger(intern.New(), nil)
	m.Add(fileBatch(0, 1, types.FileRecords{Path: "a.c", Records: []types.Record{record("Foo", types.KindDefinition, 1, 0)}}))
	m.Add(fileBatch(0, 1, types.FileRecords{Path: "a.c"}))

	v := sealed(t, m, 1)
	assert.Empty(t, v.Symbols())
	assert.Equal(t, []string{"a.c"}, v.Paths())
}

func TestMergerRejectsMalformed(t *testing.T) {
	m := NewMerger(intern.New(), nil)
	stats := m.Add(fileBatch(0, 1, types.FileRecords{
		Path: "a.c",
		Records: []types.Record{
			{Symbol: "", Kind: types.KindUse, Line: 1},
			{Symbol: "t:x", Kind: types.KindUse, Line: 0},
			{Symbol: "t:x", Kind: types.KindUse, Line: 1, Column: -1},
			{Symbol: "t:x", Kind: types.OccurrenceKind(9), Line: 1},
			{Symbol: "t:x", Kind: types.KindUse, Line: 1, Column: 5, EndColumn: 2},
			{Symbol: "t:x", Kind: types.KindUse, Line: 1, Path: "other.c"},
			record("ok", types.KindUse, 1, 0),
		},
	}))
	assert.Equal(t, 6, stats.Rejected)
	assert.Len(t, stats.Errors, 6)
	assert.Equal(t, 1, stats.Occurrences)
}

func TestMergerRemoveFile(t *testing.T) {
	m := NewMerger(intern.New(), nil)
	m.Add(fileBatch(0, 1,
		types.FileRecords{Path: "a.c", Records: []types.Record{record("Foo", types.KindDefinition, 1, 0)}},
		types.FileRecords{Path: "b.c", Records: []types.Record{record("Foo", types.KindUse, 1, 0)}},
	))
	assert.True(t, m.RemoveFile("a.c"))
	assert.False(t, m.RemoveFile("a.c"))
	assert.False(t, m.HasFile("a.c"))

	v := sealed(t, m, 1)
	occs := occurrencesOf(t, v, "t:Foo")
	require.Len(t, occs, 1)
	assert.Equal(t, "b.c", occs[0].Path)
	assert.Equal(t, []string{"b.c"}, v.Paths())
}

func TestMergerOrderIndependent(t *testing.T) {
	var batches []types.ShardBatch
	for i := 0; i < 16; i++ {
		path := string(rune('a'+i)) + ".c"
		batches = append(batches, fileBatch(i, 16, types.FileRecords{
			Path: path,
			Records: []types.Record{
				record("Shared", types.KindUse, i+1, 0),
				record("Own"+path, types.KindDefinition, 1, 0),
			},
		}))
	}

	sequential := NewMerger(intern.New(), nil)
	for _, b := range batches {
		sequential.Add(b)
	}

	concurrent := NewMerger(intern.New(), nil)
	var wg sync.WaitGroup
	for i := len(batches) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(b types.ShardBatch) {
			defer wg.Done()
			concurrent.Add(b)
		}(batches[i])
	}
	wg.Wait()

	a, b := sealed(t, sequential, 1), sealed(t, concurrent, 1)
	assert.Equal(t, a.Paths(), b.Paths())
	assert.Equal(t, occurrencesOf(t, a, "t:Shared")[0].Path, occurrencesOf(t, b, "t:Shared")[0].Path)
	for _, occs := range [][]types.Occurrence{occurrencesOf(t, a, "t:Shared"), occurrencesOf(t, b, "t:Shared")} {
		require.Len(t, occs, 16)
	}
	// handles differ between interners; compare everything but the handle
	strip := func(occs []types.Occurrence) []types.Occurrence {
		out := make([]types.Occurrence, len(occs))
		for i, o := range occs {
			o.Symbol = 0
			out[i] = o
		}
		return out
	}
	assert.Equal(t, strip(occurrencesOf(t, a, "t:Shared")), strip(occurrencesOf(t, b, "t:Shared")))
}

func TestMergerPrettyNameIsDeterministic(t *testing.T) {
	first := fileBatch(0, 2, types.FileRecords{Path: "a.c", Records: []types.Record{
		{Symbol: "t:f", Pretty: "use_name", Kind: types.KindUse, Line: 1},
	}})
	second := fileBatch(1, 2, types.FileRecords{Path: "b.c", Records: []types.Record{
		{Symbol: "t:f", Pretty: "def_name", Kind: types.KindDefinition, Line: 1},
	}})

	for _, order := range [][]types.ShardBatch{{first, second}, {second, first}} {
		m := NewMerger(intern.New(), nil)
		for _, b := range order {
			m.Add(b)
		}
		v := sealed(t, m, 1)
		id, ok := v.LookupRaw("t:f")
		require.True(t, ok)
		assert.Equal(t, "def_name", v.DisplayName(id))
	}
}

func TestMergerIncremental(t *testing.T) {
	in := intern.New()
	m := NewMerger(in, nil)
	m.Add(fileBatch(0, 1,
		types.FileRecords{Path: "a.c", Records: []types.Record{record("Foo", types.KindDefinition, 1, 0), record("Bar", types.KindUse, 2, 0)}},
		types.FileRecords{Path: "b.c", Records: []types.Record{record("Foo", types.KindUse, 3, 0)}},
		types.FileRecords{Path: "c.c", Records: []types.Record{record("Baz", types.KindDefinition, 1, 0)}},
	))
	base := sealed(t, m, 1)
	baseFoo := append([]types.Occurrence{}, occurrencesOf(t, base, "t:Foo")...)

	next := NewMerger(in, base)
	assert.True(t, next.HasFile("c.c"))
	next.Add(fileBatch(0, 1, types.FileRecords{Path: "a.c", Records: []types.Record{record("Foo", types.KindDefinition, 7, 0)}}))
	assert.True(t, next.RemoveFile("c.c"))
	v := sealed(t, next, 2)

	foo := occurrencesOf(t, v, "t:Foo")
	require.Len(t, foo, 2)
	assert.Equal(t, "a.c", foo[0].Path)
	assert.Equal(t, 7, foo[0].Line)
	assert.Equal(t, "b.c", foo[1].Path)
	assert.Empty(t, occurrencesOf(t, v, "t:Bar"))
	assert.Empty(t, occurrencesOf(t, v, "t:Baz"))
	assert.Equal(t, []string{"a.c", "b.c"}, v.Paths())

	// the base version is unaffected
	assert.Equal(t, baseFoo, occurrencesOf(t, base, "t:Foo"))
	assert.Len(t, occurrencesOf(t, base, "t:Bar"), 1)
	assert.Equal(t, []string{"a.c", "b.c", "c.c"}, base.Paths())

	// handles stay stable across versions
	baseID, _ := base.LookupRaw("t:Foo")
	nextID, _ := v.LookupRaw("t:Foo")
	assert.Equal(t, baseID, nextID)
}
