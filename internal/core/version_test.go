package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/xref/internal/types"
)

func occ(id types.SymbolID, path string, line, col int, kind types.OccurrenceKind) types.Occurrence {
	return types.Occurrence{Symbol: id, Path: path, Line: line, Column: col, EndColumn: col + 3, Kind: kind}
}

func sampleVersion() *IndexVersion {
	return NewIndexVersion(VersionData{
		Number:  3,
		BuildID: "b-1",
		Symbols: []string{"T_Foo", "F_bar", "T_Gone"},
		Pretty:  map[types.SymbolID]string{1: "Foo", 2: "bar"},
		Occurrences: map[types.SymbolID][]types.Occurrence{
			1: {
				occ(1, "src/b.cpp", 4, 2, types.KindUse),
				occ(1, "src/a.cpp", 9, 0, types.KindUse),
				occ(1, "src/a.cpp", 1, 6, types.KindDefinition),
				occ(1, "src/a.cpp", 9, 0, types.KindUse), // duplicate tuple
			},
			2: {occ(2, "src/a.cpp", 3, 1, types.KindAssignment)},
			3: {},
		},
		Files: []*File{
			NewFile("src/b.cpp", []byte("x\ny\nz\nFoo f;\n"), types.PathKindNormal),
			NewFile("src/a.cpp", []byte("class Foo {};\n\nbar = 1;\n"), types.PathKindNormal),
			NewFile("docs/readme.txt", []byte("hello"), types.PathKindNormal),
		},
		Degraded: []string{"src/z.cpp", "src/c.cpp", "src/z.cpp"},
	})
}

func TestIndexVersionOrdering(t *testing.T) {
	v := sampleVersion()

	got := v.Occurrences(1)
	require.Len(t, got, 3, "duplicate tuples collapse")
	assert.Equal(t, "src/a.cpp", got[0].Path)
	assert.Equal(t, 1, got[0].Line)
	assert.Equal(t, 9, got[1].Line)
	assert.Equal(t, "src/b.cpp", got[2].Path)

	assert.Equal(t, []string{"docs/readme.txt", "src/a.cpp", "src/b.cpp"}, v.Paths())
	assert.Equal(t, []string{"src/c.cpp", "src/z.cpp"}, v.Degraded())
}

func TestIndexVersionSymbols(t *testing.T) {
	v := sampleVersion()

	assert.Equal(t, []types.SymbolID{1, 2}, v.Symbols())
	assert.False(t, v.HasSymbol(3), "symbols without occurrences are dropped")

	raw, ok := v.Resolve(3)
	require.True(t, ok, "handles stay in the table")
	assert.Equal(t, "T_Gone", raw)

	assert.Equal(t, "Foo", v.DisplayName(1))
	id, ok := v.LookupRaw("F_bar")
	require.True(t, ok)
	assert.Equal(t, types.SymbolID(2), id)
	_, ok = v.LookupRaw("T_Gone")
	assert.False(t, ok)

	_, ok = v.Resolve(0)
	assert.False(t, ok)
	_, ok = v.Resolve(4)
	assert.False(t, ok)
}

func TestIndexVersionFileSymbols(t *testing.T) {
	v := sampleVersion()

	bm := v.FileSymbols("src/a.cpp")
	require.NotNil(t, bm)
	assert.Equal(t, []uint32{1, 2}, bm.ToArray())
	assert.Nil(t, v.FileSymbols("docs/readme.txt"))

	assert.Equal(t, []string{"src/a.cpp", "src/b.cpp"}, v.PathsWithPrefix("src/"))
	assert.Empty(t, v.PathsWithPrefix("lib"))
}

func TestIndexVersionStats(t *testing.T) {
	v := sampleVersion()
	st := v.Stats()

	assert.Equal(t, uint64(3), st.Number)
	assert.Equal(t, 3, st.Files)
	assert.Equal(t, 2, st.Symbols)
	assert.Equal(t, 3, st.TableSize)
	assert.Equal(t, 4, st.Occurrences)
	assert.Equal(t, 4+3+1, st.Lines)
	assert.Equal(t, 2, st.DegradedSize)
	assert.WithinDuration(t, time.Now(), st.CreatedAt, time.Minute)
}

func TestNewFile(t *testing.T) {
	f := NewFile("a/WebTest.cpp", []byte("line one\r\nline two\n"), types.PathKindTest)
	assert.Equal(t, []string{"line one", "line two"}, f.Lines)
	assert.Equal(t, types.LanguageCpp, f.Language)
	assert.Equal(t, "line two", f.Line(2))
	assert.Equal(t, "", f.Line(3))
	assert.NotZero(t, f.Hash)

	same := NewFile("b.cpp", []byte("line one\r\nline two\n"), types.PathKindNormal)
	assert.Equal(t, f.Hash, same.Hash)

	empty := NewFile("empty.go", nil, types.PathKindNormal)
	assert.Empty(t, empty.Lines)
}

func TestLanguageForPath(t *testing.T) {
	tests := map[string]types.Language{
		"dom/base/nsDocument.cpp": types.LanguageCpp,
		"x/y.H":                   types.LanguageCpp,
		"main.go":                 types.LanguageGo,
		"tool.py":                 types.LanguagePython,
		"app.tsx":                 types.LanguageTypeScript,
		"lib.rs":                  types.LanguageRust,
		"image.png":               types.LanguageBinary,
		"Makefile":                types.LanguageUnknown,
	}
	for path, want := range tests {
		assert.Equal(t, want, LanguageForPath(path), path)
	}
}

func TestPathClassifier(t *testing.T) {
	pc := NewPathClassifier(
		[]string{"**/tests/**", "**/*_test.go"},
		[]string{"**/*.pb.go"},
		[]string{"third_party/**"},
	)

	assert.Equal(t, types.PathKindNormal, pc.Classify("src/main.go"))
	assert.Equal(t, types.PathKindTest, pc.Classify("src/main_test.go"))
	assert.Equal(t, types.PathKindTest, pc.Classify("a/tests/WebTest.cpp"))
	assert.Equal(t, types.PathKindGenerated, pc.Classify("api/v1/api.pb.go"))
	assert.Equal(t, types.PathKindThirdParty, pc.Classify("third_party/lib/tests/x.cc"))

	var nilClassifier *PathClassifier
	assert.Equal(t, types.PathKindNormal, nilClassifier.Classify("tests/x"))
}
