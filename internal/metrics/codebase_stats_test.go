package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/xref/internal/core"
	"github.com/standardbeagle/xref/internal/types"
)

func occ(id types.SymbolID, path string, line int, kind types.OccurrenceKind) types.Occurrence {
	return types.Occurrence{Symbol: id, Path: path, Line: line, Column: 1, EndColumn: 4, Kind: kind}
}

func sampleVersion() *core.IndexVersion {
	return core.NewIndexVersion(core.VersionData{
		Number:  7,
		BuildID: "build-7",
		Symbols: []string{"go:Add", "go:main", "go:fmt", "go:x"},
		Pretty:  map[types.SymbolID]string{1: "calc.Add"},
		Occurrences: map[types.SymbolID][]types.Occurrence{
			1: {
				occ(1, "calc/calc.go", 3, types.KindDefinition),
				occ(1, "main.go", 4, types.KindUse),
				occ(1, "calc/calc_test.go", 3, types.KindUse),
			},
			2: {occ(2, "main.go", 3, types.KindDefinition)},
			3: {occ(3, "main.go", 5, types.KindUse)},
			4: {
				occ(4, "calc/calc.go", 5, types.KindDefinition),
				occ(4, "calc/calc.go", 6, types.KindAssignment),
			},
		},
		Files: []*core.File{
			core.NewFile("calc/calc.go", []byte("package calc\n\nfunc Add() {}\n\nvar x int\nx = 1\n"), types.PathKindNormal),
			core.NewFile("calc/calc_test.go", []byte("package calc\n\nfunc TestAdd() { Add() }\n"), types.PathKindTest),
			core.NewFile("main.go", []byte("package main\n\nfunc main() {\n\tcalc.Add()\n\tfmt.Println()\n}\n"), types.PathKindNormal),
			core.NewFile("gen/big.pb.go", []byte("// generated\n"), types.PathKindGenerated),
			core.NewFile("notes.txt", []byte("notes\n"), types.PathKindNormal),
		},
		Degraded: []string{"broken.go"},
	})
}

func TestCompute(t *testing.T) {
	cs := Compute(sampleVersion())

	assert.Equal(t, uint64(7), cs.Version)
	assert.Equal(t, 5, cs.TotalFiles)
	assert.Equal(t, 17, cs.TotalLines)
	assert.Equal(t, 1, cs.DegradedFiles)
	assert.Equal(t, map[string]int{"normal": 3, "test": 1, "generated": 1}, cs.PathKinds)

	require.Contains(t, cs.LanguageDistribution, "go")
	goStats := cs.LanguageDistribution["go"]
	assert.Equal(t, 4, goStats.FileCount)
	assert.Equal(t, 6, goStats.SymbolCount)
	assert.Equal(t, map[string]int{".go": 4}, goStats.FileExtensions)
	assert.Equal(t, 1, cs.LanguageDistribution["other"].FileCount)
	assert.InDelta(t, 1.2, cs.AverageSymbolsPerFile, 0.001)

	assert.Equal(t, 4, cs.TotalSymbols)
	assert.Equal(t, 3, cs.DefinedSymbols)
	assert.Equal(t, map[string]int{"definition": 3, "use": 3, "assignment": 1}, cs.OccurrencesByKind)
	assert.Equal(t, 4, cs.TotalReferences)
	assert.Equal(t, 2, cs.MaxReferencesPerSymbol)
	assert.Equal(t, "calc.Add", cs.MostReferenced)
	assert.Equal(t, 1, cs.OrphanSymbols)
	assert.Equal(t, 1, cs.UndefinedSymbols)
}

func TestComputeEmptyVersion(t *testing.T) {
	cs := Compute(core.NewIndexVersion(core.VersionData{Number: 1}))
	assert.Zero(t, cs.TotalFiles)
	assert.Zero(t, cs.AverageSymbolsPerFile)
	assert.Empty(t, cs.MostReferenced)
	assert.Contains(t, cs.FormatAsText(), "Max per Symbol:     0\n")
}

func TestFormatAsText(t *testing.T) {
	text := Compute(sampleVersion()).FormatAsText()

	assert.Contains(t, text, "CODEBASE REPORT (version 7)")
	assert.Contains(t, text, "Degraded Files:     1")
	assert.Contains(t, text, "go:              4 files")
	assert.Contains(t, text, "Test files:")
	assert.Contains(t, text, "Max per Symbol:     2 (calc.Add)")
	assert.Contains(t, text, "Orphan Symbols:     1")
	assert.Contains(t, text, "Assignments:")
	assert.NotContains(t, text, "Third-party code")
}
