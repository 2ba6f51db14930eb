package search

import (
	"strings"
	"time"

	"github.com/standardbeagle/xref/internal/core"
	"github.com/standardbeagle/xref/internal/types"
)

var fixtureFiles = []struct {
	path    string
	kind    types.PathKind
	content string
}{
	{"src/calc.go", types.PathKindNormal, "package calc\n\nfunc Add(a, b int) int { return a + b }\n\nfunc Twice(x int) int { return Add(x, x) }\n"},
	{"src/main.go", types.PathKindNormal, "package main\nfunc main() {\n\ttotal := calc.Add(1, 2)\n\tprintln(total)\n}\n"},
	{"tests/calc_test.go", types.PathKindTest, "func TestAdd() { Add(1, 1) }\n"},
	{"third_party/lib/add.go", types.PathKindThirdParty, "func Add() {} // adder\n"},
}

func occ(id types.SymbolID, path string, line, col, length int, kind types.OccurrenceKind) types.Occurrence {
	return types.Occurrence{Symbol: id, Path: path, Line: line, Column: col, EndColumn: col + length, Kind: kind}
}

// fixtureVersion holds three symbols: go:Add and go:Twice with pretty names,
// and go:total without one
func fixtureVersion(n uint64) *core.IndexVersion {
	var files []*core.File
	for _, f := range fixtureFiles {
		files = append(files, core.NewFile(f.path, []byte(f.content), f.kind))
	}
	return core.NewIndexVersion(core.VersionData{
		Number:    n,
		BuildID:   "fixture",
		CreatedAt: time.Unix(1700000000, 0),
		Symbols:   []string{"go:Add", "go:Twice", "go:total"},
		Pretty:    map[types.SymbolID]string{1: "Add", 2: "Twice"},
		Occurrences: map[types.SymbolID][]types.Occurrence{
			1: {
				occ(1, "src/calc.go", 3, 5, 3, types.KindDefinition),
				occ(1, "src/calc.go", 5, 31, 3, types.KindUse),
				occ(1, "src/main.go", 3, 15, 3, types.KindUse),
				occ(1, "tests/calc_test.go", 1, 17, 3, types.KindUse),
				occ(1, "third_party/lib/add.go", 1, 5, 3, types.KindDefinition),
			},
			2: {occ(2, "src/calc.go", 5, 5, 5, types.KindDefinition)},
			3: {
				occ(3, "src/main.go", 3, 1, 5, types.KindAssignment),
				occ(3, "src/main.go", 4, 9, 5, types.KindUse),
			},
		},
		Files: files,
	})
}

func groupPaths(groups []types.ResultGroup) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g.Path)
	}
	return out
}

func snippetLines(g types.ResultGroup) []int {
	var out []int
	for _, s := range g.Snippets {
		out = append(out, s.Line)
	}
	return out
}

func literal(pattern string) types.QuerySpec { return types.QuerySpec{Pattern: pattern} }

func withPath(spec types.QuerySpec, filter string) types.QuerySpec {
	spec.PathFilter = filter
	return spec
}

func manyFiles(n int) *core.IndexVersion {
	var files []*core.File
	var occs []types.Occurrence
	for i := 0; i < n; i++ {
		p := "pkg/f" + strings.Repeat("x", i) + ".go"
		files = append(files, core.NewFile(p, []byte("Widget\nWidget\nWidget\n"), types.PathKindNormal))
		for line := 1; line <= 3; line++ {
			occs = append(occs, occ(1, p, line, 0, 6, types.KindUse))
		}
	}
	return core.NewIndexVersion(core.VersionData{
		Number:      1,
		Symbols:     []string{"t:Widget"},
		Occurrences: map[types.SymbolID][]types.Occurrence{1: occs},
		Files:       files,
	})
}

// namingVersion holds symbols whose names differ only by case, by a regex
// metacharacter, or by where they are referenced
func namingVersion() *core.IndexVersion {
	files := []*core.File{
		core.NewFile("src/lower.go", []byte("var caseSensitiveness = 1\n"), types.PathKindNormal),
		core.NewFile("src/search.go", []byte("func SimpleSearch() {}\n"), types.PathKindNormal),
		core.NewFile("src/upper.go", []byte("type CaseSensitiveness int\n"), types.PathKindNormal),
		core.NewFile("web/WebTestPathFilter.cpp", []byte("TEST(WebTest, PathFilter) {}\n"), types.PathKindTest),
		core.NewFile("web/web.cpp", []byte("void WebTest() {}\n"), types.PathKindNormal),
	}
	return core.NewIndexVersion(core.VersionData{
		Number:  1,
		Symbols: []string{"go:SimpleSearch", "go:CaseSensitiveness", "go:caseSensitiveness", "cpp:WebTest"},
		Pretty: map[types.SymbolID]string{
			1: "SimpleSearch", 2: "CaseSensitiveness", 3: "caseSensitiveness", 4: "WebTest",
		},
		Occurrences: map[types.SymbolID][]types.Occurrence{
			1: {occ(1, "src/search.go", 1, 5, 12, types.KindDefinition)},
			2: {occ(2, "src/upper.go", 1, 5, 17, types.KindDefinition)},
			3: {occ(3, "src/lower.go", 1, 4, 17, types.KindDefinition)},
			4: {
				occ(4, "web/WebTestPathFilter.cpp", 1, 5, 7, types.KindUse),
				occ(4, "web/web.cpp", 1, 5, 7, types.KindDefinition),
			},
		},
		Files: files,
	})
}
