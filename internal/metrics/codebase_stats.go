// Package metrics derives codebase statistics from a published index version
package metrics

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/standardbeagle/xref/internal/core"
	"github.com/standardbeagle/xref/internal/types"
)

// CodebaseStats represents codebase metrics derived from one index version
type CodebaseStats struct {
	Version uint64 `json:"version"`

	// File-level metrics
	TotalFiles           int                      `json:"total_files"`
	TotalSizeBytes       int64                    `json:"total_size_bytes"`
	TotalLines           int                      `json:"total_lines"`
	LanguageDistribution map[string]LanguageStats `json:"languages"`
	PathKinds            map[string]int           `json:"path_kinds"`
	DegradedFiles        int                      `json:"degraded_files"`

	// Symbol-level metrics
	TotalSymbols          int            `json:"total_symbols"`
	DefinedSymbols        int            `json:"defined_symbols"`
	OccurrencesByKind     map[string]int `json:"occurrences_by_kind"`
	AverageSymbolsPerFile float64        `json:"avg_symbols_per_file"`

	// Reference statistics
	TotalReferences        int    `json:"total_references"`
	MaxReferencesPerSymbol int    `json:"max_references_per_symbol"`
	MostReferenced         string `json:"most_referenced,omitempty"`
	OrphanSymbols          int    `json:"orphan_symbols"`    // defined, never used or assigned
	UndefinedSymbols       int    `json:"undefined_symbols"` // used, never defined or declared
}

// LanguageStats represents metrics for a specific language
type LanguageStats struct {
	FileCount      int            `json:"files"`
	SymbolCount    int            `json:"symbols"`
	TotalSizeBytes int64          `json:"size_bytes"`
	FileExtensions map[string]int `json:"extensions"`
}

// Compute walks every file and symbol of v. The result does not reference v.
func Compute(v *core.IndexVersion) *CodebaseStats {
	cs := &CodebaseStats{
		Version:              v.Number(),
		LanguageDistribution: make(map[string]LanguageStats),
		PathKinds:            make(map[string]int),
		OccurrencesByKind:    make(map[string]int),
		DegradedFiles:        len(v.Degraded()),
	}
	cs.computeFiles(v)
	cs.computeSymbols(v)
	return cs
}

func languageName(lang types.Language) string {
	if lang == types.LanguageUnknown {
		return "other"
	}
	return string(lang)
}

// computeFiles derives language and path kind distribution
func (cs *CodebaseStats) computeFiles(v *core.IndexVersion) {
	symbolsPerFile := 0
	for _, f := range v.Files() {
		cs.TotalFiles++
		cs.TotalSizeBytes += f.Size
		cs.TotalLines += len(f.Lines)
		cs.PathKinds[f.Kind.String()]++

		lang := languageName(f.Language)
		stats, ok := cs.LanguageDistribution[lang]
		if !ok {
			stats = LanguageStats{FileExtensions: make(map[string]int)}
		}
		stats.FileCount++
		stats.TotalSizeBytes += f.Size
		if ext := strings.ToLower(path.Ext(f.Path)); ext != "" {
			stats.FileExtensions[ext]++
		}
		if bm := v.FileSymbols(f.Path); bm != nil {
			n := int(bm.GetCardinality())
			stats.SymbolCount += n
			symbolsPerFile += n
		}
		cs.LanguageDistribution[lang] = stats
	}
	if cs.TotalFiles > 0 {
		cs.AverageSymbolsPerFile = float64(symbolsPerFile) / float64(cs.TotalFiles)
	}
}

// computeSymbols derives occurrence kind counts and reference statistics
func (cs *CodebaseStats) computeSymbols(v *core.IndexVersion) {
	for _, id := range v.Symbols() {
		cs.TotalSymbols++

		var defined, refs int
		for _, occ := range v.Occurrences(id) {
			cs.OccurrencesByKind[occ.Kind.String()]++
			switch occ.Kind {
			case types.KindDefinition, types.KindDeclaration:
				defined++
			case types.KindUse, types.KindAssignment:
				refs++
			}
		}

		cs.TotalReferences += refs
		if defined > 0 {
			cs.DefinedSymbols++
			if refs == 0 {
				cs.OrphanSymbols++
			}
		} else if refs > 0 {
			cs.UndefinedSymbols++
		}

		if refs > cs.MaxReferencesPerSymbol {
			cs.MaxReferencesPerSymbol = refs
			cs.MostReferenced = v.DisplayName(id)
		}
	}
}

// FormatAsText returns stats formatted as human-readable text
func (cs *CodebaseStats) FormatAsText() string {
	var sb strings.Builder
	rule := strings.Repeat("─", 60) + "\n"

	sb.WriteString(fmt.Sprintf("CODEBASE REPORT (version %d)\n", cs.Version))
	sb.WriteString(rule)
	sb.WriteString(fmt.Sprintf("  Total Files:        %d\n", cs.TotalFiles))
	sb.WriteString(fmt.Sprintf("  Total Lines:        %d\n", cs.TotalLines))
	sb.WriteString(fmt.Sprintf("  Total Size:         %.2f MB\n", float64(cs.TotalSizeBytes)/1024.0/1024.0))
	if cs.DegradedFiles > 0 {
		sb.WriteString(fmt.Sprintf("  Degraded Files:     %d\n", cs.DegradedFiles))
	}

	sb.WriteString("\nLANGUAGES\n")
	sb.WriteString(rule)

	// Sort languages by file count
	type langStats struct {
		name  string
		stats LanguageStats
	}
	var langs []langStats
	for name, stats := range cs.LanguageDistribution {
		langs = append(langs, langStats{name, stats})
	}
	sort.Slice(langs, func(i, j int) bool {
		if langs[i].stats.FileCount != langs[j].stats.FileCount {
			return langs[i].stats.FileCount > langs[j].stats.FileCount
		}
		return langs[i].name < langs[j].name
	})
	for _, lang := range langs {
		sb.WriteString(fmt.Sprintf("  %-12s %5d files  %8d symbols  %7.2f MB\n",
			lang.name+":",
			lang.stats.FileCount,
			lang.stats.SymbolCount,
			float64(lang.stats.TotalSizeBytes)/1024.0/1024.0,
		))
	}

	sb.WriteString("\nPATH KINDS\n")
	sb.WriteString(rule)
	for _, kind := range []types.PathKind{types.PathKindNormal, types.PathKindTest, types.PathKindGenerated, types.PathKindThirdParty} {
		if n := cs.PathKinds[kind.String()]; n > 0 {
			sb.WriteString(fmt.Sprintf("  %-18s  %d\n", kind.Title()+":", n))
		}
	}

	sb.WriteString("\nSYMBOLS\n")
	sb.WriteString(rule)
	sb.WriteString(fmt.Sprintf("  Total:              %d\n", cs.TotalSymbols))
	sb.WriteString(fmt.Sprintf("  Defined:            %d\n", cs.DefinedSymbols))
	sb.WriteString(fmt.Sprintf("  Symbols per File:   %.1f\n", cs.AverageSymbolsPerFile))
	for _, kind := range []types.OccurrenceKind{types.KindDefinition, types.KindDeclaration, types.KindUse, types.KindAssignment} {
		sb.WriteString(fmt.Sprintf("  %-18s  %d\n", strings.ToUpper(kind.String()[:1])+kind.String()[1:]+"s:", cs.OccurrencesByKind[kind.String()]))
	}

	sb.WriteString("\nREFERENCES\n")
	sb.WriteString(rule)
	sb.WriteString(fmt.Sprintf("  Total:              %d\n", cs.TotalReferences))
	if cs.MostReferenced != "" {
		sb.WriteString(fmt.Sprintf("  Max per Symbol:     %d (%s)\n", cs.MaxReferencesPerSymbol, cs.MostReferenced))
	} else {
		sb.WriteString(fmt.Sprintf("  Max per Symbol:     %d\n", cs.MaxReferencesPerSymbol))
	}
	sb.WriteString(fmt.Sprintf("  Orphan Symbols:     %d\n", cs.OrphanSymbols))
	sb.WriteString(fmt.Sprintf("  Undefined Symbols:  %d\n", cs.UndefinedSymbols))

	return sb.String()
}
