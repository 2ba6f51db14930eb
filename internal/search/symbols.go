package search

import (
	"sort"

	"github.com/standardbeagle/xref/internal/core"
	"github.com/standardbeagle/xref/internal/types"
)

// SymbolInfo describes one symbol and where it occurs
type SymbolInfo struct {
	ID          types.SymbolID     `json:"id"`
	Raw         string             `json:"raw"`
	Name        string             `json:"name"`
	Kinds       map[string]int     `json:"kinds"`
	Files       int                `json:"files"`
	Occurrences []types.Occurrence `json:"-"`
	Locations   []SymbolLocation   `json:"locations"`
}

// SymbolLocation is one occurrence as shown to users
type SymbolLocation struct {
	Path      string         `json:"path"`
	PathKind  types.PathKind `json:"pathKind"`
	Line      int            `json:"line"`
	Column    int            `json:"column"`
	EndColumn int            `json:"endColumn"`
	Kind      string         `json:"kind"`
	Text      string         `json:"text"`
}

// LookupSymbol finds the symbols whose raw identifier or display name equals
// name exactly, ordered by raw identifier. Locations follow occurrence order
// and are capped at limit per symbol when limit is positive.
func LookupSymbol(v *core.IndexVersion, name string, limit int) []SymbolInfo {
	var ids []types.SymbolID
	if id, ok := v.LookupRaw(name); ok {
		ids = append(ids, id)
	}
	for _, id := range v.Symbols() {
		if p, ok := v.Pretty(id); ok && p == name {
			if len(ids) == 0 || ids[0] != id {
				ids = append(ids, id)
			}
		}
	}

	out := make([]SymbolInfo, 0, len(ids))
	for _, id := range ids {
		raw, _ := v.Resolve(id)
		occs := v.Occurrences(id)
		info := SymbolInfo{
			ID:          id,
			Raw:         raw,
			Name:        v.DisplayName(id),
			Kinds:       make(map[string]int),
			Occurrences: occs,
		}
		files := make(map[string]bool)
		for i, o := range occs {
			info.Kinds[o.Kind.String()]++
			files[o.Path] = true
			if limit > 0 && i >= limit {
				continue
			}
			loc := SymbolLocation{
				Path: o.Path, Line: o.Line, Column: o.Column, EndColumn: o.EndColumn, Kind: o.Kind.String(),
			}
			if f, ok := v.File(o.Path); ok {
				loc.PathKind = f.Kind
				loc.Text = f.Line(o.Line)
			}
			info.Locations = append(info.Locations, loc)
		}
		info.Files = len(files)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Raw < out[j].Raw })
	return out
}
