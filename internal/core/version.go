// Package core holds the sealed, immutable index versions and the store that publishes them.
package core

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/standardbeagle/xref/internal/types"
)

// VersionData is the raw material for a sealed IndexVersion.
// NewIndexVersion takes ownership of every slice and map in it.
type VersionData struct {
	Number    uint64
	BuildID   string
	CreatedAt time.Time

	// Symbols is the interner table: Symbols[i] is the raw form of SymbolID i+1
	Symbols     []string
	Pretty      map[types.SymbolID]string
	Occurrences map[types.SymbolID][]types.Occurrence
	Files       []*File
	Degraded    []string
}

// IndexVersion is an immutable snapshot of the symbol table, all occurrences
// and all files. Nothing reachable from it is modified after construction, so
// any number of readers may use it without locking.
type IndexVersion struct {
	number    uint64
	buildID   string
	createdAt time.Time

	symbols     []string
	pretty      map[types.SymbolID]string
	occurrences map[types.SymbolID][]types.Occurrence
	live        []types.SymbolID // symbols with at least one occurrence, ascending
	byRaw       map[string]types.SymbolID

	files       map[string]*File
	paths       []string // sorted
	fileSymbols map[string]*roaring.Bitmap
	degraded    []string // sorted

	occurrenceCount int
	lineCount       int
}

// VersionStats summarizes a version for status reporting
type VersionStats struct {
	Number       uint64    `json:"version"`
	BuildID      string    `json:"build_id"`
	CreatedAt    time.Time `json:"created_at"`
	Files        int       `json:"files"`
	Lines        int       `json:"lines"`
	Symbols      int       `json:"symbols"`
	TableSize    int       `json:"symbol_table_size"`
	Occurrences  int       `json:"occurrences"`
	DegradedSize int       `json:"degraded_files"`
}

// NewIndexVersion seals data. Occurrence sets are sorted by the occurrence
// order and full-tuple duplicates collapse; symbols left without occurrences
// are dropped from lookup but keep their handle in the table.
func NewIndexVersion(d VersionData) *IndexVersion {
	v := &IndexVersion{
		number:      d.Number,
		buildID:     d.BuildID,
		createdAt:   d.CreatedAt,
		symbols:     d.Symbols,
		pretty:      make(map[types.SymbolID]string, len(d.Pretty)),
		occurrences: make(map[types.SymbolID][]types.Occurrence, len(d.Occurrences)),
		files:       make(map[string]*File, len(d.Files)),
		fileSymbols: make(map[string]*roaring.Bitmap, len(d.Files)),
		byRaw:       make(map[string]types.SymbolID, len(d.Occurrences)),
	}
	if v.createdAt.IsZero() {
		v.createdAt = time.Now()
	}

	for _, f := range d.Files {
		v.files[f.Path] = f
		v.lineCount += len(f.Lines)
	}
	v.paths = make([]string, 0, len(v.files))
	for p := range v.files {
		v.paths = append(v.paths, p)
	}
	sort.Strings(v.paths)

	for id, occs := range d.Occurrences {
		if len(occs) == 0 {
			continue
		}
		// sets carried over from an earlier version are already sorted and may
		// be shared with it, so they must not be written to
		if !slices.IsSortedFunc(occs, types.CompareOccurrences) {
			slices.SortFunc(occs, types.CompareOccurrences)
		}
		occs = slices.CompactFunc(occs, func(a, b types.Occurrence) bool {
			return a == b
		})
		v.occurrences[id] = occs
		v.live = append(v.live, id)
		if int(id) <= len(v.symbols) {
			v.byRaw[v.symbols[id-1]] = id
		}
		v.occurrenceCount += len(occs)

		if p, ok := d.Pretty[id]; ok && p != "" {
			v.pretty[id] = p
		}
		for _, o := range occs {
			bm := v.fileSymbols[o.Path]
			if bm == nil {
				bm = roaring.New()
				v.fileSymbols[o.Path] = bm
			}
			bm.Add(uint32(id))
		}
	}
	slices.Sort(v.live)
	for _, bm := range v.fileSymbols {
		bm.RunOptimize()
	}

	v.degraded = slices.Clone(d.Degraded)
	sort.Strings(v.degraded)
	v.degraded = slices.Compact(v.degraded)

	return v
}

// Number is the monotonically increasing version number assigned by the builder
func (v *IndexVersion) Number() uint64 { return v.number }

// BuildID identifies the build that produced this version
func (v *IndexVersion) BuildID() string { return v.buildID }

// CreatedAt is when the version was sealed
func (v *IndexVersion) CreatedAt() time.Time { return v.createdAt }

// SymbolTable returns the interner table backing this version. Read-only.
func (v *IndexVersion) SymbolTable() []string { return v.symbols }

// Resolve returns the raw identifier of id
func (v *IndexVersion) Resolve(id types.SymbolID) (string, bool) {
	if !id.IsValid() || int(id) > len(v.symbols) {
		return "", false
	}
	return v.symbols[id-1], true
}

// Pretty returns the pretty name reported by the analyzer, if any
func (v *IndexVersion) Pretty(id types.SymbolID) (string, bool) {
	p, ok := v.pretty[id]
	return p, ok
}

// DisplayName is the pretty name, falling back to the raw identifier
func (v *IndexVersion) DisplayName(id types.SymbolID) string {
	if p, ok := v.pretty[id]; ok {
		return p
	}
	raw, _ := v.Resolve(id)
	return raw
}

// Occurrences returns the ordered occurrence set of id. Read-only.
func (v *IndexVersion) Occurrences(id types.SymbolID) []types.Occurrence {
	return v.occurrences[id]
}

// Symbols returns every symbol that has at least one occurrence, in handle order. Read-only.
func (v *IndexVersion) Symbols() []types.SymbolID { return v.live }

// HasSymbol reports whether id has any occurrence in this version
func (v *IndexVersion) HasSymbol(id types.SymbolID) bool {
	_, ok := v.occurrences[id]
	return ok
}

// LookupRaw finds the handle of a raw identifier that has occurrences in this version
func (v *IndexVersion) LookupRaw(raw string) (types.SymbolID, bool) {
	id, ok := v.byRaw[raw]
	return id, ok
}

// File returns the ingested file at path
func (v *IndexVersion) File(path string) (*File, bool) {
	f, ok := v.files[path]
	return f, ok
}

// Paths returns all file paths in lexicographic order. Read-only.
func (v *IndexVersion) Paths() []string { return v.paths }

// Files returns all files in path order
func (v *IndexVersion) Files() []*File {
	out := make([]*File, len(v.paths))
	for i, p := range v.paths {
		out[i] = v.files[p]
	}
	return out
}

// FileSymbols returns the set of symbols occurring in path. Read-only; nil when the file has none.
func (v *IndexVersion) FileSymbols(path string) *roaring.Bitmap {
	return v.fileSymbols[path]
}

// PathsWithPrefix returns the sorted paths under dir (dir without trailing slash)
func (v *IndexVersion) PathsWithPrefix(dir string) []string {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	start := sort.SearchStrings(v.paths, prefix)
	end := start
	for end < len(v.paths) && strings.HasPrefix(v.paths[end], prefix) {
		end++
	}
	return v.paths[start:end]
}

// Degraded lists files whose shard failed in the build that produced this version
func (v *IndexVersion) Degraded() []string { return v.degraded }

// Stats summarizes the version
func (v *IndexVersion) Stats() VersionStats {
	return VersionStats{
		Number:       v.number,
		BuildID:      v.buildID,
		CreatedAt:    v.createdAt,
		Files:        len(v.files),
		Lines:        v.lineCount,
		Symbols:      len(v.live),
		TableSize:    len(v.symbols),
		Occurrences:  v.occurrenceCount,
		DegradedSize: len(v.degraded),
	}
}
