package indexing

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/xref/internal/core"
	"github.com/standardbeagle/xref/internal/debug"
	xreferrors "github.com/standardbeagle/xref/internal/errors"
	"github.com/standardbeagle/xref/internal/intern"
	"github.com/standardbeagle/xref/internal/types"
)

// stripeCount must stay a power of two
const stripeCount = 64

type occurrenceSet map[types.Occurrence]struct{}

// prettyName remembers which record supplied a symbol's display name so the
// choice does not depend on arrival order: the lowest kind wins, then the
// lexicographically smallest name.
type prettyName struct {
	name string
	kind types.OccurrenceKind
}

func (p prettyName) beats(o prettyName) bool {
	if p.kind != o.kind {
		return p.kind < o.kind
	}
	return p.name < o.name
}

// symbolStripe owns the occurrence sets of every symbol whose handle falls on it.
// Sets inherited from the base version stay shared until first written.
type symbolStripe struct {
	mu     sync.Mutex
	sets   map[types.SymbolID]occurrenceSet
	shared map[types.SymbolID][]types.Occurrence
	pretty map[types.SymbolID]prettyName
}

// set returns the writable set of id, copying the shared base slice on first use
func (s *symbolStripe) set(id types.SymbolID) occurrenceSet {
	if set, ok := s.sets[id]; ok {
		return set
	}
	base := s.shared[id]
	set := make(occurrenceSet, len(base)+1)
	for _, o := range base {
		set[o] = struct{}{}
	}
	delete(s.shared, id)
	s.sets[id] = set
	return set
}

// pathEntry is what the working index knows about one file
type pathEntry struct {
	file *core.File
	occs []types.Occurrence // contributed by this merger, when fromBase is false
	// fromBase means the file's occurrences still come from the base version
	// and are found through its per-file symbol bitmap
	fromBase bool
}

type pathStripe struct {
	mu    sync.Mutex
	files map[string]*pathEntry
}

// MergeStats summarizes one Add call
type MergeStats struct {
	Files       int
	Records     int
	Occurrences int
	Duplicates  int
	Replaced    int // files whose earlier occurrences were removed first
	Rejected    int
	Errors      []error
}

// SealMeta carries the build metadata stamped on a sealed version
type SealMeta struct {
	Number    uint64
	BuildID   string
	CreatedAt time.Time
	Degraded  []string
}

// Merger folds shard batches into a working cross-reference index.
// Add may be called concurrently and in any order; for a given set of batches
// the sealed result is always the same.
type Merger struct {
	interner   *intern.Interner
	base       *core.IndexVersion
	classifier *core.PathClassifier

	symbols [stripeCount]symbolStripe
	paths   [stripeCount]pathStripe
}

// NewMerger creates a merger. With a non-nil base, the working index starts
// as a copy-on-write view of base: symbols untouched by later batches are
// shared with it rather than copied.
func NewMerger(in *intern.Interner, base *core.IndexVersion) *Merger {
	m := &Merger{interner: in, base: base}
	for i := range m.symbols {
		m.symbols[i].sets = make(map[types.SymbolID]occurrenceSet)
		m.symbols[i].shared = make(map[types.SymbolID][]types.Occurrence)
		m.symbols[i].pretty = make(map[types.SymbolID]prettyName)
	}
	for i := range m.paths {
		m.paths[i].files = make(map[string]*pathEntry)
	}
	if base == nil {
		return m
	}

	for _, id := range base.Symbols() {
		st := m.symbolStripe(id)
		st.shared[id] = base.Occurrences(id)
		if p, ok := base.Pretty(id); ok {
			st.pretty[id] = prettyName{name: p, kind: types.KindAssignment}
		}
	}
	for _, f := range base.Files() {
		m.pathStripe(f.Path).files[f.Path] = &pathEntry{file: f, fromBase: true}
	}
	return m
}

// WithClassifier sets the classifier used to assign path kinds to new files
func (m *Merger) WithClassifier(pc *core.PathClassifier) *Merger {
	m.classifier = pc
	return m
}

func (m *Merger) symbolStripe(id types.SymbolID) *symbolStripe {
	return &m.symbols[uint32(id)&(stripeCount-1)]
}

func (m *Merger) pathStripe(p string) *pathStripe {
	return &m.paths[xxhash.Sum64String(p)&(stripeCount-1)]
}

// Add merges every file of batch. Each file's previous occurrences are
// removed before its new records are inserted, so adding the same batch
// twice leaves the index unchanged. Malformed records are skipped and counted.
func (m *Merger) Add(batch types.ShardBatch) MergeStats {
	var stats MergeStats
	for _, fr := range batch.Files {
		m.addFile(batch.Shard, fr, &stats)
	}
	debug.LogMerge("shard %d/%d: %d files, %d records, %d occurrences, %d duplicates, %d rejected\n",
		batch.Shard.Index, batch.Shard.Count, stats.Files, stats.Records, stats.Occurrences, stats.Duplicates, stats.Rejected)
	return stats
}

func (m *Merger) addFile(shard types.ShardKey, fr types.FileRecords, stats *MergeStats) {
	ps := m.pathStripe(fr.Path)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	stats.Files++
	if prev, ok := ps.files[fr.Path]; ok {
		m.removeOccurrences(fr.Path, prev)
		stats.Replaced++
	}

	// dedupe within the file first so that removal later is exact
	seen := make(map[types.Occurrence]struct{}, len(fr.Records))
	occs := make([]types.Occurrence, 0, len(fr.Records))
	pretty := make(map[types.SymbolID]prettyName)

	for _, r := range fr.Records {
		stats.Records++
		if reason := ValidateRecord(r, fr.Path); reason != "" {
			stats.Rejected++
			stats.Errors = append(stats.Errors, xreferrors.NewRecordError(shard, fr.Path, r.Line, reason))
			continue
		}

		id := m.interner.Intern(r.Symbol)
		o := types.Occurrence{
			Symbol:    id,
			Path:      fr.Path,
			Line:      r.Line,
			Column:    r.Column,
			EndColumn: r.EndColumn,
			Kind:      r.Kind,
		}
		if _, dup := seen[o]; dup {
			stats.Duplicates++
			continue
		}
		seen[o] = struct{}{}
		occs = append(occs, o)

		if r.Pretty != "" {
			cand := prettyName{name: r.Pretty, kind: r.Kind}
			if cur, ok := pretty[id]; !ok || cand.beats(cur) {
				pretty[id] = cand
			}
		}
	}

	for _, o := range occs {
		st := m.symbolStripe(o.Symbol)
		st.mu.Lock()
		st.set(o.Symbol)[o] = struct{}{}
		if cand, ok := pretty[o.Symbol]; ok {
			if cur, ok := st.pretty[o.Symbol]; !ok || cand.beats(cur) {
				st.pretty[o.Symbol] = cand
			}
		}
		st.mu.Unlock()
	}
	stats.Occurrences += len(occs)

	ps.files[fr.Path] = &pathEntry{
		file: core.NewFile(fr.Path, fr.Content, m.classifier.Classify(fr.Path)),
		occs: occs,
	}
}

// removeOccurrences deletes every occurrence entry contributed for path.
// The caller holds the path's stripe lock.
func (m *Merger) removeOccurrences(path string, entry *pathEntry) {
	if !entry.fromBase {
		for _, o := range entry.occs {
			st := m.symbolStripe(o.Symbol)
			st.mu.Lock()
			delete(st.set(o.Symbol), o)
			st.mu.Unlock()
		}
		return
	}

	bm := m.base.FileSymbols(path)
	if bm == nil {
		return
	}
	it := bm.Iterator()
	for it.HasNext() {
		id := types.SymbolID(it.Next())
		st := m.symbolStripe(id)
		st.mu.Lock()
		set := st.set(id)
		for o := range set {
			if o.Path == path {
				delete(set, o)
			}
		}
		st.mu.Unlock()
	}
}

// RemoveFile drops path and all its occurrences. It reports whether the path was known.
func (m *Merger) RemoveFile(path string) bool {
	ps := m.pathStripe(path)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	entry, ok := ps.files[path]
	if !ok {
		return false
	}
	m.removeOccurrences(path, entry)
	delete(ps.files, path)
	debug.LogMerge("removed %s\n", path)
	return true
}

// HasFile reports whether path is part of the working index
func (m *Merger) HasFile(path string) bool {
	ps := m.pathStripe(path)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	_, ok := ps.files[path]
	return ok
}

// Seal freezes the working index into an immutable IndexVersion. The merger
// must not be used afterwards.
func (m *Merger) Seal(meta SealMeta) *core.IndexVersion {
	d := core.VersionData{
		Number:      meta.Number,
		BuildID:     meta.BuildID,
		CreatedAt:   meta.CreatedAt,
		Symbols:     m.interner.Table(),
		Pretty:      make(map[types.SymbolID]string),
		Occurrences: make(map[types.SymbolID][]types.Occurrence),
		Degraded:    meta.Degraded,
	}

	for i := range m.symbols {
		st := &m.symbols[i]
		st.mu.Lock()
		for id, occs := range st.shared {
			if len(occs) > 0 {
				d.Occurrences[id] = occs
			}
		}
		for id, set := range st.sets {
			if len(set) == 0 {
				continue
			}
			occs := make([]types.Occurrence, 0, len(set))
			for o := range set {
				occs = append(occs, o)
			}
			d.Occurrences[id] = occs
		}
		for id, p := range st.pretty {
			if _, live := d.Occurrences[id]; live {
				d.Pretty[id] = p.name
			}
		}
		st.mu.Unlock()
	}

	for i := range m.paths {
		ps := &m.paths[i]
		ps.mu.Lock()
		for _, e := range ps.files {
			d.Files = append(d.Files, e.file)
		}
		ps.mu.Unlock()
	}

	v := core.NewIndexVersion(d)
	debug.LogMerge("sealed version %d: %d files, %d symbols\n", meta.Number, len(d.Files), len(d.Occurrences))
	return v
}
