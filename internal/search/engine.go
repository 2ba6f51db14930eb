// Package search evaluates queries against a sealed IndexVersion. Symbol
// names are matched first; only when no symbol matches are file lines
// scanned. Results are grouped per file in path order.
package search

import (
	"sort"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/standardbeagle/xref/internal/config"
	"github.com/standardbeagle/xref/internal/core"
	"github.com/standardbeagle/xref/internal/debug"
	xreferrors "github.com/standardbeagle/xref/internal/errors"
	"github.com/standardbeagle/xref/internal/types"
)

// Options bounds result sizes and controls the evaluation cache
type Options struct {
	MaxGroups          int // 0 means unbounded
	MaxSnippetsPerFile int // 0 means unbounded
	CacheSize          int // 0 disables the cache
	Suggestions        bool
	MaxSuggestions     int
}

// OptionsFromConfig copies the search section of the configuration
func OptionsFromConfig(c config.Search) Options {
	return Options{
		MaxGroups:          c.MaxGroups,
		MaxSnippetsPerFile: c.MaxSnippetsPerFile,
		CacheSize:          c.CacheSize,
		Suggestions:        c.Suggestions,
		MaxSuggestions:     c.MaxSuggestions,
	}
}

// DefaultOptions matches the configuration defaults
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default("").Search)
}

// cacheKey identifies an evaluation; a version is named by its number and
// the build that produced it
type cacheKey struct {
	version uint64
	buildID string
	spec    string
}

// evaluation is the cached outcome of one query against one version.
// It is shared between callers and never modified.
type evaluation struct {
	source     types.MatchSource
	symbols    int // matched symbols, symbol mode only
	groups     []types.ResultGroup
	totalFiles int
	totalLines int
	truncated  bool
	sections   []Section
}

// Engine evaluates queries. It is safe for concurrent use; evaluation takes
// no locks beyond the cache's own.
type Engine struct {
	store *core.Store
	opts  Options
	cache *lru.Cache[cacheKey, *evaluation]

	unsubscribe func()
	hits        atomic.Int64
	misses      atomic.Int64
}

// NewEngine creates an engine reading store. The cache is emptied whenever
// a new version is published. store may be nil when only Evaluate is used.
func NewEngine(store *core.Store, opts Options) *Engine {
	e := &Engine{store: store, opts: opts}
	if opts.CacheSize > 0 {
		// only fails for a non-positive size
		e.cache, _ = lru.New[cacheKey, *evaluation](opts.CacheSize)
	}
	if store != nil && e.cache != nil {
		e.unsubscribe = store.Subscribe(func(*core.IndexVersion) {
			e.cache.Purge()
		})
	}
	return e
}

// Close detaches the engine from its store
func (e *Engine) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}

// Options returns the engine's limits
func (e *Engine) Options() Options { return e.opts }

// Evaluate runs spec against v and returns the bounded result groups in path
// order. The returned groups are shared with the cache and must not be modified.
func (e *Engine) Evaluate(spec types.QuerySpec, v *core.IndexVersion) ([]types.ResultGroup, error) {
	ev, err := e.evaluate(spec, v)
	if err != nil {
		return nil, err
	}
	return ev.groups, nil
}

func (e *Engine) evaluate(spec types.QuerySpec, v *core.IndexVersion) (*evaluation, error) {
	if v == nil {
		return nil, xreferrors.ErrIndexUnavailable
	}
	if spec.IsEmpty() {
		return &evaluation{source: types.MatchSourceNone}, nil
	}

	key := cacheKey{version: v.Number(), buildID: v.BuildID(), spec: spec.Encode()}
	if e.cache != nil {
		if ev, ok := e.cache.Get(key); ok {
			e.hits.Add(1)
			return ev, nil
		}
	}
	e.misses.Add(1)

	m, err := newMatcher(spec)
	if err != nil {
		return nil, err
	}
	filter, err := newPathFilter(spec.PathFilter)
	if err != nil {
		return nil, err
	}

	ev := &evaluation{source: types.MatchSourceSymbol}
	var hits map[string][]hit
	ev.symbols, hits = symbolHits(v, m, filter)
	if ev.symbols == 0 {
		ev.source = types.MatchSourceFullText
		hits = textHits(v, m, filter)
	}
	e.group(ev, v, hits)

	debug.LogQuery("query %s on version %d: %s mode, %d symbols, %d files, %d lines\n",
		key.spec, v.Number(), ev.source, ev.symbols, ev.totalFiles, ev.totalLines)

	if e.cache != nil {
		e.cache.Add(key, ev)
	}
	return ev, nil
}

// hit is one match inside a file
type hit struct {
	line   int
	column int
	symbol string // display name; empty for text matches
	kind   types.OccurrenceKind
}

// symbolHits collects the occurrences of every symbol whose display name
// matches. It returns the number of matched symbols, counted before the path
// filter so that a filtered-out symbol still suppresses the text fallback.
func symbolHits(v *core.IndexVersion, m *matcher, filter pathFilter) (int, map[string][]hit) {
	matched := 0
	hits := make(map[string][]hit)
	for _, id := range v.Symbols() {
		name := v.DisplayName(id)
		if !m.match(name) {
			continue
		}
		matched++
		for _, o := range v.Occurrences(id) {
			if !filter.accept(o.Path) {
				continue
			}
			hits[o.Path] = append(hits[o.Path], hit{line: o.Line, column: o.Column, symbol: name, kind: o.Kind})
		}
	}
	return matched, hits
}

// textHits scans every line of every file that passes the filter
func textHits(v *core.IndexVersion, m *matcher, filter pathFilter) map[string][]hit {
	hits := make(map[string][]hit)
	for _, p := range v.Paths() {
		if !filter.accept(p) {
			continue
		}
		f, _ := v.File(p)
		for i, line := range f.Lines {
			if col := m.index(line); col >= 0 {
				hits[p] = append(hits[p], hit{line: i + 1, column: col})
			}
		}
	}
	return hits
}

// group turns hits into path-ordered groups, one snippet per distinct line,
// and applies the result bounds. Counts and sections cover every group.
func (e *Engine) group(ev *evaluation, v *core.IndexVersion, hits map[string][]hit) {
	paths := make([]string, 0, len(hits))
	for p := range hits {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	all := make([]types.ResultGroup, 0, len(paths))
	for _, p := range paths {
		g := buildGroup(v, p, hits[p], ev.source == types.MatchSourceSymbol)
		ev.totalLines += g.MatchedLineCount
		all = append(all, g)
	}
	ev.totalFiles = len(all)
	ev.sections = Sections(all)

	if limit := e.opts.MaxGroups; limit > 0 && len(all) > limit {
		all = all[:limit]
		ev.truncated = true
	}
	if limit := e.opts.MaxSnippetsPerFile; limit > 0 {
		for i := range all {
			if len(all[i].Snippets) > limit {
				all[i].Snippets = all[i].Snippets[:limit]
				all[i].Truncated = true
				ev.truncated = true
			}
		}
	}
	ev.groups = all
}

func buildGroup(v *core.IndexVersion, p string, hs []hit, withSymbols bool) types.ResultGroup {
	sort.Slice(hs, func(i, j int) bool {
		if hs[i].line != hs[j].line {
			return hs[i].line < hs[j].line
		}
		if hs[i].column != hs[j].column {
			return hs[i].column < hs[j].column
		}
		if hs[i].kind != hs[j].kind {
			return hs[i].kind < hs[j].kind
		}
		return hs[i].symbol < hs[j].symbol
	})

	f, _ := v.File(p)
	g := types.ResultGroup{Path: p}
	if f != nil {
		g.PathKind = f.Kind
	}

	for i := 0; i < len(hs); {
		j := i
		for j < len(hs) && hs[j].line == hs[i].line {
			j++
		}
		s := types.SnippetLine{Line: hs[i].line, Column: hs[i].column}
		if f != nil {
			s.Text = f.Line(s.Line)
		}
		if withSymbols {
			s.Symbols, s.Kinds = lineSymbols(hs[i:j])
		}
		g.Snippets = append(g.Snippets, s)
		i = j
	}
	g.MatchedLineCount = len(g.Snippets)
	return g
}

// lineSymbols returns the distinct names and kinds of one line's hits
func lineSymbols(hs []hit) ([]string, []string) {
	var names []string
	seen := make(map[string]bool, len(hs))
	var kinds [4]bool
	for _, h := range hs {
		if !seen[h.symbol] {
			seen[h.symbol] = true
			names = append(names, h.symbol)
		}
		if h.kind.Valid() {
			kinds[h.kind] = true
		}
	}
	sort.Strings(names)

	var out []string
	for k, ok := range kinds {
		if ok {
			out = append(out, types.OccurrenceKind(k).String())
		}
	}
	return names, out
}

// CacheStats reports the evaluation cache
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
	Size    int   `json:"size"`
}

// CacheStats returns hit and miss counters
func (e *Engine) CacheStats() CacheStats {
	s := CacheStats{Hits: e.hits.Load(), Misses: e.misses.Load(), Size: e.opts.CacheSize}
	if e.cache != nil {
		s.Entries = e.cache.Len()
	}
	return s
}
