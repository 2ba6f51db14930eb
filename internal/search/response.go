package search

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hbollon/go-edlib"

	"github.com/standardbeagle/xref/internal/core"
	"github.com/standardbeagle/xref/internal/types"
)

// suggestionThreshold is the minimum Jaro-Winkler similarity of a suggestion
const suggestionThreshold = 0.8

// Response is a query answered against the current version
type Response struct {
	Query       types.QuerySpec     `json:"query"`
	Encoded     string              `json:"encoded"`
	Version     uint64              `json:"version"`
	BuildID     string              `json:"build_id"`
	Source      types.MatchSource   `json:"source"`
	Symbols     int                 `json:"matched_symbols"`
	Groups      []types.ResultGroup `json:"results"`
	TotalFiles  int                 `json:"total_files"`
	TotalLines  int                 `json:"total_lines"`
	Truncated   bool                `json:"truncated,omitempty"`
	Sections    []Section           `json:"sections,omitempty"`
	Suggestions []string            `json:"suggestions,omitempty"`
	Degraded    int                 `json:"degraded_files,omitempty"`
	Elapsed     time.Duration       `json:"elapsed_ns"`
}

// Empty reports the defined "no results for current query" state
func (r *Response) Empty() bool { return r.TotalFiles == 0 }

// Summary renders the result header line
func (r *Response) Summary() string {
	if r.Empty() {
		return "No results for current query."
	}
	return fmt.Sprintf("%d lines matched in %d files", r.TotalLines, r.TotalFiles)
}

// Search evaluates spec against the store's current version. It fails with
// ErrIndexUnavailable until something was published.
func (e *Engine) Search(spec types.QuerySpec) (*Response, error) {
	start := time.Now()
	v, err := e.store.Snapshot()
	if err != nil {
		return nil, err
	}
	return e.SearchVersion(spec, v, start)
}

// SearchVersion answers spec against a specific version
func (e *Engine) SearchVersion(spec types.QuerySpec, v *core.IndexVersion, start time.Time) (*Response, error) {
	ev, err := e.evaluate(spec, v)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Query:      spec,
		Encoded:    spec.Encode(),
		Version:    v.Number(),
		BuildID:    v.BuildID(),
		Source:     ev.source,
		Symbols:    ev.symbols,
		Groups:     ev.groups,
		TotalFiles: ev.totalFiles,
		TotalLines: ev.totalLines,
		Truncated:  ev.truncated,
		Sections:   ev.sections,
		Degraded:   len(v.Degraded()),
	}
	if resp.Groups == nil {
		resp.Groups = []types.ResultGroup{}
	}
	if resp.Empty() && !spec.Regex && !spec.IsEmpty() && e.opts.Suggestions {
		resp.Suggestions = Suggest(v, spec.Pattern, e.opts.MaxSuggestions)
	}
	resp.Elapsed = time.Since(start)
	return resp, nil
}

// Section summarizes the results of one path kind
type Section struct {
	Kind  types.PathKind `json:"kind"`
	Title string         `json:"title"`
	Files int            `json:"files"`
	Lines int            `json:"lines"`
}

// String renders the heading, e.g. "Core code (12 lines)"
func (s Section) String() string {
	return fmt.Sprintf("%s (%d lines)", s.Title, s.Lines)
}

// Sections totals groups per path kind, in kind order, skipping empty kinds
func Sections(groups []types.ResultGroup) []Section {
	kinds := []types.PathKind{types.PathKindNormal, types.PathKindTest, types.PathKindGenerated, types.PathKindThirdParty}
	var out []Section
	for _, k := range kinds {
		s := Section{Kind: k, Title: k.Title()}
		for _, g := range groups {
			if g.PathKind == k {
				s.Files++
				s.Lines += g.MatchedLineCount
			}
		}
		if s.Files > 0 {
			out = append(out, s)
		}
	}
	return out
}

// Suggest returns up to limit symbol names similar to pattern, most similar
// first. Comparison ignores case.
func Suggest(v *core.IndexVersion, pattern string, limit int) []string {
	if limit <= 0 || pattern == "" {
		return nil
	}
	type candidate struct {
		name  string
		score float32
	}
	lower := strings.ToLower(pattern)
	seen := make(map[string]bool)
	var candidates []candidate
	for _, id := range v.Symbols() {
		name := v.DisplayName(id)
		if seen[name] {
			continue
		}
		seen[name] = true
		score, err := edlib.StringsSimilarity(lower, strings.ToLower(name), edlib.JaroWinkler)
		if err != nil || score < suggestionThreshold {
			continue
		}
		candidates = append(candidates, candidate{name, score})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].name < candidates[j].name
	})

	out := make([]string, 0, min(limit, len(candidates)))
	for _, c := range candidates[:min(limit, len(candidates))] {
		out = append(out, c.name)
	}
	return out
}
