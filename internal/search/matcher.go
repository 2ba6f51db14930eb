package search

import (
	"path"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	xreferrors "github.com/standardbeagle/xref/internal/errors"
	"github.com/standardbeagle/xref/internal/types"
)

// matcher tests names and lines against the query pattern
type matcher struct {
	re      *regexp.Regexp
	literal string
}

func newMatcher(spec types.QuerySpec) (*matcher, error) {
	if spec.Regex {
		expr := spec.Pattern
		if !spec.CaseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, xreferrors.NewInvalidPatternError(spec.Pattern, err)
		}
		return &matcher{re: re}, nil
	}
	if spec.CaseSensitive {
		return &matcher{literal: spec.Pattern}, nil
	}
	// folding through the regexp engine keeps offsets in the original line
	return &matcher{re: regexp.MustCompile("(?i)" + regexp.QuoteMeta(spec.Pattern))}, nil
}

// index returns the byte offset of the first match in s, or -1
func (m *matcher) index(s string) int {
	if m.re != nil {
		loc := m.re.FindStringIndex(s)
		if loc == nil {
			return -1
		}
		return loc[0]
	}
	return strings.Index(s, m.literal)
}

func (m *matcher) match(s string) bool { return m.index(s) >= 0 }

// pathFilter decides which file paths survive the query's path filter.
// "re:<expr>" is a regular expression searched anywhere in the path; a filter
// holding any of *?[{ is a doublestar glob, matched against the full path or,
// when it has no slash, against the base name; anything else is a substring.
type pathFilter func(p string) bool

func newPathFilter(filter string) (pathFilter, error) {
	switch {
	case filter == "":
		return nil, nil

	case strings.HasPrefix(filter, "re:"):
		re, err := regexp.Compile(strings.TrimPrefix(filter, "re:"))
		if err != nil {
			return nil, xreferrors.NewInvalidPatternError(filter, err)
		}
		return re.MatchString, nil

	case strings.ContainsAny(filter, "*?[{"):
		if !doublestar.ValidatePattern(filter) {
			return nil, xreferrors.NewInvalidPatternError(filter, doublestar.ErrBadPattern)
		}
		baseOnly := !strings.Contains(filter, "/")
		return func(p string) bool {
			if ok, _ := doublestar.Match(filter, p); ok {
				return true
			}
			if baseOnly {
				ok, _ := doublestar.Match(filter, path.Base(p))
				return ok
			}
			return false
		}, nil
	}
	return func(p string) bool { return strings.Contains(p, filter) }, nil
}

func (f pathFilter) accept(p string) bool { return f == nil || f(p) }
