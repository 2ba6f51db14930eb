package types

import (
	"net/url"
	"strconv"
	"strings"
)

// QuerySpec is the structured representation of a user's search request.
type QuerySpec struct {
	Pattern       string `json:"pattern"`
	CaseSensitive bool   `json:"case_sensitive"`
	Regex         bool   `json:"regex"`
	PathFilter    string `json:"path,omitempty"`
}

// IsEmpty reports whether the query can match anything at all
func (q QuerySpec) IsEmpty() bool { return q.Pattern == "" }

// Encode renders the query string form "q=..&path=..&case=..&regex=..".
// Every field is always present so the form is canonical.
func (q QuerySpec) Encode() string {
	var b strings.Builder
	b.WriteString("q=")
	b.WriteString(url.QueryEscape(q.Pattern))
	b.WriteString("&path=")
	b.WriteString(url.QueryEscape(q.PathFilter))
	b.WriteString("&case=")
	b.WriteString(strconv.FormatBool(q.CaseSensitive))
	b.WriteString("&regex=")
	b.WriteString(strconv.FormatBool(q.Regex))
	return b.String()
}

// SnippetLine is one matched source line inside a ResultGroup
type SnippetLine struct {
	Line    int      `json:"line"`
	Column  int      `json:"column"`
	Text    string   `json:"text"`
	Symbols []string `json:"symbols,omitempty"` // display names of symbols matched on this line
	Kinds   []string `json:"kinds,omitempty"`   // occurrence kinds on this line, in kind order
}

// ResultGroup holds every match of a query inside one file
type ResultGroup struct {
	Path             string        `json:"filePath"`
	PathKind         PathKind      `json:"pathKind"`
	MatchedLineCount int           `json:"matchedLineCount"`
	Snippets         []SnippetLine `json:"snippetLines"`
	Truncated        bool          `json:"truncated,omitempty"`
}

// MatchSource says how a result set was produced
type MatchSource string

const (
	MatchSourceNone     MatchSource = "none"
	MatchSourceSymbol   MatchSource = "symbol"
	MatchSourceFullText MatchSource = "text"
)
