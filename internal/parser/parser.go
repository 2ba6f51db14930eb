// Package parser is the in-process reference analyzer. It parses source files
// with tree-sitter and emits definition, declaration, assignment and use
// records for every identifier it finds.
package parser

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/xref/internal/debug"
	"github.com/standardbeagle/xref/internal/types"
)

// compiled is a grammar whose language and query have been loaded
type compiled struct {
	grammar
	once       sync.Once
	language   *tree_sitter.Language
	query      *tree_sitter.Query
	identKinds map[string]bool
}

// TreeSitterAnalyzer produces records for the languages in grammars.
// Grammars are loaded lazily on first use; queries are shared between
// goroutines and parsers are created per file.
type TreeSitterAnalyzer struct {
	byExt map[string]*compiled
}

// NewTreeSitterAnalyzer creates an analyzer for all supported grammars
func NewTreeSitterAnalyzer() *TreeSitterAnalyzer {
	a := &TreeSitterAnalyzer{byExt: make(map[string]*compiled)}
	for _, g := range grammars {
		c := &compiled{grammar: g}
		for _, ext := range g.extensions {
			a.byExt[ext] = c
		}
	}
	return a
}

// SymbolName is the language-scoped raw identifier for name
func SymbolName(lang types.Language, name string) string {
	return string(lang) + ":" + name
}

// Supports reports whether path has a grammar
func (a *TreeSitterAnalyzer) Supports(filePath string) bool {
	_, ok := a.byExt[strings.ToLower(path.Ext(filePath))]
	return ok
}

// Extensions lists the supported file extensions in sorted order
func (a *TreeSitterAnalyzer) Extensions() []string {
	exts := make([]string, 0, len(a.byExt))
	for ext := range a.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func (c *compiled) load() {
	c.once.Do(func() {
		c.language = tree_sitter.NewLanguage(c.grammar.tsLanguage())
		c.query = compileQuery(c.grammar, c.language)
		c.identKinds = make(map[string]bool, len(c.grammar.identKinds))
		for _, k := range c.grammar.identKinds {
			c.identKinds[k] = true
		}
		if c.query == nil {
			debug.LogBuild("tree-sitter %s: no usable query, reporting uses only\n", c.lang)
		}
	})
}

// AnalyzeFile returns the records for one file. Files without a grammar have
// no records, which still lets them be indexed for full-text search.
// It has the analyzer.FileFunc signature.
func (a *TreeSitterAnalyzer) AnalyzeFile(filePath string, content []byte) (records []types.Record, err error) {
	c, ok := a.byExt[strings.ToLower(path.Ext(filePath))]
	if !ok {
		return nil, nil
	}
	c.load()

	// the C library must never take the process down with it
	defer func() {
		if r := recover(); r != nil {
			debug.LogBuild("TREE-SITTER PANIC in file %s: %v\n", filePath, r)
			records, err = nil, fmt.Errorf("tree-sitter panic: %v", r)
		}
	}()

	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(c.language); err != nil {
		return nil, fmt.Errorf("set %s grammar: %w", c.lang, err)
	}

	// tree-sitter may touch the buffer it parses, so it gets its own copy
	buf := make([]byte, len(content))
	copy(buf, content)

	tree := parser.Parse(buf, nil)
	if tree == nil {
		return nil, fmt.Errorf("tree-sitter failed to parse %s", filePath)
	}
	defer tree.Close()

	claimed := c.capture(tree.RootNode(), buf)
	return c.collect(tree.RootNode(), buf, claimed), nil
}

// capture runs the query and returns the kind claimed for each identifier,
// keyed by start byte. When two patterns claim the same identifier the lower
// kind wins, so a definition beats an assignment.
func (c *compiled) capture(root *tree_sitter.Node, content []byte) map[uint]types.OccurrenceKind {
	claimed := make(map[uint]types.OccurrenceKind)
	if c.query == nil {
		return claimed
	}

	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()
	names := c.query.CaptureNames()

	matches := qc.Matches(c.query, root, content)
	for {
		match := matches.Next()
		if match == nil {
			break
		}
		for _, capture := range match.Captures {
			kind, ok := captureKinds[names[capture.Index]]
			if !ok {
				continue
			}
			start := capture.Node.StartByte()
			if prev, seen := claimed[start]; !seen || kind < prev {
				claimed[start] = kind
			}
		}
	}
	return claimed
}

// collect walks every identifier of the tree in document order
func (c *compiled) collect(root *tree_sitter.Node, content []byte, claimed map[uint]types.OccurrenceKind) []types.Record {
	var records []types.Record
	var visit func(node *tree_sitter.Node)
	visit = func(node *tree_sitter.Node) {
		if node == nil {
			return
		}
		if c.identKinds[node.Kind()] && !node.IsMissing() && node.EndByte() > node.StartByte() {
			kind, ok := claimed[node.StartByte()]
			if !ok {
				kind = types.KindUse
			}
			records = append(records, c.record(node, content, kind))
		}
		for i := uint(0); i < node.ChildCount(); i++ {
			visit(node.Child(i))
		}
	}
	visit(root)
	return records
}

func (c *compiled) record(node *tree_sitter.Node, content []byte, kind types.OccurrenceKind) types.Record {
	name := string(content[node.StartByte():node.EndByte()])
	start := node.StartPosition()
	end := node.EndPosition()

	r := types.Record{
		Symbol: SymbolName(c.lang, name),
		Pretty: name,
		Kind:   kind,
		Line:   int(start.Row) + 1,
		Column: int(start.Column),
	}
	if end.Row == start.Row {
		r.EndColumn = int(end.Column)
	}
	return r
}
