package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/xref/internal/config"
	"github.com/standardbeagle/xref/internal/core"
	"github.com/standardbeagle/xref/internal/indexing"
	"github.com/standardbeagle/xref/internal/ledger"
	"github.com/standardbeagle/xref/internal/search"
)

const calcSource = "package calc\n\nfunc Add(a, b int) int { return a + b }\n\nfunc Twice(x int) int { return Add(x, x) }\n"

func newTestServer(t *testing.T, build bool) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "calc.go"), []byte(calcSource), 0o644))

	cfg := config.Default(root)
	cfg.Build.Workers = 1
	cfg.Build.Persist = false

	store := core.NewStore()
	builder := indexing.NewBuilder(cfg, store, nil)
	engine := search.NewEngine(store, search.OptionsFromConfig(cfg.Search))
	s := NewServer(cfg, store, builder, engine)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, s.Shutdown(ctx))
		engine.Close()
	})

	if build {
		_, err := builder.Build(context.Background(), indexing.BuildOptions{})
		require.NoError(t, err)
	}
	return s, root
}

func call(t *testing.T, handler func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error), args any) *mcp.CallToolResult {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	result, err := handler(context.Background(), &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Arguments: raw},
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func decode[T any](t *testing.T, result *mcp.CallToolResult) T {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	var out T
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

type errorResult struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Operation string `json:"operation"`
}

func TestSearchTool(t *testing.T) {
	s, _ := newTestServer(t, true)

	result := call(t, s.handleSearch, SearchParams{Pattern: "add"})
	require.False(t, result.IsError)
	out := decode[SearchResult](t, result)
	require.NotNil(t, out.Response)
	assert.Equal(t, 1, out.TotalFiles)
	require.Len(t, out.Groups, 1)
	assert.Equal(t, "calc.go", out.Groups[0].Path)
	assert.Equal(t, out.Response.Summary(), out.Summary)

	// case sensitive: no symbol named "add" and no such text
	result = call(t, s.handleSearch, SearchParams{Pattern: "add", CaseSensitive: true})
	out = decode[SearchResult](t, result)
	assert.Equal(t, "No results for current query.", out.Summary)
	assert.NotNil(t, out.Groups)
}

func TestSearchToolEncodedQuery(t *testing.T) {
	s, _ := newTestServer(t, true)

	result := call(t, s.handleSearch, SearchParams{Pattern: "ignored", Query: "q=Twice&case=true"})
	out := decode[SearchResult](t, result)
	assert.Equal(t, "Twice", out.Query.Pattern)
	assert.True(t, out.Query.CaseSensitive)
	assert.Equal(t, 1, out.TotalFiles)
}

func TestSearchToolErrors(t *testing.T) {
	s, _ := newTestServer(t, false)

	result := call(t, s.handleSearch, SearchParams{Pattern: "Add"})
	assert.True(t, result.IsError)
	e := decode[errorResult](t, result)
	assert.Equal(t, "search", e.Operation)
	assert.Contains(t, e.Error, "unavailable")

	_, err := s.builder.Build(context.Background(), indexing.BuildOptions{})
	require.NoError(t, err)

	result = call(t, s.handleSearch, SearchParams{Pattern: "(", Regex: true})
	assert.True(t, result.IsError)

	result = call(t, s.handleSearch, SearchParams{Query: "q=Add&regex=sometimes"})
	assert.True(t, result.IsError)
}

func TestSymbolTool(t *testing.T) {
	s, _ := newTestServer(t, true)

	out := decode[SymbolResult](t, call(t, s.handleSymbol, SymbolParams{Name: "go:Add"}))
	require.Len(t, out.Symbols, 1)
	sym := out.Symbols[0]
	assert.Equal(t, "go:Add", sym.Raw)
	assert.Equal(t, 1, sym.Files)
	assert.Equal(t, 1, sym.Kinds["definition"])
	assert.Len(t, sym.Locations, 2)

	out = decode[SymbolResult](t, call(t, s.handleSymbol, SymbolParams{Name: "Twic"}))
	assert.Empty(t, out.Symbols)
	assert.Contains(t, out.Suggestions, "Twice")

	result := call(t, s.handleSymbol, SymbolParams{})
	assert.True(t, result.IsError)
}

func TestIndexStatusTool(t *testing.T) {
	s, _ := newTestServer(t, false)

	status := decode[IndexStatus](t, call(t, s.handleIndexStatus, struct{}{}))
	assert.False(t, status.Ready)
	assert.Nil(t, status.Stats)

	out := decode[ReindexResult](t, call(t, s.handleReindex, ReindexParams{}))
	require.NotNil(t, out.Report)
	assert.Equal(t, indexing.StatusPublished, out.Report.Status)

	status = decode[IndexStatus](t, call(t, s.handleIndexStatus, struct{}{}))
	assert.True(t, status.Ready)
	require.NotNil(t, status.Stats)
	assert.Equal(t, 1, status.Stats.Files)
	assert.Equal(t, out.Report.BuildID, status.LastBuild.BuildID)
	assert.Nil(t, status.Codebase)

	status = decode[IndexStatus](t, call(t, s.handleIndexStatus, IndexStatusParams{Detailed: true}))
	require.NotNil(t, status.Codebase)
	assert.Equal(t, 1, status.Codebase.TotalFiles)
	assert.Equal(t, status.Stats.Number, status.Codebase.Version)
}

func TestReindexSinceOutsideGit(t *testing.T) {
	s, _ := newTestServer(t, false)

	res := call(t, s.handleReindex, ReindexParams{Since: "HEAD"})
	assert.True(t, res.IsError)
}

func TestReindexToolIncremental(t *testing.T) {
	s, root := newTestServer(t, true)
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"),
		[]byte("package main\n\nfunc main() { println(Add(1, 2)) }\n"), 0o644))

	out := decode[ReindexResult](t, call(t, s.handleReindex, ReindexParams{Paths: []string{"main.go"}}))
	require.NotNil(t, out.Report)
	assert.Equal(t, indexing.BuildIncremental, out.Report.Kind)

	sr := decode[SearchResult](t, call(t, s.handleSearch, SearchParams{Pattern: "Add"}))
	assert.Equal(t, 2, sr.TotalFiles)
}

func TestReindexToolBackground(t *testing.T) {
	s, _ := newTestServer(t, false)
	wait := false

	out := decode[ReindexResult](t, call(t, s.handleReindex, ReindexParams{Wait: &wait}))
	assert.True(t, out.Started)
	assert.Nil(t, out.Report)

	assert.Eventually(t, func() bool {
		return s.Status().Ready
	}, 10*time.Second, 20*time.Millisecond)
}

func TestAutoIndex(t *testing.T) {
	s, _ := newTestServer(t, false)
	s.AutoIndex()
	assert.Eventually(t, func() bool {
		st := s.Status()
		return st.Ready && !st.IndexingActive
	}, 10*time.Second, 20*time.Millisecond)

	// already published: nothing to do
	before := s.store.Current().Number()
	s.AutoIndex()
	assert.False(t, s.Status().IndexingActive)
	assert.Equal(t, before, s.store.Current().Number())
}

type fakeHistory struct {
	entries []ledger.Entry
	err     error
}

func (f fakeHistory) Recent(context.Context, int) ([]ledger.Entry, error) {
	return f.entries, f.err
}

func TestBuildHistoryTool(t *testing.T) {
	s, _ := newTestServer(t, false)

	result := call(t, s.handleBuildHistory, HistoryParams{})
	assert.True(t, result.IsError)

	s.History = fakeHistory{entries: []ledger.Entry{{BuildID: "b1", Status: indexing.StatusHalted, HaltLimit: 2}}}
	out := decode[map[string][]ledger.Entry](t, call(t, s.handleBuildHistory, HistoryParams{Limit: 5}))
	require.Len(t, out["builds"], 1)
	assert.Equal(t, indexing.StatusHalted, out["builds"][0].Status)

	s.History = fakeHistory{err: errors.New("disk full")}
	result = call(t, s.handleBuildHistory, HistoryParams{})
	assert.True(t, result.IsError)
}

func TestToolsOverTransport(t *testing.T) {
	s, _ := newTestServer(t, true)
	ctx := context.Background()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := s.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"search", "symbol", "index_status", "reindex", "build_history"}, names)

	result, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search",
		Arguments: map[string]any{"pattern": "Twice"},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)
	out := decode[SearchResult](t, result)
	assert.Equal(t, 1, out.TotalFiles)

	require.NoError(t, cs.Close())
	_ = ss.Wait()
}
