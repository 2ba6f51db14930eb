// Package mcp exposes the cross-reference index to MCP clients over stdio
package mcp

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/xref/internal/config"
	"github.com/standardbeagle/xref/internal/core"
	xrefdebug "github.com/standardbeagle/xref/internal/debug"
	"github.com/standardbeagle/xref/internal/indexing"
	"github.com/standardbeagle/xref/internal/ledger"
	"github.com/standardbeagle/xref/internal/search"
	"github.com/standardbeagle/xref/internal/version"
)

// History is the part of the build ledger the tools read
type History interface {
	Recent(ctx context.Context, n int) ([]ledger.Entry, error)
}

// Server answers MCP tool calls from the published index
type Server struct {
	cfg     *config.Config
	store   *core.Store
	builder *indexing.Builder
	engine  *search.Engine
	server  *mcp.Server

	// History is optional; build_history reports an error without it
	History History

	mu         sync.Mutex
	indexing   bool
	lastReport *indexing.BuildReport
	lastErr    error
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	buildCtx   context.Context
}

// NewServer creates the MCP server and registers its tools
func NewServer(cfg *config.Config, store *core.Store, builder *indexing.Builder, engine *search.Engine) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		store:    store,
		builder:  builder,
		engine:   engine,
		buildCtx: ctx,
		cancel:   cancel,
	}
	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "xref-mcp-server",
		Version: version.Version,
	}, nil)
	s.registerTools()
	return s
}

// MCPServer returns the underlying SDK server, for custom transports
func (s *Server) MCPServer() *mcp.Server { return s.server }

func stringSchema(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc}
}

func boolSchema(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "boolean", Description: desc}
}

func intSchema(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer", Description: desc}
}

// registerTools registers all MCP tools with the server
func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name: "search",
		Description: "Find every definition, declaration, use and assignment of the symbols whose name matches pattern. " +
			"Falls back to full-text matching when no symbol matches. Results are grouped per file and sectioned into " +
			"core, test, generated and third-party code.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"pattern":        stringSchema("Symbol name or text to search for"),
				"path":           stringSchema("Path filter: substring, doublestar glob, or re:<regex>"),
				"case_sensitive": boolSchema("Match case exactly (default false)"),
				"regex":          boolSchema("Treat pattern as a regular expression"),
				"query":          stringSchema("Encoded query string (q=..&path=..&case=..&regex=..); overrides the other fields"),
			},
		},
	}, s.handleSearch)

	s.server.AddTool(&mcp.Tool{
		Name:        "symbol",
		Description: "Look up a symbol by raw identifier (e.g. go:Add) or exact display name and list all its occurrences.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"name":  stringSchema("Raw symbol identifier or display name"),
				"limit": intSchema("Maximum number of symbols to return (default 10)"),
			},
			Required: []string{"name"},
		},
	}, s.handleSymbol)

	s.server.AddTool(&mcp.Tool{
		Name:        "index_status",
		Description: "Report the published index version, its statistics, degraded files and build progress.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"detailed": boolSchema("Include language, path kind and reference metrics"),
			},
		},
	}, s.handleIndexStatus)

	s.server.AddTool(&mcp.Tool{
		Name:        "reindex",
		Description: "Rebuild the index. Without paths the whole tree is indexed again; with paths only those files are re-ingested.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"paths": {
					Type:        "array",
					Description: "Root-relative paths to re-ingest",
					Items:       &jsonschema.Schema{Type: "string"},
				},
				"since": stringSchema("Also re-ingest the files git reports as changed since this ref"),
				"wait":  boolSchema("Block until the build finished (default true)"),
			},
		},
	}, s.handleReindex)

	s.server.AddTool(&mcp.Tool{
		Name:        "build_history",
		Description: "List recent builds with their status, halt limit and degraded files.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"limit": intSchema("Number of builds to list (default 20)"),
			},
		},
	}, s.handleBuildHistory)
}

// recoverFromPanic turns handler panics and errors into tool error results
func (s *Server) recoverFromPanic(operation string, handler func() (*mcp.CallToolResult, error)) (result *mcp.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			xrefdebug.LogMCP("PANIC RECOVERED in %s: %v\n%s\n", operation, r, debug.Stack())
			result, err = createErrorResponse(operation, fmt.Errorf("internal error: %v", r))
		}
	}()

	result, err = handler()
	if err != nil {
		xrefdebug.LogMCP("Error in %s: %v\n", operation, err)
		return createErrorResponse(operation, err)
	}
	return result, nil
}

// AutoIndex starts a full build in the background when nothing is published yet
func (s *Server) AutoIndex() {
	if s.store.Current() != nil {
		return
	}
	s.startBuild(nil)
}

// startBuild runs a build in the background unless one is already running
func (s *Server) startBuild(paths []string) (<-chan struct{}, bool) {
	s.mu.Lock()
	if s.indexing {
		s.mu.Unlock()
		return nil, false
	}
	s.indexing = true
	s.mu.Unlock()

	done := make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)

		var (
			report *indexing.BuildReport
			err    error
		)
		if len(paths) == 0 {
			report, err = s.builder.Build(s.buildCtx, indexing.BuildOptions{})
		} else {
			report, err = s.builder.Rebuild(s.buildCtx, paths)
		}
		if err != nil {
			xrefdebug.LogMCP("build failed: %v\n", err)
		}

		s.mu.Lock()
		s.indexing = false
		s.lastReport = report
		s.lastErr = err
		s.mu.Unlock()
	}()
	return done, true
}

// Start serves tool calls over stdio until ctx ends or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	xrefdebug.LogMCP("Starting MCP server with stdio transport\n")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Shutdown cancels a running build and waits for it
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
