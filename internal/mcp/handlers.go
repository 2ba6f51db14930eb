package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/xref/internal/core"
	"github.com/standardbeagle/xref/internal/git"
	"github.com/standardbeagle/xref/internal/indexing"
	"github.com/standardbeagle/xref/internal/ledger"
	"github.com/standardbeagle/xref/internal/metrics"
	"github.com/standardbeagle/xref/internal/search"
	"github.com/standardbeagle/xref/internal/types"
)

const defaultSymbolLimit = 10

// SearchParams are the arguments of the search tool
type SearchParams struct {
	Pattern       string `json:"pattern"`
	Path          string `json:"path,omitempty"`
	CaseSensitive bool   `json:"case_sensitive,omitempty"`
	Regex         bool   `json:"regex,omitempty"`
	Query         string `json:"query,omitempty"`
}

// Spec converts the arguments to a query. An encoded query wins over the fields.
func (p SearchParams) Spec() (types.QuerySpec, error) {
	if p.Query != "" {
		return search.ParseQuery(p.Query)
	}
	return types.QuerySpec{
		Pattern:       p.Pattern,
		PathFilter:    p.Path,
		CaseSensitive: p.CaseSensitive,
		Regex:         p.Regex,
	}, nil
}

// SearchResult is the search tool output
type SearchResult struct {
	*search.Response
	Summary string `json:"summary"`
}

// SymbolParams are the arguments of the symbol tool
type SymbolParams struct {
	Name  string `json:"name"`
	Limit int    `json:"limit,omitempty"`
}

// SymbolResult is the symbol tool output
type SymbolResult struct {
	Version     uint64              `json:"version"`
	Symbols     []search.SymbolInfo `json:"symbols"`
	Suggestions []string            `json:"suggestions,omitempty"`
}

// IndexStatus is the index_status tool output
type IndexStatus struct {
	Ready          bool                      `json:"ready"`
	Stats          *core.VersionStats        `json:"stats,omitempty"`
	DegradedFiles  []string                  `json:"degraded_files,omitempty"`
	IndexingActive bool                      `json:"indexing_active"`
	Progress       indexing.ProgressSnapshot `json:"progress"`
	LastBuild      *indexing.BuildReport     `json:"last_build,omitempty"`
	LastError      string                    `json:"last_error,omitempty"`
	Cache          search.CacheStats         `json:"cache"`
	Codebase       *metrics.CodebaseStats    `json:"codebase,omitempty"`
}

// IndexStatusParams are the arguments of the index_status tool
type IndexStatusParams struct {
	Detailed bool `json:"detailed,omitempty"`
}

// ReindexParams are the arguments of the reindex tool
type ReindexParams struct {
	Paths []string `json:"paths,omitempty"`
	Since string   `json:"since,omitempty"`
	Wait  *bool    `json:"wait,omitempty"`
}

// ReindexResult is the reindex tool output
type ReindexResult struct {
	Started bool                  `json:"started"`
	Message string                `json:"message"`
	Report  *indexing.BuildReport `json:"report,omitempty"`
}

// HistoryParams are the arguments of the build_history tool
type HistoryParams struct {
	Limit int `json:"limit,omitempty"`
}

// decodeParams unmarshals tool arguments; absent arguments leave v untouched
func decodeParams(req *mcp.CallToolRequest, v any) error {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("search", func() (*mcp.CallToolResult, error) {
		var params SearchParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		spec, err := params.Spec()
		if err != nil {
			return nil, err
		}
		resp, err := s.engine.Search(spec)
		if err != nil {
			return nil, err
		}
		return createJSONResponse(SearchResult{Response: resp, Summary: resp.Summary()})
	})
}

func (s *Server) handleSymbol(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("symbol", func() (*mcp.CallToolResult, error) {
		var params SymbolParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		if params.Name == "" {
			return nil, errors.New("name is required")
		}
		if params.Limit <= 0 {
			params.Limit = defaultSymbolLimit
		}

		v, err := s.store.Snapshot()
		if err != nil {
			return nil, err
		}
		result := SymbolResult{
			Version: v.Number(),
			Symbols: search.LookupSymbol(v, params.Name, params.Limit),
		}
		if len(result.Symbols) == 0 {
			result.Symbols = []search.SymbolInfo{}
			result.Suggestions = search.Suggest(v, params.Name, s.engine.Options().MaxSuggestions)
		}
		return createJSONResponse(result)
	})
}

// Status collects what index_status reports
func (s *Server) Status() IndexStatus {
	s.mu.Lock()
	status := IndexStatus{
		IndexingActive: s.indexing,
		LastBuild:      s.lastReport,
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	s.mu.Unlock()

	status.Progress = s.builder.Progress()
	status.Cache = s.engine.CacheStats()
	if v := s.store.Current(); v != nil {
		stats := v.Stats()
		status.Ready = true
		status.Stats = &stats
		status.DegradedFiles = v.Degraded()
	}
	return status
}

func (s *Server) handleIndexStatus(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("index_status", func() (*mcp.CallToolResult, error) {
		var params IndexStatusParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		status := s.Status()
		if params.Detailed {
			if v := s.store.Current(); v != nil {
				status.Codebase = metrics.Compute(v)
			}
		}
		return createJSONResponse(status)
	})
}

func (s *Server) handleReindex(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("reindex", func() (*mcp.CallToolResult, error) {
		var params ReindexParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}

		paths := params.Paths
		if params.Since != "" {
			provider, err := git.NewProvider(s.cfg.Project.Root)
			if err != nil {
				return nil, err
			}
			files, err := provider.ChangedSince(ctx, params.Since)
			if err != nil {
				return nil, err
			}
			changed := provider.IndexPaths(files)
			if len(changed) == 0 && len(paths) == 0 {
				return createJSONResponse(ReindexResult{Message: "no files changed since " + params.Since})
			}
			paths = append(paths, changed...)
		}

		done, ok := s.startBuild(paths)
		if !ok {
			return nil, errors.New("indexing already in progress")
		}
		if params.Wait != nil && !*params.Wait {
			return createJSONResponse(ReindexResult{Started: true, Message: "indexing started"})
		}

		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		s.mu.Lock()
		report, err := s.lastReport, s.lastErr
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return createJSONResponse(ReindexResult{
			Started: true,
			Message: fmt.Sprintf("published version %d", report.Version),
			Report:  report,
		})
	})
}

func (s *Server) handleBuildHistory(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("build_history", func() (*mcp.CallToolResult, error) {
		if s.History == nil {
			return nil, errors.New("build ledger disabled")
		}
		var params HistoryParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		builds, err := s.History.Recent(ctx, params.Limit)
		if err != nil {
			return nil, err
		}
		if builds == nil {
			builds = []ledger.Entry{}
		}
		return createJSONResponse(map[string]any{"builds": builds})
	})
}
