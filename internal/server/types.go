package server

import (
	"time"

	"github.com/standardbeagle/xref/internal/core"
	"github.com/standardbeagle/xref/internal/indexing"
	"github.com/standardbeagle/xref/internal/ledger"
	"github.com/standardbeagle/xref/internal/search"
)

// RPC request/response types for client-server communication

// IndexStatus represents the current status of the index
type IndexStatus struct {
	Ready          bool                      `json:"ready"`
	Version        uint64                    `json:"version,omitempty"`
	BuildID        string                    `json:"build_id,omitempty"`
	FileCount      int                       `json:"file_count"`
	SymbolCount    int                       `json:"symbol_count"`
	DegradedFiles  []string                  `json:"degraded_files,omitempty"`
	IndexingActive bool                      `json:"indexing_active"`
	Progress       indexing.ProgressSnapshot `json:"progress"`
	LastBuild      *indexing.BuildReport     `json:"last_build,omitempty"`
	Error          string                    `json:"error,omitempty"`
}

// SearchResponse is the body of /search. Errors carry only Error.
type SearchResponse struct {
	*search.Response
	Error string `json:"error,omitempty"`
}

// ShutdownRequest requests server shutdown
type ShutdownRequest struct {
	Force bool `json:"force,omitempty"`
}

// ShutdownResponse confirms shutdown
type ShutdownResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// PingResponse confirms server is alive
type PingResponse struct {
	Uptime  float64 `json:"uptime_seconds"`
	Version string  `json:"version"`
	BuildID string  `json:"build_id"`
}

// ReindexRequest triggers a rebuild. Without paths the whole tree is indexed
// again; with paths only those are re-ingested.
type ReindexRequest struct {
	Paths []string `json:"paths,omitempty"`
	Wait  bool     `json:"wait,omitempty"`
}

// ReindexResponse confirms re-indexing started, or reports the finished build when Wait was set
type ReindexResponse struct {
	Success bool                  `json:"success"`
	Message string                `json:"message,omitempty"`
	Report  *indexing.BuildReport `json:"report,omitempty"`
}

// StatsResponse contains index statistics
type StatsResponse struct {
	Index         core.VersionStats    `json:"index"`
	Cache         search.CacheStats    `json:"cache"`
	Watch         *indexing.WatchStats `json:"watch,omitempty"`
	SearchCount   int64                `json:"search_count"`
	RejectedCount int64                `json:"rejected_count"`
	AvgSearchTime time.Duration        `json:"avg_search_time_ns"`
	MemoryAllocMB float64              `json:"memory_alloc_mb"`
	MemoryHeapMB  float64              `json:"memory_heap_mb"`
	NumGoroutines int                  `json:"num_goroutines"`
	UptimeSeconds float64              `json:"uptime_seconds"`
}

// HistoryResponse lists recent builds from the ledger
type HistoryResponse struct {
	Builds []HistoryEntry `json:"builds"`
	Error  string         `json:"error,omitempty"`
}

// HistoryEntry is one recorded build
type HistoryEntry = ledger.Entry
