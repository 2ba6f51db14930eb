package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/time/rate"

	"github.com/standardbeagle/xref/internal/config"
	"github.com/standardbeagle/xref/internal/core"
	"github.com/standardbeagle/xref/internal/debug"
	xreferrors "github.com/standardbeagle/xref/internal/errors"
	"github.com/standardbeagle/xref/internal/indexing"
	"github.com/standardbeagle/xref/internal/ledger"
	"github.com/standardbeagle/xref/internal/metrics"
	"github.com/standardbeagle/xref/internal/search"
	"github.com/standardbeagle/xref/internal/version"
)

// History is the part of the build ledger the server exposes
type History interface {
	Recent(ctx context.Context, n int) ([]ledger.Entry, error)
}

// IndexServer serves queries against the published index and accepts
// reindex requests. Queries never wait for a build.
type IndexServer struct {
	cfg     *config.Config
	store   *core.Store
	builder *indexing.Builder
	engine  *search.Engine
	limiter *rate.Limiter

	// History and Watcher are optional
	History History
	Watcher *indexing.FileWatcher

	listener     net.Listener
	server       *http.Server
	startTime    time.Time
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup

	mu             sync.RWMutex
	running        bool
	indexingActive bool
	lastReport     *indexing.BuildReport
	lastErr        error
	socketPath     string // custom socket path (empty uses the project default)
	address        string // TCP address; used when no socket is set

	buildCtx    context.Context
	buildCancel context.CancelFunc

	searchCount atomic.Int64
	searchNanos atomic.Int64
	rejected    atomic.Int64
}

// NewIndexServer creates a server over an already wired store, builder and engine
func NewIndexServer(cfg *config.Config, store *core.Store, builder *indexing.Builder, engine *search.Engine) *IndexServer {
	limit := rate.Inf
	if cfg.Server.QueriesPerSecond > 0 {
		limit = rate.Limit(cfg.Server.QueriesPerSecond)
	}
	buildCtx, buildCancel := context.WithCancel(context.Background())
	return &IndexServer{
		cfg:          cfg,
		store:        store,
		builder:      builder,
		engine:       engine,
		limiter:      rate.NewLimiter(limit, max(1, cfg.Server.Burst)),
		startTime:    time.Now(),
		shutdownChan: make(chan struct{}),
		socketPath:   cfg.Server.Socket,
		address:      cfg.Server.Address,
		buildCtx:     buildCtx,
		buildCancel:  buildCancel,
	}
}

// GetSocketPath returns the default socket path for a project root, so that
// servers for different projects can run side by side
func GetSocketPath(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("xref-server-%016x.sock", xxhash.Sum64String(root)))
}

// SetSocketPath sets a custom socket path for this server
func (s *IndexServer) SetSocketPath(path string) {
	s.socketPath = path
}

// SetAddress makes the server listen on TCP instead of a unix socket
func (s *IndexServer) SetAddress(addr string) {
	s.socketPath = ""
	s.address = addr
}

func (s *IndexServer) network() (string, string) {
	if s.socketPath == "" && s.address != "" {
		return "tcp", s.address
	}
	if s.socketPath != "" {
		return "unix", s.socketPath
	}
	return "unix", GetSocketPath(s.cfg.Project.Root)
}

// Addr returns the address the server listens on, once started
func (s *IndexServer) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start begins listening for client connections
func (s *IndexServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server already running")
	}

	network, addr := s.network()
	if network == "unix" {
		// a stale socket from a crashed server would make Listen fail
		_ = os.Remove(addr)
	}
	listener, err := net.Listen(network, addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s %s: %w", network, addr, err)
	}
	if network == "unix" {
		_ = os.Chmod(addr, 0600)
	}
	s.listener = listener

	mux := http.NewServeMux()
	s.registerHandlers(mux)
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			debug.LogServer("Server error: %v\n", err)
		}
	}()

	debug.LogServer("Index server started on %s %s (pid: %d)\n", network, listener.Addr(), os.Getpid())
	debug.LogServer("Project root: %s\n", s.cfg.Project.Root)
	return nil
}

// registerHandlers sets up RPC endpoints
func (s *IndexServer) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/codebase", s.handleCodebase)
	mux.HandleFunc("/reindex", s.handleReindex)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/shutdown", s.handleShutdown)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.LogServer("failed to write response: %v\n", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps query errors to 400 and an unpublished index to 503
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var qe *xreferrors.QueryError
	switch {
	case errors.Is(err, xreferrors.ErrIndexUnavailable):
		status = http.StatusServiceUnavailable
	case errors.As(err, &qe):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// handleSearch evaluates the query parameters q, path, case and regex (or
// regexp), from the URL or a form body
func (s *IndexServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		s.rejected.Add(1)
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "query rate limit exceeded"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, xreferrors.NewQueryError(r.URL.RawQuery, err))
		return
	}
	spec, err := search.FromValues(r.Form)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.engine.Search(spec)
	if err != nil {
		writeError(w, err)
		return
	}
	s.searchCount.Add(1)
	s.searchNanos.Add(int64(resp.Elapsed))
	writeJSON(w, http.StatusOK, SearchResponse{Response: resp})
}

// Status returns the current index status
func (s *IndexServer) Status() IndexStatus {
	s.mu.RLock()
	status := IndexStatus{
		IndexingActive: s.indexingActive,
		LastBuild:      s.lastReport,
	}
	if s.lastErr != nil {
		status.Error = s.lastErr.Error()
	}
	s.mu.RUnlock()

	status.Progress = s.builder.Progress()
	if v := s.store.Current(); v != nil {
		stats := v.Stats()
		status.Ready = true
		status.Version = stats.Number
		status.BuildID = stats.BuildID
		status.FileCount = stats.Files
		status.SymbolCount = stats.Symbols
		status.DegradedFiles = v.Degraded()
	}
	return status
}

func (s *IndexServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Status())
}

// handleStats returns index, cache and process statistics
func (s *IndexServer) handleStats(w http.ResponseWriter, r *http.Request) {
	v, err := s.store.Snapshot()
	if err != nil {
		writeError(w, err)
		return
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := StatsResponse{
		Index:         v.Stats(),
		Cache:         s.engine.CacheStats(),
		SearchCount:   s.searchCount.Load(),
		RejectedCount: s.rejected.Load(),
		MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
		MemoryHeapMB:  float64(memStats.HeapAlloc) / 1024 / 1024,
		NumGoroutines: runtime.NumGoroutine(),
		UptimeSeconds: time.Since(s.startTime).Seconds(),
	}
	if n := resp.SearchCount; n > 0 {
		resp.AvgSearchTime = time.Duration(s.searchNanos.Load() / n)
	}
	if s.Watcher != nil {
		ws := s.Watcher.GetStats()
		resp.Watch = &ws
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCodebase returns metrics derived from the published version
func (s *IndexServer) handleCodebase(w http.ResponseWriter, r *http.Request) {
	v, err := s.store.Snapshot()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics.Compute(v))
}

// handleReindex starts a build in the background, or runs it to completion
// when the request asks to wait. Only one reindex runs at a time.
func (s *IndexServer) handleReindex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "reindex requires POST"})
		return
	}
	var req ReindexRequest
	// an empty body reindexes everything
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid reindex request: %v", err)})
		return
	}

	done, ok := s.StartIndexing(req.Paths)
	if !ok {
		writeJSON(w, http.StatusConflict, ReindexResponse{Message: "indexing already in progress"})
		return
	}
	if !req.Wait {
		writeJSON(w, http.StatusAccepted, ReindexResponse{
			Success: true,
			Message: fmt.Sprintf("Re-indexing started for %s", s.cfg.Project.Root),
		})
		return
	}

	select {
	case <-done:
	case <-r.Context().Done():
		return
	}
	s.mu.RLock()
	report, err := s.lastReport, s.lastErr
	s.mu.RUnlock()
	resp := ReindexResponse{Success: err == nil, Report: report, Message: "index published"}
	if err != nil {
		resp.Message = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// StartIndexing runs a full build (no paths) or an incremental rebuild in the
// background. It returns false when a reindex is already running; otherwise
// the channel is closed once the build finished.
func (s *IndexServer) StartIndexing(paths []string) (<-chan struct{}, bool) {
	s.mu.Lock()
	if s.indexingActive {
		s.mu.Unlock()
		return nil, false
	}
	s.indexingActive = true
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
			debug.LogServer("Re-indexing %s...\n", s.cfg.Project.Root)
			report, err = s.builder.Build(s.buildCtx, indexing.BuildOptions{})
		} else {
			debug.LogServer("Re-indexing %d paths...\n", len(paths))
			report, err = s.builder.Rebuild(s.buildCtx, paths)
		}
		if err != nil {
			debug.LogServer("Re-indexing error: %v\n", err)
		}

		s.mu.Lock()
		s.indexingActive = false
		s.lastReport = report
		s.lastErr = err
		s.mu.Unlock()
	}()
	return done, true
}

// handleHistory lists recent builds; n bounds the count
func (s *IndexServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeJSON(w, http.StatusNotFound, HistoryResponse{Error: "build ledger disabled"})
		return
	}
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	builds, err := s.History.Recent(r.Context(), n)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, HistoryResponse{Error: err.Error()})
		return
	}
	if builds == nil {
		builds = []ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Builds: builds})
}

// handlePing responds to health check requests
func (s *IndexServer) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PingResponse{
		Uptime:  time.Since(s.startTime).Seconds(),
		Version: version.Version,
		BuildID: version.BuildID(),
	})
}

// handleShutdown acknowledges and then releases Wait
func (s *IndexServer) handleShutdown(w http.ResponseWriter, r *http.Request) {
	var req ShutdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Allow empty body
		req = ShutdownRequest{}
	}
	if req.Force {
		s.buildCancel()
	}
	writeJSON(w, http.StatusOK, ShutdownResponse{Success: true, Message: "Server shutting down"})
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })
}

// Wait blocks until a shutdown is requested over the wire or ctx ends
func (s *IndexServer) Wait(ctx context.Context) {
	select {
	case <-s.shutdownChan:
	case <-ctx.Done():
	}
}

// Shutdown stops accepting connections, waits for in-flight requests and
// cancels a running build
func (s *IndexServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	var err error
	if s.server != nil {
		if serr := s.server.Shutdown(ctx); serr != nil {
			err = fmt.Errorf("server shutdown error: %w", serr)
		}
	}
	s.buildCancel()
	s.wg.Wait()

	if network, addr := s.network(); network == "unix" {
		_ = os.Remove(addr)
	}
	debug.LogServer("Index server shut down cleanly\n")
	return err
}
