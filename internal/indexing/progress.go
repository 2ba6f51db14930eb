package indexing

import (
	"sync"
	"sync/atomic"
	"time"
)

// BuildPhase is the stage a build is currently in
type BuildPhase string

const (
	PhaseIdle      BuildPhase = "idle"
	PhaseScanning  BuildPhase = "scanning"
	PhaseAnalyzing BuildPhase = "analyzing"
	PhaseMerging   BuildPhase = "merging"
	PhasePersist   BuildPhase = "persisting"
)

// ProgressTracker tracks build progress with lock-free counters. Updates are
// cheap enough for the shard hot path; Snapshot is what status endpoints read.
type ProgressTracker struct {
	totalShards  int64 // atomic
	doneShards   int64 // atomic
	failedShards int64 // atomic
	cachedShards int64 // atomic
	totalFiles   int64 // atomic

	mu        sync.RWMutex
	phase     BuildPhase
	buildID   string
	startTime time.Time
}

// ProgressSnapshot is a point-in-time copy of the tracker
type ProgressSnapshot struct {
	BuildID      string        `json:"build_id,omitempty"`
	Phase        BuildPhase    `json:"phase"`
	TotalShards  int           `json:"total_shards"`
	DoneShards   int           `json:"done_shards"`
	FailedShards int           `json:"failed_shards"`
	CachedShards int           `json:"cached_shards"`
	TotalFiles   int           `json:"total_files"`
	Elapsed      time.Duration `json:"elapsed_ns"`
}

// NewProgressTracker creates an idle tracker
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{phase: PhaseIdle}
}

// Start resets the counters for a new build
func (pt *ProgressTracker) Start(buildID string) {
	if pt == nil {
		return
	}
	atomic.StoreInt64(&pt.totalShards, 0)
	atomic.StoreInt64(&pt.doneShards, 0)
	atomic.StoreInt64(&pt.failedShards, 0)
	atomic.StoreInt64(&pt.cachedShards, 0)
	atomic.StoreInt64(&pt.totalFiles, 0)

	pt.mu.Lock()
	pt.buildID = buildID
	pt.phase = PhaseScanning
	pt.startTime = time.Now()
	pt.mu.Unlock()
}

// SetPhase records the current build stage
func (pt *ProgressTracker) SetPhase(phase BuildPhase) {
	if pt == nil {
		return
	}
	pt.mu.Lock()
	pt.phase = phase
	pt.mu.Unlock()
}

// SetTotals records how much work the analysis stage has
func (pt *ProgressTracker) SetTotals(shards, files int) {
	if pt == nil {
		return
	}
	atomic.StoreInt64(&pt.totalShards, int64(shards))
	atomic.StoreInt64(&pt.totalFiles, int64(files))
}

// ShardDone counts a finished shard
func (pt *ProgressTracker) ShardDone(failed, cached bool) {
	if pt == nil {
		return
	}
	atomic.AddInt64(&pt.doneShards, 1)
	if failed {
		atomic.AddInt64(&pt.failedShards, 1)
	}
	if cached {
		atomic.AddInt64(&pt.cachedShards, 1)
	}
}

// Snapshot returns the current progress
func (pt *ProgressTracker) Snapshot() ProgressSnapshot {
	if pt == nil {
		return ProgressSnapshot{Phase: PhaseIdle}
	}
	pt.mu.RLock()
	s := ProgressSnapshot{BuildID: pt.buildID, Phase: pt.phase}
	if pt.phase != PhaseIdle && !pt.startTime.IsZero() {
		s.Elapsed = time.Since(pt.startTime)
	}
	pt.mu.RUnlock()

	s.TotalShards = int(atomic.LoadInt64(&pt.totalShards))
	s.DoneShards = int(atomic.LoadInt64(&pt.doneShards))
	s.FailedShards = int(atomic.LoadInt64(&pt.failedShards))
	s.CachedShards = int(atomic.LoadInt64(&pt.cachedShards))
	s.TotalFiles = int(atomic.LoadInt64(&pt.totalFiles))
	return s
}
