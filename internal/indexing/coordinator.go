package indexing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/xref/internal/analyzer"
	"github.com/standardbeagle/xref/internal/debug"
	xreferrors "github.com/standardbeagle/xref/internal/errors"
	"github.com/standardbeagle/xref/internal/types"
)

// ShardState is the outcome of one shard in a run
type ShardState string

const (
	ShardPending   ShardState = "pending"
	ShardSucceeded ShardState = "succeeded"
	ShardCached    ShardState = "cached"
	ShardFailed    ShardState = "failed"
	// ShardAbandoned shards were queued or running when the run halted
	ShardAbandoned ShardState = "abandoned"
)

// ShardStatus reports what happened to one shard
type ShardStatus struct {
	Shard     types.ShardKey `json:"shard"`
	Files     int            `json:"files"`
	State     ShardState     `json:"state"`
	Records   int            `json:"records"`
	Malformed int            `json:"malformed"`
	Error     string         `json:"error,omitempty"`
	Duration  time.Duration  `json:"duration_ns"`

	err error
}

// Err returns the failure of the shard, if any
func (s ShardStatus) Err() error { return s.err }

// ShardRun is the result of dispatching one partitioning
type ShardRun struct {
	Statuses  []ShardStatus      // in shard index order
	Batches   []types.ShardBatch // validated output of succeeded and cached shards, in shard index order
	Failed    int
	Limit     int // failures at which the run halts
	Halted    bool
	Degraded  []string // sorted files of failed shards
	Malformed []error  // every rejected record of the successful shards
}

// Errors returns the shard failures in shard order
func (r *ShardRun) Errors() []error {
	var errs []error
	for _, s := range r.Statuses {
		if s.err != nil {
			errs = append(errs, s.err)
		}
	}
	return errs
}

// Coordinator dispatches shards to an Analyzer with bounded parallelism and
// aborts the whole run once the halt threshold of failed shards is reached.
type Coordinator struct {
	Analyzer analyzer.Analyzer
	Workers  int
	Halt     types.HaltThreshold
	// MaxMalformed is the per-shard budget of rejected records; 0 means unlimited
	MaxMalformed int
	Cache        *ShardCache
	// ReadFile, when set, re-reads a cached shard's files so that a shard
	// whose files changed since it was cached is analyzed again
	ReadFile func(path string) ([]byte, error)
	Progress *ProgressTracker
}

// NewCoordinator creates a coordinator with its own shard cache
func NewCoordinator(a analyzer.Analyzer, workers int, halt types.HaltThreshold) *Coordinator {
	return &Coordinator{
		Analyzer: a,
		Workers:  max(1, workers),
		Halt:     halt,
		Cache:    NewShardCache(),
	}
}

func (c *Coordinator) cached(shard types.Shard) (types.ShardBatch, bool) {
	if c.ReadFile != nil {
		return c.Cache.Lookup(shard, c.ReadFile)
	}
	return c.Cache.Get(shard)
}

// Run analyzes every shard. Shards found in the cache are not analyzed again.
// When failures reach the halt limit the remaining shards are abandoned through
// context cancellation and the run reports Halted; below the limit the run
// completes with the failed shards' files listed as degraded. The returned
// error is only set when ctx itself ends.
func (c *Coordinator) Run(ctx context.Context, shards []types.Shard) (*ShardRun, error) {
	run := &ShardRun{
		Statuses: make([]ShardStatus, len(shards)),
		Limit:    c.Halt.Limit(len(shards)),
	}
	for i, s := range shards {
		run.Statuses[i] = ShardStatus{Shard: s.Key(), Files: len(s.Files), State: ShardPending}
	}
	if len(shards) == 0 {
		return run, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		failures  atomic.Int64
		halted    atomic.Bool
		mu        sync.Mutex
		batches   = make([]*types.ShardBatch, len(shards))
		malformed = make([][]error, len(shards))
	)

	fail := func(i int, err error) {
		mu.Lock()
		run.Statuses[i].State = ShardFailed
		run.Statuses[i].err = err
		run.Statuses[i].Error = err.Error()
		mu.Unlock()
		c.Progress.ShardDone(true, false)

		if n := failures.Add(1); int(n) >= run.Limit && halted.CompareAndSwap(false, true) {
			debug.LogBuild("halting: %d of %d shards failed (limit %d)\n", n, len(shards), run.Limit)
			cancel()
		}
	}

	var g errgroup.Group
	g.SetLimit(c.Workers)

	for i, shard := range shards {
		g.Go(func() error {
			if runCtx.Err() != nil {
				mu.Lock()
				run.Statuses[i].State = ShardAbandoned
				mu.Unlock()
				return nil
			}

			if cached, ok := c.cached(shard); ok {
				mu.Lock()
				batches[i] = &cached
				run.Statuses[i].State = ShardCached
				run.Statuses[i].Records = cached.RecordCount()
				mu.Unlock()
				c.Progress.ShardDone(false, true)
				return nil
			}

			start := time.Now()
			batch, err := c.Analyzer.Analyze(runCtx, shard)
			elapsed := time.Since(start)

			mu.Lock()
			run.Statuses[i].Duration = elapsed
			mu.Unlock()

			if err != nil {
				if runCtx.Err() != nil && errors.Is(err, context.Canceled) {
					mu.Lock()
					run.Statuses[i].State = ShardAbandoned
					mu.Unlock()
					return nil
				}
				var aErr *xreferrors.AnalyzerError
				if !errors.As(err, &aErr) {
					err = xreferrors.NewAnalyzerError(shard.Key(), len(shard.Files), err)
				}
				fail(i, err)
				return nil
			}

			clean, rejected := ValidateBatch(batch, shard.Files)
			bad := len(clean.Malformed) + len(rejected)
			if c.MaxMalformed > 0 && bad > c.MaxMalformed {
				fail(i, xreferrors.NewAnalyzerError(shard.Key(), len(shard.Files),
					fmt.Errorf("%d malformed records exceed the per-shard limit of %d", bad, c.MaxMalformed)))
				return nil
			}

			c.Cache.Put(shard, clean)
			mu.Lock()
			batches[i] = &clean
			malformed[i] = append(append([]error{}, clean.Malformed...), rejected...)
			run.Statuses[i].State = ShardSucceeded
			run.Statuses[i].Records = clean.RecordCount()
			run.Statuses[i].Malformed = bad
			mu.Unlock()
			c.Progress.ShardDone(false, false)
			debug.LogBuild("shard %d/%d: %d files, %d records, %d malformed in %v\n",
				shard.Index, shard.Count, len(shard.Files), clean.RecordCount(), bad, elapsed)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return run, err
	}

	run.Failed = int(failures.Load())
	run.Halted = halted.Load()
	for i, s := range shards {
		switch run.Statuses[i].State {
		case ShardSucceeded, ShardCached:
			run.Batches = append(run.Batches, *batches[i])
			run.Malformed = append(run.Malformed, malformed[i]...)
		case ShardFailed:
			run.Degraded = append(run.Degraded, s.Files...)
		}
	}
	sort.Strings(run.Degraded)
	return run, nil
}
