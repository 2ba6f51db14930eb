package indexing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/xref/internal/analyzer"
	"github.com/standardbeagle/xref/internal/config"
	"github.com/standardbeagle/xref/internal/core"
	"github.com/standardbeagle/xref/internal/debug"
	xreferrors "github.com/standardbeagle/xref/internal/errors"
	"github.com/standardbeagle/xref/internal/intern"
	"github.com/standardbeagle/xref/internal/parser"
	"github.com/standardbeagle/xref/internal/types"
)

// VersionSaver persists a published version
type VersionSaver interface {
	Save(ctx context.Context, v *core.IndexVersion) error
}

// BuildRecorder keeps the history of builds, halted ones included
type BuildRecorder interface {
	Record(ctx context.Context, r *BuildReport) error
}

type BuildKind string

const (
	BuildFull        BuildKind = "full"
	BuildIncremental BuildKind = "incremental"
)

type BuildStatus string

const (
	StatusPublished BuildStatus = "published"
	StatusHalted    BuildStatus = "halted"
	StatusFailed    BuildStatus = "failed"
)

// BuildReport describes one build attempt
type BuildReport struct {
	BuildID      string        `json:"build_id"`
	Kind         BuildKind     `json:"kind"`
	Status       BuildStatus   `json:"status"`
	Version      uint64        `json:"version,omitempty"` // 0 unless published
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`
	Files        int           `json:"files"`
	Removed      int           `json:"removed,omitempty"`
	Shards       []ShardStatus `json:"shards"`
	Failed       int           `json:"failed_shards"`
	HaltLimit    int           `json:"halt_limit"`
	Degraded     []string      `json:"degraded,omitempty"`
	Records      int           `json:"records"`
	Occurrences  int           `json:"occurrences"`
	Malformed    int           `json:"malformed"`
	Error        string        `json:"error,omitempty"`
	PersistError string        `json:"persist_error,omitempty"`

	malformed []error
}

// Halted reports whether the build crossed its halt threshold
func (r *BuildReport) Halted() bool { return r.Status == StatusHalted }

// MalformedErrors returns every rejected record of the build
func (r *BuildReport) MalformedErrors() []error { return r.malformed }

// BuildOptions tunes a single build
type BuildOptions struct {
	// Files replaces the directory scan when non-empty
	Files   []string
	Workers int
}

// Builder runs the scan, analyze, merge and publish sequence. Builds are
// serialized; queries keep reading the published version meanwhile.
type Builder struct {
	cfg        *config.Config
	store      *core.Store
	analyzer   analyzer.Analyzer
	scanner    *FileScanner
	classifier *core.PathClassifier
	cache      *ShardCache
	progress   *ProgressTracker

	// Persist and Ledger are optional
	Persist VersionSaver
	Ledger  BuildRecorder

	mu       sync.Mutex
	interner *intern.Interner
}

// NewBuilder creates a builder publishing into store. A nil analyzer selects
// the one configured in cfg.
func NewBuilder(cfg *config.Config, store *core.Store, a analyzer.Analyzer) *Builder {
	if a == nil {
		a = NewAnalyzer(cfg)
	}
	return &Builder{
		cfg:      cfg,
		store:    store,
		analyzer: a,
		scanner:  NewFileScanner(cfg),
		classifier: core.NewPathClassifier(
			cfg.PathKinds.Test, cfg.PathKinds.Generated, cfg.PathKinds.ThirdParty),
		cache:    NewShardCache(),
		progress: NewProgressTracker(),
		interner: intern.New(),
	}
}

// NewAnalyzer returns the external analyzer named in the configuration, or
// the built-in tree-sitter analyzer when none is configured
func NewAnalyzer(cfg *config.Config) analyzer.Analyzer {
	if cfg.Build.AnalyzerCommand != "" {
		outputRoot := cfg.Build.OutputRoot
		if outputRoot == "" {
			outputRoot = cfg.Store.Path + "/analysis"
		}
		return &analyzer.Exec{
			Command:    cfg.Build.AnalyzerCommand,
			Args:       cfg.Build.AnalyzerArgs,
			SourceRoot: cfg.Project.Root,
			OutputRoot: outputRoot,
			Timeout:    time.Duration(cfg.Build.AnalyzerTimeoutSec) * time.Second,
		}
	}
	ts := parser.NewTreeSitterAnalyzer()
	return &analyzer.PerFile{
		Root:        cfg.Project.Root,
		MaxFileSize: cfg.Index.MaxFileSize,
		Fn:          ts.AnalyzeFile,
	}
}

// Scanner returns the scanner used for full builds and change filtering
func (b *Builder) Scanner() *FileScanner { return b.scanner }

// Progress returns the current build progress
func (b *Builder) Progress() ProgressSnapshot { return b.progress.Snapshot() }

// Restore publishes a version loaded from storage and seeds the interner with
// its symbol table, so later builds keep the same handles.
func (b *Builder) Restore(v *core.IndexVersion) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.store.Publish(v, nil); err != nil {
		return err
	}
	b.interner = intern.NewFromTable(v.SymbolTable())
	debug.LogBuild("restored version %d with %d files\n", v.Number(), len(v.Paths()))
	return nil
}

func (b *Builder) workers(opts BuildOptions) int {
	if opts.Workers > 0 {
		return opts.Workers
	}
	if b.cfg.Build.Workers > 0 {
		return b.cfg.Build.Workers
	}
	return types.DefaultWorkers
}

func (b *Builder) newReport(kind BuildKind) *BuildReport {
	return &BuildReport{
		BuildID:   uuid.NewString(),
		Kind:      kind,
		StartedAt: time.Now(),
	}
}

func (b *Builder) coordinator(workers int, cache *ShardCache) *Coordinator {
	return &Coordinator{
		Analyzer:     b.analyzer,
		Workers:      workers,
		Halt:         b.cfg.HaltThreshold(),
		MaxMalformed: b.cfg.Build.MaxMalformedPerShard,
		Cache:        cache,
		ReadFile:     b.scanner.ReadFile,
		Progress:     b.progress,
	}
}

// Build indexes the whole source tree and publishes the result as a new
// version. A halted build publishes nothing; its report is still recorded
// and the returned error wraps ErrBuildHalted.
func (b *Builder) Build(ctx context.Context, opts BuildOptions) (*BuildReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	report := b.newReport(BuildFull)
	b.progress.Start(report.BuildID)
	defer b.progress.SetPhase(PhaseIdle)

	files := opts.Files
	if len(files) == 0 {
		scanned, err := b.scanner.Scan(ctx)
		if err != nil {
			return b.fail(ctx, report, err)
		}
		files = scanned
	} else {
		files = b.normalize(files)
	}
	report.Files = len(files)

	workers := b.workers(opts)
	shards := Partition(files, workers)
	b.progress.SetTotals(len(shards), len(files))
	b.progress.SetPhase(PhaseAnalyzing)
	debug.LogBuild("build %s: %d files in %d shards, %d workers\n", report.BuildID, len(files), len(shards), workers)

	run, err := b.coordinator(workers, b.cache).Run(ctx, shards)
	if err != nil {
		return b.fail(ctx, report, err)
	}
	b.applyRun(report, run)
	if run.Halted {
		return b.halt(ctx, report, run)
	}

	b.progress.SetPhase(PhaseMerging)
	merger := NewMerger(b.interner, nil).WithClassifier(b.classifier)
	if err := b.merge(ctx, merger, run.Batches, workers, report); err != nil {
		return b.fail(ctx, report, err)
	}

	v := merger.Seal(SealMeta{
		Number:    b.store.NextNumber(),
		BuildID:   report.BuildID,
		CreatedAt: time.Now(),
		Degraded:  run.Degraded,
	})
	if err := b.publish(ctx, report, v); err != nil {
		return report, err
	}
	b.cache.Clear()
	return report, nil
}

// Rebuild re-ingests the given paths on top of the current version. Paths
// that no longer exist, or no longer pass the scanner filters, are removed
// along with everything below them. Without a current version it falls back
// to a full build.
func (b *Builder) Rebuild(ctx context.Context, paths []string) (*BuildReport, error) {
	base := b.store.Current()
	if base == nil {
		return b.Build(ctx, BuildOptions{})
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// a full build may have published while we waited
	base = b.store.Current()

	report := b.newReport(BuildIncremental)
	b.progress.Start(report.BuildID)
	defer b.progress.SetPhase(PhaseIdle)

	changed, removed, err := b.classifyChanges(ctx, base, paths)
	if err != nil {
		return b.fail(ctx, report, err)
	}
	report.Files = len(changed)
	report.Removed = len(removed)
	if len(changed) == 0 && len(removed) == 0 {
		debug.LogBuild("rebuild %s: nothing to do\n", report.BuildID)
		report.Status = StatusPublished
		report.Version = base.Number()
		report.Duration = time.Since(report.StartedAt)
		return report, nil
	}

	workers := b.workers(BuildOptions{})
	shards := Partition(changed, workers)
	b.progress.SetTotals(len(shards), len(changed))
	b.progress.SetPhase(PhaseAnalyzing)

	// no cache: the same file list now carries different content
	run, err := b.coordinator(workers, nil).Run(ctx, shards)
	if err != nil {
		return b.fail(ctx, report, err)
	}
	b.applyRun(report, run)
	if run.Halted {
		return b.halt(ctx, report, run)
	}

	b.progress.SetPhase(PhaseMerging)
	merger := NewMerger(b.interner, base).WithClassifier(b.classifier)
	for _, p := range removed {
		merger.RemoveFile(p)
	}
	if err := b.merge(ctx, merger, run.Batches, workers, report); err != nil {
		return b.fail(ctx, report, err)
	}

	// failed paths keep their previous data and stay degraded until they
	// are analyzed successfully
	reanalyzed := make(map[string]bool, len(changed)+len(removed))
	for _, p := range changed {
		reanalyzed[p] = true
	}
	for _, p := range removed {
		reanalyzed[p] = true
	}
	var degraded []string
	for _, p := range base.Degraded() {
		if !reanalyzed[p] {
			degraded = append(degraded, p)
		}
	}
	degraded = append(degraded, run.Degraded...)
	report.Degraded = degraded

	v := merger.Seal(SealMeta{
		Number:    b.store.NextNumber(),
		BuildID:   report.BuildID,
		CreatedAt: time.Now(),
		Degraded:  degraded,
	})
	if err := b.publish(ctx, report, v); err != nil {
		return report, err
	}
	return report, nil
}

// classifyChanges splits the requested paths into files to analyze and
// files to drop from base
func (b *Builder) classifyChanges(ctx context.Context, base *core.IndexVersion, paths []string) (changed, removed []string, err error) {
	changedSet := make(map[string]bool)
	removedSet := make(map[string]bool)

	for _, p := range b.normalize(paths) {
		info, statErr := os.Stat(b.scanner.Abs(p))
		switch {
		case statErr == nil && info.IsDir():
			if b.scanner.SkipDir(p) {
				for _, known := range base.PathsWithPrefix(p) {
					removedSet[known] = true
				}
				continue
			}
			var found []string
			if err := b.scanner.walk(ctx, b.scanner.Abs(p), p, make(map[string]bool), &found); err != nil {
				return nil, nil, err
			}
			present := make(map[string]bool, len(found))
			for _, f := range found {
				present[f] = true
				changedSet[f] = true
			}
			for _, known := range base.PathsWithPrefix(p) {
				if !present[known] {
					removedSet[known] = true
				}
			}
		case statErr == nil && b.scanner.Check(p):
			changedSet[p] = true
		default:
			if _, ok := base.File(p); ok {
				removedSet[p] = true
			}
			for _, known := range base.PathsWithPrefix(p) {
				removedSet[known] = true
			}
		}
	}

	for p := range changedSet {
		changed = append(changed, p)
		delete(removedSet, p)
	}
	for p := range removedSet {
		removed = append(removed, p)
	}
	sort.Strings(changed)
	sort.Strings(removed)
	debug.LogBuild("rebuild: %d changed, %d removed\n", len(changed), len(removed))
	return changed, removed, nil
}

func (b *Builder) normalize(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := b.scanner.Rel(p)
		if err != nil {
			log.Printf("Warning: ignoring path %s: %v", p, err)
			continue
		}
		out = append(out, rel)
	}
	sort.Strings(out)
	return slices.Compact(out)
}

func (b *Builder) applyRun(report *BuildReport, run *ShardRun) {
	report.Shards = run.Statuses
	report.Failed = run.Failed
	report.HaltLimit = run.Limit
	report.Degraded = run.Degraded
	report.malformed = run.Malformed
	report.Malformed = len(run.Malformed)
	for _, s := range run.Statuses {
		report.Records += s.Records
	}
}

// merge loads missing file content and folds every batch into merger
func (b *Builder) merge(ctx context.Context, merger *Merger, batches []types.ShardBatch, workers int, report *BuildReport) error {
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(max(1, workers))

	for _, batch := range batches {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b.loadContent(&batch)
			stats := merger.Add(batch)

			mu.Lock()
			report.Occurrences += stats.Occurrences
			report.Malformed += stats.Rejected
			report.malformed = append(report.malformed, stats.Errors...)
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// loadContent reads the files an external analyzer did not hand over
func (b *Builder) loadContent(batch *types.ShardBatch) {
	for i := range batch.Files {
		fr := &batch.Files[i]
		if fr.Content != nil {
			continue
		}
		content, err := b.scanner.ReadFile(fr.Path)
		if err != nil {
			log.Printf("Warning: failed to read %s: %v", fr.Path, err)
			continue
		}
		fr.Content = content
	}
}

func (b *Builder) publish(ctx context.Context, report *BuildReport, v *core.IndexVersion) error {
	report.Status = StatusPublished
	if err := b.store.Publish(v, report); err != nil {
		report.Status = StatusFailed
		report.Error = err.Error()
		report.Duration = time.Since(report.StartedAt)
		b.record(ctx, report)
		return err
	}
	report.Version = v.Number()

	if b.Persist != nil {
		b.progress.SetPhase(PhasePersist)
		if err := b.Persist.Save(ctx, v); err != nil {
			// the version is live in memory; only the on-disk copy is stale
			log.Printf("Warning: failed to persist version %d: %v", v.Number(), err)
			report.PersistError = err.Error()
		}
	}

	report.Duration = time.Since(report.StartedAt)
	b.record(ctx, report)
	debug.LogBuild("build %s: published version %d (%d files, %d occurrences, %d degraded) in %v\n",
		report.BuildID, v.Number(), len(v.Paths()), report.Occurrences, len(report.Degraded), report.Duration)
	return nil
}

func (b *Builder) halt(ctx context.Context, report *BuildReport, run *ShardRun) (*BuildReport, error) {
	report.Status = StatusHalted
	report.Duration = time.Since(report.StartedAt)
	err := fmt.Errorf("%w: %d of %d shards failed (limit %d)",
		xreferrors.ErrBuildHalted, run.Failed, len(run.Statuses), run.Limit)
	report.Error = errors.Join(append([]error{err}, run.Errors()...)...).Error()
	b.record(ctx, report)
	log.Printf("Build %s halted: %d of %d shards failed", report.BuildID, run.Failed, len(run.Statuses))
	return report, err
}

func (b *Builder) fail(ctx context.Context, report *BuildReport, err error) (*BuildReport, error) {
	report.Status = StatusFailed
	report.Error = err.Error()
	report.Duration = time.Since(report.StartedAt)
	b.record(context.WithoutCancel(ctx), report)
	return report, err
}

func (b *Builder) record(ctx context.Context, report *BuildReport) {
	if b.Ledger == nil {
		return
	}
	if err := b.Ledger.Record(context.WithoutCancel(ctx), report); err != nil {
		log.Printf("Warning: failed to record build %s: %v", report.BuildID, err)
	}
}
