package indexing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/xref/internal/analyzer"
	"github.com/standardbeagle/xref/internal/core"
	xreferrors "github.com/standardbeagle/xref/internal/errors"
	"github.com/standardbeagle/xref/internal/types"
)

type memLedger struct {
	mu      sync.Mutex
	reports []BuildReport
}

func (l *memLedger) Record(_ context.Context, r *BuildReport) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports = append(l.reports, *r)
	return nil
}

func (l *memLedger) statuses() []BuildStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []BuildStatus
	for _, r := range l.reports {
		out = append(out, r.Status)
	}
	return out
}

type memSaver struct {
	mu    sync.Mutex
	saved []uint64
}

func (s *memSaver) Save(_ context.Context, v *core.IndexVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, v.Number())
	return nil
}

func wordTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt": "def Foo\nuse Bar\n",
		"b.txt": "use Foo\n",
		"c.txt": "assign Foo\n",
		"d.txt": "def Bar\n",
	})
	return root
}

func symbolLines(t *testing.T, v *core.IndexVersion, raw string) map[string][]int {
	t.Helper()
	out := make(map[string][]int)
	for _, o := range occurrencesOf(t, v, raw) {
		out[o.Path] = append(out[o.Path], o.Line)
	}
	return out
}

func TestBuilderBuild(t *testing.T) {
	root := wordTree(t)
	store := core.NewStore()
	ledger := &memLedger{}
	saver := &memSaver{}
	b := NewBuilder(testConfig(root), store, wordAnalyzer(root))
	b.Ledger = ledger
	b.Persist = saver

	report, err := b.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, report.Status)
	assert.Equal(t, uint64(1), report.Version)
	assert.Equal(t, 4, report.Files)
	assert.Equal(t, 5, report.Occurrences)
	assert.NotEmpty(t, report.BuildID)
	assert.False(t, report.Halted())

	v, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt", "d.txt"}, v.Paths())
	assert.Equal(t, map[string][]int{"a.txt": {1}, "b.txt": {1}, "c.txt": {1}}, symbolLines(t, v, "t:Foo"))
	assert.Equal(t, report.BuildID, v.BuildID())

	assert.Equal(t, []uint64{1}, saver.saved)
	assert.Equal(t, []BuildStatus{StatusPublished}, ledger.statuses())
	assert.Equal(t, PhaseIdle, b.Progress().Phase)
}

func TestBuilderHaltKeepsPreviousVersion(t *testing.T) {
	root := wordTree(t)
	store := core.NewStore()
	cfg := testConfig(root)
	cfg.Build.HaltThreshold = "2"
	ledger := &memLedger{}

	good := NewBuilder(cfg, store, wordAnalyzer(root))
	_, err := good.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)

	// shards are [a.txt b.txt] and [c.txt d.txt]
	bad := NewBuilder(cfg, store, failingAnalyzer(wordAnalyzer(root), "a.txt", "c.txt"))
	bad.Ledger = ledger
	report, err := bad.Build(context.Background(), BuildOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, xreferrors.ErrBuildHalted)
	assert.True(t, report.Halted())
	assert.Equal(t, 2, report.Failed)
	assert.Zero(t, report.Version)

	v, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v.Number(), "halted build must not publish")
	assert.Equal(t, []BuildStatus{StatusHalted}, ledger.statuses())
}

func TestBuilderHaltWithNothingPublished(t *testing.T) {
	root := wordTree(t)
	store := core.NewStore()
	cfg := testConfig(root)
	cfg.Build.HaltThreshold = "1"

	_, err := NewBuilder(cfg, store, failingAnalyzer(wordAnalyzer(root), "d.txt")).Build(context.Background(), BuildOptions{})
	assert.ErrorIs(t, err, xreferrors.ErrBuildHalted)
	_, err = store.Snapshot()
	assert.ErrorIs(t, err, xreferrors.ErrIndexUnavailable)
}

func TestBuilderEveryShardFailedKeepsPreviousVersion(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "def Foo\n"})
	store := core.NewStore()
	cfg := testConfig(root)
	cfg.Build.HaltThreshold = "2"

	_, err := NewBuilder(cfg, store, wordAnalyzer(root)).Build(context.Background(), BuildOptions{})
	require.NoError(t, err)

	// one file makes one shard, fewer than the threshold count
	report, err := NewBuilder(cfg, store, failingAnalyzer(wordAnalyzer(root), "a.txt")).Build(context.Background(), BuildOptions{})
	assert.ErrorIs(t, err, xreferrors.ErrBuildHalted)
	assert.True(t, report.Halted())
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.HaltLimit)

	v, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v.Number())
	assert.Equal(t, []string{"a.txt"}, v.Paths())
}

// failAfterFirstShard fails every shard but the first, once the first has
// been analyzed, so that the first shard is always cached by a halted build
func failAfterFirstShard(inner analyzer.Analyzer) analyzer.Analyzer {
	first := make(chan struct{})
	var once sync.Once
	return analyzer.Func(func(ctx context.Context, shard types.Shard) (types.ShardBatch, error) {
		if shard.Index == 0 {
			defer once.Do(func() { close(first) })
			return inner.Analyze(ctx, shard)
		}
		select {
		case <-first:
		case <-ctx.Done():
		}
		return types.ShardBatch{}, fmt.Errorf("analyzer crashed on %s", shard.Files[0])
	})
}

func TestBuilderRetryReanalyzesChangedCachedShard(t *testing.T) {
	root := wordTree(t)
	store := core.NewStore()
	cfg := testConfig(root)
	cfg.Build.HaltThreshold = "1"

	// shards are [a.txt b.txt] and [c.txt d.txt]; the first is cached
	b := NewBuilder(cfg, store, failAfterFirstShard(wordAnalyzer(root)))
	_, err := b.Build(context.Background(), BuildOptions{})
	require.ErrorIs(t, err, xreferrors.ErrBuildHalted)
	require.Equal(t, 1, b.cache.Len())

	writeTree(t, root, map[string]string{"a.txt": "use Bar\ndef Foo\n"})
	b.analyzer = wordAnalyzer(root)
	report, err := b.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	require.Len(t, report.Shards, 2)
	assert.Equal(t, ShardSucceeded, report.Shards[0].State, "changed files invalidate the cached shard")

	v, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []int{2}, symbolLines(t, v, "t:Foo")["a.txt"])
	f, ok := v.File("a.txt")
	require.True(t, ok)
	assert.Equal(t, []string{"use Bar", "def Foo"}, f.Lines)
}

func TestBuilderRetryReusesUnchangedCachedShard(t *testing.T) {
	root := wordTree(t)
	store := core.NewStore()
	cfg := testConfig(root)
	cfg.Build.HaltThreshold = "1"

	b := NewBuilder(cfg, store, failAfterFirstShard(wordAnalyzer(root)))
	_, err := b.Build(context.Background(), BuildOptions{})
	require.ErrorIs(t, err, xreferrors.ErrBuildHalted)

	b.analyzer = wordAnalyzer(root)
	report, err := b.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, ShardCached, report.Shards[0].State)
	assert.Zero(t, b.cache.Len(), "publishing clears the cache")

	v, err := store.Snapshot()
	require.NoError(t, err)
	f, ok := v.File("a.txt")
	require.True(t, ok)
	assert.Equal(t, []string{"def Foo", "use Bar"}, f.Lines)
}

func TestBuilderDegradedBelowThreshold(t *testing.T) {
	root := wordTree(t)
	store := core.NewStore()
	cfg := testConfig(root)
	cfg.Build.HaltThreshold = "2"

	report, err := NewBuilder(cfg, store, failingAnalyzer(wordAnalyzer(root), "a.txt")).Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, report.Status)
	assert.Equal(t, []string{"a.txt", "b.txt"}, report.Degraded)

	v, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, v.Degraded())
	assert.Equal(t, []string{"c.txt", "d.txt"}, v.Paths())
	assert.Equal(t, map[string][]int{"c.txt": {1}}, symbolLines(t, v, "t:Foo"))
}

func TestBuilderExplicitFiles(t *testing.T) {
	root := wordTree(t)
	store := core.NewStore()
	b := NewBuilder(testConfig(root), store, wordAnalyzer(root))

	report, err := b.Build(context.Background(), BuildOptions{Files: []string{"b.txt", filepath.Join(root, "a.txt"), "b.txt"}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Files)
	assert.Equal(t, []string{"a.txt", "b.txt"}, store.Current().Paths())
}

func TestBuilderRebuild(t *testing.T) {
	root := wordTree(t)
	store := core.NewStore()
	ledger := &memLedger{}
	b := NewBuilder(testConfig(root), store, wordAnalyzer(root))
	b.Ledger = ledger

	_, err := b.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	base := store.Current()

	writeTree(t, root, map[string]string{
		"a.txt":     "\n\ndef Foo\n",
		"e/new.txt": "use Foo\n",
	})
	require.NoError(t, os.Remove(filepath.Join(root, "b.txt")))

	report, err := b.Rebuild(context.Background(), []string{"a.txt", "b.txt", "e/new.txt"})
	require.NoError(t, err)
	assert.Equal(t, BuildIncremental, report.Kind)
	assert.Equal(t, uint64(2), report.Version)
	assert.Equal(t, 2, report.Files)
	assert.Equal(t, 1, report.Removed)

	v := store.Current()
	assert.Equal(t, []string{"a.txt", "c.txt", "d.txt", "e/new.txt"}, v.Paths())
	assert.Equal(t, map[string][]int{"a.txt": {3}, "c.txt": {1}, "e/new.txt": {1}}, symbolLines(t, v, "t:Foo"))
	assert.Equal(t, map[string][]int{"d.txt": {1}}, symbolLines(t, v, "t:Bar"))

	// readers of the old version see it unchanged
	assert.Equal(t, map[string][]int{"a.txt": {1}, "b.txt": {1}, "c.txt": {1}}, symbolLines(t, base, "t:Foo"))
	assert.Equal(t, []BuildStatus{StatusPublished, StatusPublished}, ledger.statuses())
}

func TestBuilderRebuildRemovedDirectory(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"keep.txt":     "def Keep\n",
		"gone/x.txt":   "use Keep\n",
		"gone/y/z.txt": "use Keep\n",
	})
	store := core.NewStore()
	b := NewBuilder(testConfig(root), store, wordAnalyzer(root))
	_, err := b.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "gone")))
	report, err := b.Rebuild(context.Background(), []string{"gone"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Removed)
	assert.Equal(t, []string{"keep.txt"}, store.Current().Paths())
}

func TestBuilderRebuildKeepsFailedFilesDegraded(t *testing.T) {
	root := wordTree(t)
	store := core.NewStore()
	cfg := testConfig(root)
	cfg.Build.HaltThreshold = "5"

	_, err := NewBuilder(cfg, store, wordAnalyzer(root)).Build(context.Background(), BuildOptions{})
	require.NoError(t, err)

	b := NewBuilder(cfg, store, failingAnalyzer(wordAnalyzer(root), "a.txt"))
	writeTree(t, root, map[string]string{"a.txt": "def Other\n", "c.txt": "use Bar\n"})
	report, err := b.Rebuild(context.Background(), []string{"a.txt", "c.txt"})
	require.NoError(t, err)
	assert.Contains(t, report.Degraded, "a.txt")

	v := store.Current()
	assert.Contains(t, v.Degraded(), "a.txt")
	// a.txt keeps what the previous version knew about it
	assert.Equal(t, map[string][]int{"a.txt": {1}, "b.txt": {1}}, symbolLines(t, v, "t:Foo"))
}

func TestBuilderRebuildWithoutVersionBuildsEverything(t *testing.T) {
	root := wordTree(t)
	store := core.NewStore()
	report, err := NewBuilder(testConfig(root), store, wordAnalyzer(root)).Rebuild(context.Background(), []string{"a.txt"})
	require.NoError(t, err)
	assert.Equal(t, BuildFull, report.Kind)
	assert.Len(t, store.Current().Paths(), 4)
}

func TestBuilderRestore(t *testing.T) {
	root := wordTree(t)
	first := core.NewStore()
	_, err := NewBuilder(testConfig(root), first, wordAnalyzer(root)).Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	loaded := first.Current()

	store := core.NewStore()
	b := NewBuilder(testConfig(root), store, wordAnalyzer(root))
	require.NoError(t, b.Restore(loaded))

	report, err := b.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), report.Version)

	oldID, _ := loaded.LookupRaw("t:Foo")
	newID, _ := store.Current().LookupRaw("t:Foo")
	assert.Equal(t, oldID, newID, "handles survive a restore")
}

func TestBuilderTreeSitter(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"calc/calc.go": "package calc\n\nfunc Add(a, b int) int { return a + b }\n\nfunc Twice(x int) int { return Add(x, x) }\n",
	})
	store := core.NewStore()
	_, err := NewBuilder(testConfig(root), store, nil).Build(context.Background(), BuildOptions{})
	require.NoError(t, err)

	v := store.Current()
	occs := occurrencesOf(t, v, "go:Add")
	require.Len(t, occs, 2)
	assert.Equal(t, types.KindDefinition, occs[0].Kind)
	assert.Equal(t, 3, occs[0].Line)
	assert.Equal(t, types.KindUse, occs[1].Kind)
	assert.Equal(t, 5, occs[1].Line)
}
