package indexing

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/xref/internal/debug"
)

// FileWatcher monitors the source tree and hands batches of changed paths to
// a callback once events have been quiet for the debounce interval
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	scanner   *FileScanner
	debouncer *eventDebouncer
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once

	// Watch mode statistics
	eventsProcessed int64
	batches         int64
	errorCount      int64
	lastEventTime   time.Time
	statsMu         sync.RWMutex
}

// WatchStats contains statistics about file watching operations
type WatchStats struct {
	EventsProcessed int64     `json:"events_processed"`
	Batches         int64     `json:"batches"`
	ErrorCount      int64     `json:"error_count"`
	LastEventTime   time.Time `json:"last_event_time"`
	IsActive        bool      `json:"is_active"`
}

// NewFileWatcher creates a watcher that calls onChange with the sorted index
// paths changed in each debounced batch. Calls to onChange never overlap.
func NewFileWatcher(scanner *FileScanner, debounce time.Duration, onChange func(paths []string)) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 50 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	fw := &FileWatcher{
		watcher: watcher,
		scanner: scanner,
		ctx:     ctx,
		cancel:  cancel,
	}
	fw.debouncer = newEventDebouncer(debounce, func(paths []string) {
		if fw.ctx.Err() != nil {
			return
		}
		fw.incrementStats(int64(len(paths)), 0, 1)
		onChange(paths)
	})
	return fw, nil
}

// WatchBuilder starts a watcher whose batches are fed to b.Rebuild
func WatchBuilder(b *Builder, debounce time.Duration) (*FileWatcher, error) {
	fw, err := NewFileWatcher(b.Scanner(), debounce, func(paths []string) {
		report, err := b.Rebuild(context.Background(), paths)
		if err != nil {
			log.Printf("Incremental rebuild of %d paths failed: %v", len(paths), err)
			return
		}
		debug.LogBuild("watch: rebuilt %d paths into version %d\n", len(paths), report.Version)
	})
	if err != nil {
		return nil, err
	}
	if err := fw.Start(); err != nil {
		_ = fw.Stop()
		return nil, err
	}
	return fw, nil
}

// Start adds watches for every directory the scanner would descend into and
// begins processing events
func (fw *FileWatcher) Start() error {
	root := fw.scanner.Root()
	debug.LogBuild("Starting file watcher for directory: %s\n", root)

	if err := fw.addWatches(root, ""); err != nil {
		return fmt.Errorf("failed to add watches starting from %s: %w", root, err)
	}

	fw.wg.Add(1)
	go fw.processEvents()

	debug.LogBuild("File watcher started successfully\n")
	return nil
}

// Stop stops the watcher. Pending events are dropped.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		fw.cancel()
		err = fw.watcher.Close()
		fw.wg.Wait()
		fw.debouncer.stop()
	})
	return err
}

// addWatches recursively adds watches below dir, whose index path is rel
func (fw *FileWatcher) addWatches(dir, rel string) error {
	visited := make(map[string]bool)

	var walk func(dir, rel string)
	walk = func(dir, rel string) {
		real, err := filepath.EvalSymlinks(dir)
		if err != nil || visited[real] {
			return
		}
		visited[real] = true

		if err := fw.watcher.Add(dir); err != nil {
			log.Printf("Warning: failed to add watch for %s: %v", dir, err)
			return
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			childRel := entry.Name()
			if rel != "" {
				childRel = rel + "/" + entry.Name()
			}
			if fw.scanner.SkipDir(childRel) {
				continue
			}
			walk(filepath.Join(dir, entry.Name()), childRel)
		}
	}

	if _, err := os.Stat(dir); err != nil {
		return err
	}
	walk(dir, rel)
	return nil
}

// processEvents processes file system events from fsnotify
func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.incrementStats(0, 1, 0)
			log.Printf("File watcher error: %v", err)
		}
	}
}

// handleEvent queues the path of a single event. Removals and renames are
// queued unconditionally; Rebuild works out what disappeared.
func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	rel, err := fw.scanner.Rel(event.Name)
	if err != nil {
		return
	}
	debug.LogBuild("FileWatcher: received event %v for path %s\n", event.Op, rel)

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		fw.debouncer.add(rel)
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		fw.debouncer.add(rel)
		return
	}

	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 && !fw.scanner.SkipDir(rel) {
			if err := fw.addWatches(event.Name, rel); err != nil {
				log.Printf("Warning: failed to add watch for new directory %s: %v", event.Name, err)
			}
			// files may have landed before the watch existed
			fw.debouncer.add(rel)
		}
		return
	}

	if !fw.scanner.Accept(rel, info.Size()) {
		debug.LogBuild("FileWatcher: ignoring file %s (doesn't match patterns)\n", rel)
		return
	}
	fw.debouncer.add(rel)
}

func (fw *FileWatcher) incrementStats(events, errors, batches int64) {
	fw.statsMu.Lock()
	defer fw.statsMu.Unlock()

	fw.eventsProcessed += events
	fw.errorCount += errors
	fw.batches += batches
	if events > 0 {
		fw.lastEventTime = time.Now()
	}
}

// GetStats returns current watch mode statistics
func (fw *FileWatcher) GetStats() WatchStats {
	fw.statsMu.RLock()
	defer fw.statsMu.RUnlock()

	return WatchStats{
		EventsProcessed: fw.eventsProcessed,
		Batches:         fw.batches,
		ErrorCount:      fw.errorCount,
		LastEventTime:   fw.lastEventTime,
		IsActive:        fw.ctx.Err() == nil,
	}
}

// eventDebouncer collects paths and flushes them once no event arrived for
// the debounce interval. Flushes run one at a time.
type eventDebouncer struct {
	mu       sync.Mutex
	pending  map[string]struct{}
	debounce time.Duration
	timer    *time.Timer
	stopped  bool

	flushMu sync.Mutex
	flushFn func(paths []string)
}

func newEventDebouncer(debounce time.Duration, flushFn func(paths []string)) *eventDebouncer {
	return &eventDebouncer{
		pending:  make(map[string]struct{}),
		debounce: debounce,
		flushFn:  flushFn,
	}
}

func (d *eventDebouncer) add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.pending[path] = struct{}{}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, d.flush)
}

func (d *eventDebouncer) flush() {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(d.pending))
	for p := range d.pending {
		paths = append(paths, p)
	}
	d.pending = make(map[string]struct{})
	d.mu.Unlock()

	sort.Strings(paths)
	debug.LogBuild("Processing %d debounced file events\n", len(paths))
	d.flushFn(paths)
}

// stop cancels the pending timer and waits for a running flush
func (d *eventDebouncer) stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()

	d.flushMu.Lock()
	defer d.flushMu.Unlock()
}
