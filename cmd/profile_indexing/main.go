package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/standardbeagle/xref/internal/config"
	"github.com/standardbeagle/xref/internal/core"
	"github.com/standardbeagle/xref/internal/indexing"
	"github.com/standardbeagle/xref/internal/search"
	"github.com/standardbeagle/xref/internal/types"
)

func main() {
	project := flag.String("project", "", "Project path to profile")
	cpuprofile := flag.String("cpuprofile", "", "Write CPU profile to file")
	memprofile := flag.String("memprofile", "", "Write memory profile to file")
	mutexprofile := flag.String("mutexprofile", "", "Write mutex contention profile to file")
	workers := flag.Int("workers", 0, "Analyzer shards run in parallel (0 = number of CPUs)")
	query := flag.String("query", "", "Pattern to search repeatedly after the build")
	repeat := flag.Int("repeat", 1000, "Number of query evaluations")
	flag.Parse()

	if *project == "" {
		fmt.Fprintln(os.Stderr, "Usage: profile_indexing -project=<path> [-cpuprofile=<file>] [-memprofile=<file>] [-mutexprofile=<file>] [-query=<pattern>]")
		os.Exit(1)
	}

	absPath, err := filepath.Abs(*project)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get absolute path: %v\n", err)
		os.Exit(1)
	}

	if *mutexprofile != "" {
		runtime.SetMutexProfileFraction(1)
	}
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	// Load config with defaults (includes exclusion patterns); nothing is persisted
	cfg, err := config.Load(absPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Project.Root = absPath
	cfg.Build.Persist = false
	cfg.Build.LedgerPath = ""

	fmt.Fprintf(os.Stderr, "Profiling: %s\n", absPath)
	store := core.NewStore()
	builder := indexing.NewBuilder(cfg, store, nil)

	start := time.Now()
	report, err := builder.Build(context.Background(), indexing.BuildOptions{Workers: *workers})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build error: %v\n", err)
	}
	elapsed := time.Since(start)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	fmt.Fprintf(os.Stderr, "\nResults:\n")
	if v := store.Current(); v != nil {
		stats := v.Stats()
		fmt.Fprintf(os.Stderr, "  Files: %d\n", stats.Files)
		fmt.Fprintf(os.Stderr, "  Symbols: %d\n", stats.Symbols)
		fmt.Fprintf(os.Stderr, "  Occurrences: %d\n", stats.Occurrences)
	}
	if report != nil {
		fmt.Fprintf(os.Stderr, "  Shards: %d (%d failed)\n", len(report.Shards), report.Failed)
	}
	fmt.Fprintf(os.Stderr, "  Time: %v\n", elapsed)
	fmt.Fprintf(os.Stderr, "  Heap Alloc: %.2f MB\n", float64(memStats.HeapAlloc)/(1024*1024))
	fmt.Fprintf(os.Stderr, "  Total Alloc: %.2f MB\n", float64(memStats.TotalAlloc)/(1024*1024))

	if *query != "" && store.Current() != nil {
		// the cache would answer every repetition after the first
		opts := search.OptionsFromConfig(cfg.Search)
		opts.CacheSize = 0
		engine := search.NewEngine(store, opts)
		spec := types.QuerySpec{Pattern: *query}

		qstart := time.Now()
		var resp *search.Response
		for range *repeat {
			if resp, err = engine.Search(spec); err != nil {
				fmt.Fprintf(os.Stderr, "Query error: %v\n", err)
				break
			}
		}
		engine.Close()
		if resp != nil {
			fmt.Fprintf(os.Stderr, "  Query %q: %s, %v per evaluation\n",
				*query, resp.Summary(), time.Since(qstart)/time.Duration(max(1, *repeat)))
		}
	}

	if *memprofile != "" {
		writeProfile(*memprofile, func(f *os.File) error {
			runtime.GC() // Get current heap stats
			return pprof.WriteHeapProfile(f)
		})
	}
	if *mutexprofile != "" {
		writeProfile(*mutexprofile, func(f *os.File) error {
			return pprof.Lookup("mutex").WriteTo(f, 0)
		})
	}
	if *cpuprofile != "" {
		fmt.Fprintf(os.Stderr, "\nCPU profile written to: %s\n", *cpuprofile)
		fmt.Fprintf(os.Stderr, "Analyze with: go tool pprof -top %s\n", *cpuprofile)
	}
}

func writeProfile(path string, write func(*os.File) error) {
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create profile %s: %v\n", path, err)
		return
	}
	defer f.Close()
	if err := write(f); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write profile %s: %v\n", path, err)
		return
	}
	fmt.Fprintf(os.Stderr, "\nProfile written to: %s\n", path)
	fmt.Fprintf(os.Stderr, "Analyze with: go tool pprof -top %s\n", path)
}
