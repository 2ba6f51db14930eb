package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/xref/internal/core"
	"github.com/standardbeagle/xref/internal/display"
	"github.com/standardbeagle/xref/internal/metrics"
	"github.com/standardbeagle/xref/internal/server"
)

// StatusReport is the status command output
type StatusReport struct {
	Timestamp      time.Time              `json:"timestamp"`
	Root           string                 `json:"root"`
	ServerRunning  bool                   `json:"server_running"`
	Ready          bool                   `json:"ready"`
	Index          *core.VersionStats     `json:"index,omitempty"`
	DegradedFiles  []string               `json:"degraded_files,omitempty"`
	Persisted      []uint64               `json:"persisted_versions,omitempty"`
	IndexingActive bool                   `json:"indexing_active"`
	Server         *server.StatsResponse  `json:"server,omitempty"`
	LastBuild      *server.HistoryEntry   `json:"last_build,omitempty"`
	Codebase       *metrics.CodebaseStats `json:"codebase,omitempty"`
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:    "status",
		Aliases: []string{"st"},
		Usage:   "Show the published index version and server statistics",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Include codebase metrics of the published version",
			},
		},
		Action: runStatus,
	}
}

func runStatus(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	report := StatusReport{Timestamp: time.Now(), Root: cfg.Project.Root}

	client := clientFor(cfg)
	defer client.Close()
	if client.IsServerRunning() {
		report.ServerRunning = true
		status, err := client.GetStatus()
		if err != nil {
			return fmt.Errorf("failed to get server status: %w", err)
		}
		report.Ready = status.Ready
		report.DegradedFiles = status.DegradedFiles
		report.IndexingActive = status.IndexingActive
		if status.Ready {
			stats, err := client.GetStats()
			if err != nil {
				return fmt.Errorf("failed to get server stats: %w", err)
			}
			report.Server = stats
			report.Index = &stats.Index
			if c.Bool("verbose") {
				if report.Codebase, err = client.GetCodebaseStats(); err != nil {
					return fmt.Errorf("failed to get codebase metrics: %w", err)
				}
			}
		}
	} else {
		w, err := newWorkspace(c.Context, cfg)
		if err != nil {
			return err
		}
		defer w.Close()
		if v := w.store.Current(); v != nil {
			stats := v.Stats()
			report.Ready = true
			report.Index = &stats
			report.DegradedFiles = v.Degraded()
			if c.Bool("verbose") {
				report.Codebase = metrics.Compute(v)
			}
		}
		if w.repo != nil {
			if report.Persisted, err = w.repo.Versions(c.Context); err != nil {
				return err
			}
		}
		if w.ledger != nil {
			if recent, err := w.ledger.Recent(c.Context, 1); err == nil && len(recent) == 1 {
				report.LastBuild = &recent[0]
			}
		}
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	writeStatus(c.App.Writer, report)
	return nil
}

func writeStatus(w io.Writer, r StatusReport) {
	fmt.Fprintf(w, "Root: %s\n", r.Root)
	if r.ServerRunning {
		fmt.Fprintln(w, "Server: running")
	} else {
		fmt.Fprintln(w, "Server: not running")
	}
	if !r.Ready {
		fmt.Fprintln(w, "Index: not built")
	} else {
		s := r.Index
		fmt.Fprintf(w, "Index: version %d (build %s, %s)\n", s.Number, s.BuildID, s.CreatedAt.Local().Format(time.DateTime))
		fmt.Fprintf(w, "  files:       %d\n", s.Files)
		fmt.Fprintf(w, "  symbols:     %d\n", s.Symbols)
		fmt.Fprintf(w, "  occurrences: %d\n", s.Occurrences)
		if len(r.DegradedFiles) > 0 {
			fmt.Fprintf(w, "  degraded:    %d files\n", len(r.DegradedFiles))
		}
	}
	if r.IndexingActive {
		fmt.Fprintln(w, "Indexing: in progress")
	}
	if len(r.Persisted) > 0 {
		fmt.Fprintf(w, "Persisted versions: %v\n", r.Persisted)
	}
	if r.Server != nil {
		fmt.Fprintf(w, "Queries: %d (%d rate limited, avg %v)\n", r.Server.SearchCount, r.Server.RejectedCount, r.Server.AvgSearchTime)
		fmt.Fprintf(w, "Cache: %d hits, %d misses, %d entries\n", r.Server.Cache.Hits, r.Server.Cache.Misses, r.Server.Cache.Entries)
		fmt.Fprintf(w, "Memory: %.1f MB heap, %d goroutines, up %.0fs\n", r.Server.MemoryHeapMB, r.Server.NumGoroutines, r.Server.UptimeSeconds)
	}
	if r.LastBuild != nil {
		fmt.Fprintf(w, "Last build: %s %s (%s)\n", r.LastBuild.BuildID, r.LastBuild.Status, r.LastBuild.StartedAt.Local().Format(time.DateTime))
	}
	if r.Codebase != nil {
		fmt.Fprintf(w, "\n%s", r.Codebase.FormatAsText())
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recent builds from the build ledger",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Number of builds to list",
				Value:   20,
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfigWithOverrides(c)
			if err != nil {
				return err
			}
			if cfg.Build.LedgerPath == "" {
				return errors.New("build ledger disabled: set build.ledger_path or pass --ledger")
			}
			cfg.Build.Persist = false
			w, err := newWorkspace(c.Context, cfg)
			if err != nil {
				return err
			}
			defer w.Close()

			entries, err := w.ledger.Recent(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}
			if c.Bool("json") {
				if entries == nil {
					entries = []server.HistoryEntry{}
				}
				enc := json.NewEncoder(c.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			return display.WriteHistory(c.App.Writer, entries)
		},
	}
}
