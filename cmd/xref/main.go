package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/xref/internal/config"
	"github.com/standardbeagle/xref/internal/debug"
	"github.com/standardbeagle/xref/internal/version"
)

// loadConfigWithOverrides loads the project configuration and applies CLI flag overrides
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", root, err)
	}

	if root != "" {
		// Convert to absolute path to ensure consistent path handling
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
		}
		cfg.Project.Root = absRoot
	}
	if includeFlags := c.StringSlice("include"); len(includeFlags) > 0 {
		cfg.Include = includeFlags
	}
	if excludeFlags := c.StringSlice("exclude"); len(excludeFlags) > 0 {
		cfg.Exclude = append(cfg.Exclude, excludeFlags...)
	}
	cfg.ApplyOverrides(c.Int("workers"), c.String("halt"), strings.Fields(c.String("analyzer")))
	if c.IsSet("ledger") {
		cfg.Build.LedgerPath = c.String("ledger")
	}
	if c.IsSet("store") {
		cfg.Store.Path = c.String("store")
	}
	if c.Bool("no-persist") {
		cfg.Build.Persist = false
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:                   "xref",
		Usage:                  "Cross-reference index and query engine for source trees",
		Version:                version.Describe(),
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory (holds .xref.kdl or .xref.toml)",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Index only files matching glob patterns (e.g., --include '**/*.go')",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Exclude files matching glob patterns (e.g., --exclude '**/testdata/**')",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Analyzer shards run in parallel (0 = number of CPUs)",
			},
			&cli.StringFlag{
				Name:  "halt",
				Usage: "Failed shards that halt a build: a count (\"2\") or a percentage (\"25%\")",
			},
			&cli.StringFlag{
				Name:  "analyzer",
				Usage: "External analyzer command line; empty uses the built-in tree-sitter analyzer",
			},
			&cli.StringFlag{
				Name:  "ledger",
				Usage: "Build ledger database path (empty disables the ledger)",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Directory (or bucket path) holding persisted index versions",
			},
			&cli.BoolFlag{
				Name:  "no-persist",
				Usage: "Keep built versions in memory only",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Write debug output to stderr, or to a log file under mcp",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				debug.EnableDebug = "true"
				debug.SetDebugOutput(os.Stderr)
			}
			return nil
		},
		Commands: []*cli.Command{
			indexCommand(),
			searchCommand(),
			symbolCommand(),
			serveCommand(),
			shutdownCommand(),
			mcpCommand(),
			statusCommand(),
			historyCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if coder, ok := err.(cli.ExitCoder); ok {
		return coder.ExitCode()
	}
	return 1
}
