package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/xref/internal/display"
	xreferrors "github.com/standardbeagle/xref/internal/errors"
	"github.com/standardbeagle/xref/internal/git"
	"github.com/standardbeagle/xref/internal/indexing"
)

// exitHalted is the exit status of a build stopped by the halt threshold
const exitHalted = 2

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:      "index",
		Aliases:   []string{"i"},
		Usage:     "Build the index, or re-ingest the given paths",
		ArgsUsage: "[path...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "since",
				Usage: "Re-ingest the files git reports as changed since `REF`",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output the build report as JSON",
			},
		},
		Action: runIndex,
	}
}

func runIndex(c *cli.Context) error {
	w, err := openWorkspace(c)
	if err != nil {
		return err
	}
	defer w.Close()

	var report *indexing.BuildReport
	switch {
	case c.IsSet("since"):
		paths, sinceErr := changedSince(c.Context, w.cfg.Project.Root, c.String("since"))
		if sinceErr != nil {
			return sinceErr
		}
		report, err = w.builder.Rebuild(c.Context, append(paths, c.Args().Slice()...))
	case c.NArg() > 0:
		report, err = w.builder.Rebuild(c.Context, c.Args().Slice())
	default:
		report, err = w.builder.Build(c.Context, indexing.BuildOptions{})
	}
	if report != nil {
		if c.Bool("json") {
			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(report); encErr != nil {
				return encErr
			}
		} else {
			display.WriteReport(c.App.Writer, report)
		}
	}

	if errors.Is(err, xreferrors.ErrBuildHalted) {
		return cli.Exit(fmt.Sprintf("build halted: %v", err), exitHalted)
	}
	return err
}

// changedSince lists the index paths git reports as changed since ref
func changedSince(ctx context.Context, root, ref string) ([]string, error) {
	provider, err := git.NewProvider(root)
	if err != nil {
		return nil, fmt.Errorf("--since requires a git work tree: %w", err)
	}
	files, err := provider.ChangedSince(ctx, ref)
	if err != nil {
		return nil, err
	}
	return provider.IndexPaths(files), nil
}
