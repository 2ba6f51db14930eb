package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/xref/internal/display"
	xreferrors "github.com/standardbeagle/xref/internal/errors"
	"github.com/standardbeagle/xref/internal/search"
	"github.com/standardbeagle/xref/internal/types"
)

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Aliases:   []string{"s"},
		Usage:     "Find definitions, declarations, uses and assignments of matching symbols",
		ArgsUsage: "<pattern>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "path",
				Aliases: []string{"p"},
				Usage:   "Path filter: substring, glob (e.g. 'src/**/*.go') or re:<regex>",
			},
			&cli.BoolFlag{
				Name:    "case-sensitive",
				Aliases: []string{"s"},
				Usage:   "Match case exactly",
			},
			&cli.BoolFlag{
				Name:    "regex",
				Aliases: []string{"e"},
				Usage:   "Treat the pattern as a regular expression",
			},
			&cli.StringFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "Encoded query string (q=..&path=..&case=..&regex=..)",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Annotate lines with columns, symbols and occurrence kinds",
			},
			&cli.BoolFlag{
				Name:  "local",
				Usage: "Never use a running server; query the persisted index directly",
			},
		},
		Action: runSearch,
	}
}

// querySpec builds the query from flags, or from an encoded query string
func querySpec(c *cli.Context) (types.QuerySpec, error) {
	if q := c.String("query"); q != "" {
		return search.ParseQuery(q)
	}
	if c.NArg() == 0 {
		return types.QuerySpec{}, errors.New("search pattern required")
	}
	return types.QuerySpec{
		Pattern:       strings.Join(c.Args().Slice(), " "),
		PathFilter:    c.String("path"),
		CaseSensitive: c.Bool("case-sensitive"),
		Regex:         c.Bool("regex"),
	}, nil
}

func runSearch(c *cli.Context) error {
	spec, err := querySpec(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	var resp *search.Response
	if client := clientFor(cfg); !c.Bool("local") && client.IsServerRunning() {
		resp, err = client.Search(spec)
		client.Close()
	} else {
		resp, err = searchLocal(c, spec)
	}
	if err != nil {
		var qe *xreferrors.QueryError
		if errors.As(err, &qe) {
			return cli.Exit(err.Error(), 2)
		}
		return err
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	verbose := c.Bool("verbose")
	formatter := display.NewResultFormatter(display.FormatterOptions{
		ShowKinds:   verbose,
		ShowSymbols: verbose,
		ShowColumns: verbose,
	})
	fmt.Fprint(c.App.Writer, formatter.Format(resp))
	return nil
}

func searchLocal(c *cli.Context, spec types.QuerySpec) (*search.Response, error) {
	w, err := openWorkspace(c)
	if err != nil {
		return nil, err
	}
	defer w.Close()

	if err := w.ensureIndex(c.Context, os.Stderr); err != nil && w.store.Current() == nil {
		return nil, err
	}
	return w.engine.Search(spec)
}

func symbolCommand() *cli.Command {
	return &cli.Command{
		Name:      "symbol",
		Aliases:   []string{"sym"},
		Usage:     "List every occurrence of a symbol, by raw identifier or display name",
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of symbols",
				Value:   10,
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("exactly one symbol name required")
			}
			name := c.Args().First()

			w, err := openWorkspace(c)
			if err != nil {
				return err
			}
			defer w.Close()
			if err := w.ensureIndex(c.Context, os.Stderr); err != nil && w.store.Current() == nil {
				return err
			}
			v, err := w.store.Snapshot()
			if err != nil {
				return err
			}

			symbols := search.LookupSymbol(v, name, c.Int("limit"))
			if c.Bool("json") {
				if symbols == nil {
					symbols = []search.SymbolInfo{}
				}
				enc := json.NewEncoder(c.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(symbols)
			}
			if len(symbols) == 0 {
				fmt.Fprintf(c.App.Writer, "No symbol named %q.\n", name)
				if s := search.Suggest(v, name, w.cfg.Search.MaxSuggestions); len(s) > 0 {
					fmt.Fprintf(c.App.Writer, "Did you mean: %s\n", strings.Join(s, ", "))
				}
				return nil
			}
			fmt.Fprint(c.App.Writer, display.NewResultFormatter(display.FormatterOptions{}).FormatSymbols(symbols))
			return nil
		},
	}
}
