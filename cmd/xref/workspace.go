package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/xref/internal/config"
	"github.com/standardbeagle/xref/internal/core"
	"github.com/standardbeagle/xref/internal/indexing"
	"github.com/standardbeagle/xref/internal/ledger"
	"github.com/standardbeagle/xref/internal/persist"
	"github.com/standardbeagle/xref/internal/search"
	"github.com/standardbeagle/xref/internal/server"
)

// workspace wires the store, builder and query engine of one project,
// together with the optional persisted versions and build ledger
type workspace struct {
	cfg     *config.Config
	store   *core.Store
	builder *indexing.Builder
	engine  *search.Engine
	repo    *persist.Repository // nil when persistence is off
	ledger  *ledger.Ledger      // nil when the ledger is disabled
}

// openWorkspace loads cfg from the command line flags and restores the
// newest persisted version when there is one
func openWorkspace(c *cli.Context) (*workspace, error) {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return nil, err
	}
	return newWorkspace(c.Context, cfg)
}

func newWorkspace(ctx context.Context, cfg *config.Config) (*workspace, error) {
	w := &workspace{cfg: cfg, store: core.NewStore()}
	w.builder = indexing.NewBuilder(cfg, w.store, nil)
	w.engine = search.NewEngine(w.store, search.OptionsFromConfig(cfg.Search))

	if cfg.Build.Persist {
		repo, err := persist.OpenRepository(ctx, cfg.Store)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to open index store: %w", err)
		}
		w.repo = repo
		w.builder.Persist = repo
	}

	if path := ledgerPath(cfg); path != "" {
		l, err := ledger.Open(path)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to open build ledger: %w", err)
		}
		w.ledger = l
		w.builder.Ledger = l
	}

	if w.repo != nil {
		v, err := w.repo.Load(ctx)
		switch {
		case err == nil:
			if err := w.builder.Restore(v); err != nil {
				log.Printf("Warning: failed to restore version %d: %v", v.Number(), err)
			}
		case errors.Is(err, persist.ErrNoVersion):
		default:
			// a rebuild replaces whatever could not be read
			log.Printf("Warning: ignoring persisted index: %v", err)
		}
	}
	return w, nil
}

// ledgerPath resolves a relative ledger path against the project root
func ledgerPath(cfg *config.Config) string {
	p := cfg.Build.LedgerPath
	if p == "" || p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cfg.Project.Root, p)
}

// ensureIndex builds the tree when nothing was restored
func (w *workspace) ensureIndex(ctx context.Context, progress io.Writer) error {
	if w.store.Current() != nil {
		return nil
	}
	fmt.Fprintf(progress, "No index found, indexing %s...\n", w.cfg.Project.Root)
	_, err := w.builder.Build(ctx, indexing.BuildOptions{})
	return err
}

func (w *workspace) Close() {
	w.engine.Close()
	if w.ledger != nil {
		if err := w.ledger.Close(); err != nil {
			log.Printf("Warning: failed to close build ledger: %v", err)
		}
	}
}

// clientFor returns a client for the server of this project, honoring a
// configured socket or TCP address
func clientFor(cfg *config.Config) *server.Client {
	switch {
	case cfg.Server.Socket != "":
		return server.NewClientWithSocket(cfg.Server.Socket)
	case cfg.Server.Address != "":
		return server.NewClientWithAddress(cfg.Server.Address)
	default:
		return server.NewClient(cfg.Project.Root)
	}
}
