package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/xref/internal/debug"
	"github.com/standardbeagle/xref/internal/indexing"
	"github.com/standardbeagle/xref/internal/mcp"
	"github.com/standardbeagle/xref/internal/server"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve queries over a unix socket or TCP while rebuilding in the background",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "socket",
				Usage: "Unix socket path (default: per-project socket in the temp dir)",
			},
			&cli.StringFlag{
				Name:  "address",
				Usage: "Listen on TCP host:port instead of a unix socket",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Rebuild changed files automatically",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	w, err := openWorkspace(c)
	if err != nil {
		return err
	}
	defer w.Close()

	cfg := w.cfg
	if c.IsSet("socket") {
		cfg.Server.Socket = c.String("socket")
	}
	if c.IsSet("address") {
		cfg.Server.Address = c.String("address")
		cfg.Server.Socket = ""
	}

	srv := server.NewIndexServer(cfg, w.store, w.builder, w.engine)
	if w.ledger != nil {
		srv.History = w.ledger
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	if w.store.Current() == nil {
		srv.StartIndexing(nil)
	}
	if c.Bool("watch") || cfg.Index.WatchMode {
		watcher, err := indexing.WatchBuilder(w.builder, time.Duration(cfg.Index.WatchDebounceMs)*time.Millisecond)
		if err != nil {
			fmt.Fprintf(c.App.ErrWriter, "Warning: file watching disabled: %v\n", err)
		} else {
			srv.Watcher = watcher
			defer watcher.Stop()
		}
	}

	fmt.Fprintf(c.App.Writer, "Index server listening on %s\n", srv.Addr())
	fmt.Fprintf(c.App.Writer, "Root: %s\n", cfg.Project.Root)
	fmt.Fprintf(c.App.Writer, "\nUse 'xref shutdown' to stop the server\n")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	srv.Wait(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	fmt.Fprintln(c.App.Writer, "Server shut down cleanly")
	return nil
}

func shutdownCommand() *cli.Command {
	return &cli.Command{
		Name:  "shutdown",
		Usage: "Stop the running index server of this project",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Cancel a running build instead of waiting for it",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfigWithOverrides(c)
			if err != nil {
				return err
			}
			client := clientFor(cfg)
			defer client.Close()

			if !client.IsServerRunning() {
				return fmt.Errorf("no server is running for root: %s", cfg.Project.Root)
			}
			if err := client.Shutdown(c.Bool("force")); err != nil {
				return fmt.Errorf("failed to shutdown server: %w", err)
			}
			fmt.Fprintln(c.App.Writer, "Server shut down successfully")
			return nil
		},
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the index to an MCP client over stdio",
		Action: func(c *cli.Context) error {
			// stdout carries the protocol
			debug.SetMCPMode(true)
			if c.Bool("debug") {
				path, err := debug.OpenLogFile("")
				if err != nil {
					return err
				}
				defer debug.CloseLogFile()
				fmt.Fprintf(c.App.ErrWriter, "debug log: %s\n", path)
			}

			w, err := openWorkspace(c)
			if err != nil {
				return debug.Fatal("failed to open index: %v\n", err)
			}
			defer w.Close()

			s := mcp.NewServer(w.cfg, w.store, w.builder, w.engine)
			if w.ledger != nil {
				s.History = w.ledger
			}
			s.AutoIndex()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			runErr := s.Start(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.Shutdown(shutdownCtx); err != nil {
				debug.LogMCP("shutdown: %v\n", err)
			}
			if runErr != nil && ctx.Err() == nil {
				return debug.Fatal("MCP server error: %v\n", runErr)
			}
			return nil
		},
	}
}
