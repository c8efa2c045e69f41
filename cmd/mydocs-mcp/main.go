// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command mydocs-mcp is the MCP stdio server for local document search.
//
// Usage:
//
//	mydocs-mcp --config mydocs.yaml
//	mydocs-mcp --document-root ~/notes --database ~/.mydocs/index.db
//	mydocs-mcp serve --no-watch --log-level debug
//
// The server speaks JSON-RPC 2.0 on stdin/stdout, so stdout carries
// protocol frames exclusively. Logs go to stderr or --log-file.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	mydocs "github.com/kadirpekel/mydocs-mcp"
	"github.com/kadirpekel/mydocs-mcp/pkg/config"
	"github.com/kadirpekel/mydocs-mcp/pkg/logger"
	"github.com/kadirpekel/mydocs-mcp/pkg/observability"
	"github.com/kadirpekel/mydocs-mcp/pkg/parsers"
	"github.com/kadirpekel/mydocs-mcp/pkg/protocol"
	"github.com/kadirpekel/mydocs-mcp/pkg/store"
	"github.com/kadirpekel/mydocs-mcp/pkg/tools"
	"github.com/kadirpekel/mydocs-mcp/pkg/watcher"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve   ServeCmd   `cmd:"" default:"1" help:"Serve MCP over stdio (the default command)."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file (YAML)." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error). Overrides the config file."`
	LogFile   string `help:"Log file path (empty = stderr). Overrides the config file."`
	LogFormat string `help:"Log format (text, verbose, or json). Overrides the config file."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(mydocs.GetVersion())
	return nil
}

// ServeCmd runs the MCP server on stdin/stdout until the client closes
// stdin or the process receives SIGINT/SIGTERM.
type ServeCmd struct {
	DocumentRoot []string `name:"document-root" help:"Directory whose files may be indexed (repeatable). Overrides the config file." type:"path"`
	Database     string   `help:"SQLite database path. Overrides the config file." type:"path"`
	NoWatch      bool     `name:"no-watch" help:"Disable the filesystem watcher."`
	MetricsAddr  string   `name:"metrics-addr" help:"Expose Prometheus metrics on this address (e.g. 127.0.0.1:9190)." placeholder:"ADDR"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	// CLI flags win over config file and environment.
	if len(c.DocumentRoot) > 0 {
		cfg.Server.DocumentRoots = c.DocumentRoot
	}
	if c.Database != "" {
		cfg.Store.DatabasePath = c.Database
	}
	if c.NoWatch {
		enabled := false
		cfg.Watcher.Enabled = &enabled
	}
	if c.MetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = c.MetricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logCleanup, err := c.initLogger(cli, cfg)
	if err != nil {
		return err
	}
	if logCleanup != nil {
		defer logCleanup()
	}
	if cli.Config != "" {
		slog.Info("Loaded configuration", "path", cli.Config)
	}

	metrics, err := observability.InitMetrics(ctx, cfg.Metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	if cfg.Metrics.Enabled {
		metricsSrv := observability.NewServer(cfg.Metrics.Addr)
		go func() {
			if err := metricsSrv.Start(); err != nil {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			if err := metricsSrv.Shutdown(context.Background()); err != nil {
				slog.Warn("Metrics server shutdown failed", "error", err)
			}
		}()
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}
	st.SetMetrics(metrics)
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("Failed to close document store", "error", err)
		}
	}()

	indexer, err := tools.NewIndexer(cfg, st, parsers.DefaultRegistry(), metrics)
	if err != nil {
		return fmt.Errorf("failed to create indexer: %w", err)
	}

	registry := tools.NewRegistry(cfg.Tools, metrics)
	for _, tool := range []tools.Tool{
		tools.NewIndexDocumentTool(indexer),
		tools.NewSearchDocumentsTool(cfg.Store, st),
		tools.NewGetDocumentTool(st, indexer),
	} {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}

	// The watcher is best-effort: tool calls still work without it.
	if cfg.Watcher.IsEnabled() {
		w := watcher.New(cfg, indexer, st, metrics)
		if err := w.Start(ctx); err != nil {
			slog.Warn("Failed to start file watcher", "error", err)
		} else {
			defer func() {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownDeadline)
				defer stopCancel()
				if err := w.Stop(stopCtx); err != nil {
					slog.Warn("File watcher did not drain cleanly", "error", err)
				}
			}()
		}
	}

	srv := protocol.NewServer(cfg.Server.Name, mydocs.Version, registry)
	srv.SetDrainTimeout(cfg.Server.ShutdownDeadline)
	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		return fmt.Errorf("server terminated: %w", err)
	}

	slog.Info("Client disconnected, shutting down")
	return nil
}

// initLogger configures slog from CLI flags, falling back to the config
// file for anything the flags leave unset. stdout is never a log sink.
func (c *ServeCmd) initLogger(cli *CLI, cfg *config.Config) (func(), error) {
	levelStr := cli.LogLevel
	if levelStr == "" {
		levelStr = cfg.Logger.Level
	}
	format := cli.LogFormat
	if format == "" {
		format = cfg.Logger.Format
	}
	logFile := cli.LogFile
	if logFile == "" {
		logFile = cfg.Logger.File
	}

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		return nil, err
	}

	output := os.Stderr
	var cleanup func()
	if logFile != "" {
		file, closeFile, err := logger.OpenLogFile(logFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		cleanup = closeFile
	}

	logger.Init(level, output, format)
	return cleanup, nil
}

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env files: %v\n", err)
		os.Exit(1)
	}

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("mydocs-mcp"),
		kong.Description("mydocs-mcp - Local document search and retrieval over MCP"),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
