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

package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the mydocs-mcp server.
//
// Priority order (highest to lowest):
//  1. CLI flags
//  2. Environment variables (MYDOCS_*)
//  3. Config file (YAML)
//  4. Defaults
type Config struct {
	Server  ServerConfig  `yaml:"server,omitempty"`
	Store   StoreConfig   `yaml:"store,omitempty"`
	Watcher WatcherConfig `yaml:"watcher,omitempty"`
	Tools   ToolsConfig   `yaml:"tools,omitempty"`
	Logger  LoggerConfig  `yaml:"logger,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// ServerConfig configures the document roots and process-level limits.
type ServerConfig struct {
	// Name reported in the MCP initialize handshake.
	// Default: mydocs-mcp
	Name string `yaml:"name,omitempty"`

	// DocumentRoots are the directories whose files may be indexed.
	// Default: ["./docs"]
	DocumentRoots []string `yaml:"document_roots,omitempty"`

	// DocumentExtensions limits indexing to these extensions (with dot).
	// Default: [.md .markdown .txt .log .pdf .docx .xlsx]
	DocumentExtensions []string `yaml:"document_extensions,omitempty"`

	// MaxDocumentBytes rejects files larger than this before reading.
	// Default: 10 MiB
	MaxDocumentBytes int64 `yaml:"max_document_bytes,omitempty"`

	// ShutdownDeadline bounds the drain on stdin EOF or signal.
	// Default: 5s
	ShutdownDeadline time.Duration `yaml:"shutdown_deadline,omitempty"`
}

// StoreConfig configures the SQLite document store.
type StoreConfig struct {
	// DatabasePath is the SQLite file. Default: ./mydocs.db
	DatabasePath string `yaml:"database_path,omitempty"`

	// BusyTimeout is passed to SQLite's busy handler. Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout,omitempty"`

	// MaxOpenConns / MaxIdleConns / ConnMaxLifetime tune the reader pool.
	MaxOpenConns    int           `yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime,omitempty"`

	// QueryCacheTTL expires cached search results. Default: 300s
	QueryCacheTTL time.Duration `yaml:"query_cache_ttl,omitempty"`

	// MaxSearchResults is the default result limit. The hard cap is 100.
	// Default: 20
	MaxSearchResults int `yaml:"max_search_results,omitempty"`

	// StopWords drops common English words from the index and queries.
	// Default: true
	StopWords *bool `yaml:"stop_words,omitempty"`

	// SlowQueryThreshold logs a warning for searches slower than this.
	// Default: 200ms
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold,omitempty"`
}

// StopWordsEnabled reports whether stop-word filtering is on.
func (c *StoreConfig) StopWordsEnabled() bool {
	return c == nil || c.StopWords == nil || *c.StopWords
}

// WatcherConfig configures the filesystem watcher.
type WatcherConfig struct {
	// Enabled turns the watcher on. Default: true
	Enabled *bool `yaml:"enabled,omitempty"`

	// Debounce coalesces rapid events per path. Default: 500ms
	Debounce time.Duration `yaml:"debounce,omitempty"`

	// BatchInterval flushes collected paths. Default: 1s
	BatchInterval time.Duration `yaml:"batch_interval,omitempty"`

	// Workers bounds concurrent batch processing. Default: 4
	Workers int `yaml:"workers,omitempty"`

	// MaxBatch flushes a batch early when it reaches this size.
	// Default: 256
	MaxBatch int `yaml:"max_batch,omitempty"`

	// IgnorePatterns drops events whose file name matches one of these
	// globs before any other work. Default: editor and OS noise
	// (*.tmp, *.swp, *~, .*).
	IgnorePatterns []string `yaml:"ignore_patterns,omitempty"`
}

// IsEnabled reports whether the watcher should run.
func (c *WatcherConfig) IsEnabled() bool {
	return c == nil || c.Enabled == nil || *c.Enabled
}

// ToolsConfig configures tool execution.
type ToolsConfig struct {
	// Timeout bounds a single tool invocation. Default: 30s
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	// Level specifies the log level (debug, info, warn, error).
	// Default: info
	Level string `yaml:"level,omitempty"`

	// File specifies the log file path.
	// If empty, logs go to stderr. stdout is never a log sink.
	File string `yaml:"file,omitempty"`

	// Format specifies the log format: "text", "verbose", or "json".
	// Default: text
	Format string `yaml:"format,omitempty"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	// Enabled starts a localhost metrics listener. Default: false
	Enabled bool `yaml:"enabled,omitempty"`

	// Addr is the listen address. Default: 127.0.0.1:9190
	Addr string `yaml:"addr,omitempty"`
}

// SetDefaults applies default values to all sections.
func (c *Config) SetDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "mydocs-mcp"
	}
	if len(c.Server.DocumentRoots) == 0 {
		c.Server.DocumentRoots = []string{"./docs"}
	}
	if len(c.Server.DocumentExtensions) == 0 {
		c.Server.DocumentExtensions = []string{
			".md", ".markdown", ".txt", ".log", ".pdf", ".docx", ".xlsx",
		}
	}
	if c.Server.MaxDocumentBytes == 0 {
		c.Server.MaxDocumentBytes = 10 << 20
	}
	if c.Server.ShutdownDeadline == 0 {
		c.Server.ShutdownDeadline = 5 * time.Second
	}

	if c.Store.DatabasePath == "" {
		c.Store.DatabasePath = "./mydocs.db"
	}
	if c.Store.BusyTimeout == 0 {
		c.Store.BusyTimeout = 5 * time.Second
	}
	if c.Store.MaxOpenConns == 0 {
		c.Store.MaxOpenConns = 8
	}
	if c.Store.MaxIdleConns == 0 {
		c.Store.MaxIdleConns = 4
	}
	if c.Store.ConnMaxLifetime == 0 {
		c.Store.ConnMaxLifetime = time.Hour
	}
	if c.Store.QueryCacheTTL == 0 {
		c.Store.QueryCacheTTL = 300 * time.Second
	}
	if c.Store.MaxSearchResults == 0 {
		c.Store.MaxSearchResults = 20
	}
	if c.Store.SlowQueryThreshold == 0 {
		c.Store.SlowQueryThreshold = 200 * time.Millisecond
	}

	if c.Watcher.Debounce == 0 {
		c.Watcher.Debounce = 500 * time.Millisecond
	}
	if c.Watcher.BatchInterval == 0 {
		c.Watcher.BatchInterval = time.Second
	}
	if c.Watcher.Workers == 0 {
		c.Watcher.Workers = 4
	}
	if c.Watcher.MaxBatch == 0 {
		c.Watcher.MaxBatch = 256
	}
	if len(c.Watcher.IgnorePatterns) == 0 {
		c.Watcher.IgnorePatterns = []string{"*.tmp", "*.swp", "*~", ".*"}
	}

	if c.Tools.Timeout == 0 {
		c.Tools.Timeout = 30 * time.Second
	}

	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = "127.0.0.1:9190"
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if len(c.Server.DocumentRoots) == 0 {
		return fmt.Errorf("server: at least one document root is required")
	}
	for _, root := range c.Server.DocumentRoots {
		if root == "" {
			return fmt.Errorf("server: document root cannot be empty")
		}
	}
	if c.Server.MaxDocumentBytes <= 0 {
		return fmt.Errorf("server: max_document_bytes must be positive, got %d", c.Server.MaxDocumentBytes)
	}
	if c.Server.ShutdownDeadline <= 0 {
		return fmt.Errorf("server: shutdown_deadline must be positive")
	}

	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store: database_path is required")
	}
	if c.Store.MaxSearchResults < 1 || c.Store.MaxSearchResults > 100 {
		return fmt.Errorf("store: max_search_results must be in [1, 100], got %d", c.Store.MaxSearchResults)
	}
	if c.Store.QueryCacheTTL < 0 {
		return fmt.Errorf("store: query_cache_ttl cannot be negative")
	}

	if c.Watcher.Debounce <= 0 {
		return fmt.Errorf("watcher: debounce must be positive")
	}
	if c.Watcher.BatchInterval <= 0 {
		return fmt.Errorf("watcher: batch_interval must be positive")
	}
	if c.Watcher.Workers < 1 {
		return fmt.Errorf("watcher: workers must be at least 1, got %d", c.Watcher.Workers)
	}

	if c.Tools.Timeout <= 0 {
		return fmt.Errorf("tools: timeout must be positive")
	}

	if c.Logger.Level != "" {
		validLevels := map[string]bool{
			"debug":   true,
			"info":    true,
			"warn":    true,
			"warning": true,
			"error":   true,
		}
		if !validLevels[c.Logger.Level] {
			return fmt.Errorf("logger: invalid log level %q (valid: debug, info, warn, error)", c.Logger.Level)
		}
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics: addr is required when metrics are enabled")
	}

	return nil
}
