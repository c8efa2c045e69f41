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

package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kadirpekel/mydocs-mcp/pkg/config"
	"github.com/kadirpekel/mydocs-mcp/pkg/observability"
	"github.com/kadirpekel/mydocs-mcp/pkg/parsers"
	"github.com/kadirpekel/mydocs-mcp/pkg/store"
)

// Statuses reported by the indexing pipeline.
const (
	StatusIndexed   = "indexed"
	StatusUpdated   = "updated"
	StatusUnchanged = "unchanged"
)

// IndexOutcome reports what one indexing pass did.
type IndexOutcome struct {
	DocumentID     int64
	Path           string
	Status         string
	TokensIndexed  int
	MetadataFields int
}

// Indexer is the pipeline behind the indexDocument tool. The filesystem
// watcher drives the same pipeline for files it sees change on disk.
type Indexer struct {
	store     *store.Store
	parsers   *parsers.Registry
	roots     []string
	exts      map[string]bool
	maxBytes  int64
	stopWords bool
	metrics   *observability.Metrics
}

// NewIndexer builds the pipeline. Document roots are resolved to absolute
// paths once so containment checks stay cheap.
func NewIndexer(cfg *config.Config, st *store.Store, reg *parsers.Registry, metrics *observability.Metrics) (*Indexer, error) {
	roots := make([]string, 0, len(cfg.Server.DocumentRoots))
	for _, root := range cfg.Server.DocumentRoots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve document root '%s': %w", root, err)
		}
		roots = append(roots, filepath.Clean(abs))
	}

	exts := make(map[string]bool, len(cfg.Server.DocumentExtensions))
	for _, ext := range cfg.Server.DocumentExtensions {
		exts[strings.ToLower(ext)] = true
	}

	return &Indexer{
		store:     st,
		parsers:   reg,
		roots:     roots,
		exts:      exts,
		maxBytes:  cfg.Server.MaxDocumentBytes,
		stopWords: cfg.Store.StopWordsEnabled(),
		metrics:   metrics,
	}, nil
}

// Roots returns the absolute document roots.
func (ix *Indexer) Roots() []string {
	roots := make([]string, len(ix.roots))
	copy(roots, ix.roots)
	return roots
}

// Allowed reports whether path carries an indexable extension.
func (ix *Indexer) Allowed(path string) bool {
	return ix.exts[strings.ToLower(filepath.Ext(path))]
}

func (ix *Indexer) within(path string) bool {
	for _, root := range ix.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// ResolvePath maps a caller-supplied path onto an absolute path inside the
// document roots and stats it. Relative paths are probed against each root
// in order; the first existing file wins.
func (ix *Indexer) ResolvePath(raw string) (string, os.FileInfo, error) {
	if filepath.IsAbs(raw) {
		path := filepath.Clean(raw)
		if !ix.within(path) {
			return "", nil, argumentError(IndexDocumentName, "file_path", "path '%s' is outside the configured document roots", raw)
		}
		info, err := os.Stat(path)
		if err != nil {
			return "", nil, NewToolError(IndexDocumentName, CodeFileNotFound, fmt.Sprintf("file not found: %s", raw), err)
		}
		return path, info, nil
	}

	for _, root := range ix.roots {
		path := filepath.Clean(filepath.Join(root, raw))
		if !ix.within(path) {
			return "", nil, argumentError(IndexDocumentName, "file_path", "path '%s' escapes the configured document roots", raw)
		}
		if info, err := os.Stat(path); err == nil {
			return path, info, nil
		}
	}
	return "", nil, NewToolError(IndexDocumentName, CodeFileNotFound, fmt.Sprintf("file not found under the document roots: %s", raw), nil)
}

// LookupPaths returns the absolute paths a caller-supplied path may be
// stored under, in probe order. Unlike ResolvePath it does not touch the
// filesystem, so documents whose file has since vanished remain reachable.
func (ix *Indexer) LookupPaths(raw string) []string {
	if filepath.IsAbs(raw) {
		return []string{filepath.Clean(raw)}
	}
	paths := make([]string, 0, len(ix.roots))
	for _, root := range ix.roots {
		paths = append(paths, filepath.Clean(filepath.Join(root, raw)))
	}
	return paths
}

// IndexFile runs the pipeline for one file: resolve, gate by type and size,
// hash, short-circuit unchanged content, parse, tokenize, upsert. Extra
// metadata wins over parser-extracted metadata on key conflicts.
func (ix *Indexer) IndexFile(ctx context.Context, rawPath string, force bool, extra map[string]string) (*IndexOutcome, error) {
	start := time.Now()

	path, info, err := ix.ResolvePath(rawPath)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, argumentError(IndexDocumentName, "file_path", "path '%s' is a directory", rawPath)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !ix.exts[ext] {
		return nil, parsers.NewParserError("index", parsers.CodeUnsupportedType,
			fmt.Sprintf("unsupported file extension %q", ext), path, nil)
	}
	if _, ok := ix.parsers.ForPath(path); !ok {
		return nil, parsers.NewParserError("index", parsers.CodeUnsupportedType,
			fmt.Sprintf("no parser registered for extension %q", ext), path, nil)
	}

	if info.Size() > ix.maxBytes {
		return nil, NewToolError(IndexDocumentName, CodeFileTooLarge,
			fmt.Sprintf("file is %d bytes, limit is %d", info.Size(), ix.maxBytes), nil)
	}

	// One read serves both the content hash and the parser, so the stored
	// hash always matches the stored content even when the file is being
	// rewritten concurrently.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, NewToolError(IndexDocumentName, CodeFileNotFound,
			fmt.Sprintf("failed to read file: %s", path), err)
	}
	if int64(len(raw)) > ix.maxBytes {
		return nil, NewToolError(IndexDocumentName, CodeFileTooLarge,
			fmt.Sprintf("file is %d bytes, limit is %d", len(raw), ix.maxBytes), nil)
	}
	hash := hashBytes(raw)

	existing, _, err := ix.store.GetByPath(ctx, path)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.ContentHash == hash && !force {
		return &IndexOutcome{
			DocumentID: existing.ID,
			Path:       path,
			Status:     StatusUnchanged,
		}, nil
	}

	parsed, err := ix.parsers.Parse(ctx, path, raw)
	if err != nil {
		return nil, err
	}

	meta := make(store.Metadata, len(parsed.Metadata)+len(extra))
	for key, values := range parsed.Metadata {
		meta[key] = append([]string(nil), values...)
	}
	for key, value := range extra {
		meta.Set(key, value)
	}

	normalized := store.NormalizeText(parsed.Content, ix.stopWords)
	postings := store.BuildPostings(store.Tokenize(parsed.Content, ix.stopWords))

	doc := &store.Document{
		Path:           path,
		Title:          parsed.Title,
		Content:        parsed.Content,
		NormalizedText: normalized,
		ContentHash:    hash,
		SizeBytes:      int64(len(raw)),
		MTime:          info.ModTime().UTC(),
		FileType:       parsers.FileType(path),
	}

	id, created, err := ix.store.UpsertDocument(ctx, doc, meta, postings)
	if err != nil {
		return nil, err
	}
	ix.metrics.RecordDocumentsIndexed(ctx, 1)

	status := StatusUpdated
	if created {
		status = StatusIndexed
	}
	slog.Debug("document indexed",
		"path", path,
		"status", status,
		"tokens", len(postings),
		"duration_ms", time.Since(start).Milliseconds())

	return &IndexOutcome{
		DocumentID:     id,
		Path:           path,
		Status:         status,
		TokensIndexed:  len(postings),
		MetadataFields: len(meta),
	}, nil
}

// RemoveFile drops a document by absolute path. Paths that were never
// indexed are tolerated.
func (ix *Indexer) RemoveFile(ctx context.Context, path string) error {
	err := ix.store.DeleteByPath(ctx, filepath.Clean(path))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func hashBytes(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
