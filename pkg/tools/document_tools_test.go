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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/mydocs-mcp/pkg/config"
	"github.com/kadirpekel/mydocs-mcp/pkg/parsers"
	"github.com/kadirpekel/mydocs-mcp/pkg/store"
)

type toolEnv struct {
	registry *Registry
	indexer  *Indexer
	store    *store.Store
	root     string
}

func newToolEnv(t *testing.T, mutate func(*config.Config)) *toolEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Server.DocumentRoots = []string{t.TempDir()}
	cfg.Store.DatabasePath = filepath.Join(t.TempDir(), "tools.db")
	if mutate != nil {
		mutate(cfg)
	}

	st, err := store.Open(context.Background(), cfg.Store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	indexer, err := NewIndexer(cfg, st, parsers.DefaultRegistry(), nil)
	require.NoError(t, err)

	registry := NewRegistry(cfg.Tools, nil)
	require.NoError(t, registry.Register(NewIndexDocumentTool(indexer)))
	require.NoError(t, registry.Register(NewSearchDocumentsTool(cfg.Store, st)))
	require.NoError(t, registry.Register(NewGetDocumentTool(st, indexer)))

	return &toolEnv{
		registry: registry,
		indexer:  indexer,
		store:    st,
		root:     cfg.Server.DocumentRoots[0],
	}
}

func (env *toolEnv) writeFile(t *testing.T, rel, content string) string {
	t.Helper()

	path := filepath.Join(env.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (env *toolEnv) index(t *testing.T, args map[string]any) *IndexDocumentResponse {
	t.Helper()

	result, err := env.registry.Call(context.Background(), IndexDocumentName, args)
	require.NoError(t, err)
	resp, ok := result.Data.(*IndexDocumentResponse)
	require.True(t, ok, "unexpected payload type %T", result.Data)
	return resp
}

func TestIndexDocument_NewFile(t *testing.T) {
	env := newToolEnv(t, nil)
	path := env.writeFile(t, "guide.md", `---
author: jane
---
# Deployment Guide

Kubernetes rollout procedures and rollback steps.
`)

	resp := env.index(t, map[string]any{"file_path": path})

	assert.Equal(t, StatusIndexed, resp.Status)
	assert.Greater(t, resp.DocumentID, int64(0))
	assert.Equal(t, path, resp.Path)
	assert.Greater(t, resp.TokensIndexed, 0)
	assert.Greater(t, resp.MetadataFields, 0)
}

func TestIndexDocument_RelativePathResolved(t *testing.T) {
	env := newToolEnv(t, nil)
	abs := env.writeFile(t, "notes/standup.md", "# Standup\n\nYesterday we shipped the indexer.\n")

	resp := env.index(t, map[string]any{"file_path": filepath.Join("notes", "standup.md")})

	assert.Equal(t, StatusIndexed, resp.Status)
	assert.Equal(t, abs, resp.Path)
}

func TestIndexDocument_UnchangedAndForce(t *testing.T) {
	env := newToolEnv(t, nil)
	path := env.writeFile(t, "stable.md", "# Stable\n\nNothing changes here.\n")

	first := env.index(t, map[string]any{"file_path": path})
	assert.Equal(t, StatusIndexed, first.Status)

	second := env.index(t, map[string]any{"file_path": path})
	assert.Equal(t, StatusUnchanged, second.Status)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Zero(t, second.TokensIndexed)

	forced := env.index(t, map[string]any{"file_path": path, "force_reindex": true})
	assert.Equal(t, StatusUpdated, forced.Status)
	assert.Equal(t, first.DocumentID, forced.DocumentID)
	assert.Greater(t, forced.TokensIndexed, 0)
}

func TestIndexDocument_ModifiedFileUpdated(t *testing.T) {
	env := newToolEnv(t, nil)
	path := env.writeFile(t, "draft.md", "# Draft\n\nFirst version.\n")

	first := env.index(t, map[string]any{"file_path": path})

	env.writeFile(t, "draft.md", "# Draft\n\nSecond version with more detail.\n")
	second := env.index(t, map[string]any{"file_path": path})

	assert.Equal(t, StatusUpdated, second.Status)
	assert.Equal(t, first.DocumentID, second.DocumentID)
}

func TestIndexDocument_CallerMetadataWins(t *testing.T) {
	env := newToolEnv(t, nil)
	path := env.writeFile(t, "owned.md", `---
author: jane
team: docs
---
# Owned

Ownership metadata comes from the caller.
`)

	resp := env.index(t, map[string]any{
		"file_path": path,
		"metadata":  map[string]any{"author": "platform-team"},
	})

	result, err := env.registry.Call(context.Background(), GetDocumentName, map[string]any{
		"document_id": resp.DocumentID,
	})
	require.NoError(t, err)
	doc := result.Data.(*GetDocumentResponse)

	assert.Equal(t, []string{"platform-team"}, doc.Metadata["author"])
	assert.Equal(t, []string{"docs"}, doc.Metadata["team"])
}

func TestIndexDocument_MissingFile(t *testing.T) {
	env := newToolEnv(t, nil)

	_, err := env.registry.Call(context.Background(), IndexDocumentName, map[string]any{
		"file_path": filepath.Join(env.root, "ghost.md"),
	})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "FILE_NOT_FOUND", toolErr.AppCode())
}

func TestIndexDocument_UnsupportedExtension(t *testing.T) {
	env := newToolEnv(t, nil)
	path := env.writeFile(t, "image.png", "not really an image")

	_, err := env.registry.Call(context.Background(), IndexDocumentName, map[string]any{
		"file_path": path,
	})

	var parserErr *parsers.ParserError
	require.ErrorAs(t, err, &parserErr)
	assert.Equal(t, "UNSUPPORTED_TYPE", parserErr.AppCode())
}

func TestIndexDocument_DirectoryRejected(t *testing.T) {
	env := newToolEnv(t, nil)
	require.NoError(t, os.MkdirAll(filepath.Join(env.root, "subdir"), 0o755))

	_, err := env.registry.Call(context.Background(), IndexDocumentName, map[string]any{
		"file_path": filepath.Join(env.root, "subdir"),
	})

	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
}

func TestIndexDocument_OutsideRootsRejected(t *testing.T) {
	env := newToolEnv(t, nil)

	outside := filepath.Join(t.TempDir(), "secret.md")
	require.NoError(t, os.WriteFile(outside, []byte("# Secret"), 0o644))

	_, err := env.registry.Call(context.Background(), IndexDocumentName, map[string]any{
		"file_path": outside,
	})

	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "file_path", argErr.Field)
}

func TestIndexDocument_TraversalRejected(t *testing.T) {
	env := newToolEnv(t, nil)

	_, err := env.registry.Call(context.Background(), IndexDocumentName, map[string]any{
		"file_path": filepath.Join("..", "escape.md"),
	})

	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
}

func TestIndexDocument_FileTooLarge(t *testing.T) {
	env := newToolEnv(t, func(cfg *config.Config) {
		cfg.Server.MaxDocumentBytes = 64
	})
	path := env.writeFile(t, "big.md", strings.Repeat("lorem ipsum ", 100))

	_, err := env.registry.Call(context.Background(), IndexDocumentName, map[string]any{
		"file_path": path,
	})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "FILE_TOO_LARGE", toolErr.AppCode())

	// Nothing may be written for an oversized file.
	stats, err := env.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.DocumentCount)
}

func TestSearchDocuments_RoundTrip(t *testing.T) {
	env := newToolEnv(t, nil)
	env.index(t, map[string]any{"file_path": env.writeFile(t, "deploy.md",
		"# Deploy\n\nKubernetes deployment checklist for the platform.\n")})
	env.index(t, map[string]any{"file_path": env.writeFile(t, "recipes.md",
		"# Recipes\n\nSourdough starter maintenance notes.\n")})

	result, err := env.registry.Call(context.Background(), SearchDocumentsName, map[string]any{
		"query": "kubernetes deployment",
	})
	require.NoError(t, err)
	resp := result.Data.(*SearchDocumentsResponse)

	require.Equal(t, 1, resp.TotalFound)
	require.Len(t, resp.Results, 1)

	hit := resp.Results[0]
	assert.Greater(t, hit.DocumentID, int64(0))
	assert.Equal(t, filepath.Join(env.root, "deploy.md"), hit.Path)
	assert.Contains(t, hit.Snippet, "**Kubernetes**")
	assert.Equal(t, []string{"deployment", "kubernetes"}, hit.MatchedTokens)
	assert.NotEmpty(t, hit.LastModified)
	assert.Greater(t, hit.FileSize, int64(0))
	assert.GreaterOrEqual(t, resp.ExecutionTimeMs, int64(0))
}

func TestSearchDocuments_ScoresRounded(t *testing.T) {
	env := newToolEnv(t, nil)
	env.index(t, map[string]any{"file_path": env.writeFile(t, "a.md", "# A\n\ntooling tooling tooling notes\n")})
	env.index(t, map[string]any{"file_path": env.writeFile(t, "b.md", "# B\n\ntooling appears once\n")})
	env.index(t, map[string]any{"file_path": env.writeFile(t, "c.md", "# C\n\nnothing relevant here\n")})

	result, err := env.registry.Call(context.Background(), SearchDocumentsName, map[string]any{
		"query": "tooling",
	})
	require.NoError(t, err)
	resp := result.Data.(*SearchDocumentsResponse)

	require.NotEmpty(t, resp.Results)
	for _, hit := range resp.Results {
		scaled := hit.RelevanceScore * 10000
		assert.InDelta(t, scaled, float64(int64(scaled+0.5)), 1e-6,
			"score %v must carry at most four decimals", hit.RelevanceScore)
	}
}

func TestSearchDocuments_InvalidQuery(t *testing.T) {
	env := newToolEnv(t, nil)

	// Stop words tokenize to nothing, making the query unsearchable.
	_, err := env.registry.Call(context.Background(), SearchDocumentsName, map[string]any{
		"query": "the of and",
	})

	var storeErr *store.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "INVALID_QUERY", storeErr.AppCode())
}

func TestSearchDocuments_LimitBoundsRejectedBySchema(t *testing.T) {
	env := newToolEnv(t, nil)

	for _, limit := range []int{0, 10000} {
		_, err := env.registry.Call(context.Background(), SearchDocumentsName, map[string]any{
			"query": "anything",
			"limit": limit,
		})

		var argErr *ArgumentError
		require.ErrorAs(t, err, &argErr, "limit %d must be rejected", limit)
		assert.Equal(t, "limit", argErr.Field)
	}
}

func TestSearchDocuments_FileTypeFilterNormalized(t *testing.T) {
	env := newToolEnv(t, nil)
	env.index(t, map[string]any{"file_path": env.writeFile(t, "guide.md", "# Guide\n\ncaching strategies overview\n")})
	env.index(t, map[string]any{"file_path": env.writeFile(t, "guide.txt", "caching strategies overview as text\n")})

	result, err := env.registry.Call(context.Background(), SearchDocumentsName, map[string]any{
		"query":      "caching",
		"file_types": []any{".MD"},
	})
	require.NoError(t, err)
	resp := result.Data.(*SearchDocumentsResponse)

	require.Equal(t, 1, resp.TotalFound)
	assert.Equal(t, filepath.Join(env.root, "guide.md"), resp.Results[0].Path)
}

func TestGetDocument_ByIDAndByPath(t *testing.T) {
	env := newToolEnv(t, nil)
	path := env.writeFile(t, "handbook.md", "# Handbook\n\nOnboarding steps live here.\n")
	indexed := env.index(t, map[string]any{"file_path": path})

	byID, err := env.registry.Call(context.Background(), GetDocumentName, map[string]any{
		"document_id": indexed.DocumentID,
	})
	require.NoError(t, err)
	idResp := byID.Data.(*GetDocumentResponse)
	assert.Equal(t, indexed.DocumentID, idResp.DocumentID)
	assert.Contains(t, idResp.Content, "Onboarding steps")
	assert.False(t, idResp.Truncated)
	assert.Equal(t, "md", idResp.FileType)
	assert.NotEmpty(t, idResp.LastModified)
	assert.NotEmpty(t, idResp.IndexedAt)

	byPath, err := env.registry.Call(context.Background(), GetDocumentName, map[string]any{
		"file_path": "handbook.md",
	})
	require.NoError(t, err)
	pathResp := byPath.Data.(*GetDocumentResponse)
	assert.Equal(t, indexed.DocumentID, pathResp.DocumentID)
}

func TestGetDocument_SelectorRequired(t *testing.T) {
	env := newToolEnv(t, nil)

	var argErr *ArgumentError

	_, err := env.registry.Call(context.Background(), GetDocumentName, map[string]any{})
	require.ErrorAs(t, err, &argErr)

	_, err = env.registry.Call(context.Background(), GetDocumentName, map[string]any{
		"file_path":   "x.md",
		"document_id": 1,
	})
	require.ErrorAs(t, err, &argErr)
}

func TestGetDocument_NotFound(t *testing.T) {
	env := newToolEnv(t, nil)

	_, err := env.registry.Call(context.Background(), GetDocumentName, map[string]any{
		"document_id": 424242,
	})

	var storeErr *store.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "DOCUMENT_NOT_FOUND", storeErr.AppCode())
}

func TestGetDocument_TruncationIsUTF8Safe(t *testing.T) {
	env := newToolEnv(t, nil)
	path := env.writeFile(t, "unicode.md", "# Ünïcödé\n\n"+strings.Repeat("héllö wörld ", 50))
	indexed := env.index(t, map[string]any{"file_path": path})

	result, err := env.registry.Call(context.Background(), GetDocumentName, map[string]any{
		"document_id":       indexed.DocumentID,
		"max_content_bytes": 41,
	})
	require.NoError(t, err)
	resp := result.Data.(*GetDocumentResponse)

	assert.True(t, resp.Truncated)
	assert.LessOrEqual(t, len(resp.Content), 41)
	assert.True(t, utf8.ValidString(resp.Content))
}

func TestGetDocument_FormatText(t *testing.T) {
	env := newToolEnv(t, nil)
	path := env.writeFile(t, "styled.md", "# Styled\n\nSome **bold** and `inline code` plus a [link](https://example.com).\n")
	indexed := env.index(t, map[string]any{"file_path": path})

	result, err := env.registry.Call(context.Background(), GetDocumentName, map[string]any{
		"document_id": indexed.DocumentID,
		"format":      "text",
	})
	require.NoError(t, err)
	resp := result.Data.(*GetDocumentResponse)

	assert.NotContains(t, resp.Content, "**")
	assert.NotContains(t, resp.Content, "`")
	assert.NotContains(t, resp.Content, "](")
	assert.Contains(t, resp.Content, "Some bold and inline code plus a link.")
}

func TestGetDocument_FormatMarkdownWrapsPlainText(t *testing.T) {
	env := newToolEnv(t, nil)
	path := env.writeFile(t, "plain.txt", "just plain log text\n")
	indexed := env.index(t, map[string]any{"file_path": path})

	result, err := env.registry.Call(context.Background(), GetDocumentName, map[string]any{
		"document_id": indexed.DocumentID,
		"format":      "markdown",
	})
	require.NoError(t, err)
	resp := result.Data.(*GetDocumentResponse)

	assert.True(t, strings.HasPrefix(resp.Content, "```\n"))
	assert.True(t, strings.HasSuffix(resp.Content, "\n```"))
}

func TestGetDocument_MetadataToggle(t *testing.T) {
	env := newToolEnv(t, nil)
	path := env.writeFile(t, "tagged.md", "---\ntopic: infra\n---\n# Tagged\n\nBody.\n")
	indexed := env.index(t, map[string]any{"file_path": path})

	withMeta, err := env.registry.Call(context.Background(), GetDocumentName, map[string]any{
		"document_id": indexed.DocumentID,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, withMeta.Data.(*GetDocumentResponse).Metadata)

	without, err := env.registry.Call(context.Background(), GetDocumentName, map[string]any{
		"document_id":      indexed.DocumentID,
		"include_metadata": false,
	})
	require.NoError(t, err)
	assert.Nil(t, without.Data.(*GetDocumentResponse).Metadata)
}

func TestRemoveFile_DropsDocumentFromSearchAndRetrieval(t *testing.T) {
	env := newToolEnv(t, nil)
	path := env.writeFile(t, "ephemeral.md", "# Ephemeral\n\ntransient secrets rotation notes\n")
	indexed := env.index(t, map[string]any{"file_path": path})

	require.NoError(t, env.indexer.RemoveFile(context.Background(), path))

	_, err := env.registry.Call(context.Background(), GetDocumentName, map[string]any{
		"document_id": indexed.DocumentID,
	})
	var storeErr *store.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "DOCUMENT_NOT_FOUND", storeErr.AppCode())

	result, err := env.registry.Call(context.Background(), SearchDocumentsName, map[string]any{
		"query": "transient secrets",
	})
	require.NoError(t, err)
	assert.Zero(t, result.Data.(*SearchDocumentsResponse).TotalFound)

	// Removing the same path again is not an error.
	require.NoError(t, env.indexer.RemoveFile(context.Background(), path))
}
