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
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kadirpekel/mydocs-mcp/pkg/store"
)

// GetDocumentName is the MCP name of the retrieval tool.
const GetDocumentName = "getDocument"

// GetDocumentArgs defines the parameters for retrieving one document.
// Exactly one of file_path or document_id selects the document.
type GetDocumentArgs struct {
	FilePath        string `json:"file_path,omitempty" jsonschema:"minLength=1,description=File path of the document to retrieve"`
	DocumentID      int64  `json:"document_id,omitempty" jsonschema:"minimum=1,description=Database id of the document to retrieve"`
	IncludeMetadata bool   `json:"include_metadata,omitempty" jsonschema:"default=true,description=Include document metadata in the response"`
	Format          string `json:"format,omitempty" jsonschema:"enum=json,enum=markdown,enum=text,default=json,description=Output format for the document content"`
	MaxContentBytes *int64 `json:"max_content_bytes,omitempty" jsonschema:"minimum=0,description=Truncate content to at most this many bytes"`
}

// GetDocumentResponse is the retrieval tool's payload.
type GetDocumentResponse struct {
	DocumentID   int64               `json:"document_id"`
	Path         string              `json:"path"`
	Title        string              `json:"title"`
	Content      string              `json:"content"`
	Truncated    bool                `json:"truncated"`
	FileType     string              `json:"file_type"`
	FileSize     int64               `json:"file_size"`
	LastModified string              `json:"last_modified"`
	IndexedAt    string              `json:"indexed_at"`
	Metadata     map[string][]string `json:"metadata,omitempty"`
}

// GetDocumentTool retrieves one indexed document by path or id.
type GetDocumentTool struct {
	store   *store.Store
	indexer *Indexer
	schema  map[string]any
}

func NewGetDocumentTool(st *store.Store, indexer *Indexer) *GetDocumentTool {
	schema := mustSchema[GetDocumentArgs]()
	// The schema cannot express the either-or selector through tags alone.
	schema["oneOf"] = []any{
		map[string]any{"required": []any{"file_path"}},
		map[string]any{"required": []any{"document_id"}},
	}
	return &GetDocumentTool{
		store:   st,
		indexer: indexer,
		schema:  schema,
	}
}

func (t *GetDocumentTool) Descriptor() Descriptor {
	return Descriptor{
		Name: GetDocumentName,
		Description: "Retrieve a specific document by id or file path with support " +
			"for multiple output formats (json, markdown, text), optional metadata, " +
			"and content size limits.",
		InputSchema: t.schema,
	}
}

func (t *GetDocumentTool) Call(ctx context.Context, args map[string]any) (any, error) {
	var parsed GetDocumentArgs
	if err := decodeArgs(GetDocumentName, args, &parsed); err != nil {
		return nil, err
	}

	doc, meta, err := t.fetch(ctx, parsed)
	if err != nil {
		return nil, err
	}

	content := formatContent(doc.Content, doc.FileType, parsed.Format)
	truncated := false
	if parsed.MaxContentBytes != nil {
		content, truncated = truncateUTF8(content, int(*parsed.MaxContentBytes))
	}

	resp := &GetDocumentResponse{
		DocumentID:   doc.ID,
		Path:         doc.Path,
		Title:        doc.Title,
		Content:      content,
		Truncated:    truncated,
		FileType:     doc.FileType,
		FileSize:     doc.SizeBytes,
		LastModified: doc.MTime.UTC().Format(time.RFC3339),
		IndexedAt:    doc.IndexedAt.UTC().Format(time.RFC3339),
	}
	if parsed.IncludeMetadata {
		resp.Metadata = meta
	}
	return resp, nil
}

// fetch resolves the selector to a stored document. Relative paths are
// probed against each document root; the file itself does not have to
// still exist on disk.
func (t *GetDocumentTool) fetch(ctx context.Context, args GetDocumentArgs) (*store.Document, store.Metadata, error) {
	if args.DocumentID > 0 {
		return t.store.GetByID(ctx, args.DocumentID)
	}

	var lastErr error
	for _, path := range t.indexer.LookupPaths(args.FilePath) {
		doc, meta, err := t.store.GetByPath(ctx, path)
		if err == nil {
			return doc, meta, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, nil, err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = store.NewStoreError("get", store.CodeDocumentNotFound, "document not found", args.FilePath, store.ErrNotFound)
	}
	return nil, nil, lastErr
}

var (
	fencedBlockPattern  = regexp.MustCompile("(?s)```[^\n]*\n(.*?)\n```")
	headingMarkPattern  = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	boldStarPattern     = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicStarPattern   = regexp.MustCompile(`\*([^*]+)\*`)
	boldUnderPattern    = regexp.MustCompile(`__([^_]+)__`)
	italicUnderPattern  = regexp.MustCompile(`_([^_]+)_`)
	mdLinkPattern       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	bulletMarkPattern   = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	numberedMarkPattern = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	blankRunPattern     = regexp.MustCompile(`\n\s*\n\s*\n+`)
)

// formatContent renders stored content in the requested output format.
// Markdown output wraps non-markdown documents in a code fence so they stay
// readable when rendered.
func formatContent(content, fileType, format string) string {
	switch format {
	case "text":
		return stripMarkdown(content)
	case "markdown":
		if fileType == "md" || fileType == "markdown" {
			return content
		}
		return "```\n" + content + "\n```"
	default:
		return content
	}
}

// stripMarkdown reduces markdown to plain text: code fences and inline code
// keep their contents, links keep their text, structural markers go away.
func stripMarkdown(content string) string {
	s := fencedBlockPattern.ReplaceAllString(content, "$1")
	s = headingMarkPattern.ReplaceAllString(s, "")
	s = boldStarPattern.ReplaceAllString(s, "$1")
	s = italicStarPattern.ReplaceAllString(s, "$1")
	s = boldUnderPattern.ReplaceAllString(s, "$1")
	s = italicUnderPattern.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, "`", "")
	s = mdLinkPattern.ReplaceAllString(s, "$1")
	s = bulletMarkPattern.ReplaceAllString(s, "")
	s = numberedMarkPattern.ReplaceAllString(s, "")
	s = blankRunPattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) (string, bool) {
	if max < 0 || len(s) <= max {
		return s, false
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
