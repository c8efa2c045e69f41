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
	"time"
)

// IndexDocumentName is the MCP name of the indexing tool.
const IndexDocumentName = "indexDocument"

// IndexDocumentArgs defines the parameters for indexing one document.
type IndexDocumentArgs struct {
	FilePath     string            `json:"file_path" jsonschema:"required,minLength=1,description=Path to the document file (absolute or relative to a document root)"`
	ForceReindex bool              `json:"force_reindex,omitempty" jsonschema:"default=false,description=Reindex even when the stored content hash is unchanged"`
	Metadata     map[string]string `json:"metadata,omitempty" jsonschema:"description=Extra metadata merged over parser-extracted metadata"`
}

// IndexDocumentResponse reports the outcome of an indexing call.
type IndexDocumentResponse struct {
	DocumentID     int64  `json:"document_id"`
	Path           string `json:"path"`
	Status         string `json:"status"`
	TokensIndexed  int    `json:"tokens_indexed"`
	MetadataFields int    `json:"metadata_fields"`
	DurationMs     int64  `json:"duration_ms"`
}

// IndexDocumentTool indexes a file from the document roots into the store.
type IndexDocumentTool struct {
	indexer *Indexer
	schema  map[string]any
}

func NewIndexDocumentTool(indexer *Indexer) *IndexDocumentTool {
	return &IndexDocumentTool{
		indexer: indexer,
		schema:  mustSchema[IndexDocumentArgs](),
	}
}

func (t *IndexDocumentTool) Descriptor() Descriptor {
	return Descriptor{
		Name: IndexDocumentName,
		Description: "Index a document file for search and retrieval. Parses content, " +
			"extracts metadata, and stores both in the local document database. " +
			"Unchanged files are skipped unless force_reindex is set.",
		InputSchema: t.schema,
	}
}

func (t *IndexDocumentTool) Call(ctx context.Context, args map[string]any) (any, error) {
	start := time.Now()

	var parsed IndexDocumentArgs
	if err := decodeArgs(IndexDocumentName, args, &parsed); err != nil {
		return nil, err
	}

	outcome, err := t.indexer.IndexFile(ctx, parsed.FilePath, parsed.ForceReindex, parsed.Metadata)
	if err != nil {
		return nil, err
	}

	return &IndexDocumentResponse{
		DocumentID:     outcome.DocumentID,
		Path:           outcome.Path,
		Status:         outcome.Status,
		TokensIndexed:  outcome.TokensIndexed,
		MetadataFields: outcome.MetadataFields,
		DurationMs:     time.Since(start).Milliseconds(),
	}, nil
}
