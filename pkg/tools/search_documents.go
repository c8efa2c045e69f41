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
	"math"
	"strings"
	"time"

	"github.com/kadirpekel/mydocs-mcp/pkg/config"
	"github.com/kadirpekel/mydocs-mcp/pkg/store"
)

// SearchDocumentsName is the MCP name of the search tool.
const SearchDocumentsName = "searchDocuments"

// SearchDocumentsArgs defines the parameters for searching the index.
type SearchDocumentsArgs struct {
	Query     string   `json:"query" jsonschema:"required,minLength=1,maxLength=500,description=Search query supporting quoted phrases and -word exclusions"`
	Limit     int      `json:"limit,omitempty" jsonschema:"minimum=1,maximum=100,default=20,description=Maximum number of results to return"`
	FileTypes []string `json:"file_types,omitempty" jsonschema:"description=Restrict results to these file types (md txt pdf docx xlsx log)"`
}

// SearchResultItem is one ranked hit in a search response.
type SearchResultItem struct {
	DocumentID     int64    `json:"document_id"`
	Path           string   `json:"path"`
	Title          string   `json:"title"`
	Snippet        string   `json:"snippet"`
	RelevanceScore float64  `json:"relevance_score"`
	FileSize       int64    `json:"file_size"`
	LastModified   string   `json:"last_modified"`
	MatchedTokens  []string `json:"matched_tokens"`
}

// SearchDocumentsResponse is the search tool's payload.
type SearchDocumentsResponse struct {
	Results         []SearchResultItem `json:"results"`
	TotalFound      int                `json:"total_found"`
	ExecutionTimeMs int64              `json:"execution_time_ms"`
}

// SearchDocumentsTool ranks indexed documents against a keyword query.
type SearchDocumentsTool struct {
	store     *store.Store
	stopWords bool
	schema    map[string]any
}

func NewSearchDocumentsTool(cfg config.StoreConfig, st *store.Store) *SearchDocumentsTool {
	return &SearchDocumentsTool{
		store:     st,
		stopWords: cfg.StopWordsEnabled(),
		schema:    mustSchema[SearchDocumentsArgs](),
	}
}

func (t *SearchDocumentsTool) Descriptor() Descriptor {
	return Descriptor{
		Name: SearchDocumentsName,
		Description: "Search indexed documents using keyword matching with relevance " +
			"ranking. Supports quoted phrases, -word exclusions, and file type " +
			"filtering, and returns snippets with matched tokens highlighted.",
		InputSchema: t.schema,
	}
}

func (t *SearchDocumentsTool) Call(ctx context.Context, args map[string]any) (any, error) {
	start := time.Now()

	var parsed SearchDocumentsArgs
	if err := decodeArgs(SearchDocumentsName, args, &parsed); err != nil {
		return nil, err
	}

	query, err := store.ParseQuery(parsed.Query, t.stopWords)
	if err != nil {
		return nil, err
	}
	query.Limit = parsed.Limit
	for _, ft := range parsed.FileTypes {
		ft = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ft)), ".")
		if ft != "" {
			query.FileTypes = append(query.FileTypes, ft)
		}
	}

	results, total, err := t.store.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	items := make([]SearchResultItem, 0, len(results))
	for _, res := range results {
		items = append(items, SearchResultItem{
			DocumentID:     res.Document.ID,
			Path:           res.Document.Path,
			Title:          res.Document.Title,
			Snippet:        res.Snippet,
			RelevanceScore: roundScore(res.Score),
			FileSize:       res.Document.SizeBytes,
			LastModified:   res.Document.MTime.UTC().Format(time.RFC3339),
			MatchedTokens:  res.MatchedTokens,
		})
	}

	return &SearchDocumentsResponse{
		Results:         items,
		TotalFound:      total,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// roundScore keeps relevance scores stable across float formatting.
func roundScore(score float64) float64 {
	return math.Round(score*10000) / 10000
}
