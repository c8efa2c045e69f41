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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func property(t *testing.T, schema map[string]any, name string) map[string]any {
	t.Helper()

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok, "schema has no properties object")
	prop, ok := props[name].(map[string]any)
	require.True(t, ok, "schema has no property %q", name)
	return prop
}

func TestGenerateSchema_IndexDocumentArgs(t *testing.T) {
	schema := mustSchema[IndexDocumentArgs]()

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])
	assert.Equal(t, []any{"file_path"}, schema["required"])

	filePath := property(t, schema, "file_path")
	assert.Equal(t, "string", filePath["type"])
	assert.Equal(t, float64(1), filePath["minLength"])

	force := property(t, schema, "force_reindex")
	assert.Equal(t, "boolean", force["type"])
	assert.Equal(t, false, force["default"])

	metadata := property(t, schema, "metadata")
	assert.Equal(t, "object", metadata["type"])
}

func TestGenerateSchema_SearchDocumentsArgs(t *testing.T) {
	schema := mustSchema[SearchDocumentsArgs]()

	assert.Equal(t, []any{"query"}, schema["required"])

	query := property(t, schema, "query")
	assert.Equal(t, "string", query["type"])
	assert.Equal(t, float64(1), query["minLength"])
	assert.Equal(t, float64(500), query["maxLength"])

	limit := property(t, schema, "limit")
	assert.Equal(t, "integer", limit["type"])
	assert.Equal(t, float64(1), limit["minimum"])
	assert.Equal(t, float64(100), limit["maximum"])
	assert.Equal(t, float64(20), limit["default"])

	fileTypes := property(t, schema, "file_types")
	assert.Equal(t, "array", fileTypes["type"])
	items, ok := fileTypes["items"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", items["type"])
}

func TestGetDocumentSchema_SelectorBranches(t *testing.T) {
	schema := NewGetDocumentTool(nil, nil).Descriptor().InputSchema

	oneOf, ok := schema["oneOf"].([]any)
	require.True(t, ok, "getDocument schema must declare oneOf")
	require.Len(t, oneOf, 2)
	assert.Equal(t, map[string]any{"required": []any{"file_path"}}, oneOf[0])
	assert.Equal(t, map[string]any{"required": []any{"document_id"}}, oneOf[1])

	id := property(t, schema, "document_id")
	assert.Equal(t, "integer", id["type"])
	assert.Equal(t, float64(1), id["minimum"])

	format := property(t, schema, "format")
	assert.Equal(t, []any{"json", "markdown", "text"}, format["enum"])
	assert.Equal(t, "json", format["default"])

	include := property(t, schema, "include_metadata")
	assert.Equal(t, true, include["default"])

	maxBytes := property(t, schema, "max_content_bytes")
	assert.Equal(t, "integer", maxBytes["type"])
	assert.Equal(t, float64(0), maxBytes["minimum"])
}
