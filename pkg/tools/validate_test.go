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

func testSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type":      "string",
				"minLength": float64(2),
				"maxLength": float64(10),
			},
			"count": map[string]any{
				"type":    "integer",
				"minimum": float64(1),
				"maximum": float64(100),
				"default": float64(20),
			},
			"ratio": map[string]any{
				"type": "number",
			},
			"enabled": map[string]any{
				"type":    "boolean",
				"default": true,
			},
			"mode": map[string]any{
				"type": "string",
				"enum": []any{"fast", "slow"},
			},
			"tags": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"attrs": map[string]any{
				"type": "object",
			},
		},
		"required":             []any{"name"},
		"additionalProperties": false,
	}
}

func TestValidateArgs_RequiredMissing(t *testing.T) {
	err := validateArgs("demo", testSchema(), map[string]any{})

	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "name", argErr.Field)
}

func TestValidateArgs_NilValueTreatedAsMissing(t *testing.T) {
	err := validateArgs("demo", testSchema(), map[string]any{"name": nil})

	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "name", argErr.Field)
}

func TestValidateArgs_UnknownArgumentRejected(t *testing.T) {
	err := validateArgs("demo", testSchema(), map[string]any{
		"name":    "docs",
		"surpise": true,
	})

	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "surpise", argErr.Field)
}

func TestValidateArgs_TypeChecks(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		fail string
	}{
		{"string gets int", map[string]any{"name": 42}, "name"},
		{"integer gets string", map[string]any{"name": "docs", "count": "five"}, "count"},
		{"integer gets fraction", map[string]any{"name": "docs", "count": 1.5}, "count"},
		{"boolean gets string", map[string]any{"name": "docs", "enabled": "yes"}, "enabled"},
		{"array gets string", map[string]any{"name": "docs", "tags": "solo"}, "tags"},
		{"array element not string", map[string]any{"name": "docs", "tags": []any{"ok", 3}}, "tags"},
		{"object gets string", map[string]any{"name": "docs", "attrs": "flat"}, "attrs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateArgs("demo", testSchema(), tt.args)

			var argErr *ArgumentError
			require.ErrorAs(t, err, &argErr)
			assert.Equal(t, tt.fail, argErr.Field)
		})
	}
}

func TestValidateArgs_AcceptedValues(t *testing.T) {
	args := map[string]any{
		"name":    "docs",
		"count":   float64(3), // JSON decoding widens integers
		"ratio":   0.25,
		"enabled": false,
		"mode":    "fast",
		"tags":    []any{"a", "b"},
		"attrs":   map[string]any{"k": "v"},
	}
	assert.NoError(t, validateArgs("demo", testSchema(), args))

	// Native Go values arrive when tools are driven directly.
	assert.NoError(t, validateArgs("demo", testSchema(), map[string]any{
		"name":  "docs",
		"count": 7,
		"tags":  []string{"native"},
	}))
}

func TestValidateArgs_Bounds(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		fail string
	}{
		{"string too short", map[string]any{"name": "x"}, "name"},
		{"string too long", map[string]any{"name": "elevenchars"}, "name"},
		{"integer below minimum", map[string]any{"name": "docs", "count": 0}, "count"},
		{"integer above maximum", map[string]any{"name": "docs", "count": 101}, "count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateArgs("demo", testSchema(), tt.args)

			var argErr *ArgumentError
			require.ErrorAs(t, err, &argErr)
			assert.Equal(t, tt.fail, argErr.Field)
		})
	}
}

func TestValidateArgs_LengthCountsRunesNotBytes(t *testing.T) {
	// Ten two-byte runes: 20 bytes, but within maxLength 10.
	assert.NoError(t, validateArgs("demo", testSchema(), map[string]any{
		"name": "ääääääääää",
	}))
}

func TestValidateArgs_Enum(t *testing.T) {
	err := validateArgs("demo", testSchema(), map[string]any{
		"name": "docs",
		"mode": "sideways",
	})

	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "mode", argErr.Field)

	assert.NoError(t, validateArgs("demo", testSchema(), map[string]any{
		"name": "docs",
		"mode": "slow",
	}))
}

func TestValidateArgs_DefaultInjection(t *testing.T) {
	args := map[string]any{"name": "docs"}
	require.NoError(t, validateArgs("demo", testSchema(), args))

	assert.Equal(t, 20, args["count"])
	assert.Equal(t, true, args["enabled"])
	_, present := args["mode"]
	assert.False(t, present, "fields without defaults stay absent")
}

func TestValidateArgs_DefaultDoesNotOverride(t *testing.T) {
	args := map[string]any{"name": "docs", "count": float64(5), "enabled": false}
	require.NoError(t, validateArgs("demo", testSchema(), args))

	assert.Equal(t, float64(5), args["count"])
	assert.Equal(t, false, args["enabled"])
}

func TestValidateArgs_OneOf(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string"},
			"id":   map[string]any{"type": "integer"},
		},
		"oneOf": []any{
			map[string]any{"required": []any{"path"}},
			map[string]any{"required": []any{"id"}},
		},
	}

	assert.NoError(t, validateArgs("demo", schema, map[string]any{"path": "/a"}))
	assert.NoError(t, validateArgs("demo", schema, map[string]any{"id": float64(3)}))

	var argErr *ArgumentError
	require.ErrorAs(t, validateArgs("demo", schema, map[string]any{}), &argErr)
	require.ErrorAs(t, validateArgs("demo", schema, map[string]any{"path": "/a", "id": float64(3)}), &argErr)
}
