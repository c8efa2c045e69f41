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
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// validateArgs checks args against the subset of JSON Schema the tool
// schemas use: type, required, oneOf (selector branches), enum,
// minimum/maximum, minLength/maxLength, and additionalProperties. Defaults
// declared in the schema are injected into args for absent keys.
func validateArgs(tool string, schema, args map[string]any) error {
	properties, _ := schema["properties"].(map[string]any)

	if err := checkRequired(tool, schema, args); err != nil {
		return err
	}
	if err := checkOneOf(tool, schema, args); err != nil {
		return err
	}

	if addProps, ok := schema["additionalProperties"].(bool); ok && !addProps {
		for name := range args {
			if _, known := properties[name]; !known {
				return argumentError(tool, name, "unknown argument")
			}
		}
	}

	for name, rawProp := range properties {
		prop, ok := rawProp.(map[string]any)
		if !ok {
			continue
		}

		value, present := args[name]
		if !present || value == nil {
			if def, hasDefault := prop["default"]; hasDefault {
				args[name] = normalizeDefault(prop, def)
			}
			continue
		}

		if err := checkValue(tool, name, prop, value); err != nil {
			return err
		}
	}

	return nil
}

func checkRequired(tool string, schema, args map[string]any) error {
	required, _ := schema["required"].([]any)
	for _, raw := range required {
		name, ok := raw.(string)
		if !ok {
			continue
		}
		if value, present := args[name]; !present || value == nil {
			return argumentError(tool, name, "required argument missing")
		}
	}
	return nil
}

// checkOneOf enforces selector branches: exactly one branch's required set
// may be satisfied.
func checkOneOf(tool string, schema, args map[string]any) error {
	oneOf, ok := schema["oneOf"].([]any)
	if !ok || len(oneOf) == 0 {
		return nil
	}

	satisfied := 0
	var fields []string
	for _, rawBranch := range oneOf {
		branch, ok := rawBranch.(map[string]any)
		if !ok {
			continue
		}
		required, _ := branch["required"].([]any)

		matched := len(required) > 0
		for _, rawName := range required {
			name, _ := rawName.(string)
			fields = append(fields, name)
			if value, present := args[name]; !present || value == nil {
				matched = false
			}
		}
		if matched {
			satisfied++
		}
	}

	if satisfied != 1 {
		return argumentError(tool, "", "exactly one of %v must be provided", fields)
	}
	return nil
}

func checkValue(tool, name string, prop map[string]any, value any) error {
	propType, _ := prop["type"].(string)

	switch propType {
	case "string":
		s, ok := value.(string)
		if !ok {
			return argumentError(tool, name, "expected a string, got %T", value)
		}
		if err := checkStringBounds(tool, name, prop, s); err != nil {
			return err
		}
		if err := checkEnum(tool, name, prop, s); err != nil {
			return err
		}

	case "integer":
		n, ok := asNumber(value)
		if !ok || n != math.Trunc(n) {
			return argumentError(tool, name, "expected an integer, got %v", value)
		}
		if err := checkNumericBounds(tool, name, prop, n); err != nil {
			return err
		}

	case "number":
		n, ok := asNumber(value)
		if !ok {
			return argumentError(tool, name, "expected a number, got %T", value)
		}
		if err := checkNumericBounds(tool, name, prop, n); err != nil {
			return err
		}

	case "boolean":
		if _, ok := value.(bool); !ok {
			return argumentError(tool, name, "expected a boolean, got %T", value)
		}

	case "array":
		if err := checkArray(tool, name, prop, value); err != nil {
			return err
		}

	case "object":
		switch value.(type) {
		case map[string]any, map[string]string:
		default:
			return argumentError(tool, name, "expected an object, got %T", value)
		}
	}

	return nil
}

func checkArray(tool, name string, prop map[string]any, value any) error {
	var elems []any
	switch v := value.(type) {
	case []any:
		elems = v
	case []string:
		for _, s := range v {
			elems = append(elems, s)
		}
	default:
		return argumentError(tool, name, "expected an array, got %T", value)
	}

	items, _ := prop["items"].(map[string]any)
	if itemType, _ := items["type"].(string); itemType == "string" {
		for i, elem := range elems {
			if _, ok := elem.(string); !ok {
				return argumentError(tool, name, "element %d: expected a string, got %T", i, elem)
			}
		}
	}
	return nil
}

func checkStringBounds(tool, name string, prop map[string]any, s string) error {
	// JSON Schema length counts characters, not bytes.
	n := utf8.RuneCountInString(s)
	if lo, ok := asNumber(prop["minLength"]); ok && n < int(lo) {
		return argumentError(tool, name, "must be at least %d characters", int(lo))
	}
	if hi, ok := asNumber(prop["maxLength"]); ok && n > int(hi) {
		return argumentError(tool, name, "must be at most %d characters", int(hi))
	}
	return nil
}

func checkNumericBounds(tool, name string, prop map[string]any, n float64) error {
	if lo, ok := asNumber(prop["minimum"]); ok && n < lo {
		return argumentError(tool, name, "must be >= %v", lo)
	}
	if hi, ok := asNumber(prop["maximum"]); ok && n > hi {
		return argumentError(tool, name, "must be <= %v", hi)
	}
	return nil
}

func checkEnum(tool, name string, prop map[string]any, s string) error {
	enum, ok := prop["enum"].([]any)
	if !ok || len(enum) == 0 {
		return nil
	}
	for _, allowed := range enum {
		if fmt.Sprint(allowed) == s {
			return nil
		}
	}
	return argumentError(tool, name, "must be one of %v", enum)
}

// asNumber widens any numeric representation that can arrive via JSON
// decoding or direct Go callers.
func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// normalizeDefault coerces a schema default to the property's declared type
// so injected values decode cleanly.
func normalizeDefault(prop map[string]any, def any) any {
	propType, _ := prop["type"].(string)
	switch propType {
	case "boolean":
		if b, ok := def.(bool); ok {
			return b
		}
		if s, ok := def.(string); ok {
			return s == "true"
		}
	case "integer":
		if n, ok := asNumber(def); ok {
			return int(n)
		}
		if s, ok := def.(string); ok {
			if n, err := strconv.Atoi(s); err == nil {
				return n
			}
		}
	case "number":
		if n, ok := asNumber(def); ok {
			return n
		}
	}
	return def
}
