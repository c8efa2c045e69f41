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
	"fmt"
	"time"
)

const (
	CodeFileNotFound = "FILE_NOT_FOUND"
	CodeFileTooLarge = "FILE_TOO_LARGE"
	CodeToolTimeout  = "TOOL_TIMEOUT"
	CodeToolNotFound = "TOOL_NOT_FOUND"
)

// ToolError carries structured context about a failed tool invocation.
type ToolError struct {
	Tool      string
	Code      string
	Message   string
	Err       error
	Timestamp time.Time
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tools.%s: %s: %v", e.Tool, e.Message, e.Err)
	}
	return fmt.Sprintf("tools.%s: %s", e.Tool, e.Message)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// AppCode reports the stable application error code for protocol responses.
func (e *ToolError) AppCode() string {
	return e.Code
}

// NewToolError creates a ToolError with the current timestamp.
func NewToolError(tool, code, message string, err error) *ToolError {
	return &ToolError{
		Tool:      tool,
		Code:      code,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// ArgumentError reports arguments that fail schema validation. The protocol
// layer maps it to JSON-RPC invalid params rather than an application error.
type ArgumentError struct {
	Tool    string
	Field   string
	Message string
}

func (e *ArgumentError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("tools.%s: invalid argument %q: %s", e.Tool, e.Field, e.Message)
	}
	return fmt.Sprintf("tools.%s: invalid arguments: %s", e.Tool, e.Message)
}

func argumentError(tool, field, format string, args ...any) *ArgumentError {
	return &ArgumentError{Tool: tool, Field: field, Message: fmt.Sprintf(format, args...)}
}
