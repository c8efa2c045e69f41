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

// Package tools implements the document tools exposed over MCP and the
// registry that dispatches calls to them.
//
// Each tool declares a JSON schema for its arguments. The registry
// validates raw arguments against that schema, injects declared defaults,
// and bounds every invocation with a timeout before handing control to
// the tool implementation.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/kadirpekel/mydocs-mcp/pkg/config"
	"github.com/kadirpekel/mydocs-mcp/pkg/observability"
	"github.com/kadirpekel/mydocs-mcp/pkg/registry"
)

// Descriptor describes a tool for MCP discovery.
type Descriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Tool is a single callable document operation.
type Tool interface {
	// Descriptor returns the tool's name, description, and argument schema.
	Descriptor() Descriptor

	// Call executes the tool. Arguments have already been validated against
	// the descriptor schema and carry injected defaults.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// Result is the outcome of a tool invocation.
type Result struct {
	Data    any
	IsError bool
}

// Registry holds the registered tools and dispatches calls to them.
type Registry struct {
	tools   *registry.BaseRegistry[Tool]
	timeout time.Duration
	metrics *observability.Metrics
}

// NewRegistry creates an empty tool registry. The configured timeout bounds
// each invocation.
func NewRegistry(cfg config.ToolsConfig, metrics *observability.Metrics) *Registry {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Registry{
		tools:   registry.NewBaseRegistry[Tool](),
		timeout: timeout,
		metrics: metrics,
	}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t Tool) error {
	desc := t.Descriptor()
	if err := r.tools.Register(desc.Name, t); err != nil {
		return fmt.Errorf("failed to register tool: %w", err)
	}
	slog.Debug("tool registered", "tool", desc.Name)
	return nil
}

// Descriptors returns all registered tools in registration order.
func (r *Registry) Descriptors() []Descriptor {
	toolList := r.tools.List()
	descriptors := make([]Descriptor, 0, len(toolList))
	for _, t := range toolList {
		descriptors = append(descriptors, t.Descriptor())
	}
	return descriptors
}

// Call validates args against the named tool's schema and executes it under
// the registry timeout. Unknown tools, invalid arguments, timeouts, and
// panics inside the tool all surface as errors; the result is non-nil only
// on success.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (*Result, error) {
	start := time.Now()
	invocationID := uuid.New().String()

	result, err := r.call(ctx, name, args)

	duration := time.Since(start)
	r.metrics.RecordToolInvocation(ctx, name, duration, err)
	if err != nil {
		slog.Debug("tool call failed",
			"tool", name,
			"invocation_id", invocationID,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return nil, err
	}

	slog.Debug("tool call completed",
		"tool", name,
		"invocation_id", invocationID,
		"duration_ms", duration.Milliseconds())
	return result, nil
}

func (r *Registry) call(ctx context.Context, name string, args map[string]any) (*Result, error) {
	t, ok := r.tools.Get(name)
	if !ok {
		return nil, NewToolError(name, CodeToolNotFound, fmt.Sprintf("tool '%s' is not registered", name), nil)
	}

	// Validation injects defaults; work on a copy so the caller's map stays
	// untouched.
	if args == nil {
		args = make(map[string]any)
	} else {
		args = maps.Clone(args)
	}
	if err := validateArgs(name, t.Descriptor().InputSchema, args); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		data any
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("tool '%s' panicked: %v", name, rec)}
			}
		}()
		data, err := t.Call(callCtx, args)
		done <- outcome{data: data, err: err}
	}()

	select {
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, NewToolError(name, CodeToolTimeout, fmt.Sprintf("tool exceeded the %s timeout", r.timeout), callCtx.Err())
		}
		return nil, callCtx.Err()
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		return &Result{Data: out.data}, nil
	}
}

// decodeArgs decodes validated arguments into a typed Args struct. Weak
// typing tolerates the numeric widening JSON decoding introduces.
func decodeArgs(tool string, args map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to build argument decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return argumentError(tool, "", "invalid arguments: %v", err)
	}
	return nil
}
