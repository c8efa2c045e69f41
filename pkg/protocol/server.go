package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kadirpekel/mydocs-mcp/pkg/tools"
)

// ProtocolVersion is the MCP revision this server speaks.
const ProtocolVersion = "2024-11-05"

// InitializeResult answers the initialize handshake.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

// Capabilities advertises what the server can do.
type Capabilities struct {
	Tools ToolCapabilities `json:"tools"`
}

// ToolCapabilities describes the tools capability. The tool set is fixed at
// startup, so list change notifications are never emitted.
type ToolCapabilities struct {
	ListChanged bool `json:"listChanged"`
}

// ServerInfo identifies the server to the client.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolDescriptor is one entry of a tools/list result.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolsListResult answers tools/list.
type ToolsListResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// ContentBlock is one element of a tools/call result. Payloads are always
// rendered as JSON text blocks.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult answers tools/call.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Server exposes a tool registry over MCP. It owns the JSON-RPC engine and
// registers the protocol methods on it.
type Server struct {
	engine      *Engine
	registry    *tools.Registry
	name        string
	version     string
	initialized atomic.Bool
}

// NewServer wires the MCP methods. name and version are reported in the
// initialize handshake.
func NewServer(name, version string, registry *tools.Registry) *Server {
	s := &Server{
		engine:   NewEngine(),
		registry: registry,
		name:     name,
		version:  version,
	}

	s.engine.Register("initialize", s.handleInitialize)
	s.engine.Register("notifications/initialized", s.handleInitialized)
	s.engine.Register("tools/list", s.handleToolsList)
	s.engine.Register("tools/call", s.handleToolsCall)
	s.engine.Register("ping", s.handlePing)

	return s
}

// SetDrainTimeout bounds how long Serve waits for in-flight tool calls
// after the client closes stdin.
func (s *Server) SetDrainTimeout(d time.Duration) {
	s.engine.SetDrainTimeout(d)
}

// Serve runs the protocol session over the given streams until EOF or ctx
// cancellation. In production in and out are stdin and stdout.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	slog.Info("mcp server serving", "name", s.name, "version", s.version, "protocol", ProtocolVersion)
	return s.engine.Serve(ctx, in, out)
}

func (s *Server) handleInitialize(_ context.Context, params json.RawMessage) (any, *RPCError) {
	var p initializeParams
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &RPCError{Code: InvalidParams, Message: fmt.Sprintf("invalid initialize params: %v", err)}
		}
	}

	if p.ProtocolVersion != "" && p.ProtocolVersion != ProtocolVersion {
		slog.Debug("client requested a different protocol revision",
			"client", p.ProtocolVersion, "server", ProtocolVersion)
	}
	slog.Info("client initialized", "client", p.ClientInfo.Name, "client_version", p.ClientInfo.Version)
	s.initialized.Store(true)

	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    Capabilities{Tools: ToolCapabilities{ListChanged: false}},
		ServerInfo:      ServerInfo{Name: s.name, Version: s.version},
	}, nil
}

func (s *Server) handleInitialized(context.Context, json.RawMessage) (any, *RPCError) {
	slog.Debug("client reported ready")
	return struct{}{}, nil
}

func (s *Server) handleToolsList(context.Context, json.RawMessage) (any, *RPCError) {
	descriptors := s.registry.Descriptors()
	list := make([]ToolDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		list = append(list, ToolDescriptor{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		})
	}
	return ToolsListResult{Tools: list}, nil
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	var p callToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: fmt.Sprintf("invalid tools/call params: %v", err)}
	}
	if p.Name == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "tool name is required"}
	}
	if !s.initialized.Load() {
		slog.Warn("tools/call before initialize", "tool", p.Name)
	}

	result, err := s.registry.Call(ctx, p.Name, p.Arguments)
	if err != nil {
		return nil, toRPCError(err)
	}

	payload, merr := json.Marshal(result.Data)
	if merr != nil {
		return nil, &RPCError{Code: InternalError, Message: fmt.Sprintf("failed to encode tool result: %v", merr)}
	}

	return CallToolResult{
		Content: []ContentBlock{{Type: "text", Text: string(payload)}},
		IsError: result.IsError,
	}, nil
}

func (s *Server) handlePing(context.Context, json.RawMessage) (any, *RPCError) {
	return struct{}{}, nil
}
