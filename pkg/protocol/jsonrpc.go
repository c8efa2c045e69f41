// Package protocol implements the MCP server surface: JSON-RPC 2.0 over
// line-delimited stdio. Every line read from stdin is one request; every
// line written to stdout is one response. Logs never touch stdout.
package protocol

import "encoding/json"

// JSON-RPC 2.0 error codes, plus the application error code that carries a
// stable tool error string in its data payload.
const (
	ParseError       = -32700
	InvalidRequest   = -32600
	MethodNotFound   = -32601
	InvalidParams    = -32602
	InternalError    = -32603
	ApplicationError = -32000
)

// Request is one incoming JSON-RPC call. The id is kept raw so string and
// numeric ids echo back byte for byte; an absent id marks a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Notification reports whether the request carries no id and therefore must
// never be answered. An explicit null id is answered with a null id.
func (r *Request) Notification() bool {
	return len(r.ID) == 0
}

// Response is one outgoing JSON-RPC reply. Exactly one of Result and Error
// is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorData carries the stable application error code alongside an
// ApplicationError response.
type ErrorData struct {
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

var nullID = json.RawMessage("null")

func successResponse(id json.RawMessage, result any) Response {
	if result == nil {
		result = struct{}{}
	}
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, rpcErr *RPCError) Response {
	if id == nil {
		id = nullID
	}
	return Response{JSONRPC: "2.0", ID: id, Error: rpcErr}
}
