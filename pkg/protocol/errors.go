package protocol

import (
	"errors"
	"fmt"

	"github.com/kadirpekel/mydocs-mcp/pkg/tools"
)

// appCoder is satisfied by the store, parser, and tool error types, each of
// which exposes a stable application error code.
type appCoder interface {
	AppCode() string
}

// toRPCError maps a tool invocation failure onto the wire. Argument errors
// become invalid params; errors carrying an application code become
// ApplicationError with the code in data; everything else is internal.
func toRPCError(err error) *RPCError {
	var argErr *tools.ArgumentError
	if errors.As(err, &argErr) {
		return &RPCError{
			Code:    InvalidParams,
			Message: argErr.Error(),
		}
	}

	var coder appCoder
	if errors.As(err, &coder) {
		return &RPCError{
			Code:    ApplicationError,
			Message: err.Error(),
			Data:    ErrorData{Code: coder.AppCode()},
		}
	}

	return &RPCError{
		Code:    InternalError,
		Message: fmt.Sprintf("internal error: %v", err),
	}
}
