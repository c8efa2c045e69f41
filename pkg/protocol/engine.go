package protocol

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxLineBytes bounds a single request line. Oversized input corrupts the
// framing, so it ends the session rather than being skipped.
const maxLineBytes = 10 << 20

// defaultDrainTimeout bounds the post-EOF drain when no deadline was
// configured.
const defaultDrainTimeout = 5 * time.Second

// Handler serves one JSON-RPC method. A non-nil *RPCError becomes the error
// member of the response; otherwise the result is the result member.
type Handler func(ctx context.Context, params json.RawMessage) (any, *RPCError)

// Engine reads line-delimited JSON-RPC requests, dispatches them to
// registered handlers on per-request goroutines, and serializes responses
// through a single writer so concurrent handlers never interleave bytes on
// the output stream.
type Engine struct {
	handlers     map[string]Handler
	drainTimeout time.Duration
}

// NewEngine creates an engine with no methods registered.
func NewEngine() *Engine {
	return &Engine{
		handlers:     make(map[string]Handler),
		drainTimeout: defaultDrainTimeout,
	}
}

// Register binds a method name to a handler. Registration is not safe
// during Serve; bind every method first.
func (e *Engine) Register(method string, h Handler) {
	e.handlers[method] = h
}

// SetDrainTimeout bounds how long Serve waits for in-flight handlers once
// the input stream has closed. When it elapses the handlers' contexts are
// canceled, so shutdown cannot lag behind a slow tool call.
func (e *Engine) SetDrainTimeout(d time.Duration) {
	if d > 0 {
		e.drainTimeout = d
	}
}

// Serve pumps requests from in until EOF or ctx cancellation, then drains
// in-flight handlers and the write queue before returning. The drain is
// bounded by the drain timeout; handlers still running when it elapses see
// their context canceled. A failed write to out is fatal: the peer can no
// longer hear us, so in-flight work is canceled and the write error
// returned.
func (e *Engine) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writeCh := make(chan []byte, 64)
	var writeErr error
	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		for line := range writeCh {
			if writeErr != nil {
				continue // drain; the stream is already gone
			}
			if _, err := out.Write(line); err != nil {
				writeErr = err
				cancel()
			}
		}
	}()

	send := func(resp Response) {
		data, err := json.Marshal(resp)
		if err != nil {
			slog.Error("failed to marshal response", "error", err)
			data, _ = json.Marshal(errorResponse(resp.ID,
				&RPCError{Code: InternalError, Message: "failed to marshal response"}))
		}
		writeCh <- append(data, '\n')
	}

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64<<10), maxLineBytes)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
		close(lines)
	}()

	var eg errgroup.Group
loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break loop // EOF
			}
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			eg.Go(func() error {
				e.dispatch(ctx, line, send)
				return nil
			})
		case <-ctx.Done():
			break loop
		}
	}

	// Input is gone. In-flight handlers get until the drain timeout to
	// finish; then their contexts are canceled so exit stays bounded.
	drainTimer := time.AfterFunc(e.drainTimeout, cancel)
	_ = eg.Wait()
	drainTimer.Stop()
	close(writeCh)
	writerWG.Wait()

	if writeErr != nil {
		return fmt.Errorf("failed to write response: %w", writeErr)
	}
	select {
	case err := <-readErr:
		if err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				return fmt.Errorf("request exceeds the %d byte line limit", maxLineBytes)
			}
			return fmt.Errorf("failed to read request: %w", err)
		}
	default:
	}
	return nil
}

// dispatch parses and answers a single request line.
func (e *Engine) dispatch(ctx context.Context, line []byte, send func(Response)) {
	start := time.Now()

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		if json.Valid(line) {
			send(errorResponse(nil, &RPCError{Code: InvalidRequest, Message: "request must be a JSON-RPC object"}))
		} else {
			send(errorResponse(nil, &RPCError{Code: ParseError, Message: "invalid JSON"}))
		}
		return
	}

	if req.JSONRPC != "2.0" || req.Method == "" {
		if req.Notification() {
			slog.Debug("dropping malformed notification")
			return
		}
		send(errorResponse(req.ID, &RPCError{Code: InvalidRequest, Message: "invalid JSON-RPC 2.0 request"}))
		return
	}

	handler, ok := e.handlers[req.Method]
	if !ok {
		if req.Notification() {
			slog.Debug("ignoring unknown notification", "method", req.Method)
			return
		}
		send(errorResponse(req.ID, &RPCError{
			Code:    MethodNotFound,
			Message: fmt.Sprintf("method not found: %s", req.Method),
		}))
		return
	}

	result, rpcErr := callHandler(ctx, handler, req.Params)

	if req.Notification() {
		return
	}
	if rpcErr != nil {
		slog.Debug("request failed",
			"method", req.Method,
			"code", rpcErr.Code,
			"duration_ms", time.Since(start).Milliseconds())
		send(errorResponse(req.ID, rpcErr))
		return
	}
	slog.Debug("request served",
		"method", req.Method,
		"duration_ms", time.Since(start).Milliseconds())
	send(successResponse(req.ID, result))
}

// callHandler guards against handler panics; one bad request must not take
// down the session.
func callHandler(ctx context.Context, h Handler, params json.RawMessage) (result any, rpcErr *RPCError) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("handler panicked", "panic", rec)
			result = nil
			rpcErr = &RPCError{Code: InternalError, Message: "internal error"}
		}
	}()
	return h(ctx, params)
}
