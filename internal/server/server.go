package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ironsheep/snaptext/internal/coordinator"
	"github.com/ironsheep/snaptext/internal/errors"
	"github.com/ironsheep/snaptext/internal/notify"
)

// Maximum size of one protocol line. appendRecord carries a whole encoded
// image.
const maxLine = 32 * 1024 * 1024

// Server handles protocol communication for one coordinator.
type Server struct {
	coord  *coordinator.Coordinator
	logger *slog.Logger

	// writeMu serializes responses and notifications on the output stream.
	writeMu sync.Mutex
}

// Request is an incoming action.
type Request struct {
	ID     any             `json:"id"`
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers one Request.
type Response struct {
	ID      any        `json:"id"`
	Success bool       `json:"success"`
	Result  any        `json:"result,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the wire form of an *errors.Error.
type ErrorBody struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Details map[string]any   `json:"details,omitempty"`
}

// Notification is an unsolicited message (no ID).
type Notification struct {
	Action string `json:"action"`
	Params any    `json:"params,omitempty"`
}

// StoreChanged is the payload of a storeChanged notification.
type StoreChanged struct {
	Records any   `json:"records"`
	Version int64 `json:"version"`
}

// New creates a server for coord.
func New(coord *coordinator.Coordinator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{coord: coord, logger: logger}
}

// Serve reads requests from in and writes responses and storeChanged
// notifications to out until in is exhausted or ctx ends.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, unsubscribe := s.coord.Subscribe(16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.forward(ctx, events, out)
	}()
	defer func() {
		unsubscribe()
		wg.Wait()
	}()

	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLine)

	enc := json.NewEncoder(out)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("server: failed to parse request", "error", err)
			s.write(enc, s.failure(nil, errors.NewInvalidRequest(fmt.Sprintf("malformed request: %v", err))))
			continue
		}

		s.write(enc, s.handleRequest(ctx, &req))
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return nil
}

// forward turns hub events into storeChanged notifications.
func (s *Server) forward(ctx context.Context, events <-chan notify.Event, out io.Writer) {
	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.write(enc, Notification{
				Action: "storeChanged",
				Params: StoreChanged{Records: ev.Records, Version: ev.Version},
			})
		}
	}
}

func (s *Server) write(enc *json.Encoder, v any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := enc.Encode(v); err != nil {
		s.logger.Error("server: failed to encode message", "error", err)
	}
}

// handleRequest runs one action and wraps the outcome.
func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	result, err := s.dispatch(ctx, req.Action, req.Params)
	if err != nil {
		s.logger.Debug("server: action failed", "action", req.Action, "error", err)
		return s.failure(req.ID, err)
	}
	return &Response{ID: req.ID, Success: true, Result: result}
}

func (s *Server) failure(id any, err error) *Response {
	return &Response{ID: id, Error: errorBody(err)}
}

// errorBody maps any error onto the wire form. Untyped errors are INTERNAL.
func errorBody(err error) *ErrorBody {
	var e *errors.Error
	if !errors.As(err, &e) {
		e = errors.NewInternal(err)
	}
	return &ErrorBody{Code: e.Code, Message: e.Message, Details: e.Details}
}
