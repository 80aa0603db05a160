package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Server answers one request per connection.
type Server struct {
	Handler Handler
	Logger  *slog.Logger
	// IOTimeout bounds reading the request and writing the response.
	IOTimeout time.Duration
}

// Serve accepts clients until ctx is cancelled or the listener closes, then
// waits for in-flight connections.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := s.IOTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(timeout))

			resp := s.handle(ctx, conn, logger)
			if err := json.NewEncoder(conn).Encode(resp); err != nil {
				logger.Debug("ipc write failed", "error", err.Error())
			}
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn, logger *slog.Logger) (resp Response) {
	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		return Response{OK: false, Error: fmt.Sprintf("decode request: %v", err)}
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("ipc handler panicked", "command", req.Command, "panic", fmt.Sprint(r))
			resp = Response{OK: false, Error: "internal error"}
		}
	}()

	logger.Debug("ipc request", "command", req.Command, "source", req.Source)
	return s.Handler.Handle(ctx, req)
}
