package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

const defaultClientTimeout = 250 * time.Millisecond

// Client sends control commands to a running instance.
type Client struct {
	Path    string
	Timeout time.Duration
	// Source is attached to every request; empty means "cli".
	Source string
}

// Do performs one request/response roundtrip bounded by c.Timeout.
func (c Client) Do(ctx context.Context, command string) (Response, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	source := c.Source
	if source == "" {
		source = "cli"
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.Path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	if err := json.NewEncoder(conn).Encode(Request{Command: command, Source: source}); err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

func (c Client) Ask(ctx context.Context) (Response, error)    { return c.Do(ctx, CommandAsk) }
func (c Client) Status(ctx context.Context) (Response, error) { return c.Do(ctx, CommandStatus) }
func (c Client) Quit(ctx context.Context) (Response, error)   { return c.Do(ctx, CommandQuit) }

// Alive reports whether a responsive instance owns the socket. An unreachable
// socket is not an error; any other failure is inconclusive.
func (c Client) Alive(ctx context.Context) (bool, error) {
	_, err := c.Status(ctx)
	switch {
	case err == nil:
		return true, nil
	case Unreachable(err):
		return false, nil
	default:
		return false, fmt.Errorf("probe socket: %w", err)
	}
}

// Unreachable reports dial failures meaning nothing listens on the socket:
// the path is missing or the owner is gone.
func Unreachable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED)
}
