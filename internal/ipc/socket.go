package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

var ErrAlreadyRunning = errors.New("glimpse already running")

// SocketPath resolves the control socket: $GLIMPSE_SOCKET when set, otherwise
// $XDG_RUNTIME_DIR/glimpse.sock.
func SocketPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("GLIMPSE_SOCKET")); explicit != "" {
		return explicit, nil
	}
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, "glimpse.sock"), nil
}

// AcquireOptions tune stale-socket recovery.
type AcquireOptions struct {
	ProbeTimeout time.Duration
	Retries      int
	Backoff      time.Duration
}

// Acquire makes this process the single owner of path. A responsive owner
// yields ErrAlreadyRunning; a dead socket file is unlinked and retried. The
// file is never removed while the probe is inconclusive.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (net.Listener, error) {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 180 * time.Millisecond
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 25 * time.Millisecond
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	probe := Client{Path: path, Timeout: opts.ProbeTimeout, Source: "probe"}
	for attempt := 0; ; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return listener, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}
		if attempt > opts.Retries {
			return nil, fmt.Errorf("failed to acquire socket %s after %d retries", path, opts.Retries)
		}

		alive, probeErr := probe.Alive(ctx)
		if probeErr != nil {
			return nil, fmt.Errorf("probe existing socket %s: %w", path, probeErr)
		}
		if alive {
			return nil, ErrAlreadyRunning
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * opts.Backoff):
		}
	}
}
