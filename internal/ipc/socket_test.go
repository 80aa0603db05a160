package ipc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireRecoversStaleSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "glimpse.sock")

	// A bound-then-abandoned unix socket leaves a file nobody accepts on.
	stale, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())

	listener, err := Acquire(context.Background(), socketPath, AcquireOptions{ProbeTimeout: 50 * time.Millisecond, Retries: 2})
	require.NoError(t, err)
	defer listener.Close()

	info, err := os.Stat(socketPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestAcquireReturnsAlreadyRunningWhenSocketResponsive(t *testing.T) {
	path, stop := serve(t, func(_ context.Context, _ Request) Response {
		return Response{OK: true, State: "listening"}
	})
	defer stop()

	_, err := Acquire(context.Background(), path, AcquireOptions{ProbeTimeout: 80 * time.Millisecond, Retries: 1})
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestAcquireDoesNotUnlinkWhenProbeInconclusive(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "glimpse.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			conn, acceptErr := listener.Accept()
			if acceptErr != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				time.Sleep(250 * time.Millisecond)
			}(conn)
		}
	}()

	_, err = Acquire(context.Background(), socketPath, AcquireOptions{ProbeTimeout: 30 * time.Millisecond})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrAlreadyRunning)
	require.Contains(t, err.Error(), "probe existing socket")

	_, statErr := os.Stat(socketPath)
	require.NoError(t, statErr)
	require.NoError(t, listener.Close())
	<-acceptDone
}

func TestSocketPathResolution(t *testing.T) {
	t.Setenv("GLIMPSE_SOCKET", "")
	t.Setenv("XDG_RUNTIME_DIR", "")
	_, err := SocketPath()
	require.Error(t, err)

	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	path, err := SocketPath()
	require.NoError(t, err)
	require.Equal(t, "/run/user/1000/glimpse.sock", path)

	t.Setenv("GLIMPSE_SOCKET", "/tmp/custom.sock")
	path, err = SocketPath()
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom.sock", path)
}
