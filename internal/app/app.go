// Package app dispatches glimpse commands and owns the assistant process lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rbright/glimpse/internal/audio"
	"github.com/rbright/glimpse/internal/cli"
	"github.com/rbright/glimpse/internal/config"
	"github.com/rbright/glimpse/internal/doctor"
	"github.com/rbright/glimpse/internal/ipc"
	"github.com/rbright/glimpse/internal/logging"
	"github.com/rbright/glimpse/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("glimpse"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("glimpse"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	level, err := logging.ParseLevel(parsed.LogLevel)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 2
	}

	if err := loadEnvFile(parsed.EnvFile); err != nil {
		fmt.Fprintf(r.Stderr, "error: load env file: %v\n", err)
		return 1
	}

	// Only the long-running command mirrors logs to the console; one-shot
	// commands keep stderr for their own output.
	var console io.Writer
	if parsed.Command == cli.CommandRun {
		console = r.Stderr
	}
	logRuntime, err := logging.New(logging.Options{Level: level, Console: console})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
		"env_overrides", cfgLoaded.Overrides,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx, cfgLoaded.Config)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandAsk:
		return r.commandAsk(ctx)
	case cli.CommandQuit:
		return r.forwardOrFail(ctx, ipc.CommandQuit)
	case cli.CommandRun:
		cfg := cfgLoaded.Config
		if proxy := strings.TrimSpace(parsed.Proxy); proxy != "" {
			cfg.Network.SocksProxy = proxy
		}
		return r.commandRun(ctx, cfg, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

// loadEnvFile reads KEY=VALUE pairs without overriding the process
// environment. A missing file is not an error.
func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

func (r Runner) commandDevices(ctx context.Context, cfg config.Config) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	fmt.Fprintln(r.Stdout, cameraLine(cfg.Camera))
	return 0
}

func cameraLine(cam config.CameraConfig) string {
	if !cam.Enable {
		return "camera: disabled"
	}
	if _, err := os.Stat(cam.Device); err != nil {
		return fmt.Sprintf("camera: %s unavailable (%v)", cam.Device, err)
	}
	return fmt.Sprintf("camera: %s %dx%d", cam.Device, cam.Width, cam.Height)
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.SocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandStatus)
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		fmt.Fprintln(r.Stdout, statusWord(resp))
		return 0
	}

	fmt.Fprintln(r.Stdout, "idle")
	return 0
}

func statusWord(resp ipc.Response) string {
	if resp.Busy {
		return "busy"
	}
	return "idle"
}

func (r Runner) commandAsk(ctx context.Context) int {
	socketPath, err := ipc.SocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandAsk)
	if !handled {
		fmt.Fprintln(r.Stderr, "error: glimpse is not running")
		return 1
	}
	if resp.Busy {
		fmt.Fprintln(r.Stdout, resp.Error)
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(r.Stdout, "request accepted (%s)\n", resp.RequestID)
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.SocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintln(r.Stderr, "error: glimpse is not running")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// tryForward sends command to a running instance. handled is false when
// nothing is listening on socketPath.
func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	client := ipc.Client{Path: socketPath, Timeout: 220 * time.Millisecond}
	resp, err := client.Do(ctx, command)
	switch {
	case err == nil && resp.OK:
		return resp, true, nil
	case err == nil:
		return resp, true, errors.New(resp.Error)
	case ipc.Unreachable(err):
		return ipc.Response{}, false, nil
	default:
		return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
	}
}
