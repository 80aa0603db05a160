// Package hypr wraps the hyprctl calls used for on-screen status.
package hypr

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const defaultColor = "rgb(89b4fa)"

type monitor struct {
	Name    string `json:"name"`
	Focused bool   `json:"focused"`
}

// Notify sends a Hyprland notification payload.
func Notify(ctx context.Context, icon int, timeoutMS int, color string, text string) error {
	if strings.TrimSpace(color) == "" {
		color = defaultColor
	}
	return runHyprctl(
		ctx,
		"--quiet",
		"dispatch",
		"notify",
		strconv.Itoa(icon),
		strconv.Itoa(timeoutMS),
		color,
		text,
	)
}

// DismissNotify dismisses active Hyprland notifications.
func DismissNotify(ctx context.Context) error {
	return runHyprctl(ctx, "--quiet", "dispatch", "dismissnotify")
}

// QueryFocusedMonitor returns the focused monitor name (or the first monitor fallback).
// doctor uses it to confirm a compositor is reachable.
func QueryFocusedMonitor(ctx context.Context) (string, error) {
	output, err := runHyprctlOutput(ctx, "-j", "monitors")
	if err != nil {
		return "", err
	}

	var monitors []monitor
	if err := json.Unmarshal(output, &monitors); err != nil {
		return "", fmt.Errorf("decode hyprctl monitors json: %w", err)
	}
	for _, mon := range monitors {
		if mon.Focused {
			return strings.TrimSpace(mon.Name), nil
		}
	}
	if len(monitors) == 0 {
		return "", fmt.Errorf("hyprctl monitors returned no outputs")
	}
	return strings.TrimSpace(monitors[0].Name), nil
}

func runHyprctl(ctx context.Context, args ...string) error {
	_, err := runHyprctlOutput(ctx, args...)
	return err
}

func runHyprctlOutput(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "hyprctl", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return nil, fmt.Errorf("hyprctl %v failed: %w", args, err)
		}
		return nil, fmt.Errorf("hyprctl %v failed: %w (%s)", args, err, trimmed)
	}
	return out, nil
}
