package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	notifyService = "org.freedesktop.Notifications"
	notifyPath    = "/org/freedesktop/Notifications"
)

// desktopNotify sends a freedesktop notification over DBus via busctl and
// returns the notification ID assigned by the server.
func desktopNotify(ctx context.Context, appName string, replaceID uint32, summary string, timeoutMS int) (uint32, error) {
	out, err := runBusctl(ctx, "desktop notify",
		"Notify",
		"susssasa{sv}i",
		appName,
		strconv.FormatUint(uint64(replaceID), 10),
		"",
		summary,
		"",
		"0", // actions
		"0", // hints
		strconv.Itoa(timeoutMS),
	)
	if err != nil {
		return 0, err
	}

	fields := strings.Fields(out)
	if len(fields) < 2 || fields[0] != "u" {
		return 0, fmt.Errorf("desktop notify invalid response: %q", out)
	}

	value, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("desktop notify parse id %q: %w", fields[1], err)
	}
	return uint32(value), nil
}

// desktopDismiss requests explicit close by notification ID.
func desktopDismiss(ctx context.Context, id uint32) error {
	_, err := runBusctl(ctx, "desktop dismiss", "CloseNotification", "u", strconv.FormatUint(uint64(id), 10))
	return err
}

func runBusctl(ctx context.Context, op string, method string, args ...string) (string, error) {
	argv := append([]string{"--user", "call", notifyService, notifyPath, notifyService, method}, args...)
	out, err := exec.CommandContext(ctx, "busctl", argv...).CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		if trimmed == "" {
			return "", fmt.Errorf("%s failed: %w", op, err)
		}
		return "", fmt.Errorf("%s failed: %w (%s)", op, err, trimmed)
	}
	return trimmed, nil
}
