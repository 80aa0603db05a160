// Package audio discovers microphones and streams mono 16 kHz PCM frames from them.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const clientName = "glimpse"

// Device describes one Pulse input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

func newClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(clientName),
		pulse.ClientApplicationIconName("camera-web"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListDevices returns Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var infos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &infos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for _, source := range infos {
		if source == nil {
			continue
		}
		// Monitor sources mirror playback and would make the assistant hear itself.
		if strings.HasSuffix(source.SourceName, ".monitor") {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// SelectDevice resolves audio.input/audio.fallback preferences against live devices.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}

	input = normalizeTerm(input)
	fallback = normalizeTerm(fallback)

	var defaultDevice, byInput, byFallback *Device
	for i := range devices {
		dev := &devices[i]
		if dev.Default {
			defaultDevice = dev
		}
		if byInput == nil && input != "" && deviceMatches(*dev, input) {
			byInput = dev
		}
		if byFallback == nil && fallback != "" && deviceMatches(*dev, fallback) {
			byFallback = dev
		}
	}

	primary := defaultDevice
	switch {
	case input == "" && defaultDevice == nil:
		return Selection{}, errors.New("default audio source is unavailable")
	case input != "" && byInput == nil:
		return Selection{}, fmt.Errorf("audio.input %q did not match any device", input)
	case input != "":
		primary = byInput
	}

	if usable(*primary) {
		return Selection{Device: *primary}, nil
	}

	reason := "unavailable"
	if primary.Muted {
		reason = "muted"
	}

	next := defaultDevice
	if fallback != "" {
		if byFallback == nil {
			return Selection{}, fmt.Errorf("primary input %q is %s and fallback %q not found", primary.ID, reason, fallback)
		}
		next = byFallback
	} else if next == nil {
		return Selection{}, fmt.Errorf("primary input %q is %s and no usable fallback: default audio source is unavailable", primary.ID, reason)
	}

	if !next.Available {
		return Selection{}, fmt.Errorf("audio fallback device %q is not available", next.ID)
	}
	if next.Muted {
		return Selection{}, fmt.Errorf("audio fallback device %q is muted", next.ID)
	}

	return Selection{
		Device:   *next,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, reason, next.ID),
		Fallback: primary.ID != next.ID,
	}, nil
}

// normalizeTerm folds "default" and blanks into the empty term.
func normalizeTerm(term string) string {
	term = strings.TrimSpace(strings.ToLower(term))
	if term == "default" {
		return ""
	}
	return term
}

func usable(d Device) bool {
	return d.Available && !d.Muted
}

func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(device.ID), term) ||
		strings.Contains(strings.ToLower(device.Description), term)
}

func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
