package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
	// Overrides lists the environment variables applied on top of the file.
	Overrides []string
}

// envOverrides map GLIMPSE_* variables onto config fields. They win over the
// file so one-off runs need no config edits.
var envOverrides = []struct {
	name  string
	apply func(*Config, string) error
}{
	{"GLIMPSE_INFERENCE_PROVIDER", func(c *Config, v string) error { c.Inference.Provider = v; return nil }},
	{"GLIMPSE_INFERENCE_MODEL", func(c *Config, v string) error { c.Inference.Model = v; return nil }},
	{"GLIMPSE_CAMERA_DEVICE", func(c *Config, v string) error { c.Camera.Device = v; return nil }},
	{"GLIMPSE_CAMERA_ENABLE", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		c.Camera.Enable = b
		return err
	}},
	{"GLIMPSE_SHELL_LISTEN", func(c *Config, v string) error { c.Shell.Listen = v; return nil }},
	{"GLIMPSE_SOCKS_PROXY", func(c *Config, v string) error { c.Network.SocksProxy = v; return nil }},
}

// Load resolves and reads the config file, parses it over Default(), applies
// environment overrides, and validates the result. A missing file is a warning.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}
	loaded := Loaded{Path: resolvedPath, Config: Default()}

	content, err := os.ReadFile(resolvedPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		loaded.Warnings = append(loaded.Warnings, Warning{
			Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
		})
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	default:
		cfg, warnings, err := Parse(string(content), loaded.Config)
		if err != nil {
			return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
		}
		loaded.Config, loaded.Exists = cfg, true
		loaded.Warnings = append(loaded.Warnings, warnings...)
	}

	for _, o := range envOverrides {
		v, ok := os.LookupEnv(o.name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := o.apply(&loaded.Config, strings.TrimSpace(v)); err != nil {
			return Loaded{}, fmt.Errorf("%s: %w", o.name, err)
		}
		loaded.Overrides = append(loaded.Overrides, o.name)
	}
	if len(loaded.Overrides) > 0 {
		if _, err := Validate(loaded.Config); err != nil {
			return Loaded{}, fmt.Errorf("config after %s: %w", strings.Join(loaded.Overrides, ", "), err)
		}
	}

	return loaded, nil
}
