package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown provider", func(c *Config) { c.Inference.Provider = "llama" }, "inference.provider must be one of"},
		{"zero attempts", func(c *Config) { c.Listen.Attempts = 0 }, "listen.attempts"},
		{"whisper without model", func(c *Config) { c.Listen.Engine = "whisper" }, "listen.whisper_model"},
		{"bad audio backend", func(c *Config) { c.Audio.Backend = "alsa" }, "audio.backend"},
		{"bad voice engine", func(c *Config) { c.Voice.Engine = "festival" }, "voice.engine"},
		{"volume too loud", func(c *Config) { c.Voice.Volume = 1.5 }, "voice.volume"},
		{"bad shell listen", func(c *Config) { c.Shell.Listen = "8765" }, "shell.listen"},
		{"no exit words", func(c *Config) { c.ExitWords = nil }, "exit_words"},
		{"empty farewell", func(c *Config) { c.Farewell = " " }, "farewell"},
		{"camera without device", func(c *Config) { c.Camera.Device = "" }, "camera.device"},
		{"bad proxy", func(c *Config) { c.Network.SocksProxy = "nope" }, "network.socks_proxy"},
		{"desktop without app name", func(c *Config) {
			c.Indicator.Backend = "desktop"
			c.Indicator.DesktopAppName = ""
		}, "indicator.desktop_app_name"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateCameraDisabledSkipsDeviceChecks(t *testing.T) {
	cfg := Default()
	cfg.Camera.Enable = false
	cfg.Camera.Device = ""
	_, err := Validate(cfg)
	require.NoError(t, err)
}

func TestValidateWarnsOnMultiWordExitPhrase(t *testing.T) {
	cfg := Default()
	cfg.ExitWords = append(cfg.ExitWords, "shut down")
	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "shut down")
}

func TestValidateProviderIsCaseInsensitive(t *testing.T) {
	cfg := Default()
	cfg.Inference.Provider = " OpenAI "
	_, err := Validate(cfg)
	require.NoError(t, err)
}
