package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

var (
	providers      = []string{"gemini", "openai", "claude"}
	listenEngines  = []string{"whisper", "openai"}
	audioBackends  = []string{"pulse", "portaudio"}
	voiceEngines   = []string{"espeak", "openai", "none"}
	voicePlayers   = []string{"pulse", "beep"}
	indicatorKinds = []string{"hypr", "desktop"}
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if cfg.Camera.Enable {
		if strings.TrimSpace(cfg.Camera.Device) == "" {
			return nil, fmt.Errorf("camera.device must not be empty when camera.enable=true")
		}
		if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
			return nil, fmt.Errorf("camera.width and camera.height must be > 0")
		}
	}
	if cfg.Camera.PollIntervalMS <= 0 {
		return nil, fmt.Errorf("camera.poll_interval_ms must be > 0")
	}

	if cfg.Listen.Attempts <= 0 {
		return nil, fmt.Errorf("listen.attempts must be > 0")
	}
	if cfg.Listen.CalibrationMS < 0 {
		return nil, fmt.Errorf("listen.calibration_ms must be >= 0")
	}
	if cfg.Listen.TimeoutMS <= 0 || cfg.Listen.PhraseLimitMS <= 0 {
		return nil, fmt.Errorf("listen.timeout_ms and listen.phrase_limit_ms must be > 0")
	}
	if cfg.Listen.EnergyThreshold <= 0 || cfg.Listen.EnergyThreshold >= 1 {
		return nil, fmt.Errorf("listen.energy_threshold must be in (0, 1)")
	}
	if err := oneOf("listen.engine", cfg.Listen.Engine, listenEngines); err != nil {
		return nil, err
	}
	if normalize(cfg.Listen.Engine) == "whisper" && strings.TrimSpace(cfg.Listen.WhisperModel) == "" {
		return nil, fmt.Errorf("listen.whisper_model must be set when listen.engine=whisper")
	}

	if err := oneOf("audio.backend", cfg.Audio.Backend, audioBackends); err != nil {
		return nil, err
	}
	if normalize(cfg.Audio.Backend) == "portaudio" && strings.TrimSpace(cfg.Audio.Input) != "default" {
		warnings = append(warnings, Warning{Message: "audio.input is ignored by the portaudio backend; using the default device"})
	}

	if err := oneOf("inference.provider", cfg.Inference.Provider, providers); err != nil {
		return nil, err
	}
	if cfg.Inference.MaxSentences <= 0 {
		return nil, fmt.Errorf("inference.max_sentences must be > 0")
	}
	if cfg.Inference.MaxTokens <= 0 {
		return nil, fmt.Errorf("inference.max_tokens must be > 0")
	}
	if cfg.Inference.TimeoutMS < 0 {
		return nil, fmt.Errorf("inference.timeout_ms must be >= 0")
	}

	if err := oneOf("voice.engine", cfg.Voice.Engine, voiceEngines); err != nil {
		return nil, err
	}
	if err := oneOf("voice.player", cfg.Voice.Player, voicePlayers); err != nil {
		return nil, err
	}
	if cfg.Voice.Volume < 0 || cfg.Voice.Volume > 1 {
		return nil, fmt.Errorf("voice.volume must be in [0, 1]")
	}
	if cfg.Voice.Rate <= 0 {
		return nil, fmt.Errorf("voice.rate must be > 0")
	}

	if _, _, err := net.SplitHostPort(strings.TrimSpace(cfg.Shell.Listen)); err != nil {
		return nil, fmt.Errorf("shell.listen must be host:port: %w", err)
	}
	if cfg.Shell.RedrawIntervalMS <= 0 {
		return nil, fmt.Errorf("shell.redraw_interval_ms must be > 0")
	}
	if cfg.Shell.ThumbnailSize <= 0 || cfg.Shell.PreviewWidth <= 0 || cfg.Shell.PreviewHeight <= 0 {
		return nil, fmt.Errorf("shell thumbnail and preview sizes must be > 0")
	}
	if cfg.Shell.OpenBrowser && len(cfg.Shell.OpenCmd.Argv) == 0 {
		return nil, fmt.Errorf("shell.open_cmd must not be empty when shell.open_browser=true")
	}

	if err := oneOf("indicator.backend", cfg.Indicator.Backend, indicatorKinds); err != nil {
		return nil, err
	}
	if normalize(cfg.Indicator.Backend) == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}

	if len(cfg.ExitWords) == 0 {
		return nil, fmt.Errorf("exit_words must not be empty")
	}
	for _, w := range cfg.ExitWords {
		if strings.ContainsFunc(strings.TrimSpace(w), isSpace) {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("exit word %q contains spaces; it must match the whole utterance", w)})
		}
	}
	if strings.TrimSpace(cfg.Farewell) == "" {
		return nil, fmt.Errorf("farewell must not be empty")
	}
	if cfg.ShutdownGraceMS < 0 {
		return nil, fmt.Errorf("shutdown_grace_ms must be >= 0")
	}

	if proxy := strings.TrimSpace(cfg.Network.SocksProxy); proxy != "" {
		if _, _, err := net.SplitHostPort(proxy); err != nil {
			return nil, fmt.Errorf("network.socks_proxy must be host:port: %w", err)
		}
	}

	return warnings, nil
}

func oneOf(key, value string, allowed []string) error {
	if slices.Contains(allowed, normalize(value)) {
		return nil
	}
	return fmt.Errorf("%s must be one of: %s", key, strings.Join(allowed, ", "))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t'
}
