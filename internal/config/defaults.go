package config

const (
	DefaultShellListen = "127.0.0.1:8765"
	DefaultFarewell    = "Goodbye! Shutting down system."
)

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	openCmd := "xdg-open"

	return Config{
		Camera: CameraConfig{
			Enable:         true,
			Device:         "/dev/video0",
			Width:          1280,
			Height:         720,
			PollIntervalMS: 50,
		},
		Listen: ListenConfig{
			Attempts:        3,
			CalibrationMS:   1000,
			TimeoutMS:       8000,
			PhraseLimitMS:   15000,
			PauseMS:         800,
			EnergyThreshold: 0.015,
			Engine:          "openai",
			WhisperThreads:  4,
			OpenAIModel:     "whisper-1",
			Language:        "en",
		},
		Audio: AudioConfig{
			Backend:  "pulse",
			Input:    "default",
			Fallback: "default",
		},
		Inference: InferenceConfig{
			Provider:     "gemini",
			MaxSentences: 4,
			MaxTokens:    1024,
			TimeoutMS:    120000,
		},
		Voice: VoiceConfig{
			Engine:      "espeak",
			Voice:       "en",
			Rate:        180,
			Volume:      0.8,
			OpenAIModel: "tts-1",
			OpenAIVoice: "alloy",
			Player:      "pulse",
		},
		Shell: ShellConfig{
			Listen:           DefaultShellListen,
			RedrawIntervalMS: 50,
			ThumbnailSize:    300,
			PreviewWidth:     640,
			PreviewHeight:    480,
			OpenBrowser:      true,
			OpenCmd:          mustParseCommand(openCmd),
		},
		Indicator: IndicatorConfig{
			Enable:         false,
			Backend:        "hypr",
			DesktopAppName: "glimpse",
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
		},
		ExitWords:       []string{"exit", "quit", "stop"},
		Farewell:        DefaultFarewell,
		ShutdownGraceMS: 2000,
	}
}
