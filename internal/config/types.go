package config

// Config is the fully-resolved runtime configuration.
type Config struct {
	Camera          CameraConfig
	Listen          ListenConfig
	Audio           AudioConfig
	Inference       InferenceConfig
	Voice           VoiceConfig
	Shell           ShellConfig
	Indicator       IndicatorConfig
	Network         NetworkConfig
	ExitWords       []string
	Farewell        string
	ShutdownGraceMS int
	Debug           DebugConfig
}

// CameraConfig selects the capture device and its poll rate.
type CameraConfig struct {
	Enable         bool
	Device         string
	Width          int
	Height         int
	PollIntervalMS int
}

// ListenConfig controls recording windows and the speech-to-text engine.
type ListenConfig struct {
	Attempts        int
	CalibrationMS   int
	TimeoutMS       int
	PhraseLimitMS   int
	PauseMS         int
	EnergyThreshold float64
	Engine          string
	WhisperModel    string
	WhisperThreads  int
	OpenAIModel     string
	Language        string
}

// AudioConfig controls the capture backend and input-source selection.
type AudioConfig struct {
	Backend  string
	Input    string
	Fallback string
}

// InferenceConfig selects the model provider.
type InferenceConfig struct {
	Provider     string
	Model        string
	APIKeyEnv    string
	BaseURL      string
	MaxSentences int
	MaxTokens    int
	TimeoutMS    int
}

// VoiceConfig controls speech synthesis and playback.
type VoiceConfig struct {
	Engine      string
	Voice       string
	Rate        int
	Volume      float64
	OpenAIModel string
	OpenAIVoice string
	Player      string
}

// ShellConfig controls the browser front end.
type ShellConfig struct {
	Listen           string
	RedrawIntervalMS int
	ThumbnailSize    int
	PreviewWidth     int
	PreviewHeight    int
	OpenBrowser      bool
	OpenCmd          CommandConfig
}

// IndicatorConfig controls desktop notifications and audio cues.
type IndicatorConfig struct {
	Enable         bool
	Backend        string
	DesktopAppName string
	SoundEnable    bool
	SoundHeardFile string
	SoundErrorFile string
	TextListening  string
	TextThinking   string
	TextSpeaking   string
	TextError      string
	ErrorTimeoutMS int
}

// NetworkConfig routes cloud API traffic.
type NetworkConfig struct {
	SocksProxy string
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
	AudioDumpDir    string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
