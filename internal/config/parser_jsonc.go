package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Camera    *jsoncCamera    `json:"camera"`
	Listen    *jsoncListen    `json:"listen"`
	Audio     *jsoncAudio     `json:"audio"`
	Inference *jsoncInference `json:"inference"`
	Voice     *jsoncVoice     `json:"voice"`
	Shell     *jsoncShell     `json:"shell"`
	Indicator *jsoncIndicator `json:"indicator"`
	Network   *jsoncNetwork   `json:"network"`

	ExitWords       *jsoncStringList `json:"exit_words"`
	Farewell        *string          `json:"farewell"`
	ShutdownGraceMS *int             `json:"shutdown_grace_ms"`
	Debug           *jsoncDebug      `json:"debug"`
}

type jsoncCamera struct {
	Enable         *bool   `json:"enable"`
	Device         *string `json:"device"`
	Width          *int    `json:"width"`
	Height         *int    `json:"height"`
	PollIntervalMS *int    `json:"poll_interval_ms"`
}

type jsoncListen struct {
	Attempts        *int     `json:"attempts"`
	CalibrationMS   *int     `json:"calibration_ms"`
	TimeoutMS       *int     `json:"timeout_ms"`
	PhraseLimitMS   *int     `json:"phrase_limit_ms"`
	PauseMS         *int     `json:"pause_ms"`
	EnergyThreshold *float64 `json:"energy_threshold"`
	Engine          *string  `json:"engine"`
	WhisperModel    *string  `json:"whisper_model"`
	WhisperThreads  *int     `json:"whisper_threads"`
	OpenAIModel     *string  `json:"openai_model"`
	Language        *string  `json:"language"`
}

type jsoncAudio struct {
	Backend  *string `json:"backend"`
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
}

type jsoncInference struct {
	Provider     *string `json:"provider"`
	Model        *string `json:"model"`
	APIKeyEnv    *string `json:"api_key_env"`
	BaseURL      *string `json:"base_url"`
	MaxSentences *int    `json:"max_sentences"`
	MaxTokens    *int    `json:"max_tokens"`
	TimeoutMS    *int    `json:"timeout_ms"`
}

type jsoncVoice struct {
	Engine      *string  `json:"engine"`
	Voice       *string  `json:"voice"`
	Rate        *int     `json:"rate"`
	Volume      *float64 `json:"volume"`
	OpenAIModel *string  `json:"openai_model"`
	OpenAIVoice *string  `json:"openai_voice"`
	Player      *string  `json:"player"`
}

type jsoncShell struct {
	Listen           *string `json:"listen"`
	RedrawIntervalMS *int    `json:"redraw_interval_ms"`
	ThumbnailSize    *int    `json:"thumbnail_size"`
	PreviewWidth     *int    `json:"preview_width"`
	PreviewHeight    *int    `json:"preview_height"`
	OpenBrowser      *bool   `json:"open_browser"`
	OpenCmd          *string `json:"open_cmd"`
}

type jsoncIndicator struct {
	Enable         *bool   `json:"enable"`
	Backend        *string `json:"backend"`
	DesktopAppName *string `json:"desktop_app_name"`
	SoundEnable    *bool   `json:"sound_enable"`
	SoundHeardFile *string `json:"sound_heard_file"`
	SoundErrorFile *string `json:"sound_error_file"`
	TextListening  *string `json:"text_listening"`
	TextThinking   *string `json:"text_thinking"`
	TextSpeaking   *string `json:"text_speaking"`
	TextError      *string `json:"text_error"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms"`
}

type jsoncNetwork struct {
	SocksProxy *string `json:"socks_proxy"`
}

type jsoncDebug struct {
	AudioDump    *bool   `json:"audio_dump"`
	AudioDumpDir *string `json:"audio_dump_dir"`
}

type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		parts := strings.Split(single, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, part)
		}
		*l = out
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	cfg.ExitWords = append([]string(nil), base.ExitWords...)
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if c := payload.Camera; c != nil {
		set(&cfg.Camera.Enable, c.Enable)
		setString(&cfg.Camera.Device, c.Device)
		set(&cfg.Camera.Width, c.Width)
		set(&cfg.Camera.Height, c.Height)
		set(&cfg.Camera.PollIntervalMS, c.PollIntervalMS)
	}

	if l := payload.Listen; l != nil {
		set(&cfg.Listen.Attempts, l.Attempts)
		set(&cfg.Listen.CalibrationMS, l.CalibrationMS)
		set(&cfg.Listen.TimeoutMS, l.TimeoutMS)
		set(&cfg.Listen.PhraseLimitMS, l.PhraseLimitMS)
		set(&cfg.Listen.PauseMS, l.PauseMS)
		set(&cfg.Listen.EnergyThreshold, l.EnergyThreshold)
		setString(&cfg.Listen.Engine, l.Engine)
		setString(&cfg.Listen.WhisperModel, l.WhisperModel)
		set(&cfg.Listen.WhisperThreads, l.WhisperThreads)
		setString(&cfg.Listen.OpenAIModel, l.OpenAIModel)
		setString(&cfg.Listen.Language, l.Language)
		if l.Attempts != nil && *l.Attempts > 3 {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("listen.attempts=%d exceeds the usual 3; each attempt can wait up to listen.timeout_ms", *l.Attempts)})
		}
	}

	if a := payload.Audio; a != nil {
		setString(&cfg.Audio.Backend, a.Backend)
		set(&cfg.Audio.Input, a.Input)
		set(&cfg.Audio.Fallback, a.Fallback)
	}

	if i := payload.Inference; i != nil {
		setString(&cfg.Inference.Provider, i.Provider)
		setString(&cfg.Inference.Model, i.Model)
		setString(&cfg.Inference.APIKeyEnv, i.APIKeyEnv)
		setString(&cfg.Inference.BaseURL, i.BaseURL)
		set(&cfg.Inference.MaxSentences, i.MaxSentences)
		set(&cfg.Inference.MaxTokens, i.MaxTokens)
		set(&cfg.Inference.TimeoutMS, i.TimeoutMS)
	}

	if v := payload.Voice; v != nil {
		setString(&cfg.Voice.Engine, v.Engine)
		setString(&cfg.Voice.Voice, v.Voice)
		set(&cfg.Voice.Rate, v.Rate)
		set(&cfg.Voice.Volume, v.Volume)
		setString(&cfg.Voice.OpenAIModel, v.OpenAIModel)
		setString(&cfg.Voice.OpenAIVoice, v.OpenAIVoice)
		setString(&cfg.Voice.Player, v.Player)
	}

	if s := payload.Shell; s != nil {
		setString(&cfg.Shell.Listen, s.Listen)
		set(&cfg.Shell.RedrawIntervalMS, s.RedrawIntervalMS)
		set(&cfg.Shell.ThumbnailSize, s.ThumbnailSize)
		set(&cfg.Shell.PreviewWidth, s.PreviewWidth)
		set(&cfg.Shell.PreviewHeight, s.PreviewHeight)
		set(&cfg.Shell.OpenBrowser, s.OpenBrowser)
		if s.OpenCmd != nil {
			cmd, err := ParseCommand(*s.OpenCmd)
			if err != nil {
				return nil, fmt.Errorf("invalid shell.open_cmd: %w", err)
			}
			cfg.Shell.OpenCmd = cmd
		}
	}

	if ind := payload.Indicator; ind != nil {
		set(&cfg.Indicator.Enable, ind.Enable)
		setString(&cfg.Indicator.Backend, ind.Backend)
		setString(&cfg.Indicator.DesktopAppName, ind.DesktopAppName)
		set(&cfg.Indicator.SoundEnable, ind.SoundEnable)
		setString(&cfg.Indicator.SoundHeardFile, ind.SoundHeardFile)
		setString(&cfg.Indicator.SoundErrorFile, ind.SoundErrorFile)
		set(&cfg.Indicator.TextListening, ind.TextListening)
		set(&cfg.Indicator.TextThinking, ind.TextThinking)
		set(&cfg.Indicator.TextSpeaking, ind.TextSpeaking)
		set(&cfg.Indicator.TextError, ind.TextError)
		set(&cfg.Indicator.ErrorTimeoutMS, ind.ErrorTimeoutMS)
	}

	if n := payload.Network; n != nil {
		setString(&cfg.Network.SocksProxy, n.SocksProxy)
	}

	if payload.ExitWords != nil {
		cfg.ExitWords = cfg.ExitWords[:0]
		for _, w := range *payload.ExitWords {
			w = strings.TrimSpace(w)
			if w == "" {
				continue
			}
			cfg.ExitWords = append(cfg.ExitWords, w)
		}
	}
	set(&cfg.Farewell, payload.Farewell)
	set(&cfg.ShutdownGraceMS, payload.ShutdownGraceMS)

	if d := payload.Debug; d != nil {
		set(&cfg.Debug.EnableAudioDump, d.AudioDump)
		setString(&cfg.Debug.AudioDumpDir, d.AudioDumpDir)
	}

	return warnings, nil
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
