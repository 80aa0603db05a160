package indicator

import (
	"os"
	"strings"

	"github.com/rbright/glimpse/internal/config"
)

type locale string

const (
	localeEnglish locale = "en"
)

type messages struct {
	listening string
	thinking  string
	speaking  string
	errorText string
}

func indicatorMessagesFromEnv() messages {
	return indicatorMessages(resolveLocale(os.Getenv("LANG")))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "en") {
		return localeEnglish
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeEnglish:
		fallthrough
	default:
		return messages{
			listening: "Listening…",
			thinking:  "Thinking…",
			speaking:  "Speaking…",
			errorText: "Assistant error",
		}
	}
}

// override applies non-empty configured texts.
func (m messages) override(cfg config.IndicatorConfig) messages {
	pick := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	pick(&m.listening, cfg.TextListening)
	pick(&m.thinking, cfg.TextThinking)
	pick(&m.speaking, cfg.TextSpeaking)
	pick(&m.errorText, cfg.TextError)
	return m
}
