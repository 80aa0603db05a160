package config

import (
	"fmt"
	"strings"
	"unicode"
)

// URLPlaceholder in a command is replaced by the shell URL; commands without
// it receive the URL as their last argument.
const URLPlaceholder = "{url}"

// ParseCommand splits a shell-like command line. Quotes group words and a
// backslash escapes the next rune; no other shell syntax is interpreted.
func ParseCommand(raw string) (CommandConfig, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return CommandConfig{Raw: raw}, nil
	}

	var sp splitter
	for _, r := range trimmed {
		sp.feed(r)
	}
	if sp.escaped {
		return CommandConfig{}, fmt.Errorf("unterminated escape sequence in command: %q", trimmed)
	}
	if sp.quote != 0 {
		return CommandConfig{}, fmt.Errorf("unterminated quote in command: %q", trimmed)
	}
	sp.flush()
	return CommandConfig{Raw: raw, Argv: sp.argv}, nil
}

// With returns the argv to launch for url.
func (c CommandConfig) With(url string) []string {
	if len(c.Argv) == 0 {
		return nil
	}
	out := make([]string, 0, len(c.Argv)+1)
	substituted := false
	for _, arg := range c.Argv {
		if strings.Contains(arg, URLPlaceholder) {
			arg = strings.ReplaceAll(arg, URLPlaceholder, url)
			substituted = true
		}
		out = append(out, arg)
	}
	if !substituted {
		out = append(out, url)
	}
	return out
}

type splitter struct {
	argv    []string
	word    strings.Builder
	inWord  bool
	quote   rune
	escaped bool
}

func (s *splitter) feed(r rune) {
	switch {
	case s.escaped:
		s.word.WriteRune(r)
		s.escaped = false
	case r == '\\':
		s.escaped, s.inWord = true, true
	case s.quote != 0 && r == s.quote:
		s.quote = 0
	case s.quote != 0:
		s.word.WriteRune(r)
	case r == '\'' || r == '"':
		s.quote, s.inWord = r, true
	case unicode.IsSpace(r):
		s.flush()
	default:
		s.word.WriteRune(r)
		s.inWord = true
	}
}

func (s *splitter) flush() {
	if !s.inWord {
		return
	}
	s.argv = append(s.argv, s.word.String())
	s.word.Reset()
	s.inWord = false
}

func mustParseCommand(raw string) CommandConfig {
	cmd, err := ParseCommand(raw)
	if err != nil {
		panic(err)
	}
	return cmd
}
