// Package config resolves, parses, validates, and defaults glimpse configuration.
package config

import "strings"

// Parse reads JSONC configuration content layered over base.
// Empty content yields base unchanged.
func Parse(content string, base Config) (Config, []Warning, error) {
	if strings.TrimSpace(content) == "" {
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}
	return parseJSONC(content, base)
}
