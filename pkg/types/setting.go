package types

import (
	"fmt"
	"strconv"
	"strings"
)

// SettingType is the declared value type of a ConfigSetting
type SettingType string

const (
	SettingInteger SettingType = "integer"
	SettingString  SettingType = "string"
	// SettingBool is stored as an integer 0 or 1
	SettingBool SettingType = "bool"
)

// ConfigSetting is a typed key/value pair converged into a configuration store.
// Key segments separated by ':' address nested dictionaries.
type ConfigSetting struct {
	Key   string      `koanf:"key" toml:"key" yaml:"key"`
	Type  SettingType `koanf:"type" toml:"type" yaml:"type"`
	Value string      `koanf:"value" toml:"value" yaml:"value"`
}

// Path splits the key into its nested segments
func (s ConfigSetting) Path() []string {
	parts := strings.Split(s.Key, ":")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Encode returns the store element tag and text for the setting's value.
// Placeholders such as $HOME are kept verbatim.
func (s ConfigSetting) Encode() (tag string, text string, err error) {
	if len(s.Path()) == 0 {
		return "", "", fmt.Errorf("setting has an empty key")
	}
	switch s.Type {
	case SettingString, "":
		return "string", s.Value, nil
	case SettingInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(s.Value), 10, 64)
		if err != nil {
			return "", "", fmt.Errorf("setting %q: invalid integer %q", s.Key, s.Value)
		}
		return "integer", strconv.FormatInt(n, 10), nil
	case SettingBool:
		switch strings.ToLower(strings.TrimSpace(s.Value)) {
		case "1", "true", "yes", "on":
			return "integer", "1", nil
		case "0", "false", "no", "off", "":
			return "integer", "0", nil
		}
		return "", "", fmt.Errorf("setting %q: invalid boolean %q", s.Key, s.Value)
	default:
		return "", "", fmt.Errorf("setting %q: unknown type %q", s.Key, s.Type)
	}
}
