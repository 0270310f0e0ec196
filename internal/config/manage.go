package config

import (
	"fmt"
	"strconv"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs from cfg.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey writes a config key to the config file. Secret keys go to the
// secrets file instead.
func SetKey(key, value string) error {
	return setKey(newFileSource(configFilePath()), fileSecrets{path: secretsFilePath()}, key, value)
}

func setKey(src Source, secrets fileSecrets, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return secrets.Set(key, value)
	}

	switch s.typ {
	case kInt:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		candidate := defaults()
		s.apply(&candidate, i)
		if err := candidate.Validate(); err != nil {
			return err
		}
		return src.SetInt(key, i)
	default:
		candidate := defaults()
		s.apply(&candidate, value)
		if err := candidate.Validate(); err != nil {
			return err
		}
		return src.SetString(key, value)
	}
}

// ValidKeys returns the list of settable config key names.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}
