// Package libconfig implements libernet's settings-file and log-rotation
// conventions: JSON documents read once, reconciled against command-line
// overrides (prompting interactively for anything missing from both), and
// saved back only when something actually changed.
//
// load_settings_file/save_settings_file/check_arg are imported by
// libernet/backup.py from libernet.server, but the original_source
// snapshot's server.py no longer defines them (another version-skew
// artifact, like libernet/bundle.py). This package is grounded on
// backup.py's call sites instead (the (value, key, default, type, prompt,
// section, input_func) -> (still_save, resolved_value) contract used
// throughout libernet/backup.py's load_settings), rather than on a
// definition that isn't present to copy.
package libconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/moby/sys/atomicwriter"
)

// Settings is a free-form settings document, mirroring the untyped dicts
// libernet's Python settings files are loaded into.
type Settings map[string]interface{}

// Load reads a JSON settings file, returning an empty Settings if the file
// doesn't exist yet.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Settings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("libconfig: reading %s: %w", path, err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("libconfig: decoding %s: %w", path, err)
	}

	return settings, nil
}

// Save writes settings to path as indented JSON, atomically.
func Save(path string, settings Settings) error {
	encoded, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("libconfig: encoding %s: %w", path, err)
	}

	if err := atomicwriter.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("libconfig: writing %s: %w", path, err)
	}

	return nil
}

// Section returns settings[key] as a nested Settings, creating and storing
// an empty one if absent or of the wrong type.
func Section(settings Settings, key string) Settings {
	if existing, ok := settings[key].(map[string]interface{}); ok {
		return Settings(existing)
	}

	section := Settings{}
	settings[key] = map[string]interface{}(section)
	return section
}

// Prompter asks the user a question and returns their raw answer.
type Prompter func(prompt string) string

// CheckArg resolves a configuration value, in priority order: an explicit
// command-line override (current, if non-nil), then whatever is already
// recorded in section, then a value obtained by prompting (if prompt is
// non-empty and input is non-nil) or def otherwise. It returns the
// resolved value and whether section had to be updated to record it.
func CheckArg[T int | string | bool](current *T, key string, def T, section Settings, prompt string, input Prompter) (bool, T) {
	if current != nil {
		stored, hasStored := section[key]
		if !hasStored || !valueEquals(stored, *current) {
			section[key] = *current
			return true, *current
		}
		return false, *current
	}

	if stored, ok := section[key]; ok {
		if value, ok := coerce[T](stored); ok {
			return false, value
		}
	}

	value := def
	if prompt != "" && input != nil {
		value = parseInput[T](input(prompt), def)
	}

	section[key] = value
	return true, value
}

func valueEquals[T comparable](stored interface{}, current T) bool {
	value, ok := coerce[T](stored)
	return ok && value == current
}

func coerce[T int | string | bool](stored interface{}) (T, bool) {
	var zero T

	switch any(zero).(type) {
	case int:
		switch n := stored.(type) {
		case int:
			return any(n).(T), true
		case float64:
			return any(int(n)).(T), true
		}
	case string:
		if s, ok := stored.(string); ok {
			return any(s).(T), true
		}
	case bool:
		if b, ok := stored.(bool); ok {
			return any(b).(T), true
		}
	}

	return zero, false
}

func parseInput[T int | string | bool](raw string, def T) T {
	var zero T

	switch any(zero).(type) {
	case int:
		var n int
		if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
			return def
		}
		return any(n).(T)
	case bool:
		switch raw {
		case "true", "yes", "y", "1":
			return any(true).(T)
		case "false", "no", "n", "0":
			return any(false).(T)
		default:
			return def
		}
	default:
		if raw == "" {
			return def
		}
		return any(raw).(T)
	}
}
