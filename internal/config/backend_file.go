package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// xdgDir resolves an XDG base directory, falling back to fallback under $HOME.
func xdgDir(env string, fallback ...string) (string, bool) {
	if dir := os.Getenv(env); dir != "" {
		return dir, true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(append([]string{home}, fallback...)...), true
}

func defaultDataDir() string {
	dir, ok := xdgDir("XDG_DATA_HOME", ".local", "share")
	if !ok {
		return "voicekeeper-data"
	}
	return filepath.Join(dir, "voicekeeper")
}

// configFilePath honours VOICEKEEPER_CONFIG, then $XDG_CONFIG_HOME/voicekeeper.
func configFilePath() string {
	if p := os.Getenv("VOICEKEEPER_CONFIG"); p != "" {
		return p
	}
	dir, ok := xdgDir("XDG_CONFIG_HOME", ".config")
	if !ok {
		dir = "."
	}
	return filepath.Join(dir, "voicekeeper", "config.json")
}

// fileBackend keeps config as one flat JSON object keyed by dotted names.
// Hand-written files may use native JSON types: numbers for floats and ints,
// booleans, and arrays for list keys such as gemini.api_versions.
type fileBackend struct {
	path   string
	values map[string]any
}

func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, values: map[string]any{}}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		slog.Warn("config file unreadable, using defaults", "path", path, "error", err)
	default:
		if err := json.Unmarshal(data, &b.values); err != nil {
			slog.Warn("config file is not a JSON object, using defaults", "path", path, "error", err)
			b.values = map[string]any{}
		}
	}
	return b
}

// GetString renders any scalar or list value as the string form the key
// specs parse: lists are comma-joined.
func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok := b.values[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, err := scalarString(v)
	if err == nil {
		return s, true, nil
	}
	items, isList := v.([]any)
	if !isList {
		return "", true, fmt.Errorf("%s: %w", key, err)
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		s, err := scalarString(item)
		if err != nil {
			return "", true, fmt.Errorf("%s: list item: %w", key, err)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ","), true, nil
}

func scalarString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.values[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch val := v.(type) {
	case float64:
		if val != math.Trunc(val) || val < math.MinInt32 || val > math.MaxInt32 {
			return 0, true, fmt.Errorf("%s: %v is not a whole number in range", key, val)
		}
		return int(val), true, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, true, fmt.Errorf("%s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("%s: unsupported value type %T", key, v)
	}
}

func (b *fileBackend) SetString(key, val string) error { return b.set(key, val) }

func (b *fileBackend) SetInt(key string, val int) error { return b.set(key, val) }

func (b *fileBackend) Delete(key string) error {
	delete(b.values, key)
	return b.flush()
}

func (b *fileBackend) set(key string, v any) error {
	b.values[key] = v
	return b.flush()
}

// flush writes through a temp file so a crash never leaves half a config.
func (b *fileBackend) flush() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(b.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}
