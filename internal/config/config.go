package config

import (
	"log/slog"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	Gemini  GeminiConfig
}

type ServerConfig struct {
	Port       int
	MCPEnabled bool
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

// GeminiConfig holds everything the generation pipeline needs to talk to the
// backend. API versions and model names drift over time, so they live here
// rather than in code.
type GeminiConfig struct {
	BaseURL            string
	APIVersions        []string
	DefaultModels      []string
	PriorityModel      string
	MaxModels          int
	AttemptTimeout     string
	DiscoveryTimeout   string
	CatalogTTL         string
	Temperature        float64
	MaxOutputTokens    int
	ValidationAttempts int

	// APIKey is an optional deployment-wide key used when a user has not
	// stored one of their own. Secret: env or secrets file only.
	APIKey string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:       4100,
			MCPEnabled: false,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Gemini: GeminiConfig{
			BaseURL:            "https://generativelanguage.googleapis.com",
			APIVersions:        []string{"v1beta", "v1"},
			DefaultModels:      []string{"gemini-2.0-flash", "gemini-1.5-flash", "gemini-1.5-pro"},
			PriorityModel:      "gemini-1.5-flash",
			MaxModels:          6,
			AttemptTimeout:     "30s",
			DiscoveryTimeout:   "10s",
			CatalogTTL:         "1h",
			Temperature:        0.8,
			MaxOutputTokens:    2048,
			ValidationAttempts: 3,
		},
	}
}

// Load reads configuration from the JSON file backend, applies VOICEKEEPER_*
// environment overrides, and finally fills secrets from the secrets file when
// the environment did not provide them.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), fileSecrets{})
}

// secretReader abstracts the secrets file for testing.
type secretReader interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretReader) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Gemini.APIKey == "" {
		if key, err := secrets.Get(secretsService, "gemini_api_key"); err == nil && key != "" {
			cfg.Gemini.APIKey = key
		}
	}

	return cfg, nil
}

// AttemptTimeoutDuration parses AttemptTimeout, falling back to 30s.
func (g GeminiConfig) AttemptTimeoutDuration() time.Duration {
	return parseDurationOr("gemini.attempt_timeout", g.AttemptTimeout, 30*time.Second)
}

// DiscoveryTimeoutDuration parses DiscoveryTimeout, falling back to 10s.
func (g GeminiConfig) DiscoveryTimeoutDuration() time.Duration {
	return parseDurationOr("gemini.discovery_timeout", g.DiscoveryTimeout, 10*time.Second)
}

// CatalogTTLDuration parses CatalogTTL, falling back to one hour.
func (g GeminiConfig) CatalogTTLDuration() time.Duration {
	return parseDurationOr("gemini.catalog_ttl", g.CatalogTTL, time.Hour)
}

func parseDurationOr(key, raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration in config, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return d
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
