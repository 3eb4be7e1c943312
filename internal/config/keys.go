package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kList
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "VOICEKEEPER_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_enabled", typ: kBool, env: "VOICEKEEPER_SERVER_MCP_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.MCPEnabled },
	},
	{
		key: "storage.data_dir", typ: kString, env: "VOICEKEEPER_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "VOICEKEEPER_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "gemini.base_url", typ: kString, env: "VOICEKEEPER_GEMINI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.BaseURL },
	},
	{
		key: "gemini.api_versions", typ: kList, env: "VOICEKEEPER_GEMINI_API_VERSIONS",
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIVersions = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.Gemini.APIVersions, ",") },
	},
	{
		key: "gemini.default_models", typ: kList, env: "VOICEKEEPER_GEMINI_DEFAULT_MODELS",
		apply:   func(cfg *Config, v any) { cfg.Gemini.DefaultModels = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.Gemini.DefaultModels, ",") },
	},
	{
		key: "gemini.priority_model", typ: kString, env: "VOICEKEEPER_GEMINI_PRIORITY_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.PriorityModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.PriorityModel },
	},
	{
		key: "gemini.max_models", typ: kInt, env: "VOICEKEEPER_GEMINI_MAX_MODELS",
		apply:   func(cfg *Config, v any) { cfg.Gemini.MaxModels = v.(int) },
		extract: func(cfg Config) any { return cfg.Gemini.MaxModels },
	},
	{
		key: "gemini.attempt_timeout", typ: kString, env: "VOICEKEEPER_GEMINI_ATTEMPT_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Gemini.AttemptTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.AttemptTimeout },
	},
	{
		key: "gemini.discovery_timeout", typ: kString, env: "VOICEKEEPER_GEMINI_DISCOVERY_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Gemini.DiscoveryTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.DiscoveryTimeout },
	},
	{
		key: "gemini.catalog_ttl", typ: kString, env: "VOICEKEEPER_GEMINI_CATALOG_TTL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.CatalogTTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.CatalogTTL },
	},
	{
		key: "gemini.temperature", typ: kFloat, env: "VOICEKEEPER_GEMINI_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Gemini.Temperature },
	},
	{
		key: "gemini.max_output_tokens", typ: kInt, env: "VOICEKEEPER_GEMINI_MAX_OUTPUT_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Gemini.MaxOutputTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Gemini.MaxOutputTokens },
	},
	{
		key: "gemini.validation_attempts", typ: kInt, env: "VOICEKEEPER_GEMINI_VALIDATION_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Gemini.ValidationAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Gemini.ValidationAttempts },
	},
	{
		key: "gemini.api_key", typ: kString, env: "VOICEKEEPER_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kList:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if list := splitList(v); ok && len(list) > 0 {
				s.apply(cfg, list)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kList:
			if list := splitList(raw); len(list) > 0 {
				s.apply(cfg, list)
			}
		}
	}
}
