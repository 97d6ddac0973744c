package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
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
		key: "server.host", typ: kString, env: "ORBITASK_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "ORBITASK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_conns", typ: kInt, env: "ORBITASK_SERVER_MAX_CONNS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConns = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConns },
	},
	{
		key: "storage.data_dir", typ: kString, env: "ORBITASK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "ORBITASK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "script.timeout", typ: kDuration, env: "ORBITASK_SCRIPT_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Script.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Script.Timeout },
	},
	{
		key: "script.max_commands", typ: kInt, env: "ORBITASK_SCRIPT_MAX_COMMANDS",
		apply:   func(cfg *Config, v any) { cfg.Script.MaxCommands = v.(int) },
		extract: func(cfg Config) any { return cfg.Script.MaxCommands },
	},
	{
		key: "auth.max_attempts", typ: kInt, env: "ORBITASK_AUTH_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Auth.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Auth.MaxAttempts },
	},
	{
		key: "auth.window", typ: kDuration, env: "ORBITASK_AUTH_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.Auth.Window = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Auth.Window },
	},
	{
		key: "auth.session_ttl", typ: kDuration, env: "ORBITASK_AUTH_SESSION_TTL",
		apply:   func(cfg *Config, v any) { cfg.Auth.SessionTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Auth.SessionTTL },
	},
	{
		key: "auth.api_token", typ: kString, env: "ORBITASK_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.APIToken },
	},
	{
		key: "auth.session_secret", typ: kString, env: "ORBITASK_SESSION_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.SessionSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.SessionSecret },
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
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					slog.Warn("invalid duration in config file, using default", "key", s.key, "value", v, "error", err)
				}
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
				slog.Warn("invalid integer in environment, using default", "env", s.env, "value", raw, "error", err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				slog.Warn("invalid duration in environment, using default", "env", s.env, "value", raw, "error", err)
			}
		}
	}
}
