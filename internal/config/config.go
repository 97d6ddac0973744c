package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	Script  ScriptConfig
	Auth    AuthConfig
}

type ServerConfig struct {
	Host     string
	Port     int
	MaxConns int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type ScriptConfig struct {
	Timeout     time.Duration
	MaxCommands int
}

type AuthConfig struct {
	MaxAttempts int
	Window      time.Duration
	SessionTTL  time.Duration

	// Secrets. Never written to the config file.
	APIToken      string
	SessionSecret string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     4100,
			MaxConns: 64,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Script: ScriptConfig{
			Timeout:     5 * time.Second,
			MaxCommands: 1000,
		},
		Auth: AuthConfig{
			MaxAttempts: 5,
			Window:      10 * time.Minute,
			SessionTTL:  7 * 24 * time.Hour,
		},
	}
}

// Load reads configuration from the JSON config file, environment variables
// and the secrets file.
//
// The config file lives at $XDG_CONFIG_HOME/orbitask/config.json, secrets at
// $XDG_DATA_HOME/orbitask/secrets.json. Environment variables (ORBITASK_*)
// override file values. Secrets missing everywhere are generated and saved
// to the secrets file so they survive restarts.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), fileSecrets{path: secretsFilePath()})
}

// secretStore abstracts the secrets file for testing.
type secretStore interface {
	Get(account string) (string, error)
	Set(account, value string) error
}

func loadWith(b ConfigBackend, ss secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	for _, s := range specs {
		if !s.secret || s.extract(cfg).(string) != "" {
			continue
		}
		v, err := ss.Get(s.key)
		if err != nil || v == "" {
			if v, err = generateSecret(); err != nil {
				return Config{}, err
			}
			if err := ss.Set(s.key, v); err != nil {
				return Config{}, fmt.Errorf("storing generated %s: %w", s.key, err)
			}
		}
		s.apply(&cfg, v)
	}

	return cfg, nil
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// APIToken returns the bearer token the CLI uses to talk to the server,
// taking it from ORBITASK_API_TOKEN or the secrets file.
func APIToken() (string, error) {
	cfg, err := Load()
	if err != nil {
		return "", err
	}
	return cfg.Auth.APIToken, nil
}
