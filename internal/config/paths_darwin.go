//go:build darwin

package config

import (
	"os"
	"path/filepath"
)

// On macOS everything lives under Application Support unless the XDG
// variables are set explicitly.

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "orbitask")
	}
	return appSupportDir()
}

func configFilePath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "orbitask", "config.json")
	}
	return filepath.Join(appSupportDir(), "config.json")
}

func secretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

func appSupportDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Library", "Application Support", "orbitask")
	}
	return "orbitask-data"
}
