package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing
// files are skipped; variables already set are not overridden.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// applyEnv overrides file values with SHEROX_* variables. Secrets such
// as the SOS API key are expected to arrive this way.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("SHEROX_USER_EMAIL"); v != "" {
		cfg.UserEmail = v
	}
	if v := os.Getenv("SHEROX_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SHEROX_DATABASE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("SHEROX_SOS_URL"); v != "" {
		cfg.Transmitters.SOSHTTP.URL = v
	}
	if v := os.Getenv("SHEROX_SOS_API_KEY"); v != "" {
		cfg.Transmitters.SOSHTTP.APIKey = v
	}
	if v := os.Getenv("SHEROX_MQTT_BROKER"); v != "" {
		cfg.Transmitters.MQTT.Broker = v
	}
	if v := os.Getenv("SHEROX_INITIAL_ONLINE"); v != "" {
		online, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SHEROX_INITIAL_ONLINE: %w", err)
		}
		cfg.Connectivity.InitialOnline = online
	}
	return nil
}
