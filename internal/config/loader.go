package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// envConfigDir points at a directory to keep the config file in when no
// explicit path is given.
const envConfigDir = "WIREHUB_CONFIG_DIR"

// Load resolves configuration in layers: compiled defaults, an optional
// YAML file, then WIREHUB_* environment variables. When nothing exists at
// the resolved path a file with the defaults is seeded there so operators
// have something to edit. Returns the resolved path alongside the config.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()
	path := configPath(explicitPath)

	defaults := map[string]any{
		"addr":                  cfg.Addr,
		"read_header_timeout":   cfg.ReadHeaderTimeout,
		"shutdown_timeout":      cfg.ShutdownTimeout,
		"log_level":             cfg.LogLevel,
		"debug":                 cfg.Debug,
		"global_channel_limit":  cfg.GlobalChannelLimit,
		"default_channel_limit": cfg.DefaultChannelLimit,
		"jwt_secret":            cfg.JWTSecret,
		"jwt_issuer":            cfg.JWTIssuer,
		"jwt_audience":          cfg.JWTAudience,
	}

	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		switch seedErr := seedConfigFile(path, cfg); {
		case seedErr != nil:
			logger.Warn().Err(seedErr).Str("path", path).Msg("could not seed default config")
		default:
			logger.Info().Str("path", path).Msg("seeded default config")
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix("WIREHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, path, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, path, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, path, nil
}

// configPath picks the config location: the explicit path when given, the
// WIREHUB_CONFIG_DIR directory when set, the working directory otherwise.
func configPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	dir := os.Getenv(envConfigDir)
	if dir == "" {
		// An unavailable working directory leaves a relative path, which
		// still resolves for both seeding and reading.
		dir, _ = os.Getwd()
	}
	return filepath.Join(dir, "config.yaml")
}

// seedConfigFile writes the default configuration as YAML, creating the
// parent directory as needed.
func seedConfigFile(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("render defaults: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write defaults: %w", err)
	}
	return nil
}
