package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	Debug             bool          `mapstructure:"debug" yaml:"debug"`

	// Channel capacities. The global channel is the one every client joins
	// on connect; the default limit applies to channels created without an
	// explicit limit.
	GlobalChannelLimit  int `mapstructure:"global_channel_limit" yaml:"global_channel_limit"`
	DefaultChannelLimit int `mapstructure:"default_channel_limit" yaml:"default_channel_limit"`

	// Identity-token settings. An empty secret disables token identities.
	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                ":8080",
		ReadHeaderTimeout:   5 * time.Second,
		ShutdownTimeout:     5 * time.Second,
		LogLevel:            "info",
		GlobalChannelLimit:  1000,
		DefaultChannelLimit: 5,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Debug {
		c.Debug = true
	}
	if other.GlobalChannelLimit != 0 {
		c.GlobalChannelLimit = other.GlobalChannelLimit
	}
	if other.DefaultChannelLimit != 0 {
		c.DefaultChannelLimit = other.DefaultChannelLimit
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
}
