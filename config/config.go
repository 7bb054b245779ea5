package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the linking service.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort       string `mapstructure:"HTTP_PORT"`
	MongoURI       string `mapstructure:"MONGO_URI"`
	MongoDBName    string `mapstructure:"MONGO_DB_NAME"`
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisKeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Per-hop outbound timeout and the overall request deadline.
	HopTimeout      time.Duration `mapstructure:"HOP_TIMEOUT"`
	RequestDeadline time.Duration `mapstructure:"REQUEST_DEADLINE"`

	// Xbox provider (multi-hop ticket exchange).
	XboxClientID     string `mapstructure:"XBOX_CLIENT_ID"`
	XboxClientSecret string `mapstructure:"XBOX_CLIENT_SECRET"`
	XboxRedirectURI  string `mapstructure:"XBOX_REDIRECT_URI"`

	// Java provider (single claim-style exchange).
	JavaClientID     string `mapstructure:"JAVA_CLIENT_ID"`
	JavaClientSecret string `mapstructure:"JAVA_CLIENT_SECRET"`
	JavaRedirectURI  string `mapstructure:"JAVA_REDIRECT_URI"`
}

// LoadConfig reads configuration from file, environment variables, and
// defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/mchub-linkd/")
	v.AddConfigPath("$HOME/.mchub-linkd")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// AutomaticEnv only resolves keys viper already knows about, which
	// the secret-bearing keys below have no default to register them
	// with. Bind them explicitly so env-only deployments work.
	for _, key := range []string{
		"REDIS_PASSWORD",
		"XBOX_CLIENT_ID",
		"XBOX_CLIENT_SECRET",
		"XBOX_REDIRECT_URI",
		"JAVA_CLIENT_ID",
		"JAVA_CLIENT_SECRET",
		"JAVA_REDIRECT_URI",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", key, err)
		}
	}

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/mchub_dev")
	v.SetDefault("MONGO_DB_NAME", "mchub_dev")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_KEY_PREFIX", "mchub")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "mchub-linkd")
	v.SetDefault("HOP_TIMEOUT", "10s")
	v.SetDefault("REQUEST_DEADLINE", "60s")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, we run on defaults/env vars.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
