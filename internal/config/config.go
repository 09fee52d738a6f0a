package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr        string   `mapstructure:"SERVER_ADDR" validate:"required"`
	CORSOrigins []string `mapstructure:"-"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	URL string `mapstructure:"REDIS_URL" validate:"required"`
}

// UpstreamConfig describes the external scorecard backend
type UpstreamConfig struct {
	BaseURL        string        `mapstructure:"SCORECARD_API_URL" validate:"required,url"`
	FetchTimeout   time.Duration `mapstructure:"FETCH_TIMEOUT" validate:"gt=0"`
	BreakerTimeout time.Duration `mapstructure:"BREAKER_TIMEOUT" validate:"gt=0"`
}

// LiveConfig tunes the live polling engine
type LiveConfig struct {
	PollInterval     time.Duration `mapstructure:"POLL_INTERVAL" validate:"gte=1s"`
	RetryBaseDelay   time.Duration `mapstructure:"RETRY_BASE_DELAY" validate:"gt=0"`
	RetryMaxDelay    time.Duration `mapstructure:"RETRY_MAX_DELAY" validate:"gtfield=RetryBaseDelay"`
	RetryMaxAttempts int           `mapstructure:"RETRY_MAX_ATTEMPTS" validate:"gte=0,lte=10"`
	GamesRefreshSpec string        `mapstructure:"GAMES_REFRESH_SPEC" validate:"required"`
}

// Config holds all application configuration
type Config struct {
	Env      string `mapstructure:"ENV" validate:"oneof=development production test"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	Server   ServerConfig   `mapstructure:",squash"`
	Redis    RedisConfig    `mapstructure:",squash"`
	Upstream UpstreamConfig `mapstructure:",squash"`
	Live     LiveConfig     `mapstructure:",squash"`
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Load reads configuration from the environment and an optional .env file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	setDefaults(v)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.Server.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "production")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("SERVER_ADDR", ":8080")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REDIS_URL", "redis://localhost:6380")
	v.SetDefault("SCORECARD_API_URL", "http://localhost:3000")
	v.SetDefault("FETCH_TIMEOUT", "10s")
	v.SetDefault("BREAKER_TIMEOUT", "30s")
	v.SetDefault("POLL_INTERVAL", "30s")
	v.SetDefault("RETRY_BASE_DELAY", "1s")
	v.SetDefault("RETRY_MAX_DELAY", "30s")
	v.SetDefault("RETRY_MAX_ATTEMPTS", 3)
	v.SetDefault("GAMES_REFRESH_SPEC", "@every 1m")
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
