package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName              string
	AppEnv               string
	AppPort              string
	DatabaseDriver       string
	DatabaseURL          string
	RedisURL             string
	NATSURL              string
	RealtimeChannel      string
	JWTSecret            string
	RealtimeAuthTimeout  time.Duration
	RealtimeSendBuffer   int
	RealtimePingInterval time.Duration
	UserCacheTTL         time.Duration
	FactsRateLimit       int
	CORSOrigins          string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SOCIAL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Social API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("realtime.channel", "social")
	v.SetDefault("realtime.auth_timeout", "3s")
	v.SetDefault("realtime.send_buffer", 32)
	v.SetDefault("realtime.ping_interval", "30s")
	v.SetDefault("user.cache_ttl", "5m")
	v.SetDefault("facts.rate_limit", 120)
	v.SetDefault("cors.origins", "*")

	authTimeout, err := parseDuration(v, "realtime.auth_timeout", 3*time.Second)
	if err != nil {
		return Config{}, err
	}
	pingInterval, err := parseDuration(v, "realtime.ping_interval", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := parseDuration(v, "user.cache_ttl", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:              v.GetString("app.name"),
		AppEnv:               v.GetString("app.env"),
		AppPort:              v.GetString("app.port"),
		DatabaseDriver:       strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
		DatabaseURL:          v.GetString("database.url"),
		RedisURL:             v.GetString("redis.url"),
		NATSURL:              v.GetString("nats.url"),
		RealtimeChannel:      v.GetString("realtime.channel"),
		JWTSecret:            v.GetString("jwt.secret"),
		RealtimeAuthTimeout:  authTimeout,
		RealtimeSendBuffer:   v.GetInt("realtime.send_buffer"),
		RealtimePingInterval: pingInterval,
		UserCacheTTL:         cacheTTL,
		FactsRateLimit:       v.GetInt("facts.rate_limit"),
		CORSOrigins:          v.GetString("cors.origins"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	if cfg.RealtimeSendBuffer <= 0 {
		cfg.RealtimeSendBuffer = 32
	}

	if cfg.FactsRateLimit <= 0 {
		cfg.FactsRateLimit = 120
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return fallback, nil
	}
	return parsed, nil
}
