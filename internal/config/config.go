/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables, with
 * an optional .env file for local development, providing a centralized and
 * straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the ledger-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	JWTSecret               string `mapstructure:"JWT_SECRET"`
	JWTTTLMinutes           int    `mapstructure:"JWT_TTL_MINUTES"`
	KeyTTLMinutes           int    `mapstructure:"KEY_TTL_MINUTES"`
	ExchangeTTLSeconds      int    `mapstructure:"EXCHANGE_TTL_SECONDS"`
	LoginRateLimitPerMinute int    `mapstructure:"LOGIN_RATE_LIMIT_PER_MINUTE"`
	PendingSweepMinutes     int    `mapstructure:"PENDING_SWEEP_INTERVAL_MINUTES"`
	PendingMaxAgeMinutes    int    `mapstructure:"PENDING_MAX_AGE_MINUTES"`
	CORSAllowedOrigins      string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RedisKeyPrefix          string `mapstructure:"REDIS_KEY_PREFIX"`
	EventExchange           string `mapstructure:"EVENT_EXCHANGE"`
}

// LoadConfig reads configuration from environment variables from the given
// path. It uses Viper to automatically bind environment variables to the
// Config struct.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("JWT_TTL_MINUTES", 30)
	viper.SetDefault("KEY_TTL_MINUTES", 30)
	viper.SetDefault("EXCHANGE_TTL_SECONDS", 120)
	viper.SetDefault("LOGIN_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("PENDING_SWEEP_INTERVAL_MINUTES", 5)
	viper.SetDefault("PENDING_MAX_AGE_MINUTES", 30)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("REDIS_KEY_PREFIX", "vaultbank")
	viper.SetDefault("EVENT_EXCHANGE", "vaultbank.events")

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("JWT_TTL_MINUTES")
	_ = viper.BindEnv("KEY_TTL_MINUTES")
	_ = viper.BindEnv("EXCHANGE_TTL_SECONDS")
	_ = viper.BindEnv("LOGIN_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("PENDING_SWEEP_INTERVAL_MINUTES")
	_ = viper.BindEnv("PENDING_MAX_AGE_MINUTES")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("EVENT_EXCHANGE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	if config.JWTTTLMinutes <= 0 {
		log.Printf("level=warn component=config msg=\"invalid JWT_TTL_MINUTES; using default\" value=%d", config.JWTTTLMinutes)
		config.JWTTTLMinutes = 30
	}
	if config.KeyTTLMinutes <= 0 {
		config.KeyTTLMinutes = 30
	}
	if config.ExchangeTTLSeconds <= 0 {
		config.ExchangeTTLSeconds = 120
	}
	if config.LoginRateLimitPerMinute < 0 {
		config.LoginRateLimitPerMinute = 0
	}
	if config.PendingSweepMinutes <= 0 {
		config.PendingSweepMinutes = 5
	}
	if config.PendingMaxAgeMinutes <= 0 {
		config.PendingMaxAgeMinutes = 30
	}
	config.RedisKeyPrefix = strings.TrimSpace(config.RedisKeyPrefix)
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "vaultbank"
	}
	if strings.TrimSpace(config.EventExchange) == "" {
		config.EventExchange = "vaultbank.events"
	}

	return
}

// AllowedOrigins splits the comma-separated CORS origin list.
func (c Config) AllowedOrigins() []string {
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
