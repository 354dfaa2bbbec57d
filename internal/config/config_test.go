package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{"SERVER_PORT", "PORT", "JWT_TTL_MINUTES", "KEY_TTL_MINUTES", "CORS_ALLOWED_ORIGINS", "REDIS_KEY_PREFIX"} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.JWTTTLMinutes != 30 {
		t.Fatalf("expected default JWT TTL 30, got %d", cfg.JWTTTLMinutes)
	}
	if cfg.KeyTTLMinutes != 30 {
		t.Fatalf("expected default key TTL 30, got %d", cfg.KeyTTLMinutes)
	}
	if cfg.EventExchange != "vaultbank.events" {
		t.Fatalf("expected default event exchange, got %q", cfg.EventExchange)
	}
}

func TestLoadConfig_InvalidTTLFallsBack(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "JWT_TTL_MINUTES", "-5")
	setEnvWithCleanup(t, "PENDING_MAX_AGE_MINUTES", "0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.JWTTTLMinutes != 30 {
		t.Fatalf("expected coerced JWT TTL 30, got %d", cfg.JWTTTLMinutes)
	}
	if cfg.PendingMaxAgeMinutes != 30 {
		t.Fatalf("expected coerced pending max age 30, got %d", cfg.PendingMaxAgeMinutes)
	}
}

func TestAllowedOriginsSplitsAndTrims(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: " http://localhost:3000 , https://dash.vaultbank.io ,,"}
	origins := cfg.AllowedOrigins()
	if len(origins) != 2 {
		t.Fatalf("expected 2 origins, got %d (%v)", len(origins), origins)
	}
	if origins[0] != "http://localhost:3000" || origins[1] != "https://dash.vaultbank.io" {
		t.Fatalf("unexpected origins: %v", origins)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
