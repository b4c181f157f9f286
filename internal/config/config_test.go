// README: Tests for env-driven config loading.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WAYKEL_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("WAYKEL_JWT_SECRET", "dev")
	t.Setenv("WAYKEL_HTTP_ADDR", "")
	t.Setenv("WAYKEL_DB_MAX_CONNS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.HTTP.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown = %v", cfg.HTTP.ShutdownTimeout)
	}
	if cfg.DB.MaxConns != 10 {
		t.Errorf("max conns = %d", cfg.DB.MaxConns)
	}
	if cfg.JWT.Issuer != "waykel" {
		t.Errorf("issuer = %q", cfg.JWT.Issuer)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WAYKEL_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("WAYKEL_FIREBASE_PROJECT_ID", "waykel-prod")
	t.Setenv("WAYKEL_JWT_SECRET", "")
	t.Setenv("WAYKEL_REDIS_DB", "3")
	t.Setenv("WAYKEL_FIREBASE_CHECK_REVOKED", "true")
	t.Setenv("WAYKEL_SHUTDOWN_SECONDS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Redis.DB != 3 || !cfg.Firebase.CheckRevoked {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.HTTP.ShutdownTimeout != 10*time.Second {
		t.Errorf("bad int should fall back to default, got %v", cfg.HTTP.ShutdownTimeout)
	}
}

func TestLoadRequiresAuth(t *testing.T) {
	t.Setenv("WAYKEL_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("WAYKEL_FIREBASE_PROJECT_ID", "")
	t.Setenv("WAYKEL_JWT_SECRET", "")
	if _, err := Load(); !errors.Is(err, ErrNoAuth) {
		t.Fatalf("expected ErrNoAuth, got %v", err)
	}
}

func TestLoadEnvFileDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "WAYKEL_JWT_SECRET=from-file\nWAYKEL_HTTP_ADDR=:9999\nWAYKEL_REDIS_ADDR=redis:6379\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("WAYKEL_ENV_FILE", path)
	t.Setenv("WAYKEL_HTTP_ADDR", ":7000")
	// Registered so the values godotenv sets are restored after the test.
	t.Setenv("WAYKEL_JWT_SECRET", "")
	t.Setenv("WAYKEL_REDIS_ADDR", "")
	os.Unsetenv("WAYKEL_JWT_SECRET")
	os.Unsetenv("WAYKEL_REDIS_ADDR")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":7000" {
		t.Errorf("process env should win, got %q", cfg.HTTP.Addr)
	}
	if cfg.JWT.Secret != "from-file" || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("file values not applied: %+v", cfg)
	}
}
