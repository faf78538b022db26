package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MINIO_ACCESS_KEY_ID", "minio")
	t.Setenv("MINIO_SECRET_ACCESS_KEY", "minio-secret")
	t.Setenv("JWT_PRIVATE_KEY_PATH", "/keys/private.pem")
	t.Setenv("JWT_PUBLIC_KEY_PATH", "/keys/public.pem")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.API.Port)
	}
	if cfg.Database.Migrate != "auto" {
		t.Fatalf("expected auto migrate, got %q", cfg.Database.Migrate)
	}
	if cfg.Auth.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl %s", cfg.Auth.AccessTokenTTL)
	}
	if cfg.Redis.Addr() != "localhost:6379" {
		t.Fatalf("unexpected redis addr %s", cfg.Redis.Addr())
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "9090")
	t.Setenv("DATABASE_MIGRATE", "goose")
	t.Setenv("JWT_ACCESS_TOKEN_TTL", "5m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Port != 9090 {
		t.Fatalf("expected 9090, got %d", cfg.API.Port)
	}
	if cfg.Database.Migrate != "goose" {
		t.Fatalf("expected goose, got %q", cfg.Database.Migrate)
	}
	if cfg.Auth.AccessTokenTTL != 5*time.Minute {
		t.Fatalf("expected 5m, got %s", cfg.Auth.AccessTokenTTL)
	}
	if len(cfg.API.CORSAllowedOrigins) != 2 || cfg.API.CORSAllowedOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected origins %v", cfg.API.CORSAllowedOrigins)
	}
}

func TestLoadRejectsUnknownMigrateMode(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_MIGRATE", "manual")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadRequiresKeys(t *testing.T) {
	t.Setenv("MINIO_ACCESS_KEY_ID", "minio")
	t.Setenv("MINIO_SECRET_ACCESS_KEY", "minio-secret")

	if _, err := Load(); err == nil {
		t.Fatal("expected missing jwt keys to fail")
	}
}

func TestLoadDatabaseIgnoresUnrelatedSections(t *testing.T) {
	t.Setenv("POSTGRES_DB", "cards")
	t.Setenv("DATABASE_MIGRATE", "goose")

	if _, err := Load(); err == nil {
		t.Fatalf("full load should require minio and jwt settings")
	}

	db, err := LoadDatabase()
	if err != nil {
		t.Fatalf("load database: %v", err)
	}
	if db.Name != "cards" || db.Migrate != "goose" || db.Port != 5432 {
		t.Fatalf("unexpected database config %+v", db)
	}
}

func TestLoadDatabaseRejectsUnknownMigrateMode(t *testing.T) {
	t.Setenv("DATABASE_MIGRATE", "flyway")
	if _, err := LoadDatabase(); err == nil {
		t.Fatalf("expected error for unknown migrate mode")
	}
}
