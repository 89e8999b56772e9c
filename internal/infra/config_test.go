package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaultStorageBaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:8080/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
	if cfg.CallbackSecret != "test-secret" {
		t.Fatalf("CallbackSecret should fall back to JWT_SECRET, got %q", cfg.CallbackSecret)
	}
}

func TestLoadConfigInheritsPortInBaseURLs(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "1919")
	t.Setenv("STORAGE_BASE_URL", "")
	t.Setenv("PUBLIC_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageBaseURL != "http://localhost:1919/static" {
		t.Fatalf("StorageBaseURL mismatch: got %q", cfg.StorageBaseURL)
	}
	if cfg.PublicBaseURL != "http://localhost:1919" {
		t.Fatalf("PublicBaseURL mismatch: got %q", cfg.PublicBaseURL)
	}
}

func TestLoadConfigRequiresDatabaseForPostgres(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORE_DRIVER", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}

	t.Setenv("STORE_DRIVER", "memory")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("memory driver should not need a database: %v", err)
	}
	if cfg.StoreDriver != StoreDriverMemory {
		t.Fatalf("StoreDriver = %q", cfg.StoreDriver)
	}

	t.Setenv("STORE_DRIVER", "mongo")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestLoadConfigParsesListsAndDurations(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("CORS_ORIGINS", " https://tasvir.ir, ,https://app.tasvir.ir ")
	t.Setenv("POLL_STALE_AFTER", "90s")
	t.Setenv("JWT_TTL", "not-a-duration")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://app.tasvir.ir" {
		t.Fatalf("CORSOrigins = %#v", cfg.CORSOrigins)
	}
	if cfg.PollStaleAfter != 90*time.Second {
		t.Fatalf("PollStaleAfter = %s", cfg.PollStaleAfter)
	}
	if cfg.JWTTTL != 30*24*time.Hour {
		t.Fatalf("JWTTTL should fall back on parse errors, got %s", cfg.JWTTTL)
	}
}
