package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "json")
	cfg := Load()
	if cfg.Port != "8000" || cfg.DB.Driver != "json" || cfg.ConflictRetries != 3 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("TokenTTL = %v", cfg.TokenTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("CONFLICT_RETRIES", "7")
	t.Setenv("TOKEN_TTL", "15m")
	cfg := Load()
	if cfg.DB.Driver != "postgres" || cfg.DB.Port != "5432" {
		t.Fatalf("db config = %+v", cfg.DB)
	}
	if cfg.ConflictRetries != 7 || cfg.TokenTTL != 15*time.Minute {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadIgnoresBadNumbers(t *testing.T) {
	t.Setenv("CONFLICT_RETRIES", "many")
	t.Setenv("TOKEN_TTL", "soon")
	cfg := Load()
	if cfg.ConflictRetries != 3 || cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("cfg = %+v", cfg)
	}
}
