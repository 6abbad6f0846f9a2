package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "LLM_PROVIDER", "LLM_TIMEOUT", "H3_RES", "TARGET_LAYER"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()

	if cfg.LLM.Timeout != 30*time.Second {
		t.Fatalf("llm timeout=%s want 30s", cfg.LLM.Timeout)
	}
	if cfg.LLM.Model != "llama3-8b-8192" {
		t.Fatalf("model=%q", cfg.LLM.Model)
	}
	if cfg.TargetLayer != "parcels" {
		t.Fatalf("target=%q want parcels", cfg.TargetLayer)
	}
	if !strings.HasPrefix(cfg.Database.URL, "postgres://") {
		t.Fatalf("dsn=%q want postgres url", cfg.Database.URL)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("LLM_TIMEOUT", "2s")
	t.Setenv("H3_RES", "99")
	t.Setenv("LAYER_CATALOG_WATCH", "yes")

	cfg := FromEnv()
	if cfg.LLM.Provider != "gemini" || cfg.LLM.APIKey != "g-key" {
		t.Fatalf("provider=%q key=%q", cfg.LLM.Provider, cfg.LLM.APIKey)
	}
	if cfg.LLM.Timeout != 2*time.Second {
		t.Fatalf("timeout=%s", cfg.LLM.Timeout)
	}
	if cfg.H3Res != 15 {
		t.Fatalf("h3 res=%d want clamp to 15", cfg.H3Res)
	}
	if !cfg.Catalog.Watch {
		t.Fatalf("catalog watch should be on")
	}
}

func TestPostgresDSNFromEnv(t *testing.T) {
	t.Setenv("PG_HOST", "db")
	t.Setenv("PG_PORT", "6543")
	t.Setenv("PG_USER", "gis")
	t.Setenv("PG_PASSWORD", "p@ss")
	t.Setenv("PG_DATABASE", "parcels")
	t.Setenv("PG_SSLMODE", "require")

	got := PostgresDSNFromEnv()
	want := "postgres://gis:p%40ss@db:6543/parcels?sslmode=require"
	if got != want {
		t.Fatalf("dsn=%q want %q", got, want)
	}
}
