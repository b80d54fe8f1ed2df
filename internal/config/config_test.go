package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_BACKEND", "SESSION_BACKEND", "REFERENCE_DATE", "SESSION_TTL", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.StoreBackend != BackendSQLite || cfg.SessionBackend != BackendMemory {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	ref, err := cfg.Reference()
	if err != nil || ref == nil || ref.String() != DefaultReferenceDate {
		t.Fatalf("reference = %v, %v", ref, err)
	}
	if cfg.SessionTTL != 0 {
		t.Fatalf("sessions should not expire by default, got %v", cfg.SessionTTL)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Fatalf("unexpected CORS origins %v", cfg.CORSOrigins)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SESSION_BACKEND", "SQLite")
	t.Setenv("SESSION_TTL", "48h")
	t.Setenv("REFERENCE_DATE", "now")
	t.Setenv("RATE_LIMIT_REQUESTS", "5")
	t.Setenv("ASSISTANT_ADDR", "localhost:50051")
	t.Setenv("ASSISTANT_TEMPERATURE", "0.7")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SessionBackend != BackendSQLite || cfg.SessionTTL != 48*time.Hour {
		t.Fatalf("unexpected session settings %+v", cfg)
	}
	if ref, err := cfg.Reference(); err != nil || ref != nil {
		t.Fatalf("\"now\" should select the wall clock, got %v, %v", ref, err)
	}
	if !cfg.Assistant.Enabled() || cfg.Assistant.Temperature != 0.7 {
		t.Fatalf("unexpected assistant config %+v", cfg.Assistant)
	}
	if cfg.RateLimit.RequestsPerWindow != 5 {
		t.Fatalf("rate limit = %d", cfg.RateLimit.RequestsPerWindow)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected origins %v", cfg.CORSOrigins)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:               "8080",
			DBPath:             "agenda.db",
			StoreBackend:       BackendSQLite,
			SessionBackend:     BackendMemory,
			ReferenceDate:      DefaultReferenceDate,
			LogLevel:           "info",
			MaxRequestBodySize: 1,
			MaxAudioSize:       1,
			RateLimit:          RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second},
			ConversationLog:    ConversationLogConfig{QueueSize: 1},
		}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"unknown store", func(c *Config) { c.StoreBackend = "postgres" }},
		{"unknown session backend", func(c *Config) { c.SessionBackend = "redis" }},
		{"sqlite without path", func(c *Config) { c.DBPath = "" }},
		{"bad reference", func(c *Config) { c.ReferenceDate = "6 de marzo" }},
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }},
		{"unknown timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"negative ttl", func(c *Config) { c.SessionTTL = -time.Second }},
		{"zero rate", func(c *Config) { c.RateLimit.RequestsPerWindow = 0 }},
		{"log dir", func(c *Config) { c.ConversationLog.Enabled = true }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(c)
			if err := c.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestMemoryBackendsDoNotNeedDBPath(t *testing.T) {
	c := &Config{
		Port:               "8080",
		StoreBackend:       BackendMemory,
		SessionBackend:     BackendMemory,
		ReferenceDate:      "now",
		LogLevel:           "debug",
		MaxRequestBodySize: 1,
		MaxAudioSize:       1,
		RateLimit:          RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second},
		ConversationLog:    ConversationLogConfig{QueueSize: 1},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("DEBUG")
	if err != nil || level != slog.LevelDebug {
		t.Fatalf("got %v, %v", level, err)
	}
}

func TestLoadLexiconOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	if err := os.WriteFile(path, []byte("create:\n  - reservar\n  - apartar\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	lex, err := LoadLexicon(path)
	if err != nil {
		t.Fatalf("LoadLexicon: %v", err)
	}
	if len(lex.Create) != 2 || lex.Create[0] != "reservar" {
		t.Fatalf("create list not replaced: %v", lex.Create)
	}
	if len(lex.Query) == 0 || lex.Query[0] != "consultar" {
		t.Fatalf("query list should keep defaults: %v", lex.Query)
	}
}

func TestLoadLexiconErrors(t *testing.T) {
	if _, err := LoadLexicon(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected read error")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("create: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadLexicon(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadLexiconDefault(t *testing.T) {
	lex, err := LoadLexicon("")
	if err != nil || len(lex.Delete) == 0 {
		t.Fatalf("expected defaults, got %v, %v", lex, err)
	}
}
