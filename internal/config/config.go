// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/johpaz/smart-calendar-assistant/internal/domain"
	"github.com/johpaz/smart-calendar-assistant/internal/intent"
)

// DefaultReferenceDate anchors "hoy" and "mañana" unless REFERENCE_DATE
// says otherwise.
const DefaultReferenceDate = "2025-03-06"

// Storage and session backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	// StoreBackend selects where events live: sqlite or memory.
	StoreBackend string
	// SessionBackend selects where conversation contexts live: memory or sqlite.
	SessionBackend string
	// SessionTTL expires idle conversation contexts; zero keeps them forever.
	SessionTTL time.Duration
	// ReferenceDate is a YYYY-MM-DD date or "now" for the wall clock.
	ReferenceDate string
	// Timezone names the zone event times are interpreted in for ICS import
	// and export.
	Timezone    string
	LexiconPath string
	LogLevel      string
	SeedSample    bool
	CORSOrigins   []string

	MaxRequestBodySize int64
	MaxAudioSize       int64

	MaintenanceSchedule string

	Assistant       AssistantConfig
	RateLimit       RateLimitConfig
	ConversationLog ConversationLogConfig
}

// AssistantConfig describes the gRPC assistant service used for open
// conversation and audio transcription.
type AssistantConfig struct {
	Address        string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	MaxTokens      int
	Temperature    float64
}

// Enabled reports whether an assistant address is configured.
func (a AssistantConfig) Enabled() bool {
	return a.Address != ""
}

// RateLimitConfig bounds chat requests per user.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// LoadDotEnv reads a .env file into the environment when present.
func LoadDotEnv(paths ...string) {
	if err := godotenv.Load(paths...); err != nil {
		slog.Info("No .env file found, using environment variables")
	}
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		FrontendURL:         getEnv("FRONTEND_URL", ""),
		DBPath:              getEnv("DB_PATH", "./data/agenda.db"),
		StoreBackend:        strings.ToLower(getEnv("STORE_BACKEND", BackendSQLite)),
		SessionBackend:      strings.ToLower(getEnv("SESSION_BACKEND", BackendMemory)),
		SessionTTL:          getEnvDuration("SESSION_TTL", 0),
		ReferenceDate:       getEnv("REFERENCE_DATE", DefaultReferenceDate),
		Timezone:            getEnv("TIMEZONE", "Local"),
		LexiconPath:         getEnv("LEXICON_PATH", ""),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		SeedSample:          getEnvBool("SEED_SAMPLE_EVENTS", true),
		CORSOrigins:         getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		MaxRequestBodySize:  int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 1<<20)),
		MaxAudioSize:        int64(getEnvInt("MAX_AUDIO_SIZE", 10<<20)),
		MaintenanceSchedule: getEnv("MAINTENANCE_CRON", "@every 1h"),
		Assistant: AssistantConfig{
			Address:        getEnv("ASSISTANT_ADDR", ""),
			ConnectTimeout: getEnvDuration("ASSISTANT_CONNECT_TIMEOUT", 5*time.Second),
			RequestTimeout: getEnvDuration("ASSISTANT_REQUEST_TIMEOUT", 30*time.Second),
			MaxTokens:      getEnvInt("ASSISTANT_MAX_TOKENS", 512),
			Temperature:    getEnvFloat("ASSISTANT_TEMPERATURE", 0.1),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.StoreBackend {
	case BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendSQLite, BackendMemory, c.StoreBackend)
	}
	switch c.SessionBackend {
	case BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("SESSION_BACKEND must be %q or %q, got %q", BackendSQLite, BackendMemory, c.SessionBackend)
	}
	if c.DBPath == "" && (c.StoreBackend == BackendSQLite || c.SessionBackend == BackendSQLite) {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if _, err := c.Reference(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL cannot be negative")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.MaxRequestBodySize <= 0 || c.MaxAudioSize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE and MAX_AUDIO_SIZE must be > 0")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// Reference returns the fixed reference date, or nil when the wall clock
// should be used.
func (c *Config) Reference() (*domain.Date, error) {
	if strings.EqualFold(strings.TrimSpace(c.ReferenceDate), "now") {
		return nil, nil
	}
	d, err := domain.ParseDate(c.ReferenceDate)
	if err != nil {
		return nil, fmt.Errorf("REFERENCE_DATE must be YYYY-MM-DD or \"now\": %w", err)
	}
	return &d, nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	return loc, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// ParseLogLevel maps LOG_LEVEL values to slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

// LoadLexicon returns the default intent lexicon, overlaid with the YAML file
// at path when one is given. Lists present in the file replace the defaults.
func LoadLexicon(path string) (intent.Lexicon, error) {
	lex := intent.DefaultLexicon()
	if path == "" {
		return lex, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return lex, fmt.Errorf("read lexicon: %w", err)
	}
	var overlay intent.Lexicon
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return lex, fmt.Errorf("parse lexicon %s: %w", path, err)
	}
	return lex.Merge(overlay), nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
