package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultLoopMarkerPhrases are the marker phrases that signal a user is
// echoing assistant-style coaching language back at the assistant.
var DefaultLoopMarkerPhrases = []string{
	"AI coach",
	"support you",
	"dive into",
	"let's focus",
	"break the cycle",
	"what specific",
	"what you're hoping",
	"I'm here to help",
}

// Config contains all runtime settings for the coaching chat service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	ContextWindow int
	HistoryLimit  int
	SystemPrompt  string

	LoopMarkerPhrases []string
	LoopWindow        int
	LoopMinTurns      int
	LoopThreshold     int

	BrainProvider    string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	AnthropicAPIKey  string
	AnthropicModel   string
	BrainMaxTokens   int
	BrainTemperature float64
	BrainTopP        float64
	BrainTimeout     time.Duration

	DatabaseURL string
	SQLitePath  string

	ChatProviderMode string
	ChatProviderURL  string
	ChatTokenSecret  string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "mentora"),
		AllowAnyOrigin:    false,
		ContextWindow:     6,
		HistoryLimit:      200,
		SystemPrompt:      stringsTrimSpace("COACH_SYSTEM_PROMPT"),
		LoopMarkerPhrases: DefaultLoopMarkerPhrases,
		LoopWindow:        6,
		LoopMinTurns:      4,
		LoopThreshold:     2,
		BrainProvider:     envOrDefault("BRAIN_PROVIDER", "auto"),
		OpenAIAPIKey:      stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:     envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		// Smaller model to keep per-message latency low.
		OpenAIModel:      envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicAPIKey:  stringsTrimSpace("ANTHROPIC_API_KEY"),
		AnthropicModel:   envOrDefault("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		BrainMaxTokens:   300,
		BrainTemperature: 0.7,
		BrainTopP:        0.9,
		BrainTimeout:     30 * time.Second,
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		SQLitePath:       stringsTrimSpace("MEMORY_SQLITE_PATH"),
		ChatProviderMode: envOrDefault("CHAT_PROVIDER_MODE", "auto"),
		ChatProviderURL:  stringsTrimSpace("CHAT_PROVIDER_URL"),
		ChatTokenSecret:  stringsTrimSpace("CHAT_TOKEN_SECRET"),
		ShutdownTimeout:  15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.BrainTimeout, err = durationFromEnv("BRAIN_TIMEOUT", cfg.BrainTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextWindow, err = intFromEnv("APP_CONTEXT_WINDOW", cfg.ContextWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryLimit, err = intFromEnv("APP_HISTORY_LIMIT", cfg.HistoryLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.LoopWindow, err = intFromEnv("APP_LOOP_WINDOW", cfg.LoopWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.LoopMinTurns, err = intFromEnv("APP_LOOP_MIN_TURNS", cfg.LoopMinTurns)
	if err != nil {
		return Config{}, err
	}
	cfg.LoopThreshold, err = intFromEnv("APP_LOOP_THRESHOLD", cfg.LoopThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.BrainMaxTokens, err = intFromEnv("BRAIN_MAX_TOKENS", cfg.BrainMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.BrainTemperature, err = floatFromEnv("BRAIN_TEMPERATURE", cfg.BrainTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.BrainTopP, err = floatFromEnv("BRAIN_TOP_P", cfg.BrainTopP)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.LoopMarkerPhrases = listFromEnv("APP_LOOP_MARKER_PHRASES", cfg.LoopMarkerPhrases)

	if cfg.ContextWindow <= 0 {
		return Config{}, fmt.Errorf("APP_CONTEXT_WINDOW must be positive")
	}
	if cfg.HistoryLimit < 0 {
		return Config{}, fmt.Errorf("APP_HISTORY_LIMIT must be >= 0")
	}
	if cfg.LoopWindow <= 0 || cfg.LoopMinTurns <= 0 || cfg.LoopThreshold <= 0 {
		return Config{}, fmt.Errorf("loop detection settings must be positive")
	}
	if cfg.BrainMaxTokens <= 0 {
		return Config{}, fmt.Errorf("BRAIN_MAX_TOKENS must be positive")
	}
	if cfg.BrainTemperature < 0 || cfg.BrainTemperature > 2 {
		return Config{}, fmt.Errorf("BRAIN_TEMPERATURE must be in [0, 2]")
	}
	if cfg.BrainTopP <= 0 || cfg.BrainTopP > 1 {
		return Config{}, fmt.Errorf("BRAIN_TOP_P must be in (0, 1]")
	}
	if cfg.BrainTimeout < time.Second {
		return Config{}, fmt.Errorf("BRAIN_TIMEOUT must be at least 1s")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

// listFromEnv splits a comma-separated env value, dropping empty entries.
func listFromEnv(key string, fallback []string) []string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
