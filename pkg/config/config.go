// Package config loads the process configuration from the environment.
// The value is built once at startup and injected; nothing reads the
// environment after Load returns.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLMMode selects the LLM runtime.
type LLMMode string

const (
	// LLMModeDeterministic produces canned, schema-valid outputs derived
	// from the case input. Used in development and tests.
	LLMModeDeterministic LLMMode = "deterministic"

	// LLMModeProvider calls an OpenAI-compatible provider.
	LLMModeProvider LLMMode = "provider"
)

// Config is the full process configuration.
type Config struct {
	// Workflow rooms.
	Room1ID string
	Room2ID string
	Room3ID string

	// Matrix connection.
	MatrixHomeserverURL string
	MatrixBotUserID     string
	MatrixAccessToken   string
	MatrixSyncTimeout   time.Duration
	MatrixPollInterval  time.Duration

	// Job queue.
	WorkerPollInterval time.Duration

	// HTTP API.
	ListenAddr string

	// Dashboard widget deployment.
	WebhookPublicURL  string
	WebhookHMACSecret string

	DatabaseURL string

	LLMMode      LLMMode
	OpenAIAPIKey string

	LogLevel string

	// First-run admin bootstrap. Password comes from exactly one of
	// BOOTSTRAP_ADMIN_PASSWORD and BOOTSTRAP_ADMIN_PASSWORD_FILE.
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// Load reads the configuration from the environment. Only DATABASE_URL is
// unconditionally required; chat settings are validated by ValidateChat when
// a role actually needs them.
func Load() (Config, error) {
	cfg := Config{
		Room1ID:             os.Getenv("ROOM1_ID"),
		Room2ID:             os.Getenv("ROOM2_ID"),
		Room3ID:             os.Getenv("ROOM3_ID"),
		MatrixHomeserverURL: os.Getenv("MATRIX_HOMESERVER_URL"),
		MatrixBotUserID:     os.Getenv("MATRIX_BOT_USER_ID"),
		MatrixAccessToken:   os.Getenv("MATRIX_ACCESS_TOKEN"),
		ListenAddr:          envOrDefault("API_LISTEN_ADDR", ":8000"),
		WebhookPublicURL:    os.Getenv("WEBHOOK_PUBLIC_URL"),
		WebhookHMACSecret:   os.Getenv("WEBHOOK_HMAC_SECRET"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		LogLevel:            envOrDefault("LOG_LEVEL", "info"),
		BootstrapAdminEmail: os.Getenv("BOOTSTRAP_ADMIN_EMAIL"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	syncTimeoutMS, err := envInt("MATRIX_SYNC_TIMEOUT_MS", 30000)
	if err != nil {
		return Config{}, err
	}
	cfg.MatrixSyncTimeout = time.Duration(syncTimeoutMS) * time.Millisecond

	cfg.MatrixPollInterval, err = envSeconds("MATRIX_POLL_INTERVAL_SECONDS", time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.WorkerPollInterval, err = envSeconds("WORKER_POLL_INTERVAL_SECONDS", time.Second)
	if err != nil {
		return Config{}, err
	}

	mode := LLMMode(envOrDefault("LLM_RUNTIME_MODE", string(LLMModeDeterministic)))
	switch mode {
	case LLMModeDeterministic, LLMModeProvider:
		cfg.LLMMode = mode
	default:
		return Config{}, fmt.Errorf("LLM_RUNTIME_MODE must be %q or %q, got %q",
			LLMModeDeterministic, LLMModeProvider, mode)
	}
	if cfg.LLMMode == LLMModeProvider && cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY is required when LLM_RUNTIME_MODE=provider")
	}

	cfg.BootstrapAdminPassword, err = bootstrapPassword()
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ValidateChat checks the settings the listener and the chat gateway need.
func (c Config) ValidateChat() error {
	var missing []string
	for _, kv := range []struct{ key, val string }{
		{"ROOM1_ID", c.Room1ID},
		{"ROOM2_ID", c.Room2ID},
		{"ROOM3_ID", c.Room3ID},
		{"MATRIX_HOMESERVER_URL", c.MatrixHomeserverURL},
		{"MATRIX_BOT_USER_ID", c.MatrixBotUserID},
		{"MATRIX_ACCESS_TOKEN", c.MatrixAccessToken},
	} {
		if kv.val == "" {
			missing = append(missing, kv.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing chat configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// bootstrapPassword resolves the admin bootstrap password from exactly one
// of BOOTSTRAP_ADMIN_PASSWORD and BOOTSTRAP_ADMIN_PASSWORD_FILE.
func bootstrapPassword() (string, error) {
	inline := os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")
	file := os.Getenv("BOOTSTRAP_ADMIN_PASSWORD_FILE")

	switch {
	case inline != "" && file != "":
		return "", fmt.Errorf("BOOTSTRAP_ADMIN_PASSWORD and BOOTSTRAP_ADMIN_PASSWORD_FILE are mutually exclusive")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading BOOTSTRAP_ADMIN_PASSWORD_FILE: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return inline, nil
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// envSeconds parses a fractional seconds value, e.g. "1.0" or "0.5".
func envSeconds(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
