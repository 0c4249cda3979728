package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/triage")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.MatrixSyncTimeout)
	assert.Equal(t, time.Second, cfg.MatrixPollInterval)
	assert.Equal(t, time.Second, cfg.WorkerPollInterval)
	assert.Equal(t, ":8000", cfg.ListenAddr)
	assert.Equal(t, LLMModeDeterministic, cfg.LLMMode)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadParsesFractionalSeconds(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/triage")
	t.Setenv("MATRIX_POLL_INTERVAL_SECONDS", "0.5")
	t.Setenv("WORKER_POLL_INTERVAL_SECONDS", "2.5")
	t.Setenv("MATRIX_SYNC_TIMEOUT_MS", "10000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.MatrixPollInterval)
	assert.Equal(t, 2500*time.Millisecond, cfg.WorkerPollInterval)
	assert.Equal(t, 10*time.Second, cfg.MatrixSyncTimeout)
}

func TestLoadRejectsUnknownLLMMode(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/triage")
	t.Setenv("LLM_RUNTIME_MODE", "oracle")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_RUNTIME_MODE")
}

func TestLoadProviderModeRequiresAPIKey(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/triage")
	t.Setenv("LLM_RUNTIME_MODE", "provider")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")

	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, LLMModeProvider, cfg.LLMMode)
}

func TestBootstrapPasswordSources(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/triage")

	t.Run("inline", func(t *testing.T) {
		t.Setenv("BOOTSTRAP_ADMIN_PASSWORD", "s3cret")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "s3cret", cfg.BootstrapAdminPassword)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pw")
		require.NoError(t, os.WriteFile(path, []byte("fromfile\n"), 0o600))
		t.Setenv("BOOTSTRAP_ADMIN_PASSWORD_FILE", path)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "fromfile", cfg.BootstrapAdminPassword, "trailing newline stripped")
	})

	t.Run("both set is rejected", func(t *testing.T) {
		t.Setenv("BOOTSTRAP_ADMIN_PASSWORD", "a")
		t.Setenv("BOOTSTRAP_ADMIN_PASSWORD_FILE", "/dev/null")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mutually exclusive")
	})

	t.Run("missing file errors", func(t *testing.T) {
		t.Setenv("BOOTSTRAP_ADMIN_PASSWORD_FILE", filepath.Join(t.TempDir(), "absent"))
		_, err := Load()
		require.Error(t, err)
	})
}

func TestValidateChat(t *testing.T) {
	cfg := Config{
		Room1ID:             "!r1:hs",
		Room2ID:             "!r2:hs",
		Room3ID:             "!r3:hs",
		MatrixHomeserverURL: "https://hs.example.com",
		MatrixBotUserID:     "@bot:hs",
		MatrixAccessToken:   "syt_token",
	}
	require.NoError(t, cfg.ValidateChat())

	cfg.Room2ID = ""
	cfg.MatrixAccessToken = ""
	err := cfg.ValidateChat()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ROOM2_ID")
	assert.Contains(t, err.Error(), "MATRIX_ACCESS_TOKEN")
}
