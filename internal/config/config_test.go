package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TALES_DATA_DIR", "TALES_STORE", "TALES_LOG_LEVEL", "TALES_LOG_FILE",
		"TALES_STORY", "TALES_STORIES_DIR", "TALES_STORY_URL", "TALES_USER_ID",
	} {
		// Setenv registers the restore; the variable is then removed.
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, &Config{
		DataDir:  ".saves",
		Store:    "file",
		LogLevel: "info",
		LogFile:  "tales.log",
		Story:    "samurai",
	}, cfg)
	assert.Equal(t, "samurai", cfg.StorySource())
}

func TestLoadConfigOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TALES_DATA_DIR", "/tmp/tales")
	t.Setenv("TALES_STORE", " SQLite ")
	t.Setenv("TALES_LOG_LEVEL", "debug")
	t.Setenv("TALES_LOG_FILE", "/tmp/tales.log")
	t.Setenv("TALES_STORY", "lighthouse")
	t.Setenv("TALES_STORY_URL", "https://example.com/story.json")
	t.Setenv("TALES_USER_ID", "user_1")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store)
	assert.Equal(t, "/tmp/tales", cfg.DataDir)
	assert.Equal(t, "user_1", cfg.UserID)
	assert.Equal(t, "https://example.com/story.json", cfg.StorySource())
}

func TestLoadConfigRejectsUnknownStore(t *testing.T) {
	clearEnv(t)
	t.Setenv("TALES_DATA_DIR", "/tmp/tales")
	t.Setenv("TALES_STORE", "redis")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "TALES_STORE")
}
