package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/tatianab/branching-tales/internal/storage"
)

// Config holds the application configuration.
type Config struct {
	DataDir    string `env:"TALES_DATA_DIR"    envDefault:".saves"`
	Store      string `env:"TALES_STORE"       envDefault:"file"`
	LogLevel   string `env:"TALES_LOG_LEVEL"   envDefault:"info"`
	LogFile    string `env:"TALES_LOG_FILE"    envDefault:"tales.log"`
	Story      string `env:"TALES_STORY"       envDefault:"samurai"`
	StoriesDir string `env:"TALES_STORIES_DIR"`
	StoryURL   string `env:"TALES_STORY_URL"`
	UserID     string `env:"TALES_USER_ID"`
}

var backends = []string{storage.BackendFile, storage.BackendBolt, storage.BackendSQLite, storage.BackendMemory}

// LoadConfig loads the configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	if !slices.Contains(backends, cfg.Store) {
		return nil, fmt.Errorf("TALES_STORE must be one of %s, got %q", strings.Join(backends, ", "), cfg.Store)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return nil, fmt.Errorf("TALES_DATA_DIR must not be empty")
	}
	return &cfg, nil
}

// StorySource returns the story to load: the remote URL when set, otherwise
// the story id.
func (c *Config) StorySource() string {
	if c.StoryURL != "" {
		return c.StoryURL
	}
	return c.Story
}
