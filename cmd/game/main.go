package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tatianab/branching-tales/internal/config"
	"github.com/tatianab/branching-tales/internal/logging"
	"github.com/tatianab/branching-tales/internal/storage"
	"github.com/tatianab/branching-tales/internal/story"
	"github.com/tatianab/branching-tales/internal/tui"
	"go.uber.org/zap"
)

func main() {
	storyFlag := flag.String("story", "", "story id, file path or URL (empty asks; overrides TALES_STORY)")
	slot := flag.Int("slot", 0, "save slot to resume first (1-3)")
	choose := flag.Bool("choose", false, "pick the story interactively")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Printf("Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fmt.Printf("Error creating data dir: %v\n", err)
		os.Exit(1)
	}
	store, err := storage.Open(cfg.Store, cfg.DataDir)
	if err != nil {
		fmt.Printf("Error opening storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	source := cfg.StorySource()
	if *storyFlag != "" {
		source = *storyFlag
	}
	if *choose {
		source = ""
	}
	logger.Info("starting player",
		zap.String("store", cfg.Store),
		zap.String("data_dir", cfg.DataDir),
		zap.String("story", source),
	)

	err = tui.Run(tui.Options{
		Loader: story.NewLoader(cfg.StoriesDir, logger),
		Store:  store,
		Source: source,
		Slot:   *slot,
		Logger: logger,
	})
	if err != nil {
		logger.Error("player stopped", zap.Error(err))
		fmt.Printf("Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
