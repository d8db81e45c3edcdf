package engine

import (
	"context"

	"github.com/tatianab/branching-tales/internal/history"
	"github.com/tatianab/branching-tales/internal/models"
	"github.com/tatianab/branching-tales/internal/saves"
	"github.com/tatianab/branching-tales/internal/storage"
	"go.uber.org/zap"
)

// Open returns an engine for st that persists saves, the achievement ledger
// and play history in store. An unreadable history starts empty.
func Open(ctx context.Context, st *models.Story, cfg *models.GameConfig, store storage.Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	mgr := saves.NewManager(store, st.ID, st.Achievements, logger)
	log := history.New(store, mgr.HistoryKey(), logger)
	if err := log.Load(ctx); err != nil {
		logger.Warn("starting with empty history", zap.String("story", st.ID), zap.Error(err))
	}
	return New(st, Options{
		Config:  cfg,
		Saves:   mgr,
		History: log,
		Logger:  logger,
	})
}
