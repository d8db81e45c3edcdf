package saves

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/tatianab/branching-tales/internal/models"
	"github.com/tatianab/branching-tales/internal/storage"
	"go.uber.org/zap"
)

// Achievements returns the global ledger of the story. Declared achievements
// missing from the stored ledger are added locked.
func (m *Manager) Achievements(ctx context.Context) (models.AchievementLedger, error) {
	ledger := models.AchievementLedger{}
	err := storage.GetJSON(ctx, m.store, m.achievementsKey(), &ledger)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		ledger = models.AchievementLedger{}
	case err != nil:
		m.logger.Warn("achievement ledger unreadable, reinitialising", zap.Error(err))
		ledger = models.AchievementLedger{}
	}

	changed := false
	for id, def := range m.defs {
		if _, ok := ledger[id]; !ok {
			ledger[id] = lockedEntry(def)
			changed = true
		}
	}
	if changed || err != nil {
		if err := storage.PutJSON(ctx, m.store, m.achievementsKey(), ledger); err != nil {
			return ledger, fmt.Errorf("save achievements: %w", err)
		}
	}
	return ledger, nil
}

// Unlock marks ids unlocked and returns the ids that were not unlocked before.
// Already unlocked entries keep their original unlock time.
func (m *Manager) Unlock(ctx context.Context, ids ...string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ledger, err := m.Achievements(ctx)
	if err != nil {
		return nil, err
	}

	var fresh []string
	for _, id := range ids {
		entry, ok := ledger[id]
		if ok && entry.Unlocked {
			continue
		}
		if !ok {
			entry = lockedEntry(m.defs[id])
			if entry.Name == "" {
				entry.Name = id
			}
		}
		at := m.now().UnixMilli()
		entry.Unlocked = true
		entry.UnlockedAt = &at
		ledger[id] = entry
		fresh = append(fresh, id)
	}
	if len(fresh) == 0 {
		return nil, nil
	}
	if err := storage.PutJSON(ctx, m.store, m.achievementsKey(), ledger); err != nil {
		m.logger.Error("achievement save failed", zap.Strings("ids", fresh), zap.Error(err))
		return nil, fmt.Errorf("save achievements: %w", err)
	}
	m.logger.Info("achievements unlocked", zap.Strings("ids", fresh))
	return fresh, nil
}

func lockedEntry(def models.AchievementDef) models.Achievement {
	return models.Achievement{
		Name:        def.Name,
		Description: def.Description,
		Hidden:      def.Hidden,
	}
}

// GameStats summarises the ledger.
type GameStats struct {
	UnlockedAchievements int
	TotalAchievements    int
	CompletionPercentage int
}

// Stats returns ledger completion. An unreadable ledger reports zeros.
func (m *Manager) Stats(ctx context.Context) GameStats {
	ledger, err := m.Achievements(ctx)
	if err != nil {
		return GameStats{}
	}
	stats := GameStats{
		UnlockedAchievements: ledger.UnlockedCount(),
		TotalAchievements:    len(ledger),
	}
	if stats.TotalAchievements > 0 {
		stats.CompletionPercentage = int(math.Round(float64(stats.UnlockedAchievements) / float64(stats.TotalAchievements) * 100))
	}
	return stats
}
