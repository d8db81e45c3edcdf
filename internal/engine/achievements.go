package engine

import (
	"sort"

	"github.com/tatianab/branching-tales/internal/models"
)

// StartAchievements returns the achievements granted on a new game.
func StartAchievements(story *models.Story) []string {
	var ids []string
	for id, def := range story.Achievements {
		if def.Start {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// EarnedAchievements returns the stat-rule achievements whose every minimum
// is met by stats.
func EarnedAchievements(story *models.Story, stats models.Stats) []string {
	var ids []string
	for id, def := range story.Achievements {
		if len(def.When) == 0 {
			continue
		}
		if meets(stats, def.When) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func meets(stats models.Stats, minimums map[string]int) bool {
	for name, want := range minimums {
		if stats[name] < want {
			return false
		}
	}
	return true
}
