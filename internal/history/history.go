// Package history records the choices of a playthrough and summarises them.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tatianab/branching-tales/internal/models"
	"github.com/tatianab/branching-tales/internal/saves"
	"github.com/tatianab/branching-tales/internal/storage"
	"go.uber.org/zap"
)

// recentActions is how many entries Report lists.
const recentActions = 5

// Entry is one taken choice.
type Entry struct {
	Timestamp  int64        `json:"timestamp"`
	SceneID    string       `json:"sceneId"`
	SceneTitle string       `json:"sceneTitle"`
	ChoiceText string       `json:"choiceText"`
	Stats      models.Stats `json:"stats"`
}

// Stats summarises the log.
type Stats struct {
	TotalChoices    int    `json:"totalChoices"`
	UniqueScenes    int    `json:"uniqueScenes"`
	FavoritePath    string `json:"favoritePath"`
	PlayTime        string `json:"playTime"`
	EndingsUnlocked int    `json:"endingsUnlocked"`
}

type document struct {
	Entries         []Entry  `json:"entries"`
	UnlockedEndings []string `json:"unlockedEndings"`
	LastUpdate      int64    `json:"lastUpdate"`
}

// Log is the play history of one story, persisted under a single key.
type Log struct {
	store   storage.Store
	key     string
	logger  *zap.Logger
	now     func() time.Time
	entries []Entry
	endings []string
}

// New returns an empty log stored under key. Call Load to read what is stored.
func New(store storage.Store, key string, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{store: store, key: key, logger: logger, now: time.Now}
}

// Load replaces the in-memory log with the stored one. A missing record
// leaves the log empty; an unreadable one is reported and the log is reset.
func (l *Log) Load(ctx context.Context) error {
	var doc document
	err := storage.GetJSON(ctx, l.store, l.key, &doc)
	l.entries, l.endings = nil, nil
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		l.logger.Warn("history unreadable", zap.String("key", l.key), zap.Error(err))
		return fmt.Errorf("load history: %w", err)
	}
	l.entries = doc.Entries
	l.endings = doc.UnlockedEndings
	return nil
}

func (l *Log) save(ctx context.Context) error {
	doc := document{
		Entries:         l.entries,
		UnlockedEndings: l.endings,
		LastUpdate:      l.now().UnixMilli(),
	}
	if doc.Entries == nil {
		doc.Entries = []Entry{}
	}
	if doc.UnlockedEndings == nil {
		doc.UnlockedEndings = []string{}
	}
	if err := storage.PutJSON(ctx, l.store, l.key, doc); err != nil {
		l.logger.Error("history save failed", zap.String("key", l.key), zap.Error(err))
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// Add appends an entry, stamping it when it carries no timestamp.
func (l *Log) Add(ctx context.Context, e Entry) error {
	if e.Timestamp == 0 {
		e.Timestamp = l.now().UnixMilli()
	}
	e.Stats = e.Stats.Clone()
	l.entries = append(l.entries, e)
	return l.save(ctx)
}

// AddEnding records a reached ending once.
func (l *Log) AddEnding(ctx context.Context, sceneID string) error {
	if slices.Contains(l.endings, sceneID) {
		return nil
	}
	l.endings = append(l.endings, sceneID)
	return l.save(ctx)
}

// Entries returns a copy of the log.
func (l *Log) Entries() []Entry { return slices.Clone(l.entries) }

// Endings returns the reached endings in the order they were reached.
func (l *Log) Endings() []string { return slices.Clone(l.endings) }

// Clear empties the log and removes the stored record.
func (l *Log) Clear(ctx context.Context) error {
	l.entries, l.endings = nil, nil
	if err := l.store.Delete(ctx, l.key); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Stats summarises the log.
func (l *Log) Stats() Stats {
	seen := make(map[string]struct{}, len(l.entries))
	for _, e := range l.entries {
		seen[e.SceneID] = struct{}{}
	}
	return Stats{
		TotalChoices:    len(l.entries),
		UniqueScenes:    len(seen),
		FavoritePath:    l.favoritePath(),
		PlayTime:        l.playTime(),
		EndingsUnlocked: len(l.endings),
	}
}

// favoritePath is the most frequent pair of consecutive scenes. Ties go to
// the pair that reached the count first.
func (l *Log) favoritePath() string {
	if len(l.entries) == 0 {
		return "Недостаточно данных"
	}
	counts := map[string]int{}
	best, top := "", 0
	for i := 0; i+1 < len(l.entries); i++ {
		path := l.entries[i].SceneID + " -> " + l.entries[i+1].SceneID
		counts[path]++
		if counts[path] > top {
			best, top = path, counts[path]
		}
	}
	if best == "" {
		return "Неопределен"
	}
	return best
}

func (l *Log) playTime() string {
	if len(l.entries) < 2 {
		return "0 минут"
	}
	elapsed := time.Duration(l.entries[len(l.entries)-1].Timestamp-l.entries[0].Timestamp) * time.Millisecond
	return FormatPlayTime(elapsed)
}

// FormatPlayTime renders whole minutes, switching to hours past the first hour.
func FormatPlayTime(d time.Duration) string {
	minutes := int(d / time.Minute)
	if minutes < 60 {
		return fmt.Sprintf("%d минут", minutes)
	}
	return fmt.Sprintf("%d часов %d минут", minutes/60, minutes%60)
}

// Report renders a text summary of the log and the achievement ledger.
func (l *Log) Report(ach saves.GameStats) string {
	stats := l.Stats()
	var b strings.Builder
	b.WriteString("=== ОТЧЕТ О ПРОХОЖДЕНИИ ===\n\n")
	fmt.Fprintf(&b, "Общее время: %s\n", stats.PlayTime)
	fmt.Fprintf(&b, "Принято решений: %d\n", stats.TotalChoices)
	fmt.Fprintf(&b, "Посещено локаций: %d\n", stats.UniqueScenes)
	fmt.Fprintf(&b, "Открыто концовок: %d\n", stats.EndingsUnlocked)
	fmt.Fprintf(&b, "Любимый путь: %s\n\n", stats.FavoritePath)

	b.WriteString("=== ДОСТИЖЕНИЯ ===\n")
	fmt.Fprintf(&b, "Получено: %d/%d\n", ach.UnlockedAchievements, ach.TotalAchievements)
	fmt.Fprintf(&b, "Прогресс: %d%%\n\n", ach.CompletionPercentage)

	b.WriteString("=== ПОСЛЕДНИЕ ДЕЙСТВИЯ ===\n")
	start := max(0, len(l.entries)-recentActions)
	n := 1
	for i := len(l.entries) - 1; i >= start; i-- {
		e := l.entries[i]
		fmt.Fprintf(&b, "%d. %s: %s\n", n, e.SceneTitle, e.ChoiceText)
		n++
	}
	return b.String()
}

// Export renders the log with its summary as indented JSON.
func (l *Log) Export() ([]byte, error) {
	out := struct {
		History         []Entry  `json:"history"`
		Stats           Stats    `json:"stats"`
		UnlockedEndings []string `json:"unlockedEndings"`
		ExportDate      string   `json:"exportDate"`
	}{
		History:         l.Entries(),
		Stats:           l.Stats(),
		UnlockedEndings: l.Endings(),
		ExportDate:      l.now().UTC().Format(time.RFC3339),
	}
	if out.History == nil {
		out.History = []Entry{}
	}
	if out.UnlockedEndings == nil {
		out.UnlockedEndings = []string{}
	}
	return json.MarshalIndent(out, "", "  ")
}
