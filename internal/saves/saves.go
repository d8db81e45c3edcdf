// Package saves persists playthroughs, the achievement ledger and settings on
// top of a storage.Store.
package saves

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tatianab/branching-tales/internal/models"
	"github.com/tatianab/branching-tales/internal/storage"
	"go.uber.org/zap"
)

// Slots is the number of numbered save slots.
const Slots = 3

// ProgressKey holds the last-progress record shared by all stories.
const ProgressKey = "storyGameProgress"

var (
	ErrInvalidSlot     = errors.New("invalid save slot")
	ErrMalformedRecord = errors.New("malformed save record")
)

// Manager reads and writes the records of one story.
type Manager struct {
	store   storage.Store
	storyID string
	defs    map[string]models.AchievementDef
	logger  *zap.Logger
	now     func() time.Time
}

// NewManager returns a manager for storyID. defs seeds the achievement ledger.
func NewManager(store storage.Store, storyID string, defs map[string]models.AchievementDef, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		storyID: storyID,
		defs:    defs,
		logger:  logger.With(zap.String("story", storyID)),
		now:     time.Now,
	}
}

func (m *Manager) slotKey(slot int) string { return fmt.Sprintf("%s_save_%d", m.storyID, slot) }
func (m *Manager) autosaveKey() string { return m.storyID + "_autosave" }
func (m *Manager) achievementsKey() string { return m.storyID + "_achievements" }
func (m *Manager) settingsKey() string { return m.storyID + "_settings" }

// HistoryKey is where the play history of the story is kept.
func (m *Manager) HistoryKey() string { return m.storyID + "_history" }

// owns reports whether key is one of the story's own records. Another story
// whose id extends this one shares the key prefix but not the suffixes.
func (m *Manager) owns(key string) bool {
	switch key {
	case m.achievementsKey(), m.settingsKey(), m.autosaveKey(), m.HistoryKey():
		return true
	}
	n, ok := strings.CutPrefix(key, m.storyID+"_save_")
	if !ok || n == "" {
		return false
	}
	_, err := strconv.Atoi(n)
	return err == nil
}

func checkSlot(slot int) error {
	if slot < 1 || slot > Slots {
		return fmt.Errorf("%w: %d (want 1-%d)", ErrInvalidSlot, slot, Slots)
	}
	return nil
}

func (m *Manager) record(state models.PlayerState) models.SaveRecord {
	return models.SaveRecord{
		Version:     models.SchemaVersion,
		StoryID:     m.storyID,
		Timestamp:   m.now().UnixMilli(),
		PlayerState: state.Clone(),
	}
}

func (m *Manager) write(ctx context.Context, key string, rec models.SaveRecord) error {
	if err := storage.PutJSON(ctx, m.store, key, rec); err != nil {
		m.logger.Error("save failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// read returns the record under key; ok is false when the key is empty.
func (m *Manager) read(ctx context.Context, key string) (models.SaveRecord, bool, error) {
	data, err := m.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return models.SaveRecord{}, false, nil
	}
	if err != nil {
		m.logger.Error("load failed", zap.String("key", key), zap.Error(err))
		return models.SaveRecord{}, false, fmt.Errorf("load %s: %w", key, err)
	}
	rec, migrated, err := DecodeRecord(data)
	if err != nil {
		m.logger.Error("rejected save record", zap.String("key", key), zap.Error(err))
		return models.SaveRecord{}, false, err
	}
	if migrated {
		m.logger.Warn("migrated unversioned save record", zap.String("key", key))
	}
	return rec, true, nil
}

// Save writes state to a numbered slot and merges its achievements into the ledger.
func (m *Manager) Save(ctx context.Context, slot int, state models.PlayerState) (models.SaveRecord, error) {
	if err := checkSlot(slot); err != nil {
		return models.SaveRecord{}, err
	}
	rec := m.record(state)
	if err := m.write(ctx, m.slotKey(slot), rec); err != nil {
		return models.SaveRecord{}, err
	}
	if _, err := m.Unlock(ctx, state.Achievements...); err != nil {
		m.logger.Warn("achievement merge failed", zap.Error(err))
	}
	return rec, nil
}

// Load reads a numbered slot. An empty slot reports ok == false and no error.
func (m *Manager) Load(ctx context.Context, slot int) (models.SaveRecord, bool, error) {
	if err := checkSlot(slot); err != nil {
		return models.SaveRecord{}, false, err
	}
	return m.read(ctx, m.slotKey(slot))
}

// Delete empties a numbered slot.
func (m *Manager) Delete(ctx context.Context, slot int) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, m.slotKey(slot)); err != nil {
		return fmt.Errorf("delete slot %d: %w", slot, err)
	}
	return nil
}

// SlotInfo describes one numbered slot.
type SlotInfo struct {
	Slot         int
	Exists       bool
	Timestamp    time.Time
	CurrentScene string
	Stats        models.Stats
}

// SlotsInfo describes every numbered slot. Unreadable slots are reported empty.
func (m *Manager) SlotsInfo(ctx context.Context) []SlotInfo {
	infos := make([]SlotInfo, 0, Slots)
	for slot := 1; slot <= Slots; slot++ {
		info := SlotInfo{Slot: slot}
		if rec, ok, err := m.Load(ctx, slot); err == nil && ok {
			info.Exists = true
			info.Timestamp = rec.SavedAt()
			info.CurrentScene = rec.CurrentScene
			info.Stats = rec.Stats
		}
		infos = append(infos, info)
	}
	return infos
}

// HasAnySaves reports whether any numbered slot holds a record.
func (m *Manager) HasAnySaves(ctx context.Context) bool {
	for _, info := range m.SlotsInfo(ctx) {
		if info.Exists {
			return true
		}
	}
	return false
}

// Autosave overwrites the autosave record.
func (m *Manager) Autosave(ctx context.Context, state models.PlayerState) error {
	return m.write(ctx, m.autosaveKey(), m.record(state))
}

// LoadAutosave reads the autosave record.
func (m *Manager) LoadAutosave(ctx context.Context) (models.SaveRecord, bool, error) {
	return m.read(ctx, m.autosaveKey())
}

// SaveProgress overwrites the last-progress record.
func (m *Manager) SaveProgress(ctx context.Context, state models.PlayerState) error {
	return m.write(ctx, ProgressKey, m.record(state))
}

// LoadProgress reads the last-progress record if it belongs to this story.
func (m *Manager) LoadProgress(ctx context.Context) (models.SaveRecord, bool, error) {
	rec, ok, err := m.read(ctx, ProgressKey)
	if err != nil || !ok {
		return rec, ok, err
	}
	if rec.StoryID != m.storyID {
		return models.SaveRecord{}, false, nil
	}
	return rec, true, nil
}

// Settings returns the stored settings, or defaults.
func (m *Manager) Settings(ctx context.Context) models.Settings {
	settings := models.DefaultSettings()
	err := storage.GetJSON(ctx, m.store, m.settingsKey(), &settings)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		m.logger.Warn("settings unreadable, using defaults", zap.Error(err))
		return models.DefaultSettings()
	}
	return settings
}

// SaveSettings overwrites the settings record.
func (m *Manager) SaveSettings(ctx context.Context, settings models.Settings) error {
	if err := storage.PutJSON(ctx, m.store, m.settingsKey(), settings); err != nil {
		m.logger.Error("settings save failed", zap.Error(err))
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// ClearAll removes every record of the story.
func (m *Manager) ClearAll(ctx context.Context) error {
	keys, err := m.store.Keys(ctx, m.storyID+"_")
	if err != nil {
		return fmt.Errorf("list %s records: %w", m.storyID, err)
	}
	for _, key := range keys {
		if !m.owns(key) {
			continue
		}
		if err := m.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("clear %s: %w", key, err)
		}
	}
	if _, ok, _ := m.LoadProgress(ctx); ok {
		if err := m.store.Delete(ctx, ProgressKey); err != nil {
			return fmt.Errorf("clear %s: %w", ProgressKey, err)
		}
	}
	return nil
}
