package saves

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tatianab/branching-tales/internal/models"
	"github.com/tatianab/branching-tales/internal/storage"
)

var errQuota = errors.New("quota exceeded")

// failingStore rejects every write.
type failingStore struct {
	*storage.MemoryStore
}

func (failingStore) Put(context.Context, string, []byte) error { return errQuota }

func newTestManager(store storage.Store) *Manager {
	defs := map[string]models.AchievementDef{
		"first_steps":      {Name: "Первые шаги", Start: true},
		"skilled_diplomat": {Name: "Искусный Дипломат", When: map[string]int{"charm": 50}},
	}
	m := NewManager(store, "samurai", defs, nil)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return m
}

func sampleState() models.PlayerState {
	s := models.NewPlayerState(models.Stats{"honor": 60, "wisdom": 50, "strength": 55, "charm": 50, "karma": -5})
	s.CurrentScene = "revenge_path"
	s.VisitedScenes = []string{"start", "revenge_path"}
	s.PlayerChoices = map[string]int{"start": 0}
	s.Achievements = []string{"first_steps"}
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(storage.NewMemoryStore())

	for slot := 1; slot <= Slots; slot++ {
		saved, err := m.Save(ctx, slot, sampleState())
		require.NoError(t, err)

		loaded, ok, err := m.Load(ctx, slot)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, saved, loaded)
		assert.Equal(t, sampleState(), loaded.PlayerState)
		assert.Equal(t, models.SchemaVersion, loaded.Version)
	}
}

func TestLoadEmptySlotIsAbsent(t *testing.T) {
	m := newTestManager(storage.NewMemoryStore())
	rec, ok, err := m.Load(context.Background(), 2)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, rec)
}

func TestInvalidSlots(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(storage.NewMemoryStore())
	for _, slot := range []int{0, -1, Slots + 1} {
		_, err := m.Save(ctx, slot, sampleState())
		assert.ErrorIs(t, err, ErrInvalidSlot)
		_, _, err = m.Load(ctx, slot)
		assert.ErrorIs(t, err, ErrInvalidSlot)
		assert.ErrorIs(t, m.Delete(ctx, slot), ErrInvalidSlot)
	}
}

func TestSaveReportsStorageFailure(t *testing.T) {
	m := newTestManager(failingStore{storage.NewMemoryStore()})
	_, err := m.Save(context.Background(), 1, sampleState())
	assert.ErrorIs(t, err, errQuota)
	assert.ErrorIs(t, m.Autosave(context.Background(), sampleState()), errQuota)
}

func TestSlotsInfoAndDelete(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(storage.NewMemoryStore())
	assert.False(t, m.HasAnySaves(ctx))

	_, err := m.Save(ctx, 2, sampleState())
	require.NoError(t, err)

	infos := m.SlotsInfo(ctx)
	require.Len(t, infos, Slots)
	assert.False(t, infos[0].Exists)
	assert.True(t, infos[1].Exists)
	assert.Equal(t, "revenge_path", infos[1].CurrentScene)
	assert.True(t, m.HasAnySaves(ctx))

	require.NoError(t, m.Delete(ctx, 2))
	assert.False(t, m.HasAnySaves(ctx))
}

func TestLoadMigratesUnversionedRecord(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	m := newTestManager(store)

	old := `{"currentScene": "mountain_temple", "stats": {"honor": 70}, "timestamp": 1700000000000,
		"achievements": {"first_steps": {"unlocked": true, "unlockedAt": 1}, "dark_lord": {"unlocked": false}}}`
	require.NoError(t, store.Put(ctx, "samurai_save_1", []byte(old)))

	rec, ok, err := m.Load(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.SchemaVersion, rec.Version)
	assert.Equal(t, []string{"mountain_temple"}, rec.VisitedScenes)
	assert.Equal(t, map[string]int{}, rec.PlayerChoices)
	assert.Equal(t, []string{}, rec.Inventory)
	assert.Equal(t, []string{"first_steps"}, rec.Achievements)
	assert.Equal(t, []string{}, rec.CompletedEndings)
	assert.Equal(t, 70, rec.Stats["honor"])
}

func TestMigrateIsIdempotent(t *testing.T) {
	old := models.SaveRecord{PlayerState: models.PlayerState{CurrentScene: "start"}}
	once := Migrate(old)
	twice := Migrate(once)
	assert.Equal(t, once, twice)
	assert.Equal(t, models.SchemaVersion, twice.Version)

	versioned := models.SaveRecord{Version: "1.0", PlayerState: models.PlayerState{CurrentScene: "x"}}
	assert.Equal(t, versioned, Migrate(versioned))
}

func TestDecodeRecordRejectsMalformed(t *testing.T) {
	for name, doc := range map[string]string{
		"not json":     `{`,
		"no scene":     `{"version": "1.0", "stats": {}}`,
		"bad stats":    `{"currentScene": "start", "stats": "high"}`,
		"bad ledger":   `{"currentScene": "start", "achievements": {"x": "yes"}}`,
		"wrong toplvl": `[1, 2, 3]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := DecodeRecord([]byte(doc))
			assert.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

func TestMalformedSlotIsRejected(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	m := newTestManager(store)
	require.NoError(t, store.Put(ctx, "samurai_save_3", []byte(`{"stats": 5}`)))

	_, ok, err := m.Load(ctx, 3)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrMalformedRecord)
	assert.False(t, m.SlotsInfo(ctx)[2].Exists)
}

func TestAutosaveIndependentOfSlots(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(storage.NewMemoryStore())

	require.NoError(t, m.Autosave(ctx, sampleState()))
	rec, ok, err := m.LoadAutosave(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "revenge_path", rec.CurrentScene)
	assert.False(t, m.HasAnySaves(ctx))
}

func TestProgressBelongsToStory(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	samurai := newTestManager(store)
	lighthouse := NewManager(store, "lighthouse", nil, nil)

	require.NoError(t, samurai.SaveProgress(ctx, sampleState()))

	_, ok, err := lighthouse.LoadProgress(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	rec, ok, err := samurai.LoadProgress(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "samurai", rec.StoryID)
}

func TestUnlockIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(storage.NewMemoryStore())

	fresh, err := m.Unlock(ctx, "skilled_diplomat")
	require.NoError(t, err)
	assert.Equal(t, []string{"skilled_diplomat"}, fresh)

	ledger, err := m.Achievements(ctx)
	require.NoError(t, err)
	first := *ledger["skilled_diplomat"].UnlockedAt

	fresh, err = m.Unlock(ctx, "skilled_diplomat")
	require.NoError(t, err)
	assert.Empty(t, fresh)

	ledger, err = m.Achievements(ctx)
	require.NoError(t, err)
	assert.Len(t, ledger, 2)
	assert.Equal(t, first, *ledger["skilled_diplomat"].UnlockedAt)
	assert.False(t, ledger["first_steps"].Unlocked)
	assert.Nil(t, ledger["first_steps"].UnlockedAt)
}

func TestUnlockMergesPreviousEntries(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(storage.NewMemoryStore())

	_, err := m.Unlock(ctx, "first_steps")
	require.NoError(t, err)
	fresh, err := m.Unlock(ctx, "first_steps", "keeper_of_light")
	require.NoError(t, err)
	assert.Equal(t, []string{"keeper_of_light"}, fresh)

	ledger, err := m.Achievements(ctx)
	require.NoError(t, err)
	assert.True(t, ledger["first_steps"].Unlocked)
	assert.True(t, ledger["keeper_of_light"].Unlocked)
	assert.Equal(t, "keeper_of_light", ledger["keeper_of_light"].Name)

	stats := m.Stats(ctx)
	assert.Equal(t, GameStats{UnlockedAchievements: 2, TotalAchievements: 3, CompletionPercentage: 67}, stats)
}

func TestSettingsDefaultsAndSave(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	m := newTestManager(store)
	assert.Equal(t, models.DefaultSettings(), m.Settings(ctx))

	s := models.DefaultSettings()
	s.SkipViewed = false
	s.TextSpeed = 80
	require.NoError(t, m.SaveSettings(ctx, s))
	assert.Equal(t, s, m.Settings(ctx))

	require.NoError(t, store.Put(ctx, "samurai_settings", []byte("nope")))
	assert.Equal(t, models.DefaultSettings(), m.Settings(ctx))
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	m := newTestManager(store)

	_, err := m.Save(ctx, 1, sampleState())
	require.NoError(t, err)
	require.NoError(t, m.Autosave(ctx, sampleState()))
	require.NoError(t, m.SaveProgress(ctx, sampleState()))
	require.NoError(t, m.SaveSettings(ctx, models.DefaultSettings()))
	require.NoError(t, store.Put(ctx, "movieCatalog_user_1", []byte(`{}`)))
	require.NoError(t, store.Put(ctx, "samurai_history", []byte(`{}`)))
	require.NoError(t, store.Put(ctx, "samurai_save_7", []byte(`{}`)))
	require.NoError(t, store.Put(ctx, "samurai_two_autosave", []byte(`{}`)))

	require.NoError(t, m.ClearAll(ctx))

	keys, err := store.Keys(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"movieCatalog_user_1", "samurai_two_autosave"}, keys)
}
