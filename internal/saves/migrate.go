package saves

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tatianab/branching-tales/internal/models"
)

// wireRecord mirrors models.SaveRecord but keeps achievements raw: records
// written before versioning stored the whole ledger object there.
type wireRecord struct {
	Version          string          `json:"version"`
	StoryID          string          `json:"storyId"`
	Timestamp        int64           `json:"timestamp"`
	CurrentScene     string          `json:"currentScene"`
	Stats            models.Stats    `json:"stats"`
	Inventory        []string        `json:"inventory"`
	Achievements     json.RawMessage `json:"achievements"`
	VisitedScenes    []string        `json:"visitedScenes"`
	CompletedEndings []string        `json:"completedEndings"`
	PlayerChoices    map[string]int  `json:"playerChoices"`
	Theme            string          `json:"currentTheme"`
}

// DecodeRecord parses and validates a stored record, migrating it when it
// carries no schema version. migrated reports whether a migration ran.
func DecodeRecord(data []byte) (rec models.SaveRecord, migrated bool, err error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return models.SaveRecord{}, false, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	achievements, err := decodeAchievements(w.Achievements)
	if err != nil {
		return models.SaveRecord{}, false, fmt.Errorf("%w: achievements: %v", ErrMalformedRecord, err)
	}

	rec = models.SaveRecord{
		Version:   w.Version,
		StoryID:   w.StoryID,
		Timestamp: w.Timestamp,
		PlayerState: models.PlayerState{
			CurrentScene:     w.CurrentScene,
			Stats:            w.Stats,
			Inventory:        w.Inventory,
			Achievements:     achievements,
			VisitedScenes:    w.VisitedScenes,
			CompletedEndings: w.CompletedEndings,
			PlayerChoices:    w.PlayerChoices,
			Theme:            w.Theme,
		},
	}
	if rec.Version == "" {
		rec = Migrate(rec)
		migrated = true
	}
	if rec.CurrentScene == "" {
		return models.SaveRecord{}, false, fmt.Errorf("%w: current scene is missing", ErrMalformedRecord)
	}
	return rec, migrated, nil
}

// Migrate fills fields introduced after the original schema and stamps the
// current version. Records that already carry a version are returned unchanged.
func Migrate(rec models.SaveRecord) models.SaveRecord {
	if rec.Version != "" {
		return rec
	}
	if rec.VisitedScenes == nil {
		rec.VisitedScenes = []string{}
		if rec.CurrentScene != "" {
			rec.VisitedScenes = append(rec.VisitedScenes, rec.CurrentScene)
		}
	}
	if rec.PlayerChoices == nil {
		rec.PlayerChoices = map[string]int{}
	}
	if rec.Stats == nil {
		rec.Stats = models.Stats{}
	}
	if rec.Inventory == nil {
		rec.Inventory = []string{}
	}
	if rec.Achievements == nil {
		rec.Achievements = []string{}
	}
	if rec.CompletedEndings == nil {
		rec.CompletedEndings = []string{}
	}
	rec.Version = models.SchemaVersion
	return rec
}

// decodeAchievements accepts a list of ids or a ledger-shaped object whose
// values are either booleans or entries with an "unlocked" flag.
func decodeAchievements(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var ids []string
		err := json.Unmarshal(raw, &ids)
		return ids, err
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	ids := []string{}
	for id, v := range obj {
		var flag bool
		if json.Unmarshal(v, &flag) == nil {
			if flag {
				ids = append(ids, id)
			}
			continue
		}
		var entry struct {
			Unlocked bool `json:"unlocked"`
		}
		if err := json.Unmarshal(v, &entry); err != nil {
			return nil, fmt.Errorf("achievement %q: %w", id, err)
		}
		if entry.Unlocked {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
