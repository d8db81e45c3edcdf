package models

import (
	"slices"
	"time"
)

// SchemaVersion is stamped on every save record written by this module.
const SchemaVersion = "1.0"

// PlayerState is the mutable state of one playthrough.
type PlayerState struct {
	CurrentScene     string         `json:"currentScene"`
	Stats            Stats          `json:"stats"`
	Inventory        []string       `json:"inventory"`
	Achievements     []string       `json:"achievements"`
	VisitedScenes    []string       `json:"visitedScenes"`
	CompletedEndings []string       `json:"completedEndings"`
	PlayerChoices    map[string]int `json:"playerChoices"`
	Theme            string         `json:"currentTheme,omitempty"`
}

// NewPlayerState returns a fresh state positioned at the start scene.
func NewPlayerState(stats Stats) PlayerState {
	if stats == nil {
		stats = Stats{}
	}
	return PlayerState{
		CurrentScene:     StartScene,
		Stats:            stats,
		Inventory:        []string{},
		Achievements:     []string{},
		VisitedScenes:    []string{},
		CompletedEndings: []string{},
		PlayerChoices:    map[string]int{},
	}
}

// Clone returns a deep copy.
func (p PlayerState) Clone() PlayerState {
	out := p
	out.Stats = p.Stats.Clone()
	out.Inventory = slices.Clone(p.Inventory)
	out.Achievements = slices.Clone(p.Achievements)
	out.VisitedScenes = slices.Clone(p.VisitedScenes)
	out.CompletedEndings = slices.Clone(p.CompletedEndings)
	out.PlayerChoices = make(map[string]int, len(p.PlayerChoices))
	for k, v := range p.PlayerChoices {
		out.PlayerChoices[k] = v
	}
	return out
}

func (p *PlayerState) HasItem(item string) bool { return slices.Contains(p.Inventory, item) }

func (p *PlayerState) AddItem(item string) {
	p.Inventory = addUnique(p.Inventory, item)
}

func (p *PlayerState) RemoveItem(item string) {
	p.Inventory = slices.DeleteFunc(p.Inventory, func(s string) bool { return s == item })
}

func (p *PlayerState) Visited(sceneID string) bool {
	return slices.Contains(p.VisitedScenes, sceneID)
}

// MarkVisited records a visit, keeping first-visit order.
func (p *PlayerState) MarkVisited(sceneID string) {
	p.VisitedScenes = addUnique(p.VisitedScenes, sceneID)
}

func (p *PlayerState) MarkEnding(sceneID string) {
	p.CompletedEndings = addUnique(p.CompletedEndings, sceneID)
}

func (p *PlayerState) HasAchievement(id string) bool {
	return slices.Contains(p.Achievements, id)
}

// AddAchievement records id and reports whether it was new.
func (p *PlayerState) AddAchievement(id string) bool {
	if p.HasAchievement(id) {
		return false
	}
	p.Achievements = append(p.Achievements, id)
	return true
}

func addUnique(list []string, v string) []string {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

// SaveRecord is a persisted snapshot of a playthrough.
type SaveRecord struct {
	Version   string `json:"version,omitempty"`
	StoryID   string `json:"storyId,omitempty"`
	Timestamp int64  `json:"timestamp"`
	PlayerState
}

// SavedAt returns the record timestamp.
func (r SaveRecord) SavedAt() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Achievement is one ledger entry.
type Achievement struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Hidden      bool   `json:"hidden"`
	Unlocked    bool   `json:"unlocked"`
	UnlockedAt  *int64 `json:"unlockedAt"`
}

// AchievementLedger maps achievement id to its entry.
type AchievementLedger map[string]Achievement

// UnlockedCount returns the number of unlocked entries.
func (l AchievementLedger) UnlockedCount() int {
	n := 0
	for _, a := range l {
		if a.Unlocked {
			n++
		}
	}
	return n
}

// Settings is the user settings record.
type Settings struct {
	MusicVolume int    `json:"musicVolume"`
	SoundVolume int    `json:"soundVolume"`
	TextSpeed   int    `json:"textSpeed"`
	AutoPlay    bool   `json:"autoPlay"`
	SkipViewed  bool   `json:"skipViewed"`
	Language    string `json:"language"`
}

// DefaultSettings returns the settings used when none are stored.
func DefaultSettings() Settings {
	return Settings{
		MusicVolume: 50,
		SoundVolume: 70,
		TextSpeed:   50,
		AutoPlay:    true,
		SkipViewed:  true,
		Language:    "ru",
	}
}

// Progress summarises how much of a story has been seen.
type Progress struct {
	Total             int
	Visited           int
	TotalScenes       int
	CompletedEndings  int
	TotalEndings      int
	Achievements      int
	TotalAchievements int
}
