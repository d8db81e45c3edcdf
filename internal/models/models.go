package models

import (
	"slices"
	"sort"
)

// MenuTarget is the reserved choice target that leaves the story for the menu.
const MenuTarget = "menu"

// StartScene is the scene every new game begins at.
const StartScene = "start"

// Story is a loaded, author-supplied scene graph plus its stat schema.
type Story struct {
	ID           string                    `yaml:"id,omitempty" json:"id,omitempty"`
	Name         string                    `yaml:"name" json:"storyName"`
	Stats        []StatDef                 `yaml:"stats,omitempty" json:"-"`
	Achievements map[string]AchievementDef `yaml:"achievements,omitempty" json:"-"`
	Scenes       map[string]*Scene         `yaml:"scenes" json:"-"`
}

// StatDef declares one axis of the stat vector.
type StatDef struct {
	Name    string `yaml:"name"`
	Title   string `yaml:"title,omitempty"`
	Initial int    `yaml:"initial"`
	Min     int    `yaml:"min"`
	Max     int    `yaml:"max"`
}

// Scene is one node of the story graph.
type Scene struct {
	ID          string   `yaml:"id,omitempty" json:"id,omitempty"`
	Title       string   `yaml:"title" json:"title"`
	Character   string   `yaml:"character,omitempty" json:"character,omitempty"`
	Text        string   `yaml:"text" json:"text"`
	Image       string   `yaml:"image,omitempty" json:"image,omitempty"`
	Background  string   `yaml:"background,omitempty" json:"background,omitempty"`
	Theme       string   `yaml:"theme,omitempty" json:"theme,omitempty"`
	Ending      bool     `yaml:"ending,omitempty" json:"ending,omitempty"`
	Achievement string   `yaml:"achievement,omitempty" json:"achievement,omitempty"`
	Choices     []Choice `yaml:"choices" json:"choices"`
}

// Choice is a directed edge to another scene, optionally gated and effectful.
type Choice struct {
	Text        string         `yaml:"text" json:"text"`
	Next        string         `yaml:"next" json:"next"`
	Hint        string         `yaml:"hint,omitempty" json:"hint,omitempty"`
	Requirement map[string]int `yaml:"requirement,omitempty" json:"requirement,omitempty"`
	Condition   Tags           `yaml:"condition,omitempty" json:"condition,omitempty"`
	Effects     Effects        `yaml:"effect,omitempty" json:"effect,omitempty"`
}

// AchievementDef describes an achievement a story can grant.
type AchievementDef struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Hidden      bool           `yaml:"hidden,omitempty" json:"hidden,omitempty"`
	Start       bool           `yaml:"start,omitempty" json:"-"`
	When        map[string]int `yaml:"when,omitempty" json:"-"`
}

// Scene returns the scene with the given id.
func (s *Story) Scene(id string) (*Scene, bool) {
	if s == nil || s.Scenes == nil {
		return nil, false
	}
	scene, ok := s.Scenes[id]
	return scene, ok
}

// SceneIDs returns all scene ids in lexical order.
func (s *Story) SceneIDs() []string {
	ids := make([]string, 0, len(s.Scenes))
	for id := range s.Scenes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Endings returns the ids of every scene flagged as an ending.
func (s *Story) Endings() []string {
	var ids []string
	for _, id := range s.SceneIDs() {
		if s.Scenes[id].Ending {
			ids = append(ids, id)
		}
	}
	return ids
}

// AchievementIDs returns every achievement id known to the story: declared
// achievements plus those referenced by ending scenes.
func (s *Story) AchievementIDs() []string {
	ids := make([]string, 0, len(s.Achievements))
	for id := range s.Achievements {
		ids = append(ids, id)
	}
	for _, scene := range s.Scenes {
		if scene.Achievement != "" && !slices.Contains(ids, scene.Achievement) {
			ids = append(ids, scene.Achievement)
		}
	}
	sort.Strings(ids)
	return ids
}

// StatNames returns declared stats in declaration order.
func (s *Story) StatNames() []string {
	names := make([]string, 0, len(s.Stats))
	for _, def := range s.Stats {
		names = append(names, def.Name)
	}
	return names
}

// StatRule returns the clamp range for a stat. Undeclared stats use [0,100].
func (s *Story) StatRule(name string) StatRule {
	for _, def := range s.Stats {
		if def.Name == name {
			return StatRule{Min: def.Min, Max: def.Max}
		}
	}
	return DefaultStatRule
}

// StatTitle returns the display name of a stat.
func (s *Story) StatTitle(name string) string {
	for _, def := range s.Stats {
		if def.Name == name && def.Title != "" {
			return def.Title
		}
	}
	return name
}

// InitialStats returns a fresh stat vector with every declared initial value.
func (s *Story) InitialStats() Stats {
	stats := make(Stats, len(s.Stats))
	for _, def := range s.Stats {
		stats[def.Name] = StatRule{Min: def.Min, Max: def.Max}.Clamp(def.Initial)
	}
	return stats
}

// StatRule is an inclusive clamp range.
type StatRule struct {
	Min int
	Max int
}

// DefaultStatRule applies to stats a story does not declare.
var DefaultStatRule = StatRule{Min: 0, Max: 100}

// Clamp forces v into the range.
func (r StatRule) Clamp(v int) int {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Stats is the player's numeric stat vector.
type Stats map[string]int

// Clone returns an independent copy.
func (s Stats) Clone() Stats {
	out := make(Stats, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// ItemMessage is an effect table entry: the item an inventory tag refers to and
// the message shown when the tag is applied.
type ItemMessage struct {
	Item    string
	Message string
}

// GameConfig holds the effect and condition message tables shared by stories.
type GameConfig struct {
	EffectMessages    map[string]ItemMessage `json:"effectMessages"`
	ConditionMessages map[string]string      `json:"conditionMessages"`
	ItemDisplayNames  map[string]string      `json:"itemDisplayNames"`
}

// ItemName returns the display name of an inventory item.
func (c *GameConfig) ItemName(item string) string {
	if c != nil {
		if name, ok := c.ItemDisplayNames[item]; ok {
			return name
		}
	}
	return item
}
