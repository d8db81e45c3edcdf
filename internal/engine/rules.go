package engine

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/tatianab/branching-tales/internal/models"
)

// Fallback gating messages for conditions with no table entry.
const (
	missingItemMessage  = "Нужен предмет: %s"
	unmetConditionText  = "Не выполнено условие!"
	requiredStatMessage = "Требуется %s: %d"
)

// Rules evaluates requirements and applies effects for one story.
type Rules struct {
	Story  *models.Story
	Config *models.GameConfig
}

// Gate reports whether choice is available in state. When it is not, message
// describes the first unmet requirement: stats first in the story's stat
// order, then items in the order the choice lists them.
func (r Rules) Gate(state models.PlayerState, choice models.Choice) (ok bool, message string) {
	for _, name := range r.requirementOrder(choice.Requirement) {
		want := choice.Requirement[name]
		if state.Stats[name] < want {
			return false, fmt.Sprintf(requiredStatMessage, r.Story.StatTitle(name), want)
		}
	}
	for _, item := range choice.Condition {
		if state.HasItem(item) {
			continue
		}
		if msg, ok := r.conditionMessage(item); ok {
			return false, msg
		}
		if len(choice.Condition) == 1 {
			return false, unmetConditionText
		}
		return false, fmt.Sprintf(missingItemMessage, r.Config.ItemName(item))
	}
	return true, ""
}

func (r Rules) conditionMessage(item string) (string, bool) {
	if r.Config == nil {
		return "", false
	}
	msg, ok := r.Config.ConditionMessages[item]
	return msg, ok
}

// requirementOrder lists declared stats first, in declaration order, then the
// rest lexically.
func (r Rules) requirementOrder(req map[string]int) []string {
	if len(req) == 0 {
		return nil
	}
	names := make([]string, 0, len(req))
	for _, name := range r.Story.StatNames() {
		if _, ok := req[name]; ok {
			names = append(names, name)
		}
	}
	var rest []string
	for name := range req {
		if !slices.Contains(names, name) {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// Apply folds effects into state in list order, clamping after every stat
// change, and returns the messages of the inventory tags that have one.
func (r Rules) Apply(state *models.PlayerState, effects models.Effects) []string {
	if state.Stats == nil {
		state.Stats = models.Stats{}
	}
	var messages []string
	for _, eff := range effects {
		if eff.IsInventory() {
			if msg := r.applyTag(state, eff.Tag); msg != "" {
				messages = append(messages, msg)
			}
			continue
		}
		for _, name := range eff.Stats() {
			rule := r.Story.StatRule(name)
			state.Stats[name] = rule.Clamp(state.Stats[name] + eff.Deltas[name])
		}
	}
	return messages
}

// applyTag mutates the inventory. The item comes from the effect table when the
// tag has an entry and from the tag suffix otherwise; a tag without a prefix
// adds its item.
func (r Rules) applyTag(state *models.PlayerState, tag string) string {
	var entry models.ItemMessage
	found := false
	if r.Config != nil {
		entry, found = r.Config.EffectMessages[tag]
	}

	item := entry.Item
	switch {
	case strings.HasPrefix(tag, models.RemovePrefix):
		if item == "" {
			item = strings.TrimPrefix(tag, models.RemovePrefix)
		}
		state.RemoveItem(item)
	case strings.HasPrefix(tag, models.AddPrefix):
		if item == "" {
			item = strings.TrimPrefix(tag, models.AddPrefix)
		}
		state.AddItem(item)
	default:
		if item == "" {
			item = tag
		}
		state.AddItem(item)
	}
	if !found {
		return ""
	}
	return entry.Message
}
