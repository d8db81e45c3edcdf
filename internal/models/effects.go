package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Inventory tag prefixes.
const (
	AddPrefix    = "add_"
	RemovePrefix = "remove_"
)

// Tags is a list of inventory tags. Documents may carry a single string or a list.
type Tags []string

func (t *Tags) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*t = Tags{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("tags must be a string or a list of strings: %w", err)
	}
	*t = many
	return nil
}

func (t *Tags) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*t = Tags{node.Value}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := node.Decode(&many); err != nil {
			return err
		}
		*t = many
		return nil
	}
	return fmt.Errorf("line %d: tags must be a string or a list of strings", node.Line)
}

// Effect is one element of a choice's effect list: either a stat-delta map or
// an inventory tag.
type Effect struct {
	Tag    string
	Deltas map[string]int
}

// IsInventory reports whether the effect mutates the inventory.
func (e Effect) IsInventory() bool { return e.Tag != "" }

// Stats returns the delta map's stat names in lexical order.
func (e Effect) Stats() []string {
	names := make([]string, 0, len(e.Deltas))
	for name := range e.Deltas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e Effect) MarshalJSON() ([]byte, error) {
	if e.IsInventory() {
		return json.Marshal(e.Tag)
	}
	return json.Marshal(e.Deltas)
}

// Effects is the ordered effect list of a choice. Documents may carry a single
// delta map, a single tag, or a list mixing both.
type Effects []Effect

func (e *Effects) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = nil
		return nil
	}
	if data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		out := make(Effects, 0, len(raw))
		for i, item := range raw {
			eff, err := decodeJSONEffect(item)
			if err != nil {
				return fmt.Errorf("effect %d: %w", i, err)
			}
			out = append(out, eff)
		}
		*e = out
		return nil
	}
	eff, err := decodeJSONEffect(data)
	if err != nil {
		return err
	}
	*e = Effects{eff}
	return nil
}

func decodeJSONEffect(data []byte) (Effect, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return Effect{}, err
		}
		return Effect{Tag: tag}, nil
	}
	var deltas map[string]int
	if err := json.Unmarshal(data, &deltas); err != nil {
		return Effect{}, fmt.Errorf("effect must be a tag or a stat map: %w", err)
	}
	return Effect{Deltas: deltas}, nil
}

func (e *Effects) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		out := make(Effects, 0, len(node.Content))
		for _, item := range node.Content {
			eff, err := decodeYAMLEffect(item)
			if err != nil {
				return err
			}
			out = append(out, eff)
		}
		*e = out
		return nil
	}
	eff, err := decodeYAMLEffect(node)
	if err != nil {
		return err
	}
	*e = Effects{eff}
	return nil
}

func decodeYAMLEffect(node *yaml.Node) (Effect, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return Effect{Tag: node.Value}, nil
	case yaml.MappingNode:
		var deltas map[string]int
		if err := node.Decode(&deltas); err != nil {
			return Effect{}, err
		}
		return Effect{Deltas: deltas}, nil
	}
	return Effect{}, fmt.Errorf("line %d: effect must be a tag or a stat map", node.Line)
}

// UnmarshalJSON reads the [itemName, message] pair used by effect tables.
func (m *ItemMessage) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("effect message must be [item, message]: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("effect message must be [item, message], got %d elements", len(pair))
	}
	m.Item, m.Message = pair[0], pair[1]
	return nil
}

func (m ItemMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{m.Item, m.Message})
}
