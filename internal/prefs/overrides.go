package prefs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Channel identifies a whitelisted channel.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Overrides selectively masks global preferences for one device.
// A nil SkipCategories or ChannelWhitelist means "inherit from global";
// an empty, non-nil slice is an explicit empty override.
type Overrides struct {
	Automation       map[string]bool
	SkipCategories   []string
	ChannelWhitelist []Channel
}

var allowedAutomationKeys = map[string]struct{}{
	"skip_ads":            {},
	"mute_ads":            {},
	"skip_count_tracking": {},
	"auto_play":           {},
}

// IsZero reports whether no override is set.
func (o Overrides) IsZero() bool {
	return len(o.Automation) == 0 && o.SkipCategories == nil && o.ChannelWhitelist == nil
}

// Equal compares overrides field by field, distinguishing nil from empty.
func (o Overrides) Equal(other Overrides) bool {
	if len(o.Automation) != len(other.Automation) {
		return false
	}
	for key, value := range o.Automation {
		got, ok := other.Automation[key]
		if !ok || got != value {
			return false
		}
	}
	if (o.SkipCategories == nil) != (other.SkipCategories == nil) {
		return false
	}
	if len(o.SkipCategories) != len(other.SkipCategories) {
		return false
	}
	for i, category := range o.SkipCategories {
		if other.SkipCategories[i] != category {
			return false
		}
	}
	if (o.ChannelWhitelist == nil) != (other.ChannelWhitelist == nil) {
		return false
	}
	if len(o.ChannelWhitelist) != len(other.ChannelWhitelist) {
		return false
	}
	for i, channel := range o.ChannelWhitelist {
		if other.ChannelWhitelist[i] != channel {
			return false
		}
	}
	return true
}

// Encode serializes overrides to the canonical JSON stored in the devices table.
// Returns the empty string when no override is set.
func (o Overrides) Encode() string {
	if o.IsZero() {
		return ""
	}
	payload := make(map[string]any)
	if len(o.Automation) > 0 {
		keys := make([]string, 0, len(o.Automation))
		for key := range o.Automation {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		automation := make(map[string]bool, len(keys))
		for _, key := range keys {
			automation[key] = o.Automation[key]
		}
		payload["automation"] = automation
	}
	if o.SkipCategories != nil {
		payload["skip_categories"] = o.SkipCategories
	}
	if o.ChannelWhitelist != nil {
		payload["channel_whitelist"] = o.ChannelWhitelist
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// ParseStored decodes overrides persisted in the devices table.
// Anything that fails to parse or validate degrades to no override.
func ParseStored(raw string) Overrides {
	if strings.TrimSpace(raw) == "" {
		return Overrides{}
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Overrides{}
	}
	normalized, err := NormalizeOverrides(payload)
	if err != nil {
		return Overrides{}
	}
	return normalized
}

// NormalizeOverrides validates an overrides payload from the API or storage.
// Unknown automation keys are dropped; invalid categories are an error.
func NormalizeOverrides(payload map[string]any) (Overrides, error) {
	var out Overrides
	if payload == nil {
		return out, nil
	}

	if raw, ok := payload["automation"]; ok && raw != nil {
		automation, ok := raw.(map[string]any)
		if ok {
			out.Automation = normalizeAutomation(automation)
		}
	}

	if raw, ok := payload["skip_categories"]; ok && raw != nil {
		categories, err := normalizeCategories(raw)
		if err != nil {
			return Overrides{}, err
		}
		out.SkipCategories = categories
	}

	if raw, ok := payload["channel_whitelist"]; ok && raw != nil {
		channels, err := normalizeChannels(raw)
		if err != nil {
			return Overrides{}, err
		}
		out.ChannelWhitelist = channels
	}

	return out, nil
}

// MergeOverrides applies a partial overrides payload on top of existing
// overrides. A JSON null for a top-level key clears that override; a null
// automation value clears just that flag. A null payload clears everything.
func MergeOverrides(existing Overrides, payload map[string]any, payloadIsNull bool) (Overrides, error) {
	if payloadIsNull {
		return Overrides{}, nil
	}
	out := existing.clone()

	if raw, present := payload["automation"]; present {
		if raw == nil {
			out.Automation = nil
		} else if automation, ok := raw.(map[string]any); ok {
			if out.Automation == nil {
				out.Automation = make(map[string]bool)
			}
			for key, value := range automation {
				if _, allowed := allowedAutomationKeys[key]; !allowed {
					continue
				}
				if value == nil {
					delete(out.Automation, key)
					continue
				}
				boolValue, ok := normalizeBool(value)
				if !ok {
					continue
				}
				out.Automation[key] = boolValue
			}
			if len(out.Automation) == 0 {
				out.Automation = nil
			}
		}
	}

	if raw, present := payload["skip_categories"]; present {
		if raw == nil {
			out.SkipCategories = nil
		} else {
			categories, err := normalizeCategories(raw)
			if err != nil {
				return Overrides{}, err
			}
			out.SkipCategories = categories
		}
	}

	if raw, present := payload["channel_whitelist"]; present {
		if raw == nil {
			out.ChannelWhitelist = nil
		} else {
			channels, err := normalizeChannels(raw)
			if err != nil {
				return Overrides{}, err
			}
			out.ChannelWhitelist = channels
		}
	}

	return out, nil
}

func (o Overrides) clone() Overrides {
	out := Overrides{}
	if o.Automation != nil {
		out.Automation = make(map[string]bool, len(o.Automation))
		for key, value := range o.Automation {
			out.Automation[key] = value
		}
	}
	if o.SkipCategories != nil {
		out.SkipCategories = append([]string{}, o.SkipCategories...)
	}
	if o.ChannelWhitelist != nil {
		out.ChannelWhitelist = append([]Channel{}, o.ChannelWhitelist...)
	}
	return out
}

func normalizeAutomation(payload map[string]any) map[string]bool {
	normalized := make(map[string]bool)
	for key, raw := range payload {
		if _, ok := allowedAutomationKeys[key]; !ok {
			continue
		}
		value, ok := normalizeBool(raw)
		if !ok {
			continue
		}
		normalized[key] = value
	}
	if len(normalized) == 0 {
		return nil
	}
	return normalized
}

func normalizeBool(raw any) (bool, bool) {
	switch value := raw.(type) {
	case bool:
		return value, true
	case string:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "on":
			return true, true
		case "0", "false", "no", "off":
			return false, true
		}
	}
	return false, false
}

func normalizeCategories(raw any) ([]string, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("skip_categories must be a list")
	}
	normalized := make([]string, 0, len(list))
	seen := make(map[string]struct{})
	for _, item := range list {
		if item == nil {
			continue
		}
		value := strings.TrimSpace(fmt.Sprintf("%v", item))
		if value == "" {
			continue
		}
		if !ValidCategory(value) {
			return nil, fmt.Errorf("invalid skip category: %s", value)
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		normalized = append(normalized, value)
	}
	return normalized, nil
}

func normalizeChannels(raw any) ([]Channel, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("channel_whitelist must be a list")
	}
	normalized := make([]Channel, 0, len(list))
	seen := make(map[string]struct{})
	for _, item := range list {
		channel, ok := normalizeChannelEntry(item)
		if !ok {
			continue
		}
		if _, dup := seen[channel.ID]; dup {
			continue
		}
		seen[channel.ID] = struct{}{}
		normalized = append(normalized, channel)
	}
	return normalized, nil
}

func normalizeChannelEntry(raw any) (Channel, bool) {
	var id, name string
	switch entry := raw.(type) {
	case map[string]any:
		if value, ok := entry["id"]; ok && value != nil {
			id = fmt.Sprintf("%v", value)
		} else if value, ok := entry["channel_id"]; ok && value != nil {
			id = fmt.Sprintf("%v", value)
		}
		if value, ok := entry["name"]; ok && value != nil {
			name = fmt.Sprintf("%v", value)
		}
	case string:
		id = entry
	default:
		return Channel{}, false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Channel{}, false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = id
	}
	return Channel{ID: id, Name: name}, true
}
