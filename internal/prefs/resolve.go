package prefs

// Settings is the global settings map persisted in the configuration store.
type Settings struct {
	APIKey            string `json:"api_key"`
	SkipCountTracking bool   `json:"skip_count_tracking"`
	MuteAds           bool   `json:"mute_ads"`
	SkipAds           bool   `json:"skip_ads"`
	MinimumSkipLength int    `json:"minimum_skip_length"`
	AutoPlay          bool   `json:"auto_play"`
	JoinName          string `json:"join_name"`
	UseProxy          bool   `json:"use_proxy"`
}

// DefaultSettings returns the settings used for a fresh store.
func DefaultSettings() Settings {
	return Settings{
		SkipCountTracking: true,
		AutoPlay:          true,
		MinimumSkipLength: 1,
		JoinName:          "loungeskip",
	}
}

// Global is a full snapshot of the shared configuration.
type Global struct {
	Settings
	SkipCategories   []string
	ChannelWhitelist []Channel
}

// Preferences is the immutable effective configuration for one device session.
type Preferences struct {
	JoinName          string
	APIKey            string
	SkipCategories    []string
	ChannelWhitelist  []Channel
	SkipCountTracking bool
	MuteAds           bool
	SkipAds           bool
	AutoPlay          bool
	MinimumSkipLength int
	OffsetSeconds     float64
}

// Resolve derives effective preferences from the global configuration and a
// device's overrides. Pure: neither input is mutated. OffsetSeconds is set by
// the caller from the device snapshot.
func Resolve(global Global, overrides Overrides) Preferences {
	p := Preferences{
		JoinName:          global.JoinName,
		APIKey:            global.APIKey,
		SkipCountTracking: global.SkipCountTracking,
		MuteAds:           global.MuteAds,
		SkipAds:           global.SkipAds,
		AutoPlay:          global.AutoPlay,
		MinimumSkipLength: global.MinimumSkipLength,
	}

	if overrides.SkipCategories != nil {
		p.SkipCategories = append([]string{}, overrides.SkipCategories...)
	} else {
		p.SkipCategories = append([]string{}, global.SkipCategories...)
	}
	if overrides.ChannelWhitelist != nil {
		p.ChannelWhitelist = append([]Channel{}, overrides.ChannelWhitelist...)
	} else {
		p.ChannelWhitelist = append([]Channel{}, global.ChannelWhitelist...)
	}

	if value, ok := overrides.Automation["skip_count_tracking"]; ok {
		p.SkipCountTracking = value
	}
	if value, ok := overrides.Automation["mute_ads"]; ok {
		p.MuteAds = value
	}
	if value, ok := overrides.Automation["skip_ads"]; ok {
		p.SkipAds = value
	}
	if value, ok := overrides.Automation["auto_play"]; ok {
		p.AutoPlay = value
	}

	return p
}

// ChannelWhitelisted reports whether a channel id is on the effective whitelist.
func (p Preferences) ChannelWhitelisted(channelID string) bool {
	if channelID == "" {
		return false
	}
	for _, channel := range p.ChannelWhitelist {
		if channel.ID == channelID {
			return true
		}
	}
	return false
}
