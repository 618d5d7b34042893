package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/loungeskip/loungeskip/internal/prefs"
)

// seedFile mirrors the config file layout older standalone installs used,
// so an existing config.yaml or config.json can be imported on first run.
type seedFile struct {
	Devices []struct {
		ScreenID string  `yaml:"screen_id" json:"screen_id"`
		Name     string  `yaml:"name" json:"name"`
		Offset   float64 `yaml:"offset" json:"offset"`
	} `yaml:"devices" json:"devices"`
	APIKey           string   `yaml:"apikey" json:"apikey"`
	SkipCategories   []string `yaml:"skip_categories" json:"skip_categories"`
	ChannelWhitelist []struct {
		ID   string `yaml:"id" json:"id"`
		Name string `yaml:"name" json:"name"`
	} `yaml:"channel_whitelist" json:"channel_whitelist"`
	SkipCountTracking *bool  `yaml:"skip_count_tracking" json:"skip_count_tracking"`
	MuteAds           *bool  `yaml:"mute_ads" json:"mute_ads"`
	SkipAds           *bool  `yaml:"skip_ads" json:"skip_ads"`
	AutoPlay          *bool  `yaml:"auto_play" json:"auto_play"`
	UseProxy          *bool  `yaml:"use_proxy" json:"use_proxy"`
	MinimumSkipLength *int   `yaml:"minimum_skip_length" json:"minimum_skip_length"`
	JoinName          string `yaml:"join_name" json:"join_name"`
}

// ImportSeed loads a legacy config file from dataDir into an empty store.
// config.yaml wins over config.json; a populated store is never touched.
func (s *Store) ImportSeed(dataDir string) error {
	empty, err := s.Empty()
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}

	seed, path, err := readSeedFile(dataDir)
	if err != nil {
		return err
	}
	if seed == nil {
		return nil
	}
	s.logger.Printf("STORE: importing legacy config from %s", path)

	patch := SettingsPatch{}
	if seed.APIKey != "" {
		patch["api_key"] = seed.APIKey
	}
	if seed.JoinName != "" {
		patch["join_name"] = seed.JoinName
	}
	if seed.SkipCountTracking != nil {
		patch["skip_count_tracking"] = *seed.SkipCountTracking
	}
	if seed.MuteAds != nil {
		patch["mute_ads"] = *seed.MuteAds
	}
	if seed.SkipAds != nil {
		patch["skip_ads"] = *seed.SkipAds
	}
	if seed.AutoPlay != nil {
		patch["auto_play"] = *seed.AutoPlay
	}
	if seed.UseProxy != nil {
		patch["use_proxy"] = *seed.UseProxy
	}
	if seed.MinimumSkipLength != nil {
		patch["minimum_skip_length"] = float64(*seed.MinimumSkipLength)
	}
	if len(patch) > 0 {
		if err := s.UpdateSettings(patch); err != nil {
			return fmt.Errorf("import settings: %w", err)
		}
	}

	if len(seed.SkipCategories) > 0 {
		valid := make([]string, 0, len(seed.SkipCategories))
		for _, category := range seed.SkipCategories {
			if prefs.ValidCategory(category) {
				valid = append(valid, category)
			} else {
				s.logger.Printf("STORE: skipping unknown seed category %q", category)
			}
		}
		if err := s.SetSkipCategories(valid); err != nil {
			return fmt.Errorf("import skip categories: %w", err)
		}
	}

	for _, channel := range seed.ChannelWhitelist {
		if channel.ID == "" {
			continue
		}
		if err := s.AddChannel(prefs.Channel{ID: channel.ID, Name: channel.Name}); err != nil {
			s.logger.Printf("STORE: seed channel %s: %v", channel.ID, err)
		}
	}

	for _, device := range seed.Devices {
		if device.ScreenID == "" {
			continue
		}
		snapshot := DeviceSnapshot{
			ScreenID: device.ScreenID,
			Name:     device.Name,
			OffsetMS: int64(device.Offset * 1000),
		}
		if err := s.AddDevice(snapshot); err != nil {
			s.logger.Printf("STORE: seed device %s: %v", device.ScreenID, err)
		}
	}

	s.logger.Printf("STORE: imported %d devices from seed", len(seed.Devices))
	return nil
}

func readSeedFile(dataDir string) (*seedFile, string, error) {
	yamlPath := filepath.Join(dataDir, "config.yaml")
	if data, err := os.ReadFile(yamlPath); err == nil {
		var seed seedFile
		if err := yaml.Unmarshal(data, &seed); err != nil {
			return nil, "", fmt.Errorf("parse %s: %w", yamlPath, err)
		}
		return &seed, yamlPath, nil
	} else if !os.IsNotExist(err) {
		return nil, "", err
	}

	jsonPath := filepath.Join(dataDir, "config.json")
	if data, err := os.ReadFile(jsonPath); err == nil {
		var seed seedFile
		if err := json.Unmarshal(data, &seed); err != nil {
			return nil, "", fmt.Errorf("parse %s: %w", jsonPath, err)
		}
		return &seed, jsonPath, nil
	} else if !os.IsNotExist(err) {
		return nil, "", err
	}

	return nil, "", nil
}
