package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/loungeskip/loungeskip/internal/apperrors"
	"github.com/loungeskip/loungeskip/internal/db"
	"github.com/loungeskip/loungeskip/internal/prefs"
)

// DeviceSnapshot is one configured device row. OffsetMS is the skip lead
// time in milliseconds; it is stored as an integer so snapshot comparison
// is exact.
type DeviceSnapshot struct {
	ScreenID  string
	Name      string
	OffsetMS  int64
	Overrides prefs.Overrides
}

// OffsetSeconds converts the stored millisecond offset.
func (d DeviceSnapshot) OffsetSeconds() float64 {
	return float64(d.OffsetMS) / 1000.0
}

// Changed reports whether two snapshots differ in a way that requires a
// session restart. Offsets within a millisecond are considered equal.
func (d DeviceSnapshot) Changed(other DeviceSnapshot) bool {
	if d.Name != other.Name {
		return true
	}
	delta := d.OffsetMS - other.OffsetMS
	if delta < 0 {
		delta = -delta
	}
	if delta > 1 {
		return true
	}
	return !d.Overrides.Equal(other.Overrides)
}

// Store is the persistence layer for devices, settings, skip categories
// and the channel whitelist.
type Store struct {
	reader *sql.DB
	writer *sql.DB
	logger *log.Logger
}

// New creates a store over the shared database pair.
func New(pair *db.DBPair, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{reader: pair.Reader(), writer: pair.Writer(), logger: logger}
}

// Devices returns all configured devices ordered by screen id.
func (s *Store) Devices() ([]DeviceSnapshot, error) {
	rows, err := s.reader.Query("SELECT screen_id, name, offset_ms, overrides FROM devices ORDER BY screen_id")
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var devices []DeviceSnapshot
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

// Device returns one device by screen id.
func (s *Store) Device(screenID string) (DeviceSnapshot, error) {
	row := s.reader.QueryRow("SELECT screen_id, name, offset_ms, overrides FROM devices WHERE screen_id = ?", screenID)
	device, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DeviceSnapshot{}, apperrors.NewNotFoundResource("device", screenID)
	}
	return device, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (DeviceSnapshot, error) {
	var device DeviceSnapshot
	var name, overrides sql.NullString
	var offset sql.NullInt64
	if err := row.Scan(&device.ScreenID, &name, &offset, &overrides); err != nil {
		return DeviceSnapshot{}, err
	}
	device.Name = name.String
	device.OffsetMS = offset.Int64
	device.Overrides = prefs.ParseStored(overrides.String)
	return device, nil
}

// AddDevice inserts a device row. Duplicate screen ids conflict.
func (s *Store) AddDevice(device DeviceSnapshot) error {
	if device.ScreenID == "" {
		return apperrors.NewValidationError("screen_id is required", nil)
	}
	result, err := s.writer.Exec(
		"INSERT OR IGNORE INTO devices(screen_id, name, offset_ms, overrides) VALUES(?, ?, ?, ?)",
		device.ScreenID, device.Name, device.OffsetMS, device.Overrides.Encode(),
	)
	if err != nil {
		return fmt.Errorf("insert device: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.NewConflictError(fmt.Sprintf("device %s already exists", device.ScreenID), nil)
	}
	return nil
}

// DeviceUpdate is a partial device mutation. Nil fields are untouched.
type DeviceUpdate struct {
	Name          *string
	OffsetMS      *int64
	Overrides     map[string]any
	OverridesNull bool
	HasOverrides  bool
}

// UpdateDevice applies a partial update and returns the resulting snapshot.
func (s *Store) UpdateDevice(screenID string, update DeviceUpdate) (DeviceSnapshot, error) {
	device, err := s.Device(screenID)
	if err != nil {
		return DeviceSnapshot{}, err
	}

	if update.Name != nil {
		device.Name = strings.TrimSpace(*update.Name)
	}
	if update.OffsetMS != nil {
		device.OffsetMS = *update.OffsetMS
	}
	if update.HasOverrides {
		merged, err := prefs.MergeOverrides(device.Overrides, update.Overrides, update.OverridesNull)
		if err != nil {
			return DeviceSnapshot{}, apperrors.NewValidationError(err.Error(), nil)
		}
		device.Overrides = merged
	}

	_, err = s.writer.Exec(
		"UPDATE devices SET name = ?, offset_ms = ?, overrides = ? WHERE screen_id = ?",
		device.Name, device.OffsetMS, device.Overrides.Encode(), device.ScreenID,
	)
	if err != nil {
		return DeviceSnapshot{}, fmt.Errorf("update device: %w", err)
	}
	return device, nil
}

// DeleteDevice removes a device row.
func (s *Store) DeleteDevice(screenID string) error {
	result, err := s.writer.Exec("DELETE FROM devices WHERE screen_id = ?", screenID)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.NewNotFoundResource("device", screenID)
	}
	return nil
}

// Global reads the full shared configuration snapshot.
func (s *Store) Global() (prefs.Global, error) {
	global := prefs.Global{Settings: prefs.DefaultSettings()}

	rows, err := s.reader.Query("SELECT key, value FROM settings")
	if err != nil {
		return prefs.Global{}, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return prefs.Global{}, err
		}
		applySetting(&global.Settings, key, value)
	}
	if err := rows.Err(); err != nil {
		return prefs.Global{}, err
	}

	global.SkipCategories, err = s.SkipCategories()
	if err != nil {
		return prefs.Global{}, err
	}
	global.ChannelWhitelist, err = s.Channels()
	if err != nil {
		return prefs.Global{}, err
	}
	return global, nil
}

func applySetting(settings *prefs.Settings, key, value string) {
	switch key {
	case "api_key":
		settings.APIKey = value
	case "join_name":
		settings.JoinName = value
	case "skip_count_tracking":
		settings.SkipCountTracking = parseBoolSetting(value, settings.SkipCountTracking)
	case "mute_ads":
		settings.MuteAds = parseBoolSetting(value, settings.MuteAds)
	case "skip_ads":
		settings.SkipAds = parseBoolSetting(value, settings.SkipAds)
	case "auto_play":
		settings.AutoPlay = parseBoolSetting(value, settings.AutoPlay)
	case "use_proxy":
		settings.UseProxy = parseBoolSetting(value, settings.UseProxy)
	case "minimum_skip_length":
		if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
			settings.MinimumSkipLength = parsed
		}
	}
}

func parseBoolSetting(value string, fallback bool) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

// SettingsPatch is a partial settings mutation from the API.
type SettingsPatch map[string]any

var settingKeys = map[string]struct{}{
	"api_key":             {},
	"join_name":           {},
	"skip_count_tracking": {},
	"mute_ads":            {},
	"skip_ads":            {},
	"auto_play":           {},
	"use_proxy":           {},
	"minimum_skip_length": {},
}

// UpdateSettings persists the recognized keys of a patch in one transaction.
// Unknown keys are rejected so typos surface instead of silently vanishing.
func (s *Store) UpdateSettings(patch SettingsPatch) error {
	for key := range patch {
		if _, ok := settingKeys[key]; !ok {
			return apperrors.NewValidationError(fmt.Sprintf("unknown setting: %s", key), nil)
		}
	}

	tx, err := s.writer.Begin()
	if err != nil {
		return fmt.Errorf("begin settings tx: %w", err)
	}
	defer tx.Rollback()

	for key, raw := range patch {
		value, err := encodeSetting(key, raw)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			"INSERT INTO settings(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			key, value,
		); err != nil {
			return fmt.Errorf("write setting %s: %w", key, err)
		}
	}
	return tx.Commit()
}

func encodeSetting(key string, raw any) (string, error) {
	switch key {
	case "api_key", "join_name":
		value, ok := raw.(string)
		if !ok {
			return "", apperrors.NewValidationError(fmt.Sprintf("%s must be a string", key), nil)
		}
		return strings.TrimSpace(value), nil
	case "minimum_skip_length":
		switch value := raw.(type) {
		case float64:
			if value < 0 || value != float64(int(value)) {
				return "", apperrors.NewValidationError("minimum_skip_length must be a non-negative integer", nil)
			}
			return strconv.Itoa(int(value)), nil
		case int:
			if value < 0 {
				return "", apperrors.NewValidationError("minimum_skip_length must be a non-negative integer", nil)
			}
			return strconv.Itoa(value), nil
		}
		return "", apperrors.NewValidationError("minimum_skip_length must be a non-negative integer", nil)
	default:
		value, ok := raw.(bool)
		if !ok {
			return "", apperrors.NewValidationError(fmt.Sprintf("%s must be a boolean", key), nil)
		}
		return strconv.FormatBool(value), nil
	}
}

// SkipCategories returns the globally enabled categories.
func (s *Store) SkipCategories() ([]string, error) {
	rows, err := s.reader.Query("SELECT category FROM skip_categories ORDER BY category")
	if err != nil {
		return nil, fmt.Errorf("query skip categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

// SetSkipCategories replaces the global category set.
func (s *Store) SetSkipCategories(categories []string) error {
	seen := make(map[string]struct{})
	deduped := make([]string, 0, len(categories))
	for _, category := range categories {
		category = strings.TrimSpace(category)
		if category == "" {
			continue
		}
		if !prefs.ValidCategory(category) {
			return apperrors.NewValidationError(fmt.Sprintf("invalid skip category: %s", category), nil)
		}
		if _, dup := seen[category]; dup {
			continue
		}
		seen[category] = struct{}{}
		deduped = append(deduped, category)
	}

	tx, err := s.writer.Begin()
	if err != nil {
		return fmt.Errorf("begin categories tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM skip_categories"); err != nil {
		return fmt.Errorf("clear skip categories: %w", err)
	}
	for _, category := range deduped {
		if _, err := tx.Exec("INSERT INTO skip_categories(category) VALUES(?)", category); err != nil {
			return fmt.Errorf("insert skip category: %w", err)
		}
	}
	return tx.Commit()
}

// Channels returns the global channel whitelist.
func (s *Store) Channels() ([]prefs.Channel, error) {
	rows, err := s.reader.Query("SELECT id, name FROM channel_whitelist ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("query channel whitelist: %w", err)
	}
	defer rows.Close()

	var channels []prefs.Channel
	for rows.Next() {
		var channel prefs.Channel
		if err := rows.Scan(&channel.ID, &channel.Name); err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	}
	return channels, rows.Err()
}

// AddChannel adds a channel to the global whitelist.
func (s *Store) AddChannel(channel prefs.Channel) error {
	channel.ID = strings.TrimSpace(channel.ID)
	if channel.ID == "" {
		return apperrors.NewValidationError("channel id is required", nil)
	}
	if strings.TrimSpace(channel.Name) == "" {
		channel.Name = channel.ID
	}
	result, err := s.writer.Exec(
		"INSERT OR IGNORE INTO channel_whitelist(id, name) VALUES(?, ?)",
		channel.ID, channel.Name,
	)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.NewConflictError(fmt.Sprintf("channel %s already whitelisted", channel.ID), nil)
	}
	return nil
}

// DeleteChannel removes a channel from the global whitelist.
func (s *Store) DeleteChannel(channelID string) error {
	result, err := s.writer.Exec("DELETE FROM channel_whitelist WHERE id = ?", channelID)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.NewNotFoundResource("channel", channelID)
	}
	return nil
}

// Empty reports whether the store has never been populated. Used to decide
// whether a seed file should be imported on startup.
func (s *Store) Empty() (bool, error) {
	var count int
	err := s.reader.QueryRow(`
		SELECT (SELECT COUNT(*) FROM settings)
		     + (SELECT COUNT(*) FROM devices)
		     + (SELECT COUNT(*) FROM skip_categories)
	`).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count store rows: %w", err)
	}
	return count == 0, nil
}
