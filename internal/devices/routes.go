package devices

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/loungeskip/loungeskip/internal/api"
	"github.com/loungeskip/loungeskip/internal/apperrors"
	"github.com/loungeskip/loungeskip/internal/httpclient"
	"github.com/loungeskip/loungeskip/internal/lounge"
	"github.com/loungeskip/loungeskip/internal/store"
)

// Service exposes device CRUD and pairing. Mutations land in the store;
// the reconciler picks them up on its next tick.
type Service struct {
	store          *store.Store
	provider       *httpclient.Provider
	loungeEndpoint string
	logger         *log.Logger
}

// NewService creates the devices service.
func NewService(st *store.Store, provider *httpclient.Provider, loungeEndpoint string, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{store: st, provider: provider, loungeEndpoint: loungeEndpoint, logger: logger}
}

// RegisterRoutes mounts the device endpoints.
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Method("GET", "/devices", api.Handler(s.handleList))
	r.Method("POST", "/devices", api.Handler(s.handleAdd))
	r.Method("POST", "/devices/pair", api.Handler(s.handlePair))
	r.Method("PUT", "/devices/{screenID}", api.Handler(s.handleUpdate))
	r.Method("DELETE", "/devices/{screenID}", api.Handler(s.handleDelete))
}

type deviceJSON struct {
	ScreenID  string         `json:"screen_id"`
	Name      string         `json:"name"`
	Offset    float64        `json:"offset"`
	Overrides map[string]any `json:"overrides,omitempty"`
}

func toJSON(device store.DeviceSnapshot) deviceJSON {
	out := deviceJSON{
		ScreenID: device.ScreenID,
		Name:     device.Name,
		Offset:   device.OffsetSeconds(),
	}
	if !device.Overrides.IsZero() {
		overrides := make(map[string]any)
		if len(device.Overrides.Automation) > 0 {
			overrides["automation"] = device.Overrides.Automation
		}
		if device.Overrides.SkipCategories != nil {
			overrides["skip_categories"] = device.Overrides.SkipCategories
		}
		if device.Overrides.ChannelWhitelist != nil {
			overrides["channel_whitelist"] = device.Overrides.ChannelWhitelist
		}
		out.Overrides = overrides
	}
	return out
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) error {
	devices, err := s.store.Devices()
	if err != nil {
		return err
	}
	items := make([]deviceJSON, 0, len(devices))
	for _, device := range devices {
		items = append(items, toJSON(device))
	}
	return api.ListResponse(w, r, http.StatusOK, "devices", items)
}

// handleAdd enrolls a device whose screen id is already known, without
// going through the pairing flow.
func (s *Service) handleAdd(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		ScreenID string  `json:"screen_id"`
		Name     string  `json:"name"`
		Offset   float64 `json:"offset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	body.ScreenID = strings.TrimSpace(body.ScreenID)
	if body.ScreenID == "" {
		return apperrors.NewValidationError("screen_id is required", nil)
	}
	if body.Offset < 0 {
		return apperrors.NewValidationError("offset must be non-negative", nil)
	}

	device := store.DeviceSnapshot{
		ScreenID: body.ScreenID,
		Name:     body.Name,
		OffsetMS: int64(body.Offset * 1000),
	}
	if err := s.store.AddDevice(device); err != nil {
		return err
	}
	s.logger.Printf("DEVICES: added %s (%s)", device.ScreenID, device.Name)
	return api.SingleResponse(w, r, http.StatusCreated, "device", toJSON(device))
}

func (s *Service) handlePair(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		PairingCode string `json:"pairing_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if body.PairingCode == "" {
		return apperrors.NewValidationError("pairing_code is required", nil)
	}

	result, err := lounge.Pair(r.Context(), s.provider, s.loungeEndpoint, body.PairingCode)
	if errors.Is(err, lounge.ErrInvalidPairingCode) {
		return apperrors.NewAppError(apperrors.ErrorCodePairingInvalid, "pairing code rejected", http.StatusBadRequest, nil)
	}
	if err != nil {
		s.logger.Printf("DEVICES: pairing failed: %v", err)
		return apperrors.NewAppError(apperrors.ErrorCodePairingFailed, "pairing failed", http.StatusBadGateway, nil)
	}

	device := store.DeviceSnapshot{ScreenID: result.ScreenID, Name: result.Name}
	if err := s.store.AddDevice(device); err != nil {
		return err
	}
	s.logger.Printf("DEVICES: paired %s (%s)", result.ScreenID, result.Name)
	return api.SingleResponse(w, r, http.StatusCreated, "device", toJSON(device))
}

func (s *Service) handleUpdate(w http.ResponseWriter, r *http.Request) error {
	screenID := chi.URLParam(r, "screenID")

	var body struct {
		Name      *string          `json:"name"`
		Offset    *float64         `json:"offset"`
		Overrides *json.RawMessage `json:"overrides"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}

	update := store.DeviceUpdate{Name: body.Name}
	if body.Offset != nil {
		if *body.Offset < 0 {
			return apperrors.NewValidationError("offset must be non-negative", nil)
		}
		offsetMS := int64(*body.Offset * 1000)
		update.OffsetMS = &offsetMS
	}
	if body.Overrides != nil {
		update.HasOverrides = true
		if string(*body.Overrides) == "null" {
			update.OverridesNull = true
		} else {
			var payload map[string]any
			if err := json.Unmarshal(*body.Overrides, &payload); err != nil {
				return apperrors.NewValidationError("overrides must be an object or null", nil)
			}
			update.Overrides = payload
		}
	}

	device, err := s.store.UpdateDevice(screenID, update)
	if err != nil {
		return err
	}
	return api.SingleResponse(w, r, http.StatusOK, "device", toJSON(device))
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) error {
	screenID := chi.URLParam(r, "screenID")
	if err := s.store.DeleteDevice(screenID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
