package settings

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loungeskip/loungeskip/internal/api"
	"github.com/loungeskip/loungeskip/internal/apperrors"
	"github.com/loungeskip/loungeskip/internal/prefs"
	"github.com/loungeskip/loungeskip/internal/store"
)

// Service exposes the global settings and skip-category configuration.
type Service struct {
	store  *store.Store
	logger *log.Logger
}

// NewService creates the settings service.
func NewService(st *store.Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{store: st, logger: logger}
}

// RegisterRoutes mounts the settings endpoints.
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Method("GET", "/config", api.Handler(s.handleGet))
	r.Method("PATCH", "/config", api.Handler(s.handlePatch))
	r.Method("GET", "/skip-categories/options", api.Handler(s.handleCategoryOptions))
	r.Method("PUT", "/skip-categories", api.Handler(s.handleSetCategories))
}

type configJSON struct {
	prefs.Settings
	SkipCategories []string `json:"skip_categories"`
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) error {
	global, err := s.store.Global()
	if err != nil {
		return err
	}
	out := configJSON{Settings: global.Settings, SkipCategories: global.SkipCategories}
	if out.SkipCategories == nil {
		out.SkipCategories = []string{}
	}
	return api.SingleResponse(w, r, http.StatusOK, "config", out)
}

func (s *Service) handlePatch(w http.ResponseWriter, r *http.Request) error {
	var patch store.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if len(patch) == 0 {
		return apperrors.NewValidationError("no settings provided", nil)
	}
	if err := s.store.UpdateSettings(patch); err != nil {
		return err
	}
	s.logger.Printf("SETTINGS: updated %d keys", len(patch))
	return s.handleGet(w, r)
}

func (s *Service) handleCategoryOptions(w http.ResponseWriter, r *http.Request) error {
	return api.ListResponse(w, r, http.StatusOK, "options", prefs.CategoryCatalogue())
}

func (s *Service) handleSetCategories(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		SkipCategories []string `json:"skip_categories"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if err := s.store.SetSkipCategories(body.SkipCategories); err != nil {
		return err
	}
	return s.handleGet(w, r)
}
