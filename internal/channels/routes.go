package channels

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/loungeskip/loungeskip/internal/api"
	"github.com/loungeskip/loungeskip/internal/apperrors"
	"github.com/loungeskip/loungeskip/internal/prefs"
	"github.com/loungeskip/loungeskip/internal/store"
	"github.com/loungeskip/loungeskip/internal/youtube"
)

// Service manages the global channel whitelist and channel search.
type Service struct {
	store   *store.Store
	youtube *youtube.Client
	logger  *log.Logger
}

// NewService creates the channels service.
func NewService(st *store.Store, yt *youtube.Client, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{store: st, youtube: yt, logger: logger}
}

// RegisterRoutes mounts the channel endpoints.
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Method("GET", "/channels", api.Handler(s.handleList))
	r.Method("POST", "/channels", api.Handler(s.handleAdd))
	r.Method("DELETE", "/channels/{channelID}", api.Handler(s.handleDelete))
	r.Method("GET", "/channels/search", api.Handler(s.handleSearch))
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) error {
	channels, err := s.store.Channels()
	if err != nil {
		return err
	}
	if channels == nil {
		channels = []prefs.Channel{}
	}
	return api.ListResponse(w, r, http.StatusOK, "channels", channels)
}

func (s *Service) handleAdd(w http.ResponseWriter, r *http.Request) error {
	var body prefs.Channel
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if err := s.store.AddChannel(body); err != nil {
		return err
	}
	s.logger.Printf("CHANNELS: whitelisted %s (%s)", body.ID, body.Name)
	return api.SingleResponse(w, r, http.StatusCreated, "channel", body)
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) error {
	channelID := chi.URLParam(r, "channelID")
	if err := s.store.DeleteChannel(channelID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) error {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		return apperrors.NewValidationError("query is required", nil)
	}

	results, err := s.youtube.SearchChannels(r.Context(), query)
	if err != nil {
		if appErr, ok := err.(*apperrors.AppError); ok {
			return appErr
		}
		s.logger.Printf("CHANNELS: search %q: %v", query, err)
		return apperrors.NewAppError(apperrors.ErrorCodeSearchFailed, "channel search failed", http.StatusBadGateway, nil)
	}
	return api.ListResponse(w, r, http.StatusOK, "results", results)
}
