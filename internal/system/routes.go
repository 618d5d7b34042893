package system

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/loungeskip/loungeskip/internal/api"
	"github.com/loungeskip/loungeskip/internal/stats"
)

// Service exposes health and statistics endpoints.
type Service struct {
	recorder *stats.Recorder
	started  time.Time
	version  string
}

// NewService creates the system service.
func NewService(recorder *stats.Recorder, version string) *Service {
	return &Service{recorder: recorder, started: time.Now(), version: version}
}

// RegisterRoutes mounts the system endpoints.
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Method("GET", "/health", api.Handler(s.handleHealth))
	r.Method("GET", "/stats", api.Handler(s.handleStats))
	r.Method("GET", "/stats/{deviceID}", api.Handler(s.handleDeviceStats))
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) error {
	return api.WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) error {
	snapshot, err := s.recorder.LoadAll()
	if err != nil {
		return err
	}
	return api.SingleResponse(w, r, http.StatusOK, "stats", snapshot)
}

func (s *Service) handleDeviceStats(w http.ResponseWriter, r *http.Request) error {
	deviceID := chi.URLParam(r, "deviceID")
	snapshot, err := s.recorder.LoadDevice(deviceID)
	if err != nil {
		return err
	}
	return api.SingleResponse(w, r, http.StatusOK, "stats", snapshot)
}
