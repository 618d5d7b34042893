package server

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/loungeskip/loungeskip/internal/api"
	"github.com/loungeskip/loungeskip/internal/auth"
	"github.com/loungeskip/loungeskip/internal/channels"
	"github.com/loungeskip/loungeskip/internal/config"
	"github.com/loungeskip/loungeskip/internal/devices"
	"github.com/loungeskip/loungeskip/internal/runtime"
	"github.com/loungeskip/loungeskip/internal/settings"
	"github.com/loungeskip/loungeskip/internal/stats"
	"github.com/loungeskip/loungeskip/internal/store"
	"github.com/loungeskip/loungeskip/internal/system"
)

// Version is stamped by the build.
var Version = "dev"

// NewHandler wires the management API. The returned shutdown function
// releases resources owned by the handler; currently there are none, but
// callers treat it uniformly.
func NewHandler(cfg config.Config, st *store.Store, recorder *stats.Recorder, rt *runtime.Runtime, logger *log.Logger) (http.Handler, func()) {
	if logger == nil {
		logger = log.Default()
	}

	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpirySec)

	authService := auth.NewService(issuer, cfg.AuthUsername, cfg.AuthPassword)
	deviceService := devices.NewService(st, rt.Provider(), cfg.LoungeEndpoint, logger)
	channelService := channels.NewService(st, rt.YouTube(), logger)
	settingsService := settings.NewService(st, logger)
	systemService := system.NewService(recorder, Version)

	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.Use(requestLogger(logger))
	r.Use(api.RequestIDMiddleware)
	r.Use(api.RecovererMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Use(issuer.Middleware)
		authService.RegisterRoutes(r)
		deviceService.RegisterRoutes(r)
		channelService.RegisterRoutes(r)
		settingsService.RegisterRoutes(r)
		systemService.RegisterRoutes(r)
	})

	shutdown := func() {}
	return r, shutdown
}

// requestLogger logs one line per request with status and duration.
func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Printf("API: %s %s %d in %s", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
		})
	}
}
