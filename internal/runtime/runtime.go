package runtime

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/loungeskip/loungeskip/internal/config"
	"github.com/loungeskip/loungeskip/internal/httpclient"
	"github.com/loungeskip/loungeskip/internal/prefs"
	"github.com/loungeskip/loungeskip/internal/reconciler"
	"github.com/loungeskip/loungeskip/internal/segments"
	"github.com/loungeskip/loungeskip/internal/stats"
	"github.com/loungeskip/loungeskip/internal/store"
	"github.com/loungeskip/loungeskip/internal/supervisor"
	"github.com/loungeskip/loungeskip/internal/youtube"
)

// Runtime is the control plane: the shared outbound client, the segment
// and channel clients, the reconciler and the daily auth-refresh sweep.
type Runtime struct {
	cfg        config.Config
	store      *store.Store
	provider   *httpclient.Provider
	segments   *segments.Client
	youtube    *youtube.Client
	reconciler *reconciler.Reconciler
	cron       *cron.Cron
	logger     *log.Logger
}

// New assembles the control plane. The proxy policy and API key follow the
// stored settings; the reconciler re-applies them every tick.
func New(cfg config.Config, st *store.Store, sink *stats.Recorder, logger *log.Logger) (*Runtime, error) {
	if logger == nil {
		logger = log.Default()
	}

	global, err := st.Global()
	if err != nil {
		return nil, err
	}

	provider := httpclient.NewProvider(global.UseProxy, cfg.HTTPTracing, logger)
	segmentClient := segments.NewClient(provider, "", logger)
	youtubeClient := youtube.NewClient(provider, global.APIKey)

	rt := &Runtime{
		cfg:      cfg,
		store:    st,
		provider: provider,
		segments: segmentClient,
		youtube:  youtubeClient,
		logger:   logger,
	}

	deps := supervisor.Deps{
		Provider:       provider,
		Segments:       segmentClient,
		Sink:           sink,
		Channels:       youtubeClient,
		LoungeEndpoint: cfg.LoungeEndpoint,
		Logger:         logger,
	}
	rt.reconciler = reconciler.New(st, deps, rt.onSettings, logger)
	return rt, nil
}

// onSettings tracks settings the shared clients depend on. A proxy policy
// flip rebuilds the outbound client for every new connection.
func (rt *Runtime) onSettings(global prefs.Global) {
	rt.provider.SetProxyPolicy(global.UseProxy)
	rt.youtube.SetAPIKey(global.APIKey)
}

// YouTube returns the shared Data API client for the management surface.
func (rt *Runtime) YouTube() *youtube.Client { return rt.youtube }

// Provider returns the shared outbound client provider.
func (rt *Runtime) Provider() *httpclient.Provider { return rt.provider }

// Run starts the reconciler and the daily auth sweep, then blocks until
// ctx is cancelled and the teardown completes.
func (rt *Runtime) Run(ctx context.Context) error {
	rt.cron = cron.New()
	if _, err := rt.cron.AddFunc("@daily", rt.refreshAllAuth); err != nil {
		return err
	}
	rt.cron.Start()

	rt.reconciler.Run()
	rt.logger.Printf("RUNTIME: control plane started")

	<-ctx.Done()
	rt.logger.Printf("RUNTIME: shutting down")

	cronCtx := rt.cron.Stop()
	rt.reconciler.Shutdown()
	<-cronCtx.Done()
	rt.provider.Close()
	rt.logger.Printf("RUNTIME: control plane stopped")
	return nil
}

// refreshAllAuth rotates every live session's token. Sessions recover from
// auth lapses on their own; this keeps tokens from expiring in the first
// place.
func (rt *Runtime) refreshAllAuth() {
	supervisors := rt.reconciler.Supervisors()
	rt.logger.Printf("RUNTIME: daily auth sweep over %d devices", len(supervisors))
	for _, sup := range supervisors {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := sup.RefreshAuth(ctx); err != nil {
			rt.logger.Printf("RUNTIME: auth sweep %s: %v", sup.Snapshot().ScreenID, err)
		}
		cancel()
	}
}
