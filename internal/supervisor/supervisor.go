package supervisor

import (
	"context"
	"log"
	"time"

	"github.com/loungeskip/loungeskip/internal/controller"
	"github.com/loungeskip/loungeskip/internal/httpclient"
	"github.com/loungeskip/loungeskip/internal/lounge"
	"github.com/loungeskip/loungeskip/internal/prefs"
	"github.com/loungeskip/loungeskip/internal/store"
)

const (
	authRetryInterval = 10 * time.Second
	availPollInterval = 10 * time.Second
	restartDelay      = 5 * time.Second
)

// Deps are the shared collaborators a supervisor wires into its session
// and controller.
type Deps struct {
	Provider       *httpclient.Provider
	Segments       controller.SegmentProvider
	Sink           controller.Sink
	Channels       controller.ChannelResolver
	LoungeEndpoint string
	Logger         *log.Logger
}

// Supervisor owns one device's session and controller plus the loop that
// keeps them alive. Stop joins everything.
type Supervisor struct {
	snapshot   store.DeviceSnapshot
	prefs      prefs.Preferences
	session    *lounge.Session
	controller *controller.Controller
	logger     *log.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// Start resolves the device's effective preferences, builds its session
// and controller, and launches the supervision loop.
func Start(snapshot store.DeviceSnapshot, global prefs.Global, deps Deps) *Supervisor {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}

	effective := prefs.Resolve(global, snapshot.Overrides)
	effective.OffsetSeconds = snapshot.OffsetSeconds()

	session := lounge.NewSession(deps.LoungeEndpoint, snapshot.ScreenID, effective.JoinName, deps.Provider, logger)

	var channels controller.ChannelResolver
	if len(effective.ChannelWhitelist) > 0 {
		channels = deps.Channels
	}
	ctrl := controller.New(snapshot.ScreenID, effective, session, deps.Segments, deps.Sink, channels, logger)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		snapshot:   snapshot,
		prefs:      effective,
		session:    session,
		controller: ctrl,
		logger:     logger,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// Snapshot returns the device snapshot this supervisor was started with.
func (s *Supervisor) Snapshot() store.DeviceSnapshot { return s.snapshot }

// RefreshAuth rotates the session's token. Called by the daily sweep.
func (s *Supervisor) RefreshAuth(ctx context.Context) error {
	return s.session.RefreshAuth(ctx)
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)
	screenID := s.snapshot.ScreenID
	s.logger.Printf("SUPERVISOR: %s starting", screenID)

	for ctx.Err() == nil {
		if !s.session.Linked() {
			if err := s.session.RefreshAuth(ctx); err != nil {
				s.logger.Printf("SUPERVISOR: %s auth refresh: %v", screenID, err)
				if !sleepCtx(ctx, authRetryInterval) {
					return
				}
				continue
			}
		}

		if !s.session.IsAvailable(ctx) {
			if !sleepCtx(ctx, availPollInterval) {
				return
			}
			continue
		}

		if err := s.session.Connect(ctx); err != nil {
			s.logger.Printf("SUPERVISOR: %s connect: %v", screenID, err)
			if !sleepCtx(ctx, restartDelay) {
				return
			}
			continue
		}

		if err := s.session.SetAutoplayMode(ctx, s.prefs.AutoPlay); err != nil {
			s.logger.Printf("SUPERVISOR: %s set autoplay: %v", screenID, err)
		}

		sub, err := s.session.Subscribe(ctx, s.controller)
		if err != nil {
			s.logger.Printf("SUPERVISOR: %s subscribe: %v", screenID, err)
			if !sleepCtx(ctx, restartDelay) {
				return
			}
			continue
		}
		s.logger.Printf("SUPERVISOR: %s subscribed", screenID)

		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
		}

		if !sleepCtx(ctx, restartDelay) {
			return
		}
	}
}

// Stop cancels the loop, disconnects the session and joins the
// controller. The controller never outlives its session's shutdown.
func (s *Supervisor) Stop() {
	s.cancel()
	s.session.Disconnect()
	<-s.done
	s.controller.Close()
	s.logger.Printf("SUPERVISOR: %s stopped", s.snapshot.ScreenID)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
