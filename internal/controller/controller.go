package controller

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/loungeskip/loungeskip/internal/lounge"
	"github.com/loungeskip/loungeskip/internal/prefs"
	"github.com/loungeskip/loungeskip/internal/segments"
)

const (
	watchFlushInterval = 5 * time.Second
	heartbeatInterval  = 5 * time.Second

	// skipEpsilon guards against scheduling a seek whose target is
	// effectively the current position.
	skipEpsilon = 0.25

	// planTolerance treats two plans for the same video whose starts are
	// this close as the same plan.
	planTolerance = 0.05
)

// Seeker is the command surface the controller needs from its session.
type Seeker interface {
	SeekTo(ctx context.Context, positionSeconds float64) error
	SetMuted(ctx context.Context, muted bool) error
	SkipAd(ctx context.Context) error
}

// SegmentProvider resolves skip ranges and acknowledges fired skips.
type SegmentProvider interface {
	Segments(ctx context.Context, videoID string, categories []string, minimumLength int) ([]segments.SkipRange, error)
	MarkViewed(ctx context.Context, uuids []string)
}

// Sink records playback statistics.
type Sink interface {
	RecordVideoStarted(deviceID string) error
	RecordWatchTime(deviceID string, seconds float64) error
	RecordSegmentSkip(deviceID string, count int, savedSeconds float64, categories []string) error
	MarkDeviceSeen(deviceID string) error
}

// ChannelResolver maps a video to its publishing channel, for whitelist
// checks. Optional; a nil resolver disables whitelisting by channel.
type ChannelResolver interface {
	VideoChannel(ctx context.Context, videoID string) (string, error)
}

type update struct {
	state      lounge.PlaybackState
	receivedAt time.Time
}

type scheduledSkip struct {
	videoID    string
	cpn        string
	planStart  float64
	planEnd    float64
	uuids      []string
	categories []string
	cancel     chan struct{}
}

// Controller converts one device's playback-state stream into watch-time
// accounting, at most one scheduled seek, and skip statistics. It is the
// session's event handler; updates flow through a coalescing mailbox of
// capacity one so only the most recent state is ever processed.
type Controller struct {
	deviceID string
	prefs    prefs.Preferences
	session  Seeker
	provider SegmentProvider
	sink     Sink
	channels ChannelResolver
	logger   *log.Logger

	mailbox chan update
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu        sync.Mutex
	videoID   string
	cpn       string
	ranges    []segments.SkipRange
	completed map[string]struct{}
	skip      *scheduledSkip

	watching  bool
	lastFlush time.Time
	muted     bool

	closeOnce sync.Once
}

// New builds a controller and starts its processor and heartbeat.
func New(deviceID string, preferences prefs.Preferences, session Seeker, provider SegmentProvider, sink Sink, channels ChannelResolver, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	c := &Controller{
		deviceID:  deviceID,
		prefs:     preferences,
		session:   session,
		provider:  provider,
		sink:      sink,
		channels:  channels,
		logger:    logger,
		mailbox:   make(chan update, 1),
		stopCh:    make(chan struct{}),
		completed: make(map[string]struct{}),
	}
	c.wg.Add(2)
	go c.processLoop()
	go c.heartbeatLoop()
	return c
}

// OnPlaybackState enqueues a state update, replacing any unprocessed
// predecessor. Never blocks.
func (c *Controller) OnPlaybackState(state lounge.PlaybackState, receivedAt time.Time) {
	u := update{state: state, receivedAt: receivedAt}
	for {
		select {
		case c.mailbox <- u:
			return
		default:
			select {
			case <-c.mailbox:
			default:
			}
		}
	}
}

func (c *Controller) processLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopCh:
			return
		case u := <-c.mailbox:
			c.safeProcess(u)
		}
	}
}

// safeProcess confines a processing bug to the offending update; the
// controller keeps running.
func (c *Controller) safeProcess(u update) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Printf("CONTROLLER: %s panic processing update: %v\n%s", c.deviceID, r, debug.Stack())
		}
	}()
	c.process(u)
}

func (c *Controller) process(u update) {
	if err := c.sink.MarkDeviceSeen(c.deviceID); err != nil {
		c.logger.Printf("CONTROLLER: %s mark seen: %v", c.deviceID, err)
	}

	c.mu.Lock()

	// Idle and buffering frames may carry no playback identity. An empty
	// cpn or video id means "no information", not a transition.
	cpnChanged := u.state.CPN != "" && u.state.CPN != c.cpn
	videoChanged := u.state.VideoID != "" && u.state.VideoID != c.videoID
	if cpnChanged || videoChanged {
		c.flushWatchLocked(u.receivedAt)
		c.cancelSkipLocked()
		if cpnChanged {
			c.completed = make(map[string]struct{})
			c.cpn = u.state.CPN
		}
	}

	if u.state.VideoID != "" && u.state.VideoID != c.videoID {
		c.videoID = u.state.VideoID
		c.ranges = nil
		c.mu.Unlock()

		if err := c.sink.RecordVideoStarted(c.deviceID); err != nil {
			c.logger.Printf("CONTROLLER: %s record video: %v", c.deviceID, err)
		}
		ranges := c.fetchRanges(u.state.VideoID)

		c.mu.Lock()
		// Another update may have moved on to a different video while the
		// fetch was in flight.
		if c.videoID == u.state.VideoID {
			c.ranges = ranges
		}
	}

	c.updateWatchLocked(u)
	c.mu.Unlock()

	c.handleAdvert(u.state)

	c.mu.Lock()
	if u.state.State == lounge.StatePlaying && len(c.ranges) > 0 {
		c.scheduleSkipLocked(u)
	} else {
		c.cancelSkipLocked()
	}
	c.mu.Unlock()
}

// fetchRanges resolves the skip ranges for a video, honoring the channel
// whitelist when a resolver is configured.
func (c *Controller) fetchRanges(videoID string) []segments.SkipRange {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if c.channels != nil && len(c.prefs.ChannelWhitelist) > 0 {
		channelID, err := c.channels.VideoChannel(ctx, videoID)
		if err != nil {
			c.logger.Printf("CONTROLLER: %s channel lookup for %s: %v", c.deviceID, videoID, err)
		} else if c.prefs.ChannelWhitelisted(channelID) {
			c.logger.Printf("CONTROLLER: %s video %s is whitelisted, not skipping", c.deviceID, videoID)
			return nil
		}
	}

	ranges, err := c.provider.Segments(ctx, videoID, c.prefs.SkipCategories, c.prefs.MinimumSkipLength)
	if err != nil {
		c.logger.Printf("CONTROLLER: %s segment fetch for %s: %v", c.deviceID, videoID, err)
		return nil
	}
	return ranges
}

func (c *Controller) handleAdvert(state lounge.PlaybackState) {
	advert := state.State.IsAdvert()

	if c.prefs.SkipAds && advert {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.session.SkipAd(ctx); err != nil {
				c.logger.Printf("CONTROLLER: %s skip ad: %v", c.deviceID, err)
			}
		}()
	}

	if !c.prefs.MuteAds {
		return
	}
	c.mu.Lock()
	change := advert != c.muted
	c.muted = advert
	c.mu.Unlock()
	if !change {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.session.SetMuted(ctx, advert); err != nil {
			c.logger.Printf("CONTROLLER: %s set muted: %v", c.deviceID, err)
		}
	}()
}

// updateWatchLocked maintains the watch session. Playing opens or flushes
// it; anything else closes it with a final flush.
func (c *Controller) updateWatchLocked(u update) {
	if u.state.State == lounge.StatePlaying {
		if !c.watching {
			c.watching = true
			c.lastFlush = u.receivedAt
			return
		}
		if u.receivedAt.Sub(c.lastFlush) >= watchFlushInterval {
			c.flushWatchLocked(u.receivedAt)
			c.watching = true
			c.lastFlush = u.receivedAt
		}
		return
	}
	c.flushWatchLocked(u.receivedAt)
}

// flushWatchLocked writes accumulated watch time and closes the session.
func (c *Controller) flushWatchLocked(now time.Time) {
	if !c.watching {
		return
	}
	elapsed := now.Sub(c.lastFlush).Seconds()
	c.watching = false
	if elapsed <= 0 {
		return
	}
	if err := c.sink.RecordWatchTime(c.deviceID, elapsed); err != nil {
		c.logger.Printf("CONTROLLER: %s record watch time: %v", c.deviceID, err)
	}
}

// selectRange implements skip selection over the current ranges at
// position p: malformed ranges are dropped, fully completed ranges are
// never rescheduled, and the earliest candidate wins.
func (c *Controller) selectRangeLocked(p float64) (segments.SkipRange, bool) {
	for _, r := range c.ranges {
		if r.Start > r.End {
			continue
		}
		if r.CoveredBy(c.completed) {
			continue
		}
		if r.Start <= p && p < r.End-skipEpsilon {
			return r, true
		}
		if r.Start > p {
			return r, true
		}
	}
	return segments.SkipRange{}, false
}

func (c *Controller) scheduleSkipLocked(u update) {
	p := u.state.CurrentTime
	r, ok := c.selectRangeLocked(p)
	if !ok {
		c.cancelSkipLocked()
		return
	}

	planStart := r.Start
	if r.Start <= p {
		planStart = p
	}

	if c.skip != nil {
		delta := c.skip.planStart - planStart
		if delta < 0 {
			delta = -delta
		}
		if c.skip.videoID == u.state.VideoID && delta < planTolerance {
			return
		}
		c.cancelSkipLocked()
	}

	speed := u.state.PlaybackSpeed
	if speed <= 0 {
		speed = 1.0
	}
	elapsed := time.Since(u.receivedAt).Seconds()
	wait := (planStart-p-elapsed)/speed - c.prefs.OffsetSeconds
	if wait < 0 {
		wait = 0
	}

	plan := &scheduledSkip{
		videoID:    u.state.VideoID,
		cpn:        u.state.CPN,
		planStart:  planStart,
		planEnd:    r.End,
		uuids:      append([]string{}, r.UUIDs...),
		categories: append([]string{}, r.Categories...),
		cancel:     make(chan struct{}),
	}
	c.skip = plan

	c.wg.Add(1)
	go c.awaitSkip(plan, time.Duration(wait*float64(time.Second)))
}

func (c *Controller) awaitSkip(plan *scheduledSkip, wait time.Duration) {
	defer c.wg.Done()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-plan.cancel:
		return
	case <-c.stopCh:
		return
	case <-timer.C:
	}

	c.mu.Lock()
	if c.skip != plan || c.cpn != plan.cpn {
		c.mu.Unlock()
		return
	}
	c.skip = nil
	for _, uuid := range plan.uuids {
		c.completed[uuid] = struct{}{}
	}
	c.mu.Unlock()

	c.logger.Printf("CONTROLLER: %s skipping %s [%.2f, %.2f)", c.deviceID, plan.videoID, plan.planStart, plan.planEnd)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.session.SeekTo(ctx, plan.planEnd); err != nil {
			c.logger.Printf("CONTROLLER: %s seek to %.2f: %v", c.deviceID, plan.planEnd, err)
		}
	}()
	if c.prefs.SkipCountTracking {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			c.provider.MarkViewed(ctx, plan.uuids)
		}()
	}

	saved := plan.planEnd - plan.planStart
	if saved < 0 {
		saved = 0
	}
	if err := c.sink.RecordSegmentSkip(c.deviceID, len(plan.uuids), saved, plan.categories); err != nil {
		c.logger.Printf("CONTROLLER: %s record skip: %v", c.deviceID, err)
	}
}

func (c *Controller) cancelSkipLocked() {
	if c.skip == nil {
		return
	}
	close(c.skip.cancel)
	c.skip = nil
}

func (c *Controller) heartbeatLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			open := c.watching
			if open && now.Sub(c.lastFlush) >= watchFlushInterval {
				c.flushWatchLocked(now)
				c.watching = true
				c.lastFlush = now
			}
			c.mu.Unlock()
			if open {
				if err := c.sink.MarkDeviceSeen(c.deviceID); err != nil {
					c.logger.Printf("CONTROLLER: %s mark seen: %v", c.deviceID, err)
				}
			}
		}
	}
}

// Close flushes the watch session, cancels any scheduled skip and joins
// the background tasks. Idempotent.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.flushWatchLocked(time.Now())
		c.cancelSkipLocked()
		c.mu.Unlock()
		close(c.stopCh)
		c.wg.Wait()
	})
}
