package lounge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/loungeskip/loungeskip/internal/httpclient"
)

const (
	connectAttempts   = 3
	connectRetryDelay = 5 * time.Second
	pingInterval      = 20 * time.Second
	readTimeout       = 60 * time.Second
	writeTimeout      = 10 * time.Second
)

// EventHandler receives playback-state updates from a subscribed session.
// receivedAt is the monotonic receipt time used for scheduling arithmetic.
type EventHandler interface {
	OnPlaybackState(state PlaybackState, receivedAt time.Time)
}

// Session is one conversation with one device's lounge service. All
// commands go over a single websocket; HTTP side calls handle auth and
// availability. Methods are safe for concurrent use.
type Session struct {
	endpoint string
	screenID string
	joinName string
	provider *httpclient.Provider
	logger   *log.Logger

	mu     sync.Mutex
	status Status
	token  string
	conn   *websocket.Conn

	writeMu sync.Mutex
}

// NewSession creates an unlinked session for one device. endpoint is the
// lounge service base URL.
func NewSession(endpoint, screenID, joinName string, provider *httpclient.Provider, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		endpoint: strings.TrimRight(endpoint, "/"),
		screenID: screenID,
		joinName: joinName,
		provider: provider,
		logger:   logger,
		status:   StatusUnlinked,
	}
}

// ScreenID returns the device identity this session drives.
func (s *Session) ScreenID() string { return s.screenID }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Linked reports whether the session holds a usable auth token.
func (s *Session) Linked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != "" && s.status != StatusClosed
}

// Connected reports whether a live channel to the device exists.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusConnected || s.status == StatusSubscribed
}

// RefreshAuth rotates the lounge token for this screen. On an auth
// rejection the session downgrades to unlinked. Safe to call while
// subscribed; the live channel keeps its token until it reconnects.
func (s *Session) RefreshAuth(ctx context.Context) error {
	params := url.Values{}
	params.Set("screen_id", s.screenID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/token?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := s.provider.Client().Do(req)
	if err != nil {
		return fmt.Errorf("refresh auth: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound {
		s.mu.Lock()
		s.token = ""
		if s.status != StatusClosed {
			s.status = StatusUnlinked
		}
		s.mu.Unlock()
		return fmt.Errorf("refresh auth: screen rejected, status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh auth: status %d", resp.StatusCode)
	}

	var body struct {
		LoungeToken string `json:"loungeToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("refresh auth: %w", err)
	}
	if body.LoungeToken == "" {
		return fmt.Errorf("refresh auth: empty token")
	}

	s.mu.Lock()
	s.token = body.LoungeToken
	if s.status == StatusUnlinked {
		s.status = StatusLinked
	}
	s.mu.Unlock()
	return nil
}

// IsAvailable probes whether the device currently answers for this screen.
func (s *Session) IsAvailable(ctx context.Context) bool {
	params := url.Values{}
	params.Set("screen_id", s.screenID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/availability?"+params.Encode(), nil)
	if err != nil {
		return false
	}
	resp, err := s.provider.Client().Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Connect establishes the websocket channel. Idempotent; returns
// ErrUnavailable after bounded retries.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.status {
	case StatusClosed:
		s.mu.Unlock()
		return ErrClosed
	case StatusConnected, StatusSubscribed:
		s.mu.Unlock()
		return nil
	}
	token := s.token
	s.mu.Unlock()

	if token == "" {
		return fmt.Errorf("lounge: not linked")
	}

	wsURL, err := s.channelURL(token)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		conn, resp, err := s.provider.Dialer().DialContext(ctx, wsURL, nil)
		if err == nil {
			resp.Body.Close()
			s.adoptConn(conn)
			s.logger.Printf("LOUNGE: %s connected (attempt %d)", s.screenID, attempt)
			return nil
		}
		if resp != nil {
			if resp.StatusCode == http.StatusUnauthorized {
				resp.Body.Close()
				s.mu.Lock()
				s.token = ""
				if s.status != StatusClosed {
					s.status = StatusUnlinked
				}
				s.mu.Unlock()
				return fmt.Errorf("lounge: auth rejected on connect")
			}
			resp.Body.Close()
		}
		lastErr = err
		s.logger.Printf("LOUNGE: %s connect attempt %d/%d failed: %v", s.screenID, attempt, connectAttempts, err)

		if attempt == connectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectRetryDelay):
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (s *Session) channelURL(token string) (string, error) {
	parsed, err := url.Parse(s.endpoint + "/ws")
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	}
	query := parsed.Query()
	query.Set("screen_id", s.screenID)
	query.Set("lounge_token", token)
	query.Set("name", s.joinName)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (s *Session) adoptConn(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	s.mu.Lock()
	s.conn = conn
	s.status = StatusConnected
	s.mu.Unlock()
}

// Subscription tracks one active event subscription. Done is closed when
// the subscription terminates, locally or because the device closed it.
type Subscription struct {
	done chan struct{}
}

// Done returns a channel closed on subscription termination.
func (sub *Subscription) Done() <-chan struct{} { return sub.done }

type wireFrame struct {
	Type  string          `json:"type"`
	State json.RawMessage `json:"state,omitempty"`
}

// Subscribe starts delivering playback-state updates to the handler, in
// arrival order, at most once per frame. The reader goroutine owns the
// connection until it drops.
func (s *Session) Subscribe(ctx context.Context, handler EventHandler) (*Subscription, error) {
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.status != StatusConnected {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn := s.conn
	s.status = StatusSubscribed
	s.mu.Unlock()

	if err := s.writeFrame(map[string]any{"type": "subscribe"}); err != nil {
		s.handleDrop(conn)
		return nil, err
	}

	sub := &Subscription{done: make(chan struct{})}
	go s.pingLoop(conn, sub.done)
	go s.readLoop(ctx, conn, handler, sub)
	return sub, nil
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn, handler EventHandler, sub *Subscription) {
	defer close(sub.done)
	defer s.handleDrop(conn)

	for {
		if ctx.Err() != nil {
			return
		}
		var frame wireFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if s.Status() != StatusClosed && ctx.Err() == nil {
				s.logger.Printf("LOUNGE: %s channel dropped: %v", s.screenID, err)
			}
			return
		}
		receivedAt := time.Now()

		switch frame.Type {
		case "playbackState":
			var state PlaybackState
			if err := json.Unmarshal(frame.State, &state); err != nil {
				s.logger.Printf("LOUNGE: %s malformed state frame: %v", s.screenID, err)
				continue
			}
			if state.PlaybackSpeed <= 0 {
				state.PlaybackSpeed = 1.0
			}
			handler.OnPlaybackState(state, receivedAt)
		case "ping":
			_ = s.writeFrame(map[string]any{"type": "pong"})
		case "loungeClosed":
			s.logger.Printf("LOUNGE: %s closed by device", s.screenID)
			return
		}
	}
}

func (s *Session) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleDrop downgrades the session when a connection dies. A closed
// session stays closed.
func (s *Session) handleDrop(conn *websocket.Conn) {
	conn.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn {
		return
	}
	s.conn = nil
	if s.status != StatusClosed {
		if s.token != "" {
			s.status = StatusLinked
		} else {
			s.status = StatusUnlinked
		}
	}
}

// SeekTo jumps playback to an absolute position in seconds.
func (s *Session) SeekTo(ctx context.Context, positionSeconds float64) error {
	return s.command("seekTo", map[string]any{"newTime": positionSeconds})
}

// SetMuted toggles device mute.
func (s *Session) SetMuted(ctx context.Context, muted bool) error {
	return s.command("setVolume", map[string]any{"muted": muted})
}

// SkipAd presses the skip button on a skippable ad.
func (s *Session) SkipAd(ctx context.Context) error {
	return s.command("skipAd", nil)
}

// SetAutoplayMode enables or disables the device's up-next autoplay.
func (s *Session) SetAutoplayMode(ctx context.Context, enabled bool) error {
	mode := "DISABLED"
	if enabled {
		mode = "ENABLED"
	}
	return s.command("setAutoplayMode", map[string]any{"autoplayMode": mode})
}

func (s *Session) command(name string, args map[string]any) error {
	s.mu.Lock()
	connected := s.status == StatusConnected || s.status == StatusSubscribed
	s.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	return s.writeFrame(map[string]any{
		"type":      "command",
		"command":   name,
		"commandId": uuid.NewString(),
		"args":      args,
	})
}

func (s *Session) writeFrame(frame map[string]any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(frame)
}

// Disconnect terminates the session permanently and releases network state.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.status = StatusClosed
	s.mu.Unlock()

	if conn != nil {
		s.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(writeTimeout))
		s.writeMu.Unlock()
		conn.Close()
	}
}
