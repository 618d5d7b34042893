package lounge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/loungeskip/loungeskip/internal/httpclient"
)

// fakeLounge is an in-process lounge service: token and availability
// endpoints plus a websocket channel that records received frames.
type fakeLounge struct {
	mu        sync.Mutex
	available bool
	token     string
	frames    []map[string]any
	conns     []*websocket.Conn

	upgrader websocket.Upgrader
	server   *httptest.Server
}

func newFakeLounge(t *testing.T) *fakeLounge {
	t.Helper()
	f := &fakeLounge{available: true, token: "tok-1"}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		token := f.token
		f.mu.Unlock()
		if token == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"loungeToken": token})
	})
	mux.HandleFunc("GET /availability", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		available := f.available
		f.mu.Unlock()
		if !available {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		token := f.token
		f.mu.Unlock()
		if r.URL.Query().Get("lounge_token") != token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns = append(f.conns, conn)
		f.mu.Unlock()
		go f.readFrames(conn)
	})
	mux.HandleFunc("POST /pair", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostFormValue("pairing_code") != "123456789012" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"screen": map[string]string{"screenId": "screen-9", "name": "Bedroom TV"},
		})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeLounge) readFrames(conn *websocket.Conn) {
	for {
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		f.mu.Lock()
		f.frames = append(f.frames, frame)
		f.mu.Unlock()
	}
}

func (f *fakeLounge) sendState(t *testing.T, state PlaybackState) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.conns)
	conn := f.conns[len(f.conns)-1]
	raw, err := json.Marshal(state)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "playbackState", "state": json.RawMessage(raw)}))
}

func (f *fakeLounge) receivedCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var commands []string
	for _, frame := range f.frames {
		if frame["type"] == "command" {
			commands = append(commands, frame["command"].(string))
		}
	}
	return commands
}

type recordingHandler struct {
	mu     sync.Mutex
	states []PlaybackState
}

func (h *recordingHandler) OnPlaybackState(state PlaybackState, receivedAt time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, state)
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.states)
}

func newTestSession(t *testing.T, f *fakeLounge) *Session {
	t.Helper()
	provider := httpclient.NewProvider(false, false, nil)
	t.Cleanup(provider.Close)
	return NewSession(f.server.URL, "screen-1", "test", provider, nil)
}

func TestSession_LifecycleToSubscribed(t *testing.T) {
	f := newFakeLounge(t)
	s := newTestSession(t, f)
	ctx := context.Background()

	require.Equal(t, StatusUnlinked, s.Status())
	require.False(t, s.Linked())

	require.NoError(t, s.RefreshAuth(ctx))
	require.True(t, s.Linked())
	require.Equal(t, StatusLinked, s.Status())

	require.True(t, s.IsAvailable(ctx))
	require.NoError(t, s.Connect(ctx))
	require.True(t, s.Connected())

	// Connect is idempotent once connected.
	require.NoError(t, s.Connect(ctx))

	handler := &recordingHandler{}
	sub, err := s.Subscribe(ctx, handler)
	require.NoError(t, err)
	require.Equal(t, StatusSubscribed, s.Status())

	f.sendState(t, PlaybackState{VideoID: "v1", CPN: "c1", State: StatePlaying, CurrentTime: 1.5, PlaybackSpeed: 1.0})
	require.Eventually(t, func() bool { return handler.count() == 1 }, time.Second, 10*time.Millisecond)

	s.Disconnect()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription did not terminate on disconnect")
	}
	require.Equal(t, StatusClosed, s.Status())
}

func TestSession_CommandsRequireConnection(t *testing.T) {
	f := newFakeLounge(t)
	s := newTestSession(t, f)
	ctx := context.Background()

	require.ErrorIs(t, s.SeekTo(ctx, 10), ErrNotConnected)

	require.NoError(t, s.RefreshAuth(ctx))
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.SeekTo(ctx, 10))
	require.NoError(t, s.SetMuted(ctx, true))
	require.NoError(t, s.SetAutoplayMode(ctx, false))

	require.Eventually(t, func() bool { return len(f.receivedCommands()) == 3 }, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"seekTo", "setVolume", "setAutoplayMode"}, f.receivedCommands())

	s.Disconnect()
	require.ErrorIs(t, s.SeekTo(ctx, 5), ErrNotConnected)
}

func TestSession_AuthRejectionDowngradesToUnlinked(t *testing.T) {
	f := newFakeLounge(t)
	s := newTestSession(t, f)
	ctx := context.Background()

	require.NoError(t, s.RefreshAuth(ctx))

	// Rotate the server token so refresh fails with 401.
	f.mu.Lock()
	f.token = ""
	f.mu.Unlock()

	require.Error(t, s.RefreshAuth(ctx))
	require.False(t, s.Linked())
	require.Equal(t, StatusUnlinked, s.Status())
}

func TestSession_SpeedDefaultsToOne(t *testing.T) {
	f := newFakeLounge(t)
	s := newTestSession(t, f)
	ctx := context.Background()

	require.NoError(t, s.RefreshAuth(ctx))
	require.NoError(t, s.Connect(ctx))

	handler := &recordingHandler{}
	_, err := s.Subscribe(ctx, handler)
	require.NoError(t, err)

	f.sendState(t, PlaybackState{VideoID: "v1", State: StatePlaying})
	require.Eventually(t, func() bool { return handler.count() == 1 }, time.Second, 10*time.Millisecond)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	require.Equal(t, 1.0, handler.states[0].PlaybackSpeed)

	s.Disconnect()
}

func TestPair(t *testing.T) {
	f := newFakeLounge(t)
	provider := httpclient.NewProvider(false, false, nil)
	defer provider.Close()
	ctx := context.Background()

	result, err := Pair(ctx, provider, f.server.URL, "123 456 789 012")
	require.NoError(t, err)
	require.Equal(t, "screen-9", result.ScreenID)
	require.Equal(t, "Bedroom TV", result.Name)

	_, err = Pair(ctx, provider, f.server.URL, "000000000000")
	require.ErrorIs(t, err, ErrInvalidPairingCode)

	_, err = Pair(ctx, provider, f.server.URL, "12345")
	require.ErrorIs(t, err, ErrInvalidPairingCode)
}

func TestPlayerState_IsAdvert(t *testing.T) {
	require.False(t, StateIdle.IsAdvert())
	require.False(t, StatePlaying.IsAdvert())
	require.False(t, StatePaused.IsAdvert())
	require.False(t, StateBuffering.IsAdvert())
	require.True(t, PlayerState(1081).IsAdvert())
	require.True(t, PlayerState(-1).IsAdvert())
}
