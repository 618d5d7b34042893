package reconciler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loungeskip/loungeskip/internal/db"
	"github.com/loungeskip/loungeskip/internal/httpclient"
	"github.com/loungeskip/loungeskip/internal/prefs"
	"github.com/loungeskip/loungeskip/internal/segments"
	"github.com/loungeskip/loungeskip/internal/store"
	"github.com/loungeskip/loungeskip/internal/supervisor"
)

type noopSegments struct{}

func (noopSegments) Segments(ctx context.Context, videoID string, categories []string, minimumLength int) ([]segments.SkipRange, error) {
	return nil, nil
}
func (noopSegments) MarkViewed(ctx context.Context, uuids []string) {}

type noopSink struct{}

func (noopSink) RecordVideoStarted(deviceID string) error { return nil }
func (noopSink) RecordWatchTime(deviceID string, seconds float64) error {
	return nil
}
func (noopSink) RecordSegmentSkip(deviceID string, count int, savedSeconds float64, categories []string) error {
	return nil
}
func (noopSink) MarkDeviceSeen(deviceID string) error { return nil }

func newTestReconciler(t *testing.T) (*Reconciler, *store.Store) {
	t.Helper()

	// An unreachable lounge keeps supervisors looping harmlessly in their
	// auth-retry state.
	lounge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(lounge.Close)

	pair, err := db.Init(filepath.Join(t.TempDir(), "config.db"))
	require.NoError(t, err)
	t.Cleanup(func() { pair.Close() })
	st := store.New(pair, nil)

	provider := httpclient.NewProvider(false, false, nil)
	t.Cleanup(provider.Close)

	deps := supervisor.Deps{
		Provider:       provider,
		Segments:       noopSegments{},
		Sink:           noopSink{},
		LoungeEndpoint: lounge.URL,
	}
	r := New(st, deps, nil, nil)
	t.Cleanup(r.Shutdown)
	return r, st
}

func TestReconciler_ChurnTracksDesiredSet(t *testing.T) {
	r, st := newTestReconciler(t)

	require.NoError(t, st.AddDevice(store.DeviceSnapshot{ScreenID: "d1"}))
	r.tick()
	require.Equal(t, 1, r.Count())

	require.NoError(t, st.AddDevice(store.DeviceSnapshot{ScreenID: "d2"}))
	r.tick()
	require.Equal(t, 2, r.Count())

	require.NoError(t, st.DeleteDevice("d1"))
	r.tick()
	require.Equal(t, 1, r.Count())
	require.Equal(t, "d2", r.Supervisors()[0].Snapshot().ScreenID)
}

func TestReconciler_RestartsOnSnapshotChange(t *testing.T) {
	r, st := newTestReconciler(t)

	require.NoError(t, st.AddDevice(store.DeviceSnapshot{ScreenID: "d1", Name: "Before"}))
	r.tick()
	require.Equal(t, 1, r.Count())
	before := r.Supervisors()[0]

	_, err := st.UpdateDevice("d1", store.DeviceUpdate{Name: strPtr("After")})
	require.NoError(t, err)
	r.tick()

	require.Equal(t, 1, r.Count())
	after := r.Supervisors()[0]
	require.NotSame(t, before, after)
	require.Equal(t, "After", after.Snapshot().Name)
}

func TestReconciler_SubMillisecondOffsetChangeIgnored(t *testing.T) {
	r, st := newTestReconciler(t)

	require.NoError(t, st.AddDevice(store.DeviceSnapshot{ScreenID: "d1", OffsetMS: 100}))
	r.tick()
	before := r.Supervisors()[0]

	offset := int64(101)
	_, err := st.UpdateDevice("d1", store.DeviceUpdate{OffsetMS: &offset})
	require.NoError(t, err)
	r.tick()

	require.Same(t, before, r.Supervisors()[0])
}

func TestReconciler_ShutdownStopsEverything(t *testing.T) {
	r, st := newTestReconciler(t)

	require.NoError(t, st.AddDevice(store.DeviceSnapshot{ScreenID: "d1"}))
	require.NoError(t, st.AddDevice(store.DeviceSnapshot{ScreenID: "d2"}))
	r.tick()
	require.Equal(t, 2, r.Count())

	r.Shutdown()
	require.Equal(t, 0, r.Count())
}

func TestReconciler_SettingsHookSeesGlobal(t *testing.T) {
	lounge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(lounge.Close)

	pair, err := db.Init(filepath.Join(t.TempDir(), "config.db"))
	require.NoError(t, err)
	t.Cleanup(func() { pair.Close() })
	st := store.New(pair, nil)
	require.NoError(t, st.UpdateSettings(store.SettingsPatch{"use_proxy": true}))

	provider := httpclient.NewProvider(false, false, nil)
	t.Cleanup(provider.Close)

	var observed []prefs.Global
	r := New(st, supervisor.Deps{
		Provider:       provider,
		Segments:       noopSegments{},
		Sink:           noopSink{},
		LoungeEndpoint: lounge.URL,
	}, func(global prefs.Global) { observed = append(observed, global) }, nil)
	t.Cleanup(r.Shutdown)

	r.tick()
	require.Len(t, observed, 1)
	require.True(t, observed[0].UseProxy)
}

func strPtr(s string) *string { return &s }
