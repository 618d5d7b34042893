package segments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loungeskip/loungeskip/internal/httpclient"
)

func TestMergeSegments_OverlappingCollapse(t *testing.T) {
	merged := mergeSegments([]rawSegment{
		{start: 5, end: 10, uuid: "u1", category: "sponsor"},
		{start: 8, end: 12, uuid: "u2", category: "intro"},
		{start: 20, end: 25, uuid: "u3", category: "sponsor"},
	})

	require.Len(t, merged, 2)
	require.Equal(t, 5.0, merged[0].Start)
	require.Equal(t, 12.0, merged[0].End)
	require.ElementsMatch(t, []string{"u1", "u2"}, merged[0].UUIDs)
	require.ElementsMatch(t, []string{"sponsor", "intro"}, merged[0].Categories)
	require.Equal(t, []string{"u3"}, merged[1].UUIDs)
}

func TestMergeSegments_SortsByStart(t *testing.T) {
	merged := mergeSegments([]rawSegment{
		{start: 30, end: 35, uuid: "u2", category: "sponsor"},
		{start: 5, end: 10, uuid: "u1", category: "sponsor"},
	})
	require.Len(t, merged, 2)
	require.Equal(t, 5.0, merged[0].Start)
	require.Equal(t, 30.0, merged[1].Start)
}

func TestSkipRange_CoveredBy(t *testing.T) {
	r := SkipRange{UUIDs: []string{"u1", "u2"}}
	require.False(t, r.CoveredBy(map[string]struct{}{"u1": {}}))
	require.True(t, r.CoveredBy(map[string]struct{}{"u1": {}, "u2": {}}))
	require.False(t, SkipRange{}.CoveredBy(map[string]struct{}{"u1": {}}))
}

func newSegmentServer(t *testing.T, videoID string, calls *atomic.Int64, payload []apiVideo) *httptest.Server {
	t.Helper()
	hash := sha256.Sum256([]byte(videoID))
	prefix := hex.EncodeToString(hash[:])[:4]

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/skipSegments/"+prefix, r.URL.Path)
		require.NotEmpty(t, r.URL.Query().Get("categories"))
		require.NoError(t, json.NewEncoder(w).Encode(payload))
	}))
}

func TestClient_SegmentsFiltersOtherVideosAndShortRanges(t *testing.T) {
	var calls atomic.Int64
	payload := []apiVideo{
		{VideoID: "other", Segments: []apiSegment{
			{Segment: []float64{1, 100}, UUID: "ux", Category: "sponsor"},
		}},
		{VideoID: "v1", Segments: []apiSegment{
			{Segment: []float64{5, 10}, UUID: "u1", Category: "sponsor"},
			{Segment: []float64{20, 20.5}, UUID: "u2", Category: "sponsor"},
		}},
	}
	server := newSegmentServer(t, "v1", &calls, payload)
	defer server.Close()

	provider := httpclient.NewProvider(false, false, nil)
	defer provider.Close()
	client := NewClient(provider, server.URL, nil)

	ranges, err := client.Segments(context.Background(), "v1", []string{"sponsor"}, 1)
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	require.Equal(t, []string{"u1"}, ranges[0].UUIDs)
}

func TestClient_SegmentsCachesPerVideo(t *testing.T) {
	var calls atomic.Int64
	server := newSegmentServer(t, "v1", &calls, nil)
	defer server.Close()

	provider := httpclient.NewProvider(false, false, nil)
	defer provider.Close()
	client := NewClient(provider, server.URL, nil)

	_, err := client.Segments(context.Background(), "v1", []string{"sponsor"}, 1)
	require.NoError(t, err)
	_, err = client.Segments(context.Background(), "v1", []string{"sponsor"}, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), calls.Load())
}

func TestClient_SegmentsEmptyInputs(t *testing.T) {
	provider := httpclient.NewProvider(false, false, nil)
	defer provider.Close()
	client := NewClient(provider, "http://invalid.localhost", nil)

	ranges, err := client.Segments(context.Background(), "", []string{"sponsor"}, 1)
	require.NoError(t, err)
	require.Nil(t, ranges)

	ranges, err = client.Segments(context.Background(), "v1", nil, 1)
	require.NoError(t, err)
	require.Nil(t, ranges)
}
