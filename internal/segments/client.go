package segments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/loungeskip/loungeskip/internal/httpclient"
)

const (
	defaultAPIBase = "https://sponsor.ajay.app/api"
	cacheTTL       = 5 * time.Minute
)

// Client fetches skip ranges from the segment database. Video ids are
// looked up by hashed prefix so the full id never leaves the machine.
type Client struct {
	provider *httpclient.Provider
	apiBase  string
	logger   *log.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	ranges  []SkipRange
	expires time.Time
}

// NewClient builds a segment database client. apiBase overrides the public
// endpoint for tests and self-hosted databases; empty uses the default.
func NewClient(provider *httpclient.Provider, apiBase string, logger *log.Logger) *Client {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		provider: provider,
		apiBase:  apiBase,
		logger:   logger,
		cache:    make(map[string]cacheEntry),
	}
}

type apiSegment struct {
	Segment  []float64 `json:"segment"`
	UUID     string    `json:"UUID"`
	Category string    `json:"category"`
}

type apiVideo struct {
	VideoID  string       `json:"videoID"`
	Segments []apiSegment `json:"segments"`
}

// Segments returns the merged skip ranges for a video, filtered to the
// given categories and minimum length. Results are cached per video and
// category set for a few minutes.
func (c *Client) Segments(ctx context.Context, videoID string, categories []string, minimumLength int) ([]SkipRange, error) {
	if videoID == "" || len(categories) == 0 {
		return nil, nil
	}

	key := cacheKey(videoID, categories, minimumLength)
	c.mu.Lock()
	if entry, ok := c.cache[key]; ok && time.Now().Before(entry.expires) {
		ranges := entry.ranges
		c.mu.Unlock()
		return ranges, nil
	}
	c.mu.Unlock()

	videos, err := c.lookup(ctx, videoID, categories)
	if err != nil {
		return nil, err
	}

	var raw []rawSegment
	for _, video := range videos {
		if video.VideoID != videoID {
			continue
		}
		for _, segment := range video.Segments {
			if len(segment.Segment) != 2 {
				continue
			}
			start, end := segment.Segment[0], segment.Segment[1]
			if end-start < float64(minimumLength) {
				continue
			}
			raw = append(raw, rawSegment{
				start:    start,
				end:      end,
				uuid:     segment.UUID,
				category: segment.Category,
			})
		}
	}
	ranges := mergeSegments(raw)

	c.mu.Lock()
	c.cache[key] = cacheEntry{ranges: ranges, expires: time.Now().Add(cacheTTL)}
	c.mu.Unlock()

	c.logger.Printf("SEGMENTS: %s resolved to %d skip ranges", videoID, len(ranges))
	return ranges, nil
}

func (c *Client) lookup(ctx context.Context, videoID string, categories []string) ([]apiVideo, error) {
	hash := sha256.Sum256([]byte(videoID))
	prefix := hex.EncodeToString(hash[:])[:4]

	encodedCategories, err := json.Marshal(categories)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("categories", string(encodedCategories))

	endpoint := fmt.Sprintf("%s/skipSegments/%s?%s", c.apiBase, prefix, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.provider.Client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("segment lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("segment lookup: status %d", resp.StatusCode)
	}

	var videos []apiVideo
	if err := json.NewDecoder(resp.Body).Decode(&videos); err != nil {
		return nil, fmt.Errorf("segment lookup: %w", err)
	}
	return videos, nil
}

// MarkViewed reports fired skips back to the segment database so segment
// view counts stay honest. Failures are logged, never surfaced.
func (c *Client) MarkViewed(ctx context.Context, uuids []string) {
	for _, uuid := range uuids {
		params := url.Values{}
		params.Set("UUID", uuid)
		endpoint := fmt.Sprintf("%s/viewedVideoSponsorTime?%s", c.apiBase, params.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
		if err != nil {
			continue
		}
		resp, err := c.provider.Client().Do(req)
		if err != nil {
			c.logger.Printf("SEGMENTS: mark viewed %s: %v", uuid, err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			c.logger.Printf("SEGMENTS: mark viewed %s: status %d", uuid, resp.StatusCode)
		}
	}
}

func cacheKey(videoID string, categories []string, minimumLength int) string {
	key := videoID + "|" + fmt.Sprint(minimumLength)
	for _, category := range categories {
		key += "|" + category
	}
	return key
}
