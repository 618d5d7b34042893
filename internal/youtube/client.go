package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/loungeskip/loungeskip/internal/apperrors"
	"github.com/loungeskip/loungeskip/internal/httpclient"
)

const dataAPIBase = "https://www.googleapis.com/youtube/v3"

// ChannelResult is one channel returned from a search.
type ChannelResult struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Subscribers string `json:"subscribers"`
}

// Client queries the YouTube Data API. All operations require an API key;
// callers without one get an API_KEY_REQUIRED error so the UI can explain
// what to configure.
type Client struct {
	provider *httpclient.Provider

	mu     sync.RWMutex
	apiKey string
}

// NewClient builds a Data API client. An empty key is allowed; operations
// fail until one is configured.
func NewClient(provider *httpclient.Provider, apiKey string) *Client {
	return &Client{provider: provider, apiKey: apiKey}
}

// SetAPIKey swaps the key when the stored settings change.
func (c *Client) SetAPIKey(apiKey string) {
	c.mu.Lock()
	c.apiKey = apiKey
	c.mu.Unlock()
}

func (c *Client) key() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// ErrAPIKeyRequired is returned when no API key is configured.
var ErrAPIKeyRequired = &apperrors.AppError{
	Code:       apperrors.ErrorCodeAPIKeyMissing,
	Message:    "a YouTube Data API key is required for this operation",
	StatusCode: http.StatusBadRequest,
}

// SearchChannels finds channels matching a query, including subscriber
// counts fetched in a second batched request.
func (c *Client) SearchChannels(ctx context.Context, query string) ([]ChannelResult, error) {
	apiKey := c.key()
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "channel")
	params.Set("maxResults", "10")
	params.Set("q", query)
	params.Set("key", apiKey)

	var search struct {
		Items []struct {
			Snippet struct {
				ChannelID    string `json:"channelId"`
				ChannelTitle string `json:"channelTitle"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, "/search", params, &search); err != nil {
		return nil, err
	}
	if len(search.Items) == 0 {
		return []ChannelResult{}, nil
	}

	ids := url.Values{}
	ids.Set("part", "statistics")
	ids.Set("key", apiKey)
	idList := ""
	for i, item := range search.Items {
		if i > 0 {
			idList += ","
		}
		idList += item.Snippet.ChannelID
	}
	ids.Set("id", idList)

	var stats struct {
		Items []struct {
			ID         string `json:"id"`
			Statistics struct {
				SubscriberCount string `json:"subscriberCount"`
			} `json:"statistics"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, "/channels", ids, &stats); err != nil {
		return nil, err
	}
	subscribers := make(map[string]string, len(stats.Items))
	for _, item := range stats.Items {
		subscribers[item.ID] = item.Statistics.SubscriberCount
	}

	results := make([]ChannelResult, 0, len(search.Items))
	for _, item := range search.Items {
		results = append(results, ChannelResult{
			ID:          item.Snippet.ChannelID,
			Name:        item.Snippet.ChannelTitle,
			Subscribers: subscribers[item.Snippet.ChannelID],
		})
	}
	return results, nil
}

// VideoChannel resolves the channel that published a video. Used for
// whitelist checks before segments are applied.
func (c *Client) VideoChannel(ctx context.Context, videoID string) (string, error) {
	apiKey := c.key()
	if apiKey == "" {
		return "", ErrAPIKeyRequired
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("id", videoID)
	params.Set("key", apiKey)

	var videos struct {
		Items []struct {
			Snippet struct {
				ChannelID string `json:"channelId"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, "/videos", params, &videos); err != nil {
		return "", err
	}
	if len(videos.Items) == 0 {
		return "", fmt.Errorf("video %s not found", videoID)
	}
	return videos.Items[0].Snippet.ChannelID, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dataAPIBase+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.provider.Client().Do(req)
	if err != nil {
		return fmt.Errorf("youtube api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("youtube api %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
