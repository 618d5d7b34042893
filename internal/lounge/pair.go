package lounge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/loungeskip/loungeskip/internal/httpclient"
)

// ErrInvalidPairingCode is returned when the lounge service rejects a
// pairing code.
var ErrInvalidPairingCode = errors.New("lounge: invalid pairing code")

// PairResult identifies a freshly enrolled device.
type PairResult struct {
	ScreenID string
	Name     string
}

// Pair exchanges a pairing code shown on the device for its screen id.
// The code is digits, usually rendered in groups; separators are stripped.
func Pair(ctx context.Context, provider *httpclient.Provider, endpoint, code string) (PairResult, error) {
	code = strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, code)
	if len(code) != 12 {
		return PairResult{}, ErrInvalidPairingCode
	}

	form := url.Values{}
	form.Set("pairing_code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(endpoint, "/")+"/pair", strings.NewReader(form.Encode()))
	if err != nil {
		return PairResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := provider.Client().Do(req)
	if err != nil {
		return PairResult{}, fmt.Errorf("pair: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnauthorized {
		return PairResult{}, ErrInvalidPairingCode
	}
	if resp.StatusCode != http.StatusOK {
		return PairResult{}, fmt.Errorf("pair: status %d", resp.StatusCode)
	}

	var body struct {
		Screen struct {
			ScreenID string `json:"screenId"`
			Name     string `json:"name"`
		} `json:"screen"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return PairResult{}, fmt.Errorf("pair: %w", err)
	}
	if body.Screen.ScreenID == "" {
		return PairResult{}, fmt.Errorf("pair: response missing screen id")
	}
	return PairResult{ScreenID: body.Screen.ScreenID, Name: body.Screen.Name}, nil
}
