package lounge

import "errors"

// Status is the session lifecycle state.
type Status int

const (
	StatusUnlinked Status = iota
	StatusLinked
	StatusConnected
	StatusSubscribed
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusUnlinked:
		return "unlinked"
	case StatusLinked:
		return "linked"
	case StatusConnected:
		return "connected"
	case StatusSubscribed:
		return "subscribed"
	case StatusClosed:
		return "closed"
	}
	return "unknown"
}

// PlayerState is the remote player's reported state. Values above
// StateBuffering are advert playback variants.
type PlayerState int

const (
	StateIdle      PlayerState = 0
	StatePlaying   PlayerState = 1
	StatePaused    PlayerState = 2
	StateBuffering PlayerState = 3
)

// IsAdvert reports whether the player is showing an ad rather than the
// main content.
func (s PlayerState) IsAdvert() bool {
	return s < StateIdle || s > StateBuffering
}

// PlaybackState is one observed playback snapshot. CPN is the
// content-playback nonce, a fresh identifier per distinct playback of a
// video; it is the authoritative "same playback" key.
type PlaybackState struct {
	VideoID       string      `json:"videoId"`
	CPN           string      `json:"cpn"`
	State         PlayerState `json:"state"`
	CurrentTime   float64     `json:"currentTime"`
	PlaybackSpeed float64     `json:"playbackSpeed"`
}

var (
	// ErrNotConnected is returned by commands when the session has no live
	// channel to the device.
	ErrNotConnected = errors.New("lounge: not connected")

	// ErrUnavailable is returned by Connect after bounded retries against a
	// device that is not reachable.
	ErrUnavailable = errors.New("lounge: device unavailable")

	// ErrClosed is returned once Disconnect has been called.
	ErrClosed = errors.New("lounge: session closed")
)
