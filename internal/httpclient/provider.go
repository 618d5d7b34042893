package httpclient

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Provider hands out the shared HTTP client and websocket dialer. When the
// proxy policy flips, the transport is rebuilt and the generation counter
// advances so long-lived consumers can detect they hold a stale client.
type Provider struct {
	mu         sync.RWMutex
	client     *http.Client
	dialer     *websocket.Dialer
	generation uint64
	useProxy   bool
	tracing    bool
	logger     *log.Logger
}

// NewProvider builds a provider with the given proxy policy. With tracing
// enabled every request logs method, URL, status and duration.
func NewProvider(useProxy, tracing bool, logger *log.Logger) *Provider {
	if logger == nil {
		logger = log.Default()
	}
	p := &Provider{
		useProxy:   useProxy,
		tracing:    tracing,
		logger:     logger,
		generation: 1,
	}
	p.rebuildLocked()
	return p
}

// Client returns the current shared HTTP client.
func (p *Provider) Client() *http.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client
}

// Dialer returns a websocket dialer honoring the current proxy policy.
func (p *Provider) Dialer() *websocket.Dialer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dialer
}

// Generation increments whenever the client is rebuilt.
func (p *Provider) Generation() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.generation
}

// SetProxyPolicy rebuilds the transport if the policy changed.
func (p *Provider) SetProxyPolicy(useProxy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.useProxy == useProxy {
		return
	}
	p.useProxy = useProxy
	p.generation++
	old := p.client
	p.rebuildLocked()
	if transport, ok := old.Transport.(interface{ CloseIdleConnections() }); ok {
		transport.CloseIdleConnections()
	}
	p.logger.Printf("HTTP: proxy policy changed, use_proxy=%v generation=%d", useProxy, p.generation)
}

// Close releases idle connections held by the current transport.
func (p *Provider) Close() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	p.client.CloseIdleConnections()
}

func (p *Provider) rebuildLocked() {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	if p.useProxy {
		transport.Proxy = http.ProxyFromEnvironment
	}

	var rt http.RoundTripper = transport
	if p.tracing {
		rt = &tracingRoundTripper{next: transport, logger: p.logger}
	}

	p.client = &http.Client{
		Transport: rt,
		Timeout:   30 * time.Second,
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	if p.useProxy {
		dialer.Proxy = http.ProxyFromEnvironment
	}
	p.dialer = dialer
}

type tracingRoundTripper struct {
	next   http.RoundTripper
	logger *log.Logger
}

func (t *tracingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		t.logger.Printf("HTTP: %s %s error after %s: %v", req.Method, req.URL, elapsed, err)
		return nil, err
	}
	t.logger.Printf("HTTP: %s %s %d in %s", req.Method, req.URL, resp.StatusCode, elapsed)
	return resp, nil
}
