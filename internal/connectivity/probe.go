package connectivity

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"
)

// ProbeConfig configures a ProbeMonitor.
type ProbeConfig struct {
	// ProbeURL is fetched with a HEAD request to judge internet
	// reachability. Any HTTP response counts as reachable; only transport
	// failures count against it.
	ProbeURL string

	// Interval is how often the background loop re-checks (default: 5s).
	Interval time.Duration

	// Timeout bounds a single probe request (default: 3s).
	Timeout time.Duration

	// Logger for monitor activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultProbeConfig returns sensible defaults.
func DefaultProbeConfig(probeURL string) *ProbeConfig {
	return &ProbeConfig{
		ProbeURL: probeURL,
		Interval: 5 * time.Second,
		Timeout:  3 * time.Second,
		Logger:   log.New(os.Stderr, "[connectivity] ", log.LstdFlags),
	}
}

// ProbeMonitor derives the two connectivity signals itself: link presence
// from the host's interface table, internet reachability from a probe
// request. A background loop re-checks on an interval and emits on
// transitions.
type ProbeMonitor struct {
	config *ProbeConfig
	client *http.Client
	subs   *subscribers

	mu     sync.Mutex
	online bool
	known  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProbeMonitor creates a monitor. Call Start to begin emitting
// transitions; FetchOnce works without Start.
func NewProbeMonitor(config *ProbeConfig) *ProbeMonitor {
	if config == nil {
		config = DefaultProbeConfig("")
	}
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 3 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[connectivity] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ProbeMonitor{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		subs:   newSubscribers(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the background check loop.
func (m *ProbeMonitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.config.Interval)
		defer ticker.Stop()

		m.check(m.ctx)
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.check(m.ctx)
			}
		}
	}()
}

// Stop halts the background loop. Subscribers are not notified.
func (m *ProbeMonitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Subscribe implements Monitor.
func (m *ProbeMonitor) Subscribe(fn func(online bool)) func() {
	return m.subs.add(fn)
}

// FetchOnce implements Monitor. It performs a fresh check rather than
// returning the cached value, so late subscribers get a current answer.
func (m *ProbeMonitor) FetchOnce(ctx context.Context) bool {
	return m.check(ctx)
}

// check computes the combined signal and emits on a transition. The very
// first check establishes a baseline without emitting; subscribers that
// need an initial value call FetchOnce.
func (m *ProbeMonitor) check(ctx context.Context) bool {
	state := State{Connected: linkPresent()}
	if state.Connected {
		state.InternetReachable = m.probe(ctx)
	}
	online := state.Online()

	m.mu.Lock()
	transition := m.known && m.online != online
	m.online = online
	m.known = true
	m.mu.Unlock()

	if transition {
		m.subs.emit(online)
	}
	return online
}

// linkPresent reports whether any non-loopback interface is up with an
// address assigned.
func linkPresent() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}

// probe judges internet reachability with one HEAD request. A captive
// portal that intercepts the request still responds, so the probe URL
// should be an endpoint whose response can be trusted (the hub's /health
// by default).
func (m *ProbeMonitor) probe(ctx context.Context) bool {
	if m.config.ProbeURL == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.config.ProbeURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < 500
}
