package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Probe reports point-in-time reachability of the company server.
type Probe func(ctx context.Context) bool

// NewHTTPProbe probes the server health endpoint. Any 2xx counts as
// reachable; transport errors and server errors count as offline.
func NewHTTPProbe(baseURL string, client *http.Client) Probe {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/healthz", nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode >= 200 && resp.StatusCode < 300
	}
}

type subscriber struct {
	onOnline  func()
	onOffline func()
}

// Monitor watches reachability and fires callbacks on transition edges.
// It carries no state machine beyond the current online flag; its job is
// decoupling the sync engine from the signal source.
type Monitor struct {
	probe    Probe
	interval time.Duration
	logger   *zerolog.Logger

	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]subscriber
}

// New builds a monitor. The device starts as offline until the first
// probe succeeds, so a startup on a connected device fires one online
// edge and kicks the first sync.
func New(probe Probe, interval time.Duration, logger *zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		probe:    probe,
		interval: interval,
		logger:   logger,
		subs:     make(map[int]subscriber),
	}
}

// IsOnline returns the last observed reachability state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers transition listeners and returns an unsubscribe
// handle. Either callback may be nil. Callbacks fire at most once per
// actual transition; duplicate states are swallowed.
func (m *Monitor) Subscribe(onOnline, onOffline func()) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = subscriber{onOnline: onOnline, onOffline: onOffline}
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// SetOnline records an observed state and fires edge callbacks when it
// changed. Exposed for callers that observe reachability out of band
// (platform signals, tests).
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	handlers := make([]func(), 0, len(m.subs))
	for _, s := range m.subs {
		if online && s.onOnline != nil {
			handlers = append(handlers, s.onOnline)
		}
		if !online && s.onOffline != nil {
			handlers = append(handlers, s.onOffline)
		}
	}
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Info().Bool("online", online).Msg("connectivity transition")
	}
	for _, h := range handlers {
		h()
	}
}

// Start polls the probe until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.SetOnline(m.probe(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetOnline(m.probe(ctx))
		}
	}
}
