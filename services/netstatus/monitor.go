// Package netstatus provides the online/offline signal of the offline cache.
package netstatus

import (
	"context"
	"sync"
	"time"
)

var NowFunc = time.Now // mockable

// Static is a fixed signal, for configured offline mode and tests.
type Static bool

func (s Static) IsOnline() bool { return bool(s) }

type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor probes the school API, at most once per ttl.
type Monitor struct {
	prober  Prober
	timeout time.Duration
	ttl     time.Duration

	mu      sync.Mutex
	checked time.Time
	online  bool
}

func NewMonitor(prober Prober, timeout, ttl time.Duration) *Monitor {
	return &Monitor{prober: prober, timeout: timeout, ttl: ttl}
}

func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := NowFunc()
	if !m.checked.IsZero() && now.Sub(m.checked) < m.ttl {
		return m.online
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	m.online = m.prober.Ping(ctx) == nil
	m.checked = now
	return m.online
}
