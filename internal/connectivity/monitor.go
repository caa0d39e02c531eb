// Package connectivity tracks whether the remote store is reachable.
package connectivity

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/offsync/internal/bus"
	"go.uber.org/zap"
)

// EventChanged is published on every state transition.
const EventChanged = "connectivity.changed"

// State is the reachability of the remote store.
type State string

const (
	Unknown State = "UNKNOWN"
	Online  State = "ONLINE"
	Offline State = "OFFLINE"
)

var validTransitions = map[State][]State{
	Unknown: {Online, Offline},
	Online:  {Offline},
	Offline: {Online},
}

// Change is the payload of EventChanged.
type Change struct {
	From   State
	To     State
	Reason string
}

// Prober checks reachability once.
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor holds the current connectivity state. It implements
// offline.Connectivity.
type Monitor struct {
	mu       sync.RWMutex
	current  State
	forced   bool
	bus      *bus.Bus
	prober   Prober
	interval time.Duration
	logger   *zap.Logger
}

// NewMonitor creates a monitor in the Unknown state. prober may be nil, in
// which case the state only changes through Set.
func NewMonitor(b *bus.Bus, prober Prober, interval time.Duration, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		current:  Unknown,
		bus:      b,
		prober:   prober,
		interval: interval,
		logger:   logger,
	}
}

// Current returns the current state.
func (m *Monitor) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsOnline reports whether the last observation was Online.
func (m *Monitor) IsOnline() bool {
	return m.Current() == Online
}

// Forced reports whether the state was pinned by Set.
func (m *Monitor) Forced() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.forced
}

// Set pins the state to online or offline. Probing stops overriding it until
// Release is called.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced = true
	_ = m.transitionLocked(stateOf(online), "manual")
}

// Release hands the state back to the prober.
func (m *Monitor) Release() {
	m.mu.Lock()
	m.forced = false
	m.mu.Unlock()
}

// Observe records a probe result. It is ignored while the state is pinned.
func (m *Monitor) Observe(online bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forced {
		return
	}
	_ = m.transitionLocked(stateOf(online), reason)
}

func (m *Monitor) transitionLocked(to State, reason string) error {
	if m.current == to {
		return nil
	}
	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.logger.Info("connectivity changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason),
	)
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      EventChanged,
			Timestamp: time.Now(),
			Payload:   Change{From: from, To: to, Reason: reason},
		})
	}
	return nil
}

// Probe runs the prober once and records the result.
func (m *Monitor) Probe(ctx context.Context) {
	if m.prober == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()
	if err := m.prober.Ping(pctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Debug("probe failed", zap.Error(err))
		m.Observe(false, err.Error())
		return
	}
	m.Observe(true, "probe ok")
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	if m.prober == nil {
		return
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

func stateOf(online bool) State {
	if online {
		return Online
	}
	return Offline
}
