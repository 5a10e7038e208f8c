// Package reachability tracks whether the backend is worth talking to. The
// monitor probes the server on an interval and classifies the link as
// unreachable, constrained or full; transitions are debounced so a flapping
// link does not whipsaw the sync engine.
package reachability

import (
	"context"
	"sync"
	"time"

	"github.com/clipdeck/clipdeck/internal/events"
	"github.com/clipdeck/clipdeck/internal/logging"
)

// State names the link quality toward the backend.
type State string

const (
	// StateUnreachable means probes fail; nothing should be attempted.
	StateUnreachable State = "unreachable"
	// StateConstrained means the backend answers but slowly; bulk work
	// such as attachment uploads should hold off.
	StateConstrained State = "constrained"
	// StateFull means the backend answers promptly.
	StateFull State = "full"
)

// Pinger is the probe target; satisfied by remote.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tune the monitor. Zero values pick the defaults.
type Options struct {
	// Interval between probes.
	Interval time.Duration
	// ProbeTimeout bounds a single probe.
	ProbeTimeout time.Duration
	// ConstrainedRTT is the round-trip time above which a reachable link
	// counts as constrained.
	ConstrainedRTT time.Duration
	// Debounce is how long an observed state must persist before it is
	// adopted and announced.
	Debounce time.Duration
}

func (o *Options) applyDefaults() {
	if o.Interval <= 0 {
		o.Interval = 15 * time.Second
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 3 * time.Second
	}
	if o.ConstrainedRTT <= 0 {
		o.ConstrainedRTT = 800 * time.Millisecond
	}
}

// Monitor owns the reachability state machine. It starts pessimistic at
// StateUnreachable until the first probe says otherwise.
type Monitor struct {
	pinger Pinger
	bus    *events.Bus
	log    logging.Logger
	opts   Options
	now    func() time.Time

	mu             sync.RWMutex
	state          State
	candidate      State
	candidateSince time.Time
}

func NewMonitor(pinger Pinger, bus *events.Bus, log logging.Logger, opts Options) *Monitor {
	opts.applyDefaults()
	return &Monitor{
		pinger: pinger,
		bus:    bus,
		log:    log,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
		state:  StateUnreachable,
	}
}

// State returns the current debounced state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Run probes on the configured interval until ctx is cancelled. One probe
// fires immediately so startup does not wait a full interval.
func (m *Monitor) Run(ctx context.Context) {
	m.Probe(ctx)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Probe performs a single probe and feeds the observation into the state
// machine. Callers may invoke it out of band to force a recheck.
func (m *Monitor) Probe(ctx context.Context) State {
	ctx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	defer cancel()

	start := time.Now()
	err := m.pinger.Ping(ctx)
	rtt := time.Since(start)

	observed := StateFull
	switch {
	case err != nil:
		observed = StateUnreachable
	case rtt > m.opts.ConstrainedRTT:
		observed = StateConstrained
	}

	m.observe(observed)
	return m.State()
}

// observe runs the debounce: a new state must be seen continuously for the
// debounce window before it replaces the current one.
func (m *Monitor) observe(observed State) {
	m.mu.Lock()

	if observed == m.state {
		m.candidate = ""
		m.mu.Unlock()
		return
	}

	now := m.now()
	if observed != m.candidate {
		m.candidate = observed
		m.candidateSince = now
		if m.opts.Debounce > 0 {
			m.mu.Unlock()
			return
		}
	}
	if now.Sub(m.candidateSince) < m.opts.Debounce {
		m.mu.Unlock()
		return
	}

	prev := m.state
	m.state = observed
	m.candidate = ""
	m.mu.Unlock()

	m.log.Info(context.Background(), "reachability changed", "from", string(prev), "to", string(observed))
	m.bus.Publish(events.Event{
		Type:         events.TypeConnectivityChanged,
		Reachability: string(observed),
	})
}
