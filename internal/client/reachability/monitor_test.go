package reachability

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clipdeck/clipdeck/internal/common"
	"github.com/clipdeck/clipdeck/internal/events"
	"github.com/clipdeck/clipdeck/internal/logging"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMonitor_StartsUnreachable(t *testing.T) {
	m := NewMonitor(&fakePinger{err: common.ErrUnavailable}, events.NewBus(), testLogger(), Options{})
	require.Equal(t, StateUnreachable, m.State())
}

func TestProbe_AdoptsFullImmediatelyWithoutDebounce(t *testing.T) {
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(4)
	defer cancel()

	m := NewMonitor(&fakePinger{}, bus, testLogger(), Options{})
	require.Equal(t, StateFull, m.Probe(context.Background()))

	ev := <-ch
	require.Equal(t, events.TypeConnectivityChanged, ev.Type)
	require.Equal(t, string(StateFull), ev.Reachability)
}

func TestProbe_SlowLinkIsConstrained(t *testing.T) {
	// Any real round trip exceeds a nanosecond threshold.
	m := NewMonitor(&fakePinger{}, events.NewBus(), testLogger(), Options{ConstrainedRTT: time.Nanosecond})
	require.Equal(t, StateConstrained, m.Probe(context.Background()))
}

func TestObserve_DebounceSuppressesShortFlap(t *testing.T) {
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(4)
	defer cancel()

	m := NewMonitor(&fakePinger{}, bus, testLogger(), Options{Debounce: time.Minute})
	clock := time.Date(2026, 8, 10, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	// First sighting of "full" only arms the candidate.
	m.observe(StateFull)
	require.Equal(t, StateUnreachable, m.State())

	// The link flaps back before the window elapses; candidate resets.
	clock = clock.Add(30 * time.Second)
	m.observe(StateUnreachable)
	clock = clock.Add(45 * time.Second)
	m.observe(StateFull)
	require.Equal(t, StateUnreachable, m.State())

	// Held for the full window, the new state is adopted and announced.
	clock = clock.Add(time.Minute)
	m.observe(StateFull)
	require.Equal(t, StateFull, m.State())

	ev := <-ch
	require.Equal(t, string(StateFull), ev.Reachability)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra event: %+v", extra)
	default:
	}
}

func TestProbe_FailureReturnsToUnreachable(t *testing.T) {
	p := &fakePinger{}
	m := NewMonitor(p, events.NewBus(), testLogger(), Options{})

	require.Equal(t, StateFull, m.Probe(context.Background()))

	p.err = common.ErrUnavailable
	require.Equal(t, StateUnreachable, m.Probe(context.Background()))
}
