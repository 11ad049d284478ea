// Package health implements the Health Monitor: four
// concurrent endpoint probes on a fixed cadence, publishing an
// atomically-swapped HealthSnapshot that the Coordinator feeds to
// domain.Gate before a run.
package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/brahimakil/appointment-backend-database-synch/internal/domain"
	"github.com/brahimakil/appointment-backend-database-synch/internal/events"
)

// DefaultProbeDeadline is the per-probe timeout used when the caller
// doesn't override it.
const DefaultProbeDeadline = 5 * time.Second

// Monitor probes Primary/Standby DB and Auth endpoints on a fixed
// cadence and publishes the resulting HealthSnapshot.
type Monitor struct {
	gw       domain.Gateway
	bus      *events.Bus
	log      zerolog.Logger
	interval time.Duration
	deadline time.Duration

	snapshot atomic.Pointer[domain.HealthSnapshot]
}

// New constructs a Monitor that probes every interval and bounds each
// probe to deadline (DefaultProbeDeadline if zero).
func New(gw domain.Gateway, bus *events.Bus, log zerolog.Logger, interval time.Duration, deadline time.Duration) *Monitor {
	if deadline <= 0 {
		deadline = DefaultProbeDeadline
	}
	m := &Monitor{gw: gw, bus: bus, log: log, interval: interval, deadline: deadline}
	m.snapshot.Store(&domain.HealthSnapshot{})
	return m
}

// Snapshot returns the most recently published HealthSnapshot.
func (m *Monitor) Snapshot() domain.HealthSnapshot {
	return *m.snapshot.Load()
}

// Run blocks, refreshing the snapshot every m.interval, until ctx is
// canceled. Call Refresh directly for an out-of-cadence check.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}

// Refresh runs all four probes concurrently and publishes the result.
// A slow or failing probe never delays the others: each runs under
// its own deadline and a probe timeout counts as false.
func (m *Monitor) Refresh(ctx context.Context) domain.HealthSnapshot {
	results := [4]bool{}
	targets := []struct {
		idx  int
		side domain.Side
		kind string
	}{
		{0, domain.Primary, "db"},
		{1, domain.Standby, "db"},
		{2, domain.Primary, "auth"},
		{3, domain.Standby, "auth"},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		t := t
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gctx, m.deadline)
			defer cancel()

			err := m.gw.Probe(probeCtx, t.side, t.kind)
			results[t.idx] = err == nil
			if err != nil {
				m.log.Warn().Str("side", t.side.String()).Str("kind", t.kind).Err(err).Msg("health probe failed")
			}
			return nil
		})
	}
	_ = g.Wait() // probes never return an error themselves; only logged

	snap := domain.HealthSnapshot{
		PrimaryDB:   results[0],
		StandbyDB:   results[1],
		PrimaryAuth: results[2],
		StandbyAuth: results[3],
		Timestamp:   time.Now().UTC(),
	}
	m.snapshot.Store(&snap)

	if m.bus != nil {
		m.bus.Publish(events.Event{Type: events.Health, Payload: events.NewHealthPayload(snap)})
	}
	return snap
}
