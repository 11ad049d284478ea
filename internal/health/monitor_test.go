package health

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/brahimakil/appointment-backend-database-synch/internal/domain"
	"github.com/brahimakil/appointment-backend-database-synch/internal/events"
	"github.com/brahimakil/appointment-backend-database-synch/internal/gwerrors"
	"github.com/brahimakil/appointment-backend-database-synch/internal/gwfake"
)

func TestMonitor_RefreshAllHealthyPublishesHealthySnapshot(t *testing.T) {
	gw := gwfake.New()
	bus := events.NewBus()
	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	m := New(gw, bus, zerolog.Nop(), time.Minute, time.Second)
	snap := m.Refresh(context.Background())

	assert.True(t, snap.Healthy())
	assert.True(t, snap.PrimaryDB)
	assert.True(t, snap.StandbyDB)
	assert.True(t, snap.PrimaryAuth)
	assert.True(t, snap.StandbyAuth)

	evt := <-ch
	assert.Equal(t, events.Health, evt.Type)
	assert.Equal(t, snap, m.Snapshot())
}

func TestMonitor_RefreshOneFailingProbeIsIsolated(t *testing.T) {
	gw := gwfake.New()
	gw.SetProbeErr(domain.Standby, "db", gwerrors.Unavailable)

	m := New(gw, nil, zerolog.Nop(), time.Minute, time.Second)
	snap := m.Refresh(context.Background())

	assert.False(t, snap.Healthy())
	assert.True(t, snap.PrimaryDB)
	assert.False(t, snap.StandbyDB)
	assert.True(t, snap.PrimaryAuth)
	assert.True(t, snap.StandbyAuth)
}

func TestMonitor_SnapshotBeforeAnyRefreshIsZeroValue(t *testing.T) {
	m := New(gwfake.New(), nil, zerolog.Nop(), time.Minute, 0)
	assert.False(t, m.Snapshot().Healthy())
}

func TestMonitor_RunStopsOnContextCancel(t *testing.T) {
	gw := gwfake.New()
	m := New(gw, nil, zerolog.Nop(), time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}

	assert.True(t, m.Snapshot().Healthy(), "at least one refresh should have completed before cancel")
}
