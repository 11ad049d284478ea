package coordinator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brahimakil/appointment-backend-database-synch/internal/authsync"
	"github.com/brahimakil/appointment-backend-database-synch/internal/docsync"
	"github.com/brahimakil/appointment-backend-database-synch/internal/domain"
	"github.com/brahimakil/appointment-backend-database-synch/internal/events"
	"github.com/brahimakil/appointment-backend-database-synch/internal/gwerrors"
	"github.com/brahimakil/appointment-backend-database-synch/internal/gwfake"
	"github.com/brahimakil/appointment-backend-database-synch/internal/health"
	"github.com/brahimakil/appointment-backend-database-synch/internal/reconcile"
	"github.com/brahimakil/appointment-backend-database-synch/internal/schema"
	"github.com/brahimakil/appointment-backend-database-synch/internal/statsfile"
)

// harness wires a full Coordinator against an in-memory gwfake.Gateway,
// mirroring what cmd/synchd assembles against a real Firestore/Auth
// backend.
type harness struct {
	gw   *gwfake.Gateway
	bus  *events.Bus
	mon  *health.Monitor
	coo  *Coordinator
}

func newHarness(t *testing.T) *harness {
	gw := gwfake.New()
	bus := events.NewBus()
	mon := health.New(gw, bus, zerolog.Nop(), time.Hour, time.Second)
	tracker := schema.New(bus)
	docs := docsync.New(gw, bus, tracker, zerolog.Nop(), 0)
	auth := authsync.New(gw, bus, domain.HashParams{Algorithm: "SCRYPT"}, zerolog.Nop())
	rec := reconcile.New(gw)
	store := statsfile.New(filepath.Join(t.TempDir(), "stats.json"))

	coo, err := New(gw, bus, mon, tracker, docs, auth, rec, store, zerolog.Nop())
	require.NoError(t, err)

	return &harness{gw: gw, bus: bus, mon: mon, coo: coo}
}

func TestCoordinator_FreshBringUpReplicatesEveryDocument(t *testing.T) {
	h := newHarness(t)
	h.gw.Seed(domain.Primary, "appointments",
		domain.Document{ID: "a1", UpdatedAt: time.Unix(1, 0), HasTimestamp: true},
		domain.Document{ID: "a2", UpdatedAt: time.Unix(2, 0), HasTimestamp: true},
	)
	h.mon.Refresh(context.Background())

	status, err := h.coo.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, status)

	_, ok := h.gw.Doc(domain.Standby, "appointments", "a1")
	assert.True(t, ok)
	_, ok = h.gw.Doc(domain.Standby, "appointments", "a2")
	assert.True(t, ok)

	stats := h.coo.Stats()
	assert.Equal(t, int64(2), stats.Counters.TotalDocumentsWritten)
	assert.True(t, stats.Watermarks["appointments"].Forward.HasTimestamp)
}

func TestCoordinator_IncrementalRunWithNoChangesWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.gw.Seed(domain.Primary, "appointments", domain.Document{ID: "a1", UpdatedAt: time.Unix(1, 0), HasTimestamp: true})
	h.mon.Refresh(context.Background())

	_, err := h.coo.RunOnce(context.Background())
	require.NoError(t, err)

	status, err := h.coo.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, status)

	stats := h.coo.Stats()
	assert.Equal(t, int64(1), stats.Counters.TotalDocumentsWritten, "second pass found nothing new to write")
}

func TestCoordinator_UpdatePropagatesOnNextIncrementalRun(t *testing.T) {
	h := newHarness(t)
	h.gw.Seed(domain.Primary, "appointments", domain.Document{ID: "a1", UpdatedAt: time.Unix(1, 0), HasTimestamp: true})
	h.mon.Refresh(context.Background())
	_, err := h.coo.RunOnce(context.Background())
	require.NoError(t, err)

	h.gw.Seed(domain.Primary, "appointments", domain.Document{
		ID: "a1", Data: map[string]interface{}{"status": "rescheduled"},
		UpdatedAt: time.Unix(5, 0), HasTimestamp: true,
	})
	status, err := h.coo.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, status)

	got, ok := h.gw.Doc(domain.Standby, "appointments", "a1")
	require.True(t, ok)
	assert.Equal(t, "rescheduled", got.Data["status"])

	stats := h.coo.Stats()
	assert.Equal(t, int64(2), stats.Counters.TotalDocumentsWritten)
}

func TestCoordinator_PrimaryOutagePausesWithoutTouchingEitherSide(t *testing.T) {
	h := newHarness(t)
	h.gw.Seed(domain.Primary, "appointments", domain.Document{ID: "a1", UpdatedAt: time.Unix(1, 0), HasTimestamp: true})
	h.gw.SetProbeErr(domain.Primary, "db", gwerrors.Unavailable)
	h.mon.Refresh(context.Background())

	status, err := h.coo.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, status)

	_, ok := h.gw.Doc(domain.Standby, "appointments", "a1")
	assert.False(t, ok, "a paused run must not replicate anything")
}

func TestCoordinator_StandbyOutageIsReportedAsError(t *testing.T) {
	h := newHarness(t)
	h.gw.SetProbeErr(domain.Standby, "db", gwerrors.Unavailable)
	h.mon.Refresh(context.Background())

	status, err := h.coo.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, status)
	assert.Equal(t, int64(1), h.coo.Stats().Counters.Errors, "a gate-level error must still bump the errors counter")
}

func TestCoordinator_StandbyAuthOutageReplicatesDocsButErrorsTheRun(t *testing.T) {
	h := newHarness(t)
	h.gw.Seed(domain.Primary, "appointments", domain.Document{ID: "a1", UpdatedAt: time.Unix(1, 0), HasTimestamp: true})
	h.gw.SetProbeErr(domain.Standby, "auth", gwerrors.Unavailable)
	h.mon.Refresh(context.Background())

	status, err := h.coo.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, status, "standby auth unreachable must not be reported as a completed run")

	_, ok := h.gw.Doc(domain.Standby, "appointments", "a1")
	assert.True(t, ok, "the DB phase still completes even though the auth phase is skipped")
	assert.Equal(t, int64(1), h.coo.Stats().Counters.Errors)
}

func TestCoordinator_PrimaryAuthOutagePausesOnlyTheAuthPhase(t *testing.T) {
	h := newHarness(t)
	h.gw.Seed(domain.Primary, "appointments", domain.Document{ID: "a1", UpdatedAt: time.Unix(1, 0), HasTimestamp: true})
	h.gw.SetProbeErr(domain.Primary, "auth", gwerrors.Unavailable)
	h.mon.Refresh(context.Background())

	status, err := h.coo.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, status, "a primary-auth-only outage still completes the run")

	_, ok := h.gw.Doc(domain.Standby, "appointments", "a1")
	assert.True(t, ok)
}

func TestCoordinator_RecoverReplicatesStandbyStateBackToPrimary(t *testing.T) {
	h := newHarness(t)
	h.gw.Seed(domain.Standby, "appointments", domain.Document{ID: "a1", UpdatedAt: time.Unix(1, 0), HasTimestamp: true})
	h.mon.Refresh(context.Background())

	status, err := h.coo.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, status)

	_, ok := h.gw.Doc(domain.Primary, "appointments", "a1")
	assert.True(t, ok)
}

func TestCoordinator_ReconcileReportsDivergenceWithoutMutating(t *testing.T) {
	h := newHarness(t)
	h.gw.Seed(domain.Primary, "appointments",
		domain.Document{ID: "a1"}, domain.Document{ID: "a2"}, domain.Document{ID: "a3"}, domain.Document{ID: "a8"},
	)
	h.gw.Seed(domain.Standby, "appointments",
		domain.Document{ID: "a1"}, domain.Document{ID: "a2"}, domain.Document{ID: "a3"}, domain.Document{ID: "a9"},
	)

	reports, _, err := h.coo.Reconcile(context.Background())
	require.NoError(t, err)

	report := reports["appointments"]
	assert.Equal(t, 4, report.PrimaryCount)
	assert.Equal(t, 4, report.StandbyCount)
	assert.Equal(t, []string{"a8"}, report.MissingInStandby)
	assert.Equal(t, []string{"a9"}, report.MissingInPrimary)

	_, ok := h.gw.Doc(domain.Standby, "appointments", "a8")
	assert.False(t, ok, "reconcile never writes")
	_, ok = h.gw.Doc(domain.Primary, "appointments", "a9")
	assert.False(t, ok, "reconcile never writes")
}

func TestCoordinator_ConcurrentRunOnceReturnsBusy(t *testing.T) {
	h := newHarness(t)
	h.coo.runMu.Lock()
	defer h.coo.runMu.Unlock()

	status, err := h.coo.RunOnce(context.Background())
	assert.ErrorIs(t, err, gwerrors.Busy)
	assert.Equal(t, domain.StatusRunning, status)
}

func TestCoordinator_ResetStatsZeroesCountersButKeepsWatermarks(t *testing.T) {
	h := newHarness(t)
	h.gw.Seed(domain.Primary, "appointments", domain.Document{ID: "a1", UpdatedAt: time.Unix(1, 0), HasTimestamp: true})
	h.mon.Refresh(context.Background())
	_, err := h.coo.RunOnce(context.Background())
	require.NoError(t, err)

	require.NoError(t, h.coo.ResetStats(context.Background()))

	stats := h.coo.Stats()
	assert.Equal(t, int64(0), stats.Counters.TotalDocumentsWritten)
	assert.True(t, stats.Watermarks["appointments"].Forward.HasTimestamp, "resetting stats must not touch watermarks")
}
