package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brahimakil/appointment-backend-database-synch/internal/domain"
	"github.com/brahimakil/appointment-backend-database-synch/internal/gwerrors"
	"github.com/brahimakil/appointment-backend-database-synch/internal/gwfake"
)

func TestReconcileCollection_ReportsSymmetricDifference(t *testing.T) {
	gw := gwfake.New()
	gw.Seed(domain.Primary, "appointments",
		domain.Document{ID: "a1"}, domain.Document{ID: "a2"}, domain.Document{ID: "a3"}, domain.Document{ID: "a8"},
	)
	gw.Seed(domain.Standby, "appointments",
		domain.Document{ID: "a1"}, domain.Document{ID: "a2"}, domain.Document{ID: "a3"}, domain.Document{ID: "a9"},
	)

	r := New(gw)
	report, err := r.ReconcileCollection(context.Background(), "appointments")
	require.NoError(t, err)

	assert.Equal(t, 4, report.PrimaryCount)
	assert.Equal(t, 4, report.StandbyCount)
	assert.Equal(t, []string{"a8"}, report.MissingInStandby)
	assert.Equal(t, []string{"a9"}, report.MissingInPrimary)
}

func TestReconcileCollection_NeverMutatesEitherSide(t *testing.T) {
	gw := gwfake.New()
	gw.Seed(domain.Primary, "c", domain.Document{ID: "only-primary"})

	r := New(gw)
	_, err := r.ReconcileCollection(context.Background(), "c")
	require.NoError(t, err)

	_, ok := gw.Doc(domain.Standby, "c", "only-primary")
	assert.False(t, ok, "reconcile must never write")
}

func TestReconcileCollection_TruncatedScanIsNeverSwallowed(t *testing.T) {
	gw := gwfake.New()
	gw.Seed(domain.Primary, "appointments", domain.Document{ID: "a1"})
	gw.SetScanErr(domain.Primary, "appointments", gwerrors.Unavailable)

	r := New(gw)
	_, err := r.ReconcileCollection(context.Background(), "appointments")
	require.Error(t, err, "a scan that errors partway through must not be reported as a clean reconcile")
}

func TestReconcileAuth_ReportsUIDDifference(t *testing.T) {
	gw := gwfake.New()
	gw.SeedUsers(domain.Primary, domain.User{UID: "u1"}, domain.User{UID: "u2"})
	gw.SeedUsers(domain.Standby, domain.User{UID: "u1"})

	r := New(gw)
	report, err := r.ReconcileAuth(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.PrimaryCount)
	assert.Equal(t, 1, report.StandbyCount)
	assert.Equal(t, []string{"u2"}, report.MissingInStandby)
	assert.Empty(t, report.MissingInPrimary)
}
