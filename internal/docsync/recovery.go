package docsync

import (
	"context"

	"github.com/brahimakil/appointment-backend-database-synch/internal/domain"
	"github.com/brahimakil/appointment-backend-database-synch/internal/events"
)

// RecoverCollection propagates standby state back into primary
// symmetric to ReplicateCollection but reading from
// standby and writing to primary, seeded by the recover-direction
// watermark so it never re-propagates what forward replication has
// already covered. Recovery never deletes: it is upsert-merge only.
// Because AtLeastAsNewAs already makes ReplicateCollection skip any
// document whose target copy is not older, "standby's is newer" is
// exactly the condition under which a write happens here.
func (r *Replicator) RecoverCollection(
	ctx context.Context,
	collection string,
	since domain.Watermark,
	healthy func() bool,
) (Result, error) {
	return r.ReplicateCollection(
		ctx,
		domain.Standby, domain.Primary,
		collection,
		domain.Incremental,
		since,
		healthy,
		events.CollectionRecovered,
		events.RecoveryProgress,
	)
}
