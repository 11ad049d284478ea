package events

import (
	"time"

	"github.com/brahimakil/appointment-backend-database-synch/internal/domain"
)

// HealthPayload mirrors the `health` event's published shape.
type HealthPayload struct {
	PrimaryDB   bool      `json:"primaryDb"`
	StandbyDB   bool      `json:"standbyDb"`
	PrimaryAuth bool      `json:"primaryAuth"`
	StandbyAuth bool      `json:"standbyAuth"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewHealthPayload(h domain.HealthSnapshot) HealthPayload {
	return HealthPayload{
		PrimaryDB:   h.PrimaryDB,
		StandbyDB:   h.StandbyDB,
		PrimaryAuth: h.PrimaryAuth,
		StandbyAuth: h.StandbyAuth,
		Timestamp:   h.Timestamp,
	}
}

// CollectionProgressPayload mirrors the `collectionProgress` /
// `recoveryProgress` event shape. There is no ofTotal field: the
// source is a live ScanSince cursor, so the total document count for
// the collection is never known ahead of the scan finishing.
type CollectionProgressPayload struct {
	Collection   string `json:"collection"`
	WrittenSoFar int64  `json:"writtenSoFar"`
	Phase        string `json:"phase"`
}

// CollectionCompletedPayload mirrors `collectionCompleted` /
// `collectionRecovered`.
type CollectionCompletedPayload struct {
	Collection   string    `json:"collection"`
	WrittenCount int64     `json:"writtenCount"`
	Incremental  bool      `json:"incremental"`
	Timestamp    time.Time `json:"timestamp"`
}

// SchemaChangePayload mirrors `schemaChange`.
type SchemaChangePayload struct {
	Collection string   `json:"collection"`
	NewKeys    []string `json:"newKeys"`
	TotalKeys  int      `json:"totalKeys"`
}

// AutoRunTriggeredPayload mirrors `autoRunTriggered`.
type AutoRunTriggeredPayload struct {
	Timestamp    time.Time `json:"timestamp"`
	IntervalHint string    `json:"intervalHint"`
}

// AuthProgressPayload mirrors `authProgress`.
type AuthProgressPayload struct {
	Phase     string `json:"phase"` // "export" | "import"
	UserCount int    `json:"userCount"`
	OfTotal   int    `json:"ofTotal"`
}

// AuthCompletedPayload mirrors `authCompleted`.
type AuthCompletedPayload struct {
	TotalUsers             int64     `json:"totalUsers"`
	SyncedUsers            int64     `json:"syncedUsers"`
	CustomClaimsPropagated int64     `json:"customClaimsPropagated"`
	Errors                 int64     `json:"errors"`
	Timestamp              time.Time `json:"timestamp"`
}

// RunCompletedPayload carries the terminal status of a RunOnce/Recover
// pass.
type RunCompletedPayload struct {
	RunID     string           `json:"runId"`
	Status    domain.RunStatus `json:"status"`
	Reason    string           `json:"reason,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// RunStartedPayload announces the beginning of a run.
type RunStartedPayload struct {
	RunID     string    `json:"runId"`
	Kind      string    `json:"kind"` // "forward" | "full" | "recover" | "auth"
	Timestamp time.Time `json:"timestamp"`
}
