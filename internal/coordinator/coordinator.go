// Package coordinator implements the top-level state machine: it
// serializes forward replication, recovery, and auth passes behind a
// single mutex, consults the Health Monitor before touching either
// side, drives the Document Replicator/Auth Replicator/Reconciler in
// turn, persists counters and watermarks after every run, and
// publishes events in causal order throughout.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brahimakil/appointment-backend-database-synch/internal/authsync"
	"github.com/brahimakil/appointment-backend-database-synch/internal/docsync"
	"github.com/brahimakil/appointment-backend-database-synch/internal/domain"
	"github.com/brahimakil/appointment-backend-database-synch/internal/events"
	"github.com/brahimakil/appointment-backend-database-synch/internal/gwerrors"
	"github.com/brahimakil/appointment-backend-database-synch/internal/health"
	"github.com/brahimakil/appointment-backend-database-synch/internal/reconcile"
	"github.com/brahimakil/appointment-backend-database-synch/internal/schema"
	"github.com/brahimakil/appointment-backend-database-synch/internal/statsfile"
)

// Stats is the snapshot Stats() hands back: counters, per-collection
// watermarks, known schemas, and the current health picture.
type Stats struct {
	Counters domain.RunCounters
	Watermarks map[string]domain.CollectionWatermarks
	Schemas    map[string][]string
	Health     domain.HealthSnapshot
	Status     domain.RunStatus
}

// Coordinator is the engine's single entry point; every exported
// method is safe to call concurrently, and all but Stats and
// ResetStats serialize against each other through runMu.
type Coordinator struct {
	gw         domain.Gateway
	bus        *events.Bus
	monitor    *health.Monitor
	tracker    *schema.Tracker
	docs       *docsync.Replicator
	auth       *authsync.Replicator
	reconciler *reconcile.Reconciler
	store      *statsfile.Store
	log        zerolog.Logger

	runMu sync.Mutex

	stateMu            sync.RWMutex
	counters           domain.RunCounters
	watermarks         map[string]domain.CollectionWatermarks
	status             domain.RunStatus
	runsSinceReconcile int64
}

// New constructs a Coordinator and loads any persisted state from
// store; a missing stats file starts the engine from zero.
func New(
	gw domain.Gateway,
	bus *events.Bus,
	monitor *health.Monitor,
	tracker *schema.Tracker,
	docs *docsync.Replicator,
	auth *authsync.Replicator,
	reconciler *reconcile.Reconciler,
	store *statsfile.Store,
	log zerolog.Logger,
) (*Coordinator, error) {
	st, err := store.Load()
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		gw:         gw,
		bus:        bus,
		monitor:    monitor,
		tracker:    tracker,
		docs:       docs,
		auth:       auth,
		reconciler: reconciler,
		store:      store,
		log:        log,
		counters:   st.Counters,
		watermarks: st.Watermarks,
		status:     domain.StatusIdle,
	}
	if c.watermarks == nil {
		c.watermarks = make(map[string]domain.CollectionWatermarks)
	}
	return c, nil
}

// RunOnce performs one incremental forward pass: health gate,
// collection discovery, per-collection forward replication, auth
// replication, then persistence. Returns gwerrors.Busy immediately
// (not an error from the run itself) if a run is already active.
func (c *Coordinator) RunOnce(ctx context.Context) (domain.RunStatus, error) {
	if !c.runMu.TryLock() {
		c.publishBusy()
		return domain.StatusRunning, gwerrors.Busy
	}
	defer c.runMu.Unlock()
	return c.runForward(ctx, domain.Incremental)
}

// ForceFull clears every collection's forward watermark, so the next
// pass re-scans each collection from the beginning, then runs a
// forward pass.
func (c *Coordinator) ForceFull(ctx context.Context) (domain.RunStatus, error) {
	if !c.runMu.TryLock() {
		c.publishBusy()
		return domain.StatusRunning, gwerrors.Busy
	}
	defer c.runMu.Unlock()

	c.stateMu.Lock()
	for coll, wm := range c.watermarks {
		wm.Forward = domain.Watermark{}
		c.watermarks[coll] = wm
	}
	c.stateMu.Unlock()

	return c.runForward(ctx, domain.Full)
}

// ForceAuth runs a full, unfiltered authentication-directory pass
// from primary into standby, independent of the document watermarks.
func (c *Coordinator) ForceAuth(ctx context.Context) (domain.RunStatus, error) {
	if !c.runMu.TryLock() {
		c.publishBusy()
		return domain.StatusRunning, gwerrors.Busy
	}
	defer c.runMu.Unlock()

	runID := uuid.NewString()
	c.setStatus(domain.StatusRunning)
	c.publishRunStarted(runID, "auth")

	snapshot := c.monitor.Snapshot()
	decision := domain.Gate(snapshot)
	if !decision.ReplicateAuth {
		c.setStatus(decision.Status)
		c.persist()
		c.publishRunCompleted(runID, decision.Status, decision.Reason)
		return decision.Status, nil
	}

	res, err := c.auth.ReplicateAuth(ctx, domain.Full, time.Time{}, domain.Primary, domain.Standby)
	c.foldAuthResult(res)
	if err != nil {
		c.setStatus(domain.StatusError)
		c.persist()
		c.publishRunCompleted(runID, domain.StatusError, err.Error())
		return domain.StatusError, err
	}

	c.setStatus(domain.StatusCompleted)
	c.persist()
	c.publishRunCompleted(runID, domain.StatusCompleted, "")
	return domain.StatusCompleted, nil
}

// Recover propagates standby state back into primary: health gate,
// per-collection recovery, an incremental auth pass from standby into
// primary, then an implicit reconcile pass.
func (c *Coordinator) Recover(ctx context.Context) (domain.RunStatus, error) {
	if !c.runMu.TryLock() {
		c.publishBusy()
		return domain.StatusRunning, gwerrors.Busy
	}
	defer c.runMu.Unlock()

	runID := uuid.NewString()
	c.setStatus(domain.StatusRecovering)
	c.publishRunStarted(runID, "recover")

	snapshot := c.monitor.Snapshot()
	decision := domain.Gate(snapshot)
	if !decision.ReplicateDB {
		c.setStatus(decision.Status)
		c.persist()
		c.publishRunCompleted(runID, decision.Status, decision.Reason)
		return decision.Status, nil
	}

	collections, err := c.gw.ListCollections(ctx, domain.Standby)
	if err != nil {
		c.setStatus(domain.StatusError)
		c.persist()
		c.publishRunCompleted(runID, domain.StatusError, err.Error())
		return domain.StatusError, err
	}

	paused := false
	for _, coll := range collections {
		since := c.watermarkFor(coll).Recover

		res, err := c.docs.RecoverCollection(ctx, coll, since, func() bool {
			return c.monitor.Snapshot().StandbyDB
		})
		c.foldCollectionResult(coll, domain.Recover, res)
		if err != nil {
			c.log.Warn().Err(err).Str("collection", coll).Msg("recovery failed for collection")
			continue
		}
		if res.Paused {
			paused = true
			break
		}
	}

	if decision.ReplicateAuth {
		authRes, err := c.auth.ReplicateAuth(ctx, domain.Incremental, c.authWatermark(), domain.Standby, domain.Primary)
		c.foldAuthResult(authRes)
		if err != nil {
			c.log.Warn().Err(err).Msg("auth recovery pass failed")
		}
	}

	if _, err := c.reconcileAll(ctx); err != nil {
		c.log.Warn().Err(err).Msg("post-recovery reconcile pass failed")
	}

	status := domain.StatusCompleted
	if paused {
		status = domain.StatusPaused
	}
	c.setStatus(status)
	c.persist()
	c.publishRunCompleted(runID, status, "")
	return status, nil
}

// Reconcile runs a read-only integrity pass over every collection and
// the authentication directory, on demand.
func (c *Coordinator) Reconcile(ctx context.Context) (map[string]domain.IntegrityReport, domain.AuthIntegrityReport, error) {
	if !c.runMu.TryLock() {
		c.publishBusy()
		return nil, domain.AuthIntegrityReport{}, gwerrors.Busy
	}
	defer c.runMu.Unlock()

	reports, err := c.reconcileAll(ctx)
	if err != nil {
		return reports, domain.AuthIntegrityReport{}, err
	}

	authReport, err := c.reconciler.ReconcileAuth(ctx)
	if err != nil {
		return reports, domain.AuthIntegrityReport{}, err
	}
	if c.bus != nil {
		c.bus.Publish(events.Event{Type: events.AuthIntegrityReport, Payload: authReport})
	}
	return reports, authReport, nil
}

// Stats returns a snapshot of counters, watermarks, known schemas,
// and current health. It does not serialize against a run in
// progress: it only reads state already safe for concurrent access.
func (c *Coordinator) Stats() Stats {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	watermarks := make(map[string]domain.CollectionWatermarks, len(c.watermarks))
	schemas := make(map[string][]string, len(c.watermarks))
	for coll, wm := range c.watermarks {
		watermarks[coll] = wm
		schemas[coll] = c.tracker.Schema(coll)
	}

	return Stats{
		Counters:   c.counters,
		Watermarks: watermarks,
		Schemas:    schemas,
		Health:     c.monitor.Snapshot(),
		Status:     c.status,
	}
}

// ResetStats zeroes the cumulative counters (watermarks and schemas
// are untouched) and persists and publishes the reset.
func (c *Coordinator) ResetStats(ctx context.Context) error {
	c.stateMu.Lock()
	c.counters = domain.RunCounters{}
	c.stateMu.Unlock()

	if err := c.persistErr(); err != nil {
		return err
	}
	if c.bus != nil {
		c.bus.Publish(events.Event{Type: events.StatsReset})
	}
	return nil
}

func (c *Coordinator) runForward(ctx context.Context, mode domain.Mode) (domain.RunStatus, error) {
	runID := uuid.NewString()
	kind := "forward"
	if mode == domain.Full {
		kind = "full"
	}
	c.setStatus(domain.StatusRunning)
	c.publishRunStarted(runID, kind)

	snapshot := c.monitor.Snapshot()
	decision := domain.Gate(snapshot)
	if !decision.ReplicateDB {
		c.setStatus(decision.Status)
		if decision.Status == domain.StatusError {
			c.stateMu.Lock()
			c.counters.Errors++
			c.stateMu.Unlock()
		}
		c.persist()
		c.publishRunCompleted(runID, decision.Status, decision.Reason)
		return decision.Status, nil
	}

	collections, err := c.gw.ListCollections(ctx, domain.Primary)
	if err != nil {
		c.setStatus(domain.StatusError)
		c.persist()
		c.publishRunCompleted(runID, domain.StatusError, err.Error())
		return domain.StatusError, err
	}

	paused := false
	for _, coll := range collections {
		since := c.watermarkFor(coll).Forward
		if mode == domain.Full {
			since = domain.Watermark{}
		}

		res, err := c.docs.ReplicateCollection(
			ctx,
			domain.Primary, domain.Standby,
			coll,
			mode,
			since,
			func() bool { return c.monitor.Snapshot().PrimaryDB },
			events.CollectionCompleted,
			events.CollectionProgress,
		)
		c.foldCollectionResult(coll, domain.Forward, res)
		if err != nil {
			c.log.Warn().Err(err).Str("collection", coll).Msg("replication failed for collection")
			continue
		}
		if res.Paused {
			paused = true
			break
		}
	}

	authErrored := false
	if !paused {
		switch {
		case decision.ReplicateAuth:
			authRes, err := c.auth.ReplicateAuth(ctx, domain.Incremental, c.authWatermark(), domain.Primary, domain.Standby)
			c.foldAuthResult(authRes)
			if err != nil {
				c.log.Warn().Err(err).Msg("auth replication failed")
			}
		case decision.Status == domain.StatusError:
			// Gate row 4: standby auth unreachable. The DB phase still
			// completed, but the run as a whole must not report success.
			authErrored = true
			c.log.Warn().Str("reason", decision.Reason).Msg("auth phase skipped")
		}
	}

	c.stateMu.Lock()
	c.counters.IncrementalRunCount++
	c.counters.LastRunAt = now()
	if mode == domain.Full {
		c.counters.LastFullRunAt = now()
	}
	c.runsSinceReconcile++
	dueForReconcile := c.runsSinceReconcile >= domain.ReconcileEveryNRuns
	if dueForReconcile {
		c.runsSinceReconcile = 0
	}
	c.stateMu.Unlock()

	if dueForReconcile {
		if c.bus != nil {
			c.bus.Publish(events.Event{
				Type: events.AutoRunTriggered,
				Payload: events.AutoRunTriggeredPayload{
					Timestamp:    now(),
					IntervalHint: "reconcile",
				},
			})
		}
		if _, err := c.reconcileAll(ctx); err != nil {
			c.log.Warn().Err(err).Msg("automatic reconcile pass failed")
		}
	}

	status := domain.StatusCompleted
	reason := ""
	switch {
	case paused:
		status = domain.StatusPaused
	case authErrored:
		status = domain.StatusError
		reason = decision.Reason
		c.stateMu.Lock()
		c.counters.Errors++
		c.stateMu.Unlock()
	}
	c.setStatus(status)
	c.persist()
	c.publishRunCompleted(runID, status, reason)
	return status, nil
}

// reconcileAll runs ReconcileCollection over every collection known to
// primary and publishes one integrityReport event per collection.
func (c *Coordinator) reconcileAll(ctx context.Context) (map[string]domain.IntegrityReport, error) {
	collections, err := c.gw.ListCollections(ctx, domain.Primary)
	if err != nil {
		return nil, err
	}

	reports := make(map[string]domain.IntegrityReport, len(collections))
	for _, coll := range collections {
		report, err := c.reconciler.ReconcileCollection(ctx, coll)
		if err != nil {
			c.log.Warn().Err(err).Str("collection", coll).Msg("reconcile failed for collection")
			continue
		}
		reports[coll] = report
		if c.bus != nil {
			c.bus.Publish(events.Event{Type: events.IntegrityReport, Payload: report})
		}
	}
	return reports, nil
}

func (c *Coordinator) watermarkFor(collection string) domain.CollectionWatermarks {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.watermarks[collection]
}

func (c *Coordinator) authWatermark() time.Time {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.counters.Auth.LastAuthRunAt
}

func (c *Coordinator) foldCollectionResult(collection string, dir domain.Direction, res docsync.Result) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	c.counters.TotalDocumentsWritten += res.Written
	c.counters.DuplicatesSkipped += res.DuplicatesSkipped
	c.counters.Errors += res.Errors

	wm := c.watermarks[collection]
	if dir == domain.Forward {
		wm.Forward = res.NewWatermark
	} else {
		wm.Recover = res.NewWatermark
	}
	c.watermarks[collection] = wm
}

func (c *Coordinator) foldAuthResult(res authsync.Result) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	c.counters.Auth.TotalUsers += res.TotalUsers
	c.counters.Auth.SyncedUsers += res.SyncedUsers
	c.counters.Auth.CustomClaimsPropagated += res.CustomClaimsPropagated
	c.counters.Auth.AuthErrors += res.Errors
	c.counters.Auth.LastAuthRunAt = now()
}

func (c *Coordinator) setStatus(s domain.RunStatus) {
	c.stateMu.Lock()
	c.status = s
	c.stateMu.Unlock()
}

func (c *Coordinator) persist() {
	if err := c.persistErr(); err != nil {
		c.log.Warn().Err(err).Msg("failed to persist stats file")
	}
}

func (c *Coordinator) persistErr() error {
	c.stateMu.RLock()
	st := statsfile.State{Counters: c.counters, Watermarks: c.watermarks}
	c.stateMu.RUnlock()
	return c.store.Save(st)
}

func (c *Coordinator) publishBusy() {
	if c.bus != nil {
		c.bus.Publish(events.Event{Type: events.Busy})
	}
}

func (c *Coordinator) publishRunStarted(runID, kind string) {
	if c.bus != nil {
		c.bus.Publish(events.Event{
			Type: events.RunStarted,
			Payload: events.RunStartedPayload{
				RunID:     runID,
				Kind:      kind,
				Timestamp: now(),
			},
		})
	}
}

func (c *Coordinator) publishRunCompleted(runID string, status domain.RunStatus, reason string) {
	if c.bus != nil {
		c.bus.Publish(events.Event{
			Type: events.RunCompleted,
			Payload: events.RunCompletedPayload{
				RunID:     runID,
				Status:    status,
				Reason:    reason,
				Timestamp: now(),
			},
		})
	}
}

// now is the single time source for Coordinator-stamped events and
// counters, isolated so it stays easy to stub in tests.
var now = time.Now
