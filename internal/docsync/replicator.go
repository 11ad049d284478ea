// Package docsync implements the Document Replicator and its
// symmetric Recovery mode: a per-collection
// incremental copy driven by an updatedAt watermark, with duplicate
// suppression against the target and bounded batch commits.
package docsync

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/brahimakil/appointment-backend-database-synch/internal/domain"
	"github.com/brahimakil/appointment-backend-database-synch/internal/events"
	"github.com/brahimakil/appointment-backend-database-synch/internal/schema"
)

// Result is what one ReplicateCollection/RecoverCollection call
// reports back to the Coordinator for counter bookkeeping.
type Result struct {
	Written           int64
	DuplicatesSkipped int64
	Errors            int64
	NewWatermark      domain.Watermark
	Paused            bool
}

// Replicator drives document replication for one collection at a
// time. A single Replicator is shared by forward and recovery passes;
// direction is expressed purely by which side is "src" and which is
// "tgt" in each call.
type Replicator struct {
	gw        domain.Gateway
	bus       *events.Bus
	tracker   *schema.Tracker
	log       zerolog.Logger
	chunkSize int
}

// New constructs a Replicator. chunkSize overrides domain.ReadChunkSize
// (BATCH_SIZE in the environment) when positive.
func New(gw domain.Gateway, bus *events.Bus, tracker *schema.Tracker, log zerolog.Logger, chunkSize int) *Replicator {
	if chunkSize <= 0 {
		chunkSize = domain.ReadChunkSize
	}
	return &Replicator{gw: gw, bus: bus, tracker: tracker, log: log, chunkSize: chunkSize}
}

// ReplicateCollection copies collection from src to tgt starting at
// since (zero Watermark for a full pass), following the
// algorithm. healthy is polled between chunks so a mid-run loss of src
// ends the run in Paused without aborting an in-flight batch.
// completedEvent/progressEvent pick the event types
// (collectionCompleted/collectionProgress vs
// collectionRecovered/recoveryProgress) so the same algorithm serves
// both forward replication and recovery; progress payloads carry the
// phase "writing" in both directions.
func (r *Replicator) ReplicateCollection(
	ctx context.Context,
	src, tgt domain.Side,
	collection string,
	mode domain.Mode,
	since domain.Watermark,
	healthy func() bool,
	completedEvent events.Type,
	progressEvent events.Type,
) (Result, error) {
	stream, err := r.gw.ScanSince(ctx, src, collection, since)
	if err != nil {
		return Result{NewWatermark: since}, err
	}

	res := Result{NewWatermark: since}
	chunk := make([]domain.Document, 0, r.chunkSize)
	pending := make([]domain.Document, 0, domain.MaxBatchOps)

	// committed is the watermark folded from successfully committed
	// batches only; batchMax tracks the max timestamp of the
	// currently-pending (not yet committed) batch and is discarded,
	// never folded in, if that batch's commit fails: per-batch max is
	// tracked separately and only folded in on commit success.
	committed := since
	batchMax := since
	sampled := false

	flushChunk := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if !sampled && r.tracker != nil {
			r.tracker.Sample(ctx, collection, chunk)
			sampled = true
		}

		ids := make([]string, len(chunk))
		for i, d := range chunk {
			ids[i] = d.ID
		}
		targets, err := r.gw.MultiGet(ctx, tgt, collection, ids)
		if err != nil {
			res.Errors++
			return err
		}

		for _, d := range chunk {
			if existing, ok := targets[d.ID]; ok && domain.AtLeastAsNewAs(existing, d) {
				res.DuplicatesSkipped++
				continue
			}
			pending = append(pending, d)
			batchMax = batchMax.Advance(d)

			if len(pending) >= domain.MaxBatchOps {
				if err := r.commitBatch(ctx, tgt, collection, pending, &res, progressEvent); err != nil {
					batchMax = committed
					pending = pending[:0]
					return err
				}
				committed = batchMax
				pending = pending[:0]
			}
		}
		chunk = chunk[:0]
		return nil
	}

readLoop:
	for {
		select {
		case d, ok := <-stream.Docs:
			if !ok {
				break readLoop
			}
			chunk = append(chunk, d)
			if len(chunk) >= r.chunkSize {
				if err := flushChunk(); err != nil {
					res.NewWatermark = committed
					return res, err
				}
				if !healthy() {
					res.Paused = true
					break readLoop
				}
			}
		case <-ctx.Done():
			res.Paused = true
			break readLoop
		}
	}

	// The gateway closes Errs before Docs, so by the time Docs reports
	// closed any terminal scan error is already sitting in Errs. Check
	// it here instead of racing it against Docs in the select above,
	// where a ready Errs and a closed Docs could be picked either way.
	if !res.Paused {
		select {
		case err, ok := <-stream.Errs:
			if ok && err != nil {
				res.Errors++
				res.NewWatermark = committed
				return res, err
			}
		default:
		}
	}

	if !res.Paused {
		if err := flushChunk(); err != nil {
			res.NewWatermark = committed
			return res, err
		}
	}

	if len(pending) > 0 {
		if err := r.commitBatch(ctx, tgt, collection, pending, &res, progressEvent); err != nil {
			res.NewWatermark = committed
			return res, err
		}
		committed = batchMax
	}

	res.NewWatermark = committed

	if r.bus != nil {
		r.bus.Publish(events.Event{
			Type: completedEvent,
			Payload: events.CollectionCompletedPayload{
				Collection:   collection,
				WrittenCount: res.Written,
				Incremental:  mode == domain.Incremental,
			},
		})
	}

	return res, nil
}

func (r *Replicator) commitBatch(
	ctx context.Context,
	tgt domain.Side,
	collection string,
	batch []domain.Document,
	res *Result,
	progressEvent events.Type,
) error {
	if err := r.gw.BatchWrite(ctx, tgt, collection, batch); err != nil {
		// A failed batch counts as errors, not as written; the caller
		// does not fold this batch's max timestamp into the committed
		// watermark.
		res.Errors += int64(len(batch))
		return err
	}

	res.Written += int64(len(batch))

	if r.bus != nil {
		r.bus.Publish(events.Event{
			Type: progressEvent,
			Payload: events.CollectionProgressPayload{
				Collection:   collection,
				WrittenSoFar: res.Written,
				Phase:        "writing",
			},
		})
	}
	return nil
}
