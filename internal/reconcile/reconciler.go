// Package reconcile implements the Reconciler: a
// one-shot, read-only integrity pass comparing ID sets between primary
// and standby per collection, and UID sets between the two auth
// directories. It never auto-heals, only reports, the way
// other_examples/BigKAA-goartstore__sync.go's SyncResult/SASyncResult
// report counts without mutating either side.
package reconcile

import (
	"context"
	"sort"

	"github.com/brahimakil/appointment-backend-database-synch/internal/domain"
)

// Reconciler compares ID/UID sets between the two sides of a Gateway.
type Reconciler struct {
	gw domain.Gateway
}

// New constructs a Reconciler.
func New(gw domain.Gateway) *Reconciler {
	return &Reconciler{gw: gw}
}

// ReconcileCollection reads the full ID set from both sides of
// collection and reports the symmetric difference.
func (r *Reconciler) ReconcileCollection(ctx context.Context, collection string) (domain.IntegrityReport, error) {
	primaryIDs, err := r.scanIDs(ctx, domain.Primary, collection)
	if err != nil {
		return domain.IntegrityReport{}, err
	}
	standbyIDs, err := r.scanIDs(ctx, domain.Standby, collection)
	if err != nil {
		return domain.IntegrityReport{}, err
	}

	return domain.IntegrityReport{
		Collection:       collection,
		PrimaryCount:     len(primaryIDs),
		StandbyCount:     len(standbyIDs),
		MissingInStandby: setDiff(primaryIDs, standbyIDs),
		MissingInPrimary: setDiff(standbyIDs, primaryIDs),
	}, nil
}

// ReconcileAuth compares UID sets between the two auth directories.
func (r *Reconciler) ReconcileAuth(ctx context.Context) (domain.AuthIntegrityReport, error) {
	primaryUIDs, err := r.scanUIDs(ctx, domain.Primary)
	if err != nil {
		return domain.AuthIntegrityReport{}, err
	}
	standbyUIDs, err := r.scanUIDs(ctx, domain.Standby)
	if err != nil {
		return domain.AuthIntegrityReport{}, err
	}

	return domain.AuthIntegrityReport{
		PrimaryCount:     len(primaryUIDs),
		StandbyCount:     len(standbyUIDs),
		MissingInStandby: setDiff(primaryUIDs, standbyUIDs),
		MissingInPrimary: setDiff(standbyUIDs, primaryUIDs),
	}, nil
}

func (r *Reconciler) scanIDs(ctx context.Context, side domain.Side, collection string) (map[string]struct{}, error) {
	stream, err := r.gw.ScanSince(ctx, side, collection, domain.Watermark{})
	if err != nil {
		return nil, err
	}

	ids := make(map[string]struct{})
	for {
		select {
		case d, ok := <-stream.Docs:
			if !ok {
				// The gateway closes Errs before Docs, so any terminal
				// scan error is already sitting in Errs by now; check it
				// instead of racing it against Docs closing above.
				select {
				case err, ok := <-stream.Errs:
					if ok && err != nil {
						return nil, err
					}
				default:
				}
				return ids, nil
			}
			ids[d.ID] = struct{}{}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (r *Reconciler) scanUIDs(ctx context.Context, side domain.Side) (map[string]struct{}, error) {
	uids := make(map[string]struct{})
	var pageToken string
	for {
		users, next, err := r.gw.ListUsers(ctx, side, pageToken)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			uids[u.UID] = struct{}{}
		}
		if next == "" {
			return uids, nil
		}
		pageToken = next
	}
}

// setDiff returns the sorted keys present in a but absent from b.
func setDiff(a, b map[string]struct{}) []string {
	var out []string
	for id := range a {
		if _, ok := b[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
