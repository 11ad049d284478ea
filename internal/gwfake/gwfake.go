// Package gwfake is an in-memory domain.Gateway double used by the
// other packages' tests: a plain map-backed store for documents and
// users on both sides, plus switches to force a side/kind probe to
// fail or a write to error, so the replication/health/reconcile
// algorithms can be exercised without a live Firestore/Auth backend.
package gwfake

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/brahimakil/appointment-backend-database-synch/internal/domain"
	"github.com/brahimakil/appointment-backend-database-synch/internal/gwerrors"
)

// Gateway is a concurrency-safe, in-memory implementation of
// domain.Gateway.
type Gateway struct {
	mu sync.Mutex

	docs  [2]map[string]map[string]domain.Document // [side][collection][id]
	users [2]map[string]domain.User                // [side][uid]

	// probeErr[side][kind] forces Probe to fail for that endpoint.
	probeErr [2]map[string]error

	// writeErr, when non-nil, is returned by the next BatchWrite call
	// on the given side/collection instead of performing the write.
	writeErr map[string]error

	// importErr forces ImportUsers to fail outright on the given side.
	importErr [2]error

	// scanErr, when set for a side/collection, makes ScanSince yield
	// its matching documents and then a terminal error on Errs instead
	// of closing cleanly, mirroring a query that dies partway through.
	scanErr map[string]error
}

// New constructs an empty Gateway.
func New() *Gateway {
	g := &Gateway{writeErr: make(map[string]error), scanErr: make(map[string]error)}
	for i := range g.docs {
		g.docs[i] = make(map[string]map[string]domain.Document)
		g.users[i] = make(map[string]domain.User)
		g.probeErr[i] = make(map[string]error)
	}
	return g
}

// Seed inserts docs into collection on side, overwriting any existing
// documents with the same ID.
func (g *Gateway) Seed(side domain.Side, collection string, docs ...domain.Document) {
	g.mu.Lock()
	defer g.mu.Unlock()
	coll := g.docs[side][collection]
	if coll == nil {
		coll = make(map[string]domain.Document)
		g.docs[side][collection] = coll
	}
	for _, d := range docs {
		coll[d.ID] = d
	}
}

// SeedUsers inserts users into side's directory.
func (g *Gateway) SeedUsers(side domain.Side, users ...domain.User) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, u := range users {
		g.users[side][u.UID] = u
	}
}

// Doc returns the stored document, if any, for assertions.
func (g *Gateway) Doc(side domain.Side, collection, id string) (domain.Document, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	coll := g.docs[side][collection]
	if coll == nil {
		return domain.Document{}, false
	}
	d, ok := coll[id]
	return d, ok
}

// User returns the stored user, if any, for assertions.
func (g *Gateway) User(side domain.Side, uid string) (domain.User, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[side][uid]
	return u, ok
}

// SetProbeErr forces Probe(side, kind) to fail with err (nil clears
// it).
func (g *Gateway) SetProbeErr(side domain.Side, kind string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.probeErr[side], kind)
		return
	}
	g.probeErr[side][kind] = err
}

// SetWriteErr forces the next BatchWrite on side/collection to fail
// with err (nil clears it).
func (g *Gateway) SetWriteErr(side domain.Side, collection string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := fmt.Sprintf("%d/%s", side, collection)
	if err == nil {
		delete(g.writeErr, key)
		return
	}
	g.writeErr[key] = err
}

// SetImportErr forces ImportUsers on side to fail outright with err.
func (g *Gateway) SetImportErr(side domain.Side, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.importErr[side] = err
}

// SetScanErr makes the next ScanSince on side/collection deliver its
// matching documents and then a terminal error instead of closing
// cleanly (nil clears it).
func (g *Gateway) SetScanErr(side domain.Side, collection string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := fmt.Sprintf("%d/%s", side, collection)
	if err == nil {
		delete(g.scanErr, key)
		return
	}
	g.scanErr[key] = err
}

func (g *Gateway) ListCollections(ctx context.Context, side domain.Side) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.docs[side]))
	for name := range g.docs[side] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (g *Gateway) ScanSince(ctx context.Context, side domain.Side, collection string, since domain.Watermark) (domain.DocStream, error) {
	g.mu.Lock()
	coll := g.docs[side][collection]
	matches := make([]domain.Document, 0, len(coll))
	for _, d := range coll {
		if since.HasTimestamp && d.HasTimestamp && !d.UpdatedAt.After(since.Value) {
			continue
		}
		matches = append(matches, d)
	}
	key := fmt.Sprintf("%d/%s", side, collection)
	scanErr, hasScanErr := g.scanErr[key]
	if hasScanErr {
		delete(g.scanErr, key)
	}
	g.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })

	docsCh := make(chan domain.Document, len(matches))
	errsCh := make(chan error, 1)
	for _, d := range matches {
		docsCh <- d
	}
	if hasScanErr {
		errsCh <- scanErr
	}
	close(errsCh)
	close(docsCh)

	return domain.DocStream{Docs: docsCh, Errs: errsCh}, nil
}

func (g *Gateway) MultiGet(ctx context.Context, side domain.Side, collection string, ids []string) (map[string]domain.Document, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	coll := g.docs[side][collection]
	out := make(map[string]domain.Document)
	for _, id := range ids {
		if d, ok := coll[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

func (g *Gateway) BatchWrite(ctx context.Context, side domain.Side, collection string, docs []domain.Document) error {
	if len(docs) > domain.MaxBatchOps {
		return gwerrors.Wrap(gwerrors.Invalid, "batch of %d exceeds max %d", len(docs), domain.MaxBatchOps)
	}

	g.mu.Lock()
	key := fmt.Sprintf("%d/%s", side, collection)
	if err, ok := g.writeErr[key]; ok {
		delete(g.writeErr, key)
		g.mu.Unlock()
		return err
	}

	coll := g.docs[side][collection]
	if coll == nil {
		coll = make(map[string]domain.Document)
		g.docs[side][collection] = coll
	}
	for _, d := range docs {
		coll[d.ID] = d
	}
	g.mu.Unlock()
	return nil
}

func (g *Gateway) ListUsers(ctx context.Context, side domain.Side, pageToken string) ([]domain.User, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	uids := make([]string, 0, len(g.users[side]))
	for uid := range g.users[side] {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	users := make([]domain.User, 0, len(uids))
	for _, uid := range uids {
		users = append(users, g.users[side][uid])
	}
	return users, "", nil
}

func (g *Gateway) ImportUsers(ctx context.Context, side domain.Side, users []domain.User, hash domain.HashParams) (domain.ImportOutcome, error) {
	g.mu.Lock()
	if err := g.importErr[side]; err != nil {
		g.mu.Unlock()
		return domain.ImportOutcome{}, err
	}
	for _, u := range users {
		g.users[side][u.UID] = u
	}
	g.mu.Unlock()
	return domain.ImportOutcome{SuccessCount: len(users)}, nil
}

func (g *Gateway) SetCustomClaims(ctx context.Context, side domain.Side, uid string, claims map[string]interface{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[side][uid]
	if !ok {
		return gwerrors.Wrap(gwerrors.Invalid, "unknown uid %q", uid)
	}
	u.CustomClaims = claims
	g.users[side][uid] = u
	return nil
}

func (g *Gateway) GetUser(ctx context.Context, side domain.Side, uid string) (domain.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u, ok := g.users[side][uid]
	if !ok {
		return domain.User{}, gwerrors.Wrap(gwerrors.Invalid, "unknown uid %q", uid)
	}
	return u, nil
}

func (g *Gateway) Probe(ctx context.Context, side domain.Side, kind string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.probeErr[side][kind]; ok {
		return err
	}
	return nil
}
