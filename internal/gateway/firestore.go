// Package gateway is the thin capability wrapper over the two
// Firestore document-store handles and the two Firebase-Auth
// directory handles. It is the only
// package that imports cloud.google.com/go/firestore or
// firebase.google.com/go/v4 directly; every other component talks to
// it through domain.Gateway.
package gateway

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"

	"github.com/brahimakil/appointment-backend-database-synch/internal/config"
	"github.com/brahimakil/appointment-backend-database-synch/internal/domain"
	"github.com/brahimakil/appointment-backend-database-synch/internal/gwerrors"
)

// Gateway implements domain.Gateway against a pair of Firestore +
// Firebase Auth endpoints, one per domain.Side.
type Gateway struct {
	apps  [2]*firebase.App
	fs    [2]*firestore.Client
	auths [2]*fbauth.Client

	maxRetry int
	log      zerolog.Logger
}

// New bootstraps both sides' firebase Apps and their Firestore/Auth
// clients from cfg.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Gateway, error) {
	g := &Gateway{maxRetry: cfg.MaxRetryAttempts, log: log}

	creds := [2]config.Credential{cfg.Primary, cfg.Standby}
	for i, cred := range creds {
		app, err := buildApp(ctx, cred)
		if err != nil {
			return nil, err
		}
		g.apps[i] = app

		fsClient, err := app.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("gateway: firestore client for %q: %w", cred.ProjectID, err)
		}
		g.fs[i] = fsClient

		authClient, err := app.Auth(ctx)
		if err != nil {
			return nil, fmt.Errorf("gateway: auth client for %q: %w", cred.ProjectID, err)
		}
		g.auths[i] = authClient
	}

	return g, nil
}

// Close releases both sides' Firestore clients.
func (g *Gateway) Close() {
	for _, c := range g.fs {
		if c != nil {
			c.Close()
		}
	}
}

func (g *Gateway) client(side domain.Side) *firestore.Client {
	return g.fs[side]
}

func (g *Gateway) authClient(side domain.Side) *fbauth.Client {
	return g.auths[side]
}

// ListCollections lists every top-level collection on side.
func (g *Gateway) ListCollections(ctx context.Context, side domain.Side) ([]string, error) {
	return withRetry(ctx, g.maxRetry, func() ([]string, error) {
		iter := g.client(side).Collections(ctx)
		var names []string
		for {
			ref, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return nil, classify(err)
			}
			names = append(names, ref.ID)
		}
		return names, nil
	})
}

// ScanSince streams documents from collection on side, filtered
// server-side by updatedAt > since when since carries a timestamp.
func (g *Gateway) ScanSince(ctx context.Context, side domain.Side, collection string, since domain.Watermark) (domain.DocStream, error) {
	coll := g.client(side).Collection(collection)

	var iter *firestore.DocumentIterator
	if since.HasTimestamp {
		iter = coll.Where("updatedAt", ">", since.Value).Documents(ctx)
	} else {
		iter = coll.Documents(ctx)
	}

	docsCh := make(chan domain.Document)
	errsCh := make(chan error, 1)

	go func() {
		defer close(docsCh)
		defer close(errsCh)
		defer iter.Stop()

		for {
			snap, err := iter.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				errsCh <- classify(err)
				return
			}
			doc := toDomainDocument(snap.Ref.ID, snap.Data())
			select {
			case docsCh <- doc:
			case <-ctx.Done():
				errsCh <- ctx.Err()
				return
			}
		}
	}()

	return domain.DocStream{Docs: docsCh, Errs: errsCh}, nil
}

// MultiGet fetches documents by ID; IDs with no matching document are
// simply absent from the result.
func (g *Gateway) MultiGet(ctx context.Context, side domain.Side, collection string, ids []string) (map[string]domain.Document, error) {
	if len(ids) == 0 {
		return map[string]domain.Document{}, nil
	}

	return withRetry(ctx, g.maxRetry, func() (map[string]domain.Document, error) {
		client := g.client(side)
		coll := client.Collection(collection)

		refs := make([]*firestore.DocumentRef, len(ids))
		for i, id := range ids {
			refs[i] = coll.Doc(id)
		}

		snaps, err := client.GetAll(ctx, refs)
		if err != nil {
			return nil, classify(err)
		}

		out := make(map[string]domain.Document, len(snaps))
		for _, snap := range snaps {
			if !snap.Exists() {
				continue
			}
			out[snap.Ref.ID] = toDomainDocument(snap.Ref.ID, snap.Data())
		}
		return out, nil
	})
}

// BatchWrite merges up to domain.MaxBatchOps documents into
// collection on side, atomically.
func (g *Gateway) BatchWrite(ctx context.Context, side domain.Side, collection string, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if len(docs) > domain.MaxBatchOps {
		return gwerrors.Wrap(gwerrors.Invalid, "batch of %d exceeds max %d", len(docs), domain.MaxBatchOps)
	}

	_, err := withRetry(ctx, g.maxRetry, func() (struct{}, error) {
		client := g.client(side)
		coll := client.Collection(collection)

		batch := client.Batch()
		for _, d := range docs {
			batch.Set(coll.Doc(d.ID), d.Data, firestore.MergeAll)
		}
		_, err := batch.Commit(ctx)
		return struct{}{}, classify(err)
	})
	return err
}

// probeDB runs a trivial read against side's Firestore endpoint: list
// at most one collection.
func (g *Gateway) probeDB(ctx context.Context, side domain.Side) error {
	iter := g.client(side).Collections(ctx)
	_, err := iter.Next()
	if err == iterator.Done {
		return nil
	}
	return classify(err)
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	// The Google API client surfaces context deadlines and grpc
	// Unavailable/ResourceExhausted codes; without vendoring the
	// status package here, deadline/cancellation is the one case this
	// gateway can recognize without a type assertion on the grpc
	// status, so everything else is treated as an opaque Unavailable
	// transport failure. Conservative: retrying a genuinely permanent
	// error costs a few extra round trips but never silently drops data.
	if err == context.DeadlineExceeded || err == context.Canceled {
		return gwerrors.Wrap(gwerrors.Unavailable, "deadline exceeded")
	}
	return fmt.Errorf("%w: %v", gwerrors.Unavailable, err)
}

func toDomainDocument(id string, data map[string]interface{}) domain.Document {
	ts, ok := parseTimestamp(data)
	return domain.Document{
		ID:           id,
		Data:         data,
		UpdatedAt:    ts,
		HasTimestamp: ok,
	}
}

// parseTimestamp implements the updatedAt-preferred,
// createdAt-fallback rule.
func parseTimestamp(data map[string]interface{}) (time.Time, bool) {
	if t, ok := asTime(data["updatedAt"]); ok {
		return t, true
	}
	if t, ok := asTime(data["createdAt"]); ok {
		return t, true
	}
	return time.Time{}, false
}

func asTime(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		if val == "" {
			return time.Time{}, false
		}
		t, err := time.Parse(time.RFC3339Nano, val)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}
