// Package schema implements the Schema Tracker: it
// samples a handful of documents per collection and maintains the set
// of dotted field paths observed, purely for observability. The
// replicator never enforces schema.
package schema

import (
	"context"
	"sort"
	"sync"

	"github.com/brahimakil/appointment-backend-database-synch/internal/domain"
	"github.com/brahimakil/appointment-backend-database-synch/internal/events"
)

// Tracker maintains one domain.SchemaSet per collection, growing
// monotonically within the process lifetime.
type Tracker struct {
	mu   sync.Mutex
	sets map[string]domain.SchemaSet
	bus  *events.Bus
}

// New constructs an empty Tracker.
func New(bus *events.Bus) *Tracker {
	return &Tracker{sets: make(map[string]domain.SchemaSet), bus: bus}
}

// Sample walks up to domain.SchemaSampleSize documents (order
// arbitrary) from docs, diffs the resulting paths against the
// collection's previous SchemaSet, and emits a schemaChange event if
// new paths were found. Removals are ignored: schema only grows.
func (t *Tracker) Sample(ctx context.Context, collection string, docs []domain.Document) {
	n := len(docs)
	if n > domain.SchemaSampleSize {
		n = domain.SchemaSampleSize
	}

	observed := make(map[string]struct{})
	for _, d := range docs[:n] {
		for _, path := range dottedPaths(d.Data, "") {
			observed[path] = struct{}{}
		}
	}

	t.mu.Lock()
	existing, ok := t.sets[collection]
	if !ok {
		existing = make(domain.SchemaSet)
		t.sets[collection] = existing
	}

	var newKeys []string
	for path := range observed {
		if _, seen := existing[path]; !seen {
			existing[path] = struct{}{}
			newKeys = append(newKeys, path)
		}
	}
	total := len(existing)
	t.mu.Unlock()

	if len(newKeys) == 0 {
		return
	}
	sort.Strings(newKeys)

	if t.bus != nil {
		t.bus.Publish(events.Event{
			Type: events.SchemaChange,
			Payload: events.SchemaChangePayload{
				Collection: collection,
				NewKeys:    newKeys,
				TotalKeys:  total,
			},
		})
	}
}

// Schema returns a copy of the current SchemaSet for collection, or
// nil if it has never been sampled.
func (t *Tracker) Schema(collection string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.sets[collection]
	if !ok {
		return nil
	}
	return set.Paths()
}

// Reset clears every tracked collection's SchemaSet.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sets = make(map[string]domain.SchemaSet)
}

// dottedPaths descends into nested maps (not arrays) collecting
// dotted key paths, e.g. {"address": {"city": "x"}} -> ["address",
// "address.city"].
func dottedPaths(data map[string]interface{}, prefix string) []string {
	var out []string
	for k, v := range data {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		out = append(out, path)

		if nested, ok := v.(map[string]interface{}); ok {
			out = append(out, dottedPaths(nested, path)...)
		}
	}
	return out
}
