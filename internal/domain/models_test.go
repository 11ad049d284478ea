package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDocumentNewerThan(t *testing.T) {
	withTS := Document{HasTimestamp: true, UpdatedAt: ts("2024-01-02T00:00:00Z")}
	olderTS := Document{HasTimestamp: true, UpdatedAt: ts("2024-01-01T00:00:00Z")}
	noTS := Document{}

	assert.True(t, noTS.NewerThan(withTS), "no timestamp is always newer")
	assert.False(t, withTS.NewerThan(noTS), "a timestamped doc is never newer than a timestampless one")
	assert.True(t, withTS.NewerThan(olderTS))
	assert.False(t, olderTS.NewerThan(withTS))
}

func TestAtLeastAsNewAs(t *testing.T) {
	src := Document{HasTimestamp: true, UpdatedAt: ts("2024-01-01T00:00:02Z")}
	sameTS := Document{HasTimestamp: true, UpdatedAt: ts("2024-01-01T00:00:02Z")}
	newerTS := Document{HasTimestamp: true, UpdatedAt: ts("2024-01-01T00:00:03Z")}
	olderTS := Document{HasTimestamp: true, UpdatedAt: ts("2024-01-01T00:00:01Z")}
	noTS := Document{}

	assert.True(t, AtLeastAsNewAs(sameTS, src), "equal timestamps mean no write is required")
	assert.True(t, AtLeastAsNewAs(newerTS, src))
	assert.False(t, AtLeastAsNewAs(olderTS, src))
	assert.False(t, AtLeastAsNewAs(noTS, src), "a target with no timestamp never blocks a write")
	assert.False(t, AtLeastAsNewAs(sameTS, noTS), "a source with no timestamp always overwrites")
}

func TestWatermarkAdvance(t *testing.T) {
	var w Watermark
	w = w.Advance(Document{HasTimestamp: true, UpdatedAt: ts("2024-01-01T00:00:01Z")})
	assert.True(t, w.HasTimestamp)
	assert.Equal(t, ts("2024-01-01T00:00:01Z"), w.Value)

	// A document without a timestamp never advances the watermark.
	w2 := w.Advance(Document{})
	assert.Equal(t, w, w2)

	// An older document never moves the watermark backward.
	w3 := w.Advance(Document{HasTimestamp: true, UpdatedAt: ts("2023-01-01T00:00:00Z")})
	assert.Equal(t, w, w3)

	w4 := w.Advance(Document{HasTimestamp: true, UpdatedAt: ts("2024-02-01T00:00:00Z")})
	assert.Equal(t, ts("2024-02-01T00:00:00Z"), w4.Value)
}

func TestGate(t *testing.T) {
	cases := []struct {
		name   string
		snap   HealthSnapshot
		status RunStatus
		db     bool
		auth   bool
	}{
		{"primary db down", HealthSnapshot{}, StatusPaused, false, false},
		{"standby db down", HealthSnapshot{PrimaryDB: true}, StatusError, false, false},
		{"auth primary down", HealthSnapshot{PrimaryDB: true, StandbyDB: true}, StatusCompleted, true, false},
		{"auth standby down", HealthSnapshot{PrimaryDB: true, StandbyDB: true, PrimaryAuth: true}, StatusError, true, false},
		{"all healthy", HealthSnapshot{PrimaryDB: true, StandbyDB: true, PrimaryAuth: true, StandbyAuth: true}, StatusCompleted, true, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d := Gate(c.snap)
			assert.Equal(t, c.status, d.Status)
			assert.Equal(t, c.db, d.ReplicateDB)
			assert.Equal(t, c.auth, d.ReplicateAuth)
		})
	}
}

func TestSchemaSetPaths(t *testing.T) {
	s := SchemaSet{"b": struct{}{}, "a": struct{}{}, "a.c": struct{}{}}
	assert.Equal(t, []string{"a", "a.c", "b"}, s.Paths())
}
