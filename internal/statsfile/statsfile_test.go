package statsfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brahimakil/appointment-backend-database-synch/internal/domain"
)

func TestStore_LoadMissingFileStartsFromZero(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "stats.json"))

	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Counters.TotalDocumentsWritten)
	assert.NotNil(t, st.Watermarks)
}

func TestStore_SaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.json")
	store := New(path)

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	st := State{
		Counters: domain.RunCounters{
			TotalDocumentsWritten: 5,
			DuplicatesSkipped:     1,
			LastRunAt:             now,
		},
		Watermarks: map[string]domain.CollectionWatermarks{
			"appointments": {Forward: domain.Watermark{Value: now, HasTimestamp: true}},
		},
	}

	require.NoError(t, store.Save(st))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Counters.TotalDocumentsWritten)
	assert.Equal(t, int64(1), got.Counters.DuplicatesSkipped)
	assert.True(t, got.Counters.LastRunAt.Equal(now))

	wm := got.Watermarks["appointments"]
	assert.True(t, wm.Forward.HasTimestamp)
	assert.True(t, wm.Forward.Value.Equal(now))
	assert.False(t, wm.Recover.HasTimestamp)
}

func TestStore_SaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.json")
	store := New(path)

	require.NoError(t, store.Save(State{Watermarks: map[string]domain.CollectionWatermarks{}}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "no temp file should survive a successful Save")
	}
}
