// Package statsfile persists RunCounters and watermarks to a single
// stats.json file, written atomically: a temp file in the
// same directory, then renamed over the target.
package statsfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brahimakil/appointment-backend-database-synch/internal/domain"
)

// wireWatermark is the on-disk shape of one collection's watermark
// pair.
type wireWatermark struct {
	Forward string `json:"forward"`
	Recover string `json:"recover"`
}

// State is the full persisted shape: top-level RunCounters plus a
// nested watermarks-by-collection object. The auth watermark lives in
// Counters.Auth.LastAuthRunAt rather than as a separate field.
type State struct {
	Counters   domain.RunCounters                      `json:"-"`
	Watermarks map[string]domain.CollectionWatermarks `json:"-"`
}

type wireState struct {
	TotalDocumentsWritten int64                    `json:"totalDocumentsWritten"`
	DuplicatesSkipped     int64                    `json:"duplicatesSkipped"`
	Errors                int64                    `json:"errors"`
	IncrementalRunCount   int64                    `json:"incrementalRunCount"`
	LastRunAt             string                   `json:"lastRunAt,omitempty"`
	LastFullRunAt         string                   `json:"lastFullRunAt,omitempty"`
	Auth                  wireAuthCounters         `json:"auth"`
	Watermarks            map[string]wireWatermark `json:"watermarks"`
}

type wireAuthCounters struct {
	TotalUsers             int64  `json:"totalUsers"`
	SyncedUsers            int64  `json:"syncedUsers"`
	CustomClaimsPropagated int64  `json:"customClaimsPropagated"`
	AuthErrors             int64  `json:"authErrors"`
	LastAuthRunAt          string `json:"lastAuthRunAt,omitempty"`
}

// Store owns stats.json's lifecycle: Load on startup, Save after every
// run.
type Store struct {
	path string
}

// New targets path (created on first Save if missing).
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the stats file if it exists; if it doesn't, it returns a
// zero-valued State and no error (otherwise start from
// zero").
func (s *Store) Load() (State, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return State{Watermarks: make(map[string]domain.CollectionWatermarks)}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("statsfile: read %s: %w", s.path, err)
	}

	var w wireState
	if err := json.Unmarshal(raw, &w); err != nil {
		return State{}, fmt.Errorf("statsfile: parse %s: %w", s.path, err)
	}

	return fromWire(w), nil
}

// Save atomically overwrites the stats file with st.
func (s *Store) Save(st State) error {
	w := toWire(st)

	raw, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("statsfile: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("statsfile: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".stats-*.json.tmp")
	if err != nil {
		return fmt.Errorf("statsfile: create temp: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("statsfile: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("statsfile: close temp: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("statsfile: rename into place: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func toWire(st State) wireState {
	w := wireState{
		TotalDocumentsWritten: st.Counters.TotalDocumentsWritten,
		DuplicatesSkipped:     st.Counters.DuplicatesSkipped,
		Errors:                st.Counters.Errors,
		IncrementalRunCount:   st.Counters.IncrementalRunCount,
		LastRunAt:             formatTime(st.Counters.LastRunAt),
		LastFullRunAt:         formatTime(st.Counters.LastFullRunAt),
		Auth: wireAuthCounters{
			TotalUsers:             st.Counters.Auth.TotalUsers,
			SyncedUsers:            st.Counters.Auth.SyncedUsers,
			CustomClaimsPropagated: st.Counters.Auth.CustomClaimsPropagated,
			AuthErrors:             st.Counters.Auth.AuthErrors,
			LastAuthRunAt:          formatTime(st.Counters.Auth.LastAuthRunAt),
		},
		Watermarks: make(map[string]wireWatermark, len(st.Watermarks)),
	}
	for coll, wm := range st.Watermarks {
		w.Watermarks[coll] = wireWatermark{
			Forward: wm.Forward.ISOString(),
			Recover: wm.Recover.ISOString(),
		}
	}
	return w
}

func fromWire(w wireState) State {
	st := State{
		Counters: domain.RunCounters{
			TotalDocumentsWritten: w.TotalDocumentsWritten,
			DuplicatesSkipped:     w.DuplicatesSkipped,
			Errors:                w.Errors,
			IncrementalRunCount:   w.IncrementalRunCount,
			LastRunAt:             parseTime(w.LastRunAt),
			LastFullRunAt:         parseTime(w.LastFullRunAt),
			Auth: domain.AuthCounters{
				TotalUsers:             w.Auth.TotalUsers,
				SyncedUsers:            w.Auth.SyncedUsers,
				CustomClaimsPropagated: w.Auth.CustomClaimsPropagated,
				AuthErrors:             w.Auth.AuthErrors,
				LastAuthRunAt:          parseTime(w.Auth.LastAuthRunAt),
			},
		},
		Watermarks: make(map[string]domain.CollectionWatermarks, len(w.Watermarks)),
	}

	for coll, wm := range w.Watermarks {
		cw := domain.CollectionWatermarks{}
		if t := parseTime(wm.Forward); !t.IsZero() {
			cw.Forward = domain.Watermark{Value: t, HasTimestamp: true}
		}
		if t := parseTime(wm.Recover); !t.IsZero() {
			cw.Recover = domain.Watermark{Value: t, HasTimestamp: true}
		}
		st.Watermarks[coll] = cw
	}
	return st
}
