// Package httpapi is a thin gorilla/mux adapter onto the
// Coordinator's control surface: every handler does little more than
// call the matching Coordinator method and render its result as JSON.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/brahimakil/appointment-backend-database-synch/internal/coordinator"
	"github.com/brahimakil/appointment-backend-database-synch/internal/domain"
	"github.com/brahimakil/appointment-backend-database-synch/internal/events"
	"github.com/brahimakil/appointment-backend-database-synch/internal/gwerrors"
)

// Server wires a Coordinator and an Event Bus onto an HTTP mux.
type Server struct {
	coord *coordinator.Coordinator
	bus   *events.Bus
	gw    domain.Gateway
	log   zerolog.Logger
}

// New builds the router. Call Handler() to get the http.Handler to
// serve.
func New(coord *coordinator.Coordinator, bus *events.Bus, gw domain.Gateway, log zerolog.Logger) *Server {
	return &Server{coord: coord, bus: bus, gw: gw, log: log}
}

// Handler returns the mux.Router implementing every route.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/run", s.handleRun).Methods(http.MethodPost)
	r.HandleFunc("/run/full", s.handleRunFull).Methods(http.MethodPost)
	r.HandleFunc("/run/auth", s.handleRunAuth).Methods(http.MethodPost)
	r.HandleFunc("/recover", s.handleRecover).Methods(http.MethodPost)
	r.HandleFunc("/reconcile", s.handleReconcile).Methods(http.MethodPost)
	r.HandleFunc("/stats/reset", s.handleStatsReset).Methods(http.MethodPost)
	r.HandleFunc("/collections", s.handleCollections).Methods(http.MethodGet)
	r.HandleFunc("/collections/{name}/schema", s.handleCollectionSchema).Methods(http.MethodGet)
	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	return r
}

type runResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Stats().Health)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Stats())
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	status, err := s.coord.RunOnce(r.Context())
	s.writeRunResult(w, status, err)
}

func (s *Server) handleRunFull(w http.ResponseWriter, r *http.Request) {
	status, err := s.coord.ForceFull(r.Context())
	s.writeRunResult(w, status, err)
}

func (s *Server) handleRunAuth(w http.ResponseWriter, r *http.Request) {
	status, err := s.coord.ForceAuth(r.Context())
	s.writeRunResult(w, status, err)
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	status, err := s.coord.Recover(r.Context())
	s.writeRunResult(w, status, err)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	reports, authReport, err := s.coord.Reconcile(r.Context())
	if err != nil {
		writeJSON(w, http.StatusConflict, runResult{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Collections map[string]domain.IntegrityReport `json:"collections"`
		Auth        domain.AuthIntegrityReport         `json:"auth"`
	}{Collections: reports, Auth: authReport})
}

func (s *Server) handleStatsReset(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.ResetStats(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, runResult{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, runResult{Success: true})
}

func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	names, err := s.gw.ListCollections(r.Context(), domain.Primary)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, runResult{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleCollectionSchema(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	stats := s.coord.Stats()
	writeJSON(w, http.StatusOK, struct {
		Collection string   `json:"collection"`
		Paths      []string `json:"paths"`
	}{Collection: name, Paths: stats.Schemas[name]})
}

// handleEvents streams every published event as a Server-Sent-Events
// feed for as long as the client stays connected.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id, ch := s.bus.Subscribe()
	defer s.bus.Unsubscribe(id)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSSE(w, evt); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, evt events.Event) error {
	raw, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: " + string(evt.Type) + "\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	return err
}

func (s *Server) writeRunResult(w http.ResponseWriter, status domain.RunStatus, err error) {
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, gwerrors.Busy) {
			code = http.StatusConflict
		}
		writeJSON(w, code, runResult{Success: false, Message: err.Error(), Status: string(status)})
		return
	}
	writeJSON(w, http.StatusOK, runResult{Success: true, Status: string(status)})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
