// Package status serves the controller state over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"speed-service/internal/logger"
	"speed-service/internal/speed"
	"speed-service/internal/types"
)

// System is the part of core.SpeedSystem the API needs.
type System interface {
	Snapshot() types.Snapshot
	EventTable() speed.EventTable
	HandleEvent(code int) error
	AcceptingEvents() bool
}

type eventJSON struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	Normal      int    `json:"normal"`
	Sport       int    `json:"sport"`
	Safe        int    `json:"safe"`
}

type errorJSON struct {
	Error string `json:"error"`
}

type Server struct {
	system System
	logger *logger.Logger
	router *mux.Router
	srv    *http.Server
}

func NewServer(addr string, system System, l *logger.Logger) *Server {
	s := &Server{
		system: system,
		logger: l,
		router: mux.NewRouter(),
	}
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/events", s.handleEventTable).Methods(http.MethodGet)
	s.router.HandleFunc("/events/{id}", s.handleObserve).Methods(http.MethodPost)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Infof("Status API listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("Status API stopped: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.system.Snapshot())
}

func (s *Server) handleEventTable(w http.ResponseWriter, r *http.Request) {
	table := s.system.EventTable()
	events := make([]eventJSON, 0, len(table))
	for id, def := range table {
		events = append(events, eventJSON{
			ID:          int(id),
			Description: def.Description,
			Normal:      def.Normal,
			Sport:       def.Sport,
			Safe:        def.Safe,
		})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["id"]
	code, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "event id must be an integer"})
		return
	}
	if !s.system.AcceptingEvents() {
		writeJSON(w, http.StatusConflict, errorJSON{Error: "not accepting sensor events"})
		return
	}

	s.logger.Debugf("Event %d received over HTTP", code)
	if err := s.system.HandleEvent(code); err != nil {
		writeJSON(w, http.StatusConflict, errorJSON{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.system.Snapshot())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
