package api

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/manifoldbus/manifold/bus"
)

// busStatus is one bus's entry in the status response.
type busStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// statusOf captures a router's current lifecycle state.
func statusOf(name string, r *bus.Router) busStatus {
	st := busStatus{
		Name:  name,
		State: r.State().String(),
	}
	if err := r.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

// handleStatus returns the lifecycle state of every configured bus.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(s.buses))
	for name := range s.buses {
		names = append(names, name)
	}
	sort.Strings(names)

	statuses := make([]busStatus, 0, len(names))
	for _, name := range names {
		statuses = append(statuses, statusOf(name, s.buses[name]))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version": s.version,
		"buses":   statuses,
	})
}

// handleBus returns the state of a single named bus.
func (s *Server) handleBus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	router, ok := s.buses[name]
	if !ok {
		writeNotFound(w, "no such bus: "+name)
		return
	}
	writeJSON(w, http.StatusOK, statusOf(name, router))
}
