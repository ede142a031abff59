package api

import (
	"net/http"
	"strconv"

	"github.com/manifoldbus/manifold/internal/journal"
)

// handleJournal returns journal entries matching the query parameters.
//
// Supported parameters: bus, kind, topic, limit, offset.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeNotFound(w, "journal is disabled")
		return
	}

	filter := journal.Filter{
		Bus:   r.URL.Query().Get("bus"),
		Kind:  r.URL.Query().Get("kind"),
		Topic: r.URL.Query().Get("topic"),
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("journal query failed", "error", err)
		writeInternalError(w, "journal query failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
