package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-midi/internal/journal"
)

// handleListJournal lists recorded lifecycle events, newest first.
//
// Query parameters: device, kind, limit.
func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeNotFound(w, "journal is not enabled")
		return
	}

	q, ok := journalQuery(w, r)
	if !ok {
		return
	}

	entries, err := s.journal.List(r.Context(), q)
	if err != nil {
		s.logger.Error("listing journal entries", "error", err)
		writeInternalError(w, "failed to list journal entries")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleListDrops lists discarded malformed messages, newest first.
func (s *Server) handleListDrops(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeNotFound(w, "journal is not enabled")
		return
	}

	q, ok := journalQuery(w, r)
	if !ok {
		return
	}

	drops, err := s.journal.Drops(r.Context(), q)
	if err != nil {
		s.logger.Error("listing journal drops", "error", err)
		writeInternalError(w, "failed to list dropped messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"drops": drops,
		"count": len(drops),
	})
}

// journalQuery reads the filter parameters. It writes a 400 response and
// returns false when limit is not a number.
func journalQuery(w http.ResponseWriter, r *http.Request) (journal.Query, bool) {
	params := r.URL.Query()
	q := journal.Query{
		Device: params.Get("device"),
		Kind:   params.Get("kind"),
	}

	if v := params.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return journal.Query{}, false
		}
		q.Limit = limit
	}

	return q, true
}
