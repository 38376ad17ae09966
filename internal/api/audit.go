package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/techscire/scirecount-core/internal/audit"
)

// recordAudit stores e when an audit repository is configured. A failed
// write is logged and never fails the request that caused it.
func (s *Server) recordAudit(ctx context.Context, e *audit.Entry) {
	if s.audit == nil {
		return
	}
	if e.Source == "" {
		e.Source = audit.SourceAPI
	}
	if err := s.audit.Record(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Error("recording audit entry", "action", e.Action, "error", err)
	}
}

// handleListAudit returns the audit trail, newest first.
//
// Query parameters: action, entityType, limit (default 50, max 200).
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusOK, []audit.Entry{})
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entityType"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	entries, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit log", "error", err)
		writeInternalError(w, "failed to list audit log")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
