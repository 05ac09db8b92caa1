package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-tcpconnected/internal/audit"
)

// recordAudit writes an audit entry when an audit log is configured.
// Failures are logged and never fail the request.
func (s *Server) recordAudit(ctx context.Context, e audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, &e); err != nil {
		s.logger.Warn("audit write failed", "action", e.Action, "error", err)
	}
}

// handleListAudit returns audit entries, newest first. Query parameters
// action, device_id and username filter; limit and offset paginate.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit log is not available")
		return
	}

	q := r.URL.Query()
	f := audit.Filter{
		Action:   q.Get("action"),
		DeviceID: q.Get("device_id"),
		Username: q.Get("username"),
	}

	var ok bool
	if f.Limit, ok = queryInt(q.Get("limit"), audit.DefaultLimit, 1, audit.MaxLimit); !ok {
		writeBadRequest(w, "limit must be between 1 and "+strconv.Itoa(audit.MaxLimit))
		return
	}
	if f.Offset, ok = queryInt(q.Get("offset"), 0, 0, -1); !ok {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	page, err := s.audit.List(r.Context(), f)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// queryInt parses raw, returning def when empty. max < 0 means no upper
// bound.
func queryInt(raw string, def, minVal, maxVal int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < minVal || (maxVal >= 0 && n > maxVal) {
		return 0, false
	}
	return n, true
}
