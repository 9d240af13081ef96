package api

import (
	"net/http"
	"time"

	"github.com/lmskit/gatekeeper/pkg/audit"
	"github.com/lmskit/gatekeeper/pkg/httputil"
)

// queryAudit handles GET /v1/audit. Filters come from query
// parameters; times are RFC 3339.
func (s *Server) queryAudit(w http.ResponseWriter, r *http.Request) {
	filters := audit.Filters{
		Action:       httputil.ParseQueryString(r, "action", ""),
		ResourceType: httputil.ParseQueryString(r, "resource_type", ""),
		Status:       httputil.ParseQueryString(r, "status", ""),
	}

	actorID, err := httputil.ParseQueryInt64(r, "actor_id", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if actorID != 0 {
		filters.ActorID = &actorID
	}

	limit, err := httputil.ParseQueryInt64(r, "limit", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	filters.Limit = int(limit)

	if raw := httputil.ParseQueryString(r, "since", ""); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid since timestamp")
			return
		}
		filters.Since = &since
	}
	if raw := httputil.ParseQueryString(r, "until", ""); raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid until timestamp")
			return
		}
		filters.Until = &until
	}

	entries, err := s.recorder.Query(r.Context(), filters)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, entries)
}
