package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/sitepulse/pkg/analytics"
	"github.com/platinummonkey/sitepulse/pkg/httputil"
	"github.com/platinummonkey/sitepulse/pkg/observability"
)

// handleEvents handles POST /events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var req analytics.IngestRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		s.metrics.RecordRejected("body")
		return
	}

	ev, err := s.ingestor.Ingest(r.Context(), req, analytics.RequestContextFromHTTP(r))
	if err != nil {
		if errors.Is(err, analytics.ErrValidation) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("failed to ingest event")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.SuccessResponse{
		Success: true,
		EventID: ev.ID,
	})
}
