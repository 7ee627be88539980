package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"conti/internal/core"
)

// serveReport answers a read endpoint with view(report). A request whose
// If-None-Match carries the group's current fingerprint gets 304 without
// the report being loaded.
func (s *Server) serveReport(w http.ResponseWriter, r *http.Request, view func(core.Report) any) {
	groupID := chi.URLParam(r, "groupID")

	if inm := r.Header.Get("If-None-Match"); inm != "" {
		fp, err := s.svc.Fingerprint(r.Context(), groupID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if etagMatches(inm, fp.ETag()) {
			NewJSONResponse().Status(http.StatusNotModified).Revalidate(fp.ETag()).Write(w)
			return
		}
	}

	report, cached, err := s.svc.Report(r.Context(), groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	cacheStatus := "MISS"
	if cached {
		cacheStatus = "HIT"
	}
	NewJSONResponse().
		Revalidate(report.Fingerprint.ETag()).
		Header("X-Cache", cacheStatus).
		Body(view(report)).
		Write(w)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.serveReport(w, r, func(rep core.Report) any { return toReportResponse(rep) })
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	s.serveReport(w, r, func(rep core.Report) any {
		return map[string]any{
			"group_id":    rep.GroupID,
			"fingerprint": rep.Fingerprint.String(),
			"balances":    toBalances(rep.Balances),
		}
	})
}

func (s *Server) handleSettlements(w http.ResponseWriter, r *http.Request) {
	s.serveReport(w, r, func(rep core.Report) any {
		return map[string]any{
			"group_id":    rep.GroupID,
			"fingerprint": rep.Fingerprint.String(),
			"settlements": toSettlements(rep.Settlements),
		}
	})
}

func (s *Server) handleFairness(w http.ResponseWriter, r *http.Request) {
	s.serveReport(w, r, func(rep core.Report) any {
		return map[string]any{
			"group_id":    rep.GroupID,
			"fingerprint": rep.Fingerprint.String(),
			"scores":      toScores(rep.Scores),
		}
	})
}
