package api

import (
	"net/http"

	"github.com/voceacampusului/vocea/pkg/apperrors"
	"github.com/voceacampusului/vocea/pkg/httputil"
	"github.com/voceacampusului/vocea/pkg/plans"
)

type planListResponse struct {
	Plans []plans.Plan `json:"plans"`
}

// ListPlans serves the catalog ordered by tier.
func (s *Server) ListPlans(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Plans.List(r.Context())
	if err != nil {
		httputil.WriteAppError(w, r, apperrors.Internal("api.ListPlans", err), s.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, planListResponse{Plans: list})
}
