package api

import (
	"net/http"

	"github.com/voceacampusului/vocea/pkg/httputil"
)

// RunBilling runs one billing cycle. A cycle already held by another
// instance reports already_running with a 200.
func (s *Server) RunBilling(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Billing.RunCycle(r.Context(), s.now())
	if err != nil {
		httputil.WriteAppError(w, r, err, s.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) RunSweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Sweeper.Sweep(r.Context(), s.now())
	if err != nil {
		httputil.WriteAppError(w, r, err, s.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// RunPending settles checkouts left pending past the configured timeout.
func (s *Server) RunPending(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Orders.ExpireStalePending(r.Context(), s.now(), 0)
	if err != nil {
		httputil.WriteAppError(w, r, err, s.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}
