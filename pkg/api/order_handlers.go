package api

import (
	"net/http"

	"github.com/voceacampusului/vocea/pkg/contextkeys"
	"github.com/voceacampusului/vocea/pkg/httputil"
	"github.com/voceacampusului/vocea/pkg/identity"
	"github.com/voceacampusului/vocea/pkg/orders"
)

type orderListResponse struct {
	Orders []*orders.Order `json:"orders"`
}

// Checkout opens a hosted payment page for a plan.
func (s *Server) Checkout(w http.ResponseWriter, r *http.Request) {
	var req orders.CheckoutRequest
	if err := httputil.DecodeAndValidate(r, s.validate, &req); err != nil {
		httputil.WriteAppError(w, r, err, s.logger)
		return
	}

	var email string
	if u, ok := identity.UserFromContext(r.Context()); ok {
		email = u.Email
	}

	resp, err := s.deps.Orders.Checkout(r.Context(), contextkeys.GetUserID(r.Context()), email, &req)
	if err != nil {
		httputil.WriteAppError(w, r, err, s.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

func (s *Server) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil {
		httputil.WriteAppError(w, r, err, s.logger)
		return
	}
	list, err := s.deps.Orders.ListForUser(r.Context(), contextkeys.GetUserID(r.Context()), limit)
	if err != nil {
		httputil.WriteAppError(w, r, err, s.logger)
		return
	}
	if list == nil {
		list = []*orders.Order{}
	}
	httputil.WriteJSON(w, http.StatusOK, orderListResponse{Orders: list})
}

func (s *Server) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := httputil.PathString(r, "orderID")
	if err != nil {
		httputil.WriteAppError(w, r, err, s.logger)
		return
	}

	order, err := s.deps.Orders.Cancel(r.Context(), contextkeys.GetUserID(r.Context()), orderID)
	if err != nil {
		httputil.WriteAppError(w, r, err, s.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}
