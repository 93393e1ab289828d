package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/voceacampusului/vocea/pkg/apperrors"
	"github.com/voceacampusului/vocea/pkg/httputil"
	"github.com/voceacampusului/vocea/pkg/orders"
)

const SignatureHeader = "Stripe-Signature"

type webhookResponse struct {
	Received bool         `json:"received"`
	State    orders.State `json:"state,omitempty"`
}

// HandleWebhook applies a signed provider callback. Events for unknown
// orders and events that no longer apply are acknowledged so the provider
// stops redelivering them; storage failures return 500 so it retries.
func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteAppError(w, r, apperrors.Wrap(apperrors.KindValidation, apperrors.CodeInvalidInput, "cannot read body", err), s.logger)
		return
	}

	conf, err := s.deps.Webhooks.ParseWebhook(payload, r.Header.Get(SignatureHeader))
	if err != nil {
		httputil.WriteAppError(w, r, err, s.logger)
		return
	}

	logger := s.logger.WithFields(logrus.Fields{
		"event_id":   conf.EventID,
		"event_type": conf.EventType,
		"order_id":   conf.OrderID,
	})

	out, err := s.deps.Orders.HandleConfirmation(r.Context(), conf)
	switch {
	case err == nil:
	case apperrors.IsNotFound(err):
		logger.Warn("webhook for unknown order")
		httputil.WriteJSON(w, http.StatusOK, webhookResponse{Received: true})
		return
	case errors.Is(err, orders.ErrInvalidTransition):
		logger.WithError(err).Warn("webhook does not apply to order state")
		httputil.WriteJSON(w, http.StatusOK, webhookResponse{Received: true})
		return
	default:
		httputil.WriteAppError(w, r, err, logger)
		return
	}

	resp := webhookResponse{Received: true}
	if out != nil {
		resp.State = out.To
		logger.WithField("state", out.To).Debug("webhook applied")
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
