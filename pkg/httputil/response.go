package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/voceacampusului/vocea/pkg/apperrors"
	"github.com/voceacampusului/vocea/pkg/observability"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ErrorResponse wraps ErrorBody under "error".
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindUnauthorized:
		return http.StatusUnauthorized
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindForbidden:
		return http.StatusForbidden
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorMessage writes an error response with an explicit status.
func WriteErrorMessage(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// WriteAppError writes err as an error response. Errors outside the
// apperrors taxonomy are treated as internal.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error, logger logrus.FieldLogger) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Internal("", err)
	}
	status := StatusFor(appErr.Kind)

	entry := observability.LoggerFromContext(r.Context(), logger).WithFields(logrus.Fields{
		"status": status,
		"code":   appErr.Code,
	})
	if appErr.Op != "" {
		entry = entry.WithField("op", appErr.Op)
	}
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error("request failed")
	} else {
		entry.WithError(err).Debug("request rejected")
	}

	WriteJSON(w, status, ErrorResponse{Error: ErrorBody{
		Code:    appErr.Code,
		Message: appErr.Message,
		Fields:  appErr.Fields,
	}})
}
