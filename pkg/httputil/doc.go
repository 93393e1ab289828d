// Package httputil provides HTTP helpers shared by the API handlers.
//
// # Responses
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteAppError(w, r, err, logger)
//
// WriteAppError maps the apperrors kind to a status code and writes
//
//	{"error": {"code": "QUOTA_EXCEEDED", "message": "...", "fields": {...}}}
//
// Internal and upstream causes are logged, never written to the client.
//
// # Requests
//
//	var req orders.CheckoutRequest
//	if err := httputil.DecodeAndValidate(r, validate, &req); err != nil {
//		httputil.WriteAppError(w, r, err, logger)
//		return
//	}
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RecoveryMiddleware(logger),
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
