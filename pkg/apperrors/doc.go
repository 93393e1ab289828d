// Package apperrors defines the error taxonomy shared by every service.
//
// An *Error carries a Kind (what the caller did wrong, or what failed
// upstream), a stable machine-readable Code and a human message. The HTTP
// layer maps Kind to a status code; nothing else in the system needs to
// know about HTTP.
//
//	if errors.Is(err, sql.ErrNoRows) {
//		return nil, apperrors.NotFound(CodeOrderNotFound, "order not found")
//	}
//
// Sentinel values (ErrNotFound, ErrForbidden, ...) match any *Error of the
// same Kind via errors.Is.
package apperrors
