package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/voceacampusului/vocea/pkg/apperrors"
	"github.com/voceacampusului/vocea/pkg/httputil"
)

const CodeInvalidCronSecret = "INVALID_CRON_SECRET"

// CronAuth admits requests carrying "Authorization: Bearer <secret>". An
// empty secret rejects everything.
func CronAuth(secret string, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	want := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, hasScheme := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if len(want) == 0 || !hasScheme || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				httputil.WriteAppError(w, r, apperrors.Unauthorized(CodeInvalidCronSecret, "invalid cron secret"), logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
