package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/voceacampusului/vocea/pkg/apperrors"
	"github.com/voceacampusului/vocea/pkg/contextkeys"
	"github.com/voceacampusului/vocea/pkg/httputil"
	"github.com/voceacampusului/vocea/pkg/plans"
	"github.com/voceacampusului/vocea/pkg/quota"
)

// QuotaChecker answers whether a user may create another project.
type QuotaChecker interface {
	CanCreateProject(ctx context.Context, userID string) (*quota.Decision, error)
}

// EnforceProjectQuota rejects project creation early when the user has no
// quota left and sets X-Quota-Remaining otherwise. The store re-checks the
// limit on insert, so this is an early exit and not the enforcement point.
func EnforceProjectQuota(checker QuotaChecker, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			userID := contextkeys.GetUserID(r.Context())
			if userID == "" {
				httputil.WriteAppError(w, r, apperrors.Unauthorized("MISSING_USER", "authentication required"), logger)
				return
			}

			d, err := checker.CanCreateProject(r.Context(), userID)
			if err != nil {
				httputil.WriteAppError(w, r, err, logger)
				return
			}
			if !d.Allowed {
				err := apperrors.Forbidden(quota.CodeQuotaExceeded, "project quota exceeded").
					WithField("tier", string(d.Tier)).
					WithField("limit", strconv.Itoa(d.Limit))
				httputil.WriteAppError(w, r, err, logger)
				return
			}
			if d.Remaining != plans.Unlimited {
				w.Header().Set("X-Quota-Remaining", strconv.Itoa(d.Remaining))
			}
			next.ServeHTTP(w, r)
		})
	}
}
