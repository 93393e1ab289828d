// Package quota enforces the per-tier limit on active projects.
//
// CanCreateProject answers the read-only question used by the UI. The
// create path, CreateProject, does not trust that answer: it re-checks the
// limit inside the insert transaction, so two concurrent creates by the
// same user can never both exceed the quota.
//
//	decision, err := enforcer.CanCreateProject(ctx, userID)
//	if !decision.Allowed {
//		// show upgrade prompt
//	}
//
//	p, err := enforcer.CreateProject(ctx, userID, &projects.CreateRequest{Title: "..."})
//	if apperrors.CodeOf(err) == quota.CodeQuotaExceeded {
//		// 403
//	}
package quota
