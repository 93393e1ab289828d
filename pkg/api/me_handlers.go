package api

import (
	"net/http"

	"github.com/voceacampusului/vocea/pkg/apperrors"
	"github.com/voceacampusului/vocea/pkg/contextkeys"
	"github.com/voceacampusului/vocea/pkg/entitlements"
	"github.com/voceacampusului/vocea/pkg/httputil"
	"github.com/voceacampusului/vocea/pkg/plans"
	"github.com/voceacampusului/vocea/pkg/projects"
)

// entitlementView joins the resolved tier with the current quota usage.
type entitlementView struct {
	Tier           plans.Tier          `json:"tier"`
	Source         entitlements.Source `json:"source"`
	Plan           plans.Plan          `json:"plan"`
	ProjectLimit   int                 `json:"project_limit"`
	ActiveProjects int                 `json:"active_projects"`
	Remaining      int                 `json:"remaining"`
}

type projectListResponse struct {
	Projects []*projects.Project `json:"projects"`
}

func (s *Server) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	userID := contextkeys.GetUserID(r.Context())

	ent, err := s.deps.Entitlements.Entitlement(r.Context(), userID)
	if err != nil {
		httputil.WriteAppError(w, r, err, s.logger)
		return
	}
	d, err := s.deps.Quota.CanCreateProject(r.Context(), userID)
	if err != nil {
		httputil.WriteAppError(w, r, err, s.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, entitlementView{
		Tier:           ent.Tier,
		Source:         ent.Source,
		Plan:           ent.Plan,
		ProjectLimit:   ent.ProjectLimit,
		ActiveProjects: d.Active,
		Remaining:      d.Remaining,
	})
}

func (s *Server) GetQuota(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Quota.CanCreateProject(r.Context(), contextkeys.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteAppError(w, r, err, s.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

// ListProjects returns the caller's projects; ?active=true drops expired
// ones.
func (s *Server) ListProjects(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := httputil.ParseQueryBool(r, "active", false)
	if err != nil {
		httputil.WriteAppError(w, r, err, s.logger)
		return
	}
	list, err := s.deps.Projects.ListByUser(r.Context(), contextkeys.GetUserID(r.Context()), activeOnly)
	if err != nil {
		httputil.WriteAppError(w, r, apperrors.Internal("api.ListProjects", err), s.logger)
		return
	}
	if list == nil {
		list = []*projects.Project{}
	}
	httputil.WriteJSON(w, http.StatusOK, projectListResponse{Projects: list})
}

// CreateProject validates and moderates the request; the enforcer makes
// the final quota decision inside its transaction.
func (s *Server) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req projects.CreateRequest
	if err := httputil.DecodeAndValidate(r, s.validate, &req); err != nil {
		httputil.WriteAppError(w, r, err, s.logger)
		return
	}
	if s.deps.Content != nil {
		if err := s.deps.Content.Check("title", req.Title); err != nil {
			httputil.WriteAppError(w, r, err, s.logger)
			return
		}
		if err := s.deps.Content.Check("description", req.Description); err != nil {
			httputil.WriteAppError(w, r, err, s.logger)
			return
		}
	}

	project, err := s.deps.Quota.CreateProject(r.Context(), contextkeys.GetUserID(r.Context()), &req)
	if err != nil {
		httputil.WriteAppError(w, r, err, s.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, project)
}
