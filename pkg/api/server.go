package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/voceacampusului/vocea/pkg/billing"
	"github.com/voceacampusului/vocea/pkg/entitlements"
	"github.com/voceacampusului/vocea/pkg/httputil"
	"github.com/voceacampusului/vocea/pkg/middleware"
	"github.com/voceacampusului/vocea/pkg/observability"
	"github.com/voceacampusului/vocea/pkg/orders"
	"github.com/voceacampusului/vocea/pkg/payments"
	"github.com/voceacampusului/vocea/pkg/plans"
	"github.com/voceacampusului/vocea/pkg/projects"
	"github.com/voceacampusului/vocea/pkg/quota"
	"github.com/voceacampusului/vocea/pkg/sweeper"
)

type PlanLister interface {
	List(ctx context.Context) ([]plans.Plan, error)
}

type EntitlementReader interface {
	Entitlement(ctx context.Context, userID string) (*entitlements.Entitlement, error)
}

// QuotaService is satisfied by *quota.Enforcer.
type QuotaService interface {
	CanCreateProject(ctx context.Context, userID string) (*quota.Decision, error)
	CreateProject(ctx context.Context, userID string, req *projects.CreateRequest) (*projects.Project, error)
}

type ProjectLister interface {
	ListByUser(ctx context.Context, userID string, activeOnly bool) ([]*projects.Project, error)
}

// ContentChecker rejects text containing banned terms.
type ContentChecker interface {
	Check(field, text string) error
}

// OrderService is satisfied by *orders.Service.
type OrderService interface {
	Checkout(ctx context.Context, userID, email string, req *orders.CheckoutRequest) (*orders.CheckoutResponse, error)
	Cancel(ctx context.Context, userID, orderID string) (*orders.Order, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]*orders.Order, error)
	HandleConfirmation(ctx context.Context, c *payments.Confirmation) (*orders.Outcome, error)
	ExpireStalePending(ctx context.Context, now time.Time, timeout time.Duration) (*orders.PendingResult, error)
}

type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*payments.Confirmation, error)
}

type BillingRunner interface {
	RunCycle(ctx context.Context, now time.Time) (*billing.Result, error)
}

type ProjectSweeper interface {
	Sweep(ctx context.Context, now time.Time) (*sweeper.Result, error)
}

// Authenticator resolves the caller and stores it in the request context.
type Authenticator interface {
	Middleware(next http.Handler) http.Handler
}

// Deps wires the router.
type Deps struct {
	Plans        PlanLister
	Entitlements EntitlementReader
	Quota        QuotaService
	Projects     ProjectLister
	Content      ContentChecker
	Orders       OrderService
	Webhooks     WebhookParser
	Billing      BillingRunner
	Sweeper      ProjectSweeper
	Auth         Authenticator
	// CheckoutLimiter is optional.
	CheckoutLimiter middleware.Limiter
	Metrics         *observability.Metrics
	Logger          logrus.FieldLogger
}

// Options are the router's HTTP settings.
type Options struct {
	CronSecret   string
	CORSOrigins  []string
	MaxBodyBytes int64
}

// Server holds the handlers.
type Server struct {
	deps     Deps
	validate *validator.Validate
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewServer(deps Deps) *Server {
	return &Server{
		deps:     deps,
		validate: validator.New(),
		logger:   deps.Logger,
		now:      time.Now,
	}
}

// Router builds the mux router with the /me, webhook and cron routes.
func (s *Server) Router(opts Options) *mux.Router {
	r := mux.NewRouter()
	r.Use(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(s.logger),
		httputil.LoggingMiddleware(s.logger),
		observability.HTTPMetricsMiddleware(s.deps.Metrics),
	)
	if opts.MaxBodyBytes > 0 {
		r.Use(httputil.MaxBytesMiddleware(opts.MaxBodyBytes))
	}

	r.HandleFunc("/plans", s.ListPlans).Methods(http.MethodGet)
	r.HandleFunc("/payments/webhook", s.HandleWebhook).Methods(http.MethodPost)

	me := r.PathPrefix("/me").Subrouter()
	me.Use(s.deps.Auth.Middleware)
	me.HandleFunc("/entitlement", s.GetEntitlement).Methods(http.MethodGet)
	me.HandleFunc("/quota", s.GetQuota).Methods(http.MethodGet)
	me.HandleFunc("/projects", s.ListProjects).Methods(http.MethodGet)
	me.Handle("/projects", middleware.EnforceProjectQuota(s.deps.Quota, s.logger)(http.HandlerFunc(s.CreateProject))).Methods(http.MethodPost)

	var checkout http.Handler = http.HandlerFunc(s.Checkout)
	if s.deps.CheckoutLimiter != nil {
		checkout = middleware.RateLimit(s.deps.CheckoutLimiter, middleware.UserKey, s.logger)(checkout)
	}
	me.Handle("/checkout", checkout).Methods(http.MethodPost)
	me.HandleFunc("/orders", s.ListOrders).Methods(http.MethodGet)
	me.HandleFunc("/orders/{orderID}/cancel", s.CancelOrder).Methods(http.MethodPost)

	cron := r.PathPrefix("/internal/cron").Subrouter()
	cron.Use(middleware.CronAuth(opts.CronSecret, s.logger))
	cron.HandleFunc("/billing", s.RunBilling).Methods(http.MethodPost)
	cron.HandleFunc("/sweep", s.RunSweep).Methods(http.MethodPost)
	cron.HandleFunc("/pending", s.RunPending).Methods(http.MethodPost)

	return r
}

// Handler wraps the router with CORS and tracing.
func (s *Server) Handler(opts Options) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", httputil.RequestIDHeader},
		ExposedHeaders:   []string{httputil.RequestIDHeader, "Retry-After", "X-Quota-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	return otelhttp.NewHandler(c.Handler(s.Router(opts)), "vocea-api")
}
