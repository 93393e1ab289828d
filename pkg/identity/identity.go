// Package identity authenticates requests with bearer tokens issued by the
// identity provider and maps them to local users.
//
// Tokens are OIDC JWTs verified against the issuer's published keys. The
// token subject is the provider's user id (clerk_id); on first sight a
// Basic user is created for it.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/voceacampusului/vocea/pkg/apperrors"
	"github.com/voceacampusului/vocea/pkg/contextkeys"
	"github.com/voceacampusului/vocea/pkg/httputil"
	"github.com/voceacampusului/vocea/pkg/observability"
	"github.com/voceacampusului/vocea/pkg/users"
)

const (
	CodeMissingToken = "MISSING_TOKEN"
	CodeInvalidToken = "INVALID_TOKEN"
)

// Claims are the token fields this service uses.
type Claims struct {
	Subject string
	Email   string
}

// TokenVerifier validates a raw bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*Claims, error)
}

// OIDCVerifier verifies JWTs with go-oidc.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers issuer's keys. An empty audience skips the
// audience check; session tokens from the provider carry none.
func NewOIDCVerifier(ctx context.Context, issuer, audience string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	return &OIDCVerifier{verifier: provider.Verifier(verifierConfig(audience))}, nil
}

// NewStaticOIDCVerifier verifies against a fixed key set without discovery.
func NewStaticOIDCVerifier(issuer, audience string, keys oidc.KeySet) *OIDCVerifier {
	return &OIDCVerifier{verifier: oidc.NewVerifier(issuer, keys, verifierConfig(audience))}
}

func verifierConfig(audience string) *oidc.Config {
	return &oidc.Config{
		ClientID:          audience,
		SkipClientIDCheck: audience == "",
	}
}

func (v *OIDCVerifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	token, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnauthorized, CodeInvalidToken, "invalid token", err)
	}
	var extra struct {
		Email string `json:"email"`
	}
	if err := token.Claims(&extra); err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnauthorized, CodeInvalidToken, "invalid token claims", err)
	}
	return &Claims{Subject: token.Subject, Email: extra.Email}, nil
}

// UserStore provisions users by provider id.
type UserStore interface {
	EnsureUser(ctx context.Context, clerkID, email string) (*users.User, error)
}

// Resolver turns a request into a local user.
type Resolver struct {
	verifier TokenVerifier
	users    UserStore
	cache    *expirable.LRU[string, *users.User]
	logger   logrus.FieldLogger
}

// NewResolver creates a Resolver. cacheTTL > 0 caches provisioned users
// by subject and email.
func NewResolver(verifier TokenVerifier, store UserStore, cacheTTL time.Duration, logger logrus.FieldLogger) *Resolver {
	r := &Resolver{verifier: verifier, users: store, logger: logger}
	if cacheTTL > 0 {
		r.cache = expirable.NewLRU[string, *users.User](1024, nil, cacheTTL)
	}
	return r
}

// Resolve authenticates req.
func (r *Resolver) Resolve(req *http.Request) (*users.User, error) {
	raw, ok := bearerToken(req)
	if !ok {
		return nil, apperrors.Unauthorized(CodeMissingToken, "missing bearer token")
	}
	claims, err := r.verifier.Verify(req.Context(), raw)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, apperrors.Unauthorized(CodeInvalidToken, "token has no subject")
	}

	key := claims.Subject + "\x00" + claims.Email
	if r.cache != nil {
		if u, ok := r.cache.Get(key); ok {
			return u, nil
		}
	}

	u, err := r.users.EnsureUser(req.Context(), claims.Subject, claims.Email)
	if err != nil {
		return nil, apperrors.Internal("identity.EnsureUser", err)
	}
	if r.cache != nil {
		r.cache.Add(key, u)
	}
	return u, nil
}

// Middleware rejects unauthenticated requests with 401 and stores the
// user in the request context.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		u, err := r.Resolve(req)
		if err != nil {
			httputil.WriteAppError(w, req, err, r.logger)
			return
		}
		ctx := contextkeys.WithUser(req.Context(), u)
		ctx = contextkeys.WithUserID(ctx, u.ID)
		ctx = observability.WithLogger(ctx, observability.LoggerFromContext(ctx, r.logger).WithField("user_id", u.ID))
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

// UserFromContext returns the user set by Middleware.
func UserFromContext(ctx context.Context) (*users.User, bool) {
	u, ok := ctx.Value(contextkeys.UserKey).(*users.User)
	return u, ok && u != nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
