package identity

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voceacampusului/vocea/pkg/apperrors"
	"github.com/voceacampusului/vocea/pkg/contextkeys"
	"github.com/voceacampusului/vocea/pkg/plans"
	"github.com/voceacampusului/vocea/pkg/users"
)

const issuer = "https://clerk.vocea.test"

func signJWT(t *testing.T, key *rsa.PrivateKey, claims map[string]any) string {
	t.Helper()
	enc := base64.RawURLEncoding
	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	signingInput := enc.EncodeToString(header) + "." + enc.EncodeToString(payload)
	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return signingInput + "." + enc.EncodeToString(sig)
}

func newKey(t *testing.T) *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestOIDCVerifier(t *testing.T) {
	key := newKey(t)
	v := NewStaticOIDCVerifier(issuer, "", &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}})
	now := time.Now()

	t.Run("valid", func(t *testing.T) {
		raw := signJWT(t, key, map[string]any{
			"iss": issuer, "sub": "user_2abc", "email": "ana@student.ro",
			"iat": now.Unix(), "exp": now.Add(time.Hour).Unix(),
		})
		claims, err := v.Verify(context.Background(), raw)
		require.NoError(t, err)
		assert.Equal(t, "user_2abc", claims.Subject)
		assert.Equal(t, "ana@student.ro", claims.Email)
	})

	t.Run("expired", func(t *testing.T) {
		raw := signJWT(t, key, map[string]any{
			"iss": issuer, "sub": "user_2abc", "exp": now.Add(-time.Hour).Unix(),
		})
		_, err := v.Verify(context.Background(), raw)
		assert.True(t, apperrors.IsUnauthorized(err))
		assert.Equal(t, CodeInvalidToken, apperrors.CodeOf(err))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		raw := signJWT(t, key, map[string]any{
			"iss": "https://evil.test", "sub": "user_2abc", "exp": now.Add(time.Hour).Unix(),
		})
		_, err := v.Verify(context.Background(), raw)
		assert.True(t, apperrors.IsUnauthorized(err))
	})

	t.Run("wrong key", func(t *testing.T) {
		raw := signJWT(t, newKey(t), map[string]any{
			"iss": issuer, "sub": "user_2abc", "exp": now.Add(time.Hour).Unix(),
		})
		_, err := v.Verify(context.Background(), raw)
		assert.True(t, apperrors.IsUnauthorized(err))
	})
}

type verifierFunc func(ctx context.Context, raw string) (*Claims, error)

func (f verifierFunc) Verify(ctx context.Context, raw string) (*Claims, error) { return f(ctx, raw) }

type mockUserStore struct {
	calls      atomic.Int32
	ensureUser func(ctx context.Context, clerkID, email string) (*users.User, error)
}

func (m *mockUserStore) EnsureUser(ctx context.Context, clerkID, email string) (*users.User, error) {
	m.calls.Add(1)
	return m.ensureUser(ctx, clerkID, email)
}

func acceptAll() verifierFunc {
	return func(ctx context.Context, raw string) (*Claims, error) {
		if raw == "bad" {
			return nil, apperrors.Unauthorized(CodeInvalidToken, "invalid token")
		}
		return &Claims{Subject: "clerk_" + raw, Email: raw + "@student.ro"}, nil
	}
}

func provisioning() *mockUserStore {
	return &mockUserStore{ensureUser: func(ctx context.Context, clerkID, email string) (*users.User, error) {
		return &users.User{ID: "id-" + clerkID, ClerkID: clerkID, Email: email, PlanType: plans.TierBasic}, nil
	}}
}

func TestResolverMiddleware(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := provisioning()
	resolver := NewResolver(acceptAll(), store, time.Minute, logger)

	var got *users.User
	var gotID string
	h := resolver.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserFromContext(r.Context())
		gotID = contextkeys.GetUserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 2; i++ {
		r := httptest.NewRequest(http.MethodGet, "/me/entitlement", nil)
		r.Header.Set("Authorization", "Bearer ana")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
	require.NotNil(t, got)
	assert.Equal(t, "clerk_ana", got.ClerkID)
	assert.Equal(t, "id-clerk_ana", gotID)
	assert.Equal(t, int32(1), store.calls.Load(), "second request served from cache")
}

func TestResolverRejects(t *testing.T) {
	logger, _ := test.NewNullLogger()
	resolver := NewResolver(acceptAll(), provisioning(), 0, logger)
	h := resolver.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer bad"} {
		r := httptest.NewRequest(http.MethodGet, "/me/orders", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestResolverStoreFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := &mockUserStore{ensureUser: func(ctx context.Context, clerkID, email string) (*users.User, error) {
		return nil, errors.New("db down")
	}}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "bearer ana")

	_, err := NewResolver(acceptAll(), store, 0, logger).Resolve(r)
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))
}

func TestUserFromContextEmpty(t *testing.T) {
	_, ok := UserFromContext(context.Background())
	assert.False(t, ok)
}
