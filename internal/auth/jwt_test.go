package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuth(t *testing.T) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator("test-secret", time.Hour)
	require.NoError(t, err)
	return a
}

func TestGenerateAndParse(t *testing.T) {
	a := newAuth(t)

	tok, err := a.GenerateToken("user-1", "acme")
	require.NoError(t, err)

	c, err := a.ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", c.Subject)
	assert.Equal(t, "acme", c.Tenant)
}

func TestParseToken_Rejects(t *testing.T) {
	a := newAuth(t)
	tok, err := a.GenerateToken("user-1", "acme")
	require.NoError(t, err)

	other, _ := NewAuthenticator("other-secret", time.Hour)
	_, err = other.ParseToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = a.ParseToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Tenant: "acme"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = newAuth(t).ParseToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.GenerateToken("user-1", "")
	assert.Error(t, err)
}

func TestNewAuthenticator_EmptySecret(t *testing.T) {
	_, err := NewAuthenticator("", time.Hour)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	a := newAuth(t)
	var seen *Claims
	h := a.Middleware("/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, seen)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing bearer token")

	tok, err := a.GenerateToken("user-1", "acme")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "acme", seen.Tenant)
}

func TestClaimsFromContext_Missing(t *testing.T) {
	_, err := ClaimsFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.ErrorIs(t, err, ErrNoClaims)
}
