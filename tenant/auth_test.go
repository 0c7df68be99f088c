package tenant

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragbackend/config"
	"ragbackend/ragerrors"
)

func signJWT(t *testing.T, secret, tenantID string) string {
	t.Helper()
	claims := jwtlib.MapClaims{
		"tenant_id": tenantID,
		"exp":       time.Now().Add(time.Hour).Unix(),
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestResolve_AuthDisabledUsesHeaderOrDefault(t *testing.T) {
	a := NewAuthenticator(&config.Config{RequireAuth: false})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	tid, err := a.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, "default", tid)

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.Header.Set("X-Tenant-ID", "tenant-xyz")
	tid2, err := a.Resolve(req2)
	require.NoError(t, err)
	assert.Equal(t, "tenant-xyz", tid2)
}

func TestResolve_BearerToken(t *testing.T) {
	secret := "shared-secret"
	a := NewAuthenticator(&config.Config{RequireAuth: true, AuthSecret: secret})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signJWT(t, secret, "tenant-1"))

	tid, err := a.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tid)
}

func TestResolve_BearerTokenWrongSecretRejected(t *testing.T) {
	a := NewAuthenticator(&config.Config{RequireAuth: true, AuthSecret: "shared-secret"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signJWT(t, "wrong-secret", "tenant-1"))

	_, err := a.Resolve(req)
	require.Error(t, err)
	assert.Equal(t, ragerrors.AuthError, ragerrors.KindOf(err))
}

func TestResolve_BearerTokenMissingTenantClaim(t *testing.T) {
	secret := "shared-secret"
	a := NewAuthenticator(&config.Config{RequireAuth: true, AuthSecret: secret})

	claims := jwtlib.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)

	_, err = a.Resolve(req)
	require.Error(t, err)
	assert.Equal(t, ragerrors.AuthError, ragerrors.KindOf(err))
}

func TestResolve_APIKeyValid(t *testing.T) {
	secret := "shared-secret"
	a := NewAuthenticator(&config.Config{RequireAuth: true, AuthSecret: secret})

	key := "tenant-1." + SignAPIKey("tenant-1", secret)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", key)

	tid, err := a.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tid)
}

func TestResolve_APIKeyBadSignatureRejected(t *testing.T) {
	secret := "shared-secret"
	a := NewAuthenticator(&config.Config{RequireAuth: true, AuthSecret: secret})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "tenant-1.deadbeef")

	_, err := a.Resolve(req)
	require.Error(t, err)
	assert.Equal(t, ragerrors.AuthError, ragerrors.KindOf(err))
}

func TestResolve_APIKeyMalformedRejected(t *testing.T) {
	a := NewAuthenticator(&config.Config{RequireAuth: true, AuthSecret: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "no-dot-here")

	_, err := a.Resolve(req)
	require.Error(t, err)
	assert.Equal(t, ragerrors.AuthError, ragerrors.KindOf(err))
}

func TestResolve_NoCredentialsRejected(t *testing.T) {
	a := NewAuthenticator(&config.Config{RequireAuth: true, AuthSecret: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := a.Resolve(req)
	require.Error(t, err)
	assert.Equal(t, ragerrors.AuthError, ragerrors.KindOf(err))
}

func TestSignAPIKey_Deterministic(t *testing.T) {
	a := SignAPIKey("tenant-1", "secret")
	b := SignAPIKey("tenant-1", "secret")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, SignAPIKey("tenant-2", "secret"))
}
