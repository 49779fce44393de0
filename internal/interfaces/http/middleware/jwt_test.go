package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/medledger/billing/internal/infrastructure/auth"
	"github.com/medledger/billing/internal/infrastructure/config"
	"github.com/medledger/billing/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "billing-test-secret-0123456789abcdef"

func signToken(t *testing.T, subject string, expiresIn time.Duration) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newAuthEngine(cfg AuthConfig) (*gin.Engine, *string) {
	engine := gin.New()
	engine.Use(Authenticate(cfg))
	actor := new(string)
	handler := func(c *gin.Context) {
		*actor = GetActor(c)
		c.Status(http.StatusOK)
	}
	engine.GET("/api/v1/invoices", handler)
	engine.GET("/health", handler)
	return engine, actor
}

func TestAuthenticate_Enabled(t *testing.T) {
	verifier := auth.NewTokenVerifier(config.AuthConfig{Secret: testSecret})
	engine, actor := newAuthEngine(DefaultAuthConfig(verifier))

	t.Run("valid token sets the subject as actor", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+signToken(t, "billing.clerk", time.Hour))
		w := serve(engine, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "billing.clerk", *actor)
	})

	t.Run("missing header", func(t *testing.T) {
		w := serve(engine, httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
		req.Header.Set(AuthHeaderKey, "Basic abc")
		w := serve(engine, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+signToken(t, "billing.clerk", -time.Hour))
		w := serve(engine, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Token has expired")
	})

	t.Run("health skips authentication", func(t *testing.T) {
		w := serve(engine, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAuthenticate_Disabled(t *testing.T) {
	engine := gin.New()
	engine.Use(Authenticate(AuthConfig{Enabled: false}))
	var actor, logged string
	engine.GET("/x", func(c *gin.Context) {
		actor = GetActor(c)
		logged = logger.GetActor(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(ActorHeader, "front-desk")
	serve(engine, req)
	assert.Equal(t, "front-desk", actor)
	assert.Equal(t, "front-desk", logged)

	serve(engine, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, AnonymousActor, actor)
}
