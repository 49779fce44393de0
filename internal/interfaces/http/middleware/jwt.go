package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/medledger/billing/internal/infrastructure/auth"
	"github.com/medledger/billing/internal/infrastructure/logger"
	"github.com/medledger/billing/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Context keys and headers used by authentication
const (
	JWTClaimsKey  = "jwt_claims"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
	// ActorHeader names the actor when authentication is disabled (local dev, tests)
	ActorHeader = "X-Actor"
	// AnonymousActor is recorded when no actor can be determined
	AnonymousActor = "anonymous"
)

// TokenVerifier validates a bearer token
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// AuthConfig holds configuration for the authentication middleware
type AuthConfig struct {
	// Enabled requires a valid bearer token on every non-skipped path
	Enabled bool
	// Verifier is required when Enabled
	Verifier TokenVerifier
	// SkipPaths are paths that don't require authentication
	SkipPaths []string
	Logger    *zap.Logger
}

// DefaultAuthConfig returns the default authentication configuration
func DefaultAuthConfig(verifier TokenVerifier) AuthConfig {
	return AuthConfig{
		Enabled:   verifier != nil,
		Verifier:  verifier,
		SkipPaths: []string{"/health", "/ready", "/api/v1/health", "/api/v1/ready"},
	}
}

// Authenticate resolves the actor of every request.
// With authentication enabled the actor is the bearer token subject; otherwise
// it is taken from the X-Actor header and defaults to "anonymous".
// The actor is stored under logger.GinActorKey for the request log and handlers.
func Authenticate(cfg AuthConfig) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if !cfg.Enabled {
			actor := strings.TrimSpace(c.GetHeader(ActorHeader))
			if actor == "" {
				actor = AnonymousActor
			}
			setActor(c, actor)
			c.Next()
			return
		}

		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		header := c.GetHeader(AuthHeaderKey)
		if header == "" {
			abortUnauthorized(c, cfg, auth.ErrInvalidToken, "Missing authorization header")
			return
		}
		if !strings.HasPrefix(header, BearerPrefix) {
			abortUnauthorized(c, cfg, auth.ErrInvalidToken, "Invalid authorization header format")
			return
		}

		claims, err := cfg.Verifier.Verify(strings.TrimPrefix(header, BearerPrefix))
		if err != nil {
			abortUnauthorized(c, cfg, err, "Token validation failed")
			return
		}

		c.Set(JWTClaimsKey, claims)
		setActor(c, claims.Actor())
		c.Next()
	}
}

func setActor(c *gin.Context, actor string) {
	c.Set(logger.GinActorKey, actor)
	ctx := c.Request.Context()
	ctx, _ = logger.WithActor(ctx, logger.FromContext(ctx), actor)
	c.Request = c.Request.WithContext(ctx)
}

func abortUnauthorized(c *gin.Context, cfg AuthConfig, err error, message string) {
	if cfg.Logger != nil {
		cfg.Logger.Debug("Authentication failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		message = "Token has expired"
	case errors.Is(err, auth.ErrMissingSubject):
		message = "Token has no subject"
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized,
		dto.NewErrorResponseWithRequestID(dto.ErrCodeUnauthorized, message, GetRequestID(c)))
}

// GetActor returns the actor resolved by Authenticate
func GetActor(c *gin.Context) string {
	if actor := c.GetString(logger.GinActorKey); actor != "" {
		return actor
	}
	return AnonymousActor
}

// GetClaims returns the verified token claims, if any
func GetClaims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(JWTClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
