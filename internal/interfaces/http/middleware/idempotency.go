package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/medledger/billing/internal/interfaces/http/dto"
)

const (
	// IdempotencyKeyHeader lets a client retry POST /payments safely
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayHeader is set to "true" when a stored result is returned
	IdempotentReplayHeader = "Idempotent-Replayed"

	idempotencyKeyCtx       = "idempotency_key"
	maxIdempotencyKeyLength = 255
)

// IdempotencyKey validates the Idempotency-Key header and exposes it to handlers.
// The header is optional; requests without it are processed normally.
func IdempotencyKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLength || !printableASCII(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
				"Invalid Idempotency-Key header",
				GetRequestID(c),
				[]dto.ValidationDetail{{
					Field:   IdempotencyKeyHeader,
					Message: "Must be at most 255 printable ASCII characters",
				}},
			))
			return
		}
		c.Set(idempotencyKeyCtx, key)
		c.Next()
	}
}

// GetIdempotencyKey returns the validated key, or "" when none was sent
func GetIdempotencyKey(c *gin.Context) string {
	return c.GetString(idempotencyKeyCtx)
}

func printableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
