package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/medledger/billing/internal/interfaces/http/middleware"
)

// uuidParam parses a UUID path parameter, answering 400 when malformed
func (h *BaseHandler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.InvalidParam(c, name, "Invalid UUID format")
		return uuid.Nil, false
	}
	return id, true
}

// parseDate parses an already validated YYYY-MM-DD value; "" yields nil
func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(middleware.DateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

// uuidField parses a UUID taken from a body or query field, answering 400
// when malformed
func (h *BaseHandler) uuidField(c *gin.Context, field, value string) (uuid.UUID, bool) {
	id, err := uuid.Parse(value)
	if err != nil {
		h.InvalidParam(c, field, "Invalid UUID format")
		return uuid.Nil, false
	}
	return id, true
}

// optionalUUIDField is uuidField for filters, where "" means no filter
func (h *BaseHandler) optionalUUIDField(c *gin.Context, field, value string) (*uuid.UUID, bool) {
	if value == "" {
		return nil, true
	}
	id, ok := h.uuidField(c, field, value)
	if !ok {
		return nil, false
	}
	return &id, true
}
