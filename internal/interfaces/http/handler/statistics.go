package handler

import (
	"github.com/gin-gonic/gin"
	appbilling "github.com/medledger/billing/internal/application/billing"
)

// StatisticsHandler serves ledger-wide aggregates
type StatisticsHandler struct {
	BaseHandler
	statisticsService *appbilling.StatisticsService
}

// NewStatisticsHandler creates a new StatisticsHandler
func NewStatisticsHandler(statisticsService *appbilling.StatisticsService) *StatisticsHandler {
	return &StatisticsHandler{statisticsService: statisticsService}
}

// Summary handles GET /statistics/summary
func (h *StatisticsHandler) Summary(c *gin.Context) {
	summary, err := h.statisticsService.Summary(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}
