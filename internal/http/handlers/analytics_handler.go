// README: Analytics and heatmap HTTP handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/modules/analytics"
	"dispatch/internal/modules/location"
)

type AnalyticsHandler struct {
	analytics *analytics.Service
	location  *location.Service
}

func NewAnalyticsHandler(analyticsSvc *analytics.Service, locationSvc *location.Service) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analyticsSvc, location: locationSvc}
}

func (h *AnalyticsHandler) Scheduling(c *gin.Context) {
	r, err := h.analytics.Get(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *AnalyticsHandler) CoverageGaps(c *gin.Context) {
	r, err := h.location.CoverageGaps(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}
