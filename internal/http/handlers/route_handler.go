// README: Route optimisation over a caller-selected set of pickups.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/modules/location"
	"dispatch/internal/modules/routing"
	"dispatch/internal/types"
)

const maxRoutePickups = 50

type RouteHandler struct {
	location *location.Service
}

func NewRouteHandler(locationSvc *location.Service) *RouteHandler {
	return &RouteHandler{location: locationSvc}
}

type optimizeRouteReq struct {
	WorkerID  string   `json:"worker_id"`
	PickupIDs []string `json:"pickup_ids"`
	Algorithm string   `json:"algorithm"`
}

func (h *RouteHandler) Optimize(c *gin.Context) {
	var req optimizeRouteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !isValidID(req.WorkerID) {
		writeError(c, http.StatusBadRequest, "worker_id is required")
		return
	}
	if len(req.PickupIDs) == 0 || len(req.PickupIDs) > maxRoutePickups {
		writeError(c, http.StatusBadRequest, "pickup_ids must hold 1 to 50 ids")
		return
	}
	ids := make([]types.ID, 0, len(req.PickupIDs))
	for _, raw := range req.PickupIDs {
		if !isValidID(raw) {
			writeError(c, http.StatusBadRequest, "invalid pickup id")
			return
		}
		ids = append(ids, types.ID(raw))
	}
	alg, err := routing.ParseAlgorithm(req.Algorithm)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	plan, err := h.location.OptimizeSelection(c.Request.Context(), types.ID(req.WorkerID), ids, alg)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, plan)
}
