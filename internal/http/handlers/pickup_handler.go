// README: Pickup handlers for create/get/assign/batch/status/nearby.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/modules/assignment"
	"dispatch/internal/modules/location"
	"dispatch/internal/modules/pickup"
	"dispatch/internal/types"
)

const maxBatchSize = 100

type PickupHandler struct {
	assignment *assignment.Service
	location   *location.Service
}

func NewPickupHandler(assignmentSvc *assignment.Service, locationSvc *location.Service) *PickupHandler {
	return &PickupHandler{assignment: assignmentSvc, location: locationSvc}
}

type createPickupReq struct {
	BinID             string   `json:"bin_id"`
	CustomerID        string   `json:"customer_id"`
	Latitude          *float64 `json:"latitude"`
	Longitude         *float64 `json:"longitude"`
	Address           string   `json:"address"`
	ExpectedFee       float64  `json:"expected_fee"`
	Currency          string   `json:"currency"`
	WasteType         string   `json:"waste_type"`
	EstimatedWeightKg *float64 `json:"estimated_weight_kg"`
	Notes             string   `json:"notes"`
	AutoAssign        bool     `json:"auto_assign"`
}

func (h *PickupHandler) Create(c *gin.Context) {
	var req createPickupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.BinID == "" || req.CustomerID == "" {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		writeError(c, http.StatusBadRequest, "latitude and longitude must be provided together")
		return
	}
	var loc *types.Point
	if req.Latitude != nil {
		loc = types.PointPtr(*req.Latitude, *req.Longitude)
	}
	fee, err := types.ParseMajor(req.ExpectedFee, req.Currency)
	if err != nil {
		writeError(c, http.StatusBadRequest, "expected_fee out of range")
		return
	}

	p, err := h.assignment.Create(c.Request.Context(), assignment.CreateCommand{
		BinID:             types.ID(req.BinID),
		CustomerID:        types.ID(req.CustomerID),
		Location:          loc,
		Address:           req.Address,
		ExpectedFee:       fee,
		WasteType:         req.WasteType,
		EstimatedWeightKg: req.EstimatedWeightKg,
		Notes:             req.Notes,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	resp := gin.H{"pickup": p}
	if req.AutoAssign {
		// A failed auto-assign leaves the pickup OPEN for the sweeper.
		res, _ := h.assignment.AutoAssign(c.Request.Context(), p.ID)
		resp["assignment"] = res
		if res.Success {
			if fresh, err := h.assignment.Get(c.Request.Context(), p.ID); err == nil {
				resp["pickup"] = fresh
			}
		}
	}
	writeJSON(c, http.StatusCreated, resp)
}

func (h *PickupHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, err := h.assignment.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (h *PickupHandler) Assign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.assignment.AutoAssign(c.Request.Context(), id)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			writeServiceError(c, err)
			return
		}
		writeJSON(c, status, res)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

type batchAssignReq struct {
	PickupIDs []string `json:"pickup_ids"`
}

func (h *PickupHandler) BatchAssign(c *gin.Context) {
	var req batchAssignReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.PickupIDs) == 0 || len(req.PickupIDs) > maxBatchSize {
		writeError(c, http.StatusBadRequest, "pickup_ids must contain between 1 and 100 ids")
		return
	}
	ids := make([]types.ID, len(req.PickupIDs))
	for i, raw := range req.PickupIDs {
		if !isValidID(raw) {
			writeError(c, http.StatusBadRequest, "invalid pickup id: "+raw)
			return
		}
		ids[i] = types.ID(raw)
	}
	writeJSON(c, http.StatusOK, h.assignment.ScheduleBatch(c.Request.Context(), ids))
}

type updateStatusReq struct {
	Status    string `json:"status"`
	ActorType string `json:"actor_type"`
	ActorID   string `json:"actor_id"`
	Notes     string `json:"notes"`
}

func (h *PickupHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cmd := assignment.UpdateStatusCommand{
		PickupID:  id,
		Status:    pickup.Status(req.Status),
		ActorType: req.ActorType,
		Notes:     req.Notes,
	}
	if req.ActorID != "" {
		actor := types.ID(req.ActorID)
		cmd.ActorID = &actor
	}
	p, err := h.assignment.UpdateStatus(c.Request.Context(), cmd)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (h *PickupHandler) Nearby(c *gin.Context) {
	p, ok := queryPoint(c)
	if !ok {
		return
	}
	radius, ok := queryFloat(c, "radius_km")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	out, err := h.location.NearbyOpenPickups(c.Request.Context(), p, radius, limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"pickups": out, "count": len(out)})
}
