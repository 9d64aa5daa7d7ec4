// README: Worker handlers for profile, location, availability, schedule and route.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/modules/location"
	"dispatch/internal/modules/routing"
	"dispatch/internal/modules/schedule"
	"dispatch/internal/modules/worker"
	"dispatch/internal/types"
)

type WorkerHandler struct {
	location *location.Service
	schedule *schedule.Service
	now      func() time.Time
}

func NewWorkerHandler(locationSvc *location.Service, scheduleSvc *schedule.Service) *WorkerHandler {
	return &WorkerHandler{location: locationSvc, schedule: scheduleSvc, now: time.Now}
}

type upsertWorkerReq struct {
	Name            string   `json:"name"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	Available       bool     `json:"is_available"`
	ServiceRadiusKm float64  `json:"service_radius_km"`
	Rating          float64  `json:"rating"`
}

func (h *WorkerHandler) Upsert(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req upsertWorkerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		writeError(c, http.StatusBadRequest, "latitude and longitude must be provided together")
		return
	}
	w := &worker.Worker{
		ID:              id,
		Name:            req.Name,
		Available:       req.Available,
		ServiceRadiusKm: req.ServiceRadiusKm,
		Rating:          req.Rating,
	}
	if req.Latitude != nil {
		w.Location = types.PointPtr(*req.Latitude, *req.Longitude)
		at := h.now()
		w.LocationUpdatedAt = &at
	}
	saved, err := h.location.RegisterWorker(c.Request.Context(), w)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, saved)
}

type locationReq struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (h *WorkerHandler) UpdateLocation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Latitude == nil || req.Longitude == nil {
		writeError(c, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	w, err := h.location.UpdateWorkerLocation(c.Request.Context(), id, types.Point{Lat: *req.Latitude, Lng: *req.Longitude})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, w)
}

type availabilityReq struct {
	Available *bool `json:"is_available"`
}

func (h *WorkerHandler) SetAvailability(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Available == nil {
		writeError(c, http.StatusBadRequest, "is_available is required")
		return
	}
	w, err := h.location.SetAvailability(c.Request.Context(), id, *req.Available)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, w)
}

func (h *WorkerHandler) Schedule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	date := h.now()
	if raw := c.Query("date"); raw != "" {
		d, err := time.ParseInLocation(schedule.DateLayout, raw, date.Location())
		if err != nil {
			writeError(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = d
	}
	out, err := h.schedule.GetWorkerSchedule(c.Request.Context(), id, date)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

func (h *WorkerHandler) Reoptimize(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.schedule.ReoptimizeRoute(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

// OptimizedPickups suggests OPEN pickups around the worker in visiting
// order (?radius_km=&limit=&algorithm=).
func (h *WorkerHandler) OptimizedPickups(c *gin.Context) {
	id, ok := pathID(c)
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
	alg, err := routing.ParseAlgorithm(c.Query("algorithm"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	plan, err := h.location.OptimizedPickups(c.Request.Context(), id, radius, limit, alg)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, plan)
}

func (h *WorkerHandler) Nearby(c *gin.Context) {
	p, ok := queryPoint(c)
	if !ok {
		return
	}
	radius, ok := queryFloat(c, "radius_km")
	if !ok {
		return
	}
	out, err := h.location.NearbyWorkers(c.Request.Context(), p, radius)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"workers": out, "count": len(out)})
}
