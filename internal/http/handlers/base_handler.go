// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dispatch/internal/logger"
	"dispatch/internal/modules/assignment"
	"dispatch/internal/modules/broadcast"
	"dispatch/internal/modules/location"
	"dispatch/internal/modules/matching"
	"dispatch/internal/modules/pickup"
	"dispatch/internal/modules/routing"
	"dispatch/internal/modules/worker"
	"dispatch/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts the UUIDs we generate as well as caller-supplied
// alphanumeric IDs (dashes and underscores allowed).
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

// pathID reads and validates the :id parameter, writing a 400 on failure.
func pathID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid id")
		return "", false
	}
	return types.ID(id), true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pickup.ErrBadRequest),
		errors.Is(err, worker.ErrBadRequest),
		errors.Is(err, types.ErrInvalidCoordinate),
		errors.Is(err, routing.ErrUnknownAlgorithm),
		errors.Is(err, broadcast.ErrInvalidTopic):
		return http.StatusBadRequest
	case errors.Is(err, pickup.ErrNotFound), errors.Is(err, worker.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pickup.ErrInvalidState),
		errors.Is(err, assignment.ErrWorkerAtCapacity),
		errors.Is(err, assignment.ErrWorkerUnavailable):
		return http.StatusConflict
	case errors.Is(err, matching.ErrNoCandidate),
		errors.Is(err, assignment.ErrLocationUnavailable),
		errors.Is(err, location.ErrWorkerLocationUnavailable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			logger.String("path", c.FullPath()),
			logger.Err(err),
		)
		writeError(c, status, "internal error")
		return
	}
	writeError(c, status, err.Error())
}

// queryPoint parses the lat/lng query parameters.
func queryPoint(c *gin.Context) (types.Point, bool) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return types.Point{}, false
	}
	p := types.Point{Lat: lat, Lng: lng}
	if err := p.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return types.Point{}, false
	}
	return p, true
}

func queryFloat(c *gin.Context, key string) (float64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid "+key)
		return 0, false
	}
	return v, true
}

func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid "+key)
		return 0, false
	}
	return v, true
}
