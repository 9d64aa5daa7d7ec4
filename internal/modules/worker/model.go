// README: Worker (bin collector) model and capacity rules.
package worker

import (
	"errors"
	"time"

	"dispatch/internal/types"
)

const (
	// DefaultCap is the number of simultaneously active pickups a worker may hold.
	DefaultCap = 3
	// DefaultServiceRadiusKm applies when a worker has not declared a radius.
	DefaultServiceRadiusKm = 10.0
)

var (
	ErrNotFound    = errors.New("worker not found")
	ErrBadRequest  = errors.New("bad request")
	ErrUnavailable = errors.New("worker is not available")
)

type Worker struct {
	ID                types.ID     `json:"id"`
	Name              string       `json:"name"`
	Location          *types.Point `json:"location,omitempty"`
	LocationUpdatedAt *time.Time   `json:"location_updated_at,omitempty"`
	Available         bool         `json:"is_available"`
	ServiceRadiusKm   float64      `json:"service_radius_km"`
	Rating            float64      `json:"rating"`
	ActivePickups     int          `json:"active_pickups"`
}

// Radius returns the declared service radius or the default.
func (w *Worker) Radius() float64 {
	if w.ServiceRadiusKm <= 0 {
		return DefaultServiceRadiusKm
	}
	return w.ServiceRadiusKm
}

func (w *Worker) HasCapacity(limit int) bool {
	if limit <= 0 {
		limit = DefaultCap
	}
	return w.ActivePickups < limit
}

func (w Worker) Clone() Worker {
	c := w
	if w.Location != nil {
		l := *w.Location
		c.Location = &l
	}
	if w.LocationUpdatedAt != nil {
		t := *w.LocationUpdatedAt
		c.LocationUpdatedAt = &t
	}
	return c
}
