// README: Builders that turn pickup changes into topic events.
package broadcast

import (
	"time"

	"dispatch/internal/geo"
	"dispatch/internal/modules/pickup"
	"dispatch/internal/modules/routing"
	"dispatch/internal/modules/worker"
	"dispatch/internal/types"
)

var statusMessages = map[pickup.Status]string{
	pickup.StatusOpen:       "Your pickup request is waiting for a worker",
	pickup.StatusAccepted:   "A worker has accepted your pickup request",
	pickup.StatusInProgress: "Your waste is being collected",
	pickup.StatusDelivered:  "Your waste has been delivered for processing",
	pickup.StatusCompleted:  "Your pickup has been completed",
	pickup.StatusCancelled:  "Your pickup request has been cancelled",
	pickup.StatusDisputed:   "A dispute has been opened for your pickup",
}

// StatusMessage returns the customer-facing text for a status.
func StatusMessage(s pickup.Status) string {
	if m, ok := statusMessages[s]; ok {
		return m
	}
	return "Pickup status changed to " + string(s)
}

// PickupSnapshot is the full pickup state carried in every pickup event.
func PickupSnapshot(p *pickup.Pickup) map[string]any {
	snap := map[string]any{
		"pickup_id":    string(p.ID),
		"bin_id":       string(p.BinID),
		"customer_id":  string(p.CustomerID),
		"status":       string(p.Status),
		"expected_fee": p.ExpectedFee.Major(),
		"currency":     p.ExpectedFee.Currency,
		"waste_type":   p.WasteType,
		"created_at":   p.CreatedAt,
	}
	if p.WorkerID != nil {
		snap["worker_id"] = string(*p.WorkerID)
	}
	if p.Location != nil {
		snap["latitude"] = p.Location.Lat
		snap["longitude"] = p.Location.Lng
	}
	putTime(snap, "accepted_at", p.AcceptedAt)
	putTime(snap, "picked_at", p.PickedAt)
	putTime(snap, "delivered_at", p.DeliveredAt)
	putTime(snap, "completed_at", p.CompletedAt)
	putTime(snap, "cancelled_at", p.CancelledAt)
	putTime(snap, "window_start", p.WindowStart)
	putTime(snap, "window_end", p.WindowEnd)
	putTime(snap, "estimated_completion", p.EstimatedCompletion)
	return snap
}

func WorkerSnapshot(w *worker.Worker) map[string]any {
	snap := map[string]any{
		"worker_id":         string(w.ID),
		"name":              w.Name,
		"is_available":      w.Available,
		"service_radius_km": w.Radius(),
		"rating":            w.Rating,
		"active_pickups":    w.ActivePickups,
	}
	if w.Location != nil {
		snap["latitude"] = w.Location.Lat
		snap["longitude"] = w.Location.Lng
	}
	putTime(snap, "location_updated_at", w.LocationUpdatedAt)
	return snap
}

// PickupCreated announces a new OPEN pickup.
func PickupCreated(p *pickup.Pickup, at time.Time) []Event {
	return []Event{
		newEvent(PickupTopic(p.ID), KindPickupCreated, withSnapshot(p, map[string]any{
			"update_type": string(KindPickupCreated),
			"message":     "Pickup request created",
		}), at),
		newEvent(CustomerTopic(p.CustomerID), KindNotification, map[string]any{
			"update_type": string(KindPickupCreated),
			"pickup_id":   string(p.ID),
			"status":      string(p.Status),
			"message":     "Your pickup request has been created",
		}, at),
	}
}

// StatusChanged carries old and new status to the pickup, its customer and
// the assigned worker.
func StatusChanged(p *pickup.Pickup, old pickup.Status, at time.Time) []Event {
	msg := StatusMessage(p.Status)
	events := []Event{
		newEvent(PickupTopic(p.ID), KindStatusUpdate, withSnapshot(p, map[string]any{
			"update_type": string(KindStatusUpdate),
			"old_status":  string(old),
			"new_status":  string(p.Status),
			"message":     msg,
		}), at),
		newEvent(CustomerTopic(p.CustomerID), KindStatusUpdate, map[string]any{
			"update_type": string(KindStatusUpdate),
			"pickup_id":   string(p.ID),
			"old_status":  string(old),
			"new_status":  string(p.Status),
			"message":     msg,
		}, at),
	}
	if p.WorkerID != nil {
		events = append(events, newEvent(WorkerTopic(*p.WorkerID), KindStatusUpdate, map[string]any{
			"update_type": string(KindStatusUpdate),
			"pickup_id":   string(p.ID),
			"old_status":  string(old),
			"new_status":  string(p.Status),
		}, at))
	}
	return events
}

// PickupAssigned announces a successful assignment.
func PickupAssigned(p *pickup.Pickup, w *worker.Worker, distanceKm float64, at time.Time) []Event {
	workerInfo := map[string]any{
		"worker_id":   string(w.ID),
		"name":        w.Name,
		"rating":      w.Rating,
		"distance_km": distanceKm,
	}
	return []Event{
		newEvent(PickupTopic(p.ID), KindPickupAssigned, withSnapshot(p, map[string]any{
			"update_type": string(KindPickupAssigned),
			"old_status":  string(pickup.StatusOpen),
			"new_status":  string(p.Status),
			"worker":      workerInfo,
			"message":     StatusMessage(p.Status),
		}), at),
		newEvent(WorkerTopic(w.ID), KindNewAssignment, withSnapshot(p, map[string]any{
			"update_type": string(KindNewAssignment),
			"distance_km": distanceKm,
			"message":     "You have been assigned a new pickup",
		}), at),
		newEvent(CustomerTopic(p.CustomerID), KindStatusUpdate, map[string]any{
			"update_type": string(KindPickupAssigned),
			"pickup_id":   string(p.ID),
			"old_status":  string(pickup.StatusOpen),
			"new_status":  string(p.Status),
			"worker":      workerInfo,
			"message":     StatusMessage(p.Status),
		}, at),
	}
}

// WorkerLocationChanged notifies the worker topic and, for every active
// pickup of that worker, the pickup and its customer.
func WorkerLocationChanged(w *worker.Worker, active []pickup.Pickup, at time.Time) []Event {
	events := []Event{
		newEvent(WorkerTopic(w.ID), KindWorkerLocation, withWorker(w, map[string]any{
			"update_type": string(KindWorkerLocation),
		}), at),
	}
	for i := range active {
		p := &active[i]
		payload := map[string]any{
			"update_type": string(KindWorkerLocation),
			"pickup_id":   string(p.ID),
			"worker_id":   string(w.ID),
			"status":      string(p.Status),
		}
		if w.Location != nil {
			payload["latitude"] = w.Location.Lat
			payload["longitude"] = w.Location.Lng
			if p.Location != nil {
				payload["distance_km"] = geo.DistanceKm(*w.Location, *p.Location)
			}
		}
		events = append(events,
			newEvent(PickupTopic(p.ID), KindWorkerLocation, payload, at),
			newEvent(CustomerTopic(p.CustomerID), KindWorkerLocation, copyPayload(payload), at),
		)
	}
	return events
}

func WorkerAvailabilityChanged(w *worker.Worker, at time.Time) []Event {
	return []Event{
		newEvent(WorkerTopic(w.ID), KindAvailabilityUpdate, withWorker(w, map[string]any{
			"update_type": string(KindAvailabilityUpdate),
		}), at),
	}
}

// RouteOptimized tells a worker about its new stop order.
func RouteOptimized(workerID types.ID, route routing.Route, updated int, at time.Time) []Event {
	stops := make([]map[string]any, len(route.Stops))
	for i, s := range route.Stops {
		stops[i] = map[string]any{
			"sequence":                  s.Sequence,
			"pickup_id":                 string(s.PickupID),
			"distance_from_previous_km": s.LegKm,
			"arrival_offset_minutes":    s.ArrivalOffset.Minutes(),
		}
	}
	return []Event{
		newEvent(WorkerTopic(workerID), KindRouteOptimized, map[string]any{
			"update_type":       string(KindRouteOptimized),
			"worker_id":         string(workerID),
			"algorithm":         string(route.Algorithm),
			"stops":             stops,
			"total_distance_km": route.TotalDistanceKm,
			"estimated_minutes": route.EstimatedMinutes(),
			"updated_pickups":   updated,
			"message":           "Your route has been optimized",
		}, at),
	}
}

// InitialStatus is sent to a pickup subscriber right after it joins.
func InitialStatus(p *pickup.Pickup, at time.Time) Event {
	return newEvent(PickupTopic(p.ID), KindInitialStatus, withSnapshot(p, map[string]any{
		"update_type": string(KindInitialStatus),
	}), at)
}

// Notifications answers a customer's request for its recent pickups, one
// entry per pickup in the order given.
func Notifications(customerID types.ID, pickups []pickup.Pickup, at time.Time) Event {
	items := make([]map[string]any, 0, len(pickups))
	for i := range pickups {
		p := &pickups[i]
		item := map[string]any{
			"pickup_id":   string(p.ID),
			"update_type": "pickup_update",
			"status":      string(p.Status),
			"message":     StatusMessage(p.Status),
			"timestamp":   lastChange(p),
		}
		if p.WorkerID != nil {
			item["worker_id"] = string(*p.WorkerID)
		}
		items = append(items, item)
	}
	return newEvent(CustomerTopic(customerID), KindNotifications, map[string]any{
		"update_type":   string(KindNotifications),
		"notifications": items,
	}, at)
}

// lastChange is the most recent status timestamp recorded on p.
func lastChange(p *pickup.Pickup) time.Time {
	latest := p.CreatedAt
	for _, t := range []*time.Time{p.AcceptedAt, p.PickedAt, p.DeliveredAt, p.CompletedAt, p.CancelledAt} {
		if t != nil && t.After(latest) {
			latest = *t
		}
	}
	return latest
}

func withSnapshot(p *pickup.Pickup, extra map[string]any) map[string]any {
	out := PickupSnapshot(p)
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func withWorker(w *worker.Worker, extra map[string]any) map[string]any {
	out := WorkerSnapshot(w)
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func copyPayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func putTime(m map[string]any, key string, t *time.Time) {
	if t != nil {
		m[key] = *t
	}
}
