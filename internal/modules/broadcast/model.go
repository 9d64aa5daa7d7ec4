// README: Broadcast topics and events delivered to pickup, worker and customer subscribers.
package broadcast

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"dispatch/internal/types"
)

type Family string

const (
	FamilyPickup   Family = "pickup"
	FamilyWorker   Family = "worker"
	FamilyCustomer Family = "customer"
)

var ErrInvalidTopic = errors.New("invalid topic")

func ParseFamily(s string) (Family, error) {
	switch Family(s) {
	case FamilyPickup, FamilyWorker, FamilyCustomer:
		return Family(s), nil
	}
	return "", fmt.Errorf("%w: unknown family %q", ErrInvalidTopic, s)
}

// Topic scopes an event to one pickup, worker or customer.
type Topic struct {
	Family Family
	ID     types.ID
}

func PickupTopic(id types.ID) Topic   { return Topic{Family: FamilyPickup, ID: id} }
func WorkerTopic(id types.ID) Topic   { return Topic{Family: FamilyWorker, ID: id} }
func CustomerTopic(id types.ID) Topic { return Topic{Family: FamilyCustomer, ID: id} }

func (t Topic) String() string {
	return string(t.Family) + ":" + string(t.ID)
}

func ParseTopic(s string) (Topic, error) {
	fam, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return Topic{}, fmt.Errorf("%w: %q", ErrInvalidTopic, s)
	}
	f, err := ParseFamily(fam)
	if err != nil {
		return Topic{}, err
	}
	return Topic{Family: f, ID: types.ID(id)}, nil
}

func (t Topic) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Topic) UnmarshalText(b []byte) error {
	parsed, err := ParseTopic(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

type Kind string

const (
	KindPickupCreated      Kind = "pickup_created"
	KindStatusUpdate       Kind = "status_update"
	KindPickupAssigned     Kind = "pickup_assigned"
	KindNewAssignment      Kind = "new_assignment"
	KindWorkerLocation     Kind = "worker_location_update"
	KindAvailabilityUpdate Kind = "availability_update"
	KindRouteOptimized     Kind = "route_optimized"
	KindNotification       Kind = "notification"
	KindInitialStatus      Kind = "initial_status"
	KindNotifications      Kind = "notifications"
)

// Event carries enough state for a subscriber to render without replay.
type Event struct {
	ID        types.ID       `json:"id"`
	Topic     Topic          `json:"topic"`
	Kind      Kind           `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

func newEvent(topic Topic, kind Kind, payload map[string]any, at time.Time) Event {
	return Event{ID: types.NewID(), Topic: topic, Kind: kind, Payload: payload, Timestamp: at}
}
