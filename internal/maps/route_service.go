// README: Google Maps Directions client used as the travel-time source.
package maps

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"googlemaps.github.io/maps"

	"dispatch/internal/types"
)

var ErrNoRoute = errors.New("no route found")

// RouteService estimates driving time between stops with the Google Maps
// Directions API.
type RouteService struct {
	client *maps.Client
	region string
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey, region string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client, region: region}, nil
}

// TravelTime returns the driving duration of the first route leg.
func (s *RouteService) TravelTime(ctx context.Context, from, to types.Point) (time.Duration, error) {
	routes, _, err := s.client.Directions(ctx, directionsRequest(from, to, s.region))
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, ErrNoRoute
	}
	return routes[0].Legs[0].Duration, nil
}

func directionsRequest(from, to types.Point, region string) *maps.DirectionsRequest {
	return &maps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        maps.TravelModeDriving,
		Region:      region,
	}
}

func latLng(p types.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 6, 64)
}
