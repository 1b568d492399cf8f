package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownStation is returned when a station is not a stop on the route.
	ErrUnknownStation = errors.New("station is not a stop on this route")

	// ErrBackwardJourney is returned when the origin is not strictly before the destination.
	ErrBackwardJourney = errors.New("origin must come before destination")
)

// Stop is one station on a route. PriceToDestination is the reference-class
// price from this stop to the final destination.
type Stop struct {
	Order                 int              `json:"order"`
	StationID             uuid.UUID        `json:"station_id"`
	PriceToDestination    *decimal.Decimal `json:"price_to_destination,omitempty"`
	DurationToDestination *time.Duration   `json:"duration_to_destination,omitempty"`
}

// Route is an ordered list of stops. Stops[0] is the source and the last stop
// is the destination.
type Route struct {
	ID                uuid.UUID     `json:"id"`
	Name              string        `json:"name"`
	DistanceKM        float64       `json:"distance_km"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	Stops             []Stop        `json:"stops"`
}

// SourceID returns the first stop's station.
func (r *Route) SourceID() uuid.UUID { return r.Stops[0].StationID }

// DestinationID returns the last stop's station.
func (r *Route) DestinationID() uuid.UUID { return r.Stops[len(r.Stops)-1].StationID }

// SegmentCount is the number of legs, N-1 for N stops.
func (r *Route) SegmentCount() int {
	if len(r.Stops) == 0 {
		return 0
	}
	return len(r.Stops) - 1
}

// Validate checks the route ordering invariants: at least two stops, stop
// order strictly increasing, no repeated station, price-to-destination
// non-increasing along the route and zero at the destination.
func (r *Route) Validate() error {
	if len(r.Stops) < 2 {
		return fmt.Errorf("route needs at least 2 stops, got %d", len(r.Stops))
	}

	seen := make(map[uuid.UUID]bool, len(r.Stops))
	var prev *decimal.Decimal
	for i, s := range r.Stops {
		if i > 0 && s.Order <= r.Stops[i-1].Order {
			return fmt.Errorf("stop %d: order %d is not greater than %d", i, s.Order, r.Stops[i-1].Order)
		}
		if seen[s.StationID] {
			return fmt.Errorf("stop %d: station %s appears twice", i, s.StationID)
		}
		seen[s.StationID] = true

		if s.PriceToDestination == nil {
			continue
		}
		if s.PriceToDestination.IsNegative() {
			return fmt.Errorf("stop %d: negative price_to_destination", i)
		}
		if prev != nil && s.PriceToDestination.GreaterThan(*prev) {
			return fmt.Errorf("stop %d: price_to_destination %s exceeds previous %s",
				i, s.PriceToDestination, prev)
		}
		prev = s.PriceToDestination
	}

	last := r.Stops[len(r.Stops)-1]
	if last.PriceToDestination != nil && !last.PriceToDestination.IsZero() {
		return fmt.Errorf("destination price_to_destination must be 0, got %s", last.PriceToDestination)
	}
	return nil
}

// IndexOf returns the position of station on the route, or -1.
func (r *Route) IndexOf(stationID uuid.UUID) int {
	for i, s := range r.Stops {
		if s.StationID == stationID {
			return i
		}
	}
	return -1
}

// Journey resolves a from/to station pair to the segment window [i, j).
func (r *Route) Journey(from, to uuid.UUID) (Journey, error) {
	i := r.IndexOf(from)
	if i < 0 {
		return Journey{}, fmt.Errorf("from %s: %w", from, ErrUnknownStation)
	}
	j := r.IndexOf(to)
	if j < 0 {
		return Journey{}, fmt.Errorf("to %s: %w", to, ErrUnknownStation)
	}
	if i >= j {
		return Journey{}, ErrBackwardJourney
	}
	return Journey{FromStationID: &from, ToStationID: &to, Start: i, End: j}, nil
}
