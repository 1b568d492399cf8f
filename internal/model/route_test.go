package model

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func price(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func threeStops() (*Route, []uuid.UUID) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	return &Route{
		ID: uuid.New(),
		Stops: []Stop{
			{Order: 1, StationID: ids[0], PriceToDestination: price(300)},
			{Order: 2, StationID: ids[1], PriceToDestination: price(100)},
			{Order: 3, StationID: ids[2], PriceToDestination: price(0)},
		},
	}, ids
}

func TestRouteValidate(t *testing.T) {
	r, _ := threeStops()
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
	if r.SegmentCount() != 2 {
		t.Errorf("SegmentCount() = %d, want 2", r.SegmentCount())
	}
}

func TestRouteValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Route)
	}{
		{"single stop", func(r *Route) { r.Stops = r.Stops[:1] }},
		{"order not increasing", func(r *Route) { r.Stops[2].Order = 2 }},
		{"price increases", func(r *Route) { r.Stops[1].PriceToDestination = price(400) }},
		{"destination not zero", func(r *Route) { r.Stops[2].PriceToDestination = price(5) }},
		{"repeated station", func(r *Route) { r.Stops[2].StationID = r.Stops[0].StationID }},
		{"negative price", func(r *Route) { r.Stops[1].PriceToDestination = price(-1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := threeStops()
			tt.mutate(r)
			if err := r.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestRouteJourney(t *testing.T) {
	r, ids := threeStops()

	j, err := r.Journey(ids[0], ids[2])
	if err != nil {
		t.Fatalf("Journey error: %v", err)
	}
	if j.Start != 0 || j.End != 2 {
		t.Errorf("Journey = [%d,%d), want [0,2)", j.Start, j.End)
	}

	if _, err := r.Journey(ids[1], ids[0]); !errors.Is(err, ErrBackwardJourney) {
		t.Errorf("backward journey err = %v, want ErrBackwardJourney", err)
	}
	if _, err := r.Journey(ids[1], ids[1]); !errors.Is(err, ErrBackwardJourney) {
		t.Errorf("same-stop journey err = %v, want ErrBackwardJourney", err)
	}
	if _, err := r.Journey(uuid.New(), ids[1]); !errors.Is(err, ErrUnknownStation) {
		t.Errorf("unknown station err = %v, want ErrUnknownStation", err)
	}
}

func TestSeatClassValidFor(t *testing.T) {
	if !ClassSecondAC.ValidFor(KindTrain) {
		t.Error("SecondAC should be valid for train")
	}
	if ClassSecondAC.ValidFor(KindBus) {
		t.Error("SecondAC should not be valid for bus")
	}
	if ReferenceClass(KindFlight) != ClassEconomy {
		t.Errorf("ReferenceClass(flight) = %s, want Economy", ReferenceClass(KindFlight))
	}
}
