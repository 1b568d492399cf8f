package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shiva/seatline/internal/model"
)

// ErrNotPriceable is returned when a journey has no defined price.
var ErrNotPriceable = errors.New("journey is not priceable")

// ─── Dynamic pricing constants ──────────────────────────────
//
//   occupancy multiplier = 1 + occupancy_rate × dynamic_factor × 0.5
//   time multiplier      = 1 + max(0, (24 − hours_to_departure) / 100)
//
// occupancy_rate is (capacity − min free over the journey) / capacity.

const (
	occupancyWeight    = 0.5
	timeWindowHours    = 24.0
	timeMultiplierStep = 100.0
	priceDecimals      = 2
)

// Occupancy is the capacity picture used by the occupancy multiplier.
type Occupancy struct {
	Capacity     int // seats of the class on the service
	MinAvailable int // min free seats of the class over the journey's segments
}

// PriceBreakdown is the result of pricing one seat for a journey.
type PriceBreakdown struct {
	Base                decimal.Decimal `json:"base"`
	Scaled              decimal.Decimal `json:"scaled"`
	OccupancyMultiplier decimal.Decimal `json:"occupancy_multiplier"`
	TimeMultiplier      decimal.Decimal `json:"time_multiplier"`
	Total               decimal.Decimal `json:"total"`
}

// PricingEngine computes sub-journey prices from per-stop price data.
type PricingEngine struct {
	now func() time.Time
}

// NewPricingEngine creates a pricing engine. A nil clock uses time.Now.
func NewPricingEngine(now func() time.Time) *PricingEngine {
	if now == nil {
		now = time.Now
	}
	return &PricingEngine{now: now}
}

// PriceForJourney prices one seat of class on journey j.
//
// Steps:
//  1. Reject a window that is empty, backwards or off the route.
//  2. Base = price_to_destination(from) − price_to_destination(to), floored at 0.
//  3. Scale by full_route_price[class] / full_route_price[reference class].
//  4. Train with dynamic pricing: apply occupancy and time multipliers.
//  5. Round to 2 decimal places (half-even).
func (e *PricingEngine) PriceForJourney(
	svc *model.Service,
	route *model.Route,
	j model.Journey,
	class model.SeatClass,
	occ Occupancy,
) (*PriceBreakdown, error) {

	// ── Step 1: Window ──────────────────────────────────
	if j.Start < 0 || j.End > route.SegmentCount() || j.Start >= j.End {
		return nil, fmt.Errorf("window [%d,%d): %w", j.Start, j.End, ErrNotPriceable)
	}

	// ── Step 2: Base sub-journey price ──────────────────
	from, err := priceToDestination(svc, route, j.Start)
	if err != nil {
		return nil, err
	}
	to, err := priceToDestination(svc, route, j.End)
	if err != nil {
		return nil, err
	}
	base := from.Sub(to)
	if base.IsNegative() {
		base = decimal.Zero
	}

	// ── Step 3: Class scaling ───────────────────────────
	classPrice, ok := svc.FullRoutePrice(class)
	if !ok {
		return nil, fmt.Errorf("no %s price: %w", class, ErrNotPriceable)
	}
	ref := model.ReferenceClass(svc.Kind)
	refPrice, ok := svc.FullRoutePrice(ref)
	if !ok || !refPrice.IsPositive() {
		return nil, fmt.Errorf("no reference %s price: %w", ref, ErrNotPriceable)
	}
	scaled := base.Mul(classPrice).Div(refPrice)

	// ── Step 4: Dynamic multipliers ─────────────────────
	occMul, timeMul := decimal.NewFromInt(1), decimal.NewFromInt(1)
	if svc.Kind == model.KindTrain && svc.DynamicPricing {
		occMul = decimal.NewFromFloat(1 + occupancyRate(occ)*svc.DynamicFactor*occupancyWeight)
		hours := svc.DepartureTime.Sub(e.now()).Hours()
		timeMul = decimal.NewFromFloat(1 + max(0, (timeWindowHours-hours)/timeMultiplierStep))
	}

	total := scaled.Mul(occMul).Mul(timeMul).RoundBank(priceDecimals)

	return &PriceBreakdown{
		Base:                base.RoundBank(priceDecimals),
		Scaled:              scaled.RoundBank(priceDecimals),
		OccupancyMultiplier: occMul,
		TimeMultiplier:      timeMul,
		Total:               total,
	}, nil
}

// priceToDestination returns the reference-class price from stop i to the
// end of the route. The source stop falls back to the service's full-route
// price and the destination is always 0.
func priceToDestination(svc *model.Service, route *model.Route, i int) (decimal.Decimal, error) {
	if i == len(route.Stops)-1 {
		return decimal.Zero, nil
	}
	if p := route.Stops[i].PriceToDestination; p != nil {
		return *p, nil
	}
	if i == 0 {
		if p, ok := svc.FullRoutePrice(model.ReferenceClass(svc.Kind)); ok {
			return p, nil
		}
	}
	return decimal.Zero, fmt.Errorf("stop %d has no price_to_destination: %w", i, ErrNotPriceable)
}

func occupancyRate(occ Occupancy) float64 {
	if occ.Capacity <= 0 {
		return 0
	}
	rate := float64(occ.Capacity-occ.MinAvailable) / float64(occ.Capacity)
	return min(1, max(0, rate))
}

// markupMultiplier returns 1 plus the policy markups selected by the
// booking's "no free cancellation" and "no free reschedule" flags.
func markupMultiplier(policy *model.Policy, noCancellation, noReschedule bool) decimal.Decimal {
	m := decimal.NewFromInt(1)
	if policy == nil {
		return m
	}
	if noCancellation {
		m = m.Add(policy.NoCancellationMarkup)
	}
	if noReschedule {
		m = m.Add(policy.NoRescheduleMarkup)
	}
	return m
}
