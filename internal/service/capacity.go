package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shiva/seatline/internal/apperr"
	"github.com/shiva/seatline/internal/model"
	"github.com/shiva/seatline/internal/ports"
	"github.com/shiva/seatline/pkg/segmask"
)

// ─── Capacity variants ──────────────────────────────────────
//
// Each service kind implements capacity against its own data shape:
//
//   bus, flight  flatCapacity     one booked flag per seat
//   train        segmentCapacity  one bit per segment per seat, plus
//                                 per-segment free counters per class
//
// The booking and cancel engines only talk to this interface.

// allocation is the set of locked seats chosen for a booking.
type allocation struct {
	explicit     map[string]model.Seat // requested seat number -> seat
	auto         []model.Seat          // auto-assigned, in pick order
	minAvailable int                   // train: min free over the window, before this booking
}

type capacity interface {
	// resolve turns the requested stops into a journey window.
	resolve(route *model.Route, from, to *uuid.UUID) (model.Journey, error)

	// allocate locks the requested seats and autoCount more seats of class,
	// verifying each is free for the whole window.
	allocate(ctx context.Context, tx ports.Tx, svc *model.Service, route *model.Route,
		j model.Journey, class model.SeatClass, requested []string, autoCount int) (*allocation, error)

	// price returns the total price of the allocation.
	price(ctx context.Context, tx ports.Tx, svc *model.Service, route *model.Route,
		j model.Journey, class model.SeatClass, alloc *allocation, b *model.Booking) (decimal.Decimal, error)

	// occupy marks seats taken on the window and, for trains, decrements
	// the segment counters in the same transaction.
	occupy(ctx context.Context, tx ports.Tx, svc *model.Service, j model.Journey,
		class model.SeatClass, seats []model.Seat) error

	// vacate is the exact inverse of occupy.
	vacate(ctx context.Context, tx ports.Tx, svc *model.Service, j model.Journey,
		class model.SeatClass, seats []model.Seat) error
}

func capacityFor(kind model.ServiceKind, pricing *PricingEngine) (capacity, error) {
	switch kind {
	case model.KindBus:
		return flatCapacity{applyMarkup: true}, nil
	case model.KindFlight:
		return flatCapacity{}, nil
	case model.KindTrain:
		return segmentCapacity{pricing: pricing}, nil
	}
	return nil, apperr.ValidationError{Field: "service_kind", Msg: fmt.Sprintf("unknown kind %q", kind)}
}

// lockRequested locks the requested seats and reports unknown numbers.
func lockRequested(ctx context.Context, tx ports.Tx, serviceID uuid.UUID, requested []string) (map[string]model.Seat, error) {
	out := make(map[string]model.Seat, len(requested))
	if len(requested) == 0 {
		return out, nil
	}
	seats, err := tx.LockSeatsByNumber(ctx, serviceID, requested)
	if err != nil {
		return nil, fmt.Errorf("lock requested seats: %w", err)
	}
	for _, s := range seats {
		out[s.Number] = s
	}
	for _, n := range requested {
		if _, ok := out[n]; !ok {
			return nil, apperr.NotFoundError{Resource: "seat", ID: n}
		}
	}
	return out, nil
}

// ─── Flat (bus, flight) ─────────────────────────────────────

type flatCapacity struct {
	applyMarkup bool
}

func (c flatCapacity) resolve(route *model.Route, from, to *uuid.UUID) (model.Journey, error) {
	j := model.Journey{Start: 0, End: 1}
	if from == nil || to == nil {
		return j, nil
	}
	if _, err := route.Journey(*from, *to); err != nil {
		return model.Journey{}, journeyError(err)
	}
	j.FromStationID, j.ToStationID = from, to
	return j, nil
}

func (c flatCapacity) allocate(ctx context.Context, tx ports.Tx, svc *model.Service, _ *model.Route,
	_ model.Journey, class model.SeatClass, requested []string, autoCount int) (*allocation, error) {

	explicit, err := lockRequested(ctx, tx, svc.ID, requested)
	if err != nil {
		return nil, err
	}
	for _, n := range requested {
		if explicit[n].Booked {
			return nil, apperr.ConflictError{Resource: "seat", Msg: fmt.Sprintf("seat %s is already booked", n)}
		}
	}

	alloc := &allocation{explicit: explicit}
	if autoCount == 0 {
		return alloc, nil
	}

	candidates, err := tx.LockSeatsByClass(ctx, svc.ID, class)
	if err != nil {
		return nil, fmt.Errorf("lock %s seats: %w", class, err)
	}
	for _, s := range candidates {
		if len(alloc.auto) == autoCount {
			break
		}
		if _, claimed := explicit[s.Number]; claimed || s.Booked {
			continue
		}
		alloc.auto = append(alloc.auto, s)
	}
	if len(alloc.auto) < autoCount {
		return nil, apperr.ConflictError{Resource: "seat",
			Msg: fmt.Sprintf("only %d %s seats left, need %d", len(alloc.auto), class, autoCount)}
	}
	return alloc, nil
}

func (c flatCapacity) price(_ context.Context, _ ports.Tx, svc *model.Service, _ *model.Route,
	_ model.Journey, _ model.SeatClass, alloc *allocation, b *model.Booking) (decimal.Decimal, error) {

	total := decimal.Zero
	add := func(s model.Seat) error {
		p := s.Price
		if p.IsZero() {
			fallback, ok := svc.FullRoutePrice(s.Class)
			if !ok {
				return fmt.Errorf("seat %s: %w", s.Number, ErrNotPriceable)
			}
			p = fallback
		}
		total = total.Add(p)
		return nil
	}
	for _, s := range alloc.explicit {
		if err := add(s); err != nil {
			return decimal.Zero, err
		}
	}
	for _, s := range alloc.auto {
		if err := add(s); err != nil {
			return decimal.Zero, err
		}
	}

	if c.applyMarkup {
		total = total.Mul(markupMultiplier(svc.Policy, b.NoCancellationMarkup, b.NoRescheduleMarkup))
	}
	return total.RoundBank(priceDecimals), nil
}

func (c flatCapacity) occupy(ctx context.Context, tx ports.Tx, _ *model.Service, _ model.Journey,
	_ model.SeatClass, seats []model.Seat) error {

	for i := range seats {
		seats[i].Booked = true
	}
	return tx.UpdateSeats(ctx, seats)
}

func (c flatCapacity) vacate(ctx context.Context, tx ports.Tx, _ *model.Service, _ model.Journey,
	_ model.SeatClass, seats []model.Seat) error {

	for i := range seats {
		seats[i].Booked = false
	}
	return tx.UpdateSeats(ctx, seats)
}

// ─── Segment-aware (train) ──────────────────────────────────

type segmentCapacity struct {
	pricing *PricingEngine
}

func (c segmentCapacity) resolve(route *model.Route, from, to *uuid.UUID) (model.Journey, error) {
	if from == nil || to == nil {
		return model.Journey{}, apperr.ValidationError{Field: "from_station_id", Msg: "origin and destination are required for train bookings"}
	}
	j, err := route.Journey(*from, *to)
	if err != nil {
		return model.Journey{}, journeyError(err)
	}
	return j, nil
}

func (c segmentCapacity) allocate(ctx context.Context, tx ports.Tx, svc *model.Service, route *model.Route,
	j model.Journey, class model.SeatClass, requested []string, autoCount int) (*allocation, error) {

	n := route.SegmentCount()

	explicit, err := lockRequested(ctx, tx, svc.ID, requested)
	if err != nil {
		return nil, err
	}
	for _, num := range requested {
		s := explicit[num]
		if s.Class != class {
			return nil, apperr.ValidationError{Field: "seat_number",
				Msg: fmt.Sprintf("seat %s is %s, booking class is %s", num, s.Class, class)}
		}
		if err := checkMaskLen(s, n); err != nil {
			return nil, err
		}
		if !s.Mask.RangeFree(j.Start, j.End) {
			return nil, apperr.ConflictError{Resource: "seat",
				Msg: fmt.Sprintf("seat %s is taken on part of this journey", num)}
		}
	}

	var candidates []model.Seat
	if autoCount > 0 {
		candidates, err = tx.LockSeatsByClass(ctx, svc.ID, class)
		if err != nil {
			return nil, fmt.Errorf("lock %s seats: %w", class, err)
		}
	}

	// Re-verify the aggregate under lock before touching any seat.
	segments, err := tx.LockSegments(ctx, svc.ID, j.Start, j.End)
	if err != nil {
		return nil, fmt.Errorf("lock segments: %w", err)
	}
	if len(segments) != j.End-j.Start {
		return nil, apperr.InternalError{Msg: fmt.Sprintf("service %s has %d segment rows for window [%d,%d)",
			svc.ID, len(segments), j.Start, j.End)}
	}
	minAvail := minAvailable(segments, class)
	need := len(requested) + autoCount
	if minAvail < need {
		return nil, apperr.ConflictError{Resource: "segment",
			Msg: fmt.Sprintf("only %d %s seats free on this journey, need %d", minAvail, class, need)}
	}

	alloc := &allocation{explicit: explicit, minAvailable: minAvail}
	for _, s := range candidates {
		if len(alloc.auto) == autoCount {
			break
		}
		if _, claimed := explicit[s.Number]; claimed {
			continue
		}
		if err := checkMaskLen(s, n); err != nil {
			return nil, err
		}
		if s.Mask.RangeFree(j.Start, j.End) {
			alloc.auto = append(alloc.auto, s)
		}
	}
	if len(alloc.auto) < autoCount {
		return nil, apperr.ConflictError{Resource: "seat",
			Msg: fmt.Sprintf("only %d %s seats free on this journey, need %d", len(alloc.auto), class, autoCount)}
	}
	return alloc, nil
}

func (c segmentCapacity) price(ctx context.Context, tx ports.Tx, svc *model.Service, route *model.Route,
	j model.Journey, class model.SeatClass, alloc *allocation, _ *model.Booking) (decimal.Decimal, error) {

	classSeats, err := tx.CountSeats(ctx, svc.ID, class)
	if err != nil {
		return decimal.Zero, fmt.Errorf("count %s seats: %w", class, err)
	}
	quote, err := c.pricing.PriceForJourney(svc, route, j, class, Occupancy{
		Capacity:     classSeats,
		MinAvailable: alloc.minAvailable,
	})
	if err != nil {
		return decimal.Zero, err
	}
	count := int64(len(alloc.explicit) + len(alloc.auto))
	return quote.Total.Mul(decimal.NewFromInt(count)), nil
}

func (c segmentCapacity) occupy(ctx context.Context, tx ports.Tx, svc *model.Service, j model.Journey,
	class model.SeatClass, seats []model.Seat) error {

	for i := range seats {
		span := segmask.Span(seats[i].Mask.Len(), j.Start, j.End)
		if seats[i].Mask.Intersects(span) {
			return apperr.InternalError{Msg: fmt.Sprintf("seat %s already occupied on [%d,%d)", seats[i].Number, j.Start, j.End)}
		}
		seats[i].Mask = seats[i].Mask.Or(span)
	}
	if err := tx.UpdateSeats(ctx, seats); err != nil {
		return fmt.Errorf("update seat masks: %w", err)
	}
	if err := tx.AdjustSegments(ctx, svc.ID, class, j.Start, j.End, -len(seats)); err != nil {
		return fmt.Errorf("decrement segments: %w", err)
	}
	return nil
}

func (c segmentCapacity) vacate(ctx context.Context, tx ports.Tx, svc *model.Service, j model.Journey,
	class model.SeatClass, seats []model.Seat) error {

	for i := range seats {
		if seats[i].Class != class {
			return apperr.InternalError{Msg: fmt.Sprintf("seat %s is %s, booking class is %s", seats[i].Number, seats[i].Class, class)}
		}
		span := segmask.Span(seats[i].Mask.Len(), j.Start, j.End)
		// Every bit being released must be set, or the counters would drift.
		if seats[i].Mask.And(span).Count() != j.End-j.Start {
			return apperr.InternalError{Msg: fmt.Sprintf("seat %s is not fully occupied on [%d,%d)", seats[i].Number, j.Start, j.End)}
		}
		seats[i].Mask = seats[i].Mask.AndNot(span)
	}
	if err := tx.UpdateSeats(ctx, seats); err != nil {
		return fmt.Errorf("update seat masks: %w", err)
	}
	if err := tx.AdjustSegments(ctx, svc.ID, class, j.Start, j.End, len(seats)); err != nil {
		return fmt.Errorf("increment segments: %w", err)
	}
	return nil
}

func checkMaskLen(s model.Seat, segments int) error {
	if s.Mask.Len() != segments {
		return apperr.InternalError{Msg: fmt.Sprintf("seat %s mask has %d bits, route has %d segments",
			s.Number, s.Mask.Len(), segments)}
	}
	return nil
}

func minAvailable(segments []model.Segment, class model.SeatClass) int {
	if len(segments) == 0 {
		return 0
	}
	m := segments[0].Available[class]
	for _, seg := range segments[1:] {
		m = min(m, seg.Available[class])
	}
	return m
}

func journeyError(err error) error {
	switch {
	case errors.Is(err, model.ErrUnknownStation):
		return apperr.NotFoundError{Resource: "station", Err: err}
	case errors.Is(err, model.ErrBackwardJourney):
		return apperr.ValidationError{Field: "to_station_id", Msg: err.Error(), Err: err}
	}
	return err
}
