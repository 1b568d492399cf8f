package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/shiva/seatline/internal/model"
)

// ─── Tx: catalog ────────────────────────────────────────────

func (t *pgTx) InsertStation(ctx context.Context, s *model.Station) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO stations (id, name, code, city) VALUES ($1, $2, $3, $4)
	`, s.ID, s.Name, s.Code, s.City)
	return wrap("insert station", err)
}

// InsertRoute writes the route and its stops. A stop naming an unknown
// station fails the foreign key and surfaces as a missing station.
func (t *pgTx) InsertRoute(ctx context.Context, r *model.Route) error {
	b := &pgx.Batch{}
	b.Queue(`
		INSERT INTO routes (id, name, distance_km, estimated_duration_seconds)
		VALUES ($1, $2, $3, $4)
	`, r.ID, r.Name, r.DistanceKM, int64(r.EstimatedDuration.Seconds()))

	for _, stop := range r.Stops {
		var price decimal.NullDecimal
		if stop.PriceToDestination != nil {
			price = decimal.NullDecimal{Decimal: *stop.PriceToDestination, Valid: true}
		}
		var duration *int64
		if stop.DurationToDestination != nil {
			sec := int64(stop.DurationToDestination.Seconds())
			duration = &sec
		}
		b.Queue(`
			INSERT INTO route_stops (route_id, stop_order, station_id, price_to_destination, duration_to_destination_seconds)
			VALUES ($1, $2, $3, $4, $5)
		`, r.ID, stop.Order, stop.StationID, price, duration)
	}
	return execBatch(ctx, t.tx, "insert route", b, false)
}

func (t *pgTx) InsertPolicy(ctx context.Context, p *model.Policy) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO policies (
			id, name, cancellation_window_hours, cancellation_fee, reschedule_allowed,
			reschedule_fee, no_show_penalty, no_cancellation_fee_markup, no_reschedule_fee_markup
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.Name, p.CancellationWindowHours, p.CancellationFee, p.RescheduleAllowed,
		p.RescheduleFee, p.NoShowPenalty, p.NoCancellationMarkup, p.NoRescheduleMarkup)
	return wrap("insert policy", err)
}

func (t *pgTx) InsertVehicle(ctx context.Context, v *model.Vehicle) error {
	amenities := v.Amenities
	if amenities == nil {
		amenities = []string{}
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO vehicles (id, registration_no, model, capacity, amenities)
		VALUES ($1, $2, $3, $4, $5)
	`, v.ID, v.RegistrationNo, v.Model, v.Capacity, amenities)
	return wrap("insert vehicle", err)
}

// InsertService writes the service row and one service_class_prices row per
// class price.
func (t *pgTx) InsertService(ctx context.Context, s *model.Service) error {
	var policyID any
	if s.Policy != nil {
		policyID = s.Policy.ID
	}

	b := &pgx.Batch{}
	b.Queue(`
		INSERT INTO services (
			id, kind, name, number, route_id, vehicle_id, policy_id,
			departure_time, arrival_time, status, base_price,
			dynamic_pricing_enabled, dynamic_factor
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, s.ID, string(s.Kind), s.Name, s.Number, s.RouteID, nullableUUID(s.VehicleID), policyID,
		s.DepartureTime, s.ArrivalTime, string(s.Status), s.BasePrice,
		s.DynamicPricing, s.DynamicFactor)

	for class, price := range s.ClassPrices {
		b.Queue(`
			INSERT INTO service_class_prices (service_id, class, price) VALUES ($1, $2, $3)
		`, s.ID, string(class), price)
	}
	return execBatch(ctx, t.tx, "insert service", b, false)
}

func (t *pgTx) InsertSeats(ctx context.Context, seats []model.Seat) error {
	rows := make([][]any, 0, len(seats))
	for _, s := range seats {
		rows = append(rows, []any{
			s.ID, s.ServiceID, s.Number, string(s.Class), s.Bogie,
			s.Booked, s.Price, s.Mask.String(), nullableUUID(s.PassengerID),
		})
	}
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"seats"},
		[]string{"id", "service_id", "seat_number", "class", "bogie_number", "is_booked", "price", "availability_mask", "passenger_id"},
		pgx.CopyFromRows(rows),
	)
	return wrap("insert seats", err)
}

// InsertSegments writes one segments row per (index, class) pair.
func (t *pgTx) InsertSegments(ctx context.Context, segments []model.Segment) error {
	var rows [][]any
	for _, seg := range segments {
		for class, n := range seg.Available {
			rows = append(rows, []any{seg.ServiceID, seg.Index, string(class), seg.FromStationID, seg.ToStationID, n})
		}
	}
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"segments"},
		[]string{"service_id", "segment_index", "class", "from_station_id", "to_station_id", "available_count"},
		pgx.CopyFromRows(rows),
	)
	return wrap("insert segments", err)
}
