package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/shiva/seatline/internal/model"
	"github.com/shiva/seatline/internal/ports"
	"github.com/shiva/seatline/pkg/segmask"
)

// ─── Services ───────────────────────────────────────────────

const serviceColumns = `
	s.id, s.kind, s.name, s.number, s.route_id, s.vehicle_id, s.policy_id,
	s.departure_time, s.arrival_time, s.status, s.base_price,
	s.dynamic_pricing_enabled, s.dynamic_factor`

// loadService reads one service of the given kind with its policy and class
// prices. With lock the service row is locked FOR UPDATE.
func loadService(ctx context.Context, q querier, kind model.ServiceKind, id uuid.UUID, lock bool) (*model.Service, error) {
	query := `SELECT` + serviceColumns + `
		FROM services s
		WHERE s.id = $1 AND s.kind = $2`
	if lock {
		query += ` FOR UPDATE`
	}

	svc := &model.Service{}
	var vehicleID, policyID uuid.NullUUID
	err := q.QueryRow(ctx, query, id, string(kind)).Scan(
		&svc.ID, &svc.Kind, &svc.Name, &svc.Number, &svc.RouteID, &vehicleID, &policyID,
		&svc.DepartureTime, &svc.ArrivalTime, &svc.Status, &svc.BasePrice,
		&svc.DynamicPricing, &svc.DynamicFactor,
	)
	if err != nil {
		return nil, lookup("service", id, err)
	}
	if vehicleID.Valid {
		svc.VehicleID = &vehicleID.UUID
	}

	if policyID.Valid {
		p, err := loadPolicy(ctx, q, policyID.UUID)
		if err != nil {
			return nil, err
		}
		svc.Policy = p
	}

	rows, err := q.Query(ctx, `
		SELECT class, price FROM service_class_prices WHERE service_id = $1
	`, id)
	if err != nil {
		return nil, wrap(fmt.Sprintf("service %s prices", id), err)
	}
	defer rows.Close()

	svc.ClassPrices = map[model.SeatClass]decimal.Decimal{}
	for rows.Next() {
		var (
			class model.SeatClass
			price decimal.Decimal
		)
		if err := rows.Scan(&class, &price); err != nil {
			return nil, wrap(fmt.Sprintf("service %s prices", id), err)
		}
		svc.ClassPrices[class] = price
	}
	return svc, wrap(fmt.Sprintf("service %s prices", id), rows.Err())
}

func loadPolicy(ctx context.Context, q querier, id uuid.UUID) (*model.Policy, error) {
	p := &model.Policy{}
	err := q.QueryRow(ctx, `
		SELECT id, name, cancellation_window_hours, cancellation_fee, reschedule_allowed,
		       reschedule_fee, no_show_penalty, no_cancellation_fee_markup, no_reschedule_fee_markup
		FROM policies
		WHERE id = $1
	`, id).Scan(
		&p.ID, &p.Name, &p.CancellationWindowHours, &p.CancellationFee, &p.RescheduleAllowed,
		&p.RescheduleFee, &p.NoShowPenalty, &p.NoCancellationMarkup, &p.NoRescheduleMarkup,
	)
	if err != nil {
		return nil, lookup("policy", id, err)
	}
	return p, nil
}

// ─── Routes ─────────────────────────────────────────────────

func loadRoute(ctx context.Context, q querier, id uuid.UUID) (*model.Route, error) {
	r := &model.Route{}
	var durationSec int64
	err := q.QueryRow(ctx, `
		SELECT id, name, distance_km, estimated_duration_seconds
		FROM routes
		WHERE id = $1
	`, id).Scan(&r.ID, &r.Name, &r.DistanceKM, &durationSec)
	if err != nil {
		return nil, lookup("route", id, err)
	}
	r.EstimatedDuration = time.Duration(durationSec) * time.Second

	rows, err := q.Query(ctx, `
		SELECT stop_order, station_id, price_to_destination, duration_to_destination_seconds
		FROM route_stops
		WHERE route_id = $1
		ORDER BY stop_order
	`, id)
	if err != nil {
		return nil, wrap(fmt.Sprintf("route %s stops", id), err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			stop     model.Stop
			price    decimal.NullDecimal
			duration *int64
		)
		if err := rows.Scan(&stop.Order, &stop.StationID, &price, &duration); err != nil {
			return nil, wrap(fmt.Sprintf("route %s stops", id), err)
		}
		if price.Valid {
			stop.PriceToDestination = &price.Decimal
		}
		if duration != nil {
			d := time.Duration(*duration) * time.Second
			stop.DurationToDestination = &d
		}
		r.Stops = append(r.Stops, stop)
	}
	return r, wrap(fmt.Sprintf("route %s stops", id), rows.Err())
}

// ─── Seats ──────────────────────────────────────────────────

const seatColumns = `id, service_id, seat_number, class, bogie_number, is_booked, price, availability_mask, passenger_id`

func scanSeats(rows pgx.Rows) ([]model.Seat, error) {
	defer rows.Close()

	var seats []model.Seat
	for rows.Next() {
		var (
			s         model.Seat
			mask      string
			passenger uuid.NullUUID
		)
		if err := rows.Scan(&s.ID, &s.ServiceID, &s.Number, &s.Class, &s.Bogie, &s.Booked, &s.Price, &mask, &passenger); err != nil {
			return nil, err
		}
		m, err := segmask.Parse(mask)
		if err != nil {
			return nil, fmt.Errorf("seat %s: %w", s.Number, err)
		}
		s.Mask = m
		if passenger.Valid {
			s.PassengerID = &passenger.UUID
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

func nullableUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

// ─── Segments ───────────────────────────────────────────────

// scanSegments folds (segment_index, class) rows into one Segment per index.
// Rows must be ordered by segment_index.
func scanSegments(rows pgx.Rows, serviceID uuid.UUID) ([]model.Segment, error) {
	defer rows.Close()

	var out []model.Segment
	for rows.Next() {
		var (
			index    int
			class    model.SeatClass
			from, to uuid.UUID
			count    int
		)
		if err := rows.Scan(&index, &class, &from, &to, &count); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].Index != index {
			out = append(out, model.Segment{
				ServiceID:     serviceID,
				Index:         index,
				FromStationID: from,
				ToStationID:   to,
				Available:     map[model.SeatClass]int{},
			})
		}
		out[len(out)-1].Available[class] = count
	}
	return out, rows.Err()
}

// ─── Tx: inventory ──────────────────────────────────────────

func (t *pgTx) LockService(ctx context.Context, kind model.ServiceKind, id uuid.UUID) (*model.Service, error) {
	return loadService(ctx, t.tx, kind, id, true)
}

func (t *pgTx) GetRoute(ctx context.Context, id uuid.UUID) (*model.Route, error) {
	return loadRoute(ctx, t.tx, id)
}

func (t *pgTx) LockSeatsByNumber(ctx context.Context, serviceID uuid.UUID, numbers []string) ([]model.Seat, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+seatColumns+`
		FROM seats
		WHERE service_id = $1 AND seat_number = ANY($2)
		ORDER BY id
		FOR UPDATE
	`, serviceID, numbers)
	if err != nil {
		return nil, wrap("lock seats by number", err)
	}
	seats, err := scanSeats(rows)
	return seats, wrap("lock seats by number", err)
}

func (t *pgTx) LockSeatsByClass(ctx context.Context, serviceID uuid.UUID, class model.SeatClass) ([]model.Seat, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+seatColumns+`
		FROM seats
		WHERE service_id = $1 AND class = $2
		ORDER BY id
		FOR UPDATE
	`, serviceID, string(class))
	if err != nil {
		return nil, wrap("lock seats by class", err)
	}
	seats, err := scanSeats(rows)
	return seats, wrap("lock seats by class", err)
}

func (t *pgTx) LockSegments(ctx context.Context, serviceID uuid.UUID, start, end int) ([]model.Segment, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT segment_index, class, from_station_id, to_station_id, available_count
		FROM segments
		WHERE service_id = $1 AND segment_index >= $2 AND segment_index < $3
		ORDER BY segment_index, class
		FOR UPDATE
	`, serviceID, start, end)
	if err != nil {
		return nil, wrap("lock segments", err)
	}
	segs, err := scanSegments(rows, serviceID)
	return segs, wrap("lock segments", err)
}

func (t *pgTx) CountSeats(ctx context.Context, serviceID uuid.UUID, class model.SeatClass) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*)::int FROM seats WHERE service_id = $1 AND class = $2
	`, serviceID, string(class)).Scan(&n)
	return n, wrap("count seats", err)
}

func (t *pgTx) UpdateSeats(ctx context.Context, seats []model.Seat) error {
	b := &pgx.Batch{}
	for _, s := range seats {
		b.Queue(`
			UPDATE seats
			SET is_booked = $2, availability_mask = $3, passenger_id = $4
			WHERE id = $1
		`, s.ID, s.Booked, s.Mask.String(), nullableUUID(s.PassengerID))
	}
	return execBatch(ctx, t.tx, "update seat", b, true)
}

// AdjustSegments adds delta to the class counter of every segment in
// [start, end). The CHECK (available_count >= 0) constraint rejects an
// update that would go negative.
func (t *pgTx) AdjustSegments(ctx context.Context, serviceID uuid.UUID, class model.SeatClass, start, end, delta int) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE segments
		SET available_count = available_count + $5
		WHERE service_id = $1 AND class = $2 AND segment_index >= $3 AND segment_index < $4
	`, serviceID, string(class), start, end, delta)
	if err != nil {
		return wrap("adjust segments", err)
	}
	if got := int(tag.RowsAffected()); got != end-start {
		return fmt.Errorf("adjust segments: %d of %d %s segment rows: %w", got, end-start, class, ports.ErrRowCount)
	}
	return nil
}

func (t *pgTx) ReplaceSegmentCounts(ctx context.Context, serviceID uuid.UUID, index int, counts map[model.SeatClass]int) error {
	b := &pgx.Batch{}
	for class, n := range counts {
		b.Queue(`
			UPDATE segments
			SET available_count = $4
			WHERE service_id = $1 AND segment_index = $2 AND class = $3
		`, serviceID, index, string(class), n)
	}
	return execBatch(ctx, t.tx, "replace segment count", b, true)
}

// ─── Reader: inventory ──────────────────────────────────────

func (s *Store) GetService(ctx context.Context, kind model.ServiceKind, id uuid.UUID) (*model.Service, error) {
	return loadService(ctx, s.db, kind, id, false)
}

func (s *Store) GetRoute(ctx context.Context, id uuid.UUID) (*model.Route, error) {
	return loadRoute(ctx, s.db, id)
}

func (s *Store) ListSegments(ctx context.Context, serviceID uuid.UUID) ([]model.Segment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT segment_index, class, from_station_id, to_station_id, available_count
		FROM segments
		WHERE service_id = $1
		ORDER BY segment_index, class
	`, serviceID)
	if err != nil {
		return nil, wrap("list segments", err)
	}
	segs, err := scanSegments(rows, serviceID)
	return segs, wrap("list segments", err)
}

// SeatCounts counts seats per class. A seat is free when it is not booked
// and no bit of its mask is set.
func (s *Store) SeatCounts(ctx context.Context, serviceID uuid.UUID) (map[model.SeatClass]ports.SeatCount, error) {
	rows, err := s.db.Query(ctx, `
		SELECT class,
		       COUNT(*)::int AS total,
		       COUNT(*) FILTER (WHERE NOT is_booked AND strpos(availability_mask, '1') = 0)::int AS free
		FROM seats
		WHERE service_id = $1
		GROUP BY class
	`, serviceID)
	if err != nil {
		return nil, wrap("seat counts", err)
	}
	defer rows.Close()

	out := map[model.SeatClass]ports.SeatCount{}
	for rows.Next() {
		var (
			class model.SeatClass
			c     ports.SeatCount
		)
		if err := rows.Scan(&class, &c.Total, &c.Free); err != nil {
			return nil, wrap("seat counts", err)
		}
		out[class] = c
	}
	return out, wrap("seat counts", rows.Err())
}

func (s *Store) ListServiceIDs(ctx context.Context, kind model.ServiceKind) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM services WHERE kind = $1 ORDER BY id`, string(kind))
	if err != nil {
		return nil, wrap("list services", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, wrap("list services", err)
		}
		ids = append(ids, id)
	}
	return ids, wrap("list services", rows.Err())
}
