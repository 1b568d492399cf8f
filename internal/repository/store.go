// Package repository is the PostgreSQL and Redis side of the booking engine.
//
// Store implements ports.Store on pgx. Every booking, cancellation and
// payment runs in one READ COMMITTED transaction and relies on pessimistic
// row locks (SELECT ... FOR UPDATE) taken in a fixed order:
//
//	service row → seat rows (ORDER BY id) → segment rows
//
// Two transactions after the same seat therefore queue on the service row:
//
//	T1: BEGIN → lock service → seat free → UPDATE seat → COMMIT
//	T2: BEGIN → lock service (BLOCKS) ... re-reads seat → booked → ROLLBACK
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shiva/seatline/internal/ports"
)

// Postgres SQLSTATE codes the store translates.
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgLockNotAvailable    = "55P03"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// DB is a connection pool that can begin transactions. *pgxpool.Pool
// satisfies it, and so does pgxmock in tests.
type DB interface {
	querier
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Store is the PostgreSQL ports.Store.
type Store struct {
	db DB
}

var _ ports.Store = (*Store)(nil)

// NewStore creates a store backed by the given pool.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// InTx runs fn in a READ COMMITTED transaction. Row locks taken inside fn
// are held until commit. The rollback is deferred and is a no-op once the
// transaction has committed.
func (s *Store) InTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// pgTx implements ports.Tx on one pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

// Savepoint runs fn inside a pgx pseudo-nested transaction, which is a
// SAVEPOINT on the outer transaction.
func (t *pgTx) Savepoint(ctx context.Context, fn func(tx ports.Tx) error) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(&pgTx{tx: sp}); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		return err
	}
	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// constraintResource names the resource behind each foreign key and unique
// constraint, so a violation reports what was missing or taken.
var constraintResource = map[string]string{
	"stations_code_key":                    "station",
	"vehicles_registration_no_key":         "vehicle",
	"route_stops_route_id_fkey":            "route",
	"route_stops_station_id_fkey":          "station",
	"route_stops_route_id_station_id_key":  "station",
	"services_route_id_fkey":               "route",
	"services_vehicle_id_fkey":             "vehicle",
	"services_policy_id_fkey":              "policy",
	"service_class_prices_service_id_fkey": "service",
	"bookings_service_id_fkey":             "service",
	"bookings_from_station_id_fkey":        "station",
	"bookings_to_station_id_fkey":          "station",
	"passengers_booking_id_fkey":           "booking",
	"seats_service_id_fkey":                "service",
	"seats_passenger_id_fkey":              "passenger",
	"seats_service_id_seat_number_key":     "seat",
	"segments_service_id_fkey":             "service",
	"segments_from_station_id_fkey":        "station",
	"segments_to_station_id_fkey":          "station",
	"booking_status_logs_booking_id_fkey":  "booking",
	"payment_transactions_booking_id_fkey": "booking",
	"refunds_booking_id_fkey":              "booking",
	"refunds_transaction_id_fkey":          "transaction",
	"tickets_booking_id_fkey":              "booking",
	"tickets_booking_id_key":               "ticket",
	"tickets_ticket_no_key":                "ticket",
}

// wrap adds context to a pgx error. Broken foreign keys become
// ports.ErrNotFound and unique violations ports.ErrDuplicate, both carried
// in a *ports.RowError naming the resource.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ports.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return fmt.Errorf("%s (%s): %w", op, pgErr.ConstraintName, &ports.RowError{
				Resource: constraintResource[pgErr.ConstraintName], Err: ports.ErrNotFound,
			})
		case pgUniqueViolation:
			return fmt.Errorf("%s (%s): %w", op, pgErr.ConstraintName, &ports.RowError{
				Resource: constraintResource[pgErr.ConstraintName], Err: ports.ErrDuplicate,
			})
		case pgLockNotAvailable:
			return fmt.Errorf("%s: %w: %s", op, ports.ErrLockTimeout, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// lookup is wrap for a single-row read of resource key.
func lookup(resource string, key any, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ports.Missing(resource, key)
	}
	return wrap(fmt.Sprintf("%s %v", resource, key), err)
}

// execBatch sends b and checks every statement. With exactlyOne each
// statement must touch exactly one row.
func execBatch(ctx context.Context, q querier, op string, b *pgx.Batch, exactlyOne bool) error {
	if b.Len() == 0 {
		return nil
	}
	br := q.SendBatch(ctx, b)
	defer br.Close()

	for i := 0; i < b.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			return wrap(fmt.Sprintf("%s #%d", op, i), err)
		}
		if exactlyOne && tag.RowsAffected() != 1 {
			return fmt.Errorf("%s #%d: %d rows: %w", op, i, tag.RowsAffected(), ports.ErrRowCount)
		}
	}
	return br.Close()
}
