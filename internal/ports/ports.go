// Package ports declares the storage and infrastructure contracts the
// booking engine depends on. internal/repository provides the PostgreSQL
// and Redis implementations; internal/repository/memstore provides an
// in-memory store with the same locking semantics.
package ports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shiva/seatline/internal/model"
)

// ErrNotFound is wrapped by implementations when a row does not exist or a
// referenced row is missing.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is wrapped when an insert collides with a unique key such as
// a station code or a seat number.
var ErrDuplicate = errors.New("already exists")

// ErrRowCount is wrapped when a write that must touch a known set of rows
// touched a different number. Seats and segments that exist for a service
// are expected to stay in step, so this is an inconsistency, not a miss.
var ErrRowCount = errors.New("unexpected row count")

// ErrLockTimeout is returned when the database gave up waiting for a row
// lock.
var ErrLockTimeout = errors.New("lock wait timed out")

// RowError ties a store error to the resource it is about.
type RowError struct {
	Resource string // "service", "seat", "booking", ...
	Key      string // id, code or other identifying value; may be empty
	Err      error  // ErrNotFound, ErrDuplicate or ErrRowCount
}

func (e *RowError) Error() string {
	switch {
	case e.Resource == "":
		return e.Err.Error()
	case e.Key == "":
		return fmt.Sprintf("%s: %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Resource, e.Key, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Missing reports that resource key does not exist.
func Missing(resource string, key any) error {
	return &RowError{Resource: resource, Key: fmt.Sprint(key), Err: ErrNotFound}
}

// Duplicate reports that resource key is already taken.
func Duplicate(resource string, key any) error {
	return &RowError{Resource: resource, Key: fmt.Sprint(key), Err: ErrDuplicate}
}

// Resource returns the resource named by the first RowError in err's chain,
// or "" when there is none.
func Resource(err error) string {
	var re *RowError
	if errors.As(err, &re) {
		return re.Resource
	}
	return ""
}

// Store runs transactions and lock-free reads.
type Store interface {
	Reader

	// InTx runs fn inside a single read-committed transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside a transaction. Lock*
// methods take exclusive row locks held until the transaction ends.
//
// Lock order: service row, then seat rows (always returned sorted by seat
// id), then segment rows. Booking rows are locked before their service.
type Tx interface {
	// Savepoint runs fn in a nested transaction. If fn fails only its own
	// writes are rolled back and the outer transaction stays usable.
	Savepoint(ctx context.Context, fn func(tx Tx) error) error

	// ── Inventory ──
	LockService(ctx context.Context, kind model.ServiceKind, id uuid.UUID) (*model.Service, error)
	GetRoute(ctx context.Context, id uuid.UUID) (*model.Route, error)
	LockSeatsByNumber(ctx context.Context, serviceID uuid.UUID, numbers []string) ([]model.Seat, error)
	LockSeatsByClass(ctx context.Context, serviceID uuid.UUID, class model.SeatClass) ([]model.Seat, error)
	LockSegments(ctx context.Context, serviceID uuid.UUID, start, end int) ([]model.Segment, error)
	CountSeats(ctx context.Context, serviceID uuid.UUID, class model.SeatClass) (int, error)
	// UpdateSeats and AdjustSegments wrap ErrRowCount when a seat or a
	// segment row of the window is missing.
	UpdateSeats(ctx context.Context, seats []model.Seat) error
	AdjustSegments(ctx context.Context, serviceID uuid.UUID, class model.SeatClass, start, end, delta int) error
	ReplaceSegmentCounts(ctx context.Context, serviceID uuid.UUID, index int, counts map[model.SeatClass]int) error

	// ── Bookings ──
	InsertBooking(ctx context.Context, b *model.Booking) error
	LockBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	UpdateBooking(ctx context.Context, b *model.Booking) error
	InsertPassengers(ctx context.Context, passengers []model.Passenger) error
	ListPassengers(ctx context.Context, bookingID uuid.UUID) ([]model.Passenger, error)
	AppendStatusLog(ctx context.Context, entry model.StatusLog) error
	// FindSuccessfulTransaction returns the latest successful payment for
	// the booking, or (nil, nil) when there is none.
	FindSuccessfulTransaction(ctx context.Context, bookingID uuid.UUID) (*model.PaymentTransaction, error)
	InsertTransaction(ctx context.Context, t *model.PaymentTransaction) error
	InsertRefund(ctx context.Context, r *model.Refund) error
	InsertTicket(ctx context.Context, t *model.Ticket) error

	// ── Catalog ──
	InsertStation(ctx context.Context, s *model.Station) error
	InsertRoute(ctx context.Context, r *model.Route) error
	InsertPolicy(ctx context.Context, p *model.Policy) error
	InsertVehicle(ctx context.Context, v *model.Vehicle) error
	InsertService(ctx context.Context, s *model.Service) error
	InsertSeats(ctx context.Context, seats []model.Seat) error
	InsertSegments(ctx context.Context, segments []model.Segment) error
}

// SeatCount is the total and currently free seats of one class. For train
// seats "free" means free on every segment.
type SeatCount struct {
	Total int `json:"total"`
	Free  int `json:"free"`
}

// Reader performs lock-free reads. Results are advisory and may be stale.
type Reader interface {
	GetService(ctx context.Context, kind model.ServiceKind, id uuid.UUID) (*model.Service, error)
	GetRoute(ctx context.Context, id uuid.UUID) (*model.Route, error)
	ListSegments(ctx context.Context, serviceID uuid.UUID) ([]model.Segment, error)
	SeatCounts(ctx context.Context, serviceID uuid.UUID) (map[model.SeatClass]SeatCount, error)
	ListServiceIDs(ctx context.Context, kind model.ServiceKind) ([]uuid.UUID, error)

	GetBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	ListPassengers(ctx context.Context, bookingID uuid.UUID) ([]model.Passenger, error)
	ListStatusLogs(ctx context.Context, bookingID uuid.UUID) ([]model.StatusLog, error)
	GetTicket(ctx context.Context, bookingID uuid.UUID) (*model.Ticket, error)
}

// AvailabilityCache holds advisory availability snapshots per service.
type AvailabilityCache interface {
	Get(ctx context.Context, serviceID uuid.UUID, field string, dst any) (bool, error)
	Set(ctx context.Context, serviceID uuid.UUID, field string, v any) error
	Invalidate(ctx context.Context, serviceID uuid.UUID) error
}

// RateLimiter admits or rejects an action for a key within a window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}
