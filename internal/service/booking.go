// Package service implements the booking engine: pricing, seat allocation,
// the create/cancel/confirm transactions and the read side around them.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/shiva/seatline/internal/apperr"
	"github.com/shiva/seatline/internal/events"
	"github.com/shiva/seatline/internal/model"
	"github.com/shiva/seatline/internal/ports"
)

// DefaultBookingTimeout bounds a whole booking transaction, lock waits
// included.
const DefaultBookingTimeout = 5 * time.Second

// ErrBookingTimeout is wrapped into the conflict returned when a
// transaction gives up waiting for a row lock.
var ErrBookingTimeout = errors.New("booking timed out waiting for lock")

// ─── Requests and results ───────────────────────────────────

type PassengerInput struct {
	Name       string `json:"name"`
	Age        *int   `json:"age,omitempty"`
	Gender     string `json:"gender,omitempty"`
	SeatNumber string `json:"seat_number,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
}

type CreateBookingRequest struct {
	CustomerID           uuid.UUID
	ServiceKind          model.ServiceKind
	ServiceID            uuid.UUID
	Class                model.SeatClass
	Passengers           []PassengerInput
	FromStationID        *uuid.UUID
	ToStationID          *uuid.UUID
	NoCancellationMarkup bool
	NoRescheduleMarkup   bool
	Email                string
	Phone                string
}

type AssignedSeat struct {
	PassengerID uuid.UUID `json:"passenger_id"`
	Name        string    `json:"name"`
	SeatNumber  string    `json:"seat_number"`
}

type BookingResult struct {
	BookingID     uuid.UUID           `json:"booking_id"`
	Status        model.BookingStatus `json:"status"`
	AssignedSeats []AssignedSeat      `json:"assigned_seats"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
}

// BookingDetails is a booking with its passengers and audit trail.
type BookingDetails struct {
	Booking    *model.Booking    `json:"booking"`
	Passengers []model.Passenger `json:"passengers"`
	StatusLog  []model.StatusLog `json:"status_log"`
	Ticket     *model.Ticket     `json:"ticket,omitempty"`
}

// ─── BookingService ─────────────────────────────────────────

// BookingService creates bookings.
//
// Concurrency model:
//   - The service row is locked first (SELECT ... FOR UPDATE), which
//     serializes every booking and cancellation against one service.
//   - Seat rows are locked next, always in seat id order.
//   - Train segment rows are locked last and updated in the same
//     transaction as the seat masks.
//   - The whole transaction runs under DefaultBookingTimeout.
type BookingService struct {
	store   ports.Store
	pricing *PricingEngine
	cache   ports.AvailabilityCache
	events  *events.Emitter
	timeout time.Duration
	logger  *logrus.Entry
}

// NewBookingService creates a booking service. cache and emitter may be nil.
func NewBookingService(
	store ports.Store,
	pricing *PricingEngine,
	cache ports.AvailabilityCache,
	emitter *events.Emitter,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		store:   store,
		pricing: pricing,
		cache:   cache,
		events:  emitter,
		timeout: DefaultBookingTimeout,
		logger:  logger.WithField("component", "booking"),
	}
}

// WithTimeout overrides the transaction timeout.
func (s *BookingService) WithTimeout(d time.Duration) *BookingService {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// CreateBooking reserves seats for every passenger and prices the journey in
// one transaction.
//
// Flow:
//  1. Validate the request (no locks taken on failure).
//  2. Lock the service row and resolve the journey on its route.
//  3. Insert the booking as Pending with amount 0.
//  4. Lock and verify requested seats; auto-assign the rest.
//  5. Price the allocation.
//  6. Insert passengers, mark seats (and train segments), set the total.
//  7. Append the "awaiting payment" status log entry and commit.
//
// Two users asking for the same seat at once:
//
//	T1: lock service → seat free → mark booked → COMMIT
//	T2: (blocks on service lock) → seat booked → ROLLBACK (conflict)
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*BookingResult, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"service_kind": req.ServiceKind,
		"service_id":   req.ServiceID,
		"passengers":   len(req.Passengers),
	})
	log.Info("creating booking")

	txCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		booking *model.Booking
		result  *BookingResult
	)
	err := s.store.InTx(txCtx, func(tx ports.Tx) error {
		var err error
		booking, result, err = s.create(txCtx, tx, req)
		return err
	})
	if err != nil {
		err = classifyError(err)
		if apperr.IsInternal(err) {
			log.WithError(err).Error("booking failed")
		} else {
			log.WithError(err).Info("booking rejected")
		}
		return nil, err
	}

	s.afterCommit(ctx, booking.ServiceID)
	ev := events.NewBookingEvent(events.BookingCreated, booking)
	for _, a := range result.AssignedSeats {
		ev.Seats = append(ev.Seats, a.SeatNumber)
	}
	s.events.Emit(ctx, ev)

	log.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"total":      result.TotalAmount.StringFixed(2),
	}).Info("booking created")
	return result, nil
}

func (s *BookingService) create(ctx context.Context, tx ports.Tx, req CreateBookingRequest) (*model.Booking, *BookingResult, error) {
	// ── Step 1: Lock the service ────────────────────────
	svc, err := tx.LockService(ctx, req.ServiceKind, req.ServiceID)
	if err != nil {
		return nil, nil, err
	}
	if svc.Status == model.ServiceCancelled {
		return nil, nil, apperr.ConflictError{Resource: "service", Msg: "service is cancelled"}
	}
	route, err := tx.GetRoute(ctx, svc.RouteID)
	if err != nil {
		return nil, nil, fmt.Errorf("load route %s: %w", svc.RouteID, err)
	}

	capy, err := capacityFor(svc.Kind, s.pricing)
	if err != nil {
		return nil, nil, err
	}

	// ── Step 2: Resolve the journey ─────────────────────
	j, err := capy.resolve(route, req.FromStationID, req.ToStationID)
	if err != nil {
		return nil, nil, err
	}

	// ── Step 3: Pending booking placeholder ─────────────
	now := time.Now().UTC()
	b := &model.Booking{
		ID:                   uuid.New(),
		CustomerID:           req.CustomerID,
		ServiceKind:          svc.Kind,
		ServiceID:            svc.ID,
		Status:               model.BookingPending,
		PaymentStatus:        model.PaymentPending,
		TotalAmount:          decimal.Zero,
		FromStationID:        j.FromStationID,
		ToStationID:          j.ToStationID,
		Class:                req.Class,
		NoCancellationMarkup: req.NoCancellationMarkup,
		NoRescheduleMarkup:   req.NoRescheduleMarkup,
		Email:                req.Email,
		Phone:                req.Phone,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := tx.InsertBooking(ctx, b); err != nil {
		return nil, nil, fmt.Errorf("insert booking: %w", err)
	}

	// ── Step 4: Allocate seats ──────────────────────────
	var requested []string
	autoCount := 0
	for _, p := range req.Passengers {
		if p.SeatNumber != "" {
			requested = append(requested, p.SeatNumber)
		} else {
			autoCount++
		}
	}
	alloc, err := capy.allocate(ctx, tx, svc, route, j, req.Class, requested, autoCount)
	if err != nil {
		return nil, nil, err
	}

	// ── Step 5: Price ───────────────────────────────────
	total, err := capy.price(ctx, tx, svc, route, j, req.Class, alloc, b)
	if err != nil {
		return nil, nil, err
	}

	// ── Step 6: Passengers, seats, total ────────────────
	passengers := make([]model.Passenger, 0, len(req.Passengers))
	seats := make([]model.Seat, 0, len(req.Passengers))
	assigned := make([]AssignedSeat, 0, len(req.Passengers))
	next := 0
	for _, in := range req.Passengers {
		var seat model.Seat
		if in.SeatNumber != "" {
			seat = alloc.explicit[in.SeatNumber]
		} else {
			seat = alloc.auto[next]
			next++
		}
		p := model.Passenger{
			ID:         uuid.Must(uuid.NewV7()),
			BookingID:  b.ID,
			Name:       strings.TrimSpace(in.Name),
			Age:        in.Age,
			Gender:     in.Gender,
			SeatNumber: seat.Number,
			DocumentID: in.DocumentID,
		}
		seat.PassengerID = &p.ID
		passengers = append(passengers, p)
		seats = append(seats, seat)
		assigned = append(assigned, AssignedSeat{PassengerID: p.ID, Name: p.Name, SeatNumber: seat.Number})
	}

	if err := tx.InsertPassengers(ctx, passengers); err != nil {
		return nil, nil, fmt.Errorf("insert passengers: %w", err)
	}
	if err := capy.occupy(ctx, tx, svc, j, req.Class, seats); err != nil {
		return nil, nil, err
	}

	b.TotalAmount = total
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return nil, nil, fmt.Errorf("update booking total: %w", err)
	}

	// ── Step 7: Audit log ───────────────────────────────
	if err := tx.AppendStatusLog(ctx, model.StatusLog{
		ID:        uuid.Must(uuid.NewV7()),
		BookingID: b.ID,
		Status:    string(model.BookingPending),
		Remarks:   "Booking created; awaiting payment.",
		CreatedAt: now,
	}); err != nil {
		return nil, nil, fmt.Errorf("append status log: %w", err)
	}

	return b, &BookingResult{
		BookingID:     b.ID,
		Status:        b.Status,
		AssignedSeats: assigned,
		TotalAmount:   total,
	}, nil
}

// GetBooking returns a booking with passengers, status log and ticket. A
// non-nil customerID must own the booking.
func (s *BookingService) GetBooking(ctx context.Context, id, customerID uuid.UUID) (*BookingDetails, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, classifyError(err)
	}
	if customerID != uuid.Nil && b.CustomerID != customerID {
		return nil, apperr.NotFoundError{Resource: "booking", ID: id.String()}
	}
	passengers, err := s.store.ListPassengers(ctx, id)
	if err != nil {
		return nil, classifyError(err)
	}
	logs, err := s.store.ListStatusLogs(ctx, id)
	if err != nil {
		return nil, classifyError(err)
	}
	details := &BookingDetails{Booking: b, Passengers: passengers, StatusLog: logs}
	if t, err := s.store.GetTicket(ctx, id); err == nil {
		details.Ticket = t
	} else if !errors.Is(err, ports.ErrNotFound) {
		return nil, classifyError(err)
	}
	return details, nil
}

// GetTicket returns the ticket issued for a booking, or not-found until
// payment is confirmed.
func (s *BookingService) GetTicket(ctx context.Context, bookingID uuid.UUID) (*model.Ticket, error) {
	t, err := s.store.GetTicket(ctx, bookingID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, apperr.NotFoundError{Resource: "ticket", ID: bookingID.String(), Err: err}
		}
		return nil, classifyError(err)
	}
	return t, nil
}

func (s *BookingService) afterCommit(ctx context.Context, serviceID uuid.UUID) {
	invalidate(ctx, s.cache, serviceID, s.logger)
}

// ─── Validation ─────────────────────────────────────────────

func validateCreate(req CreateBookingRequest) error {
	if !req.ServiceKind.Valid() {
		return apperr.ValidationError{Field: "service_kind", Msg: fmt.Sprintf("unknown kind %q", req.ServiceKind)}
	}
	if req.ServiceID == uuid.Nil {
		return apperr.ValidationError{Field: "service_id", Msg: "required"}
	}
	if req.CustomerID == uuid.Nil {
		return apperr.ValidationError{Field: "customer_id", Msg: "required"}
	}
	if len(req.Passengers) == 0 {
		return apperr.ValidationError{Field: "passengers", Msg: "at least one passenger is required"}
	}
	if req.Class != "" && !req.Class.ValidFor(req.ServiceKind) {
		return apperr.ValidationError{Field: "class", Msg: fmt.Sprintf("%s is not sold on %s services", req.Class, req.ServiceKind)}
	}

	seen := make(map[string]bool, len(req.Passengers))
	needsAuto := false
	for i, p := range req.Passengers {
		if strings.TrimSpace(p.Name) == "" {
			return apperr.ValidationError{Field: fmt.Sprintf("passengers[%d].name", i), Msg: "required"}
		}
		if p.Age != nil && *p.Age < 0 {
			return apperr.ValidationError{Field: fmt.Sprintf("passengers[%d].age", i), Msg: "must not be negative"}
		}
		if p.SeatNumber == "" {
			needsAuto = true
			continue
		}
		if seen[p.SeatNumber] {
			return apperr.ValidationError{Field: fmt.Sprintf("passengers[%d].seat_number", i),
				Msg: fmt.Sprintf("seat %s requested twice", p.SeatNumber)}
		}
		seen[p.SeatNumber] = true
	}

	if req.ServiceKind == model.KindTrain {
		if req.Class == "" {
			return apperr.ValidationError{Field: "class", Msg: "required for train bookings"}
		}
		if req.FromStationID == nil || req.ToStationID == nil {
			return apperr.ValidationError{Field: "from_station_id", Msg: "origin and destination are required for train bookings"}
		}
		if *req.FromStationID == *req.ToStationID {
			return apperr.ValidationError{Field: "to_station_id", Msg: "destination must differ from origin"}
		}
		return nil
	}

	if needsAuto && req.Class == "" {
		return apperr.ValidationError{Field: "class", Msg: "required when seats are auto-assigned"}
	}
	if (req.FromStationID == nil) != (req.ToStationID == nil) {
		return apperr.ValidationError{Field: "to_station_id", Msg: "origin and destination must be given together"}
	}
	return nil
}

// ─── Error classification ───────────────────────────────────

// classifyError maps store and engine errors onto the apperr taxonomy.
//
// Only a lock wait that ran out of time is a conflict. A cancelled request
// context means the caller went away, and a write that touched the wrong
// number of seat or segment rows is an inconsistency; both are internal.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if apperr.IsValidation(err) || apperr.IsNotFound(err) || apperr.IsConflict(err) || apperr.IsInternal(err) {
		return err
	}

	var row *ports.RowError
	hasRow := errors.As(err, &row)

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ports.ErrLockTimeout):
		return apperr.ConflictError{Resource: "service", Msg: "busy, retry the request", Err: fmt.Errorf("%w: %v", ErrBookingTimeout, err)}
	case errors.Is(err, context.Canceled):
		return apperr.InternalError{Msg: "request cancelled", Err: err}
	case errors.Is(err, ports.ErrRowCount):
		return apperr.InternalError{Msg: "inventory out of step", Err: err}
	case errors.Is(err, ports.ErrNotFound):
		nf := apperr.NotFoundError{Err: err}
		if hasRow {
			nf.Resource, nf.ID = row.Resource, row.Key
		}
		return nf
	case errors.Is(err, ports.ErrDuplicate):
		c := apperr.ConflictError{Msg: "already exists", Err: err}
		if hasRow {
			c.Resource = row.Resource
			switch {
			case row.Key != "":
				c.Msg = fmt.Sprintf("%s %s already exists", row.Resource, row.Key)
			case row.Resource != "":
				c.Msg = row.Resource + " already exists"
			}
		}
		return c
	case errors.Is(err, ErrNotPriceable):
		return apperr.ValidationError{Field: "class", Msg: err.Error(), Err: err}
	}
	return apperr.InternalError{Msg: "booking engine", Err: err}
}

func invalidate(ctx context.Context, cache ports.AvailabilityCache, serviceID uuid.UUID, logger *logrus.Entry) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx, serviceID); err != nil {
		logger.WithError(err).WithField("service_id", serviceID).Warn("invalidate availability cache")
	}
}
