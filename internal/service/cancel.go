package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shiva/seatline/internal/apperr"
	"github.com/shiva/seatline/internal/events"
	"github.com/shiva/seatline/internal/model"
	"github.com/shiva/seatline/internal/ports"
)

const defaultCancelReason = "Cancelled by customer."

type CancelRequest struct {
	BookingID  uuid.UUID
	CustomerID uuid.UUID // uuid.Nil skips the ownership check
	Reason     string
}

type CancelResult struct {
	BookingID     uuid.UUID           `json:"booking_id"`
	Status        model.BookingStatus `json:"status"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	RefundID      *uuid.UUID          `json:"refund_id,omitempty"`
	RefundStatus  *model.RefundStatus `json:"refund_status,omitempty"`
	ReleaseRemark string              `json:"release_remark,omitempty"`
}

// CancelService cancels bookings and returns their capacity.
type CancelService struct {
	store   ports.Store
	pricing *PricingEngine
	cache   ports.AvailabilityCache
	events  *events.Emitter
	timeout time.Duration
	logger  *logrus.Entry
}

// NewCancelService creates a cancel service. cache and emitter may be nil.
func NewCancelService(
	store ports.Store,
	pricing *PricingEngine,
	cache ports.AvailabilityCache,
	emitter *events.Emitter,
	logger *logrus.Logger,
) *CancelService {
	return &CancelService{
		store:   store,
		pricing: pricing,
		cache:   cache,
		events:  emitter,
		timeout: DefaultBookingTimeout,
		logger:  logger.WithField("component", "cancel"),
	}
}

// WithTimeout overrides the transaction timeout.
func (s *CancelService) WithTimeout(d time.Duration) *CancelService {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// CancelBooking cancels a booking.
//
// State transitions, all in one transaction:
//   - booking → Cancelled; if payment was Paid → Refunded and a Pending
//     refund for the booking total is created.
//   - "Cancelled" status log entry with the reason.
//   - Seat release inside a savepoint: bus/flight seats are unbooked, train
//     seat masks are cleared on the booked window and the segment counters
//     are incremented by exactly what the booking decremented.
//
// A failed release rolls back only the savepoint. The cancellation and refund
// still commit and the failure is recorded as a status log remark.
func (s *CancelService) CancelBooking(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	if req.BookingID == uuid.Nil {
		return nil, apperr.ValidationError{Field: "booking_id", Msg: "required"}
	}
	reason := req.Reason
	if reason == "" {
		reason = defaultCancelReason
	}
	log := s.logger.WithField("booking_id", req.BookingID)
	log.Info("processing cancellation")

	txCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		booking *model.Booking
		result  *CancelResult
	)
	err := s.store.InTx(txCtx, func(tx ports.Tx) error {
		b, err := tx.LockBooking(txCtx, req.BookingID)
		if err != nil {
			return err
		}
		if req.CustomerID != uuid.Nil && b.CustomerID != req.CustomerID {
			return apperr.NotFoundError{Resource: "booking", ID: req.BookingID.String()}
		}
		if b.Status == model.BookingCancelled {
			return apperr.ConflictError{Resource: "booking", Msg: "booking is already cancelled"}
		}

		// ── Step 1: Status and refund ───────────────────
		now := time.Now().UTC()
		res := &CancelResult{BookingID: b.ID}
		if b.PaymentStatus == model.PaymentPaid {
			b.PaymentStatus = model.PaymentRefunded
			refund := &model.Refund{
				ID:          uuid.New(),
				BookingID:   b.ID,
				Amount:      b.TotalAmount,
				Reason:      reason,
				Status:      model.RefundPending,
				InitiatedAt: now,
			}
			// A booking marked Paid outside ConfirmPayment may have no
			// transaction row; the refund is then unlinked.
			paid, err := tx.FindSuccessfulTransaction(txCtx, b.ID)
			if err != nil {
				return fmt.Errorf("find transaction: %w", err)
			}
			if paid != nil {
				refund.TransactionID = &paid.ID
			}
			if err := tx.InsertRefund(txCtx, refund); err != nil {
				return fmt.Errorf("insert refund: %w", err)
			}
			res.RefundID, res.RefundStatus = &refund.ID, &refund.Status
		}
		b.Status = model.BookingCancelled
		b.UpdatedAt = now
		if err := tx.UpdateBooking(txCtx, b); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		if err := tx.AppendStatusLog(txCtx, model.StatusLog{
			ID: uuid.Must(uuid.NewV7()), BookingID: b.ID, Status: string(model.BookingCancelled), Remarks: reason, CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("append status log: %w", err)
		}

		// ── Step 2: Best-effort release ─────────────────
		if err := tx.Savepoint(txCtx, func(sp ports.Tx) error {
			return s.release(txCtx, sp, b)
		}); err != nil {
			res.ReleaseRemark = "Error releasing seats: " + err.Error()
			log.WithError(err).Warn("seat release failed; cancellation kept")
			if err := tx.AppendStatusLog(txCtx, model.StatusLog{
				ID: uuid.Must(uuid.NewV7()), BookingID: b.ID, Status: string(model.BookingCancelled), Remarks: res.ReleaseRemark, CreatedAt: now,
			}); err != nil {
				return fmt.Errorf("append release remark: %w", err)
			}
		}

		res.Status, res.PaymentStatus = b.Status, b.PaymentStatus
		booking, result = b, res
		return nil
	})
	if err != nil {
		err = classifyError(err)
		log.WithError(err).Info("cancellation rejected")
		return nil, err
	}

	invalidate(ctx, s.cache, booking.ServiceID, s.logger)
	ev := events.NewBookingEvent(events.BookingCancelled, booking)
	ev.RefundID = result.RefundID
	s.events.Emit(ctx, ev)

	log.WithFields(logrus.Fields{
		"refund_id":      result.RefundID,
		"seats_released": result.ReleaseRemark == "",
	}).Info("booking cancelled")
	return result, nil
}

// release returns the booking's seats to inventory. It locks the service
// before the seats, the same order CreateBooking uses.
func (s *CancelService) release(ctx context.Context, tx ports.Tx, b *model.Booking) error {
	svc, err := tx.LockService(ctx, b.ServiceKind, b.ServiceID)
	if err != nil {
		return fmt.Errorf("lock service: %w", err)
	}
	route, err := tx.GetRoute(ctx, svc.RouteID)
	if err != nil {
		return fmt.Errorf("load route: %w", err)
	}
	capy, err := capacityFor(svc.Kind, s.pricing)
	if err != nil {
		return err
	}
	j, err := capy.resolve(route, b.FromStationID, b.ToStationID)
	if err != nil {
		return err
	}

	passengers, err := tx.ListPassengers(ctx, b.ID)
	if err != nil {
		return fmt.Errorf("list passengers: %w", err)
	}
	if len(passengers) == 0 {
		return nil
	}
	owners := make(map[uuid.UUID]bool, len(passengers))
	numbers := make([]string, 0, len(passengers))
	for _, p := range passengers {
		owners[p.ID] = true
		numbers = append(numbers, p.SeatNumber)
	}

	seats, err := tx.LockSeatsByNumber(ctx, svc.ID, numbers)
	if err != nil {
		return fmt.Errorf("lock seats: %w", err)
	}
	if len(seats) != len(passengers) {
		return apperr.InternalError{Msg: fmt.Sprintf("found %d of %d booked seats", len(seats), len(passengers))}
	}

	for i := range seats {
		ref := seats[i].PassengerID
		switch {
		case ref != nil && owners[*ref]:
			seats[i].PassengerID = nil
		case svc.Kind != model.KindTrain:
			// A flat seat held by someone else must not be unbooked.
			return apperr.InternalError{Msg: fmt.Sprintf("seat %s is not held by this booking", seats[i].Number)}
		}
	}

	class := b.Class
	if svc.Kind != model.KindTrain && class == "" {
		class = seats[0].Class
	}
	return capy.vacate(ctx, tx, svc, j, class, seats)
}
