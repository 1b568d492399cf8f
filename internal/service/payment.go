package service

import (
	"context"
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

const ticketPrefix = "TKT-"

type ConfirmPaymentRequest struct {
	BookingID uuid.UUID
	Method    string
	Amount    *decimal.Decimal // optional; must match the booking total when set
}

type ConfirmPaymentResult struct {
	BookingID     uuid.UUID           `json:"booking_id"`
	TransactionID uuid.UUID           `json:"transaction_id"`
	Status        model.BookingStatus `json:"status"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	Ticket        model.Ticket        `json:"ticket"`
}

// PaymentService records the payment collaborator's success signal.
type PaymentService struct {
	store   ports.Store
	events  *events.Emitter
	timeout time.Duration
	logger  *logrus.Entry
}

func NewPaymentService(store ports.Store, emitter *events.Emitter, logger *logrus.Logger) *PaymentService {
	return &PaymentService{
		store:   store,
		events:  emitter,
		timeout: DefaultBookingTimeout,
		logger:  logger.WithField("component", "payment"),
	}
}

// WithTimeout overrides the transaction timeout.
func (s *PaymentService) WithTimeout(d time.Duration) *PaymentService {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// TicketNumber derives the ticket number from the booking id.
func TicketNumber(bookingID uuid.UUID) string {
	hex := strings.ReplaceAll(bookingID.String(), "-", "")
	return ticketPrefix + strings.ToUpper(hex[:8])
}

// ConfirmPayment moves a Pending booking to Confirmed/Paid, records the
// successful transaction and issues the ticket.
func (s *PaymentService) ConfirmPayment(ctx context.Context, req ConfirmPaymentRequest) (*ConfirmPaymentResult, error) {
	if req.BookingID == uuid.Nil {
		return nil, apperr.ValidationError{Field: "booking_id", Msg: "required"}
	}
	if strings.TrimSpace(req.Method) == "" {
		return nil, apperr.ValidationError{Field: "method", Msg: "required"}
	}
	log := s.logger.WithField("booking_id", req.BookingID)

	txCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		booking *model.Booking
		result  *ConfirmPaymentResult
	)
	err := s.store.InTx(txCtx, func(tx ports.Tx) error {
		b, err := tx.LockBooking(txCtx, req.BookingID)
		if err != nil {
			return err
		}
		if b.Status != model.BookingPending {
			return apperr.ConflictError{Resource: "booking", Msg: fmt.Sprintf("booking is %s, not Pending", b.Status)}
		}
		if b.PaymentStatus != model.PaymentPending {
			return apperr.ConflictError{Resource: "payment", Msg: fmt.Sprintf("payment is already %s", b.PaymentStatus)}
		}
		if req.Amount != nil && !req.Amount.Equal(b.TotalAmount) {
			return apperr.ValidationError{Field: "amount",
				Msg: fmt.Sprintf("amount %s does not match booking total %s", req.Amount.StringFixed(2), b.TotalAmount.StringFixed(2))}
		}

		now := time.Now().UTC()
		txn := &model.PaymentTransaction{
			ID:         uuid.New(),
			BookingID:  b.ID,
			CustomerID: b.CustomerID,
			Amount:     b.TotalAmount,
			Method:     req.Method,
			Status:     model.TransactionSuccess,
			CreatedAt:  now,
		}
		if err := tx.InsertTransaction(txCtx, txn); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		b.Status = model.BookingConfirmed
		b.PaymentStatus = model.PaymentPaid
		b.UpdatedAt = now
		if err := tx.UpdateBooking(txCtx, b); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}

		ticket := model.Ticket{ID: uuid.New(), BookingID: b.ID, Number: TicketNumber(b.ID), IssuedAt: now}
		if err := tx.InsertTicket(txCtx, &ticket); err != nil {
			return fmt.Errorf("issue ticket: %w", err)
		}
		if err := tx.AppendStatusLog(txCtx, model.StatusLog{
			ID: uuid.Must(uuid.NewV7()), BookingID: b.ID, Status: string(model.BookingConfirmed),
			Remarks: "Payment received; ticket " + ticket.Number + " issued.", CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("append status log: %w", err)
		}

		booking = b
		result = &ConfirmPaymentResult{
			BookingID:     b.ID,
			TransactionID: txn.ID,
			Status:        b.Status,
			PaymentStatus: b.PaymentStatus,
			Ticket:        ticket,
		}
		return nil
	})
	if err != nil {
		err = classifyError(err)
		log.WithError(err).Info("payment confirmation rejected")
		return nil, err
	}

	ev := events.NewBookingEvent(events.BookingConfirmed, booking)
	ev.TicketNo = result.Ticket.Number
	s.events.Emit(ctx, ev)

	log.WithField("ticket_no", result.Ticket.Number).Info("payment confirmed")
	return result, nil
}
