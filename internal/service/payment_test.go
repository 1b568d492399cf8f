package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/seatline/internal/apperr"
	"github.com/shiva/seatline/internal/model"
)

func TestTicketNumber(t *testing.T) {
	id := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	assert.Equal(t, "TKT-0F8FAD5B", TicketNumber(id))
}

func TestConfirmPayment(t *testing.T) {
	e := newEnv(t)
	svc := e.flatService(t, model.KindBus, nil, busSeats()...)
	res, err := e.bookFlat(svc, "", "A1")
	require.NoError(t, err)

	_, err = e.booking.GetTicket(context.Background(), res.BookingID)
	assert.True(t, apperr.IsNotFound(err), "no ticket before payment")

	amount := res.TotalAmount
	out, err := e.payment.ConfirmPayment(context.Background(), ConfirmPaymentRequest{
		BookingID: res.BookingID, Method: "upi", Amount: &amount,
	})
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, out.Status)
	assert.Equal(t, model.PaymentPaid, out.PaymentStatus)
	assert.Equal(t, TicketNumber(res.BookingID), out.Ticket.Number)

	txns := e.store.Transactions(res.BookingID)
	require.Len(t, txns, 1)
	assert.Equal(t, model.TransactionSuccess, txns[0].Status)
	assert.True(t, txns[0].Amount.Equal(res.TotalAmount))

	ticket, err := e.booking.GetTicket(context.Background(), res.BookingID)
	require.NoError(t, err)
	assert.Equal(t, out.Ticket.Number, ticket.Number)

	details, err := e.booking.GetBooking(context.Background(), res.BookingID, e.customer)
	require.NoError(t, err)
	require.NotNil(t, details.Ticket)
	assert.Equal(t, model.BookingConfirmed, details.Booking.Status)
}

func TestConfirmPayment_Twice(t *testing.T) {
	e := newEnv(t)
	svc := e.flatService(t, model.KindBus, nil, busSeats()...)
	res, err := e.bookFlat(svc, "", "A1")
	require.NoError(t, err)

	req := ConfirmPaymentRequest{BookingID: res.BookingID, Method: "card"}
	_, err = e.payment.ConfirmPayment(context.Background(), req)
	require.NoError(t, err)
	_, err = e.payment.ConfirmPayment(context.Background(), req)
	assert.True(t, apperr.IsConflict(err), "got %v", err)
	assert.Len(t, e.store.Transactions(res.BookingID), 1)
}

func TestConfirmPayment_Rejections(t *testing.T) {
	e := newEnv(t)
	svc := e.flatService(t, model.KindBus, nil, busSeats()...)
	res, err := e.bookFlat(svc, "", "A1")
	require.NoError(t, err)

	wrong := dec("1.00")
	_, err = e.payment.ConfirmPayment(context.Background(), ConfirmPaymentRequest{BookingID: res.BookingID, Method: "upi", Amount: &wrong})
	assert.True(t, apperr.IsValidation(err), "amount mismatch: %v", err)

	_, err = e.payment.ConfirmPayment(context.Background(), ConfirmPaymentRequest{BookingID: res.BookingID})
	assert.True(t, apperr.IsValidation(err), "missing method: %v", err)

	_, err = e.payment.ConfirmPayment(context.Background(), ConfirmPaymentRequest{BookingID: uuid.New(), Method: "upi"})
	assert.True(t, apperr.IsNotFound(err), "unknown booking: %v", err)

	_, err = e.cancel.CancelBooking(context.Background(), CancelRequest{BookingID: res.BookingID})
	require.NoError(t, err)
	_, err = e.payment.ConfirmPayment(context.Background(), ConfirmPaymentRequest{BookingID: res.BookingID, Method: "upi"})
	assert.True(t, apperr.IsConflict(err), "cancelled booking: %v", err)
}
