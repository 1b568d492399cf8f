package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/seatline/internal/apperr"
	"github.com/shiva/seatline/internal/model"
	"github.com/shiva/seatline/internal/ports"
)

func TestCancelBooking_UnpaidBus(t *testing.T) {
	e := newEnv(t)
	svc := e.flatService(t, model.KindBus, nil, busSeats()...)
	res, err := e.bookFlat(svc, "", "A1", "A3")
	require.NoError(t, err)

	out, err := e.cancel.CancelBooking(context.Background(), CancelRequest{BookingID: res.BookingID, CustomerID: e.customer})
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, out.Status)
	assert.Equal(t, model.PaymentPending, out.PaymentStatus)
	assert.Nil(t, out.RefundID)
	assert.Empty(t, e.store.Refunds(res.BookingID))

	for _, n := range []string{"A1", "A3"} {
		seat, _ := e.store.SeatByNumber(svc.ID, n)
		assert.False(t, seat.Booked, n)
		assert.Nil(t, seat.PassengerID, n)
	}

	details, err := e.booking.GetBooking(context.Background(), res.BookingID, e.customer)
	require.NoError(t, err)
	require.Len(t, details.StatusLog, 2)
	assert.Equal(t, string(model.BookingCancelled), details.StatusLog[1].Status)
	assert.Equal(t, "Cancelled by customer.", details.StatusLog[1].Remarks)

	// Released seats can be sold again.
	_, err = e.bookFlat(svc, "", "A1")
	assert.NoError(t, err)
}

func TestCancelBooking_PaidCreatesRefund(t *testing.T) {
	e := newEnv(t)
	svc := e.flatService(t, model.KindBus, nil, busSeats()...)
	res, err := e.bookFlat(svc, "", "A1")
	require.NoError(t, err)
	paid, err := e.payment.ConfirmPayment(context.Background(), ConfirmPaymentRequest{BookingID: res.BookingID, Method: "upi"})
	require.NoError(t, err)

	out, err := e.cancel.CancelBooking(context.Background(), CancelRequest{BookingID: res.BookingID, Reason: "plans changed"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, out.PaymentStatus)
	require.NotNil(t, out.RefundID)
	require.NotNil(t, out.RefundStatus)
	assert.Equal(t, model.RefundPending, *out.RefundStatus)

	refunds := e.store.Refunds(res.BookingID)
	require.Len(t, refunds, 1)
	assert.Equal(t, *out.RefundID, refunds[0].ID)
	assert.True(t, refunds[0].Amount.Equal(res.TotalAmount))
	assert.Equal(t, "plans changed", refunds[0].Reason)
	require.NotNil(t, refunds[0].TransactionID)
	assert.Equal(t, paid.TransactionID, *refunds[0].TransactionID)
}

func TestCancelBooking_AlreadyCancelled(t *testing.T) {
	e := newEnv(t)
	svc := e.flatService(t, model.KindBus, nil, busSeats()...)
	res, err := e.bookFlat(svc, "", "A1")
	require.NoError(t, err)

	_, err = e.cancel.CancelBooking(context.Background(), CancelRequest{BookingID: res.BookingID})
	require.NoError(t, err)
	_, err = e.cancel.CancelBooking(context.Background(), CancelRequest{BookingID: res.BookingID})
	assert.True(t, apperr.IsConflict(err), "got %v", err)
}

func TestCancelBooking_NotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.cancel.CancelBooking(context.Background(), CancelRequest{BookingID: uuid.New()})
	assert.True(t, apperr.IsNotFound(err))

	_, err = e.cancel.CancelBooking(context.Background(), CancelRequest{})
	assert.True(t, apperr.IsValidation(err))
}

func TestCancelBooking_OtherCustomer(t *testing.T) {
	e := newEnv(t)
	svc := e.flatService(t, model.KindBus, nil, busSeats()...)
	res, err := e.bookFlat(svc, "", "A1")
	require.NoError(t, err)

	_, err = e.cancel.CancelBooking(context.Background(), CancelRequest{BookingID: res.BookingID, CustomerID: uuid.New()})
	assert.True(t, apperr.IsNotFound(err))

	b, err := e.store.GetBooking(context.Background(), res.BookingID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, b.Status)
}

func TestCancelBooking_ReleaseFailureKeepsCancellation(t *testing.T) {
	e := newEnv(t)
	st := e.stations(t, 3)
	svc := e.train(t, e.route(t, st, "300", "100", "0"), 4)
	res, err := e.bookTrain(t, svc, st[0], st[2], model.ClassSleeper, "Asha", "Ravi")
	require.NoError(t, err)
	_, err = e.payment.ConfirmPayment(context.Background(), ConfirmPaymentRequest{BookingID: res.BookingID, Method: "card"})
	require.NoError(t, err)

	e.store.InjectFault("AdjustSegments", errors.New("disk full"))
	out, err := e.cancel.CancelBooking(context.Background(), CancelRequest{BookingID: res.BookingID})
	e.store.InjectFault("AdjustSegments", nil)
	require.NoError(t, err)

	assert.Equal(t, model.BookingCancelled, out.Status)
	assert.Equal(t, model.PaymentRefunded, out.PaymentStatus)
	assert.True(t, strings.HasPrefix(out.ReleaseRemark, "Error releasing seats: "), out.ReleaseRemark)
	assert.Len(t, e.store.Refunds(res.BookingID), 1)

	// The savepoint rolled back the mask update together with the counters,
	// so seats and segments still agree.
	assert.Equal(t, []int{2, 2}, e.segmentCounts(t, svc.ID, model.ClassSleeper))
	e.requireConsistent(t, svc.ID)

	logs, err := e.store.ListStatusLogs(context.Background(), res.BookingID)
	require.NoError(t, err)
	last := logs[len(logs)-1]
	assert.Equal(t, string(model.BookingCancelled), last.Status)
	assert.Contains(t, last.Remarks, "disk full")
}

func TestCancelBooking_StatusFailureRollsBack(t *testing.T) {
	e := newEnv(t)
	svc := e.flatService(t, model.KindBus, nil, busSeats()...)
	res, err := e.bookFlat(svc, "", "A1")
	require.NoError(t, err)

	e.store.InjectFault("AppendStatusLog", errors.New("log unavailable"))
	_, err = e.cancel.CancelBooking(context.Background(), CancelRequest{BookingID: res.BookingID})
	e.store.InjectFault("AppendStatusLog", nil)
	assert.True(t, apperr.IsInternal(err), "got %v", err)

	b, err := e.store.GetBooking(context.Background(), res.BookingID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, b.Status)
	seat, _ := e.store.SeatByNumber(svc.ID, "A1")
	assert.True(t, seat.Booked)
}

func TestCancelBooking_PaidWithoutTransaction(t *testing.T) {
	e := newEnv(t)
	svc := e.flatService(t, model.KindBus, nil, busSeats()...)
	res, err := e.bookFlat(svc, "", "A1")
	require.NoError(t, err)

	// Settled out of band: Paid with no payment transaction on record.
	err = e.store.InTx(context.Background(), func(tx ports.Tx) error {
		b, err := tx.LockBooking(context.Background(), res.BookingID)
		if err != nil {
			return err
		}
		b.PaymentStatus = model.PaymentPaid
		b.Status = model.BookingConfirmed
		return tx.UpdateBooking(context.Background(), b)
	})
	require.NoError(t, err)
	require.Empty(t, e.store.Transactions(res.BookingID))

	out, err := e.cancel.CancelBooking(context.Background(), CancelRequest{BookingID: res.BookingID})
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, out.Status)
	assert.Equal(t, model.PaymentRefunded, out.PaymentStatus)
	require.NotNil(t, out.RefundID)

	refunds := e.store.Refunds(res.BookingID)
	require.Len(t, refunds, 1)
	assert.Nil(t, refunds[0].TransactionID)
	assert.True(t, refunds[0].Amount.Equal(res.TotalAmount))

	seat, _ := e.store.SeatByNumber(svc.ID, "A1")
	assert.False(t, seat.Booked)
}
