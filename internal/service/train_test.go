package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/seatline/internal/apperr"
	"github.com/shiva/seatline/internal/model"
)

func TestTrainBooking_SubJourneyPrice(t *testing.T) {
	e := newEnv(t)
	st := e.stations(t, 3)
	svc := e.train(t, e.route(t, st, "", "100", "0"), 4)

	res, err := e.bookTrain(t, svc, st[0], st[1], model.ClassSleeper, "Asha")
	require.NoError(t, err)
	assert.Equal(t, "200.00", res.TotalAmount.StringFixed(2))
	assert.Equal(t, []int{3, 4}, e.segmentCounts(t, svc.ID, model.ClassSleeper))
	e.requireConsistent(t, svc.ID)

	seat, ok := e.store.SeatByNumber(svc.ID, res.AssignedSeats[0].SeatNumber)
	require.True(t, ok)
	assert.Equal(t, "10", seat.Mask.String())
	require.NotNil(t, seat.PassengerID)
}

func TestTrainBooking_PricePerPassenger(t *testing.T) {
	e := newEnv(t)
	st := e.stations(t, 3)
	svc := e.train(t, e.route(t, st, "300", "100", "0"), 4)

	res, err := e.bookTrain(t, svc, st[1], st[2], model.ClassSecondAC, "Asha", "Ravi")
	require.NoError(t, err)
	// 100 scaled by 600/300, twice.
	assert.Equal(t, "400.00", res.TotalAmount.StringFixed(2))
	assert.Equal(t, []int{2, 0}, e.segmentCounts(t, svc.ID, model.ClassSecondAC))
	e.requireConsistent(t, svc.ID)
}

func TestTrainBooking_SegmentExhausted(t *testing.T) {
	e := newEnv(t)
	st := e.stations(t, 3)
	svc := e.train(t, e.route(t, st, "300", "100", "0"), 2)

	_, err := e.bookTrain(t, svc, st[0], st[1], model.ClassSleeper, "Asha", "Ravi")
	require.NoError(t, err)
	require.Equal(t, []int{0, 2}, e.segmentCounts(t, svc.ID, model.ClassSleeper))

	_, err = e.bookTrain(t, svc, st[0], st[2], model.ClassSleeper, "Late")
	assert.True(t, apperr.IsConflict(err), "got %v", err)
	assert.Equal(t, []int{0, 2}, e.segmentCounts(t, svc.ID, model.ClassSleeper))

	// The second leg is still free on the same seats.
	res, err := e.bookTrain(t, svc, st[1], st[2], model.ClassSleeper, "Meera", "Kabir")
	require.NoError(t, err)
	assert.Len(t, res.AssignedSeats, 2)
	assert.Equal(t, []int{0, 0}, e.segmentCounts(t, svc.ID, model.ClassSleeper))
	for _, seat := range e.store.Seats(svc.ID) {
		if seat.Class == model.ClassSleeper {
			assert.Equal(t, "11", seat.Mask.String(), seat.Number)
		}
	}
	e.requireConsistent(t, svc.ID)
}

func TestTrainBooking_ExplicitSeatOverlap(t *testing.T) {
	e := newEnv(t)
	st := e.stations(t, 4)
	svc := e.train(t, e.route(t, st, "300", "200", "100", "0"), 3)

	seatReq := func(from, to uuid.UUID) CreateBookingRequest {
		return CreateBookingRequest{
			CustomerID:    e.customer,
			ServiceKind:   model.KindTrain,
			ServiceID:     svc.ID,
			Class:         model.ClassSleeper,
			FromStationID: &from,
			ToStationID:   &to,
			Passengers:    []PassengerInput{{Name: "Asha", SeatNumber: "SL1-2"}},
		}
	}

	_, err := e.booking.CreateBooking(context.Background(), seatReq(st[1], st[3]))
	require.NoError(t, err)

	_, err = e.booking.CreateBooking(context.Background(), seatReq(st[0], st[2]))
	assert.True(t, apperr.IsConflict(err), "got %v", err)

	_, err = e.booking.CreateBooking(context.Background(), seatReq(st[0], st[1]))
	require.NoError(t, err)

	seat, _ := e.store.SeatByNumber(svc.ID, "SL1-2")
	assert.Equal(t, "111", seat.Mask.String())
	e.requireConsistent(t, svc.ID)
}

func TestTrainBooking_ExplicitSeatWrongClass(t *testing.T) {
	e := newEnv(t)
	st := e.stations(t, 3)
	svc := e.train(t, e.route(t, st, "300", "100", "0"), 2)
	from, to := st[0], st[2]

	_, err := e.booking.CreateBooking(context.Background(), CreateBookingRequest{
		CustomerID:    e.customer,
		ServiceKind:   model.KindTrain,
		ServiceID:     svc.ID,
		Class:         model.ClassSleeper,
		FromStationID: &from,
		ToStationID:   &to,
		Passengers:    []PassengerInput{{Name: "Asha", SeatNumber: "2A1-1"}},
	})
	assert.True(t, apperr.IsValidation(err), "got %v", err)
}

func TestTrainBooking_JourneyErrors(t *testing.T) {
	e := newEnv(t)
	st := e.stations(t, 3)
	svc := e.train(t, e.route(t, st, "300", "100", "0"), 2)

	_, err := e.bookTrain(t, svc, st[2], st[0], model.ClassSleeper, "Asha")
	assert.True(t, apperr.IsValidation(err), "backward: %v", err)

	_, err = e.bookTrain(t, svc, st[0], uuid.New(), model.ClassSleeper, "Asha")
	assert.True(t, apperr.IsNotFound(err), "off route: %v", err)

	_, err = e.bookTrain(t, svc, st[0], st[2], model.ClassThirdAC, "Asha")
	assert.True(t, apperr.IsConflict(err), "no ThirdAC seats: %v", err)
}

func TestTrainCancel_RestoresSegments(t *testing.T) {
	e := newEnv(t)
	st := e.stations(t, 3)
	svc := e.train(t, e.route(t, st, "300", "100", "0"), 4)
	before := e.store.Seats(svc.ID)

	res, err := e.bookTrain(t, svc, st[0], st[2], model.ClassSleeper, "Asha", "Ravi")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, e.segmentCounts(t, svc.ID, model.ClassSleeper))

	out, err := e.cancel.CancelBooking(context.Background(), CancelRequest{BookingID: res.BookingID, CustomerID: e.customer})
	require.NoError(t, err)
	assert.Empty(t, out.ReleaseRemark)
	assert.Equal(t, []int{4, 4}, e.segmentCounts(t, svc.ID, model.ClassSleeper))
	e.requireConsistent(t, svc.ID)

	after := e.store.Seats(svc.ID)
	require.Len(t, after, len(before))
	for i := range before {
		assert.True(t, before[i].Mask.Equal(after[i].Mask), before[i].Number)
		assert.Nil(t, after[i].PassengerID, after[i].Number)
	}
}

func TestTrainCancel_KeepsOtherBookingsOnSameSeat(t *testing.T) {
	e := newEnv(t)
	st := e.stations(t, 3)
	svc := e.train(t, e.route(t, st, "300", "100", "0"), 1)

	first, err := e.bookTrain(t, svc, st[0], st[1], model.ClassSleeper, "Asha")
	require.NoError(t, err)
	second, err := e.bookTrain(t, svc, st[1], st[2], model.ClassSleeper, "Ravi")
	require.NoError(t, err)
	require.Equal(t, first.AssignedSeats[0].SeatNumber, second.AssignedSeats[0].SeatNumber)

	_, err = e.cancel.CancelBooking(context.Background(), CancelRequest{BookingID: first.BookingID})
	require.NoError(t, err)

	seat, _ := e.store.SeatByNumber(svc.ID, first.AssignedSeats[0].SeatNumber)
	assert.Equal(t, "01", seat.Mask.String())
	require.NotNil(t, seat.PassengerID)
	assert.Equal(t, second.AssignedSeats[0].PassengerID, *seat.PassengerID)
	assert.Equal(t, []int{1, 0}, e.segmentCounts(t, svc.ID, model.ClassSleeper))
	e.requireConsistent(t, svc.ID)
}

func TestTrainBooking_ConcurrentOverlappingWindows(t *testing.T) {
	e := newEnv(t)
	st := e.stations(t, 4)
	svc := e.train(t, e.route(t, st, "300", "200", "100", "0"), 3)

	// Every window covers segment 1, so at most one can hold SL1-2.
	windows := [][2]int{{0, 2}, {1, 3}, {0, 3}, {1, 2}}

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		won       [][2]int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		w := windows[i%len(windows)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			from, to := st[w[0]], st[w[1]]
			_, err := e.booking.CreateBooking(context.Background(), CreateBookingRequest{
				CustomerID:    uuid.New(),
				ServiceKind:   model.KindTrain,
				ServiceID:     svc.ID,
				Class:         model.ClassSleeper,
				FromStationID: &from,
				ToStationID:   &to,
				Passengers:    []PassengerInput{{Name: "Asha", SeatNumber: "SL1-2"}},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won = append(won, w)
			case apperr.IsConflict(err):
				conflicts++
			}
		}()
	}
	wg.Wait()

	require.Len(t, won, 1)
	assert.Equal(t, workers-1, conflicts)

	seat, _ := e.store.SeatByNumber(svc.ID, "SL1-2")
	for i := 0; i < 3; i++ {
		assert.Equal(t, i >= won[0][0] && i < won[0][1], seat.Mask.Test(i), "segment %d", i)
	}
	e.requireConsistent(t, svc.ID)
}

func TestTrainBooking_ConcurrentAutoAssignNeverOversells(t *testing.T) {
	e := newEnv(t)
	st := e.stations(t, 4)
	svc := e.train(t, e.route(t, st, "300", "200", "100", "0"), 3)

	windows := [][2]int{{0, 2}, {1, 3}, {0, 3}, {1, 2}}

	const workers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		w := windows[i%len(windows)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.bookTrain(t, svc, st[w[0]], st[w[1]], model.ClassSleeper, "Ravi")
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Three berths, and every window needs segment 1.
	assert.Equal(t, 3, successes)
	assert.Equal(t, 0, e.segmentCounts(t, svc.ID, model.ClassSleeper)[1])
	e.requireConsistent(t, svc.ID)
}
