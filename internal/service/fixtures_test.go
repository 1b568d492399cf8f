package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/shiva/seatline/internal/model"
	"github.com/shiva/seatline/internal/ports"
	"github.com/shiva/seatline/internal/repository/memstore"
)

var testNow = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// env bundles a memstore with every engine built on it.
type env struct {
	store     *memstore.Store
	pricing   *PricingEngine
	inventory *InventoryService
	booking   *BookingService
	cancel    *CancelService
	payment   *PaymentService
	customer  uuid.UUID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memstore.New()
	logger := quietLogger()
	pricing := NewPricingEngine(func() time.Time { return testNow })
	return &env{
		store:     store,
		pricing:   pricing,
		inventory: NewInventoryService(store, logger),
		booking:   NewBookingService(store, pricing, nil, nil, logger),
		cancel:    NewCancelService(store, pricing, nil, nil, logger),
		payment:   NewPaymentService(store, nil, logger),
		customer:  uuid.New(),
	}
}

// stations creates n stations named S0..Sn-1.
func (e *env) stations(t *testing.T, n int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, n)
	for i := range ids {
		st, err := e.inventory.CreateStation(context.Background(), model.Station{
			Name: "Station " + string(rune('A'+i)),
			Code: "ST" + uuid.NewString()[:8],
			City: "City",
		})
		require.NoError(t, err)
		ids[i] = st.ID
	}
	return ids
}

// route creates a route over stations. prices[i] is stop i's
// price_to_destination; "" leaves it unset.
func (e *env) route(t *testing.T, stations []uuid.UUID, prices ...string) *model.Route {
	t.Helper()
	in := RouteInput{Name: "test route", DistanceKM: 100, EstimatedDuration: 5 * time.Hour}
	for i, id := range stations {
		stop := StopInput{StationID: id}
		if i < len(prices) && prices[i] != "" {
			stop.PriceToDestination = decPtr(prices[i])
		}
		in.Stops = append(in.Stops, stop)
	}
	r, err := e.inventory.CreateRoute(context.Background(), in)
	require.NoError(t, err)
	return r
}

// train provisions a train with sleeperSeats Sleeper seats in one bogie and
// a Sleeper full-route price of 300.
func (e *env) train(t *testing.T, route *model.Route, sleeperSeats int) *model.Service {
	t.Helper()
	sum, err := e.inventory.CreateService(context.Background(), ServiceInput{
		Kind:          model.KindTrain,
		Name:          "Test Express",
		Number:        "12345",
		RouteID:       route.ID,
		DepartureTime: testNow.Add(48 * time.Hour),
		ArrivalTime:   testNow.Add(53 * time.Hour),
		ClassPrices: map[model.SeatClass]decimal.Decimal{
			model.ClassSleeper:  dec("300"),
			model.ClassSecondAC: dec("600"),
		},
		Layout: Layout{Bogies: map[model.SeatClass]Bogies{
			model.ClassSleeper:  {Count: 1, SeatsPerBogie: sleeperSeats},
			model.ClassSecondAC: {Count: 1, SeatsPerBogie: 2},
		}},
	})
	require.NoError(t, err)
	return sum.Service
}

// flatService stores a bus or flight with the given seats inserted as-is.
func (e *env) flatService(t *testing.T, kind model.ServiceKind, policy *model.Policy, seats ...model.Seat) *model.Service {
	t.Helper()
	ids := e.stations(t, 2)
	r := e.route(t, ids, "500", "0")
	svc := &model.Service{
		ID:            uuid.New(),
		Kind:          kind,
		Name:          "Flat",
		RouteID:       r.ID,
		Policy:        policy,
		DepartureTime: testNow.Add(24 * time.Hour),
		ArrivalTime:   testNow.Add(30 * time.Hour),
		Status:        model.ServiceScheduled,
		BasePrice:     dec("500"),
	}
	for i := range seats {
		seats[i].ID = uuid.Must(uuid.NewV7())
		seats[i].ServiceID = svc.ID
	}
	err := e.store.InTx(context.Background(), func(tx ports.Tx) error {
		if policy != nil {
			if err := tx.InsertPolicy(context.Background(), policy); err != nil {
				return err
			}
		}
		if err := tx.InsertService(context.Background(), svc); err != nil {
			return err
		}
		return tx.InsertSeats(context.Background(), seats)
	})
	require.NoError(t, err)
	return svc
}

func (e *env) bookTrain(t *testing.T, svc *model.Service, from, to uuid.UUID, class model.SeatClass, names ...string) (*BookingResult, error) {
	t.Helper()
	req := CreateBookingRequest{
		CustomerID:    e.customer,
		ServiceKind:   model.KindTrain,
		ServiceID:     svc.ID,
		Class:         class,
		FromStationID: &from,
		ToStationID:   &to,
	}
	for _, n := range names {
		req.Passengers = append(req.Passengers, PassengerInput{Name: n})
	}
	return e.booking.CreateBooking(context.Background(), req)
}

func (e *env) segmentCounts(t *testing.T, serviceID uuid.UUID, class model.SeatClass) []int {
	t.Helper()
	segs, err := e.store.ListSegments(context.Background(), serviceID)
	require.NoError(t, err)
	out := make([]int, len(segs))
	for i, s := range segs {
		out[i] = s.Available[class]
	}
	return out
}

// requireConsistent checks that every segment counter equals the number of
// seats of its class whose mask bit is clear.
func (e *env) requireConsistent(t *testing.T, serviceID uuid.UUID) {
	t.Helper()
	segs, err := e.store.ListSegments(context.Background(), serviceID)
	require.NoError(t, err)
	seats := e.store.Seats(serviceID)
	for _, seg := range segs {
		for _, class := range model.ClassesFor(model.KindTrain) {
			free := 0
			for _, s := range seats {
				if s.Class == class && !s.Mask.Test(seg.Index) {
					free++
				}
			}
			require.Equalf(t, free, seg.Available[class], "segment %d class %s", seg.Index, class)
		}
	}
}
