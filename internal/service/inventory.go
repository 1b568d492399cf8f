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
	"github.com/shiva/seatline/internal/model"
	"github.com/shiva/seatline/internal/ports"
	"github.com/shiva/seatline/pkg/segmask"
)

// ─── Layouts ────────────────────────────────────────────────

// Grid is a rows × columns seat block of one class (bus, flight).
type Grid struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// Bogies describes the coaches of one train class.
type Bogies struct {
	Count         int `json:"count"`
	SeatsPerBogie int `json:"seats_per_bogie"`
}

// Layout is the seat map of a new service. Bus and flight use Grids,
// trains use Bogies.
type Layout struct {
	Grids  map[model.SeatClass]Grid   `json:"grids,omitempty"`
	Bogies map[model.SeatClass]Bogies `json:"bogies,omitempty"`
}

var gridPrefix = map[model.SeatClass]string{
	model.ClassSleeper:        "S",
	model.ClassNonSleeper:     "N",
	model.ClassBusiness:       "",
	model.ClassPremiumEconomy: "P",
	model.ClassEconomy:        "E",
}

var bogieCode = map[model.SeatClass]string{
	model.ClassSleeper:  "SL",
	model.ClassSecondAC: "2A",
	model.ClassThirdAC:  "3A",
}

// ─── Inputs ─────────────────────────────────────────────────

type StopInput struct {
	StationID             uuid.UUID        `json:"station_id"`
	PriceToDestination    *decimal.Decimal `json:"price_to_destination,omitempty"`
	DurationToDestination *time.Duration   `json:"duration_to_destination,omitempty"`
}

type RouteInput struct {
	Name              string        `json:"name"`
	DistanceKM        float64       `json:"distance_km"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	Stops             []StopInput   `json:"stops"`
}

type ServiceInput struct {
	Kind           model.ServiceKind
	Name           string
	Number         string
	RouteID        uuid.UUID
	VehicleID      *uuid.UUID
	PolicyID       *uuid.UUID
	DepartureTime  time.Time
	ArrivalTime    time.Time
	BasePrice      decimal.Decimal
	ClassPrices    map[model.SeatClass]decimal.Decimal
	DynamicPricing bool
	DynamicFactor  float64
	Layout         Layout
}

// ServiceSummary is returned after provisioning a service.
type ServiceSummary struct {
	Service *model.Service          `json:"service"`
	Seats   map[model.SeatClass]int `json:"seats"`
}

// ─── InventoryService ───────────────────────────────────────

// InventoryService provisions stations, routes, policies, vehicles and
// services together with their seats and segments.
type InventoryService struct {
	store  ports.Store
	logger *logrus.Entry
}

func NewInventoryService(store ports.Store, logger *logrus.Logger) *InventoryService {
	return &InventoryService{store: store, logger: logger.WithField("component", "inventory")}
}

func (s *InventoryService) CreateStation(ctx context.Context, st model.Station) (*model.Station, error) {
	st.Name, st.Code = strings.TrimSpace(st.Name), strings.ToUpper(strings.TrimSpace(st.Code))
	if st.Name == "" {
		return nil, apperr.ValidationError{Field: "name", Msg: "required"}
	}
	if st.Code == "" {
		return nil, apperr.ValidationError{Field: "code", Msg: "required"}
	}
	st.ID = uuid.New()
	if err := s.store.InTx(ctx, func(tx ports.Tx) error { return tx.InsertStation(ctx, &st) }); err != nil {
		return nil, classifyError(err)
	}
	return &st, nil
}

// CreateRoute validates stop ordering and pricing before storing the route.
func (s *InventoryService) CreateRoute(ctx context.Context, in RouteInput) (*model.Route, error) {
	r := &model.Route{
		ID:                uuid.New(),
		Name:              in.Name,
		DistanceKM:        in.DistanceKM,
		EstimatedDuration: in.EstimatedDuration,
	}
	for i, st := range in.Stops {
		r.Stops = append(r.Stops, model.Stop{
			Order:                 i + 1,
			StationID:             st.StationID,
			PriceToDestination:    st.PriceToDestination,
			DurationToDestination: st.DurationToDestination,
		})
	}
	if err := r.Validate(); err != nil {
		return nil, apperr.ValidationError{Field: "stops", Msg: err.Error(), Err: err}
	}
	if err := s.store.InTx(ctx, func(tx ports.Tx) error { return tx.InsertRoute(ctx, r) }); err != nil {
		return nil, classifyError(err)
	}
	return r, nil
}

func (s *InventoryService) CreatePolicy(ctx context.Context, p model.Policy) (*model.Policy, error) {
	for field, v := range map[string]decimal.Decimal{
		"cancellation_fee":           p.CancellationFee,
		"reschedule_fee":             p.RescheduleFee,
		"no_show_penalty":            p.NoShowPenalty,
		"no_cancellation_fee_markup": p.NoCancellationMarkup,
		"no_reschedule_fee_markup":   p.NoRescheduleMarkup,
	} {
		if v.IsNegative() {
			return nil, apperr.ValidationError{Field: field, Msg: "must not be negative"}
		}
	}
	p.ID = uuid.New()
	if err := s.store.InTx(ctx, func(tx ports.Tx) error { return tx.InsertPolicy(ctx, &p) }); err != nil {
		return nil, classifyError(err)
	}
	return &p, nil
}

func (s *InventoryService) CreateVehicle(ctx context.Context, v model.Vehicle) (*model.Vehicle, error) {
	if strings.TrimSpace(v.RegistrationNo) == "" {
		return nil, apperr.ValidationError{Field: "registration_no", Msg: "required"}
	}
	v.ID = uuid.New()
	if err := s.store.InTx(ctx, func(tx ports.Tx) error { return tx.InsertVehicle(ctx, &v) }); err != nil {
		return nil, classifyError(err)
	}
	return &v, nil
}

// CreateService stores a service and generates its seats and, for trains,
// one segment row per leg and class with every seat free.
func (s *InventoryService) CreateService(ctx context.Context, in ServiceInput) (*ServiceSummary, error) {
	if err := validateServiceInput(in); err != nil {
		return nil, err
	}

	svc := &model.Service{
		ID:             uuid.New(),
		Kind:           in.Kind,
		Name:           in.Name,
		Number:         in.Number,
		RouteID:        in.RouteID,
		VehicleID:      in.VehicleID,
		DepartureTime:  in.DepartureTime,
		ArrivalTime:    in.ArrivalTime,
		Status:         model.ServiceScheduled,
		BasePrice:      in.BasePrice,
		ClassPrices:    in.ClassPrices,
		DynamicPricing: in.DynamicPricing,
		DynamicFactor:  in.DynamicFactor,
	}
	if in.PolicyID != nil {
		svc.Policy = &model.Policy{ID: *in.PolicyID}
	}

	counts := map[model.SeatClass]int{}
	err := s.store.InTx(ctx, func(tx ports.Tx) error {
		route, err := tx.GetRoute(ctx, in.RouteID)
		if err != nil {
			return err
		}
		if err := tx.InsertService(ctx, svc); err != nil {
			return fmt.Errorf("insert service: %w", err)
		}

		var seats []model.Seat
		if in.Kind == model.KindTrain {
			seats = TrainSeats(svc.ID, in.Layout.Bogies, route.SegmentCount())
		} else {
			seats = GridSeats(svc, in.Layout.Grids)
		}
		for _, seat := range seats {
			counts[seat.Class]++
		}
		if err := tx.InsertSeats(ctx, seats); err != nil {
			return fmt.Errorf("insert seats: %w", err)
		}

		if in.Kind != model.KindTrain {
			return nil
		}
		segments := make([]model.Segment, 0, route.SegmentCount())
		for i := 0; i < route.SegmentCount(); i++ {
			avail := make(map[model.SeatClass]int, len(counts))
			for _, c := range model.ClassesFor(model.KindTrain) {
				avail[c] = counts[c]
			}
			segments = append(segments, model.Segment{
				ServiceID:     svc.ID,
				Index:         i,
				FromStationID: route.Stops[i].StationID,
				ToStationID:   route.Stops[i+1].StationID,
				Available:     avail,
			})
		}
		if err := tx.InsertSegments(ctx, segments); err != nil {
			return fmt.Errorf("insert segments: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, classifyError(err)
	}

	s.logger.WithFields(logrus.Fields{
		"service_id": svc.ID,
		"kind":       svc.Kind,
		"seats":      counts,
	}).Info("service provisioned")
	return &ServiceSummary{Service: svc, Seats: counts}, nil
}

func validateServiceInput(in ServiceInput) error {
	if !in.Kind.Valid() {
		return apperr.ValidationError{Field: "kind", Msg: fmt.Sprintf("unknown kind %q", in.Kind)}
	}
	if in.RouteID == uuid.Nil {
		return apperr.ValidationError{Field: "route_id", Msg: "required"}
	}
	if !in.ArrivalTime.After(in.DepartureTime) {
		return apperr.ValidationError{Field: "arrival_time", Msg: "must be after departure_time"}
	}
	if in.BasePrice.IsNegative() {
		return apperr.ValidationError{Field: "base_price", Msg: "must not be negative"}
	}
	for c, p := range in.ClassPrices {
		if !c.ValidFor(in.Kind) {
			return apperr.ValidationError{Field: "class_prices", Msg: fmt.Sprintf("%s is not sold on %s services", c, in.Kind)}
		}
		if p.IsNegative() {
			return apperr.ValidationError{Field: "class_prices", Msg: fmt.Sprintf("%s price must not be negative", c)}
		}
	}
	if in.DynamicFactor < 0 {
		return apperr.ValidationError{Field: "dynamic_factor", Msg: "must not be negative"}
	}

	total := 0
	if in.Kind == model.KindTrain {
		ref := model.ReferenceClass(in.Kind)
		if p, ok := in.ClassPrices[ref]; !ok || !p.IsPositive() {
			return apperr.ValidationError{Field: "class_prices", Msg: fmt.Sprintf("%s price is required for trains", ref)}
		}
		for c, b := range in.Layout.Bogies {
			if !c.ValidFor(in.Kind) || b.Count < 0 || b.SeatsPerBogie < 0 {
				return apperr.ValidationError{Field: "layout.bogies", Msg: fmt.Sprintf("invalid %s bogies", c)}
			}
			total += b.Count * b.SeatsPerBogie
		}
	} else {
		for c, g := range in.Layout.Grids {
			if !c.ValidFor(in.Kind) || g.Rows < 0 || g.Cols < 0 || g.Cols > 26 {
				return apperr.ValidationError{Field: "layout.grids", Msg: fmt.Sprintf("invalid %s grid", c)}
			}
			total += g.Rows * g.Cols
		}
	}
	if total == 0 {
		return apperr.ValidationError{Field: "layout", Msg: "service must have at least one seat"}
	}
	return nil
}

// ─── Seat generation ────────────────────────────────────────
//
// Seat ids are version 7 uuids, so id order is creation order and
// auto-assignment walks seats in layout order.

func newSeatID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// GridSeats generates bus and flight seats: prefix + row + column letter,
// e.g. S1A (bus sleeper), N3D (bus seater), 2C (business), P4A, E12F.
func GridSeats(svc *model.Service, grids map[model.SeatClass]Grid) []model.Seat {
	var seats []model.Seat
	for _, class := range model.ClassesFor(svc.Kind) {
		g, ok := grids[class]
		if !ok {
			continue
		}
		price, _ := svc.FullRoutePrice(class)
		for r := 0; r < g.Rows; r++ {
			for c := 0; c < g.Cols; c++ {
				seats = append(seats, model.Seat{
					ID:        newSeatID(),
					ServiceID: svc.ID,
					Number:    fmt.Sprintf("%s%d%c", gridPrefix[class], r+1, 'A'+c),
					Class:     class,
					Price:     price,
				})
			}
		}
	}
	return seats
}

// TrainSeats generates train seats: class code + bogie + "-" + seat, e.g.
// SL1-12. Bogie numbers run across classes; every mask starts free.
func TrainSeats(serviceID uuid.UUID, bogies map[model.SeatClass]Bogies, segments int) []model.Seat {
	var seats []model.Seat
	bogieNumber := 0
	for _, class := range model.ClassesFor(model.KindTrain) {
		b, ok := bogies[class]
		if !ok {
			continue
		}
		for i := 0; i < b.Count; i++ {
			bogieNumber++
			for n := 1; n <= b.SeatsPerBogie; n++ {
				seats = append(seats, model.Seat{
					ID:        newSeatID(),
					ServiceID: serviceID,
					Number:    fmt.Sprintf("%s%d-%d", bogieCode[class], i+1, n),
					Class:     class,
					Bogie:     bogieNumber,
					Mask:      segmask.New(segments),
				})
			}
		}
	}
	return seats
}
