// Package model contains domain models for the seat inventory and booking engine.
// These structs map to the PostgreSQL schema defined in migrations/001_create_schema.up.sql.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shiva/seatline/pkg/segmask"
)

// ─── Enums ──────────────────────────────────────────────────

type ServiceKind string

const (
	KindBus    ServiceKind = "bus"
	KindTrain  ServiceKind = "train"
	KindFlight ServiceKind = "flight"
)

// Valid reports whether k is one of the three supported service kinds.
func (k ServiceKind) Valid() bool {
	switch k {
	case KindBus, KindTrain, KindFlight:
		return true
	}
	return false
}

type ServiceStatus string

const (
	ServiceScheduled ServiceStatus = "Scheduled"
	ServiceActive    ServiceStatus = "Active"
	ServiceCancelled ServiceStatus = "Cancelled"
)

type SeatClass string

const (
	ClassSleeper        SeatClass = "Sleeper"
	ClassNonSleeper     SeatClass = "NonSleeper"
	ClassSecondAC       SeatClass = "SecondAC"
	ClassThirdAC        SeatClass = "ThirdAC"
	ClassBusiness       SeatClass = "Business"
	ClassPremiumEconomy SeatClass = "PremiumEconomy"
	ClassEconomy        SeatClass = "Economy"
)

var kindClasses = map[ServiceKind][]SeatClass{
	KindBus:    {ClassSleeper, ClassNonSleeper},
	KindTrain:  {ClassSleeper, ClassSecondAC, ClassThirdAC},
	KindFlight: {ClassBusiness, ClassPremiumEconomy, ClassEconomy},
}

// ClassesFor returns the seat classes a service kind sells, in display order.
func ClassesFor(kind ServiceKind) []SeatClass {
	return kindClasses[kind]
}

// ValidFor reports whether c is sold on services of the given kind.
func (c SeatClass) ValidFor(kind ServiceKind) bool {
	for _, k := range kindClasses[kind] {
		if k == c {
			return true
		}
	}
	return false
}

// ReferenceClass is the class whose price is used for full-route pricing.
func ReferenceClass(kind ServiceKind) SeatClass {
	if kind == KindFlight {
		return ClassEconomy
	}
	return ClassSleeper
}

type BookingStatus string

const (
	BookingPending   BookingStatus = "Pending"
	BookingConfirmed BookingStatus = "Confirmed"
	BookingCancelled BookingStatus = "Cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "Pending"
	PaymentPaid     PaymentStatus = "Paid"
	PaymentRefunded PaymentStatus = "Refunded"
)

type TransactionStatus string

const (
	TransactionSuccess TransactionStatus = "Success"
	TransactionFailed  TransactionStatus = "Failed"
)

type RefundStatus string

const (
	RefundPending   RefundStatus = "Pending"
	RefundCompleted RefundStatus = "Completed"
	RefundFailed    RefundStatus = "Failed"
)

// ─── Catalog ────────────────────────────────────────────────

// Station is immutable once referenced by a route.
type Station struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Code string    `json:"code"`
	City string    `json:"city"`
}

type Vehicle struct {
	ID             uuid.UUID `json:"id"`
	RegistrationNo string    `json:"registration_no"`
	Model          string    `json:"model"`
	Capacity       int       `json:"capacity"`
	Amenities      []string  `json:"amenities,omitempty"`
}

// Policy holds cancellation and reschedule terms. Markups are fractions
// (0.10 adds 10%).
type Policy struct {
	ID                      uuid.UUID       `json:"id"`
	Name                    string          `json:"name"`
	CancellationWindowHours int             `json:"cancellation_window_hours"`
	CancellationFee         decimal.Decimal `json:"cancellation_fee"`
	RescheduleAllowed       bool            `json:"reschedule_allowed"`
	RescheduleFee           decimal.Decimal `json:"reschedule_fee"`
	NoShowPenalty           decimal.Decimal `json:"no_show_penalty"`
	NoCancellationMarkup    decimal.Decimal `json:"no_cancellation_fee_markup"`
	NoRescheduleMarkup      decimal.Decimal `json:"no_reschedule_fee_markup"`
}

// Service is a single scheduled bus, train or flight.
type Service struct {
	ID             uuid.UUID                     `json:"id"`
	Kind           ServiceKind                   `json:"kind"`
	Name           string                        `json:"name"`
	Number         string                        `json:"number"`
	RouteID        uuid.UUID                     `json:"route_id"`
	VehicleID      *uuid.UUID                    `json:"vehicle_id,omitempty"`
	Policy         *Policy                       `json:"policy,omitempty"`
	DepartureTime  time.Time                     `json:"departure_time"`
	ArrivalTime    time.Time                     `json:"arrival_time"`
	Status         ServiceStatus                 `json:"status"`
	BasePrice      decimal.Decimal               `json:"base_price"`
	ClassPrices    map[SeatClass]decimal.Decimal `json:"class_prices"`
	DynamicPricing bool                          `json:"dynamic_pricing_enabled"`
	DynamicFactor  float64                       `json:"dynamic_factor"`
}

// FullRoutePrice returns the full-route price for class. Flat services fall
// back to the base price when the class has no explicit price.
func (s *Service) FullRoutePrice(class SeatClass) (decimal.Decimal, bool) {
	if p, ok := s.ClassPrices[class]; ok {
		return p, true
	}
	if s.Kind != KindTrain && s.BasePrice.IsPositive() {
		return s.BasePrice, true
	}
	return decimal.Zero, false
}

// ─── Capacity ───────────────────────────────────────────────

// Seat is a sellable seat. Bus and flight seats use Booked and Price; train
// seats use Bogie and Mask.
type Seat struct {
	ID          uuid.UUID       `json:"id"`
	ServiceID   uuid.UUID       `json:"service_id"`
	Number      string          `json:"seat_number"`
	Class       SeatClass       `json:"class"`
	Bogie       int             `json:"bogie_number,omitempty"`
	Booked      bool            `json:"is_booked"`
	Price       decimal.Decimal `json:"price"`
	Mask        segmask.Mask    `json:"availability_mask"`
	PassengerID *uuid.UUID      `json:"passenger_id,omitempty"`
}

// Segment is the aggregate for one leg of a train route: the number of
// seats per class whose mask bit at Index is clear.
type Segment struct {
	ServiceID     uuid.UUID         `json:"service_id"`
	Index         int               `json:"segment_index"`
	FromStationID uuid.UUID         `json:"from_station_id"`
	ToStationID   uuid.UUID         `json:"to_station_id"`
	Available     map[SeatClass]int `json:"available"`
}

// Clone returns a copy with its own Available map.
func (s Segment) Clone() Segment {
	out := s
	out.Available = make(map[SeatClass]int, len(s.Available))
	for k, v := range s.Available {
		out.Available[k] = v
	}
	return out
}

// Journey is a resolved window on a route: segments [Start, End).
// Flat services always book the single window [0, 1).
type Journey struct {
	FromStationID *uuid.UUID `json:"from_station_id,omitempty"`
	ToStationID   *uuid.UUID `json:"to_station_id,omitempty"`
	Start         int        `json:"start"`
	End           int        `json:"end"`
}

// ─── Booking ────────────────────────────────────────────────

type Booking struct {
	ID                   uuid.UUID       `json:"id"`
	CustomerID           uuid.UUID       `json:"customer_id"`
	ServiceKind          ServiceKind     `json:"service_kind"`
	ServiceID            uuid.UUID       `json:"service_id"`
	Status               BookingStatus   `json:"status"`
	PaymentStatus        PaymentStatus   `json:"payment_status"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	FromStationID        *uuid.UUID      `json:"from_station_id,omitempty"`
	ToStationID          *uuid.UUID      `json:"to_station_id,omitempty"`
	Class                SeatClass       `json:"class,omitempty"`
	NoCancellationMarkup bool            `json:"no_cancellation_free_markup"`
	NoRescheduleMarkup   bool            `json:"no_reschedule_free_markup"`
	Email                string          `json:"email,omitempty"`
	Phone                string          `json:"phone,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

type Passenger struct {
	ID         uuid.UUID `json:"id"`
	BookingID  uuid.UUID `json:"booking_id"`
	Name       string    `json:"name"`
	Age        *int      `json:"age,omitempty"`
	Gender     string    `json:"gender,omitempty"`
	SeatNumber string    `json:"seat_number"`
	DocumentID string    `json:"document_id,omitempty"`
}

// StatusLog is an append-only audit entry for a booking.
type StatusLog struct {
	ID        uuid.UUID `json:"id"`
	BookingID uuid.UUID `json:"booking_id"`
	Status    string    `json:"status"`
	Remarks   string    `json:"remarks,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type PaymentTransaction struct {
	ID         uuid.UUID         `json:"id"`
	BookingID  uuid.UUID         `json:"booking_id"`
	CustomerID uuid.UUID         `json:"customer_id"`
	Amount     decimal.Decimal   `json:"amount"`
	Method     string            `json:"method"`
	Status     TransactionStatus `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Refund is created Pending on cancellation of a paid booking; the payment
// collaborator finalizes it.
type Refund struct {
	ID            uuid.UUID       `json:"id"`
	TransactionID *uuid.UUID      `json:"transaction_id,omitempty"`
	BookingID     uuid.UUID       `json:"booking_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	Status        RefundStatus    `json:"status"`
	InitiatedAt   time.Time       `json:"initiated_at"`
}

type Ticket struct {
	ID        uuid.UUID `json:"id"`
	BookingID uuid.UUID `json:"booking_id"`
	Number    string    `json:"ticket_no"`
	IssuedAt  time.Time `json:"issued_at"`
}
