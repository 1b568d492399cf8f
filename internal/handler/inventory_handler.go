package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/shiva/seatline/internal/model"
	"github.com/shiva/seatline/internal/service"
)

// ─── Request DTOs ───────────────────────────────────────────

// CreateStationRequest is the JSON body for POST /api/v1/stations.
type CreateStationRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Code string `json:"code" validate:"required,max=10"`
	City string `json:"city,omitempty" validate:"max=200"`
}

// RouteStopRequest is one stop of CreateRouteRequest, in travel order.
type RouteStopRequest struct {
	StationID                    uuid.UUID        `json:"station_id" validate:"required"`
	PriceToDestination           *decimal.Decimal `json:"price_to_destination,omitempty"`
	DurationToDestinationMinutes *int             `json:"duration_to_destination_minutes,omitempty" validate:"omitempty,gte=0"`
}

// CreateRouteRequest is the JSON body for POST /api/v1/routes.
type CreateRouteRequest struct {
	Name                     string             `json:"name" validate:"required"`
	DistanceKM               float64            `json:"distance_km" validate:"gte=0"`
	EstimatedDurationMinutes int                `json:"estimated_duration_minutes" validate:"gte=0"`
	Stops                    []RouteStopRequest `json:"stops" validate:"required,min=2,dive"`
}

// CreatePolicyRequest is the JSON body for POST /api/v1/policies. Markups
// are fractions: 0.1 adds 10%.
type CreatePolicyRequest struct {
	Name                    string          `json:"name" validate:"required"`
	CancellationWindowHours int             `json:"cancellation_window_hours" validate:"gte=0"`
	CancellationFee         decimal.Decimal `json:"cancellation_fee"`
	RescheduleAllowed       bool            `json:"reschedule_allowed"`
	RescheduleFee           decimal.Decimal `json:"reschedule_fee"`
	NoShowPenalty           decimal.Decimal `json:"no_show_penalty"`
	NoCancellationMarkup    decimal.Decimal `json:"no_cancellation_fee_markup"`
	NoRescheduleMarkup      decimal.Decimal `json:"no_reschedule_fee_markup"`
}

// CreateVehicleRequest is the JSON body for POST /api/v1/vehicles.
type CreateVehicleRequest struct {
	RegistrationNo string   `json:"registration_no" validate:"required"`
	Model          string   `json:"model,omitempty"`
	Capacity       int      `json:"capacity" validate:"gte=0"`
	Amenities      []string `json:"amenities,omitempty"`
}

// CreateServiceRequest is the JSON body for POST /api/v1/services.
type CreateServiceRequest struct {
	Kind           model.ServiceKind                   `json:"kind" validate:"required,oneof=bus train flight"`
	Name           string                              `json:"name" validate:"required"`
	Number         string                              `json:"number,omitempty"`
	RouteID        uuid.UUID                           `json:"route_id" validate:"required"`
	VehicleID      *uuid.UUID                          `json:"vehicle_id,omitempty"`
	PolicyID       *uuid.UUID                          `json:"policy_id,omitempty"`
	DepartureTime  time.Time                           `json:"departure_time" validate:"required"`
	ArrivalTime    time.Time                           `json:"arrival_time" validate:"required,gtfield=DepartureTime"`
	BasePrice      decimal.Decimal                     `json:"base_price"`
	ClassPrices    map[model.SeatClass]decimal.Decimal `json:"class_prices,omitempty"`
	DynamicPricing bool                                `json:"dynamic_pricing_enabled"`
	DynamicFactor  float64                             `json:"dynamic_factor" validate:"gte=0"`
	Layout         service.Layout                      `json:"layout"`
}

// ─── InventoryHandler ───────────────────────────────────────

// InventoryHandler provisions stations, routes, policies, vehicles and
// services.
type InventoryHandler struct {
	inventory *service.InventoryService
	log       *logrus.Entry
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(inventory *service.InventoryService, logger *logrus.Logger) *InventoryHandler {
	return &InventoryHandler{inventory: inventory, log: logger.WithField("component", "handler")}
}

// CreateStation handles POST /api/v1/stations
//
//	{"name": "Mumbai Central", "code": "MMCT", "city": "Mumbai"}
func (h *InventoryHandler) CreateStation(w http.ResponseWriter, r *http.Request) {
	var req CreateStationRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	st, err := h.inventory.CreateStation(r.Context(), model.Station{Name: req.Name, Code: req.Code, City: req.City})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// CreateRoute handles POST /api/v1/routes
//
//	{
//	  "name": "MMCT-ADI",
//	  "stops": [
//	    {"station_id": "...", "price_to_destination": "300"},
//	    {"station_id": "...", "price_to_destination": "100"},
//	    {"station_id": "...", "price_to_destination": "0"}
//	  ]
//	}
func (h *InventoryHandler) CreateRoute(w http.ResponseWriter, r *http.Request) {
	var req CreateRouteRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	in := service.RouteInput{
		Name:              req.Name,
		DistanceKM:        req.DistanceKM,
		EstimatedDuration: time.Duration(req.EstimatedDurationMinutes) * time.Minute,
	}
	for _, s := range req.Stops {
		stop := service.StopInput{StationID: s.StationID, PriceToDestination: s.PriceToDestination}
		if s.DurationToDestinationMinutes != nil {
			d := time.Duration(*s.DurationToDestinationMinutes) * time.Minute
			stop.DurationToDestination = &d
		}
		in.Stops = append(in.Stops, stop)
	}

	route, err := h.inventory.CreateRoute(r.Context(), in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, route)
}

// CreatePolicy handles POST /api/v1/policies
func (h *InventoryHandler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req CreatePolicyRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	p, err := h.inventory.CreatePolicy(r.Context(), model.Policy{
		Name:                    req.Name,
		CancellationWindowHours: req.CancellationWindowHours,
		CancellationFee:         req.CancellationFee,
		RescheduleAllowed:       req.RescheduleAllowed,
		RescheduleFee:           req.RescheduleFee,
		NoShowPenalty:           req.NoShowPenalty,
		NoCancellationMarkup:    req.NoCancellationMarkup,
		NoRescheduleMarkup:      req.NoRescheduleMarkup,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// CreateVehicle handles POST /api/v1/vehicles
func (h *InventoryHandler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	var req CreateVehicleRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	v, err := h.inventory.CreateVehicle(r.Context(), model.Vehicle{
		RegistrationNo: req.RegistrationNo,
		Model:          req.Model,
		Capacity:       req.Capacity,
		Amenities:      req.Amenities,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// CreateService handles POST /api/v1/services
//
// Creates the service and generates its seats (and train segments) in one
// transaction.
func (h *InventoryHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req CreateServiceRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	summary, err := h.inventory.CreateService(r.Context(), service.ServiceInput{
		Kind:           req.Kind,
		Name:           req.Name,
		Number:         req.Number,
		RouteID:        req.RouteID,
		VehicleID:      req.VehicleID,
		PolicyID:       req.PolicyID,
		DepartureTime:  req.DepartureTime,
		ArrivalTime:    req.ArrivalTime,
		BasePrice:      req.BasePrice,
		ClassPrices:    req.ClassPrices,
		DynamicPricing: req.DynamicPricing,
		DynamicFactor:  req.DynamicFactor,
		Layout:         req.Layout,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}
