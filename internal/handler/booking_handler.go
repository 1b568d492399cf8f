package handler

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/shiva/seatline/internal/model"
	"github.com/shiva/seatline/internal/ports"
	"github.com/shiva/seatline/internal/service"
)

// CreateBookingRequest is the JSON body for POST /api/v1/bookings.
type CreateBookingRequest struct {
	ServiceKind              model.ServiceKind        `json:"service_kind" validate:"required,oneof=bus train flight"`
	ServiceID                uuid.UUID                `json:"service_id" validate:"required"`
	Class                    model.SeatClass          `json:"class,omitempty"`
	Passengers               []service.PassengerInput `json:"passengers" validate:"required,min=1,max=10,dive"`
	FromStationID            *uuid.UUID               `json:"from_station_id,omitempty"`
	ToStationID              *uuid.UUID               `json:"to_station_id,omitempty"`
	NoCancellationFreeMarkup bool                     `json:"no_cancellation_free_markup"`
	NoRescheduleFreeMarkup   bool                     `json:"no_reschedule_free_markup"`
	Email                    string                   `json:"email,omitempty" validate:"omitempty,email"`
	Phone                    string                   `json:"phone,omitempty" validate:"omitempty,max=20"`
}

// ConfirmPaymentRequest is the JSON body for POST /api/v1/bookings/{id}/payment.
type ConfirmPaymentRequest struct {
	Method string           `json:"method" validate:"required,max=50"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// BookingHandler handles booking, payment and ticket HTTP requests.
type BookingHandler struct {
	bookings *service.BookingService
	payments *service.PaymentService
	limiter  ports.RateLimiter
	log      *logrus.Entry
}

// NewBookingHandler creates a new booking handler. limiter may be nil.
func NewBookingHandler(
	bookings *service.BookingService,
	payments *service.PaymentService,
	limiter ports.RateLimiter,
	logger *logrus.Logger,
) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		payments: payments,
		limiter:  limiter,
		log:      logger.WithField("component", "handler"),
	}
}

// CreateBooking handles POST /api/v1/bookings
//
// Reserves seats for every passenger in one transaction. The customer comes
// from the bearer token.
//
// Response codes:
//
//	201: Booking created (Pending, awaiting payment)
//	400: Invalid body or unpriceable class
//	404: Service, station or seat not found
//	409: Seat taken, not enough seats, or service busy
//	429: Too many booking attempts
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	customer, ok := customerID(w, r)
	if !ok {
		return
	}

	if h.limiter != nil {
		allowed, retryAfter, err := h.limiter.Allow(r.Context(), "booking:"+customer.String())
		if err != nil {
			// Fail open when Redis is unavailable.
			h.log.WithError(err).Warn("rate limiter unavailable")
		} else if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds()+0.999)))
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Error:   "rate_limited",
				Message: "Too many booking attempts. Please retry later.",
			})
			return
		}
	}

	var req CreateBookingRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	result, err := h.bookings.CreateBooking(r.Context(), service.CreateBookingRequest{
		CustomerID:           customer,
		ServiceKind:          req.ServiceKind,
		ServiceID:            req.ServiceID,
		Class:                req.Class,
		Passengers:           req.Passengers,
		FromStationID:        req.FromStationID,
		ToStationID:          req.ToStationID,
		NoCancellationMarkup: req.NoCancellationFreeMarkup,
		NoRescheduleMarkup:   req.NoRescheduleFreeMarkup,
		Email:                req.Email,
		Phone:                req.Phone,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// GetBooking handles GET /api/v1/bookings/{id}
//
// Returns the booking with its passengers and status log. Bookings of other
// customers are reported as not found.
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	customer, ok := customerID(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	details, err := h.bookings.GetBooking(r.Context(), id, customer)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// GetTicket handles GET /api/v1/bookings/{id}/ticket
//
// 404 until payment has been confirmed.
func (h *BookingHandler) GetTicket(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	ticket, err := h.bookings.GetTicket(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// ConfirmPayment handles POST /api/v1/bookings/{id}/payment
//
// Called by the payment collaborator once the charge has succeeded. Moves
// the booking to Confirmed/Paid and issues the ticket.
//
// Response codes:
//
//	200: Payment recorded, ticket issued
//	400: Missing method or amount mismatch
//	404: Booking not found
//	409: Booking is not awaiting payment
func (h *BookingHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req ConfirmPaymentRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	result, err := h.payments.ConfirmPayment(r.Context(), service.ConfirmPaymentRequest{
		BookingID: id,
		Method:    req.Method,
		Amount:    req.Amount,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
