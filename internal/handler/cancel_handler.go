package handler

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/shiva/seatline/internal/service"
)

// CancelBookingRequest is the optional JSON body for
// POST /api/v1/bookings/{id}/cancel.
type CancelBookingRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// CancelHandler handles booking cancellation HTTP requests.
type CancelHandler struct {
	cancelSvc *service.CancelService
	log       *logrus.Entry
}

// NewCancelHandler creates a new cancel handler.
func NewCancelHandler(cancelSvc *service.CancelService, logger *logrus.Logger) *CancelHandler {
	return &CancelHandler{cancelSvc: cancelSvc, log: logger.WithField("component", "handler")}
}

// CancelBooking handles POST /api/v1/bookings/{id}/cancel
//
// Cancels the caller's booking, releases its seats and, for a paid booking,
// opens a refund.
//
// Response codes:
//
//	200: Cancelled (release_remark is set if seats could not be released)
//	400: Invalid id or body
//	404: Booking not found
//	409: Booking already cancelled, or service busy
func (h *CancelHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	customer, ok := customerID(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req CancelBookingRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	result, err := h.cancelSvc.CancelBooking(r.Context(), service.CancelRequest{
		BookingID:  id,
		CustomerID: customer,
		Reason:     req.Reason,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
