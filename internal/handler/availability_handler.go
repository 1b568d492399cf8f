package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/shiva/seatline/internal/apperr"
	"github.com/shiva/seatline/internal/model"
	"github.com/shiva/seatline/internal/service"
)

// AvailabilityHandler serves advisory, lock-free availability and fares.
// Figures may be stale by the time a booking is attempted.
type AvailabilityHandler struct {
	availability *service.AvailabilityService
	log          *logrus.Entry
}

// NewAvailabilityHandler creates a new availability handler.
func NewAvailabilityHandler(availability *service.AvailabilityService, logger *logrus.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{availability: availability, log: logger.WithField("component", "handler")}
}

// Availability handles GET /api/v1/services/{kind}/{id}/availability
//
// Optional ?from=&to= station ids narrow a train query to that window.
func (h *AvailabilityHandler) Availability(w http.ResponseWriter, r *http.Request) {
	kind := model.ServiceKind(mux.Vars(r)["kind"])
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	from, err := queryUUID(r, "from")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	to, err := queryUUID(r, "to")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	avail, err := h.availability.Availability(r.Context(), kind, id, from, to)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

// QuoteFare handles GET /api/v1/services/train/{id}/fare?from=&to=&class=
func (h *AvailabilityHandler) QuoteFare(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	from, err := queryUUID(r, "from")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	to, err := queryUUID(r, "to")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if from == nil || to == nil {
		writeError(w, r, h.log, apperr.ValidationError{Field: "from", Msg: "from and to are required"})
		return
	}
	class := model.SeatClass(r.URL.Query().Get("class"))
	if class == "" {
		writeError(w, r, h.log, apperr.ValidationError{Field: "class", Msg: "required"})
		return
	}

	quote, err := h.availability.QuoteFare(r.Context(), id, *from, *to, class)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}
