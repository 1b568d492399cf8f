package handler

import (
	"context"
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/shiva/seatline/internal/middleware"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// Health returns an HTTP handler that runs every check. Any failure turns
// the response into 503 "degraded".
func Health(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Services: make(map[string]string, len(checks)),
		}
		for _, name := range names {
			if err := checks[name](r.Context()); err != nil {
				resp.Status = "degraded"
				resp.Services[name] = "unhealthy: " + err.Error()
			} else {
				resp.Services[name] = "healthy"
			}
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

// Router bundles everything NewRouter mounts.
type Router struct {
	Bookings     *BookingHandler
	Cancel       *CancelHandler
	Availability *AvailabilityHandler
	Inventory    *InventoryHandler
	Health       map[string]HealthCheck
	JWTSecret    []byte
	Logger       *logrus.Logger
}

// NewRouter builds the API:
//
//	GET  /health
//	POST /api/v1/bookings                         (auth, rate limited)
//	GET  /api/v1/bookings/{id}                    (auth)
//	POST /api/v1/bookings/{id}/cancel             (auth)
//	POST /api/v1/bookings/{id}/payment
//	GET  /api/v1/bookings/{id}/ticket
//	GET  /api/v1/services/{kind}/{id}/availability
//	GET  /api/v1/services/train/{id}/fare
//	POST /api/v1/stations | routes | policies | vehicles | services
func NewRouter(rt Router) http.Handler {
	router := mux.NewRouter()

	// Health check endpoint.
	router.HandleFunc("/health", Health(rt.Health)).Methods(http.MethodGet)

	// API v1 routes.
	api := router.PathPrefix("/api/v1").Subrouter()

	// Customer routes.
	authed := api.NewRoute().Subrouter()
	authed.Use(middleware.Authenticate(rt.JWTSecret))
	authed.HandleFunc("/bookings", rt.Bookings.CreateBooking).Methods(http.MethodPost)
	authed.HandleFunc("/bookings/{id}", rt.Bookings.GetBooking).Methods(http.MethodGet)
	authed.HandleFunc("/bookings/{id}/cancel", rt.Cancel.CancelBooking).Methods(http.MethodPost)

	// Payment collaborator and ticket lookup.
	api.HandleFunc("/bookings/{id}/payment", rt.Bookings.ConfirmPayment).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/ticket", rt.Bookings.GetTicket).Methods(http.MethodGet)

	// Advisory reads.
	api.HandleFunc("/services/train/{id}/fare", rt.Availability.QuoteFare).Methods(http.MethodGet)
	api.HandleFunc("/services/{kind}/{id}/availability", rt.Availability.Availability).Methods(http.MethodGet)

	// Provisioning.
	api.HandleFunc("/stations", rt.Inventory.CreateStation).Methods(http.MethodPost)
	api.HandleFunc("/routes", rt.Inventory.CreateRoute).Methods(http.MethodPost)
	api.HandleFunc("/policies", rt.Inventory.CreatePolicy).Methods(http.MethodPost)
	api.HandleFunc("/vehicles", rt.Inventory.CreateVehicle).Methods(http.MethodPost)
	api.HandleFunc("/services", rt.Inventory.CreateService).Methods(http.MethodPost)

	var h http.Handler = router
	h = middleware.CORS(h)
	h = middleware.Recoverer(rt.Logger)(h)
	h = middleware.RequestLogger(rt.Logger)(h)
	h = middleware.RequestID(h)
	return h
}
