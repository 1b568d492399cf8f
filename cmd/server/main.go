package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shiva/seatline/config"
	"github.com/shiva/seatline/internal/events"
	"github.com/shiva/seatline/internal/handler"
	"github.com/shiva/seatline/internal/repository"
	"github.com/shiva/seatline/internal/service"
	"github.com/shiva/seatline/pkg/cache"
	"github.com/shiva/seatline/pkg/db"
	"github.com/shiva/seatline/pkg/logger"
)

func main() {
	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// ── Connect to PostgreSQL ───────────────────────────
	pgPool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	defer pgPool.Close()
	log.Info("✓ PostgreSQL connected")

	// ── Connect to Redis ────────────────────────────────
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Info("✓ Redis connected")

	// ── Booking events ──────────────────────────────────
	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := events.NewSaramaPublisher(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			log.Fatalf("failed to connect to Kafka: %v", err)
		}
		publisher = p
		log.WithField("brokers", cfg.Kafka.Brokers).Info("✓ Kafka connected")
	} else {
		log.Warn("KAFKA_BROKERS not set, booking events disabled")
	}
	defer publisher.Close()
	emitter := events.NewEmitter(publisher, cfg.Kafka.Topic, log)

	// ── Initialize layers ───────────────────────────────
	store := repository.NewStore(pgPool)
	availCache := repository.NewAvailabilityCache(redisClient, cfg.Booking.AvailabilityTTL)
	limiter := repository.NewRateLimiter(redisClient, cfg.Booking.RateLimit, cfg.Booking.RateWindow)
	pricing := service.NewPricingEngine(time.Now)

	bookingSvc := service.NewBookingService(store, pricing, availCache, emitter, log).WithTimeout(cfg.Booking.Timeout)
	paymentSvc := service.NewPaymentService(store, emitter, log).WithTimeout(cfg.Booking.Timeout)
	cancelSvc := service.NewCancelService(store, pricing, availCache, emitter, log).WithTimeout(cfg.Booking.Timeout)
	availabilitySvc := service.NewAvailabilityService(store, pricing, availCache, log)
	inventorySvc := service.NewInventoryService(store, log)

	if cfg.Booking.ReconcileInterval > 0 {
		go service.NewReconciler(store, availCache, log).RunBackground(ctx, cfg.Booking.ReconcileInterval)
	}

	// ── Setup router ────────────────────────────────────
	router := handler.NewRouter(handler.Router{
		Bookings:     handler.NewBookingHandler(bookingSvc, paymentSvc, limiter, log),
		Cancel:       handler.NewCancelHandler(cancelSvc, log),
		Availability: handler.NewAvailabilityHandler(availabilitySvc, log),
		Inventory:    handler.NewInventoryHandler(inventorySvc, log),
		Health: map[string]handler.HealthCheck{
			"postgres": func(ctx context.Context) error { return db.HealthCheck(ctx, pgPool) },
			"redis":    func(ctx context.Context) error { return cache.HealthCheck(ctx, redisClient) },
		},
		JWTSecret: []byte(cfg.Auth.JWTSecret),
		Logger:    log,
	})

	// ── Start HTTP server ───────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in a goroutine so we can listen for shutdown signals.
	go func() {
		log.Infof("🚀 Server listening on %s", cfg.Server.ServerAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// ── Graceful shutdown ───────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("⏳ Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Info("✅ Server gracefully stopped")
}
