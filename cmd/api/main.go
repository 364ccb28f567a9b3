package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/baytaljazeera/eliteslots/internal/app"
	"github.com/baytaljazeera/eliteslots/internal/clock"
	"github.com/baytaljazeera/eliteslots/internal/config"
	"github.com/baytaljazeera/eliteslots/internal/events"
	"github.com/baytaljazeera/eliteslots/internal/obs"
	"github.com/baytaljazeera/eliteslots/internal/storage/postgres"
	transporthttp "github.com/baytaljazeera/eliteslots/internal/transport/http"
	"github.com/baytaljazeera/eliteslots/migrations"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startupCtx, cancel := context.WithTimeout(stopCtx, cfg.ShutdownTimeout)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect to db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Error("db ping", "error", err)
		os.Exit(1)
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.Error("apply migrations", "error", err)
		os.Exit(1)
	}

	metrics := obs.NewMetrics(nil)
	clk := clock.NewSystem()

	// An empty REDIS_ADDR keeps everything in process; freed-slot events
	// then flow through a buffered channel instead of a Redis list.
	var bus events.Publisher
	var chanBus *events.ChanBus
	var redisBus *events.RedisBus
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		if err := client.Ping(startupCtx).Err(); err != nil {
			logger.Error("redis ping", "error", err)
			os.Exit(1)
		}
		redisBus = events.NewRedisBus(client, logger)
		bus = redisBus
	} else {
		chanBus = events.NewChanBus(256, logger)
		bus = chanBus
	}

	reservationRepo := postgres.NewReservationRepository(pool)
	reservationSvc := app.NewReservationService(reservationRepo, clk, bus,
		app.WithHoldTTL(cfg.HoldTTL),
		app.WithTaxRate(cfg.TaxRate),
		app.WithReservationMetrics(metrics),
		app.WithReservationLogger(logger),
	)

	periodRepo := postgres.NewPeriodRepository(pool)
	periodSvc := app.NewPeriodService(periodRepo, clk,
		app.WithPeriodLength(cfg.PeriodLength),
	)

	catalogRepo := postgres.NewCatalogRepository(pool)
	catalogSvc := app.NewCatalogService(catalogRepo)

	waitlistRepo := postgres.NewWaitlistRepository(pool)
	waitlistSvc := app.NewWaitlistService(waitlistRepo, reservationSvc, clk, bus,
		app.WithOfferTTL(cfg.OfferTTL),
		app.WithWaitlistMetrics(metrics),
		app.WithWaitlistLogger(logger),
	)

	extensionRepo := postgres.NewExtensionRepository(pool)
	extensionSvc := app.NewExtensionService(extensionRepo, clk,
		app.WithExtensionTaxRate(cfg.TaxRate),
		app.WithAutoApprove(cfg.ExtensionAutoOK),
		app.WithExtensionLogger(logger),
	)

	sweepRepo := postgres.NewSweepRepository(pool)
	sweeper := app.NewSweeper(sweepRepo, periodSvc, clk, bus,
		app.WithSweepInterval(cfg.SweepInterval),
		app.WithWarnLead(cfg.ExpiryWarnLead),
		app.WithSweeperMetrics(metrics),
		app.WithSweeperLogger(logger),
	)
	go sweeper.Run(stopCtx)

	// The cascade worker turns every freed (slot, period) into an offer to
	// the best matching waitlist entry.
	go runCascade(stopCtx, redisBus, chanBus, waitlistSvc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/slots", transporthttp.HandleListSlots(catalogSvc))
	mux.Handle("/availability", transporthttp.HandleAvailability(catalogSvc, periodSvc))
	mux.Handle("/reservations/hold", transporthttp.HandleHold(reservationSvc))
	mux.Handle("/reservations/", reservationRouter(reservationSvc))
	mux.Handle("/waitlist/join", transporthttp.HandleWaitlistJoin(waitlistSvc))
	mux.Handle("/waitlist/", waitlistRouter(waitlistSvc))
	mux.Handle("/extensions/request", transporthttp.HandleExtensionRequest(extensionSvc))
	mux.Handle("/extensions/", extensionRouter(extensionSvc))
	mux.Handle("/internal/listings/", transporthttp.HandleListingRejected(reservationSvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(
		transporthttp.CORS(cfg.CORSOrigins,
			transporthttp.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, mux)),
		logger,
	)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	logger.Info("api listening", "port", cfg.Port, "environment", cfg.Environment)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

// runCascade feeds freed-slot events into the waitlist, from whichever bus
// the deployment uses.
func runCascade(ctx context.Context, redisBus *events.RedisBus, chanBus *events.ChanBus, waitlist *app.WaitlistService, logger *slog.Logger) {
	handle := func(ctx context.Context, ev events.SlotFreed) error {
		return waitlist.OnSlotFreed(ctx, ev.SlotID, ev.PeriodID)
	}

	if redisBus != nil {
		redisBus.Consume(ctx, handle)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-chanBus.SlotFreedEvents():
			if err := handle(ctx, ev); err != nil {
				logger.Error("waitlist cascade", "slot_id", ev.SlotID, "period_id", ev.PeriodID, "error", err)
			}
		}
	}
}

// routeSuffix dispatches /prefix/{id}/{action} paths to per-action handlers.
func routeSuffix(actions map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for suffix, h := range actions {
			if suffix == "" {
				continue
			}
			if strings.HasSuffix(r.URL.Path, suffix) {
				h.ServeHTTP(w, r)
				return
			}
		}
		if def, ok := actions[""]; ok {
			def.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

func reservationRouter(svc *app.ReservationService) http.Handler {
	return routeSuffix(map[string]http.Handler{
		"/confirm": transporthttp.HandleConfirm(svc),
		"/cancel":  transporthttp.HandleCancel(svc),
		"":         transporthttp.HandleGetReservation(svc),
	})
}

func waitlistRouter(svc *app.WaitlistService) http.Handler {
	return routeSuffix(map[string]http.Handler{
		"/accept":  transporthttp.HandleWaitlistAccept(svc),
		"/decline": transporthttp.HandleWaitlistDecline(svc),
	})
}

func extensionRouter(svc *app.ExtensionService) http.Handler {
	return routeSuffix(map[string]http.Handler{
		"/payment": transporthttp.HandleExtensionPayment(svc),
		"/decide":  transporthttp.HandleExtensionDecide(svc),
		"/cancel":  transporthttp.HandleExtensionCancel(svc),
	})
}
