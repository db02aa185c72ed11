// README: Entry point; loads config, wires services, starts HTTP server and background sweeps.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"roadcall/internal/config"
	httptransport "roadcall/internal/http"
	"roadcall/internal/infra"
	"roadcall/internal/logging"
	"roadcall/internal/maps"
	"roadcall/internal/metrics"
	"roadcall/internal/modules/location"
	"roadcall/internal/modules/mechanic"
	"roadcall/internal/modules/offer"
	"roadcall/internal/modules/payment"
	"roadcall/internal/modules/request"
	"roadcall/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(cfg.Logging)
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres init")
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	notifier := notify.NewRedisNotifier(redisClient, logger)

	locationStore := location.NewStore(dbPool, redisClient)
	locationSvc := location.NewService(locationStore, notifier, location.Config{
		MinMoveMeters:  cfg.Location.MinMoveMeters,
		ReportInterval: cfg.Location.ReportInterval,
	})

	var eta request.ETAProvider
	if cfg.Maps.APIKey != "" {
		routeSvc, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("maps init")
		}
		eta = routeSvc
	}

	requestStore := request.NewPgStore(dbPool)
	requestSvc := request.NewService(requestStore, locationSvc, eta, notifier, logger, request.Config{
		ArrivalRadiusMeters: cfg.Geo.ArrivalRadiusMeters,
		SearchRadiusMeters:  cfg.Geo.SearchRadiusMeters,
	})

	mechanicStore := mechanic.NewPgStore(dbPool)

	offerStore := offer.NewPgStore(dbPool)
	offerSvc := offer.NewService(offerStore, requestStore, mechanicStore, notifier, logger)

	coordinator := payment.NewCoordinator(requestStore, offerStore, notifier, logger)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Requests:      requestSvc,
		Offers:        offerSvc,
		Locations:     locationSvc,
		Mechanics:     mechanicStore,
		Payments:      coordinator,
		OfferTTL:      cfg.Offer.TTL,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Log:           logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go runOfferSweep(ctx, offerSvc, cfg.Offer.SweepInterval, logger)
	go runActivationSweep(ctx, requestSvc, cfg.Offer.SweepInterval, logger)
	go runLimiterSweep(ctx, locationSvc, cfg.Location.ReportInterval, logger)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.HTTP.Addr).Msg("listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("http server")
	}
}

func runOfferSweep(ctx context.Context, svc *offer.Service, interval time.Duration, logger *zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n, err := svc.ExpireStale(ctx, now); err != nil {
				logger.Error().Err(err).Msg("offer sweep")
			} else if n > 0 {
				logger.Info().Int64("expired", n).Msg("offer sweep")
			}
		}
	}
}

func runLimiterSweep(ctx context.Context, svc *location.Service, interval time.Duration, logger *zerolog.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := svc.EvictIdle(now); n > 0 {
				logger.Debug().Int("evicted", n).Msg("limiter sweep")
			}
		}
	}
}

func runActivationSweep(ctx context.Context, svc *request.Service, interval time.Duration, logger *zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n, err := svc.ActivateDue(ctx, now); err != nil {
				logger.Error().Err(err).Msg("activation sweep")
			} else if n > 0 {
				logger.Info().Int("activated", n).Msg("activation sweep")
			}
		}
	}
}
