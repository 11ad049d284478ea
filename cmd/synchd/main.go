// Command synchd is the replication engine's long-running daemon: it
// loads configuration, wires the Gateway/Health Monitor/Coordinator,
// ticks RunOnce on RUN_INTERVAL_MINUTES, and serves the HTTP control
// surface until signaled to stop.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/brahimakil/appointment-backend-database-synch/internal/authsync"
	"github.com/brahimakil/appointment-backend-database-synch/internal/config"
	"github.com/brahimakil/appointment-backend-database-synch/internal/coordinator"
	"github.com/brahimakil/appointment-backend-database-synch/internal/docsync"
	"github.com/brahimakil/appointment-backend-database-synch/internal/domain"
	"github.com/brahimakil/appointment-backend-database-synch/internal/events"
	"github.com/brahimakil/appointment-backend-database-synch/internal/gateway"
	"github.com/brahimakil/appointment-backend-database-synch/internal/health"
	"github.com/brahimakil/appointment-backend-database-synch/internal/httpapi"
	"github.com/brahimakil/appointment-backend-database-synch/internal/reconcile"
	"github.com/brahimakil/appointment-backend-database-synch/internal/schema"
	"github.com/brahimakil/appointment-backend-database-synch/internal/statsfile"
)

func main() {
	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := gateway.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize gateway")
	}
	defer gw.Close()

	bus := events.NewBus()
	tracker := schema.New(bus)
	monitor := health.New(gw, bus, log, time.Duration(cfg.HealthProbeIntervalSeconds)*time.Second, 0)
	docs := docsync.New(gw, bus, tracker, log, cfg.BatchSize)
	hashParams := domain.HashParams{
		Algorithm:     cfg.Hash.Algorithm,
		Rounds:        cfg.Hash.Rounds,
		MemoryCost:    cfg.Hash.MemoryCost,
		Key:           cfg.Hash.Key,
		SaltSeparator: cfg.Hash.SaltSeparator,
	}
	auth := authsync.New(gw, bus, hashParams, log)
	reconciler := reconcile.New(gw)
	store := statsfile.New(cfg.StatsFilePath)

	coord, err := coordinator.New(gw, bus, monitor, tracker, docs, auth, reconciler, store, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load persisted stats")
	}

	go monitor.Run(ctx)

	srv := &http.Server{
		Addr:    cfg.PortAddr(),
		Handler: httpapi.New(coord, bus, gw, log).Handler(),
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http control surface listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server stopped")
		}
	}()

	interval := time.Duration(cfg.RunIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("replication engine started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = srv.Shutdown(shutdownCtx)
			cancel()
			return
		case <-ticker.C:
			bus.Publish(events.Event{Type: events.AutoRunTriggered, Payload: events.AutoRunTriggeredPayload{
				Timestamp:    time.Now().UTC(),
				IntervalHint: interval.String(),
			}})
			status, err := coord.RunOnce(ctx)
			if err != nil {
				log.Warn().Err(err).Str("status", string(status)).Msg("run ended with error")
				continue
			}
			log.Info().Str("status", string(status)).Msg("run completed")
		}
	}
}
