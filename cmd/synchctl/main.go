// Command synchctl is the interactive operator console: it wizards a
// single control action (the Coordinator's exported methods) against a
// freshly-wired engine instance, prints the result, and exits. One
// action per invocation.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/rs/zerolog"

	"github.com/brahimakil/appointment-backend-database-synch/internal/authsync"
	"github.com/brahimakil/appointment-backend-database-synch/internal/config"
	"github.com/brahimakil/appointment-backend-database-synch/internal/coordinator"
	"github.com/brahimakil/appointment-backend-database-synch/internal/docsync"
	"github.com/brahimakil/appointment-backend-database-synch/internal/domain"
	"github.com/brahimakil/appointment-backend-database-synch/internal/events"
	"github.com/brahimakil/appointment-backend-database-synch/internal/gateway"
	"github.com/brahimakil/appointment-backend-database-synch/internal/health"
	"github.com/brahimakil/appointment-backend-database-synch/internal/reconcile"
	"github.com/brahimakil/appointment-backend-database-synch/internal/schema"
	"github.com/brahimakil/appointment-backend-database-synch/internal/statsfile"
)

func main() {
	action, err := pickAction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "synchctl:", err)
		os.Exit(1)
	}

	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger().Level(zerolog.WarnLevel)

	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	gw, err := gateway.New(ctx, cfg, log)
	if err != nil {
		fail(err)
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
		fail(err)
	}

	// A one-shot health refresh before any gated action, since no
	// background Monitor.Run loop is started for a single invocation.
	monitor.Refresh(ctx)

	switch action {
	case "run":
		status, err := coord.RunOnce(ctx)
		printRun(status, err)
	case "run-full":
		status, err := coord.ForceFull(ctx)
		printRun(status, err)
	case "run-auth":
		status, err := coord.ForceAuth(ctx)
		printRun(status, err)
	case "recover":
		status, err := coord.Recover(ctx)
		printRun(status, err)
	case "reconcile":
		reports, authReport, err := coord.Reconcile(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(struct {
			Collections map[string]domain.IntegrityReport `json:"collections"`
			Auth        domain.AuthIntegrityReport         `json:"auth"`
		}{reports, authReport})
	case "stats":
		printJSON(coord.Stats())
	case "reset-stats":
		if err := coord.ResetStats(ctx); err != nil {
			fail(err)
		}
		fmt.Println("stats reset")
	case "collections":
		names, err := gw.ListCollections(ctx, domain.Primary)
		if err != nil {
			fail(err)
		}
		printJSON(names)
	}
}

func pickAction() (string, error) {
	var action string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Replication control action").
				Options(
					huh.NewOption("Forward run (incremental)", "run"),
					huh.NewOption("Forward run (force full)", "run-full"),
					huh.NewOption("Auth-only full run", "run-auth"),
					huh.NewOption("Recover standby -> primary", "recover"),
					huh.NewOption("Reconcile (report only)", "reconcile"),
					huh.NewOption("Show stats", "stats"),
					huh.NewOption("Reset stats", "reset-stats"),
					huh.NewOption("List collections", "collections"),
				).
				Value(&action),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return action, nil
}

func printRun(status domain.RunStatus, err error) {
	if err != nil {
		fmt.Printf("status=%s error=%v\n", status, err)
		os.Exit(1)
	}
	fmt.Printf("status=%s\n", status)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "synchctl:", err)
	os.Exit(1)
}
