// creased is the live scoring daemon: one process serving the REST
// command surface, the WebSocket fan-out, and the consensus sweeper
// over a single sqlite database.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thirdumpire/crease/internal/archive"
	"github.com/thirdumpire/crease/internal/auth"
	"github.com/thirdumpire/crease/internal/config"
	"github.com/thirdumpire/crease/internal/eventlog"
	"github.com/thirdumpire/crease/internal/events"
	"github.com/thirdumpire/crease/internal/httpapi"
	"github.com/thirdumpire/crease/internal/hub"
	"github.com/thirdumpire/crease/internal/scoring"
	"github.com/thirdumpire/crease/internal/store"
	"github.com/thirdumpire/crease/internal/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))
	telemetry.Infof("Starting crease")

	if cfg.AuthSecret == "" {
		telemetry.Errorf("SIGNING_SECRET is not set; refusing to mint unverifiable credentials")
		os.Exit(1)
	}
	signer, err := auth.NewSigner(cfg.AuthSecret)
	if err != nil {
		telemetry.Errorf("Auth: %v", err)
		os.Exit(1)
	}

	// ── Storage ─────────────────────────────────────────────────
	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		telemetry.Errorf("Open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Migrate(ctx, db); err != nil {
		telemetry.Errorf("Migrate: %v", err)
		os.Exit(1)
	}
	if err := eventlog.Migrate(ctx, db); err != nil {
		telemetry.Errorf("Migrate event log: %v", err)
		os.Exit(1)
	}

	// ── Rule presets ────────────────────────────────────────────
	presets, err := config.LoadRulePresets(cfg.RulePresetsPath)
	if err != nil {
		telemetry.Warnf("Rule presets unavailable, using built-in defaults: %v", err)
		presets = config.RulePresets{}
	} else {
		telemetry.Infof("Rule presets loaded: %v", presets.Names())
	}

	// ── Scoring pipeline ────────────────────────────────────────
	bus := events.NewBus()
	svc := scoring.NewService(db, cfg, &presets, signer, bus)
	svc.StartSweeper(ctx, time.Second)

	arc := archive.New(db, cfg.ArchiveDir, bus)
	if cfg.ArchiveDir != "" {
		telemetry.Infof("Archiving completed matches to %q", cfg.ArchiveDir)
	}

	// ── HTTP + WebSocket ────────────────────────────────────────
	h := hub.New(svc, signer, cfg, bus)
	api := httpapi.New(svc, h, signer, cfg)

	addr := fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      api.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Errorf("HTTP server: %v", err)
			os.Exit(1)
		}
	}()
	telemetry.Infof("Listening on %q  quorum=%d  window=%s",
		addr, cfg.ScorerQuorum, cfg.ConsensusWindow)

	// ── Shutdown ────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	telemetry.Infof("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	h.Close()
	svc.Close()
	arc.Wait()

	telemetry.Infof("Shutdown complete  balls=%d  disputes=%d  corrections=%d  frames=%d  errors=%d",
		telemetry.Metrics.BallsCommitted.Value(),
		telemetry.Metrics.DisputesRaised.Value(),
		telemetry.Metrics.CorrectionsApplied.Value(),
		telemetry.Metrics.FramesSent.Value(),
		telemetry.Metrics.CommandErrors.Value(),
	)
}
