package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"terminal-core/internal/api"
	"terminal-core/internal/automation"
	"terminal-core/internal/capability"
	"terminal-core/internal/contract"
	"terminal-core/internal/events"
	"terminal-core/internal/order"
	"terminal-core/pkg/backend"
	"terminal-core/pkg/config"
	"terminal-core/pkg/db"
)

const version = "0.3.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("terminal-core starting on port %s (backend %s)", cfg.Port, cfg.BackendHTTPURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}

	// Backend collaborators
	rest := backend.NewClient(cfg.BackendHTTPURL, cfg.BackendToken, cfg.TerminalID)
	stream := backend.NewStreamClient(cfg.BackendWSURL, cfg.TerminalID)
	stream.ReconnectDelay = time.Duration(cfg.ReconnectDelay * float64(time.Second))

	// Signal-to-order pipeline
	resolver := capability.NewResolver(rest)
	submitter := order.NewSubmitter(rest, bus)
	tracker := contract.NewTracker(stream, bus)

	var tickSource automation.TickStream = stream
	if cfg.UseMockFeed {
		log.Println("using mock tick feed")
		tickSource = &backend.MockStream{Interval: time.Second}
	}
	auto := automation.NewEngine(tickSource, resolver, submitter, tracker, bus, database, cfg.Currency)

	// Optional engine parameter presets
	if cfg.PresetPath != "" {
		presets, err := automation.LoadPresets(cfg.PresetPath)
		if err != nil {
			log.Printf("presets: load %s: %v", cfg.PresetPath, err)
		} else if err := automation.SyncPresetsToDB(ctx, database, presets); err != nil {
			log.Printf("presets: sync: %v", err)
		} else {
			log.Printf("presets: synced %d entries", len(presets))
		}
	}

	// Resume sessions that were active when the process last stopped.
	auto.ResumeAll(ctx)

	server := api.NewServer(bus, database, auto, resolver, tracker, submitter, cfg.Currency, cfg.JWTSecret, api.SystemMeta{
		Symbols:    cfg.Symbols,
		TerminalID: cfg.TerminalID,
		Version:    version,
	})

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Router,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()
	log.Printf("dashboard API listening on :%s", cfg.Port)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	auto.StopAll(shutdownCtx)
	tracker.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	cancel()
	log.Println("terminal-core stopped")
}
