package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"fleetplane/internal/api"
	"fleetplane/internal/auth"
	"fleetplane/internal/backup"
	"fleetplane/internal/config"
	"fleetplane/internal/db"
	"fleetplane/internal/events"
	"fleetplane/internal/integration"
	"fleetplane/internal/notify"
	"fleetplane/internal/panel"
	"fleetplane/internal/scheduler"
	"fleetplane/internal/server"
)

// ============================================================================
// APPLICATION LIFECYCLE
// ============================================================================

const (
	stateCreated  uint32 = 0
	stateRunning  uint32 = 1
	stateStopping uint32 = 2
	stateStopped  uint32 = 3
)

type Application struct {
	cfg    *config.Config
	facade *integration.Integration
	hub    *events.Hub
	dbSvc  *db.Service
	api    *api.Server

	state atomic.Uint32
	wg    sync.WaitGroup
}

// NewApplication wires the full dependency graph. Everything is
// constructed here and handed down; no package keeps a global instance.
func NewApplication() (*Application, error) {
	cfg := config.DefaultConfig()

	client := panel.NewClient(cfg)
	log.Println("✓ Panel client initialized")

	controller := server.NewController(client)
	backups := backup.NewManager(client, backup.Policy{
		MaxPerServer:  cfg.MaxBackupsPerServer,
		RetentionDays: cfg.RetentionDays,
		NamePrefix:    cfg.BackupNamePrefix,
	})
	hub := events.NewHub()

	var dbSvc *db.Service
	var history *db.History
	if cfg.HistoryEnabled {
		svc, err := db.Connect(cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("history store: %w", err)
		}
		dbSvc = svc
		history = db.NewHistory(dbSvc)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := history.EnsureSchema(ctx); err != nil {
			dbSvc.Close()
			return nil, fmt.Errorf("history schema: %w", err)
		}
		log.Println("✓ Telemetry history store initialized")
	} else {
		log.Println("✓ Telemetry history store disabled")
	}

	jobs := scheduler.NewJobs(scheduler.Deps{
		Fleet:            controller,
		Backups:          backups,
		Notifier:         notify.LogNotifier{},
		Hub:              hub,
		History:          historyStore(history),
		AdminAddress:     cfg.AdminNotifyAddress,
		HistoryRetention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	})
	sched := scheduler.New(hub)

	facade := integration.New(cfg, client, controller, backups, sched, jobs)

	authSvc, err := auth.NewService(cfg.APIJWTSecret, cfg.APIAdminUser, cfg.APIAdminPasswordHash)
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	apiServer := api.NewServer(cfg, authSvc, facade, client, hub, history, dbSvc)

	app := &Application{
		cfg:    cfg,
		facade: facade,
		hub:    hub,
		dbSvc:  dbSvc,
		api:    apiServer,
	}
	app.state.Store(stateCreated)

	return app, nil
}

// historyStore keeps a typed nil from leaking into the HistoryStore
// interface when the history feature is off.
func historyStore(h *db.History) scheduler.HistoryStore {
	if h == nil {
		return nil
	}
	return h
}

func (a *Application) Start(ctx context.Context) error {
	if !a.state.CompareAndSwap(stateCreated, stateRunning) {
		return errors.New("application already started")
	}

	if err := a.facade.Init(ctx); err != nil {
		a.state.Store(stateStopped)
		return fmt.Errorf("integration init: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.api.Start(); err != nil {
			log.Printf("[FATAL] API server error: %v", err)
		}
	}()

	return nil
}

func (a *Application) Shutdown(ctx context.Context) error {
	if !a.state.CompareAndSwap(stateRunning, stateStopping) {
		return errors.New("application not running")
	}

	log.Println("Initiating graceful shutdown...")

	var errs []error

	if err := a.api.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("api shutdown: %w", err))
	}
	log.Println("✓ API server stopped")

	a.facade.Shutdown()
	log.Println("✓ Scheduler stopped")

	a.hub.Close()
	log.Println("✓ Event hub closed")

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("✓ Background services stopped")
	case <-ctx.Done():
		log.Println("⚠ Background services shutdown timeout")
		errs = append(errs, ctx.Err())
	}

	if a.dbSvc != nil {
		if err := a.dbSvc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}
		log.Println("✓ Database closed")
	}

	a.state.Store(stateStopped)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// ============================================================================
// MAIN ENTRY POINT
// ============================================================================

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	log.Println(`
╔════════════════════════════════════════════════════════════════╗
║              FLEETPLANE CONTROL PLANE - STARTING               ║
╚════════════════════════════════════════════════════════════════╝`)

	app, err := NewApplication()
	if err != nil {
		log.Fatalf("[FATAL] Application initialization failed: %v", err)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := app.Start(startCtx); err != nil {
		startCancel()
		log.Fatalf("[FATAL] Application start failed: %v", err)
	}
	startCancel()

	log.Printf(`
╔════════════════════════════════════════════════════════════════╗
║              FLEETPLANE CONTROL PLANE - RUNNING                ║
╠════════════════════════════════════════════════════════════════╣
║  API Documentation:                                            ║
║    POST /api/v1/login                - Authentication          ║
║    GET  /api/v1/health               - Health check            ║
║    GET  /api/v1/status               - Integration status      ║
║    GET  /api/v1/fleet                - Fleet overview          ║
║    GET  /api/v1/metrics              - Subsystem metrics       ║
║    GET  /api/v1/servers/:uuid/history - Telemetry history      ║
║    GET  /ws/events                   - Event stream            ║
╚════════════════════════════════════════════════════════════════╝
Address: %s`, app.cfg.APIAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.Printf("[INFO] Received signal: %v", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] Shutdown errors: %v", err)
		os.Exit(1)
	}

	log.Println("[INFO] ✓ Clean shutdown completed")
}
