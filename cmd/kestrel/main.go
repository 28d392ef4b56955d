package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kestrel-dcr/api"
	"kestrel-dcr/config"
	"kestrel-dcr/core/notify"
	"kestrel-dcr/core/rbac"
	"kestrel-dcr/core/store"
	"kestrel-dcr/core/utils"
	"kestrel-dcr/core/workflow"
)

func main() {
	configPath := flag.String("config", os.Getenv("KESTREL_CONFIG"), "path to yaml config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		utils.NewLogger().Errorf("config: %v", err)
		os.Exit(1)
	}
	logger := utils.NewLoggerWithLevel(cfg.LogLevel)

	db, err := store.NewDB(cfg, logger)
	if err != nil {
		logger.Errorf("open db: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		logger.Errorf("migrations: %v", err)
		os.Exit(1)
	}

	policy, err := rbac.NewPolicy()
	if err != nil {
		logger.Errorf("rbac: %v", err)
		os.Exit(1)
	}

	records := store.NewRecordStore(db)
	incidents := store.NewIncidentsRepo(records)
	cases := store.NewCasesRepo(records)
	audits := store.NewAuditStore(db)

	var dispatcher notify.Dispatcher = notify.NopDispatcher{}
	if cfg.Notify.Enabled {
		dispatcher = notify.NewHTTPMailSender(cfg.Notify)
	}

	wf := workflow.NewService(cfg.Incidents, incidents, cases, audits, dispatcher, logger)

	var sweeper *workflow.Sweeper
	if cfg.Sweeper.Enabled {
		sweeper, err = workflow.NewSweeper(cfg.Sweeper, wf, logger)
		if err != nil {
			logger.Errorf("sweeper: %v", err)
			os.Exit(1)
		}
		sweeper.Start()
	}

	server := api.NewServer(cfg, logger, policy, wf, incidents, cases, audits)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Printf("shutting down on %s", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http server: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	if sweeper != nil {
		sweeper.Stop()
	}
}
