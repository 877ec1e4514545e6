// Package server wires the payroll services to Postgres, the object store and
// the tax authority client, then runs the HTTP API and the tax sync worker
// until a termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/paykeeper/internal/logging"
	"github.com/dmitrijs2005/paykeeper/internal/server/authz"
	"github.com/dmitrijs2005/paykeeper/internal/server/config"
	"github.com/dmitrijs2005/paykeeper/internal/server/events"
	"github.com/dmitrijs2005/paykeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/paykeeper/internal/server/remittance"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/paykeeper/internal/server/services"
	"github.com/dmitrijs2005/paykeeper/internal/server/storage"
	"github.com/dmitrijs2005/paykeeper/internal/server/worker"
)

// Services is the assembled service graph. payrollctl builds the same graph
// without the HTTP server.
type Services struct {
	DB       *sql.DB
	Rates    *services.TaxRateService
	Ytd      *services.YtdService
	Periods  *services.PayPeriodService
	TaxSync  *services.TaxSyncService
	PayStubs *services.PayStubService
}

func (s *Services) Close() error {
	return s.DB.Close()
}

// NewServices opens the database, applies migrations and builds every
// service. Committed periods are handed to queue.
func NewServices(ctx context.Context, c *config.Config, logger logging.Logger, queue services.SyncQueue) (*Services, error) {
	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	var store storage.ObjectStore
	s3, err := storage.NewS3Store(ctx, c)
	if err != nil {
		logger.Warn(ctx, "object store unavailable, keeping stubs and archives in memory", "error", err)
		store = storage.NewMemoryStore()
	} else {
		store = s3
	}

	sink := events.NewLogSink(logger)
	rates := services.NewTaxRateService(db, rm, sink, logger)
	ytd := services.NewYtdService(db, rm, sink, logger)

	return &Services{
		DB:       db,
		Rates:    rates,
		Ytd:      ytd,
		Periods:  services.NewPayPeriodService(db, rm, rates, ytd, queue, sink, logger),
		TaxSync:  services.NewTaxSyncService(db, rm, remittance.NewClient(c), store, queue, c, sink, logger),
		PayStubs: services.NewPayStubService(db, rm, store, services.TextStubGenerator{}, logger),
	}, nil
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	services *Services
	worker   *worker.Worker
	authz    *authz.Authorizer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(os.Stdout, c.LogFormat, c.LogLevel)
	if err != nil {
		return nil, err
	}

	w := worker.New(c.SyncQueueSize, c.SyncMaxAttempts, logger)

	svc, err := NewServices(ctx, c, logger, w)
	if err != nil {
		return nil, err
	}

	az, err := authz.NewDefaultAuthorizer()
	if err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("authz init error: %w", err)
	}

	return &App{config: c, logger: logger, services: svc, worker: w, authz: az}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.HTTPAddr, app.logger, httpapi.Services{
		PayPeriods: app.services.Periods,
		TaxSync:    app.services.TaxSync,
		PayStubs:   app.services.PayStubs,
		TaxYears:   app.services.Rates,
		Ytd:        app.services.Ytd,
	}, app.authz, app.config.SecretKey)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.worker.Run(ctx, app.services.TaxSync)
	}()

	wg.Wait()

	if err := app.services.Close(); err != nil {
		app.logger.Error(context.WithoutCancel(ctx), "db close", "error", err)
	}
	app.logger.Info(context.WithoutCancel(ctx), "App stopped")
}
