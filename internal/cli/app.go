package cli

import (
	"context"
	"errors"
	"fmt"

	goption "google.golang.org/api/option"

	"fintrack/internal/amqp"
	"fintrack/internal/apiclient"
	"fintrack/internal/backend"
	"fintrack/internal/cache"
	"fintrack/internal/config"
	"fintrack/internal/credstore"
	"fintrack/internal/export/sheets"
	"fintrack/internal/finance"
	"fintrack/internal/guard"
	applog "fintrack/internal/log"
	"fintrack/internal/session"
)

// App holds the wired components a command runs against.
type App struct {
	Config    *config.Config
	Logger    *applog.Logger
	Store     credstore.Store
	Transport *apiclient.Transport
	Auth      *apiclient.AuthClient
	Session   *session.Session
	Client    *apiclient.Client
	Guard     *guard.Guard
	Finance   *finance.Service

	sheetsOpts []goption.ClientOption
	caches     *cache.Manager
	closers    []func() error
}

// NewApp wires the application. When store is nil the configured
// credential backend is opened.
func NewApp(ctx context.Context, cfg *config.Config, logger *applog.Logger, store credstore.Store) (*App, error) {
	if logger == nil {
		logger = applog.Discard()
	}
	app := &App{Config: cfg, Logger: logger}

	if store == nil {
		bcfg, err := backend.FromAppConfig(cfg)
		if err != nil {
			return nil, err
		}
		res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
		if err != nil {
			return nil, err
		}
		store = res.Store
		if res.Cleanup != nil {
			app.closers = append(app.closers, res.Cleanup)
		}
	}
	app.Store = store

	tr, err := apiclient.NewTransport(apiclient.Config{
		BaseURL:     cfg.APIBaseURL,
		Timeout:     cfg.HTTPTimeout,
		RefreshPath: cfg.RefreshPath,
		RefreshMode: apiclient.RefreshMode(cfg.RefreshMode),
		Logger:      logger,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Transport = tr
	app.Auth = apiclient.NewAuthClient(tr)

	sessOpts := []session.Option{
		session.WithLogger(logger),
		// Finance is wired below; the hook only runs once commands execute.
		session.WithChangeHook(func(context.Context) {
			if app.Finance != nil {
				app.Finance.Reset()
			}
		}),
	}
	if cfg.AMQPURL != "" {
		pub := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, logger)
		app.closers = append(app.closers, pub.Close)
		sessOpts = append(sessOpts, session.WithEvents(pub))
	}
	app.Session = session.New(store, app.Auth, sessOpts...)

	app.Client = apiclient.New(tr, app.Session, apiclient.OnSessionExpired(func(ctx context.Context) {
		logger.WarnContext(ctx, "Session expired; stored credentials cleared")
	}))
	app.Guard = guard.New(app.Session, logger)

	lru := finance.NewCache(cfg.CacheSize, cfg.CacheTTL)
	if cfg.CacheTTL > 0 {
		app.caches = cache.NewManager(logger)
		app.caches.Register(lru)
		app.caches.StartCleanup(cfg.CacheTTL)
	}
	app.Finance = finance.New(app.Client, finance.WithCache(lru), finance.WithLogger(logger))

	return app, nil
}

// Exporter opens the Sheets exporter from configuration.
func (a *App) Exporter(ctx context.Context) (*sheets.Exporter, error) {
	if !a.Config.SheetsEnabled() {
		return nil, errors.New("sheets export is not configured: set GOOGLE_SPREADSHEET_ID and service account credentials")
	}
	return sheets.NewExporter(ctx, sheets.Config{
		SpreadsheetID:      a.Config.GoogleSpreadsheetID,
		SheetName:          a.Config.GoogleSheetName,
		ServiceAccountFile: a.Config.GoogleServiceAccountFile,
		ServiceAccountJSON: a.Config.GoogleServiceAccountJSON,
	}, a.Logger, a.sheetsOpts...)
}

// Close releases the store, the event publisher and the cache janitor.
func (a *App) Close() error {
	if a.caches != nil {
		a.caches.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close app: %w", err)
	}
	return nil
}
