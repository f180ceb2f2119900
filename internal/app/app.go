package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"gigawatch/internal/config"
	"gigawatch/internal/freshness"
	"gigawatch/internal/mikrotik"
	"gigawatch/internal/scheduler"
	"gigawatch/internal/server"
	"gigawatch/internal/service"
	"gigawatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	location, err := a.Config.Database.ResolveLocation()
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.Open(ctx, location, a.Config.Database.MaxOpenConns, a.Logger)
	if err != nil {
		return nil, nil, err
	}

	closer := func() {
		_ = store.Close()
	}
	return store, closer, nil
}

func (a *App) newGateway() (*mikrotik.Client, error) {
	cfg := a.Config.Mikrotik
	return mikrotik.NewClient(mikrotik.Options{
		BaseURL:        cfg.BaseURL,
		AuthBase64:     cfg.AuthBase64,
		Username:       cfg.Username,
		Password:       cfg.Password,
		ConnectTimeout: cfg.ConnectTimeout,
		RequestTimeout: cfg.RequestTimeout,
	}, a.Logger)
}

func (a *App) newEngine(gateway freshness.Gateway, store freshness.LatestStore) *freshness.Engine {
	return freshness.New(gateway, store, freshness.Options{
		MaxAge:    a.Config.Scheduler.MaxAge(),
		Timeout:   a.Config.Scheduler.FreshnessTimeout,
		Poll:      a.Config.Scheduler.PollInterval,
		Shortcode: a.Config.Carrier.Shortcode,
		Keyword:   a.Config.Carrier.Keyword,
	}, a.Logger)
}

// Run executes the long-running monitoring service: the observation loop
// plus the HTTP query surface.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	gateway, err := a.newGateway()
	if err != nil {
		return err
	}

	engine := a.newEngine(gateway, store)
	board := scheduler.NewBoard(store.Location())
	sched := scheduler.New(scheduler.Options{Interval: a.Config.Scheduler.Interval}, a.Logger)

	svc := service.New(engine, store, board, sched, service.Options{
		Interval:          a.Config.Scheduler.Interval,
		InitialRunTimeout: a.Config.Scheduler.InitialRunTimeout,
	}, a.Logger)

	a.Logger.Info().Str("db", store.Location()).Msg("starting observation loop")
	svc.Start(ctx)

	srv := server.New(server.Options{
		Addr:       a.Config.Server.Addr,
		Metrics:    a.Config.Server.Metrics,
		WindowDays: a.Config.Usage.WindowDays,
	}, store, svc, a.Logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	a.Logger.Info().Str("addr", a.Config.Server.Addr).Msg("query surface listening")

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting the daily-usage series.
type ExportOptions struct {
	CSVPath string
	PNGPath string
}
