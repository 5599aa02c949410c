// Package server assembles the storage tiers, services and HTTP API from
// configuration and runs them until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/songletters/internal/identity"
	"github.com/dmitrijs2005/songletters/internal/logging"
	"github.com/dmitrijs2005/songletters/internal/server/api"
	"github.com/dmitrijs2005/songletters/internal/server/auth"
	"github.com/dmitrijs2005/songletters/internal/server/config"
	"github.com/dmitrijs2005/songletters/internal/server/ownership"
	"github.com/dmitrijs2005/songletters/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/songletters/internal/server/services"
	"github.com/dmitrijs2005/songletters/internal/server/storage"
	"github.com/dmitrijs2005/songletters/internal/server/visibility"
)

type App struct {
	config *config.Config
	logger logging.Logger
	router *storage.Router
	server *api.Server

	db          *sql.DB
	repomanager repomanager.RepositoryManager
	migrated    bool
	closers     []io.Closer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)
	return newApp(ctx, c, logger)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	app := &App{config: c, logger: logger}

	var remotes []storage.RemoteTier
	var primary storage.RemoteTier

	if c.DatabaseDSN != "" {
		db, err := sql.Open("pgx", c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		rm, err := repomanager.NewPostgresRepositoryManager(db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("db init error: %w", err)
		}
		app.db, app.repomanager = db, rm
		app.closers = append(app.closers, db)
		app.migrate(ctx)

		primary = storage.NewPostgresTier(db, rm)
		remotes = append(remotes, primary)
	}

	if c.ProxyURL != "" {
		remotes = append(remotes, storage.NewProxyTier(c.ProxyURL, c.ProxyToken, &http.Client{Timeout: c.TierTimeout}))
	}

	local, closer, err := storage.BuildLocalTier(ctx, c.LocalDSN, storage.S3Options{
		Region:       c.S3Region,
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
		BaseEndpoint: c.S3BaseEndpoint,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("local tier init error: %w", err)
	}
	app.closers = append(app.closers, closer)

	if len(remotes) == 0 {
		logger.Warn(ctx, "no remote tier configured, letters stay local")
	}

	app.router = storage.NewRouter(remotes, storage.NewCacheTier(c.CacheCapacity), local, c.TierTimeout, logger)

	detector := identity.NewDetector(c.DeviceChangeThreshold, c.LongAbsence)
	resolver := ownership.NewResolver(app.router, c.MergeMaxAttempts, c.MergeBackoff, logger)

	app.server = api.NewServer(c.HTTPAddr, api.Deps{
		Letters:    services.NewLetterService(app.router, detector, logger),
		Gateway:    visibility.NewGateway(app.router, logger),
		Bridge:     auth.NewBridge(resolver, logger),
		Primary:    primary,
		ProxyToken: c.ProxyToken,
		SecretKey:  c.SecretKey,
	}, logger)

	return app, nil
}

// migrate applies the primary schema. An unreachable database at boot is
// not fatal: the reconcile loop retries until it succeeds.
func (app *App) migrate(ctx context.Context) {
	if app.db == nil || app.migrated {
		return
	}
	mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.repomanager.RunMigrations(mctx, app.db); err != nil {
		app.logger.Warn(ctx, "primary migrations failed, will retry", "err", err)
		return
	}
	app.migrated = true
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
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// reconcileLoop flushes pending writes to the remote tiers on a fixed
// interval until ctx is done.
func (app *App) reconcileLoop(ctx context.Context) {
	if app.config.ReconcileInterval <= 0 {
		return
	}
	ticker := time.NewTicker(app.config.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.migrate(ctx)
			n, err := app.router.Reconcile(ctx)
			if err != nil {
				app.logger.Warn(ctx, "reconcile failed", "err", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "pending letters flushed", "count", n)
			}
		}
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
		app.reconcileLoop(ctx)
	}()

	wg.Wait()

	// one last flush so a clean shutdown does not strand pending writes
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if n, err := app.router.Reconcile(flushCtx); err != nil {
		app.logger.Warn(flushCtx, "final reconcile failed", "err", err)
	} else if n > 0 {
		app.logger.Info(flushCtx, "pending letters flushed", "count", n)
	}

	app.Close()
}

// Close releases database handles. Safe to call more than once.
func (app *App) Close() {
	for _, c := range app.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			app.logger.Warn(context.Background(), "close failed", "err", err)
		}
	}
	app.closers = nil
}
