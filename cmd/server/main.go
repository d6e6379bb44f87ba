/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the reservation engine server. Wires configuration,
  store, engine, HTTP handlers and the close-out scheduler with fx and
  handles graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from the environment (config.LoadConfig)
  2. Build the logger
  3. Open the store selected by STORE_DRIVER (memory, sqlite, postgres)
  4. Build the building clock from BUILDING_ZONES and the engine
  5. Create API handler and router
  6. Start HTTP server and close-out scheduler
  7. Optionally seed the demo catalog (SEED_DEMO)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM fx runs the OnStop hooks in reverse order:
  1. Stop accepting new connections, wait for active requests
  2. Stop the scheduler
  3. Close the store

EXAMPLES:
  # SQLite file database
  PORT=8080 SQLITE_PATH=./data/reservations.db ./server

  # Throwaway demo
  PORT=8080 STORE_DRIVER=memory SEED_DEMO=true ./server

  # PostgreSQL
  PORT=8080 STORE_DRIVER=postgres DB_HOST=db DB_USER=app DB_PASSWORD=secret ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go, store/postgres/postgres.go: Database implementations
*/
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/warp/reservation-engine/api"
	"github.com/warp/reservation-engine/booking"
	"github.com/warp/reservation-engine/booking/store"
	"github.com/warp/reservation-engine/config"
	"github.com/warp/reservation-engine/store/postgres"
	"github.com/warp/reservation-engine/store/sqlite"
)

const demoScenario = "headquarters"

func newStore(lc fx.Lifecycle, cfg config.Config, logger *slog.Logger) (booking.TxStore, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		return store.NewTxMemory(), nil

	case config.DriverSQLite:
		s, err := sqlite.New(cfg.Store.SQLitePath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to initialize database")
		}
		lc.Append(fx.Hook{
			OnStop: func(_ context.Context) error { return s.Close() },
		})
		logger.Info("sqlite store ready", "path", cfg.Store.SQLitePath)
		return s, nil

	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s, err := postgres.Connect(ctx, cfg.DB.BuildDSN(), logger)
		if err != nil {
			return nil, errors.Wrap(err, "failed to connect to postgres")
		}
		lc.Append(fx.Hook{
			OnStop: func(_ context.Context) error {
				s.Close()
				return nil
			},
		})
		logger.Info("postgres store ready", "host", cfg.DB.Host, "database", cfg.DB.DBName)
		return s, nil

	default:
		return nil, errors.Newf("unknown store driver %q", cfg.Store.Driver)
	}
}

func newClock(cfg config.Config) (booking.BuildingClock, error) {
	clock, err := booking.NewZoneClock(cfg.Booking.BuildingZones, cfg.Booking.DefaultTimeZone)
	if err != nil {
		return nil, errors.Wrap(err, "invalid BUILDING_ZONES or DEFAULT_TIME_ZONE")
	}
	return clock, nil
}

func newEngine(st booking.TxStore, clock booking.BuildingClock, cfg config.Config, logger *slog.Logger) *booking.Engine {
	return booking.NewEngine(st, clock, booking.Options{
		Directory:     booking.DomainDirectory{Domains: cfg.Booking.InternalEmailDomains},
		Logger:        logger,
		AllowMultiDay: cfg.Booking.AllowMultiDay,
	})
}

func newRouter(h *api.Handler, cfg config.Config) http.Handler {
	return api.NewRouter(h, cfg.CORS.AllowOrigins)
}

func newScheduler(engine *booking.Engine, cfg config.Config, logger *slog.Logger) *api.CloseScheduler {
	return api.NewCloseScheduler(engine, cfg.Booking.CloseInterval, logger)
}

func startServer(lc fx.Lifecycle, router http.Handler, cfg config.Config, logger *slog.Logger, shutdowner fx.Shutdowner) {
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			logger.Info("server starting", "address", server.Addr, "driver", cfg.Store.Driver)
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", "error", err)
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return server.Shutdown(ctx)
		},
	})
}

func startScheduler(lc fx.Lifecycle, scheduler *api.CloseScheduler) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			scheduler.Start()
			return nil
		},
		OnStop: func(_ context.Context) error {
			scheduler.Stop()
			return nil
		},
	})
}

func seedDemo(lc fx.Lifecycle, h *api.Handler, cfg config.Config) {
	if !cfg.Server.SeedDemo {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return h.LoadScenarioByID(ctx, demoScenario)
		},
	})
}

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			func(cfg config.Config) *slog.Logger {
				logger := config.NewLogger(cfg.Log, os.Stdout)
				slog.SetDefault(logger)
				return logger
			},
			newStore,
			newClock,
			newEngine,
			api.NewHandler,
			newRouter,
			newScheduler,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: logger}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
		fx.Invoke(
			seedDemo,
			startScheduler,
			startServer,
		),
	)

	if err := app.Start(context.Background()); err != nil {
		slog.Error("failed to start application", "error", err)
		os.Exit(1)
	}

	sig := <-app.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := app.Stop(stopCtx); err != nil {
		slog.Error("failed to stop application cleanly", "error", err)
	}
	cancel()

	slog.Info("server stopped")
	os.Exit(sig.ExitCode)
}
