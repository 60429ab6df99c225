// Command server runs the flight seat reservation API and its maintenance
// tasks.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iliyamo/flight-seat-reservation/internal/config"
	"github.com/iliyamo/flight-seat-reservation/internal/database"
	"github.com/iliyamo/flight-seat-reservation/internal/handler"
	"github.com/iliyamo/flight-seat-reservation/internal/middleware"
	"github.com/iliyamo/flight-seat-reservation/internal/queue"
	"github.com/iliyamo/flight-seat-reservation/internal/router"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "server",
		Short:         "Flight seat reservation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), seedCmd(), reapCmd())
	return root
}

// setup loads configuration and builds the root logger.
func setup() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, newLogger(cfg), nil
}

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.IsProd() {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
		log.WithField("value", cfg.LogLevel).Warn("unknown LOG_LEVEL, using info")
	}
	log.SetLevel(level)
	return log
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the hold reaper and the audit consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close()
			return serve(ctx, cfg, log, a)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, log *logrus.Logger, a *app) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	defer a.scheduler.Stop()

	if cfg.AMQPURL != "" {
		consumer := queue.NewConsumer(cfg.AMQPURL, cfg.AuditLogPath, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("audit consumer stopped")
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log.WithField("component", "http")))

	router.RegisterRoutes(e, router.Deps{
		Reservations: handler.NewReservationHandler(a.coord, a.finalizer, a.store),
		Waitlist:     handler.NewWaitlistHandler(a.waitlist),
		Flights:      handler.NewFlightHandler(a.store),
		Health:       handler.Health(a.pingers),
		Gatherer:     a.registry,
		Redis:        a.rdb,
		RateLimit:    config.LoadRateLimitConfig(),
		Cache:        config.LoadCacheConfig(),
		JWTSecret:    cfg.JWTSecret,
		Log:          log,
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "ledger": cfg.LedgerDriver}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the reservation tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the demo flight into an empty database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			_, err = database.Seed(cmd.Context(), db, log)
			return err
		},
	}
}

func reapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Run one hold reaper tick under the cluster lease",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			ran, err := a.scheduler.RunOnce(cmd.Context(), a.reaper.Name())
			if err != nil {
				return err
			}
			if !ran {
				log.Info("reaper lease held by another node, nothing done")
			}
			return nil
		},
	}
}
