package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/knowtext/internal/api/handlers"
	"github.com/cloo-solutions/knowtext/internal/database"
	"github.com/cloo-solutions/knowtext/internal/jobs"
	"github.com/cloo-solutions/knowtext/internal/server"
	"github.com/cloo-solutions/knowtext/internal/telemetry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the knowledge text API server and the background purge worker",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides KNOWTEXT_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("migrations", database.DefaultMigrationsSource, "Migration source URL")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := loadRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, log := rt.cfg, rt.log

	// 10% sampling outside development
	sampleRate := 1.0
	if cfg.Environment != "development" {
		sampleRate = 0.1
	}
	shutdownTelemetry, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: sampleRate,
		Debug:            cfg.Debug,
	}, log)
	if err != nil {
		log.Warn("telemetry init failed, continuing without tracing", "error", err)
	} else {
		defer shutdownTelemetry()
	}

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		source, _ := cmd.Flags().GetString("migrations")
		status, err := database.MigrateUp(cfg.DatabaseURL, source)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("migrations complete", "version", status.Version, "changed", status.Changed)
	}

	svc, err := rt.newService(ctx)
	if err != nil {
		return err
	}

	router := server.NewRouter(server.RouterConfig{
		Logger:               log,
		MaxBodyBytes:         cfg.MaxBodyBytes,
		HealthHandler:        handlers.NewHealthHandler(rt.pool),
		KnowledgeTextHandler: handlers.NewKnowledgeTextHandler(svc),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if cfg.PurgeInterval > 0 {
		worker := jobs.NewWorker("purge", jobs.NewPurgeWorker(svc, cfg.PurgeRetention, log), cfg.PurgeInterval, log)
		g.Go(func() error {
			worker.Start(gctx, true)
			return nil
		})
	} else {
		log.Info("purge worker disabled")
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server exited")
	return nil
}
