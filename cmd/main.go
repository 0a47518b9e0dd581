package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/bilgisen/feedcaster/internal/api"
	"github.com/bilgisen/feedcaster/internal/config"
	"github.com/bilgisen/feedcaster/internal/logger"
	"github.com/bilgisen/feedcaster/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:           "feedcaster",
		Short:         "Feed to channel content pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), ingestCmd(), publishCmd(), seedCmd())

	if err := root.Execute(); err != nil {
		logger.Get().Fatal().Err(err).Msg("Command failed")
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	output := cfg.LogFile
	if output == "" {
		output = "stdout"
	}
	logger.Init(logger.Config{
		Level:  cfg.LogLevel,
		Output: output,
		Pretty: cfg.LogPretty,
	})
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logger.Get()
			log.Info().Str("env", cfg.Env).Msg("Starting application...")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := build(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.store.Migrate(); err != nil {
				return err
			}
			if err := a.syncSeed(ctx); err != nil {
				return err
			}
			if cfg.AdminAPIKey == "" {
				log.Warn().Msg("ADMIN_API_KEY is not set, admin endpoints are disabled")
			}

			a.scheduler.Start(ctx)

			app := api.NewApp(fiber.Config{
				AppName:      "feedcaster",
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  120 * time.Second,
			})
			api.SetupRoutes(app, api.NewHandlers(a.service, a.scheduler, a.store), cfg.AdminAPIKey)

			serverErr := make(chan error, 1)
			go func() {
				log.Info().Str("port", cfg.Port).Msg("Starting server")
				serverErr <- app.Listen(":" + cfg.Port)
			}()

			select {
			case <-ctx.Done():
			case err := <-serverErr:
				log.Error().Err(err).Msg("Server error")
			}

			log.Info().Msg("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()

			if err := a.scheduler.Stop(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Scheduler did not stop in time")
			}
			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Server forced to shutdown")
			}

			log.Info().Msg("Server exited properly")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := storage.Open(cmd.Context(), cfg.DBDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer store.Close()

			version, err := store.Migrate()
			if err != nil {
				return err
			}
			logger.Get().Info().Uint("version", version).Msg("Database is up to date")
			return nil
		},
	}
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), func(ctx context.Context, a *application) (any, error) {
				return a.scheduler.RunIngest(ctx)
			})
		},
	}
}

func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Run one publish cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), func(ctx context.Context, a *application) (any, error) {
				return a.scheduler.RunPublish(ctx)
			})
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Sync channels and sources from the seed file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), func(ctx context.Context, a *application) (any, error) {
				if a.cfg.SeedFile == "" {
					return nil, errors.New("SEED_FILE is not set")
				}
				seed, err := config.LoadSeed(a.cfg.SeedFile)
				if err != nil {
					return nil, err
				}
				return a.service.SyncSeed(ctx, seed)
			})
		},
	}
}

// runOnce builds the application, migrates, runs fn and prints its result as JSON.
func runOnce(parent context.Context, fn func(context.Context, *application) (any, error)) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.store.Migrate(); err != nil {
		return err
	}

	start := time.Now()
	out, err := fn(ctx, a)
	if err != nil {
		return err
	}
	logger.Get().Info().Dur("duration", time.Since(start)).Msg("Done")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
