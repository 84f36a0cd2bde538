package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pelusa-v/event-inbox/internal/backend"
	"github.com/pelusa-v/event-inbox/internal/chat"
	"github.com/pelusa-v/event-inbox/internal/config"
	"github.com/pelusa-v/event-inbox/internal/handlers"
	"github.com/pelusa-v/event-inbox/internal/logger"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the inbox gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func newBackend(cfg *config.Config, log zerolog.Logger) *backend.Client {
	return backend.NewClient(backend.Options{
		BaseURL: cfg.BackendBaseURL,
		Timeout: cfg.BackendTimeout,
		RPS:     cfg.BackendRPS,
		Burst:   cfg.BackendBurst,
	}, log)
}

func serve(cfg *config.Config) error {
	log := logger.New(cfg)

	manager, err := chat.NewManager(newBackend(cfg, log), chat.Options{
		PollInterval:          cfg.PollInterval,
		DirectoryRefreshDelay: cfg.DirectoryRefreshDelay,
		Directory:             chat.DirectoryOptions{DedupeEvents: cfg.DedupePartnerEvents},
	}, cfg.MaxSessions, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go manager.Start(ctx)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	handlers.NewInboxHandler(manager, log).Register(app)

	if cfg.StaticDir != "" {
		if _, err := os.Stat(cfg.StaticDir); err == nil {
			app.Static("/", cfg.StaticDir)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("backend", cfg.BackendBaseURL).Msg("inbox gateway listening")
		errCh <- app.Listen(cfg.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		manager.Shutdown()
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	manager.Shutdown()
	return nil
}
