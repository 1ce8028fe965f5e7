package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/chatgenie-server/internal/app"
	"github.com/vovakirdan/chatgenie-server/internal/config"
	applog "github.com/vovakirdan/chatgenie-server/internal/log"
)

type flags struct {
	configPath string
	addr       string
	logLevel   string
	dbPath     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:           "chatgenie-server",
		Short:         "Real-time chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), f)
		},
	}

	root.PersistentFlags().StringVar(&f.configPath, "config", "", "path to config file (default ./config.yaml)")
	root.PersistentFlags().StringVar(&f.addr, "addr", "", "HTTP listen address")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&f.dbPath, "db", "", "sqlite database path")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), f)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(f)
			if err != nil {
				return err
			}
			if err := app.Migrate(cmd.Context(), &cfg, logger); err != nil {
				logger.Error().Err(err).Msg("migration failed")
				return err
			}
			logger.Info().Msg("migrations applied")
			return nil
		},
	})

	return root
}

func loadConfig(f flags) (config.Config, *zerolog.Logger, error) {
	bootLogger := applog.New("info")

	cfg, path, err := config.Load(bootLogger, f.configPath)
	if err != nil {
		bootLogger.Error().Err(err).Msg("failed to load config")
		return cfg, bootLogger, err
	}

	cfg.UpdateFrom(config.Config{
		Addr:         f.addr,
		LogLevel:     f.logLevel,
		DatabasePath: f.dbPath,
	})

	logger := applog.New(cfg.LogLevel)
	logger.Debug().Str("config_path", path).Msg("configuration loaded")
	return cfg, logger, nil
}

func serve(parent context.Context, f flags) (err error) {
	cfg, logger, err := loadConfig(f)
	if err != nil {
		return err
	}

	// Panics in server goroutines surface from Run as app.ErrCrashed. This
	// covers the setup path on this goroutine with the same delayed exit.
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("server crashed")
			time.Sleep(cfg.CrashExitDelay)
			err = fmt.Errorf("server crashed: %v", r)
		}
	}()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, &cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize app")
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting chatgenie server")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
