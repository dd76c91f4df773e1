package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/KevinKickass/et7000d/internal/config"
	"github.com/KevinKickass/et7000d/internal/system"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll the configured modules and serve the REST and WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the config file (empty for defaults and environment only)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Config loaded successfully",
		zap.String("devices", cfg.Devices.File),
		zap.Duration("poll_interval", cfg.Modbus.PollInterval))

	lifecycle := system.NewLifecycleManager(cfg, logger, nil)

	if err := lifecycle.Start(ctx); err != nil {
		_ = lifecycle.Shutdown(context.Background())
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received")

	if err := lifecycle.Shutdown(context.Background()); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		return err
	}

	logger.Info("et7000d stopped successfully")
	return nil
}
