// Package app holds the et7000d commands.
package app

import (
	"fmt"

	"github.com/KevinKickass/et7000d/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const component = "et7000d"

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          component,
		Short:        "Gateway for ICP DAS ET-7000 Modbus TCP I/O modules",
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCmd(), newProbeCmd(), newSimCmd(), newTokenCmd())
	return cmd
}

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zc.Level = level
	}

	return zc.Build()
}
