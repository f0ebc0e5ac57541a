package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/CourierBid/config"
	"github.com/BearBump/CourierBid/internal/logger"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(defaultDispatcherFactories()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(f dispatcherFactories) *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:          "dispatcher",
		Short:        "Runs dispatch cycles: creates jobs, offers them to nearby couriers and assigns winners",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfgPath == "" {
				return fmt.Errorf("config path is required (--config or configPath env)")
			}
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return fmt.Errorf("ошибка парсинга конфига, %w", err)
			}
			log := logger.New(cfg.Logger)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			err = RunDispatcher(ctx, cfg, log, f)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("dispatcher stopped")
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", os.Getenv("configPath"), "path to the YAML config")
	return cmd
}
