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
	if err := newRootCmd(defaultAuditFactories()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(f auditFactories) *cobra.Command {
	var (
		cfgPath     string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:          "outcome-audit",
		Short:        "Consumes dispatch outcomes and checks them against the job/bid ledger",
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

			err = RunAudit(ctx, cfg, metricsAddr, log, f)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("outcome audit stopped")
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", os.Getenv("configPath"), "path to the YAML config")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address when set")
	return cmd
}
