package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/CourierBid/config"
	"github.com/BearBump/CourierBid/internal/bootstrap"
	"github.com/BearBump/CourierBid/internal/logger"
	"github.com/BearBump/CourierBid/internal/services/courier"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(bootstrap.Open).Execute(); err != nil {
		os.Exit(1)
	}
}

type openFunc func(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bootstrap.Substrate, error)

func newRootCmd(open openFunc) *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:          "courier-agent <courier-id>",
		Short:        "Simulates one courier: reports its position and bids on offers",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
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
			return runAgent(ctx, args[0], cfg, log, open)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", os.Getenv("configPath"), "path to the YAML config")
	return cmd
}

func runAgent(ctx context.Context, id string, cfg *config.Config, log *logger.Logger, open openFunc) error {
	if id == "" {
		return fmt.Errorf("courier id must not be empty")
	}
	sub, err := open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer sub.Close()

	timing := courier.NewTiming(bootstrap.CourierConfig(cfg), nil)
	agent := courier.New(id, sub.CourierDeps(), timing, log)
	if err := agent.Run(ctx); err != nil {
		log.WithError(err).WithField("courier_id", id).Error("courier agent failed")
		return err
	}
	log.WithField("stats", agent.Snapshot()).Info("courier agent finished")
	return nil
}
