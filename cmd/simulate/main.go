package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/CourierBid/config"
	"github.com/BearBump/CourierBid/internal/logger"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		opts    simOpts
	)
	cmd := &cobra.Command{
		Use:          "simulate",
		Short:        "Runs couriers and a dispatcher in one process on the memory substrate",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := &config.Config{Backend: config.BackendMemory}
			if cfgPath != "" {
				loaded, err := config.LoadConfig(cfgPath)
				if err != nil {
					return fmt.Errorf("ошибка парсинга конфига, %w", err)
				}
				cfg = loaded
				// the simulation always runs in process
				cfg.Backend, cfg.Ledger = config.BackendMemory, ""
			}
			if !cmd.Flags().Changed("cycles") && cfg.Dispatch.Cycles != 0 {
				opts.cycles = 0
			}
			if !cmd.Flags().Changed("window") && cfg.Dispatch.AcceptanceWindowSeconds != 0 {
				opts.window = 0
			}
			log := logger.New(cfg.Logger)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			report, err := runSimulation(ctx, cfg, opts, log)
			if report != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				_ = enc.Encode(report)
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", os.Getenv("configPath"), "optional YAML config; backend is forced to memory")
	cmd.Flags().IntVar(&opts.couriers, "couriers", 5, "number of simulated couriers")
	cmd.Flags().IntVar(&opts.cycles, "cycles", 5, "dispatch cycles to run")
	cmd.Flags().DurationVar(&opts.window, "window", 10*time.Second, "acceptance window")
	cmd.Flags().DurationVar(&opts.warmup, "warmup", time.Second, "time given to couriers to report before the first cycle")
	return cmd
}
