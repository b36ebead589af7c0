package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ridefleet/app"
	"github.com/kilianp07/ridefleet/config"
	"github.com/kilianp07/ridefleet/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "ridefleet",
	Short:        "Ride lifecycle and driver coordination service",
	RunE:         runServe,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// withService builds the service from cfg, runs fn and closes it.
func withService(ctx context.Context, cfg *config.Config, fn func(context.Context, *app.Service) error) error {
	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("cli").Errorf("service close: %v", err)
		}
	}()
	return fn(ctx, svc)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return withService(ctx, cfg, func(ctx context.Context, svc *app.Service) error {
		return svc.Run(ctx)
	})
}
