package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ridefleet/app"
)

var (
	seedFile string
	seedDemo bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Register drivers and passengers from a seed file",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "YAML seed file")
	seedCmd.Flags().BoolVar(&seedDemo, "demo", false, "load the built-in demo fleet")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	if seedFile == "" && !seedDemo {
		return fmt.Errorf("one of --file or --demo is required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Seed.File, cfg.Seed.Demo = seedFile, seedDemo
	return withService(cmd.Context(), cfg, func(ctx context.Context, svc *app.Service) error {
		drivers, err := svc.Engine.Drivers.List(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d drivers registered\n", len(drivers))
		return err
	})
}
