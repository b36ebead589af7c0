package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ridefleet/app"
)

var driversCmd = &cobra.Command{
	Use:   "drivers",
	Short: "Driver related commands",
}

var driversLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List registered drivers",
	RunE:  runDriversLs,
}

func init() {
	driversCmd.AddCommand(driversLsCmd)
	rootCmd.AddCommand(driversCmd)
}

func runDriversLs(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return withService(cmd.Context(), cfg, func(ctx context.Context, svc *app.Service) error {
		drivers, err := svc.Engine.Drivers.List(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tPLATE\tONLINE\tACTIVE\tKM\tRIDES")
		for _, d := range drivers {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%t\t%d\t%d\n", d.ID, d.Name, d.LicensePlate, d.Online, d.Active, d.CurrentKm, d.TotalRides)
		}
		return tw.Flush()
	})
}
