package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ridefleet/app"
	"github.com/kilianp07/ridefleet/core/model"
)

var rideStatus string

var ridesCmd = &cobra.Command{
	Use:   "rides",
	Short: "Ride related commands",
}

var ridesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List rides",
	RunE:  runRidesLs,
}

func init() {
	ridesLsCmd.Flags().StringVar(&rideStatus, "status", "", "comma separated statuses to keep")
	ridesCmd.AddCommand(ridesLsCmd)
	rootCmd.AddCommand(ridesCmd)
}

func runRidesLs(cmd *cobra.Command, _ []string) error {
	var f model.RideFilter
	if rideStatus != "" {
		for _, s := range strings.Split(rideStatus, ",") {
			st, err := model.ParseRideStatus(strings.TrimSpace(s))
			if err != nil {
				return err
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return withService(cmd.Context(), cfg, func(ctx context.Context, svc *app.Service) error {
		rides, err := svc.Engine.Rides.List(ctx, model.System, f)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tPASSENGER\tDRIVER\tREQUESTED\tDISTANCE_KM")
		for _, r := range rides {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.1f\n", r.ID, r.Status, r.PassengerID, r.DriverID,
				r.RequestedAt.Format("2006-01-02 15:04"), r.DistanceKm)
		}
		return tw.Flush()
	})
}
