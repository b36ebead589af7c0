package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ridefleet/app"
	"github.com/kilianp07/ridefleet/core/model"
	"github.com/kilianp07/ridefleet/core/report"
)

var (
	exportFormat string
	exportDriver string
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Attendance related commands",
}

var attendanceExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write attendance sessions to stdout",
	RunE:  runAttendanceExport,
}

func init() {
	attendanceExportCmd.Flags().StringVar(&exportFormat, "format", "csv", "csv or json")
	attendanceExportCmd.Flags().StringVar(&exportDriver, "driver", "", "restrict to one driver")
	attendanceCmd.AddCommand(attendanceExportCmd)
	rootCmd.AddCommand(attendanceCmd)
}

func runAttendanceExport(cmd *cobra.Command, _ []string) error {
	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("unsupported format %s", exportFormat)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return withService(cmd.Context(), cfg, func(ctx context.Context, svc *app.Service) error {
		sessions, err := svc.Engine.Attendance.List(ctx, model.System, model.SessionFilter{DriverID: exportDriver})
		if err != nil {
			return err
		}
		if exportFormat == "json" {
			return report.WriteAttendanceJSON(cmd.OutOrStdout(), sessions)
		}
		return report.WriteAttendanceCSV(cmd.OutOrStdout(), sessions)
	})
}
