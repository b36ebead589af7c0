package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ridefleet/api"
	"github.com/kilianp07/ridefleet/core/model"
)

var (
	tokenSubject string
	tokenRole    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token signed with http.jwt_secret",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "sub", "", "principal id")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(model.RoleAdmin), "admin, driver or passenger")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.HTTP.JWTSecret == "" {
		return fmt.Errorf("http.jwt_secret is not set")
	}
	tok, err := api.IssueToken([]byte(cfg.HTTP.JWTSecret), model.Principal{ID: tokenSubject, Role: model.Role(tokenRole)}, tokenTTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
	return err
}
