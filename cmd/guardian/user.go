package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/HerbHall/guardian/internal/accounts"
	"github.com/HerbHall/guardian/internal/devices"
	"github.com/HerbHall/guardian/internal/server"
	"github.com/HerbHall/guardian/pkg/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user account",
	Long: `Create a user account and optionally link a device to it.

Accounts are normally provisioned by the account service; this command
seeds them for local installs and testing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		email, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")
		deviceID, _ := cmd.Flags().GetString("device")
		radius, _ := cmd.Flags().GetFloat64("radius")

		v, err := server.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		db, err := openDatabase(ctx, v.GetString("database.path"), zap.NewNop())
		if err != nil {
			return err
		}
		defer db.Close()

		users, err := accounts.NewStore(ctx, db)
		if err != nil {
			return fmt.Errorf("initialize account store: %w", err)
		}
		u := &models.User{Email: email, Name: name, GeoFenceRadius: radius}
		if err := users.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		if deviceID != "" {
			registry, err := devices.NewRegistry(ctx, db)
			if err != nil {
				return fmt.Errorf("initialize device registry: %w", err)
			}
			if err := registry.LinkUser(ctx, deviceID, u.ID); err != nil {
				return fmt.Errorf("link device: %w", err)
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Created user %s\n", u.ID)
		fmt.Fprintf(out, "  Email:  %s\n", u.Email)
		fmt.Fprintf(out, "  Radius: %.0f m\n", u.GeoFenceRadius)
		if deviceID != "" {
			fmt.Fprintf(out, "  Device: %s\n", deviceID)
		}
		return nil
	},
}

func init() {
	userAddCmd.Flags().String("email", "", "account email (required)")
	userAddCmd.Flags().String("name", "", "display name")
	userAddCmd.Flags().String("device", "", "device id to link to the account")
	userAddCmd.Flags().Float64("radius", models.DefaultGeoFenceRadius, "geo-fence radius in meters")
	_ = userAddCmd.MarkFlagRequired("email")

	userCmd.AddCommand(userAddCmd)
}

// ensureDir creates the parent directory of a database file.
func ensureDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create data directory %q: %w", dir, err)
	}
	return nil
}
