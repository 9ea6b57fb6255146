package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/terra-clan/checklist-engine/internal/auth"
	"github.com/terra-clan/checklist-engine/internal/storage"
)

var (
	adminUsername    string
	adminDisplayName string
	adminPassword    string
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage admin accounts",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an admin account",
	Long: `Create an admin account that can sign in to the admin API.

The password is taken from --password or, when omitted, from the
ADMIN_PASSWORD environment variable.

Examples:
  checklist-engine admin create --username alice --display-name "Alice Meyer"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := adminPassword
		if password == "" {
			password = os.Getenv("ADMIN_PASSWORD")
		}
		if password == "" {
			return errors.New("password is required (--password or ADMIN_PASSWORD)")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		repo, err := openRepository(ctx, cfg.Database, cfg.Database.AutoMigrate)
		if err != nil {
			return err
		}
		defer repo.Close()

		user, err := auth.CreateAdmin(ctx, repo, adminUsername, adminDisplayName, password)
		if err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return fmt.Errorf("admin %q already exists", adminUsername)
			}
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Created admin %s (%s)\n", user.Username, user.ID)
		return nil
	},
}

func init() {
	adminCreateCmd.Flags().StringVarP(&adminUsername, "username", "u", "", "login name (required)")
	adminCreateCmd.Flags().StringVar(&adminDisplayName, "display-name", "", "name shown in the admin UI")
	adminCreateCmd.Flags().StringVarP(&adminPassword, "password", "p", "", "password, at least 8 characters")
	_ = adminCreateCmd.MarkFlagRequired("username")

	adminCmd.AddCommand(adminCreateCmd)
}
