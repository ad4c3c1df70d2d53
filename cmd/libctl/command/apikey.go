package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"unilib/database"
	"unilib/internal/middleware"
	"unilib/internal/models"
	"unilib/internal/repository"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage service API keys",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an API key",
	Long: `Create a named API key for a machine caller. The plaintext key is
printed once and never stored; only its hash is kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, _, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close(db)

		plaintext := uuid.NewString()
		key := &models.APIKey{
			Name:    args[0],
			KeyHash: middleware.HashAPIKey(plaintext),
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		if err := repository.NewAPIKeyRepository(db).Create(ctx, key); err != nil {
			return fmt.Errorf("create api key: %w", err)
		}

		fmt.Printf("api key %q created\n", key.Name)
		fmt.Printf("key: %s\n", plaintext)
		fmt.Println("store it now; it cannot be recovered")
		return nil
	},
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <name>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, _, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close(db)

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		if err := repository.NewAPIKeyRepository(db).Revoke(ctx, args[0]); err != nil {
			return fmt.Errorf("revoke api key: %w", err)
		}
		fmt.Printf("api key %q revoked\n", args[0])
		return nil
	},
}

func init() {
	apikeyCmd.AddCommand(apikeyCreateCmd, apikeyRevokeCmd)
	rootCmd.AddCommand(apikeyCmd)
}
