package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"unilib/database"
	"unilib/internal/models"
	"unilib/internal/service"
)

var (
	seedUsername string
	seedPassword string
	seedEmail    string
	seedRole     string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed reference data",
}

// seed user creates an account directly in the database, bypassing the
// API. Used to bootstrap the first admin.
var seedUserCmd = &cobra.Command{
	Use:   "user",
	Short: "Create a user account",
	RunE: func(cmd *cobra.Command, args []string) error {
		switch seedRole {
		case models.RoleStudent, models.RoleProfessor, models.RoleLibrarian, models.RoleAdmin:
		default:
			return fmt.Errorf("unknown role %q", seedRole)
		}

		db, _, _, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close(db)

		hash, err := service.HashPassword(seedPassword)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}

		user := models.User{
			Username: seedUsername,
			Email:    seedEmail,
			Password: hash,
			Role:     seedRole,
		}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		fmt.Printf("created %s %q (%s)\n", user.Role, user.Username, user.ID)
		return nil
	},
}

func init() {
	seedUserCmd.Flags().StringVar(&seedUsername, "username", "", "username")
	seedUserCmd.Flags().StringVar(&seedPassword, "password", "", "password")
	seedUserCmd.Flags().StringVar(&seedEmail, "email", "", "email address")
	seedUserCmd.Flags().StringVar(&seedRole, "role", models.RoleLibrarian, "account role")
	seedUserCmd.MarkFlagRequired("username")
	seedUserCmd.MarkFlagRequired("password")
	seedUserCmd.MarkFlagRequired("email")

	seedCmd.AddCommand(seedUserCmd)
	rootCmd.AddCommand(seedCmd)
}
