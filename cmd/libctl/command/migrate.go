package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"unilib/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run schema migrations",
	Long:  `Apply the schema to the configured database. Safe to run repeatedly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, _, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close(db)

		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Println("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
