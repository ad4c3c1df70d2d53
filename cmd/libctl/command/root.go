package command

// root.go defines the root command for libctl, the operator CLI.
// Subcommands talk to the database directly; they do not go through
// the HTTP API.

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"unilib/database"
	"unilib/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "libctl",
	Short: "libctl - library system operations CLI",
	Long: `libctl is the operator tool for the library reservation system.
It runs migrations, seeds reference data, triggers expiration sweeps
and manages service API keys.

Use "libctl <command> -h" to see the flags of each command.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openDB loads the environment configuration and connects. Every
// subcommand that touches the database goes through here.
func openDB() (*gorm.DB, *config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	db, err := database.ConnectDB(cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect: %w", err)
	}
	return db, cfg, logger, nil
}
