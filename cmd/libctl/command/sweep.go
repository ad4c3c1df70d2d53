package command

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"unilib/database"
	"unilib/internal/repository"
	"unilib/internal/service"
)

var sweepNotify bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire overdue pickup holds now",
	Long: `Run one expiration pass over all ready_for_pickup reservations whose
deadline has passed, promoting the next queued reservations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, cfg, logger, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close(db)

		// Without --notify no dispatcher is wired, so notification state
		// stays pending and the server's own sweeper still delivers. A nil
		// dispatcher must never be recorded as a sent notification.
		var dispatcher service.Dispatcher
		if sweepNotify {
			dispatcher = service.NewNotificationService(repository.NewNotificationRepository(db))
		}

		svc := service.NewReservationService(
			repository.NewReservationRepository(db),
			repository.NewCopyRepo(db),
			repository.NewUserRepository(db),
			dispatcher,
			cfg.PickupHoldWindow,
			logger,
		)

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		report, err := svc.Sweep(ctx, time.Now())
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}

		fmt.Printf("scanned=%d expired=%d promoted=%d failed=%d\n",
			report.Scanned, report.Expired, report.Promoted, len(report.Failed))
		for _, id := range report.Failed {
			fmt.Printf("  failed reservation %d\n", id)
		}
		return nil
	},
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepNotify, "notify", false, "record notifications for promoted holds")
	rootCmd.AddCommand(sweepCmd)
}
