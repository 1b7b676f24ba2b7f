package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratumhq/stratum/internal/config"
	"github.com/stratumhq/stratum/internal/engine"
	"github.com/stratumhq/stratum/internal/store"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one lifecycle sweep pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		applyEnv(&cfg)

		dbPath := cfg.Database.Path
		if dbPath == "" {
			var err error
			dbPath, err = store.DefaultDBPath()
			if err != nil {
				return fmt.Errorf("resolve db path: %w", err)
			}
		}

		db, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		// Force a full pass regardless of when memories were last swept.
		cfg.Lifecycle.SweepInterval = 0

		eng := engine.New(db, cfg)
		report, err := eng.Sweep(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("evaluated %d memories: archived %d, deleted %d, retiered %d, skipped %d\n",
			report.Evaluated, report.Archived, report.Deleted, report.Retiered, report.Skipped)

		refreshed, err := eng.RefreshStaleCoherence()
		if err != nil {
			return err
		}
		if refreshed > 0 {
			fmt.Printf("refreshed coherence for %d clusters\n", refreshed)
		}
		return nil
	},
}
