package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/stratumhq/stratum/internal/config"
	"github.com/stratumhq/stratum/internal/engine"
	"github.com/stratumhq/stratum/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print memory distribution statistics and health findings",
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

		eng := engine.New(db, cfg)
		stats, err := eng.CollectStats()
		if err != nil {
			return err
		}

		fmt.Printf("memories: %d\n", stats.Total)
		printDist("tier", stats.ByTier)
		printDist("stage", stats.ByStage)
		printDist("importance", stats.ByImportance)
		printDist("scope", stats.ByScopeType)

		issues, err := eng.Health()
		if err != nil {
			return err
		}
		if len(issues) == 0 {
			fmt.Println("health: ok")
			return nil
		}
		fmt.Println("health:")
		for _, issue := range issues {
			fmt.Printf("  [%s] %s: %s\n", issue.Severity, issue.Code, issue.Detail)
		}
		return nil
	},
}

func printDist(label string, dist map[string]int) {
	if len(dist) == 0 {
		return
	}
	keys := make([]string, 0, len(dist))
	for k := range dist {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("%s:\n", label)
	for _, k := range keys {
		fmt.Printf("  %-18s %d\n", k, dist[k])
	}
}
