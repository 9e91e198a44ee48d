package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemo-ai/mnemo/internal/memory"
)

func newStatsCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-type memory counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			userID := user
			if userID == "" {
				userID = eng.cfg.DefaultUser
			}

			stats, err := eng.store.Statistics(cmd.Context(), userID)
			if err != nil {
				return err
			}

			fmt.Printf("Memories for %s: %d total\n", userID, stats.Total)
			for _, k := range memory.AllKinds() {
				fmt.Printf("  %-10s %d\n", k, stats.ByKind[k])
			}
			fmt.Printf("Knowledge diversity: %d/%d types in use\n", stats.KnowledgeDiversity, len(memory.AllKinds()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "Owner user id (default from config)")
	return cmd
}
