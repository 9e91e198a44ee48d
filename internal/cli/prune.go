package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPruneCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove expired working memories to reclaim space",
		Long: `Expired working memories are already invisible to every read path;
prune reclaims their storage and drops their embeddings.

  mnemo prune            # delete expired working memories
  mnemo prune --dry-run  # preview how many would be deleted`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			if dryRun {
				n, err := eng.store.CountExpired(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("Would delete %d expired working memories\n", n)
				return nil
			}

			n, err := eng.store.SweepExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d expired working memories\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview what would be pruned without deleting")
	return cmd
}
