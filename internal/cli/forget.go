package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newForgetCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "forget <memory-id>",
		Short: "Delete a memory by id",
		Args:  cobra.ExactArgs(1),
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

			if err := eng.store.Delete(cmd.Context(), userID, args[0]); err != nil {
				return err
			}
			fmt.Printf("Memory %s deleted.\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "Owner user id (default from config)")
	return cmd
}
