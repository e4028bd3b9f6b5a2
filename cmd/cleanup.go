package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"imgbeam/transfer"
)

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete staged and received images older than seven days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := loadDevice()
			if err != nil {
				return err
			}
			store, _, err := dev.openStore()
			if err != nil {
				return err
			}
			defer closeStore(store)

			janitor, err := transfer.NewJanitor(transfer.JanitorOptions{
				TransferDir: dev.cfg.TransferDir,
				ShareDir:    dev.cfg.ShareDir,
				Pruner:      store,
			})
			if err != nil {
				return err
			}
			result, sweepErr := janitor.Sweep()

			if flagJSON {
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				for _, path := range result.Deleted {
					fmt.Fprintln(cmd.OutOrStdout(), "Deleted", path)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d file(s) deleted\n", len(result.Deleted))
			}
			return sweepErr
		},
	}
}
