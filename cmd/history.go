package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"imgbeam/models"
	"imgbeam/storage"
)

func newHistoryCmd() *cobra.Command {
	var (
		direction string
		limit     int
		offset    int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List sent and received images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch direction {
			case "", storage.DirectionSend, storage.DirectionReceive:
			default:
				return fmt.Errorf("invalid --direction %q (want %s or %s)", direction, storage.DirectionSend, storage.DirectionReceive)
			}

			dev, err := loadDevice()
			if err != nil {
				return err
			}
			store, _, err := dev.openStore()
			if err != nil {
				return err
			}
			defer closeStore(store)

			rows, err := store.ListTransfers(direction, limit, offset)
			if err != nil {
				return err
			}
			out := make([]models.Transfer, 0, len(rows))
			for _, row := range rows {
				out = append(out, models.FromStorage(row))
			}

			if flagJSON {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			return writeTransferTable(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&direction, "direction", "", "Only show send or receive entries")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Entries to skip")
	return cmd
}
