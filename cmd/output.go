package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"imgbeam/models"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeDetail(w io.Writer, rows [][2]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1])
	}
	return tw.Flush()
}

func writeTransferTable(w io.Writer, transfers []models.Transfer) error {
	if len(transfers) == 0 {
		_, err := fmt.Fprintln(w, "No transfers recorded.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tDIRECTION\tFILE\tSIZE\tSTATUS")
	for _, t := range transfers {
		status := t.Status
		if t.Message != "" {
			status += " (" + t.Message + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			t.CreatedAt.Local().Format(time.DateTime),
			t.Direction,
			t.FileName,
			t.FormattedSize,
			status,
		)
	}
	return tw.Flush()
}
