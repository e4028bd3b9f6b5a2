package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"imgbeam/files"
	"imgbeam/models"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <path>",
		Short: "Check whether a file can be sent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			size, err := files.MeasureSize(files.OpenPath(path))
			if err != nil {
				return err
			}

			info := models.File{
				Path:          path,
				Filesize:      size,
				FormattedSize: files.FormattedSize(size),
				IsImage:       files.IsValidImageFile(path),
				SizeValid:     files.IsFileSizeValid(size),
			}
			if info.IsImage {
				if info.Checksum, err = files.Checksum(path); err != nil {
					return err
				}
			}

			if flagJSON {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			rows := [][2]string{
				{"Path", info.Path},
				{"Size", info.FormattedSize + " (" + strconv.FormatInt(info.Filesize, 10) + " bytes)"},
				{"Image", strconv.FormatBool(info.IsImage)},
				{"Size Valid", strconv.FormatBool(info.SizeValid)},
			}
			if info.Checksum != "" {
				rows = append(rows, [2]string{"SHA-256", info.Checksum})
			}
			return writeDetail(cmd.OutOrStdout(), rows)
		},
	}
}
