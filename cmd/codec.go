package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"imgbeam/announce"
	"imgbeam/models"
)

var errNotAnnouncement = errors.New("not an image transfer announcement")

func newEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <file-name> <source-locator>",
		Short: "Build an announcement string",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := announce.New(args[0], args[1])
			if err != nil {
				return err
			}
			if flagJSON {
				return writeJSON(cmd.OutOrStdout(), struct {
					Announcement string `json:"announcement"`
				}{a.String()})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), a.String())
			return err
		},
	}
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <announcement>",
		Short: "Parse an announcement string",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok := announce.Decode(args[0])
			if !ok {
				return errNotAnnouncement
			}
			if flagJSON {
				return writeJSON(cmd.OutOrStdout(), models.Announcement{
					FileName:      a.FileName,
					SourceLocator: a.SourceLocator,
				})
			}
			return writeDetail(cmd.OutOrStdout(), [][2]string{
				{"File Name", a.FileName},
				{"Source", a.SourceLocator},
			})
		},
	}
}
