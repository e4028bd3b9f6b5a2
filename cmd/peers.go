package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"imgbeam/discovery"
	"imgbeam/models"
)

func newPeersCmd() *cobra.Command {
	var scanFor time.Duration

	cmd := &cobra.Command{
		Use:   "peers",
		Short: "List nearby devices that are announcing an image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if scanFor <= 0 {
				scanFor = discovery.DefaultScanTimeout
			}
			dev, err := loadDevice()
			if err != nil {
				return err
			}

			scanner, err := discovery.NewPeerScanner(discovery.Config{
				SelfDeviceID: dev.cfg.DeviceID,
				ScanTimeout:  scanFor,
				Logger:       logrus.StandardLogger(),
			})
			if err != nil {
				return fmt.Errorf("starting discovery: %w", err)
			}
			if err := scanner.Start(); err != nil {
				return err
			}
			defer scanner.Stop()

			// Start primes one scan; Refresh queues behind it.
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*scanFor+time.Second)
			defer cancel()
			if err := scanner.Refresh(ctx); err != nil {
				return fmt.Errorf("scanning for peers: %w", err)
			}

			peers := make([]models.Peer, 0)
			for _, p := range scanner.ListPeers() {
				peers = append(peers, models.Peer{
					DeviceID:          p.DeviceID,
					DeviceName:        p.DeviceName,
					Addresses:         p.Addresses,
					Port:              p.Port,
					FileName:          p.Announcement.FileName,
					SourceLocator:     p.Announcement.SourceLocator,
					Announcement:      p.RawAnnouncement,
					LastSeenTimestamp: p.LastSeen.UnixMilli(),
				})
			}

			if flagJSON {
				return writeJSON(cmd.OutOrStdout(), peers)
			}
			return writePeerTable(cmd.OutOrStdout(), peers)
		},
	}
	cmd.Flags().DurationVar(&scanFor, "scan-for", discovery.DefaultScanTimeout, "How long to browse for announcements")
	return cmd
}

func writePeerTable(w io.Writer, peers []models.Peer) error {
	if len(peers) == 0 {
		_, err := fmt.Fprintln(w, "No nearby devices are announcing an image.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tADDRESS\tFILE\tSOURCE")
	for _, p := range peers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			p.DeviceName,
			strings.Join(p.Addresses, ","),
			p.FileName,
			p.SourceLocator,
		)
	}
	return tw.Flush()
}
