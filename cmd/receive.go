package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"imgbeam/discovery"
	"imgbeam/files"
	"imgbeam/network"
	"imgbeam/storage"
	"imgbeam/transfer"
)

type receiveOptions struct {
	message string
	once    bool
	timeout time.Duration
}

func newReceiveCmd() *cobra.Command {
	var opts receiveOptions

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Fetch images announced by nearby devices",
		Long: `Listen for announcements from nearby devices and fetch each image into
the transfer directory. With --message, handle one announcement delivered by
other means and exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if opts.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.timeout)
				defer cancel()
			}
			return runReceive(ctx, cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.message, "message", "", "Handle this announcement text and exit")
	cmd.Flags().BoolVar(&opts.once, "once", false, "Exit after the first image is received")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Give up after this long (default: until interrupted)")
	return cmd
}

func runReceive(ctx context.Context, w io.Writer, opts receiveOptions) error {
	dev, err := loadDevice()
	if err != nil {
		return err
	}
	store, _, err := dev.openStore()
	if err != nil {
		return err
	}
	defer closeStore(store)

	if opts.message != "" {
		receiver, err := newReceiver(dev, store, w, operatorResolver())
		if err != nil {
			return err
		}
		result, err := receiver.Receive(ctx, opts.message)
		if errors.Is(err, transfer.ErrNotAnnouncement) {
			return errNotAnnouncement
		}
		if err != nil {
			return err
		}
		return printReceived(w, result)
	}

	receiver, err := newReceiver(dev, store, w, discoveredResolver())
	if err != nil {
		return err
	}

	janitor, err := transfer.NewJanitor(transfer.JanitorOptions{
		TransferDir: dev.cfg.TransferDir,
		ShareDir:    dev.cfg.ShareDir,
		Interval:    dev.cfg.CleanupEvery(),
		Pruner:      store,
	})
	if err != nil {
		return err
	}
	janitor.Start()
	defer janitor.Stop()

	scanner, err := discovery.NewPeerScanner(discovery.Config{
		SelfDeviceID: dev.cfg.DeviceID,
		Logger:       logrus.StandardLogger(),
	})
	if err != nil {
		return fmt.Errorf("starting discovery: %w", err)
	}
	if err := scanner.Start(); err != nil {
		return err
	}
	defer scanner.Stop()

	if !flagJSON {
		fmt.Fprintln(w, "Waiting for announcements (press Ctrl+C to stop)")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-scanner.Events():
			if !ok {
				return nil
			}
			if event.Type != discovery.EventAnnouncement {
				continue
			}
			result, err := receiver.Receive(ctx, event.Peer.RawAnnouncement)
			if errors.Is(err, transfer.ErrDuplicate) {
				continue
			}
			if err != nil {
				logrus.WithError(err).WithField("device_id", event.Peer.DeviceID).Debug("Announcement not received")
				continue
			}
			if err := printReceived(w, result); err != nil {
				return err
			}
			if opts.once {
				return nil
			}
		}
	}
}

// operatorResolver opens locators the user typed, including local paths.
func operatorResolver() files.Resolver {
	return network.MultiResolver{}
}

// discoveredResolver opens locators read off the network. Peers only get to
// name files they serve themselves, never paths on this machine.
func discoveredResolver() files.Resolver {
	return network.Resolver{}
}

func newReceiver(dev *device, store *storage.Store, w io.Writer, resolver files.Resolver) (*transfer.Receiver, error) {
	enc := json.NewEncoder(w)
	return transfer.NewReceiver(transfer.ReceiverOptions{
		TransferDir: dev.cfg.TransferDir,
		Resolver:    resolver,
		History:     store,
		Tracker:     transfer.NewProgressTracker(),
		OnEvent: func(event transfer.Event) {
			if flagJSON {
				_ = enc.Encode(event)
				return
			}
			if event.Kind == transfer.KindProgress && event.Percent%25 != 0 {
				return
			}
			fmt.Fprintln(w, event.String())
		},
	})
}

func printReceived(w io.Writer, result *transfer.Result) error {
	if flagJSON {
		return writeJSON(w, result)
	}
	return writeDetail(w, [][2]string{
		{"Saved", result.StoredPath},
		{"Size", files.FormattedSize(result.Filesize)},
		{"SHA-256", result.Checksum},
	})
}
