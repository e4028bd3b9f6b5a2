package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"imgbeam/config"
	"imgbeam/discovery"
	"imgbeam/files"
	"imgbeam/network"
	"imgbeam/transfer"
)

func newSendCmd() *cobra.Command {
	var serveFor time.Duration

	cmd := &cobra.Command{
		Use:   "send <image>",
		Short: "Announce an image and serve it until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if serveFor > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, serveFor)
				defer cancel()
			}
			return runSend(ctx, cmd.OutOrStdout(), args[0])
		},
	}
	cmd.Flags().DurationVar(&serveFor, "serve-for", 0, "Stop serving after this long (default: until interrupted)")
	return cmd
}

func runSend(ctx context.Context, w io.Writer, imagePath string) error {
	dev, err := loadDevice()
	if err != nil {
		return err
	}
	store, _, err := dev.openStore()
	if err != nil {
		return err
	}
	defer closeStore(store)

	listenAddr := ":0"
	if dev.cfg.PortMode == config.PortModeFixed {
		listenAddr = ":" + strconv.Itoa(dev.cfg.ListeningPort)
	}
	server, err := network.Listen(listenAddr, network.ServerOptions{
		ShareDir: dev.cfg.ShareDir,
		Logger:   logrus.WithField("component", "server"),
		OnServed: func(result network.ServeResult) {
			if result.Err == nil {
				fmt.Fprintf(w, "Served %s to %s (%s)\n", result.FileName, result.RemoteAddr, files.FormattedSize(result.Bytes))
			}
		},
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = server.Close()
	}()

	broadcaster, err := discovery.StartBroadcaster(discovery.Config{
		SelfDeviceID:  dev.cfg.DeviceID,
		DeviceName:    dev.cfg.DeviceName,
		ListeningPort: server.Port(),
		Logger:        logrus.StandardLogger(),
	})
	if err != nil {
		return fmt.Errorf("starting discovery: %w", err)
	}
	defer broadcaster.Stop()

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

	host := advertiseHost(dev)
	port := server.Port()
	sender, err := transfer.NewSender(transfer.SenderOptions{
		ShareDir: dev.cfg.ShareDir,
		Locator: func(fileName string) string {
			return network.Locator(host, port, fileName)
		},
		Announcer: broadcaster,
		History:   store,
	})
	if err != nil {
		return err
	}

	out, err := sender.Prepare(ctx, imagePath)
	if err != nil {
		return err
	}

	if flagJSON {
		if err := writeJSON(w, out); err != nil {
			return err
		}
	} else {
		if err := writeDetail(w, [][2]string{
			{"File", out.FileName},
			{"Size", files.FormattedSize(out.Filesize)},
			{"Source", out.SourceLocator},
			{"Announcement", out.Announcement},
		}); err != nil {
			return err
		}
		fmt.Fprintln(w, "Serving (press Ctrl+C to stop)")
	}

	<-ctx.Done()
	if err := sender.Withdraw(); err != nil {
		logrus.WithError(err).Warn("Withdraw announcement failed")
	}
	return nil
}
