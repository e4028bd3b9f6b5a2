package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"imgbeam/config"
	"imgbeam/storage"
)

var (
	flagJSON    bool
	flagVerbose bool
	flagDataDir string
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "imgbeam",
		Short: "Hand images to nearby devices",
		Long: `imgbeam stages an image, announces it to nearby devices over mDNS,
and serves the bytes to whichever peer fetches it.

Get started:
  imgbeam send photo.jpg       Announce and serve an image
  imgbeam receive --once       Fetch the next announced image
  imgbeam history              Show sent and received images`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagVerbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
			loaded, err := config.LoadEnvFile()
			if err != nil {
				return err
			}
			if loaded != "" {
				logrus.WithField("path", loaded).Debug("Loaded env file")
			}
			return nil
		},
	}

	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Override the data directory (default: $"+config.DataDirEnv+" or the OS config dir)")

	root.AddCommand(
		newInfoCmd(),
		newEncodeCmd(),
		newDecodeCmd(),
		newInspectCmd(),
		newSendCmd(),
		newReceiveCmd(),
		newPeersCmd(),
		newCleanupCmd(),
		newHistoryCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetOutput(os.Stderr)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// device is the loaded local configuration shared by commands that touch disk.
type device struct {
	cfg     *config.DeviceConfig
	cfgPath string
	dataDir string
}

func loadDevice() (*device, error) {
	dataDir := flagDataDir
	if dataDir == "" {
		resolved, err := config.ResolveDataDir()
		if err != nil {
			return nil, err
		}
		dataDir = resolved
	}

	cfg, cfgPath, err := config.LoadOrCreateIn(dataDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"device_id": cfg.DeviceID,
		"config":    cfgPath,
	}).Debug("Configuration loaded")
	return &device{cfg: cfg, cfgPath: cfgPath, dataDir: dataDir}, nil
}

func (d *device) openStore() (*storage.Store, string, error) {
	store, dbPath, err := storage.Open(d.dataDir)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}
	return store, dbPath, nil
}

func closeStore(store *storage.Store) {
	if err := store.Close(); err != nil {
		logrus.WithError(err).Warn("Database close error")
	}
}
