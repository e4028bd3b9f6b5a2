package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"imgbeam/config"
	"imgbeam/models"
	"imgbeam/network"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show local device settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := loadDevice()
			if err != nil {
				return err
			}
			store, dbPath, err := dev.openStore()
			if err != nil {
				return err
			}
			closeStore(store)

			info := models.Device{
				DeviceID:      dev.cfg.DeviceID,
				DeviceName:    dev.cfg.DeviceName,
				PortMode:      dev.cfg.PortMode,
				ListeningPort: dev.cfg.ListeningPort,
				AdvertiseHost: advertiseHost(dev),
				TransferDir:   dev.cfg.TransferDir,
				ShareDir:      dev.cfg.ShareDir,
				ConfigPath:    dev.cfgPath,
				DatabasePath:  dbPath,
			}
			if flagJSON {
				return writeJSON(cmd.OutOrStdout(), info)
			}

			port := "automatic"
			if info.PortMode == config.PortModeFixed {
				port = strconv.Itoa(info.ListeningPort)
			}
			return writeDetail(cmd.OutOrStdout(), [][2]string{
				{"Device ID", info.DeviceID},
				{"Device Name", info.DeviceName},
				{"Listening Port", port},
				{"Advertise Host", info.AdvertiseHost},
				{"Transfer Dir", info.TransferDir},
				{"Share Dir", info.ShareDir},
				{"Config File", info.ConfigPath},
				{"Database File", info.DatabasePath},
			})
		},
	}
}

func advertiseHost(dev *device) string {
	if dev.cfg.AdvertiseHost != "" {
		return dev.cfg.AdvertiseHost
	}
	return network.AdvertiseHost()
}
