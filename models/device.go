package models

// Device is the JSON view of the local device settings.
type Device struct {
	DeviceID      string `json:"device_id"`
	DeviceName    string `json:"device_name"`
	PortMode      string `json:"port_mode"`
	ListeningPort int    `json:"listening_port"`
	AdvertiseHost string `json:"advertise_host"`
	TransferDir   string `json:"transfer_dir"`
	ShareDir      string `json:"share_dir"`
	ConfigPath    string `json:"config_path"`
	DatabasePath  string `json:"database_path"`
}
