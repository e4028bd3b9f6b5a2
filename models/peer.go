package models

// Peer is the JSON view of a nearby device that is currently announcing an image.
type Peer struct {
	DeviceID          string   `json:"device_id"`
	DeviceName        string   `json:"device_name"`
	Addresses         []string `json:"addresses"`
	Port              int      `json:"port"`
	FileName          string   `json:"file_name"`
	SourceLocator     string   `json:"source_locator"`
	Announcement      string   `json:"announcement"`
	LastSeenTimestamp int64    `json:"last_seen_timestamp"`
}
