package models

// File describes a local image checked by the inspect command.
type File struct {
	Path          string `json:"path"`
	Filesize      int64  `json:"filesize"`
	FormattedSize string `json:"formatted_size"`
	IsImage       bool   `json:"is_image"`
	SizeValid     bool   `json:"size_valid"`
	Checksum      string `json:"checksum,omitempty"`
}
