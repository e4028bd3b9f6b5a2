package models

import (
	"time"

	"imgbeam/files"
	"imgbeam/storage"
)

// Transfer is the JSON view of one transfer history row.
type Transfer struct {
	TransferID    string    `json:"transfer_id"`
	Direction     string    `json:"direction"`
	FileName      string    `json:"file_name"`
	SourceLocator string    `json:"source_locator"`
	StoredPath    string    `json:"stored_path,omitempty"`
	Filesize      int64     `json:"filesize"`
	FormattedSize string    `json:"formatted_size"`
	Checksum      string    `json:"checksum,omitempty"`
	Status        string    `json:"status"`
	Message       string    `json:"message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Announcement is the JSON view of a decoded announcement.
type Announcement struct {
	FileName      string `json:"file_name"`
	SourceLocator string `json:"source_locator"`
}

// FromStorage converts a stored row.
func FromStorage(row storage.Transfer) Transfer {
	return Transfer{
		TransferID:    row.TransferID,
		Direction:     row.Direction,
		FileName:      row.FileName,
		SourceLocator: row.SourceLocator,
		StoredPath:    row.StoredPath,
		Filesize:      row.Filesize,
		FormattedSize: files.FormattedSize(row.Filesize),
		Checksum:      row.Checksum,
		Status:        row.Status,
		Message:       row.StatusMessage,
		CreatedAt:     time.UnixMilli(row.CreatedAt).UTC(),
		UpdatedAt:     time.UnixMilli(row.UpdatedAt).UTC(),
	}
}
