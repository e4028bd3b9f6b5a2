package storage

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates a requested row does not exist.
	ErrNotFound = errors.New("storage: record not found")
)

const (
	// DirectionSend marks an image staged and announced by this device.
	DirectionSend = "send"
	// DirectionReceive marks an image fetched from a peer.
	DirectionReceive = "receive"
)

const (
	StatusPending   = "pending"
	StatusAnnounced = "announced"
	StatusComplete  = "complete"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
)

// Transfer is the SQLite representation of one announced or received image.
type Transfer struct {
	TransferID    string
	Direction     string
	FileName      string
	SourceLocator string
	Announcement  string
	StoredPath    string
	Filesize      int64
	Checksum      string
	Status        string
	StatusMessage string
	CreatedAt     int64
	UpdatedAt     int64
}

type scanner interface {
	Scan(dest ...any) error
}

func validateDirection(direction string) error {
	switch direction {
	case DirectionSend, DirectionReceive:
		return nil
	default:
		return fmt.Errorf("invalid transfer direction %q", direction)
	}
}

func validateTransferStatus(status string) error {
	switch status {
	case StatusPending, StatusAnnounced, StatusComplete, StatusFailed, StatusRejected:
		return nil
	default:
		return fmt.Errorf("invalid transfer status %q", status)
	}
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
