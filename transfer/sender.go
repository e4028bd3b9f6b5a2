package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"imgbeam/announce"
	"imgbeam/files"
	"imgbeam/storage"
)

var (
	// ErrNotImage indicates the source is not a regular file with an image extension.
	ErrNotImage = errors.New("transfer: not an image file")
	// ErrInvalidSize indicates the image is empty or larger than files.MaxImageSize.
	ErrInvalidSize = errors.New("transfer: image size out of range")
)

// Announcer publishes and withdraws announcement text on a proximity channel.
type Announcer interface {
	Announce(text string) error
	Withdraw() error
}

// History records transfer outcomes and remembers handled announcements.
// *storage.Store implements it.
type History interface {
	SaveTransfer(transfer storage.Transfer) error
	UpdateTransferStatus(transferID, status, message string) error
	CompleteTransfer(transferID, storedPath string, filesize int64, checksum string) error
	HasSeenAnnouncement(announcement string) (bool, error)
	InsertSeenAnnouncement(announcement string, receivedAt int64) error
	ForgetSeenAnnouncement(announcement string) error
}

// LocatorFunc returns the source locator a peer can open to fetch fileName
// from the share root.
type LocatorFunc func(fileName string) string

// SenderOptions wires a Sender to its collaborators.
type SenderOptions struct {
	ShareDir  string
	Locator   LocatorFunc
	Announcer Announcer
	// History may be nil.
	History History
	Logger  logrus.FieldLogger
	Now     func() time.Time
}

// Outbound is an image staged in the share root and announced to peers.
type Outbound struct {
	TransferID    string `json:"transfer_id"`
	FileName      string `json:"file_name"`
	SharedPath    string `json:"shared_path"`
	SourceLocator string `json:"source_locator"`
	Announcement  string `json:"announcement"`
	Filesize      int64  `json:"filesize"`
	Checksum      string `json:"checksum"`
}

// Sender stages images for peers to fetch.
type Sender struct {
	opts SenderOptions
	log  logrus.FieldLogger
}

// NewSender validates options and returns a Sender.
func NewSender(options SenderOptions) (*Sender, error) {
	if options.ShareDir == "" {
		return nil, errors.New("share directory is required")
	}
	if options.Locator == nil {
		return nil, errors.New("locator function is required")
	}
	if options.Announcer == nil {
		return nil, errors.New("announcer is required")
	}
	if options.Logger == nil {
		options.Logger = logrus.StandardLogger()
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Sender{
		opts: options,
		log:  options.Logger.WithField("component", "sender"),
	}, nil
}

// Prepare validates sourcePath, copies it into the share root, and publishes
// the announcement for the copy.
func (s *Sender) Prepare(ctx context.Context, sourcePath string) (*Outbound, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !files.IsValidImageFile(sourcePath) {
		return nil, fmt.Errorf("%w: %q", ErrNotImage, sourcePath)
	}

	size, err := files.MeasureSize(files.OpenPath(sourcePath))
	if err != nil {
		return nil, err
	}
	if !files.IsFileSizeValid(size) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSize, files.FormattedSize(size))
	}

	if err := files.EnsureDirectory(s.opts.ShareDir); err != nil {
		return nil, err
	}

	transferID := uuid.NewString()
	now := s.opts.Now()
	sharedPath, err := files.ReservePath(s.opts.ShareDir, files.ShareFileName(now), transferID[:8])
	if err != nil {
		return nil, err
	}
	// Until the announcement is out, a failure must not leave a servable copy behind.
	staged := false
	defer func() {
		if !staged {
			s.unstage(sharedPath)
		}
	}()

	if _, err := files.CopyFile(sourcePath, sharedPath); err != nil {
		return nil, fmt.Errorf("stage image: %w", err)
	}

	checksum, err := files.Checksum(sharedPath)
	if err != nil {
		return nil, err
	}

	fileName := filepath.Base(sharedPath)
	locator := s.opts.Locator(fileName)
	a, err := announce.New(fileName, locator)
	if err != nil {
		return nil, err
	}
	out := &Outbound{
		TransferID:    transferID,
		FileName:      fileName,
		SharedPath:    sharedPath,
		SourceLocator: locator,
		Announcement:  a.String(),
		Filesize:      size,
		Checksum:      checksum,
	}

	log := s.log.WithFields(logrus.Fields{
		"transfer_id": transferID,
		"file_name":   fileName,
	})

	if s.opts.History != nil {
		if err := s.opts.History.SaveTransfer(storage.Transfer{
			TransferID:    transferID,
			Direction:     storage.DirectionSend,
			FileName:      fileName,
			SourceLocator: locator,
			Announcement:  out.Announcement,
			StoredPath:    sharedPath,
			Filesize:      size,
			Checksum:      checksum,
			Status:        storage.StatusPending,
			CreatedAt:     now.UnixMilli(),
		}); err != nil {
			log.WithError(err).Warn("Failed to record outgoing transfer")
		}
	}

	if err := s.opts.Announcer.Announce(out.Announcement); err != nil {
		s.setStatus(transferID, storage.StatusFailed, "Could not announce the image.")
		return nil, fmt.Errorf("announce image: %w", err)
	}
	staged = true
	s.setStatus(transferID, storage.StatusAnnounced, "")
	log.WithField("bytes", size).Info("Image announced")
	return out, nil
}

// Withdraw stops announcing the current image.
func (s *Sender) Withdraw() error {
	return s.opts.Announcer.Withdraw()
}

func (s *Sender) unstage(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.WithError(err).WithField("path", path).Warn("Failed to remove staged image")
	}
}

func (s *Sender) setStatus(transferID, status, message string) {
	if s.opts.History == nil {
		return
	}
	if err := s.opts.History.UpdateTransferStatus(transferID, status, message); err != nil {
		s.log.WithError(err).WithField("transfer_id", transferID).Warn("Failed to update transfer status")
	}
}
