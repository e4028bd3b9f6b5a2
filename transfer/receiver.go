package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"imgbeam/announce"
	"imgbeam/files"
	"imgbeam/storage"
)

var (
	// ErrNotAnnouncement indicates the text did not decode as an announcement.
	ErrNotAnnouncement = errors.New("transfer: not an image transfer announcement")
	// ErrDuplicate indicates the announcement was already handled.
	ErrDuplicate = errors.New("transfer: announcement already handled")
	// ErrRejected indicates the fetched file failed the size or image checks.
	ErrRejected = errors.New("transfer: received file rejected")
)

// User-visible messages. Raw errors go to the log only.
const (
	messageReceived    = "Image received."
	messageUnavailable = "The image could not be fetched."
	messageTooLarge    = "The image is too large."
	messageEmpty       = "The image is empty."
	messageNotImage    = "The file is not an image."
	messageSaveFailed  = "The image could not be saved."
)

// sizer is implemented by sources that know their length up front.
type sizer interface {
	Size() int64
}

// ReceiverOptions wires a Receiver to its collaborators.
type ReceiverOptions struct {
	TransferDir string
	Resolver    files.Resolver
	// History may be nil; duplicates are then tracked in memory.
	History History
	Tracker *ProgressTracker
	// OnEvent receives every status event in order.
	OnEvent func(Event)
	Logger  logrus.FieldLogger
	Now     func() time.Time
}

// Receiver fetches announced images into the transfer root.
type Receiver struct {
	opts ReceiverOptions
	log  logrus.FieldLogger

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewReceiver validates options and returns a Receiver.
func NewReceiver(options ReceiverOptions) (*Receiver, error) {
	if options.TransferDir == "" {
		return nil, errors.New("transfer directory is required")
	}
	if options.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if options.Logger == nil {
		options.Logger = logrus.StandardLogger()
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Receiver{
		opts: options,
		log:  options.Logger.WithField("component", "receiver"),
		seen: make(map[string]struct{}),
	}, nil
}

// Result describes a finished receive.
type Result struct {
	TransferID string `json:"transfer_id"`
	FileName   string `json:"file_name"`
	StoredPath string `json:"stored_path"`
	Filesize   int64  `json:"filesize"`
	Checksum   string `json:"checksum"`
}

// Handle processes one announcement text. Text that is not an announcement is
// reported as ErrNotAnnouncement without emitting events.
func (r *Receiver) Handle(ctx context.Context, text string) error {
	_, err := r.Receive(ctx, text)
	return err
}

// Receive is Handle that also returns where the image was stored.
func (r *Receiver) Receive(ctx context.Context, text string) (*Result, error) {
	a, ok := announce.Decode(text)
	if !ok {
		return nil, ErrNotAnnouncement
	}
	if err := r.claim(text); err != nil {
		return nil, err
	}

	transferID := uuid.NewString()
	log := r.log.WithFields(logrus.Fields{
		"transfer_id": transferID,
		"file_name":   a.FileName,
		"locator":     a.SourceLocator,
	})
	r.record(storage.Transfer{
		TransferID:    transferID,
		Direction:     storage.DirectionReceive,
		FileName:      a.FileName,
		SourceLocator: a.SourceLocator,
		Announcement:  text,
		Status:        storage.StatusPending,
		CreatedAt:     r.opts.Now().UnixMilli(),
	}, log)

	r.emit(Started(transferID))
	r.opts.Tracker.Update(TransferProgress{TransferID: transferID, FileName: a.FileName})

	result, status, message, err := r.fetch(ctx, transferID, a, log)
	if err != nil {
		log.WithError(err).Warn("Receive failed")
		r.setStatus(transferID, status, message, log)
		r.release(text)
		r.emit(Failed(transferID, message))
		return nil, err
	}

	if r.opts.History != nil {
		if err := r.opts.History.CompleteTransfer(transferID, result.StoredPath, result.Filesize, result.Checksum); err != nil {
			log.WithError(err).Warn("Failed to record completed transfer")
		}
	}
	log.WithFields(logrus.Fields{
		"stored_path": result.StoredPath,
		"bytes":       result.Filesize,
	}).Info("Image received")
	r.emit(Completed(transferID, true, messageReceived))
	return result, nil
}

func (r *Receiver) fetch(ctx context.Context, transferID string, a announce.Announcement, log logrus.FieldLogger) (*Result, string, string, error) {
	name := files.SafeBaseName(a.FileName)
	if name == "" || !files.HasImageExtension(name) {
		return nil, storage.StatusRejected, messageNotImage, fmt.Errorf("%w: file name %q", ErrRejected, a.FileName)
	}
	if err := files.EnsureDirectory(r.opts.TransferDir); err != nil {
		return nil, storage.StatusFailed, messageSaveFailed, err
	}

	src, err := files.OpenerFor(ctx, r.opts.Resolver, a.SourceLocator)()
	if err != nil {
		return nil, storage.StatusFailed, messageUnavailable, err
	}
	defer func() {
		_ = src.Close()
	}()

	var total int64
	if sized, ok := src.(sizer); ok {
		total = sized.Size()
	}
	if total > files.MaxImageSize {
		return nil, storage.StatusRejected, messageTooLarge, fmt.Errorf("%w: announced size %d", ErrRejected, total)
	}

	prefix := r.opts.Now().Format("20060102150405")
	dst, err := files.ReservePath(r.opts.TransferDir, name, prefix)
	if err != nil {
		return nil, storage.StatusFailed, messageSaveFailed, err
	}
	tracker := r.opts.Tracker
	lastPercent := -1
	// One byte past the limit is enough to know the file is too large.
	limited := io.LimitReader(src, files.MaxImageSize+1)
	written, err := files.CopyWithProgress(limited, dst, total, func(written, total int64) {
		tracker.Update(TransferProgress{
			TransferID:       transferID,
			FileName:         name,
			BytesTransferred: written,
			TotalBytes:       total,
			Percent:          percentOf(written, total),
		})
		if percent := percentOf(written, total); total > 0 && percent != lastPercent {
			lastPercent = percent
			r.emit(Progress(transferID, percent))
		}
	})
	if err != nil {
		r.discard(dst, log)
		return nil, storage.StatusFailed, messageUnavailable, err
	}

	switch {
	case written == 0:
		r.discard(dst, log)
		return nil, storage.StatusRejected, messageEmpty, fmt.Errorf("%w: empty file", ErrRejected)
	case !files.IsFileSizeValid(written):
		r.discard(dst, log)
		return nil, storage.StatusRejected, messageTooLarge, fmt.Errorf("%w: %d bytes", ErrRejected, written)
	case !files.IsValidImageFile(dst):
		r.discard(dst, log)
		return nil, storage.StatusRejected, messageNotImage, fmt.Errorf("%w: %q is not an image", ErrRejected, dst)
	}

	checksum, err := files.Checksum(dst)
	if err != nil {
		r.discard(dst, log)
		return nil, storage.StatusFailed, messageSaveFailed, err
	}
	return &Result{
		TransferID: transferID,
		FileName:   name,
		StoredPath: dst,
		Filesize:   written,
		Checksum:   checksum,
	}, "", "", nil
}

// claim marks text as handled, failing with ErrDuplicate if it already was.
func (r *Receiver) claim(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[text]; ok {
		return ErrDuplicate
	}
	if r.opts.History != nil {
		seen, err := r.opts.History.HasSeenAnnouncement(text)
		if err != nil {
			r.log.WithError(err).Warn("Failed to check seen announcements")
		} else if seen {
			return ErrDuplicate
		}
		if err := r.opts.History.InsertSeenAnnouncement(text, r.opts.Now().UnixMilli()); err != nil {
			r.log.WithError(err).Warn("Failed to record seen announcement")
		}
	}
	r.seen[text] = struct{}{}
	return nil
}

// release lets a failed announcement be retried.
func (r *Receiver) release(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.seen, text)
	if r.opts.History != nil {
		if err := r.opts.History.ForgetSeenAnnouncement(text); err != nil {
			r.log.WithError(err).Warn("Failed to forget seen announcement")
		}
	}
}

func (r *Receiver) discard(path string, log logrus.FieldLogger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("Failed to remove rejected file")
	}
}

func (r *Receiver) emit(event Event) {
	r.opts.Tracker.Apply(event)
	if r.opts.OnEvent != nil {
		r.opts.OnEvent(event)
	}
}

func (r *Receiver) record(transfer storage.Transfer, log logrus.FieldLogger) {
	if r.opts.History == nil {
		return
	}
	if err := r.opts.History.SaveTransfer(transfer); err != nil {
		log.WithError(err).Warn("Failed to record incoming transfer")
	}
}

func (r *Receiver) setStatus(transferID, status, message string, log logrus.FieldLogger) {
	if r.opts.History == nil {
		return
	}
	if err := r.opts.History.UpdateTransferStatus(transferID, status, message); err != nil {
		log.WithError(err).Warn("Failed to update transfer status")
	}
}
