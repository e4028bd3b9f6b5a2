// Package files moves image bytes between a content source and local storage,
// validates staged images, and prunes stale files from the transfer and share
// roots.
package files

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// ChunkSize is the fixed read/write unit used by Copy.
	ChunkSize = 4096
	// MaxImageSize is the largest accepted image (10 MiB, inclusive).
	MaxImageSize = 10 * 1024 * 1024
	// RetentionWindow is how long staged and received files are kept.
	RetentionWindow = 7 * 24 * time.Hour

	// TransferDirName holds images received from a peer.
	TransferDirName = "Transfer"
	// ShareDirName holds images staged for sending.
	ShareDirName = "Shared"

	partSuffix = ".part"
)

var (
	// ErrSourceUnavailable indicates the content source could not be opened.
	ErrSourceUnavailable = errors.New("files: source unavailable")
	// ErrNotRegularFile indicates a path exists but is not a regular file.
	ErrNotRegularFile = errors.New("files: not a regular file")
)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".bmp":  {},
	".webp": {},
}

// Opener opens a readable stream for one content source.
type Opener func() (io.ReadCloser, error)

// OpenPath returns an Opener for a local file path.
func OpenPath(path string) Opener {
	return func() (io.ReadCloser, error) {
		return os.Open(path)
	}
}

// ProgressFunc receives the running byte count after each chunk is written.
type ProgressFunc func(written, total int64)

// Copy streams src into dst in ChunkSize pieces and returns the bytes written.
func Copy(src io.Reader, dst string) (int64, error) {
	return CopyWithProgress(src, dst, 0, nil)
}

// CopyWithProgress is Copy with a per-chunk progress callback. total is passed
// through to fn unchanged and may be 0 when the size is unknown.
//
// Bytes land in dst+".part" and are renamed into place once the source is
// drained. On failure the partial file is removed.
func CopyWithProgress(src io.Reader, dst string, total int64, fn ProgressFunc) (written int64, err error) {
	if src == nil {
		return 0, ErrSourceUnavailable
	}

	tempPath := dst + partSuffix
	out, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create destination %q: %w", dst, err)
	}
	defer func() {
		if out != nil {
			_ = out.Close()
		}
		if err != nil {
			_ = os.Remove(tempPath)
		}
	}()

	buffer := make([]byte, ChunkSize)
	for {
		n, readErr := src.Read(buffer)
		if n > 0 {
			if _, writeErr := out.Write(buffer[:n]); writeErr != nil {
				return written, fmt.Errorf("write destination %q: %w", dst, writeErr)
			}
			written += int64(n)
			if fn != nil {
				fn(written, total)
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return written, fmt.Errorf("read source: %w", readErr)
		}
	}

	closeErr := out.Close()
	out = nil
	if closeErr != nil {
		return written, fmt.Errorf("close destination %q: %w", dst, closeErr)
	}
	if err := os.Rename(tempPath, dst); err != nil {
		return written, fmt.Errorf("finalize destination %q: %w", dst, err)
	}
	return written, nil
}

// CopyFrom opens the source and copies it to dst.
func CopyFrom(open Opener, dst string) (int64, error) {
	if open == nil {
		return 0, ErrSourceUnavailable
	}
	src, err := open()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if src == nil {
		return 0, ErrSourceUnavailable
	}
	defer func() {
		_ = src.Close()
	}()

	return Copy(src, dst)
}

// CopyFile copies a local file to dst.
func CopyFile(srcPath, dst string) (int64, error) {
	return CopyFrom(OpenPath(srcPath), dst)
}

// MeasureSize drains the source and returns its length.
func MeasureSize(open Opener) (int64, error) {
	if open == nil {
		return 0, ErrSourceUnavailable
	}
	src, err := open()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if src == nil {
		return 0, ErrSourceUnavailable
	}
	defer func() {
		_ = src.Close()
	}()

	var size int64
	buffer := make([]byte, ChunkSize)
	for {
		n, readErr := src.Read(buffer)
		size += int64(n)
		if errors.Is(readErr, io.EOF) {
			return size, nil
		}
		if readErr != nil {
			return size, fmt.Errorf("read source: %w", readErr)
		}
	}
}

// FileSize is MeasureSize that reports 0 for any failure. An unreadable source
// and an empty one are indistinguishable here; use MeasureSize to tell them apart.
func FileSize(open Opener) int64 {
	size, err := MeasureSize(open)
	if err != nil {
		return 0
	}
	return size
}

// FormattedSize renders a byte count as "B", "KB" or "MB" text.
func FormattedSize(bytes int64) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024.0)
	default:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024.0*1024.0))
	}
}

// HasImageExtension reports whether name ends in a supported image extension.
func HasImageExtension(name string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// IsValidImageFile reports whether path is an existing regular file with an
// image extension.
func IsValidImageFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return HasImageExtension(info.Name())
}

// IsFileSizeValid reports whether 0 < bytes <= MaxImageSize.
func IsFileSizeValid(bytes int64) bool {
	return bytes > 0 && bytes <= MaxImageSize
}

// Checksum returns the hex sha256 of a file.
func Checksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for checksum: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// CaptureFileName names a freshly captured image.
func CaptureFileName(now time.Time) string {
	return "IMG_" + now.Format("20060102_150405") + ".jpg"
}

// ShareFileName names an image copied into the share root.
func ShareFileName(now time.Time) string {
	return fmt.Sprintf("shared_image_%d.jpg", now.UnixMilli())
}

// EnsureDirectory creates dir and its parents if needed.
func EnsureDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}

// SafeBaseName returns name reduced to a single path element, or "" when
// nothing usable remains.
func SafeBaseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(name)
	switch base {
	case "", ".", "..", "/":
		return ""
	}
	return base
}

// UniquePath returns the first unused path in dir for name: name itself, then
// prefix_name, then prefix_1_name, prefix_2_name and so on.
func UniquePath(dir, name, prefix string) string {
	for i := 0; ; i++ {
		candidate := filepath.Join(dir, candidateName(name, prefix, i))
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}

// ReservePath is UniquePath that also creates the chosen file empty with
// O_EXCL, so a concurrent writer cannot claim the same name. Copy into the
// returned path replaces the placeholder; callers remove it on failure.
func ReservePath(dir, name, prefix string) (string, error) {
	for i := 0; ; i++ {
		candidate := filepath.Join(dir, candidateName(name, prefix, i))
		file, err := os.OpenFile(candidate, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("reserve %q: %w", candidate, err)
		}
		if err := file.Close(); err != nil {
			_ = os.Remove(candidate)
			return "", fmt.Errorf("reserve %q: %w", candidate, err)
		}
		return candidate, nil
	}
}

func candidateName(name, prefix string, attempt int) string {
	switch attempt {
	case 0:
		return name
	case 1:
		return prefix + "_" + name
	default:
		return fmt.Sprintf("%s_%d_%s", prefix, attempt-1, name)
	}
}
