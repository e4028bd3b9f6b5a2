package network

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"imgbeam/files"
)

var (
	// ErrRejected indicates the peer refused a file request.
	ErrRejected = errors.New("network: file request rejected")
	// ErrChecksumMismatch indicates received bytes do not match the announced checksum.
	ErrChecksumMismatch = errors.New("network: checksum mismatch")
	// ErrUnexpectedChunk indicates a chunk arrived out of order.
	ErrUnexpectedChunk = errors.New("network: unexpected chunk index")
	// ErrShortTransfer indicates the stream ended before the announced size.
	ErrShortTransfer = errors.New("network: transfer ended early")
)

func decodeFileRequest(payload []byte) (FileRequest, error) {
	var request FileRequest
	if err := json.Unmarshal(payload, &request); err != nil {
		return FileRequest{}, fmt.Errorf("decode file request: %w", err)
	}
	return request, nil
}

// resolveSharedFile maps a requested name to a servable path inside the share
// root, refusing anything that is not a plain image file name.
func (s *Server) resolveSharedFile(name string) (string, string) {
	if name == "" || files.SafeBaseName(name) != name {
		return "", "Invalid file name."
	}
	path := filepath.Join(s.options.ShareDir, name)
	if !files.IsValidImageFile(path) {
		return "", "File is not available."
	}
	return path, ""
}

func (s *Server) serveFile(conn net.Conn, request FileRequest) (int64, error) {
	path, reason := s.resolveSharedFile(request.FileName)
	if path == "" {
		s.reject(conn, request.FileName, reason)
		return 0, fmt.Errorf("%w: %s", ErrRejected, reason)
	}

	file, err := os.Open(path)
	if err != nil {
		s.reject(conn, request.FileName, "File is not available.")
		return 0, fmt.Errorf("open shared file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	info, err := file.Stat()
	if err != nil {
		s.reject(conn, request.FileName, "File is not available.")
		return 0, fmt.Errorf("stat shared file: %w", err)
	}
	checksum, err := files.Checksum(path)
	if err != nil {
		s.reject(conn, request.FileName, "File is not available.")
		return 0, err
	}

	chunkSize := s.options.ChunkSize
	if err := s.write(conn, FileResponse{
		Type:        TypeFileResponse,
		FileName:    request.FileName,
		Status:      fileResponseStatusAccepted,
		Filesize:    info.Size(),
		Checksum:    checksum,
		TotalChunks: chunkCount(info.Size(), chunkSize),
		Timestamp:   time.Now().UnixMilli(),
	}); err != nil {
		return 0, err
	}

	var sent int64
	buffer := make([]byte, chunkSize)
	for chunkIndex := 0; ; chunkIndex++ {
		n, readErr := io.ReadFull(file, buffer)
		if n > 0 {
			if err := s.write(conn, FileData{
				Type:       TypeFileData,
				ChunkIndex: chunkIndex,
				Data:       buffer[:n],
			}); err != nil {
				return sent, err
			}
			sent += int64(n)
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			_ = s.write(conn, FileComplete{
				Type:      TypeFileComplete,
				Status:    fileCompleteStatusFailed,
				Message:   "Read error on sender.",
				Timestamp: time.Now().UnixMilli(),
			})
			return sent, fmt.Errorf("read shared file: %w", readErr)
		}
	}

	if err := s.write(conn, FileComplete{
		Type:      TypeFileComplete,
		Status:    fileCompleteStatusComplete,
		Checksum:  checksum,
		Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		return sent, err
	}
	return sent, nil
}

func (s *Server) reject(conn net.Conn, name, reason string) {
	_ = s.write(conn, FileResponse{
		Type:      TypeFileResponse,
		FileName:  name,
		Status:    fileResponseStatusRejected,
		Message:   reason,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) write(conn net.Conn, message any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.options.FrameReadTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return WriteMessage(conn, message)
}

// RemoteFile streams one accepted file from a peer. Read returns io.EOF only
// after the full announced size arrived and the checksum matched.
type RemoteFile struct {
	conn        net.Conn
	readTimeout time.Duration

	name     string
	size     int64
	checksum string

	hasher    hash.Hash
	pending   []byte
	received  int64
	nextChunk int
	err       error

	stop func() bool
}

// Name returns the requested file name.
func (f *RemoteFile) Name() string { return f.name }

// Size returns the size announced by the peer.
func (f *RemoteFile) Size() int64 { return f.size }

// Checksum returns the sha256 hex announced by the peer.
func (f *RemoteFile) Checksum() string { return f.checksum }

// Read implements io.Reader.
func (f *RemoteFile) Read(p []byte) (int, error) {
	for len(f.pending) == 0 {
		if f.err != nil {
			return 0, f.err
		}
		f.err = f.nextFrame()
	}

	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

// Close releases the connection.
func (f *RemoteFile) Close() error {
	if f.stop != nil {
		f.stop()
	}
	return f.conn.Close()
}

func (f *RemoteFile) nextFrame() error {
	payload, err := ReadFrameWithTimeout(f.conn, f.readTimeout)
	if err != nil {
		return err
	}
	msgType, err := DecodeMessageType(payload)
	if err != nil {
		return err
	}

	switch msgType {
	case TypeFileData:
		var data FileData
		if err := json.Unmarshal(payload, &data); err != nil {
			return fmt.Errorf("decode file data: %w", err)
		}
		if data.ChunkIndex != f.nextChunk {
			return fmt.Errorf("%w: got %d want %d", ErrUnexpectedChunk, data.ChunkIndex, f.nextChunk)
		}
		f.nextChunk++
		f.received += int64(len(data.Data))
		if f.received > f.size {
			return fmt.Errorf("%w: received %d bytes, announced %d", ErrChecksumMismatch, f.received, f.size)
		}
		_, _ = f.hasher.Write(data.Data)
		f.pending = data.Data
		return nil
	case TypeFileComplete:
		var complete FileComplete
		if err := json.Unmarshal(payload, &complete); err != nil {
			return fmt.Errorf("decode file complete: %w", err)
		}
		if complete.Status != fileCompleteStatusComplete {
			return fmt.Errorf("%w: %s", ErrShortTransfer, complete.Message)
		}
		if f.received != f.size {
			return fmt.Errorf("%w: received %d of %d bytes", ErrShortTransfer, f.received, f.size)
		}
		if got := hex.EncodeToString(f.hasher.Sum(nil)); got != f.checksum {
			return fmt.Errorf("%w: got=%s want=%s", ErrChecksumMismatch, got, f.checksum)
		}
		return io.EOF
	case TypeError:
		return decodeRemoteError(payload)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMessageType, msgType)
	}
}

func newRemoteFile(conn net.Conn, response FileResponse, readTimeout time.Duration) *RemoteFile {
	return &RemoteFile{
		conn:        conn,
		readTimeout: readTimeout,
		name:        response.FileName,
		size:        response.Filesize,
		checksum:    response.Checksum,
		hasher:      sha256.New(),
	}
}
