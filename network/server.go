package network

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ServeResult describes one finished file_request.
type ServeResult struct {
	FileName   string
	RemoteAddr string
	Bytes      int64
	Err        error
}

// ServerOptions controls Server behavior.
type ServerOptions struct {
	// ShareDir is the only directory files are served from.
	ShareDir          string
	ChunkSize         int
	ConnectionTimeout time.Duration
	FrameReadTimeout  time.Duration
	Logger            logrus.FieldLogger
	// OnServed is called after every request, accepted or not.
	OnServed func(ServeResult)
}

func (o ServerOptions) withDefaults() ServerOptions {
	out := o
	if out.ChunkSize <= 0 {
		out.ChunkSize = DefaultChunkSize
	}
	if out.ConnectionTimeout <= 0 {
		out.ConnectionTimeout = DefaultConnectionTimeout
	}
	if out.FrameReadTimeout <= 0 {
		out.FrameReadTimeout = DefaultFrameReadTimeout
	}
	if out.Logger == nil {
		out.Logger = logrus.StandardLogger()
	}
	return out
}

// Server answers file requests for images in a share directory.
type Server struct {
	listener net.Listener
	options  ServerOptions

	errs chan error

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Listen starts a TCP listener and request accept loop.
func Listen(address string, options ServerOptions) (*Server, error) {
	opts := options.withDefaults()
	if opts.ShareDir == "" {
		return nil, errors.New("share directory is required")
	}

	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen on %q: %w", address, err)
	}

	server := &Server{
		listener: listener,
		options:  opts,
		errs:     make(chan error, 16),
		closed:   make(chan struct{}),
	}

	server.wg.Add(1)
	go server.acceptLoop()
	return server, nil
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Port returns the listening TCP port.
func (s *Server) Port() int {
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Errors returns asynchronous server errors.
func (s *Server) Errors() <-chan error {
	return s.errs
}

// Close stops accepting, waits for in-flight requests, and closes channels.
func (s *Server) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.closed)
		closeErr = s.listener.Close()
		s.wg.Wait()
		close(s.errs)
	})
	return closeErr
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}

			s.reportError(fmt.Errorf("accept connection: %w", err))
			continue
		}

		s.wg.Add(1)
		go s.handleInboundConn(conn)
	}
}

func (s *Server) handleInboundConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		_ = conn.Close()
	}()

	remote := conn.RemoteAddr().String()
	log := s.options.Logger.WithField("remote", remote)

	if err := conn.SetDeadline(time.Now().Add(s.options.ConnectionTimeout)); err != nil {
		s.reportError(fmt.Errorf("set request deadline: %w", err))
		return
	}

	payload, err := ReadFrameWithTimeout(conn, s.options.FrameReadTimeout)
	if err != nil {
		s.reportError(fmt.Errorf("read file request from %s: %w", remote, err))
		return
	}

	msgType, err := DecodeMessageType(payload)
	if err != nil {
		s.reportError(err)
		return
	}
	if msgType != TypeFileRequest {
		_ = WriteMessage(conn, ErrorMessage{
			Type:      TypeError,
			Code:      "unknown_type",
			Message:   fmt.Sprintf("Expected %q, got %q", TypeFileRequest, msgType),
			Timestamp: time.Now().UnixMilli(),
		})
		return
	}

	request, err := decodeFileRequest(payload)
	if err != nil {
		s.reportError(err)
		return
	}
	if request.ProtocolVersion != ProtocolVersion {
		_ = WriteMessage(conn, makeVersionMismatchError(request.ProtocolVersion))
		return
	}

	// Streaming may take longer than the request exchange; per-write deadlines
	// are applied inside serveFile.
	if err := conn.SetDeadline(time.Time{}); err != nil {
		s.reportError(fmt.Errorf("clear request deadline: %w", err))
		return
	}

	log = log.WithField("file", request.FileName)
	log.Debug("File requested")

	sent, serveErr := s.serveFile(conn, request)
	result := ServeResult{
		FileName:   request.FileName,
		RemoteAddr: remote,
		Bytes:      sent,
		Err:        serveErr,
	}
	if serveErr != nil {
		log.WithError(serveErr).Warn("File request not served")
	} else {
		log.WithField("bytes", sent).Info("File served")
	}
	if s.options.OnServed != nil {
		s.options.OnServed(result)
	}
}

func (s *Server) reportError(err error) {
	if err == nil {
		return
	}

	// Accept loop shutdown produces expected net.ErrClosed errors.
	if errors.Is(err, net.ErrClosed) {
		return
	}

	s.options.Logger.WithError(err).Debug("Server error")
	select {
	case s.errs <- err:
	default:
	}
}
