package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"imgbeam/files"
)

// LocatorScheme identifies locators served by Server.
const LocatorScheme = "imgbeam"

// ErrInvalidLocator indicates a malformed imgbeam:// locator.
var ErrInvalidLocator = errors.New("network: invalid locator")

// Locator builds the source locator for a file served by host:port.
func Locator(host string, port int, fileName string) string {
	u := url.URL{
		Scheme: LocatorScheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + fileName,
	}
	return u.String()
}

// ParseLocator splits an imgbeam:// locator into a dial address and file name.
func ParseLocator(locator string) (string, string, error) {
	parsed, err := url.Parse(locator)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}
	if parsed.Scheme != LocatorScheme {
		return "", "", fmt.Errorf("%w: scheme %q", ErrInvalidLocator, parsed.Scheme)
	}
	if parsed.Hostname() == "" || parsed.Port() == "" {
		return "", "", fmt.Errorf("%w: missing host or port in %q", ErrInvalidLocator, locator)
	}
	name := strings.TrimPrefix(parsed.Path, "/")
	if name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("%w: bad file name in %q", ErrInvalidLocator, locator)
	}
	return parsed.Host, name, nil
}

// IsLocator reports whether locator uses the imgbeam scheme.
func IsLocator(locator string) bool {
	return strings.HasPrefix(locator, LocatorScheme+"://")
}

// Resolver fetches imgbeam:// locators from a peer's Server.
type Resolver struct {
	DialTimeout      time.Duration
	FrameReadTimeout time.Duration
}

// Open dials the peer, requests the file, and returns a stream that verifies
// size and checksum before reporting io.EOF.
func (r Resolver) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	address, name, err := ParseLocator(locator)
	if err != nil {
		return nil, err
	}

	dialTimeout := r.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = DefaultConnectionTimeout
	}
	readTimeout := r.FrameReadTimeout
	if readTimeout <= 0 {
		readTimeout = DefaultFrameReadTimeout
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %q: %v", files.ErrSourceUnavailable, address, err)
	}

	if err := conn.SetDeadline(time.Now().Add(dialTimeout)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set request deadline: %w", err)
	}

	if err := WriteMessage(conn, FileRequest{
		Type:            TypeFileRequest,
		FileName:        name,
		ProtocolVersion: ProtocolVersion,
		Timestamp:       time.Now().UnixMilli(),
	}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send file request: %w", err)
	}

	payload, err := ReadFrameWithTimeout(conn, readTimeout)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read file response: %w", err)
	}
	msgType, err := DecodeMessageType(payload)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if msgType == TypeError {
		_ = conn.Close()
		return nil, decodeRemoteError(payload)
	}
	if msgType != TypeFileResponse {
		_ = conn.Close()
		return nil, fmt.Errorf("expected %q, got %q", TypeFileResponse, msgType)
	}

	var response FileResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("decode file response: %w", err)
	}
	if response.Status != fileResponseStatusAccepted {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrRejected, response.Message)
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clear request deadline: %w", err)
	}

	file := newRemoteFile(conn, response, readTimeout)
	file.stop = context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	return file, nil
}

// MultiResolver routes imgbeam:// locators to the network and everything else
// to the local filesystem.
type MultiResolver struct {
	Network Resolver
	Local   files.LocalResolver
}

// Open implements files.Resolver.
func (m MultiResolver) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	if IsLocator(locator) {
		return m.Network.Open(ctx, locator)
	}
	return m.Local.Open(ctx, locator)
}

// AdvertiseHost returns the first non-loopback IPv4 address of this machine,
// or 127.0.0.1 when none is configured.
func AdvertiseHost() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "127.0.0.1"
}
