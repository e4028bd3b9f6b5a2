package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"

	"imgbeam/announce"
)

const (
	// DefaultService is the mDNS service name without domain suffix.
	DefaultService = "_imgbeam._tcp"
	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
	// DefaultVersion is the TXT record protocol version.
	DefaultVersion = 1
	// DefaultRefreshInterval is the background scan interval.
	DefaultRefreshInterval = 5 * time.Second
	// DefaultScanTimeout bounds each discovery scan.
	DefaultScanTimeout = 3 * time.Second
	// DefaultTTL is the intended mDNS record TTL in seconds.
	DefaultTTL = 120
	// MaxTXTLength is the byte limit of one TXT string, key included.
	MaxTXTLength = 255

	txtKeyDeviceID = "device_id"
	txtKeyVersion  = "version"
	txtKeyAnnounce = "announce"
)

var (
	// ErrAnnouncementTooLong indicates the announcement does not fit in one TXT string.
	ErrAnnouncementTooLong = errors.New("discovery: announcement exceeds TXT record limit")
	// ErrNotAnnouncement indicates the text is not an image transfer announcement.
	ErrNotAnnouncement = errors.New("discovery: text is not an image transfer announcement")
)

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Config controls mDNS broadcaster and scanner behavior.
type Config struct {
	Service         string
	Domain          string
	Version         int
	RefreshInterval time.Duration
	ScanTimeout     time.Duration
	TTL             uint32

	SelfDeviceID  string
	DeviceName    string
	ListeningPort int
	// Announcement is published immediately when non-empty.
	Announcement string

	Logger logrus.FieldLogger

	registerFn registerFunc
	browseFn   browseFunc
}

func (c Config) withDefaults() Config {
	out := c
	if out.Service == "" {
		out.Service = DefaultService
	}
	if out.Domain == "" {
		out.Domain = DefaultDomain
	}
	if out.Version == 0 {
		out.Version = DefaultVersion
	}
	if out.RefreshInterval <= 0 {
		out.RefreshInterval = DefaultRefreshInterval
	}
	if out.ScanTimeout <= 0 {
		out.ScanTimeout = DefaultScanTimeout
	}
	if out.TTL == 0 {
		out.TTL = DefaultTTL
	}
	if out.Logger == nil {
		out.Logger = logrus.StandardLogger()
	}
	if out.registerFn == nil {
		out.registerFn = func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error) {
			server, err := zeroconf.Register(instance, service, domain, port, text, ifaces)
			if err != nil {
				return nil, err
			}
			server.TTL(out.TTL)
			return server, nil
		}
	}
	return out
}

func (c Config) validateForBroadcast() error {
	if strings.TrimSpace(c.SelfDeviceID) == "" {
		return errors.New("self device ID is required")
	}
	if strings.TrimSpace(c.DeviceName) == "" {
		return errors.New("device name is required")
	}
	if c.ListeningPort <= 0 {
		return errors.New("listening port must be > 0")
	}
	return nil
}

func (c Config) validateForScan() error {
	if strings.TrimSpace(c.SelfDeviceID) == "" {
		return errors.New("self device ID is required")
	}
	return nil
}

// ValidateAnnouncement checks that text is an announcement and fits in a TXT record.
func ValidateAnnouncement(text string) error {
	if _, ok := announce.Decode(text); !ok {
		return ErrNotAnnouncement
	}
	if len(txtKeyAnnounce)+1+len(text) > MaxTXTLength {
		return fmt.Errorf("%w: %d bytes", ErrAnnouncementTooLong, len(txtKeyAnnounce)+1+len(text))
	}
	return nil
}

// Broadcaster advertises the local device and its current announcement via mDNS.
type Broadcaster struct {
	cfg Config

	mu           sync.Mutex
	server       *zeroconf.Server
	announcement string
}

// StartBroadcaster registers and starts mDNS broadcast.
func StartBroadcaster(config Config) (*Broadcaster, error) {
	cfg := config.withDefaults()
	if err := cfg.validateForBroadcast(); err != nil {
		return nil, err
	}
	if cfg.Announcement != "" {
		if err := ValidateAnnouncement(cfg.Announcement); err != nil {
			return nil, err
		}
	}

	b := &Broadcaster{cfg: cfg}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.registerLocked(cfg.Announcement); err != nil {
		return nil, err
	}
	return b, nil
}

// Announce publishes text as the current announcement, replacing any previous one.
func (b *Broadcaster) Announce(text string) error {
	if err := ValidateAnnouncement(text); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdownLocked()
	// Nothing is advertised until registration succeeds.
	b.announcement = ""
	return b.registerLocked(text)
}

// Withdraw stops advertising the device and its announcement.
func (b *Broadcaster) Withdraw() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdownLocked()
	b.announcement = ""
	return nil
}

// Current returns the announcement being advertised, if any.
func (b *Broadcaster) Current() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.announcement
}

// Stop stops mDNS broadcasting.
func (b *Broadcaster) Stop() {
	_ = b.Withdraw()
}

func (b *Broadcaster) txtRecords(text string) []string {
	txt := []string{
		txtKeyDeviceID + "=" + b.cfg.SelfDeviceID,
		txtKeyVersion + "=" + strconv.Itoa(b.cfg.Version),
	}
	if text != "" {
		txt = append(txt, txtKeyAnnounce+"="+text)
	}
	return txt
}

func (b *Broadcaster) registerLocked(text string) error {
	server, err := b.cfg.registerFn(b.cfg.DeviceName, b.cfg.Service, b.cfg.Domain, b.cfg.ListeningPort, b.txtRecords(text), nil)
	if err != nil {
		return fmt.Errorf("register mDNS service: %w", err)
	}
	b.server = server
	b.announcement = text
	b.cfg.Logger.WithFields(logrus.Fields{
		"service": b.cfg.Service,
		"port":    b.cfg.ListeningPort,
	}).Debug("mDNS service registered")
	return nil
}

func (b *Broadcaster) shutdownLocked() {
	if b.server != nil {
		b.server.Shutdown()
	}
	b.server = nil
}

// Service coordinates mDNS broadcast and scanning.
type Service struct {
	Broadcaster *Broadcaster
	Scanner     *PeerScanner
}

// Start starts broadcaster and scanner using one config.
func Start(config Config) (*Service, error) {
	cfg := config.withDefaults()

	broadcaster, err := StartBroadcaster(cfg)
	if err != nil {
		return nil, err
	}

	scanner, err := NewPeerScanner(cfg)
	if err != nil {
		broadcaster.Stop()
		return nil, err
	}
	if err := scanner.Start(); err != nil {
		broadcaster.Stop()
		return nil, err
	}

	return &Service{
		Broadcaster: broadcaster,
		Scanner:     scanner,
	}, nil
}

// Stop stops scanner and broadcaster.
func (s *Service) Stop() {
	if s == nil {
		return
	}
	if s.Scanner != nil {
		s.Scanner.Stop()
	}
	if s.Broadcaster != nil {
		s.Broadcaster.Stop()
	}
}
