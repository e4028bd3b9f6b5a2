package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"imgbeam/files"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "imgbeam"
	// DefaultListeningPort is the TCP port used when no user override exists.
	DefaultListeningPort = 9999
	// PortModeAutomatic picks an available port at launch.
	PortModeAutomatic = "automatic"
	// PortModeFixed uses the configured listening port value.
	PortModeFixed = "fixed"
	// DefaultCleanupInterval is how often the retention sweep runs.
	DefaultCleanupInterval = 6 * time.Hour

	// DataDirEnv overrides the resolved data directory.
	DataDirEnv = "IMGBEAM_DATA_DIR"
	// EnvFileEnv names the dotenv file loaded by LoadEnvFile.
	EnvFileEnv = "IMGBEAM_ENV_FILE"

	configFileName  = "config.json"
	picturesDirName = "pictures"
	defaultName     = "imgbeam device"
)

// DeviceConfig contains persistent local-device settings.
type DeviceConfig struct {
	DeviceID        string `json:"device_id"`
	DeviceName      string `json:"device_name"`
	PortMode        string `json:"port_mode"`
	ListeningPort   int    `json:"listening_port"`
	AdvertiseHost   string `json:"advertise_host"`
	TransferDir     string `json:"transfer_dir"`
	ShareDir        string `json:"share_dir"`
	CleanupInterval string `json:"cleanup_interval"`
}

// CleanupEvery parses CleanupInterval, falling back to DefaultCleanupInterval.
func (c *DeviceConfig) CleanupEvery() time.Duration {
	if c == nil || c.CleanupInterval == "" {
		return DefaultCleanupInterval
	}
	d, err := time.ParseDuration(c.CleanupInterval)
	if err != nil || d <= 0 {
		return DefaultCleanupInterval
	}
	return d
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment without overriding variables that are already set. The path
// comes from IMGBEAM_ENV_FILE, defaulting to ".env". A missing file is not an
// error.
func LoadEnvFile() (string, error) {
	path := os.Getenv(EnvFileEnv)
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("load env file %q: %w", path, err)
	}
	return path, nil
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If IMGBEAM_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv(DataDirEnv); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.json for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// DefaultTransferDir is where received images land.
func DefaultTransferDir(dataDir string) string {
	return filepath.Join(dataDir, picturesDirName, files.TransferDirName)
}

// DefaultShareDir is where images staged for sending are copied.
func DefaultShareDir(dataDir string) string {
	return filepath.Join(dataDir, picturesDirName, files.ShareDirName)
}

// EnsureDataDirectories creates the app data directory layout if needed.
func EnsureDataDirectories(dataDir string, cfg *DeviceConfig) error {
	dirs := []string{dataDir}
	if cfg != nil {
		dirs = append(dirs, cfg.TransferDir, cfg.ShareDir)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	return nil
}

// Load reads and unmarshals config.json from disk.
func Load(path string) (*DeviceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg DeviceConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Save marshals and writes config.json to disk.
func Save(path string, cfg *DeviceConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate ensures directories and config exist, then returns both.
func LoadOrCreate() (*DeviceConfig, string, error) {
	dataDir, err := ResolveDataDir()
	if err != nil {
		return nil, "", err
	}
	return LoadOrCreateIn(dataDir)
}

// LoadOrCreateIn is LoadOrCreate for an explicit data directory.
func LoadOrCreateIn(dataDir string) (*DeviceConfig, string, error) {
	if err := EnsureDataDirectories(dataDir, nil); err != nil {
		return nil, "", err
	}

	cfgPath := ConfigPath(dataDir)
	cfg, err := Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}

		cfg = defaultConfig(dataDir)
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	} else if normalizeDefaults(cfg, dataDir) {
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	}

	if err := EnsureDataDirectories(dataDir, cfg); err != nil {
		return nil, "", err
	}
	return cfg, cfgPath, nil
}

func defaultConfig(dataDir string) *DeviceConfig {
	return &DeviceConfig{
		DeviceID:        uuid.NewString(),
		DeviceName:      hostDeviceName(),
		PortMode:        PortModeAutomatic,
		ListeningPort:   0,
		TransferDir:     DefaultTransferDir(dataDir),
		ShareDir:        DefaultShareDir(dataDir),
		CleanupInterval: DefaultCleanupInterval.String(),
	}
}

func hostDeviceName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultName
}

func normalizeDefaults(cfg *DeviceConfig, dataDir string) bool {
	updated := false

	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
		updated = true
	}

	if cfg.DeviceName == "" {
		cfg.DeviceName = hostDeviceName()
		updated = true
	}

	mode := normalizePortMode(cfg.PortMode)
	if mode == "" {
		if cfg.ListeningPort > 0 {
			mode = PortModeFixed
		} else {
			mode = PortModeAutomatic
		}
	}
	if cfg.PortMode != mode {
		cfg.PortMode = mode
		updated = true
	}

	if cfg.PortMode == PortModeFixed && cfg.ListeningPort == 0 {
		cfg.ListeningPort = DefaultListeningPort
		updated = true
	}
	if cfg.PortMode == PortModeAutomatic && cfg.ListeningPort < 0 {
		cfg.ListeningPort = 0
		updated = true
	}

	if cfg.TransferDir == "" {
		cfg.TransferDir = DefaultTransferDir(dataDir)
		updated = true
	}
	if cfg.ShareDir == "" {
		cfg.ShareDir = DefaultShareDir(dataDir)
		updated = true
	}
	if cfg.CleanupInterval == "" {
		cfg.CleanupInterval = DefaultCleanupInterval.String()
		updated = true
	}

	return updated
}

func normalizePortMode(mode string) string {
	switch mode {
	case PortModeAutomatic:
		return PortModeAutomatic
	case PortModeFixed:
		return PortModeFixed
	default:
		return ""
	}
}
