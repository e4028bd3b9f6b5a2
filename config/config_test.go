package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"imgbeam/files"
)

func TestLoadOrCreateCreatesAndReloadsConfig(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(DataDirEnv, tempDir)

	firstCfg, firstPath, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("first LoadOrCreate failed: %v", err)
	}
	if firstCfg.DeviceID == "" {
		t.Fatalf("expected non-empty device ID")
	}
	if firstCfg.PortMode != PortModeAutomatic {
		t.Fatalf("expected default port mode %q, got %q", PortModeAutomatic, firstCfg.PortMode)
	}
	if firstCfg.ListeningPort != 0 {
		t.Fatalf("expected automatic mode listening port 0, got %d", firstCfg.ListeningPort)
	}

	expectedConfigPath := filepath.Join(tempDir, "config.json")
	if firstPath != expectedConfigPath {
		t.Fatalf("expected config path %q, got %q", expectedConfigPath, firstPath)
	}

	for _, dir := range []string{firstCfg.TransferDir, firstCfg.ShareDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be a directory", dir)
		}
	}
	if firstCfg.TransferDir != DefaultTransferDir(tempDir) || firstCfg.ShareDir != DefaultShareDir(tempDir) {
		t.Fatalf("unexpected default roots: transfer=%q share=%q", firstCfg.TransferDir, firstCfg.ShareDir)
	}

	secondCfg, secondPath, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}

	if secondPath != firstPath {
		t.Fatalf("expected config path to be stable, got %q then %q", firstPath, secondPath)
	}
	if secondCfg.DeviceID != firstCfg.DeviceID {
		t.Fatalf("expected stable device ID, got %q then %q", firstCfg.DeviceID, secondCfg.DeviceID)
	}
	if secondCfg.PortMode != firstCfg.PortMode {
		t.Fatalf("expected stable port mode, got %q then %q", firstCfg.PortMode, secondCfg.PortMode)
	}
}

func TestLoadOrCreateNormalizesLegacyPortModeFromExistingPort(t *testing.T) {
	tempDir := t.TempDir()

	cfgPath := ConfigPath(tempDir)
	legacy := &DeviceConfig{
		DeviceID:      "legacy-device",
		DeviceName:    "Legacy",
		ListeningPort: 9999,
	}
	if err := Save(cfgPath, legacy); err != nil {
		t.Fatalf("Save legacy config failed: %v", err)
	}

	cfg, _, err := LoadOrCreateIn(tempDir)
	if err != nil {
		t.Fatalf("LoadOrCreateIn failed: %v", err)
	}
	if cfg.PortMode != PortModeFixed {
		t.Fatalf("expected legacy config to normalize to fixed mode, got %q", cfg.PortMode)
	}
	if cfg.ListeningPort != 9999 {
		t.Fatalf("expected legacy fixed listening port to be retained, got %d", cfg.ListeningPort)
	}
	if cfg.TransferDir == "" || cfg.ShareDir == "" {
		t.Fatalf("expected missing roots to be filled in, got %+v", cfg)
	}

	reloaded, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if reloaded.ShareDir != cfg.ShareDir {
		t.Fatalf("expected normalized config to be written back, got %+v", reloaded)
	}
}

func TestCleanupEvery(t *testing.T) {
	cases := map[string]time.Duration{
		"":        DefaultCleanupInterval,
		"bogus":   DefaultCleanupInterval,
		"-1h":     DefaultCleanupInterval,
		"30m":     30 * time.Minute,
		"1h30m0s": 90 * time.Minute,
	}
	for raw, want := range cases {
		cfg := &DeviceConfig{CleanupInterval: raw}
		if got := cfg.CleanupEvery(); got != want {
			t.Fatalf("CleanupEvery(%q) = %s, want %s", raw, got, want)
		}
	}

	var nilCfg *DeviceConfig
	if got := nilCfg.CleanupEvery(); got != DefaultCleanupInterval {
		t.Fatalf("expected nil config to use default, got %s", got)
	}
}

func TestLoadEnvFileSetsUnsetVariables(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(envPath, []byte("IMGBEAM_TEST_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv(EnvFileEnv, envPath)
	t.Setenv("IMGBEAM_TEST_VALUE", "")
	if err := os.Unsetenv("IMGBEAM_TEST_VALUE"); err != nil {
		t.Fatalf("unset: %v", err)
	}

	loaded, err := LoadEnvFile()
	if err != nil {
		t.Fatalf("LoadEnvFile failed: %v", err)
	}
	if loaded != envPath {
		t.Fatalf("expected loaded path %q, got %q", envPath, loaded)
	}
	if got := os.Getenv("IMGBEAM_TEST_VALUE"); got != "from-file" {
		t.Fatalf("expected value from env file, got %q", got)
	}
}

func TestLoadEnvFileMissingIsNotAnError(t *testing.T) {
	t.Setenv(EnvFileEnv, filepath.Join(t.TempDir(), "absent.env"))

	loaded, err := LoadEnvFile()
	if err != nil {
		t.Fatalf("expected missing env file to be ignored, got %v", err)
	}
	if loaded != "" {
		t.Fatalf("expected no loaded path, got %q", loaded)
	}
}

func TestDefaultRootsUseFileRootNames(t *testing.T) {
	dataDir := t.TempDir()
	if got, want := DefaultTransferDir(dataDir), filepath.Join(dataDir, "pictures", files.TransferDirName); got != want {
		t.Fatalf("unexpected transfer root: got %q want %q", got, want)
	}
	if got, want := DefaultShareDir(dataDir), filepath.Join(dataDir, "pictures", files.ShareDirName); got != want {
		t.Fatalf("unexpected share root: got %q want %q", got, want)
	}
}
