package cmd

import (
	"bytes"
	"context"
	"errors"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"imgbeam/announce"
	"imgbeam/models"
	"imgbeam/network"
	"imgbeam/storage"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	flagJSON, flagVerbose, flagDataDir = false, false, ""
	t.Setenv("IMGBEAM_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestEncodeAndDecodeCommands(t *testing.T) {
	out, err := runCommand(t, "encode", "photo.jpg", "content://media/external/images/42")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	text := strings.TrimSpace(out)
	if text != "IMAGE_TRANSFER:photo.jpg:content://media/external/images/42" {
		t.Fatalf("unexpected encode output %q", text)
	}

	out, err = runCommand(t, "decode", "--json", text)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	var decoded models.Announcement
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode output is not JSON: %v\n%s", err, out)
	}
	if decoded.FileName != "photo.jpg" || decoded.SourceLocator != "content://media/external/images/42" {
		t.Fatalf("unexpected decoded announcement %+v", decoded)
	}

	if _, err := runCommand(t, "decode", "hello"); err != errNotAnnouncement {
		t.Fatalf("expected errNotAnnouncement, got %v", err)
	}
	if _, err := runCommand(t, "encode", "a:b.jpg", "/x"); err == nil {
		t.Fatalf("expected encode to reject a file name containing the delimiter")
	}
}

func TestInspectCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.JPEG")
	if err := os.WriteFile(path, make([]byte, 2048), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := runCommand(t, "inspect", "--json", path)
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	var info models.File
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("inspect output is not JSON: %v\n%s", err, out)
	}
	if !info.IsImage || !info.SizeValid || info.FormattedSize != "2.0 KB" || info.Checksum == "" {
		t.Fatalf("unexpected inspect result %+v", info)
	}
}

func TestInfoCommandCreatesConfig(t *testing.T) {
	dataDir := t.TempDir()
	out, err := runCommand(t, "info", "--json", "--data-dir", dataDir)
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	var info models.Device
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("info output is not JSON: %v\n%s", err, out)
	}
	if info.DeviceID == "" {
		t.Fatalf("expected a device ID")
	}
	if info.ConfigPath != filepath.Join(dataDir, "config.json") {
		t.Fatalf("unexpected config path %q", info.ConfigPath)
	}
	if _, err := os.Stat(info.DatabasePath); err != nil {
		t.Fatalf("expected database file: %v", err)
	}
}

func TestReceiveMessageAndHistory(t *testing.T) {
	dataDir := t.TempDir()
	content := []byte("not really a jpeg but named like one")
	source := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(source, content, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := runCommand(t, "receive", "--data-dir", dataDir, "--message", announce.Encode("photo.jpg", source))
	if err != nil {
		t.Fatalf("receive failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Transfer started") || !strings.Contains(out, "Image received.") {
		t.Fatalf("expected status events in output, got:\n%s", out)
	}

	stored := filepath.Join(dataDir, "pictures", "Transfer", "photo.jpg")
	got, err := os.ReadFile(stored)
	if err != nil {
		t.Fatalf("expected received file: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("received content differs")
	}

	out, err = runCommand(t, "history", "--json", "--data-dir", dataDir)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	var rows []models.Transfer
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("history output is not JSON: %v\n%s", err, out)
	}
	if len(rows) != 1 || rows[0].Direction != storage.DirectionReceive || rows[0].Status != storage.StatusComplete {
		t.Fatalf("unexpected history %+v", rows)
	}

	if _, err := runCommand(t, "history", "--data-dir", dataDir, "--direction", "sideways"); err == nil {
		t.Fatalf("expected invalid direction to fail")
	}
}

func TestCleanupCommand(t *testing.T) {
	dataDir := t.TempDir()
	transferDir := filepath.Join(dataDir, "pictures", "Transfer")
	if err := os.MkdirAll(transferDir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	old := filepath.Join(transferDir, "old.jpg")
	if err := os.WriteFile(old, []byte("old"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	expired := time.Now().Add(-8 * 24 * time.Hour)
	if err := os.Chtimes(old, expired, expired); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	out, err := runCommand(t, "cleanup", "--data-dir", dataDir)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if !strings.Contains(out, "1 file(s) deleted") {
		t.Fatalf("unexpected cleanup output:\n%s", out)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old file to be deleted, stat err=%v", err)
	}
}

func TestWritePeerTable(t *testing.T) {
	var out bytes.Buffer
	if err := writePeerTable(&out, nil); err != nil {
		t.Fatalf("writePeerTable empty failed: %v", err)
	}
	if !strings.Contains(out.String(), "No nearby devices") {
		t.Fatalf("unexpected empty output %q", out.String())
	}

	out.Reset()
	err := writePeerTable(&out, []models.Peer{{
		DeviceName:    "kitchen-tablet",
		Addresses:     []string{"192.168.1.20", "fe80::1"},
		FileName:      "shared_image_1.jpg",
		SourceLocator: "imgbeam://192.168.1.20:9999/shared_image_1.jpg",
	}})
	if err != nil {
		t.Fatalf("writePeerTable failed: %v", err)
	}
	for _, want := range []string{"DEVICE", "kitchen-tablet", "192.168.1.20,fe80::1", "shared_image_1.jpg"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected %q in output:\n%s", want, out.String())
		}
	}
}

func TestDiscoveredAnnouncementsCannotReadLocalFiles(t *testing.T) {
	secret := filepath.Join(t.TempDir(), "id_rsa")
	if err := os.WriteFile(secret, []byte("PRIVATE KEY"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, locator := range []string{secret, "file://" + filepath.ToSlash(secret)} {
		src, err := discoveredResolver().Open(context.Background(), locator)
		if err == nil {
			_ = src.Close()
			t.Fatalf("expected discovered locator %q to be refused", locator)
		}
		if !errors.Is(err, network.ErrInvalidLocator) {
			t.Fatalf("expected ErrInvalidLocator for %q, got %v", locator, err)
		}
	}

	src, err := operatorResolver().Open(context.Background(), secret)
	if err != nil {
		t.Fatalf("operator resolver should open local paths: %v", err)
	}
	_ = src.Close()
}
