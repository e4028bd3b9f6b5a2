package network

import (
	"bytes"
	"errors"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte(`{"type":"file_request","file_name":"a.jpg","protocol_version":1,"timestamp":1}`)

	var buffer bytes.Buffer
	if err := WriteFrame(&buffer, payload); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	got, err := ReadFrame(&buffer)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	payload := make([]byte, MaxFrameSize+1)
	var buffer bytes.Buffer
	if err := WriteFrame(&buffer, payload); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReadFrameRejectsOversizedHeader(t *testing.T) {
	buffer := bytes.NewBuffer([]byte{0xff, 0xff, 0xff, 0xff})
	if _, err := ReadFrame(buffer); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestDecodeMessageType(t *testing.T) {
	msgType, err := DecodeMessageType([]byte(`{"type":"file_data","chunk_index":0}`))
	if err != nil {
		t.Fatalf("DecodeMessageType failed: %v", err)
	}
	if msgType != TypeFileData {
		t.Fatalf("expected %q, got %q", TypeFileData, msgType)
	}

	if _, err := DecodeMessageType([]byte(`{"chunk_index":0}`)); !errors.Is(err, ErrInvalidMessageType) {
		t.Fatalf("expected ErrInvalidMessageType, got %v", err)
	}
	if _, err := DecodeMessageType([]byte(`not json`)); err == nil {
		t.Fatalf("expected malformed payload to fail")
	}
}

func TestChunkCount(t *testing.T) {
	cases := []struct {
		size      int64
		chunkSize int
		want      int
	}{
		{size: 0, chunkSize: 10, want: 0},
		{size: 1, chunkSize: 10, want: 1},
		{size: 10, chunkSize: 10, want: 1},
		{size: 11, chunkSize: 10, want: 2},
		{size: 10000, chunkSize: 4096, want: 3},
	}
	for _, tc := range cases {
		if got := chunkCount(tc.size, tc.chunkSize); got != tc.want {
			t.Fatalf("chunkCount(%d, %d) = %d, want %d", tc.size, tc.chunkSize, got, tc.want)
		}
	}
}

func TestLocatorRoundTrip(t *testing.T) {
	locator := Locator("192.168.1.20", 9999, "shared_image_1709993107000.jpg")
	if locator != "imgbeam://192.168.1.20:9999/shared_image_1709993107000.jpg" {
		t.Fatalf("unexpected locator %q", locator)
	}
	if !IsLocator(locator) {
		t.Fatalf("expected IsLocator to accept %q", locator)
	}

	address, name, err := ParseLocator(locator)
	if err != nil {
		t.Fatalf("ParseLocator failed: %v", err)
	}
	if address != "192.168.1.20:9999" || name != "shared_image_1709993107000.jpg" {
		t.Fatalf("unexpected parse result address=%q name=%q", address, name)
	}

	spaced := Locator("::1", 7000, "my photo.jpg")
	address, name, err = ParseLocator(spaced)
	if err != nil {
		t.Fatalf("ParseLocator with escaped name failed: %v", err)
	}
	if address != "[::1]:7000" || name != "my photo.jpg" {
		t.Fatalf("unexpected parse result address=%q name=%q", address, name)
	}
}

func TestParseLocatorRejectsMalformed(t *testing.T) {
	for _, locator := range []string{
		"content://media/external/images/42",
		"imgbeam://host/a.jpg",
		"imgbeam://host:1/",
		"imgbeam://host:1/dir/a.jpg",
		"/tmp/a.jpg",
	} {
		if _, _, err := ParseLocator(locator); !errors.Is(err, ErrInvalidLocator) {
			t.Fatalf("expected ErrInvalidLocator for %q, got %v", locator, err)
		}
	}
}
