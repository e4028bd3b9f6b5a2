package models

import (
	"encoding/json"
	"testing"
	"time"

	"imgbeam/storage"
)

func TestFromStorage(t *testing.T) {
	created := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	got := FromStorage(storage.Transfer{
		TransferID:    "t-1",
		Direction:     storage.DirectionReceive,
		FileName:      "photo.jpg",
		SourceLocator: "imgbeam://10.0.0.2:9999/photo.jpg",
		StoredPath:    "/data/Transfer/photo.jpg",
		Filesize:      1536,
		Status:        storage.StatusComplete,
		StatusMessage: "",
		CreatedAt:     created.UnixMilli(),
		UpdatedAt:     created.Add(time.Second).UnixMilli(),
	})

	if got.FormattedSize != "1.5 KB" {
		t.Fatalf("expected formatted size 1.5 KB, got %q", got.FormattedSize)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("expected created_at %s, got %s", created, got.CreatedAt)
	}

	raw, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := fields["message"]; ok {
		t.Fatalf("expected empty message to be omitted, got %s", raw)
	}
	if fields["status"] != storage.StatusComplete {
		t.Fatalf("unexpected status in %s", raw)
	}
}
