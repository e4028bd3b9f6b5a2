package transfer

import (
	"sort"
	"sync"
)

// TransferProgress is the latest known state of one transfer.
type TransferProgress struct {
	TransferID       string `json:"transfer_id"`
	FileName         string `json:"file_name"`
	BytesTransferred int64  `json:"bytes_transferred"`
	TotalBytes       int64  `json:"total_bytes"`
	Percent          int    `json:"percent"`
	Completed        bool   `json:"completed"`
	Failed           bool   `json:"failed"`
}

// ProgressTracker keeps progress snapshots keyed by transfer ID.
type ProgressTracker struct {
	mu       sync.RWMutex
	progress map[string]TransferProgress
}

// NewProgressTracker returns an empty tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{progress: make(map[string]TransferProgress)}
}

// Update stores progress for one transfer.
func (t *ProgressTracker) Update(progress TransferProgress) {
	if t == nil || progress.TransferID == "" {
		return
	}
	t.mu.Lock()
	t.progress[progress.TransferID] = progress
	t.mu.Unlock()
}

// Apply folds an event into the stored snapshot.
func (t *ProgressTracker) Apply(event Event) {
	if t == nil || event.TransferID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.progress[event.TransferID]
	current.TransferID = event.TransferID
	switch event.Kind {
	case KindProgress:
		current.Percent = event.Percent
	case KindCompleted:
		current.Completed = true
		current.Failed = !event.Success
		if event.Success {
			current.Percent = 100
		}
	case KindError:
		current.Failed = true
	}
	t.progress[event.TransferID] = current
}

// Progress returns one transfer progress snapshot.
func (t *ProgressTracker) Progress(transferID string) (TransferProgress, bool) {
	if t == nil || transferID == "" {
		return TransferProgress{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	progress, ok := t.progress[transferID]
	return progress, ok
}

// Snapshot returns all tracked transfers ordered by ID.
func (t *ProgressTracker) Snapshot() []TransferProgress {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]TransferProgress, 0, len(t.progress))
	for _, progress := range t.progress {
		out = append(out, progress)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TransferID < out[j].TransferID
	})
	return out
}

// Forget drops a finished transfer.
func (t *ProgressTracker) Forget(transferID string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	delete(t.progress, transferID)
	t.mu.Unlock()
}
