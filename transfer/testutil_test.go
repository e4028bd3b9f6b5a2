package transfer

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"imgbeam/storage"
)

type fakeAnnouncer struct {
	mu        sync.Mutex
	announced []string
	withdrawn int
	err       error
}

func (f *fakeAnnouncer) Announce(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.announced = append(f.announced, text)
	return nil
}

func (f *fakeAnnouncer) Withdraw() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withdrawn++
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(event Event) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

func (l *eventLog) kinds() []Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Kind, 0, len(l.events))
	for _, event := range l.events {
		out = append(out, event.Kind)
	}
	return out
}

func (l *eventLog) last() Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()

	store, _, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0o700))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func patternBytes(size int) []byte {
	out := make([]byte, size)
	for i := range out {
		out[i] = byte(i % 253)
	}
	return out
}
