package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressTrackerUpdateAndApply(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.Update(TransferProgress{TransferID: "b", FileName: "b.jpg", BytesTransferred: 10, TotalBytes: 100, Percent: 10})
	tracker.Apply(Started("a"))
	tracker.Apply(Progress("a", 60))

	a, ok := tracker.Progress("a")
	require.True(t, ok)
	assert.Equal(t, 60, a.Percent)
	assert.False(t, a.Completed)

	tracker.Apply(Completed("a", true, "done"))
	a, _ = tracker.Progress("a")
	assert.True(t, a.Completed)
	assert.False(t, a.Failed)
	assert.Equal(t, 100, a.Percent)

	tracker.Apply(Failed("b", "gone"))
	b, _ := tracker.Progress("b")
	assert.True(t, b.Failed)
	assert.Equal(t, "b.jpg", b.FileName)

	snapshot := tracker.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "a", snapshot[0].TransferID)

	tracker.Forget("a")
	_, ok = tracker.Progress("a")
	assert.False(t, ok)
}

func TestNilProgressTrackerIsInert(t *testing.T) {
	var tracker *ProgressTracker
	tracker.Update(TransferProgress{TransferID: "x"})
	tracker.Apply(Started("x"))
	_, ok := tracker.Progress("x")
	assert.False(t, ok)
	assert.Nil(t, tracker.Snapshot())
}
