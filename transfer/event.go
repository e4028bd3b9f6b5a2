// Package transfer stages outgoing images behind an announcement and fetches
// incoming ones, reporting each step as an Event.
package transfer

import "fmt"

// Kind identifies the variant carried by an Event.
type Kind string

const (
	// KindStarted is emitted once the announcement is accepted for fetching.
	KindStarted Kind = "started"
	// KindProgress carries a 0..100 percentage while bytes are copied.
	KindProgress Kind = "progress"
	// KindCompleted ends a transfer that ran to the end.
	KindCompleted Kind = "completed"
	// KindError ends a transfer that failed.
	KindError Kind = "error"
)

// Event is one status update for a transfer. Percent is set for KindProgress,
// Success for KindCompleted, Message for KindCompleted and KindError.
type Event struct {
	TransferID string `json:"transfer_id"`
	Kind       Kind   `json:"kind"`
	Percent    int    `json:"percent,omitempty"`
	Success    bool   `json:"success,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Started reports that a transfer began.
func Started(transferID string) Event {
	return Event{TransferID: transferID, Kind: KindStarted}
}

// Progress reports percent complete, clamped to 0..100.
func Progress(transferID string, percent int) Event {
	return Event{TransferID: transferID, Kind: KindProgress, Percent: clampPercent(percent)}
}

// Completed reports the final outcome of a transfer.
func Completed(transferID string, success bool, message string) Event {
	return Event{TransferID: transferID, Kind: KindCompleted, Success: success, Message: message}
}

// Failed reports a transfer error with a user-visible message.
func Failed(transferID, message string) Event {
	return Event{TransferID: transferID, Kind: KindError, Message: message}
}

func (e Event) String() string {
	switch e.Kind {
	case KindStarted:
		return "Transfer started"
	case KindProgress:
		return fmt.Sprintf("Transfer progress: %d%%", e.Percent)
	case KindCompleted:
		if e.Success {
			return "Transfer completed: " + e.Message
		}
		return "Transfer finished unsuccessfully: " + e.Message
	case KindError:
		return "Transfer error: " + e.Message
	default:
		return string(e.Kind)
	}
}

// percentOf maps written/total to 0..100. An unknown total reports 0.
func percentOf(written, total int64) int {
	if total <= 0 {
		return 0
	}
	return clampPercent(int(written * 100 / total))
}

func clampPercent(percent int) int {
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	default:
		return percent
	}
}
