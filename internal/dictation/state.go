package dictation

import (
	"fmt"
	"time"
)

// State is the dictation session state reported to the host.
type State string

const (
	Idle       State = "idle"
	Listening  State = "listening"
	Processing State = "processing"
	Error      State = "error"
	// Paused is reserved. No transition produces it.
	Paused State = "paused"
)

// Status is the snapshot a host renders: mic indicator, interim caption and
// error text. ErrorMessage is empty when there is no error.
type Status struct {
	State             State
	InterimTranscript string
	ErrorMessage      string
}

// Active reports whether the session is listening or settling a result.
func (s Status) Active() bool {
	return s.State == Listening || s.State == Processing
}

// EditMode selects how spoken edit commands affect the buffer.
type EditMode string

const (
	// EditClearOnly applies "clear" and ignores the other edit phrases.
	EditClearOnly EditMode = "clear-only"
	// EditHistory applies every edit phrase with an undo history.
	EditHistory EditMode = "history"
)

// ParseEditMode validates s. An empty string selects EditClearOnly.
func ParseEditMode(s string) (EditMode, error) {
	switch EditMode(s) {
	case "", EditClearOnly:
		return EditClearOnly, nil
	case EditHistory:
		return EditHistory, nil
	default:
		return "", fmt.Errorf("unknown edit mode %q (want %s or %s)", s, EditClearOnly, EditHistory)
	}
}

// Timings holds the controller's delays.
type Timings struct {
	Settle       time.Duration // processing back to listening
	Restart      time.Duration // engine end to restart
	NetworkRetry time.Duration // network error to restart
	Caret        time.Duration // splice to widget caret move
}

// DefaultTimings returns the standard delays.
func DefaultTimings() Timings {
	return Timings{
		Settle:       300 * time.Millisecond,
		Restart:      400 * time.Millisecond,
		NetworkRetry: 2 * time.Second,
		Caret:        0,
	}
}
