package dictation

import (
	"errors"

	"github.com/courtrecord/voicetext/internal/recognition"
)

// ErrorCategory groups engine failures by how the controller reacts.
type ErrorCategory string

const (
	CapabilityMissing ErrorCategory = "capability-missing"
	PermissionDenied  ErrorCategory = "permission-denied"
	Transient         ErrorCategory = "transient"
	Network           ErrorCategory = "network"
	Unknown           ErrorCategory = "unknown"
)

// User-facing messages.
const (
	MessageCapabilityMissing = "Voice input requires a supported speech recognition engine"
	MessagePermissionDenied  = "Microphone access denied. Allow microphone access and try again."
	MessageNetwork           = "Network error. Check your internet connection."
	MessageStartFailed       = "Could not start voice input"
	MessageInternal          = "Voice input stopped unexpectedly"
)

// ErrInvalidConfig is returned by New for a config missing required hooks.
var ErrInvalidConfig = errors.New("invalid dictation config")

// Categorize maps an engine error kind to its category.
func Categorize(kind recognition.ErrorKind) ErrorCategory {
	switch kind {
	case recognition.NoSpeech, recognition.Aborted:
		return Transient
	case recognition.NotAllowed, recognition.ServiceNotAllowed:
		return PermissionDenied
	case recognition.Network:
		return Network
	default:
		return Unknown
	}
}

// Message returns the user-facing text for an engine error, or "" when the
// error is not surfaced.
func Message(kind recognition.ErrorKind) string {
	switch Categorize(kind) {
	case Transient:
		return ""
	case PermissionDenied:
		return MessagePermissionDenied
	case Network:
		return MessageNetwork
	default:
		return "Speech error: " + string(kind)
	}
}
