// Package recognition defines the streaming speech-recognition engine
// contract consumed by the dictation controller, and the registry that
// builds a concrete engine from configuration.
package recognition

import (
	"errors"
	"fmt"
)

var (
	// ErrCapabilityMissing means the runtime has no usable recognizer.
	ErrCapabilityMissing = errors.New("speech recognition not available")
	// ErrAlreadyStarted is returned by Start while a session is live.
	ErrAlreadyStarted = errors.New("recognition already started")
	// ErrNotStarted is returned by Stop or Abort with no live session.
	ErrNotStarted = errors.New("recognition not started")
)

// ErrorKind is the engine-reported error code.
type ErrorKind string

const (
	NoSpeech             ErrorKind = "no-speech"
	Aborted              ErrorKind = "aborted"
	AudioCapture         ErrorKind = "audio-capture"
	Network              ErrorKind = "network"
	NotAllowed           ErrorKind = "not-allowed"
	ServiceNotAllowed    ErrorKind = "service-not-allowed"
	BadGrammar           ErrorKind = "bad-grammar"
	LanguageNotSupported ErrorKind = "language-not-supported"
)

// Options configures one engine instance.
type Options struct {
	Language        string // BCP-47 tag, e.g. "en-US"
	Continuous      bool   // keep the session open across utterances
	InterimResults  bool   // deliver partial results
	MaxAlternatives int
}

// Result is one utterance within a session.
type Result struct {
	Transcript string
	Confidence float64
	IsFinal    bool
}

// ResultEvent carries the session's full result list. ResultIndex is the
// lowest index that changed since the previous event.
type ResultEvent struct {
	ResultIndex int
	Results     []Result
}

// Changed returns the results at or after ResultIndex.
func (e ResultEvent) Changed() []Result {
	if e.ResultIndex < 0 || e.ResultIndex >= len(e.Results) {
		return nil
	}
	return e.Results[e.ResultIndex:]
}

// ErrorEvent reports a session error. An error is normally followed by OnEnd.
type ErrorEvent struct {
	Kind    ErrorKind
	Message string
}

// Handler receives engine lifecycle callbacks. Callbacks for one engine are
// delivered sequentially, but may arrive on any goroutine, including the one
// calling Start, Stop or Abort.
type Handler interface {
	OnStart()
	OnResult(ResultEvent)
	OnError(ErrorEvent)
	OnEnd()
}

// Engine is a restartable recognition session.
//
// Start opens a session; it returns ErrAlreadyStarted if one is live. Stop
// asks the engine to finish, delivering any pending final results before
// OnEnd. Abort ends the session immediately, discarding pending results.
type Engine interface {
	Start() error
	Stop() error
	Abort() error
}

// Factory builds an engine bound to h. It returns an error wrapping
// ErrCapabilityMissing when no recognizer is available.
type Factory func(opts Options, h Handler) (Engine, error)

// EngineError wraps a failure with the ErrorKind it maps to.
type EngineError struct {
	Kind ErrorKind
	Err  error
}

func (e *EngineError) Error() string {
	if e == nil {
		return "engine error"
	}
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *EngineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewEngineError tags err with kind.
func NewEngineError(kind ErrorKind, err error) error {
	return &EngineError{Kind: kind, Err: err}
}

// KindOf returns the ErrorKind carried by err, or fallback if none.
func KindOf(err error, fallback ErrorKind) ErrorKind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return fallback
}
