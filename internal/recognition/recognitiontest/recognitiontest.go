// Package recognitiontest provides a scripted recognition.Engine for tests.
package recognitiontest

import (
	"errors"
	"sync"

	"github.com/courtrecord/voicetext/internal/recognition"
)

// Engine is a fake engine. Start, Stop and Abort only record the call; tests
// deliver callbacks with Started, Interim, Final, Fail and End.
type Engine struct {
	mu       sync.Mutex
	session  *recognition.Session
	stream   *recognition.Stream
	opts     recognition.Options
	created  int
	starts   int
	stops    int
	aborts   int
	startErr error
}

// New returns an unbound fake engine.
func New() *Engine {
	return &Engine{}
}

// Factory returns a recognition.Factory that binds and returns e.
func (e *Engine) Factory() recognition.Factory {
	return func(opts recognition.Options, h recognition.Handler) (recognition.Engine, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.session = recognition.NewSession(h)
		e.opts = opts
		e.created++
		return e, nil
	}
}

// FailStart makes subsequent Start calls return err. Nil restores success.
func (e *Engine) FailStart(err error) {
	e.mu.Lock()
	e.startErr = err
	e.mu.Unlock()
}

func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return errors.New("recognitiontest: engine not bound")
	}
	if e.startErr != nil {
		return e.startErr
	}
	st, err := e.session.Begin()
	if err != nil {
		return err
	}
	e.stream = st
	e.starts++
	return nil
}

func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil || !e.session.Live() {
		return recognition.ErrNotStarted
	}
	e.stops++
	return nil
}

func (e *Engine) Abort() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil || !e.session.Live() {
		return recognition.ErrNotStarted
	}
	e.aborts++
	return nil
}

func (e *Engine) current() *recognition.Stream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stream
}

// Started delivers OnStart for the live session.
func (e *Engine) Started() {
	if st := e.current(); st != nil {
		st.Started()
	}
}

// Interim delivers a partial result.
func (e *Engine) Interim(text string) {
	if st := e.current(); st != nil {
		st.Interim(text)
	}
}

// Final delivers a final result.
func (e *Engine) Final(text string) {
	if st := e.current(); st != nil {
		st.Final(text, 1)
	}
}

// Fail delivers OnError.
func (e *Engine) Fail(kind recognition.ErrorKind) {
	if st := e.current(); st != nil {
		st.Fail(kind, string(kind))
	}
}

// End ends the live session and delivers OnEnd.
func (e *Engine) End() {
	if st := e.current(); st != nil {
		st.End()
	}
}

// Live reports whether a session is open.
func (e *Engine) Live() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil && e.session.Live()
}

// Options returns the options the engine was created with.
func (e *Engine) Options() recognition.Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts
}

// Created returns how many times the factory ran.
func (e *Engine) Created() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.created
}

// Starts returns the number of successful Start calls.
func (e *Engine) Starts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

// Stops returns the number of Stop calls on a live session.
func (e *Engine) Stops() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

// Aborts returns the number of Abort calls on a live session.
func (e *Engine) Aborts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aborts
}
