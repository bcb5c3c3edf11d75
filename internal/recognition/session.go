package recognition

import "sync"

// Session tracks the live/ended state and result list of an engine, and
// delivers Handler callbacks one at a time. Engines call Begin from Start and
// drive the returned Stream from their own goroutines.
type Session struct {
	h Handler

	mu      sync.Mutex // guards live, gen, results
	live    bool
	gen     uint64
	results []Result

	cbMu sync.Mutex // serializes handler callbacks
}

// NewSession returns a Session delivering callbacks to h.
func NewSession(h Handler) *Session {
	return &Session{h: h}
}

// Begin opens a new session. It fails with ErrAlreadyStarted while a previous
// session has not yet delivered OnEnd.
func (s *Session) Begin() (*Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live {
		return nil, ErrAlreadyStarted
	}
	s.live = true
	s.gen++
	s.results = nil
	return &Stream{s: s, gen: s.gen}, nil
}

// Live reports whether a session is open.
func (s *Session) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Stream is the producer side of one session. Calls after End, or after a
// newer session began, are dropped.
type Stream struct {
	s   *Session
	gen uint64
}

func (st *Stream) current() bool {
	return st.s.live && st.s.gen == st.gen
}

// Started delivers OnStart.
func (st *Stream) Started() {
	st.s.cbMu.Lock()
	defer st.s.cbMu.Unlock()

	st.s.mu.Lock()
	ok := st.current()
	st.s.mu.Unlock()
	if ok {
		st.s.h.OnStart()
	}
}

// Interim replaces the pending (non-final) result with text.
func (st *Stream) Interim(text string) {
	st.update(Result{Transcript: text})
}

// Final finalizes the pending result with text.
func (st *Stream) Final(text string, confidence float64) {
	st.update(Result{Transcript: text, Confidence: confidence, IsFinal: true})
}

func (st *Stream) update(r Result) {
	st.s.cbMu.Lock()
	defer st.s.cbMu.Unlock()

	st.s.mu.Lock()
	if !st.current() {
		st.s.mu.Unlock()
		return
	}
	idx := len(st.s.results)
	if idx > 0 && !st.s.results[idx-1].IsFinal {
		idx--
		st.s.results[idx] = r
	} else {
		st.s.results = append(st.s.results, r)
	}
	ev := ResultEvent{ResultIndex: idx, Results: append([]Result(nil), st.s.results...)}
	st.s.mu.Unlock()

	st.s.h.OnResult(ev)
}

// Fail delivers OnError.
func (st *Stream) Fail(kind ErrorKind, msg string) {
	st.s.cbMu.Lock()
	defer st.s.cbMu.Unlock()

	st.s.mu.Lock()
	ok := st.current()
	st.s.mu.Unlock()
	if ok {
		st.s.h.OnError(ErrorEvent{Kind: kind, Message: msg})
	}
}

// End closes the session and delivers OnEnd. Only the first call has effect.
func (st *Stream) End() {
	st.s.cbMu.Lock()
	defer st.s.cbMu.Unlock()

	st.s.mu.Lock()
	if !st.current() {
		st.s.mu.Unlock()
		return
	}
	st.s.live = false
	st.s.mu.Unlock()

	st.s.h.OnEnd()
}
