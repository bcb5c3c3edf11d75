// Package dictation binds a speech recognition engine to a host-owned text
// buffer. The Controller runs the session state machine: it splices finalized
// utterances at the caret, applies spoken commands, and restarts the engine
// when a session ends on its own while the user is still listening.
package dictation

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/courtrecord/voicetext/internal/clock"
	"github.com/courtrecord/voicetext/internal/recognition"
	"github.com/courtrecord/voicetext/internal/textfmt"
	"github.com/courtrecord/voicetext/internal/voicecmd"
)

// Widget moves the host's visible caret.
type Widget interface {
	SetCaret(pos int)
}

// Metrics receives controller measurements. observe.Metrics implements it.
type Metrics interface {
	RecordUtterance(ctx context.Context, kind string)
	RecordRestart(ctx context.Context, reason string)
	RecordEngineError(ctx context.Context, kind, category string)
	AddActiveSessions(ctx context.Context, delta int64)
	RecordSplice(ctx context.Context, runes int)
}

type nopMetrics struct{}

func (nopMetrics) RecordUtterance(context.Context, string)           {}
func (nopMetrics) RecordRestart(context.Context, string)             {}
func (nopMetrics) RecordEngineError(context.Context, string, string) {}
func (nopMetrics) AddActiveSessions(context.Context, int64)          {}
func (nopMetrics) RecordSplice(context.Context, int)                 {}

const historyLimit = 50

type pendingTimer struct {
	t     clock.Timer
	token uint64
}

// Controller is the recognition session controller. All state transitions
// are serialized under mu; engine calls and host callbacks run outside it, so
// an engine may deliver callbacks from inside Start, Stop or Abort.
type Controller struct {
	cfg     Config
	vocab   *voicecmd.Vocabulary
	metrics Metrics

	mu       sync.Mutex
	m        machine
	engine   recognition.Engine
	creating bool
	timers   map[timerName]pendingTimer
	tokens   uint64
	closed   bool
	caret    int
	consumed int // finals already handled in the current engine session
	live     bool
	history  *voicecmd.History

	statusSeq uint64 // bumped under mu on every status change

	notifyMu  sync.Mutex
	delivered uint64 // last statusSeq handed to the observer
}

func newController(cfg Config) *Controller {
	c := &Controller{
		cfg:     cfg,
		vocab:   cfg.Vocabulary,
		metrics: cfg.Metrics,
		m:       machine{state: Idle},
		timers:  make(map[timerName]pendingTimer),
		history: voicecmd.NewHistory(historyLimit),
	}
	if c.vocab == nil {
		c.vocab = voicecmd.DefaultVocabulary()
	}
	if c.metrics == nil {
		c.metrics = nopMetrics{}
	}
	return c
}

// Status returns the current status snapshot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m.status()
}

// Start begins listening. The engine is created on first use; a missing
// engine moves the controller to the error state. Start while listening is a
// no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.closed || c.creating || (c.m.active && c.m.state != Error) {
		c.mu.Unlock()
		return
	}
	needEngine := c.engine == nil
	if needEngine {
		c.creating = true
	}
	c.mu.Unlock()

	if needEngine {
		eng, err := c.cfg.Factory(c.options(), handler{c})
		c.mu.Lock()
		c.creating = false
		if err == nil {
			c.engine = eng
		}
		c.mu.Unlock()

		if err != nil {
			log.Printf("Dictation: speech engine unavailable: %v", err)
			c.dispatch(event{kind: evUnavailable})
			return
		}
	}

	c.dispatch(event{kind: evStart})
}

// Stop stops listening. Pending timers are cancelled before Stop returns.
func (c *Controller) Stop() {
	c.dispatch(event{kind: evStop})
}

// Toggle stops an active session or starts a new one.
func (c *Controller) Toggle() {
	if c.Status().Active() {
		c.Stop()
		return
	}
	c.Start()
}

// SetCaret records the insertion offset, clamped to the current buffer.
func (c *Controller) SetCaret(pos int) {
	value := c.cfg.Value()
	c.mu.Lock()
	c.caret = textfmt.ClampCaret(value, pos)
	c.mu.Unlock()
}

// Caret returns the tracked insertion offset.
func (c *Controller) Caret() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caret
}

// resetHistory drops undo snapshots after a manual edit.
func (c *Controller) resetHistory() {
	c.mu.Lock()
	c.history.Reset()
	c.mu.Unlock()
}

// Close aborts the engine and cancels every timer. Callbacks arriving after
// Close are dropped.
func (c *Controller) Close() {
	c.dispatch(event{kind: evTeardown})
}

func (c *Controller) options() recognition.Options {
	return recognition.Options{
		Language:        c.cfg.Language,
		Continuous:      c.cfg.Continuous,
		InterimResults:  !c.cfg.DisableInterim,
		MaxAlternatives: 1,
	}
}

// dispatch applies ev and runs the resulting effects.
func (c *Controller) dispatch(ev event) {
	effects, eng, status, seq, ok := c.step(ev)
	if !ok {
		return
	}
	for _, ef := range effects {
		c.run(ef, eng)
	}
	if seq != 0 {
		c.notify(status, seq)
	}
}

// step applies ev under mu. A changed status gets a non-zero sequence number.
func (c *Controller) step(ev event) ([]effect, recognition.Engine, Status, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, nil, Status{}, 0, false
	}

	prev := c.m.status()
	next, effects := transition(c.m, ev, c.cfg.Timings)
	c.m = next
	if ev.kind == evTeardown {
		c.closed = true
	}

	// timer effects only touch the timer table and stay under the lock
	var outside []effect
	for _, ef := range effects {
		switch ef.kind {
		case effSchedule:
			c.scheduleLocked(ef.timer, ef.delay, c.timerEvent(ef.timer))
		case effCancel:
			c.cancelLocked(ef.timer)
		default:
			outside = append(outside, ef)
		}
	}

	status := c.m.status()
	var seq uint64
	if status != prev {
		log.Printf("Dictation: %s -> %s (%s)", prev.State, status.State, ev.kind)
		c.statusSeq++
		seq = c.statusSeq
	}
	return outside, c.engine, status, seq, true
}

func (c *Controller) timerEvent(name timerName) func() {
	switch name {
	case timerSettle:
		return func() { c.dispatch(event{kind: evSettled}) }
	case timerRestart:
		return func() { c.dispatch(event{kind: evRestartDue}) }
	default:
		return c.moveCaret
	}
}

// scheduleLocked arms the named timer, replacing any pending one. A timer
// whose token no longer matches when it fires is stale and does nothing.
func (c *Controller) scheduleLocked(name timerName, d time.Duration, fire func()) {
	c.cancelLocked(name)
	c.tokens++
	token := c.tokens
	t := c.cfg.Clock.AfterFunc(d, func() {
		c.mu.Lock()
		pt, ok := c.timers[name]
		if c.closed || !ok || pt.token != token {
			c.mu.Unlock()
			return
		}
		delete(c.timers, name)
		c.mu.Unlock()

		defer c.recoverFault(string(name) + " timer")
		fire()
	})
	c.timers[name] = pendingTimer{t: t, token: token}
}

func (c *Controller) cancelLocked(name timerName) {
	if pt, ok := c.timers[name]; ok {
		pt.t.Stop()
		delete(c.timers, name)
	}
}

func (c *Controller) run(ef effect, eng recognition.Engine) {
	ctx := context.Background()

	switch ef.kind {
	case effStartEngine:
		if eng == nil {
			return
		}
		if ef.reason != "start" {
			log.Printf("Dictation: restarting engine (%s)", ef.reason)
			c.metrics.RecordRestart(ctx, ef.reason)
		}
		err := eng.Start()
		switch {
		case err == nil:
		case errors.Is(err, recognition.ErrAlreadyStarted):
			log.Printf("Dictation: engine already running")
		default:
			log.Printf("Dictation: engine start failed: %v", err)
			c.dispatch(event{kind: evStartFailed})
		}

	case effStopEngine:
		if eng == nil {
			return
		}
		if err := eng.Stop(); err != nil && !errors.Is(err, recognition.ErrNotStarted) {
			log.Printf("Dictation: engine stop failed: %v", err)
		}

	case effAbortEngine:
		if eng == nil {
			return
		}
		if err := eng.Abort(); err != nil && !errors.Is(err, recognition.ErrNotStarted) {
			log.Printf("Dictation: engine abort failed: %v", err)
		}
		c.mu.Lock()
		wasLive := c.live
		c.live = false
		c.mu.Unlock()
		if wasLive {
			c.metrics.AddActiveSessions(ctx, -1)
		}

	case effInsert:
		c.insert(ef.cmd)

	case effEdit:
		c.edit(ef.cmd.Value)
	}
}

// insert splices cmd at the caret, reading the buffer fresh.
func (c *Controller) insert(cmd voicecmd.Command) {
	value := c.cfg.Value()

	c.mu.Lock()
	caret := textfmt.ClampCaret(value, c.caret)
	c.mu.Unlock()

	text := cmd.Value
	if cmd.Kind == voicecmd.Text {
		before := textfmt.Before(value, caret)
		text = textfmt.SmartCapitalize(text, before)
		prev := textfmt.LastChar(before)
		// ". " and ", " already carry the separator
		if textfmt.NeedsSpace(prev, textfmt.FirstChar(text)) && !endsInBlank(prev) {
			text = " " + text
		}
	}

	next, newCaret := textfmt.Splice(value, caret, text)
	c.cfg.OnChange(next)
	c.metrics.RecordSplice(context.Background(), textfmt.Len(text))
	c.moveTo(newCaret)
}

func endsInBlank(char string) bool {
	return char == " " || char == "\t"
}

func (c *Controller) edit(phrase string) {
	if c.cfg.EditMode != EditHistory {
		if phrase != voicecmd.EditClear {
			log.Printf("Dictation: edit command %q ignored", phrase)
			return
		}
		c.cfg.OnChange("")
		c.moveTo(0)
		return
	}

	value := c.cfg.Value()
	c.mu.Lock()
	next := voicecmd.ApplyEdit(phrase, value, c.history)
	c.mu.Unlock()

	c.cfg.OnChange(next)
	c.moveTo(textfmt.Len(next))
}

// moveTo records the new caret and schedules the widget caret move.
func (c *Controller) moveTo(pos int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caret = pos
	if c.closed || c.cfg.Widget == nil {
		return
	}
	c.scheduleLocked(timerCaret, c.cfg.Timings.Caret, c.moveCaret)
}

func (c *Controller) moveCaret() {
	c.mu.Lock()
	pos := c.caret
	c.mu.Unlock()
	if c.cfg.Widget != nil {
		c.cfg.Widget.SetCaret(pos)
	}
}

// notify hands s to the observer unless a newer status already went out.
func (c *Controller) notify(s Status, seq uint64) {
	if c.cfg.Observer == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if seq <= c.delivered {
		return
	}
	c.delivered = seq
	c.cfg.Observer(s)
}

// recoverFault turns a panic in a callback into the error state.
func (c *Controller) recoverFault(where string) {
	if r := recover(); r != nil {
		log.Printf("Dictation: recovered panic in %s: %v", where, r)
		c.dispatch(event{kind: evFault})
	}
}

// handler adapts engine callbacks to controller events.
type handler struct{ c *Controller }

func (h handler) OnStart() {
	c := h.c
	defer c.recoverFault("start")

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.consumed = 0
	wasLive := c.live
	c.live = true
	c.mu.Unlock()

	if !wasLive {
		c.metrics.AddActiveSessions(context.Background(), 1)
	}
	c.dispatch(event{kind: evEngineStarted})
}

func (h handler) OnResult(ev recognition.ResultEvent) {
	c := h.c
	defer c.recoverFault("result")

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	start := ev.ResultIndex
	if start < c.consumed {
		start = c.consumed
	}
	var finals []string
	var interim []string
	for i := start; i < len(ev.Results); i++ {
		r := ev.Results[i]
		if r.IsFinal {
			finals = append(finals, r.Transcript)
			c.consumed = i + 1
		} else {
			interim = append(interim, strings.TrimSpace(r.Transcript))
		}
	}
	c.mu.Unlock()

	for _, transcript := range finals {
		cmd := c.vocab.Classify(transcript)
		c.metrics.RecordUtterance(context.Background(), string(cmd.Kind))
		c.dispatch(event{kind: evFinal, cmd: cmd})
	}
	if len(interim) > 0 {
		c.dispatch(event{kind: evInterim, text: strings.Join(interim, " ")})
	}
}

func (h handler) OnError(ev recognition.ErrorEvent) {
	c := h.c
	defer c.recoverFault("error")

	category := Categorize(ev.Kind)
	if category == Transient {
		log.Printf("Dictation: ignoring %s", ev.Kind)
	} else {
		log.Printf("Dictation: engine error %s: %s", ev.Kind, ev.Message)
	}
	c.metrics.RecordEngineError(context.Background(), string(ev.Kind), string(category))
	c.dispatch(event{kind: evEngineError, errKind: ev.Kind})
}

func (h handler) OnEnd() {
	c := h.c
	defer c.recoverFault("end")

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	wasLive := c.live
	c.live = false
	c.mu.Unlock()

	if wasLive {
		c.metrics.AddActiveSessions(context.Background(), -1)
	}
	c.dispatch(event{kind: evEngineEnded})
}
