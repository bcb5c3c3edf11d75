package dictation

import (
	"time"

	"github.com/courtrecord/voicetext/internal/recognition"
	"github.com/courtrecord/voicetext/internal/voicecmd"
)

type eventKind int

const (
	evStart         eventKind = iota // user start
	evUnavailable                    // factory reported no engine
	evEngineStarted                  // engine OnStart
	evInterim                        // interim transcript
	evFinal                          // classified final result
	evSettled                        // settle timer fired
	evEngineEnded                    // engine OnEnd
	evRestartDue                     // restart timer fired
	evStop                           // user stop
	evEngineError                    // engine OnError
	evStartFailed                    // engine.Start returned an error
	evFault                          // recovered panic
	evTeardown                       // host closed the input
)

var eventNames = map[eventKind]string{
	evStart:         "start",
	evUnavailable:   "unavailable",
	evEngineStarted: "engine-started",
	evInterim:       "interim",
	evFinal:         "final",
	evSettled:       "settled",
	evEngineEnded:   "engine-ended",
	evRestartDue:    "restart-due",
	evStop:          "stop",
	evEngineError:   "engine-error",
	evStartFailed:   "start-failed",
	evFault:         "fault",
	evTeardown:      "teardown",
}

func (k eventKind) String() string { return eventNames[k] }

type event struct {
	kind    eventKind
	text    string                // interim transcript
	cmd     voicecmd.Command      // evFinal
	errKind recognition.ErrorKind // evEngineError
}

type timerName string

const (
	timerSettle  timerName = "settle"
	timerRestart timerName = "restart"
	timerCaret   timerName = "caret"
)

type effectKind int

const (
	effStartEngine effectKind = iota
	effStopEngine
	effAbortEngine
	effSchedule
	effCancel
	effInsert
	effEdit
)

type effect struct {
	kind   effectKind
	timer  timerName
	delay  time.Duration
	cmd    voicecmd.Command
	reason string // why the engine is (re)started
}

func schedule(name timerName, d time.Duration) effect {
	return effect{kind: effSchedule, timer: name, delay: d}
}

func cancel(name timerName) effect {
	return effect{kind: effCancel, timer: name}
}

// machine is the controller's pure state. active records the user's intent
// to keep listening; it survives a network error so the retry can run.
type machine struct {
	state   State
	interim string
	errMsg  string
	active  bool
}

func (m machine) status() Status {
	return Status{State: m.state, InterimTranscript: m.interim, ErrorMessage: m.errMsg}
}

// fail moves to the error state and gives up listening.
func (m machine) fail(msg string) (machine, []effect) {
	m.state = Error
	m.errMsg = msg
	m.interim = ""
	m.active = false
	return m, []effect{cancel(timerSettle), cancel(timerRestart)}
}

// transition computes the next state and the effects to run for ev. It has no
// side effects.
func transition(m machine, ev event, t Timings) (machine, []effect) {
	switch ev.kind {
	case evStart:
		if m.active && m.state != Error {
			return m, nil
		}
		m.state = Listening
		m.active = true
		m.errMsg = ""
		m.interim = ""
		return m, []effect{cancel(timerRestart), {kind: effStartEngine, reason: "start"}}

	case evUnavailable:
		return m.fail(MessageCapabilityMissing)

	case evEngineStarted:
		if !m.active {
			return m, nil
		}
		if m.state != Processing {
			m.state = Listening
		}
		m.errMsg = ""
		return m, nil

	case evInterim:
		if !m.active {
			return m, nil
		}
		m.interim = ev.text
		if m.state == Error {
			m.errMsg = ""
		}
		if m.state != Processing {
			m.state = Listening
		}
		return m, nil

	case evFinal:
		m.interim = ""
		var effects []effect
		switch {
		case ev.cmd.IsEmpty():
		case ev.cmd.Kind == voicecmd.Edit:
			effects = append(effects, effect{kind: effEdit, cmd: ev.cmd})
		default:
			effects = append(effects, effect{kind: effInsert, cmd: ev.cmd})
		}
		// finals flushed by a stop are still spliced, but do not reopen the session
		if m.active {
			m.state = Processing
			m.errMsg = ""
			effects = append(effects, schedule(timerSettle, t.Settle))
		}
		return m, effects

	case evSettled:
		if m.active && m.state == Processing {
			m.state = Listening
		}
		return m, nil

	case evEngineEnded:
		m.interim = ""
		if !m.active || m.state == Error {
			return m, nil
		}
		return m, []effect{schedule(timerRestart, t.Restart)}

	case evRestartDue:
		if !m.active {
			return m, nil
		}
		reason := "ended"
		if m.state == Error {
			reason = "network"
		}
		return m, []effect{{kind: effStartEngine, reason: reason}}

	case evStop:
		wasActive := m.active
		m.state = Idle
		m.active = false
		m.interim = ""
		m.errMsg = ""
		effects := []effect{cancel(timerSettle), cancel(timerRestart)}
		if wasActive {
			effects = append(effects, effect{kind: effStopEngine})
		}
		return m, effects

	case evEngineError:
		if !m.active {
			return m, nil
		}
		switch Categorize(ev.errKind) {
		case Transient:
			if m.state == Error {
				return m, nil
			}
			if m.state != Processing {
				m.state = Listening
			}
			return m, nil
		case Network:
			m.state = Error
			m.errMsg = MessageNetwork
			m.interim = ""
			return m, []effect{cancel(timerSettle), schedule(timerRestart, t.NetworkRetry)}
		default:
			return m.fail(Message(ev.errKind))
		}

	case evStartFailed:
		if !m.active {
			return m, nil
		}
		return m.fail(MessageStartFailed)

	case evFault:
		next, effects := m.fail(MessageInternal)
		return next, append(effects, effect{kind: effStopEngine})

	case evTeardown:
		m.state = Idle
		m.active = false
		m.interim = ""
		return m, []effect{
			cancel(timerSettle),
			cancel(timerRestart),
			cancel(timerCaret),
			{kind: effAbortEngine},
		}
	}
	return m, nil
}
