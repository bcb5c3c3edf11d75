package dictation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/courtrecord/voicetext/internal/recognition"
	"github.com/courtrecord/voicetext/internal/voicecmd"
)

func kinds(effects []effect) []effectKind {
	out := make([]effectKind, 0, len(effects))
	for _, ef := range effects {
		out = append(out, ef.kind)
	}
	return out
}

func findEffect(effects []effect, kind effectKind, timer timerName) (effect, bool) {
	for _, ef := range effects {
		if ef.kind == kind && ef.timer == timer {
			return ef, true
		}
	}
	return effect{}, false
}

var (
	idle      = machine{state: Idle}
	listening = machine{state: Listening, active: true}
)

func TestTransition_Start(t *testing.T) {
	tm := DefaultTimings()

	next, effects := transition(idle, event{kind: evStart}, tm)
	assert.Equal(t, Listening, next.state)
	assert.True(t, next.active)
	assert.Contains(t, kinds(effects), effStartEngine)

	next, effects = transition(listening, event{kind: evStart}, tm)
	assert.Equal(t, listening, next)
	assert.Empty(t, effects, "start while listening is a no-op")

	processing := machine{state: Processing, active: true}
	_, effects = transition(processing, event{kind: evStart}, tm)
	assert.Empty(t, effects)

	failed := machine{state: Error, errMsg: "Speech error: bad-grammar"}
	next, effects = transition(failed, event{kind: evStart}, tm)
	assert.Equal(t, Listening, next.state)
	assert.Empty(t, next.errMsg)
	assert.Contains(t, kinds(effects), effStartEngine)
}

func TestTransition_Unavailable(t *testing.T) {
	next, effects := transition(idle, event{kind: evUnavailable}, DefaultTimings())
	assert.Equal(t, Error, next.state)
	assert.Equal(t, MessageCapabilityMissing, next.errMsg)
	assert.False(t, next.active)
	assert.NotContains(t, kinds(effects), effStartEngine)
}

func TestTransition_InterimDoesNotSplice(t *testing.T) {
	next, effects := transition(listening, event{kind: evInterim, text: "hel"}, DefaultTimings())
	assert.Equal(t, Listening, next.state)
	assert.Equal(t, "hel", next.interim)
	assert.Empty(t, effects)

	next, _ = transition(idle, event{kind: evInterim, text: "late"}, DefaultTimings())
	assert.Empty(t, next.interim)
}

func TestTransition_Final(t *testing.T) {
	tm := DefaultTimings()
	m := listening
	m.interim = "hel"

	next, effects := transition(m, event{kind: evFinal, cmd: voicecmd.Command{Kind: voicecmd.Text, Value: "hello"}}, tm)
	assert.Equal(t, Processing, next.state)
	assert.Empty(t, next.interim)
	assert.Equal(t, []effectKind{effInsert, effSchedule}, kinds(effects))
	settle, ok := findEffect(effects, effSchedule, timerSettle)
	assert.True(t, ok)
	assert.Equal(t, tm.Settle, settle.delay)

	_, effects = transition(m, event{kind: evFinal, cmd: voicecmd.Command{Kind: voicecmd.Edit, Value: "undo"}}, tm)
	assert.Equal(t, []effectKind{effEdit, effSchedule}, kinds(effects))

	_, effects = transition(m, event{kind: evFinal, cmd: voicecmd.Command{Kind: voicecmd.Text}}, tm)
	assert.Equal(t, []effectKind{effSchedule}, kinds(effects), "empty utterances are not spliced")

	// a final flushed after stop is spliced without reopening the session
	next, effects = transition(idle, event{kind: evFinal, cmd: voicecmd.Command{Kind: voicecmd.Punctuation, Value: ". "}}, tm)
	assert.Equal(t, Idle, next.state)
	assert.Equal(t, []effectKind{effInsert}, kinds(effects))
}

func TestTransition_Settled(t *testing.T) {
	next, _ := transition(machine{state: Processing, active: true}, event{kind: evSettled}, DefaultTimings())
	assert.Equal(t, Listening, next.state)

	next, _ = transition(idle, event{kind: evSettled}, DefaultTimings())
	assert.Equal(t, Idle, next.state)
}

func TestTransition_EngineEnded(t *testing.T) {
	tm := DefaultTimings()

	for _, m := range []machine{listening, {state: Processing, active: true}} {
		next, effects := transition(m, event{kind: evEngineEnded}, tm)
		assert.Equal(t, m.state, next.state)
		assert.Len(t, effects, 1)
		restart, ok := findEffect(effects, effSchedule, timerRestart)
		assert.True(t, ok)
		assert.Equal(t, tm.Restart, restart.delay)
	}

	_, effects := transition(idle, event{kind: evEngineEnded}, tm)
	assert.Empty(t, effects, "end after stop does nothing")

	retrying := machine{state: Error, errMsg: MessageNetwork, active: true}
	_, effects = transition(retrying, event{kind: evEngineEnded}, tm)
	assert.Empty(t, effects, "the network retry is already scheduled")
}

func TestTransition_RestartDue(t *testing.T) {
	_, effects := transition(listening, event{kind: evRestartDue}, DefaultTimings())
	assert.Equal(t, []effectKind{effStartEngine}, kinds(effects))
	assert.Equal(t, "ended", effects[0].reason)

	_, effects = transition(idle, event{kind: evRestartDue}, DefaultTimings())
	assert.Empty(t, effects)

	_, effects = transition(machine{state: Error, active: true}, event{kind: evRestartDue}, DefaultTimings())
	assert.Equal(t, "network", effects[0].reason)
}

func TestTransition_Stop(t *testing.T) {
	m := listening
	m.interim = "partial"

	next, effects := transition(m, event{kind: evStop}, DefaultTimings())
	assert.Equal(t, idle, next)
	_, ok := findEffect(effects, effCancel, timerRestart)
	assert.True(t, ok)
	_, ok = findEffect(effects, effCancel, timerSettle)
	assert.True(t, ok)
	assert.Contains(t, kinds(effects), effStopEngine)

	_, effects = transition(idle, event{kind: evStop}, DefaultTimings())
	assert.NotContains(t, kinds(effects), effStopEngine)
}

func TestTransition_EngineErrors(t *testing.T) {
	tm := DefaultTimings()

	tests := []struct {
		kind      recognition.ErrorKind
		wantState State
		wantMsg   string
		active    bool
	}{
		{recognition.NoSpeech, Listening, "", true},
		{recognition.Aborted, Listening, "", true},
		{recognition.NotAllowed, Error, MessagePermissionDenied, false},
		{recognition.ServiceNotAllowed, Error, MessagePermissionDenied, false},
		{recognition.Network, Error, MessageNetwork, true},
		{recognition.AudioCapture, Error, "Speech error: audio-capture", false},
		{recognition.LanguageNotSupported, Error, "Speech error: language-not-supported", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			next, effects := transition(listening, event{kind: evEngineError, errKind: tt.kind}, tm)
			assert.Equal(t, tt.wantState, next.state)
			assert.Equal(t, tt.wantMsg, next.errMsg)
			assert.Equal(t, tt.active, next.active)

			retry, ok := findEffect(effects, effSchedule, timerRestart)
			if tt.kind == recognition.Network {
				assert.True(t, ok)
				assert.Equal(t, tm.NetworkRetry, retry.delay)
			} else {
				assert.False(t, ok)
			}
		})
	}

	next, _ := transition(machine{state: Processing, active: true}, event{kind: evEngineError, errKind: recognition.NoSpeech}, tm)
	assert.Equal(t, Processing, next.state)

	next, _ = transition(idle, event{kind: evEngineError, errKind: recognition.Network}, tm)
	assert.Equal(t, idle, next, "errors after stop are dropped")
}

func TestTransition_StartFailedAndFault(t *testing.T) {
	next, _ := transition(listening, event{kind: evStartFailed}, DefaultTimings())
	assert.Equal(t, Error, next.state)
	assert.Equal(t, MessageStartFailed, next.errMsg)

	next, effects := transition(listening, event{kind: evFault}, DefaultTimings())
	assert.Equal(t, Error, next.state)
	assert.Equal(t, MessageInternal, next.errMsg)
	assert.Contains(t, kinds(effects), effStopEngine)
}

func TestTransition_Teardown(t *testing.T) {
	next, effects := transition(listening, event{kind: evTeardown}, DefaultTimings())
	assert.Equal(t, Idle, next.state)
	assert.False(t, next.active)
	assert.Contains(t, kinds(effects), effAbortEngine)
	for _, name := range []timerName{timerSettle, timerRestart, timerCaret} {
		_, ok := findEffect(effects, effCancel, name)
		assert.True(t, ok, name)
	}
}

func TestCategorize(t *testing.T) {
	assert.Equal(t, Transient, Categorize(recognition.NoSpeech))
	assert.Equal(t, Transient, Categorize(recognition.Aborted))
	assert.Equal(t, PermissionDenied, Categorize(recognition.NotAllowed))
	assert.Equal(t, Network, Categorize(recognition.Network))
	assert.Equal(t, Unknown, Categorize(recognition.BadGrammar))
	assert.Empty(t, Message(recognition.NoSpeech))
	assert.Equal(t, "Speech error: bad-grammar", Message(recognition.BadGrammar))
}

func TestParseEditMode(t *testing.T) {
	mode, err := ParseEditMode("")
	assert.NoError(t, err)
	assert.Equal(t, EditClearOnly, mode)

	mode, err = ParseEditMode("history")
	assert.NoError(t, err)
	assert.Equal(t, EditHistory, mode)

	_, err = ParseEditMode("vim")
	assert.Error(t, err)
}
