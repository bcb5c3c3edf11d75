package dictation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtrecord/voicetext/internal/clock/clocktest"
	"github.com/courtrecord/voicetext/internal/recognition"
	"github.com/courtrecord/voicetext/internal/recognition/recognitiontest"
	"github.com/courtrecord/voicetext/internal/voicecmd"
)

// field is a host text field.
type field struct {
	mu      sync.Mutex
	value   string
	changes int
}

func (f *field) Value() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

func (f *field) Set(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = v
	f.changes++
}

type widget struct {
	mu    sync.Mutex
	moves []int
}

func (w *widget) SetCaret(pos int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.moves = append(w.moves, pos)
}

type countingMetrics struct {
	mu         sync.Mutex
	utterances map[string]int
	restarts   map[string]int
	errors     map[string]int
	active     int64
	spliced    int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		utterances: map[string]int{},
		restarts:   map[string]int{},
		errors:     map[string]int{},
	}
}

func (m *countingMetrics) RecordUtterance(_ context.Context, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.utterances[kind]++
}

func (m *countingMetrics) RecordRestart(_ context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts[reason]++
}

func (m *countingMetrics) RecordEngineError(_ context.Context, kind, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *countingMetrics) AddActiveSessions(_ context.Context, delta int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active += delta
}

func (m *countingMetrics) RecordSplice(_ context.Context, runes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spliced += runes
}

type harness struct {
	in     *Input
	engine *recognitiontest.Engine
	clock  *clocktest.Clock
	field  *field
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		engine: recognitiontest.New(),
		clock:  clocktest.New(),
		field:  &field{},
	}
	cfg := Config{
		Value:      h.field.Value,
		OnChange:   h.field.Set,
		Continuous: true,
		Factory:    h.engine.Factory(),
		Clock:      h.clock,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	in, err := New(cfg)
	require.NoError(t, err)
	h.in = in
	t.Cleanup(in.Close)
	return h
}

// listen starts dictation and delivers OnStart.
func (h *harness) listen(t *testing.T) {
	t.Helper()
	h.in.Start()
	h.engine.Started()
	require.Equal(t, Listening, h.in.Status().State)
}

func (h *harness) say(texts ...string) {
	for _, text := range texts {
		h.engine.Final(text)
		h.clock.Advance(DefaultTimings().Settle)
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	f := &field{}
	_, err = New(Config{Value: f.Value, OnChange: f.Set, Language: "xx-YY"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Value: f.Value, OnChange: f.Set, EditMode: "vim"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	in, err := New(Config{Value: f.Value, OnChange: f.Set})
	require.NoError(t, err)
	assert.Equal(t, Status{State: Idle}, in.Status())
}

func TestInput_StartCreatesEngineLazily(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Language = "de-DE" })
	assert.Zero(t, h.engine.Created())

	h.listen(t)
	assert.Equal(t, 1, h.engine.Created())
	assert.Equal(t, 1, h.engine.Starts())

	opts := h.engine.Options()
	assert.Equal(t, "de-DE", opts.Language)
	assert.True(t, opts.Continuous)
	assert.True(t, opts.InterimResults)
}

func TestInput_CapabilityMissing(t *testing.T) {
	f := &field{}
	in, err := New(Config{Value: f.Value, OnChange: f.Set, Clock: clocktest.New()})
	require.NoError(t, err)

	in.Start()
	assert.Equal(t, Status{State: Error, ErrorMessage: MessageCapabilityMissing}, in.Status())

	// still restartable, and still reporting the same error
	in.Start()
	assert.Equal(t, Error, in.Status().State)
}

func TestInput_FactoryError(t *testing.T) {
	f := &field{}
	factory := func(recognition.Options, recognition.Handler) (recognition.Engine, error) {
		return nil, errors.New("no microphone")
	}
	in, err := New(Config{Value: f.Value, OnChange: f.Set, Factory: factory, Clock: clocktest.New()})
	require.NoError(t, err)

	in.Start()
	assert.Equal(t, MessageCapabilityMissing, in.Status().ErrorMessage)
}

func TestInput_InterimThenFinal(t *testing.T) {
	h := newHarness(t, nil)
	h.listen(t)

	h.engine.Interim("hel")
	assert.Equal(t, Status{State: Listening, InterimTranscript: "hel"}, h.in.Status())
	assert.Empty(t, h.field.Value(), "interim results never reach the buffer")

	h.engine.Final("hello")
	assert.Equal(t, "Hello", h.field.Value())
	assert.Equal(t, 5, h.in.Caret())
	assert.Equal(t, Status{State: Processing}, h.in.Status())

	h.clock.Advance(299 * time.Millisecond)
	assert.Equal(t, Processing, h.in.Status().State)
	h.clock.Advance(time.Millisecond)
	assert.Equal(t, Listening, h.in.Status().State)
}

func TestInput_DictationFlow(t *testing.T) {
	h := newHarness(t, nil)
	h.listen(t)

	h.say("hello", "world", "period", "how are you", "question mark", "new line", "fine")
	assert.Equal(t, "Hello world. How are you? \nFine", h.field.Value())
	assert.Equal(t, len([]rune(h.field.Value())), h.in.Caret())
}

func TestInput_SpliceAtCaret(t *testing.T) {
	h := newHarness(t, nil)
	h.field.Set("Hello")
	h.listen(t)

	h.in.TrackCaret(5)
	h.say("world")
	assert.Equal(t, "Hello world", h.field.Value())
	assert.Equal(t, 11, h.in.Caret())

	h.field.Set("Hello")
	h.in.Edit("Hello", 2)
	h.say("hyphen")
	assert.Equal(t, "He-llo", h.field.Value(), "the suffix is preserved")
	assert.Equal(t, 3, h.in.Caret())
}

func TestInput_ReadsBufferFresh(t *testing.T) {
	h := newHarness(t, nil)
	h.listen(t)

	h.say("one")
	// the host replaces the buffer out of band
	h.field.Set("Typed.")
	h.in.Edit("Typed.", 6)
	h.say("two")
	assert.Equal(t, "Typed. Two", h.field.Value())
}

func TestInput_NoDoubleSpaceAfterPunctuation(t *testing.T) {
	h := newHarness(t, nil)
	h.listen(t)

	h.say("hello", "comma", "world", "dash", "again")
	assert.Equal(t, "Hello, world - again", h.field.Value())

	// text typed by hand with a trailing tab is not padded either
	h.field.Set("Name:\t")
	h.in.Edit("Name:\t", 6)
	h.say("alice")
	assert.Equal(t, "Name:\talice", h.field.Value())
}

func TestInput_CaretClamped(t *testing.T) {
	h := newHarness(t, nil)
	h.field.Set("abc")
	h.in.TrackCaret(99)
	assert.Equal(t, 3, h.in.Caret())
	h.in.TrackCaret(-4)
	assert.Equal(t, 0, h.in.Caret())

	h.listen(t)
	h.in.TrackCaret(3)
	h.field.Set("a")
	h.say("comma")
	assert.Equal(t, "a, ", h.field.Value())
}

func TestInput_WidgetCaretMovedNextTick(t *testing.T) {
	w := &widget{}
	h := newHarness(t, func(c *Config) { c.Widget = w })
	h.listen(t)

	h.engine.Final("hi")
	w.mu.Lock()
	assert.Empty(t, w.moves, "caret moves after the splice, not during it")
	w.mu.Unlock()

	h.clock.Advance(0)
	w.mu.Lock()
	assert.Equal(t, []int{2}, w.moves)
	w.mu.Unlock()
}

func TestInput_EditClearOnly(t *testing.T) {
	h := newHarness(t, nil)
	h.listen(t)

	h.say("hello there", "delete that", "undo", "scratch that", "remove that")
	assert.Equal(t, "Hello there", h.field.Value(), "only clear has an effect")

	h.say("clear")
	assert.Empty(t, h.field.Value())
	assert.Zero(t, h.in.Caret())

	h.say("again")
	assert.Equal(t, "Again", h.field.Value())
}

func TestInput_EditHistory(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.EditMode = EditHistory })
	h.listen(t)

	h.say("first part", "period", "second part")
	assert.Equal(t, "First part. Second part", h.field.Value())

	h.say("delete that")
	assert.Equal(t, "First part", h.field.Value())
	assert.Equal(t, 10, h.in.Caret())

	h.say("undo")
	assert.Equal(t, "First part. Second part", h.field.Value())

	h.say("clear")
	assert.Empty(t, h.field.Value())
	h.say("undo")
	assert.Equal(t, "First part. Second part", h.field.Value())
}

func TestInput_CustomVocabulary(t *testing.T) {
	vocab, err := voicecmd.ParseVocabulary([]byte("punctuation:\n  full stop: \". \"\n"))
	require.NoError(t, err)

	h := newHarness(t, func(c *Config) { c.Vocabulary = vocab })
	h.listen(t)
	h.say("done", "full stop")
	assert.Equal(t, "Done. ", h.field.Value())
}

func TestInput_RestartAfterUnexpectedEnd(t *testing.T) {
	h := newHarness(t, nil)
	h.listen(t)

	h.engine.End()
	assert.Equal(t, Listening, h.in.Status().State, "the session stays logically active")
	assert.Equal(t, 1, h.clock.Pending(), "exactly one restart is scheduled")

	h.clock.Advance(399 * time.Millisecond)
	assert.Equal(t, 1, h.engine.Starts())

	h.clock.Advance(time.Millisecond)
	assert.Equal(t, 2, h.engine.Starts())
	assert.True(t, h.engine.Live())

	h.clock.Advance(time.Second)
	assert.Equal(t, 2, h.engine.Starts(), "no double start")
}

func TestInput_StopCancelsPendingRestart(t *testing.T) {
	h := newHarness(t, nil)
	h.listen(t)

	h.engine.End()
	require.Equal(t, 1, h.clock.Pending())

	h.in.Stop()
	assert.Equal(t, Status{State: Idle}, h.in.Status())
	assert.Zero(t, h.clock.Pending())

	h.clock.Advance(time.Second)
	assert.Equal(t, 1, h.engine.Starts(), "the restart is a no-op after stop")
}

func TestInput_StopIsSynchronous(t *testing.T) {
	h := newHarness(t, nil)
	h.listen(t)
	h.engine.Interim("partial")

	h.in.Stop()
	assert.Equal(t, Status{State: Idle}, h.in.Status())
	assert.Equal(t, 1, h.engine.Stops())

	// the engine flushes a final and ends after stop
	h.engine.Final("tail")
	h.engine.End()
	assert.Equal(t, "Tail", h.field.Value())
	assert.Equal(t, Idle, h.in.Status().State)
	assert.Zero(t, h.clock.Pending(), "end after stop schedules nothing")
}

func TestInput_RestartSwallowsAlreadyStarted(t *testing.T) {
	h := newHarness(t, nil)
	h.listen(t)

	h.in.Stop()
	h.in.Start()
	assert.Equal(t, Listening, h.in.Status().State, "already-started is benign")
	assert.Equal(t, 1, h.engine.Starts())

	h.engine.End()
	h.clock.Advance(DefaultTimings().Restart)
	assert.Equal(t, 2, h.engine.Starts())
}

func TestInput_StartFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.listen(t)

	h.engine.FailStart(errors.New("device busy"))
	h.engine.End()
	h.clock.Advance(DefaultTimings().Restart)

	assert.Equal(t, Status{State: Error, ErrorMessage: MessageStartFailed}, h.in.Status())

	h.engine.FailStart(nil)
	h.in.Start()
	assert.Equal(t, Listening, h.in.Status().State)
	assert.Equal(t, 2, h.engine.Starts())
}

func TestInput_SingleActiveSession(t *testing.T) {
	h := newHarness(t, nil)

	h.in.Start()
	h.in.Start()
	h.engine.Started()
	h.in.Start()

	assert.Equal(t, 1, h.engine.Created())
	assert.Equal(t, 1, h.engine.Starts())
	assert.Equal(t, Listening, h.in.Status().State)
}

func TestInput_TransientErrorsNotSurfaced(t *testing.T) {
	for _, kind := range []recognition.ErrorKind{recognition.NoSpeech, recognition.Aborted} {
		t.Run(string(kind), func(t *testing.T) {
			h := newHarness(t, nil)
			h.listen(t)

			h.engine.Fail(kind)
			assert.Equal(t, Status{State: Listening}, h.in.Status())

			h.engine.End()
			h.clock.Advance(DefaultTimings().Restart)
			assert.Equal(t, Status{State: Listening}, h.in.Status())
			assert.Equal(t, 2, h.engine.Starts())
		})
	}
}

func TestInput_PermissionDenied(t *testing.T) {
	h := newHarness(t, nil)
	h.listen(t)

	h.engine.Fail(recognition.NotAllowed)
	h.engine.End()
	h.clock.Advance(10 * time.Second)

	assert.Equal(t, Status{State: Error, ErrorMessage: MessagePermissionDenied}, h.in.Status())
	assert.Equal(t, 1, h.engine.Starts(), "no automatic retry")
}

func TestInput_UnknownError(t *testing.T) {
	h := newHarness(t, nil)
	h.listen(t)

	h.engine.Fail(recognition.AudioCapture)
	h.engine.End()
	h.clock.Advance(10 * time.Second)

	assert.Equal(t, Status{State: Error, ErrorMessage: "Speech error: audio-capture"}, h.in.Status())
	assert.Equal(t, 1, h.engine.Starts())

	h.in.Toggle()
	assert.Equal(t, Listening, h.in.Status().State, "an explicit start recovers")
	assert.Equal(t, 2, h.engine.Starts())
}

func TestInput_NetworkErrorRetriesOnce(t *testing.T) {
	metrics := newCountingMetrics()
	h := newHarness(t, func(c *Config) { c.Metrics = metrics })
	h.listen(t)

	h.engine.Fail(recognition.Network)
	h.engine.End()
	assert.Equal(t, Status{State: Error, ErrorMessage: MessageNetwork}, h.in.Status())
	assert.Equal(t, 1, h.clock.Pending())

	h.clock.Advance(1999 * time.Millisecond)
	assert.Equal(t, 1, h.engine.Starts())
	h.clock.Advance(time.Millisecond)
	assert.Equal(t, 2, h.engine.Starts())

	h.engine.Started()
	assert.Equal(t, Status{State: Listening}, h.in.Status())

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, 1, metrics.restarts["network"])
	assert.Equal(t, 1, metrics.errors["network"])
}

func TestInput_ToggleStops(t *testing.T) {
	h := newHarness(t, nil)
	h.in.Toggle()
	h.engine.Started()
	assert.Equal(t, Listening, h.in.Status().State)

	h.in.Toggle()
	assert.Equal(t, Idle, h.in.Status().State)
	assert.Equal(t, 1, h.engine.Stops())
}

func TestInput_CloseDropsLateCallbacks(t *testing.T) {
	w := &widget{}
	h := newHarness(t, func(c *Config) { c.Widget = w })
	h.listen(t)

	h.engine.Final("hello")
	h.in.Close()
	assert.Equal(t, 1, h.engine.Aborts())
	assert.Equal(t, Idle, h.in.Status().State)

	h.engine.Final("late")
	h.engine.Fail(recognition.Network)
	h.engine.End()
	h.clock.Advance(time.Minute)

	assert.Equal(t, "Hello", h.field.Value())
	assert.Equal(t, 1, h.engine.Starts(), "no restart after close")
	assert.Equal(t, Idle, h.in.Status().State)
	w.mu.Lock()
	assert.Empty(t, w.moves)
	w.mu.Unlock()

	h.in.Start()
	assert.Equal(t, 1, h.engine.Starts(), "a closed input stays closed")
}

func TestInput_ObserverAndMetrics(t *testing.T) {
	var mu sync.Mutex
	var states []State
	metrics := newCountingMetrics()

	h := newHarness(t, func(c *Config) {
		c.Observer = func(s Status) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, s.State)
		}
		c.Metrics = metrics
	})
	h.listen(t)
	h.say("hello", "period")
	h.in.Stop()
	h.engine.End()

	mu.Lock()
	assert.Equal(t, []State{Listening, Processing, Listening, Processing, Listening, Idle}, states)
	mu.Unlock()

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, 1, metrics.utterances["text"])
	assert.Equal(t, 1, metrics.utterances["punctuation"])
	assert.Equal(t, 7, metrics.spliced)
	assert.Zero(t, metrics.active)
}

func TestController_StaleStatusNotDelivered(t *testing.T) {
	var got []State
	h := newHarness(t, func(c *Config) {
		c.Observer = func(s Status) { got = append(got, s.State) }
	})

	h.in.c.notify(Status{State: Idle}, 2)
	h.in.c.notify(Status{State: Listening}, 1)
	h.in.c.notify(Status{State: Idle}, 2)
	h.in.c.notify(Status{State: Processing}, 3)

	assert.Equal(t, []State{Idle, Processing}, got)
}

func TestInput_ObserverEndsOnCurrentStatus(t *testing.T) {
	var mu sync.Mutex
	var last Status
	h := newHarness(t, func(c *Config) {
		c.Observer = func(s Status) {
			mu.Lock()
			defer mu.Unlock()
			last = s
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if (i+j)%2 == 0 {
					h.in.Start()
				} else {
					h.in.Stop()
				}
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, h.in.Status(), last)
}

func TestInput_PanicInHostDowngradesToError(t *testing.T) {
	h := newHarness(t, nil)
	h.in.c.cfg.Value = func() string { panic("host gone") }
	h.listen(t)

	assert.NotPanics(t, func() { h.engine.Final("boom") })
	assert.Equal(t, Status{State: Error, ErrorMessage: MessageInternal}, h.in.Status())
	assert.Equal(t, 1, h.engine.Stops())
}
