package dictation

import (
	"fmt"

	"github.com/courtrecord/voicetext/internal/clock"
	"github.com/courtrecord/voicetext/internal/language"
	"github.com/courtrecord/voicetext/internal/recognition"
	"github.com/courtrecord/voicetext/internal/textfmt"
	"github.com/courtrecord/voicetext/internal/voicecmd"
)

// Config binds an Input to its host field.
type Config struct {
	// Value returns the current buffer. It is called at every splice.
	Value func() string
	// OnChange receives the new buffer after a splice or edit.
	OnChange func(string)

	Language       string // BCP-47 tag; empty means language.DefaultTag
	Continuous     bool
	DisableInterim bool

	// Widget, when set, has its caret moved after each splice.
	Widget Widget
	// Factory builds the engine on first Start. Nil means no engine.
	Factory recognition.Factory
	Clock   clock.Clock
	// Timings zero value selects DefaultTimings.
	Timings Timings

	EditMode   EditMode
	Vocabulary *voicecmd.Vocabulary

	// Observer is called with each new status.
	Observer func(Status)
	Metrics  Metrics
}

func (c Config) withDefaults() Config {
	if c.Language == "" {
		c.Language = language.DefaultTag
	}
	if c.Factory == nil {
		c.Factory = func(recognition.Options, recognition.Handler) (recognition.Engine, error) {
			return nil, recognition.ErrCapabilityMissing
		}
	}
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
	if c.Timings == (Timings{}) {
		c.Timings = DefaultTimings()
	}
	if c.EditMode == "" {
		c.EditMode = EditClearOnly
	}
	return c
}

// Input is a dictation controller bound to one text field. It tracks the
// caret across manual edits so voice insertions land where the user left
// off.
type Input struct {
	c *Controller
}

// New returns an idle Input. No engine is created until Start.
func New(cfg Config) (*Input, error) {
	if cfg.Value == nil || cfg.OnChange == nil {
		return nil, fmt.Errorf("%w: Value and OnChange are required", ErrInvalidConfig)
	}
	if _, err := ParseEditMode(string(cfg.EditMode)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg = cfg.withDefaults()
	if !language.IsValidTag(cfg.Language) {
		return nil, fmt.Errorf("%w: invalid language tag %q", ErrInvalidConfig, cfg.Language)
	}

	in := &Input{c: newController(cfg)}
	in.c.caret = textfmt.Len(cfg.Value())
	return in, nil
}

// Status returns the state, interim transcript and error message.
func (in *Input) Status() Status { return in.c.Status() }

// Start begins listening.
func (in *Input) Start() { in.c.Start() }

// Stop stops listening.
func (in *Input) Stop() { in.c.Stop() }

// Toggle flips between listening and idle.
func (in *Input) Toggle() { in.c.Toggle() }

// TrackCaret records the widget caret after a focus, click or key event.
func (in *Input) TrackCaret(pos int) { in.c.SetCaret(pos) }

// Edit records a manual change to the field. value is the buffer after the
// edit and caret the widget caret. Undo history does not span manual edits.
func (in *Input) Edit(value string, caret int) {
	in.c.mu.Lock()
	in.c.caret = textfmt.ClampCaret(value, caret)
	in.c.mu.Unlock()
	in.c.resetHistory()
}

// Caret returns the offset where the next utterance will be inserted.
func (in *Input) Caret() int { return in.c.Caret() }

// Close aborts recognition and cancels pending timers. The Input is unusable
// afterwards.
func (in *Input) Close() { in.c.Close() }
