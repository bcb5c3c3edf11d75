package recognition

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/courtrecord/voicetext/internal/clock"
	"github.com/courtrecord/voicetext/internal/recording"
)

// Engine names accepted by NewFactory.
const (
	EngineDeepgram = "deepgram"
	EngineOpenAI   = "openai"
	EngineNone     = "none"
)

// Config selects and configures an engine implementation.
type Config struct {
	Engine          string
	Model           string
	APIKey          string
	Endpoint        string        // API base URL; empty uses the provider default
	NoSpeechTimeout time.Duration // silence before a no-speech error
	Recording       recording.Config

	// NewSource overrides audio capture. Nil uses a PipeWire recorder.
	NewSource func(recording.Config) recording.Source
	// Clock overrides timers. Nil uses the real clock.
	Clock clock.Clock
}

const defaultNoSpeechTimeout = 8 * time.Second

// captureAvailable is swapped in tests.
var captureAvailable = func() error {
	return recording.CheckPipeWireAvailable(context.Background())
}

// Engines lists the selectable engine names.
func Engines() []string {
	return []string{EngineDeepgram, EngineOpenAI, EngineNone}
}

// NewFactory returns a Factory for cfg.Engine. Capability checks run when the
// factory is invoked, so a missing microphone or key surfaces as
// ErrCapabilityMissing on the first start rather than at startup.
func NewFactory(cfg Config) Factory {
	cfg = cfg.withDefaults()

	return func(opts Options, h Handler) (Engine, error) {
		switch cfg.Engine {
		case EngineDeepgram, EngineOpenAI:
		case EngineNone, "":
			return nil, fmt.Errorf("%w: no engine configured", ErrCapabilityMissing)
		default:
			return nil, fmt.Errorf("%w: unknown engine %q", ErrCapabilityMissing, cfg.Engine)
		}

		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: %s API key not set", ErrCapabilityMissing, cfg.Engine)
		}
		if cfg.NewSource == nil {
			if err := captureAvailable(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCapabilityMissing, err)
			}
		}

		log.Printf("Recognition: creating %s engine (language=%s, continuous=%v, interim=%v)",
			cfg.Engine, opts.Language, opts.Continuous, opts.InterimResults)

		if cfg.Engine == EngineDeepgram {
			return newDeepgramEngine(cfg, opts, h), nil
		}
		return newOpenAIEngine(cfg, opts, h), nil
	}
}

func (c Config) withDefaults() Config {
	if c.NoSpeechTimeout <= 0 {
		c.NoSpeechTimeout = defaultNoSpeechTimeout
	}
	if c.Recording.SampleRate == 0 {
		c.Recording = recording.DefaultConfig()
	}
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
	if c.Model == "" {
		switch c.Engine {
		case EngineDeepgram:
			c.Model = "nova-3"
		case EngineOpenAI:
			c.Model = "whisper-1"
		}
	}
	return c
}

func (c Config) source() recording.Source {
	if c.NewSource != nil {
		return c.NewSource(c.Recording)
	}
	return recording.NewRecorder(c.Recording)
}

// captureErrorKind maps an audio capture failure to an ErrorKind.
func captureErrorKind(err error) ErrorKind {
	if errors.Is(err, recording.ErrDenied) {
		return NotAllowed
	}
	return AudioCapture
}
