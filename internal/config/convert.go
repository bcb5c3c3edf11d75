package config

import (
	"fmt"
	"os"

	"github.com/courtrecord/voicetext/internal/dictation"
	"github.com/courtrecord/voicetext/internal/injection"
	"github.com/courtrecord/voicetext/internal/recognition"
	"github.com/courtrecord/voicetext/internal/recording"
	"github.com/courtrecord/voicetext/internal/voicecmd"
)

// envVars maps each engine to the environment variable holding its key.
var envVars = map[string]string{
	recognition.EngineDeepgram: "DEEPGRAM_API_KEY",
	recognition.EngineOpenAI:   "OPENAI_API_KEY",
}

// EnvVarForEngine returns the API key variable for engine, or "".
func EnvVarForEngine(engine string) string {
	return envVars[engine]
}

// ResolveAPIKey returns the key for engine from [providers.<engine>] or,
// failing that, the environment.
func (c *Config) ResolveAPIKey(engine string) string {
	if c.Providers != nil {
		if pc, ok := c.Providers[engine]; ok && pc.APIKey != "" {
			return pc.APIKey
		}
	}
	if envVar := EnvVarForEngine(engine); envVar != "" {
		return os.Getenv(envVar)
	}
	return ""
}

func (c *Config) ToRecordingConfig() recording.Config {
	return recording.Config{
		SampleRate:        c.Recording.SampleRate,
		Channels:          c.Recording.Channels,
		Format:            c.Recording.Format,
		BufferSize:        c.Recording.BufferSize,
		Device:            c.Recording.Device,
		ChannelBufferSize: c.Recording.ChannelBufferSize,
	}
}

func (c *Config) ToRecognitionConfig() recognition.Config {
	return recognition.Config{
		Engine:          c.Recognition.Engine,
		Model:           c.Recognition.Model,
		APIKey:          c.ResolveAPIKey(c.Recognition.Engine),
		Endpoint:        c.Providers[c.Recognition.Engine].Endpoint,
		NoSpeechTimeout: c.Recognition.NoSpeechTimeout,
		Recording:       c.ToRecordingConfig(),
	}
}

func (c *Config) ToInjectionConfig() injection.Config {
	return injection.Config{
		Backends:         c.Injection.Backends,
		YdotoolTimeout:   c.Injection.YdotoolTimeout,
		WtypeTimeout:     c.Injection.WtypeTimeout,
		ClipboardTimeout: c.Injection.ClipboardTimeout,
	}
}

// ToDictationConfig fills the recognition and behaviour fields of a
// dictation.Config. The caller binds Value, OnChange, Widget, Observer and
// Metrics. The vocabulary file is read here, so a broken file is reported
// before any engine starts.
func (c *Config) ToDictationConfig() (dictation.Config, error) {
	vocab, err := voicecmd.LoadVocabulary(c.Dictation.VocabularyFile)
	if err != nil {
		return dictation.Config{}, fmt.Errorf("dictation.vocabulary_file: %w", err)
	}

	return dictation.Config{
		Language:       c.Recognition.Language,
		Continuous:     c.Recognition.Continuous,
		DisableInterim: !c.Recognition.InterimResults,
		Factory:        recognition.NewFactory(c.ToRecognitionConfig()),
		Timings: dictation.Timings{
			Settle:       c.Dictation.SettleDelay,
			Restart:      c.Dictation.RestartDelay,
			NetworkRetry: c.Dictation.NetworkRetryDelay,
			Caret:        c.Dictation.CaretDelay,
		},
		EditMode:   dictation.EditMode(c.Dictation.EditMode),
		Vocabulary: vocab,
	}, nil
}

// RequiresRestart reports whether moving from old to c changes anything the
// live dictation session was built from.
func (c *Config) RequiresRestart(old *Config) bool {
	if old == nil {
		return true
	}
	return c.Recognition != old.Recognition ||
		c.Dictation != old.Dictation ||
		c.Recording != old.Recording ||
		c.ResolveAPIKey(c.Recognition.Engine) != old.ResolveAPIKey(old.Recognition.Engine) ||
		c.Providers[c.Recognition.Engine].Endpoint != old.Providers[old.Recognition.Engine].Endpoint
}
