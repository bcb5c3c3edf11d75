package config

import (
	"time"

	"github.com/courtrecord/voicetext/internal/dictation"
	"github.com/courtrecord/voicetext/internal/language"
	"github.com/courtrecord/voicetext/internal/recognition"
)

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() *Config {
	timings := dictation.DefaultTimings()
	return &Config{
		Recognition: RecognitionConfig{
			Engine:          recognition.EngineDeepgram,
			Language:        language.DefaultTag,
			Continuous:      true,
			InterimResults:  true,
			Model:           "",
			NoSpeechTimeout: 8 * time.Second,
		},
		Dictation: DictationConfig{
			SettleDelay:       timings.Settle,
			RestartDelay:      timings.Restart,
			NetworkRetryDelay: timings.NetworkRetry,
			CaretDelay:        timings.Caret,
			EditMode:          string(dictation.EditClearOnly),
		},
		Recording: RecordingConfig{
			SampleRate:        16000,
			Channels:          1,
			Format:            "s16",
			BufferSize:        3200,
			Device:            "",
			ChannelBufferSize: 50,
		},
		Providers: make(map[string]ProviderConfig),
		Injection: InjectionConfig{
			Backends:         []string{"ydotool", "wtype", "clipboard"},
			YdotoolTimeout:   5 * time.Second,
			WtypeTimeout:     5 * time.Second,
			ClipboardTimeout: 3 * time.Second,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Type:    "desktop",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
	}
}
