package config

import "time"

type Config struct {
	Recognition   RecognitionConfig         `toml:"recognition"`
	Dictation     DictationConfig           `toml:"dictation"`
	Recording     RecordingConfig           `toml:"recording"`
	Providers     map[string]ProviderConfig `toml:"providers"`
	Injection     InjectionConfig           `toml:"injection"`
	Notifications NotificationsConfig       `toml:"notifications"`
	Metrics       MetricsConfig             `toml:"metrics"`
}

// ProviderConfig holds API key for a provider
type ProviderConfig struct {
	APIKey   string `toml:"api_key"`
	Endpoint string `toml:"endpoint,omitempty"` // overrides the provider's base URL
}

type RecognitionConfig struct {
	Engine          string        `toml:"engine"` // "deepgram", "openai", "none"
	Language        string        `toml:"language"`
	Continuous      bool          `toml:"continuous"`
	InterimResults  bool          `toml:"interim_results"`
	Model           string        `toml:"model"`
	NoSpeechTimeout time.Duration `toml:"no_speech_timeout"`
}

type DictationConfig struct {
	SettleDelay       time.Duration `toml:"settle_delay"`
	RestartDelay      time.Duration `toml:"restart_delay"`
	NetworkRetryDelay time.Duration `toml:"network_retry_delay"`
	CaretDelay        time.Duration `toml:"caret_delay"`
	EditMode          string        `toml:"edit_mode"` // "clear-only" or "history"
	VocabularyFile    string        `toml:"vocabulary_file"`
}

type RecordingConfig struct {
	SampleRate        int    `toml:"sample_rate"`
	Channels          int    `toml:"channels"`
	Format            string `toml:"format"`
	BufferSize        int    `toml:"buffer_size"`
	Device            string `toml:"device"`
	ChannelBufferSize int    `toml:"channel_buffer_size"`
}

type InjectionConfig struct {
	Backends         []string      `toml:"backends"`
	YdotoolTimeout   time.Duration `toml:"ydotool_timeout"`
	WtypeTimeout     time.Duration `toml:"wtype_timeout"`
	ClipboardTimeout time.Duration `toml:"clipboard_timeout"`
}

type NotificationsConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"` // "desktop", "dbus", "log", "none"
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}
