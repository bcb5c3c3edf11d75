package config

import (
	"fmt"
	"slices"

	"github.com/courtrecord/voicetext/internal/dictation"
	"github.com/courtrecord/voicetext/internal/language"
	"github.com/courtrecord/voicetext/internal/recognition"
)

func (c *Config) Validate() error {
	if !slices.Contains(recognition.Engines(), c.Recognition.Engine) {
		return fmt.Errorf("invalid recognition.engine: %q (must be deepgram, openai, or none)", c.Recognition.Engine)
	}
	if !language.IsValidTag(c.Recognition.Language) {
		return fmt.Errorf("invalid recognition.language: %q (use a BCP-47 tag like 'en-US', 'it-IT', 'fr')", c.Recognition.Language)
	}
	if c.Recognition.NoSpeechTimeout < 0 {
		return fmt.Errorf("invalid recognition.no_speech_timeout: %v", c.Recognition.NoSpeechTimeout)
	}

	if c.Dictation.SettleDelay <= 0 {
		return fmt.Errorf("invalid dictation.settle_delay: %v", c.Dictation.SettleDelay)
	}
	if c.Dictation.RestartDelay <= 0 {
		return fmt.Errorf("invalid dictation.restart_delay: %v", c.Dictation.RestartDelay)
	}
	if c.Dictation.NetworkRetryDelay <= 0 {
		return fmt.Errorf("invalid dictation.network_retry_delay: %v", c.Dictation.NetworkRetryDelay)
	}
	if c.Dictation.CaretDelay < 0 {
		return fmt.Errorf("invalid dictation.caret_delay: %v", c.Dictation.CaretDelay)
	}
	if _, err := dictation.ParseEditMode(c.Dictation.EditMode); err != nil {
		return fmt.Errorf("invalid dictation.edit_mode: %w", err)
	}

	if c.Recording.SampleRate <= 0 {
		return fmt.Errorf("invalid recording.sample_rate: %d", c.Recording.SampleRate)
	}
	if c.Recording.Channels <= 0 {
		return fmt.Errorf("invalid recording.channels: %d", c.Recording.Channels)
	}
	if c.Recording.BufferSize <= 0 {
		return fmt.Errorf("invalid recording.buffer_size: %d", c.Recording.BufferSize)
	}
	if c.Recording.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid recording.channel_buffer_size: %d", c.Recording.ChannelBufferSize)
	}
	if c.Recording.Format == "" {
		return fmt.Errorf("invalid recording.format: empty")
	}

	if len(c.Injection.Backends) == 0 {
		return fmt.Errorf("invalid injection.backends: empty (must have at least one backend)")
	}
	validBackends := map[string]bool{"ydotool": true, "wtype": true, "clipboard": true}
	for _, backend := range c.Injection.Backends {
		if !validBackends[backend] {
			return fmt.Errorf("invalid injection.backends: unknown backend %q (must be ydotool, wtype, or clipboard)", backend)
		}
	}
	if c.Injection.YdotoolTimeout <= 0 {
		return fmt.Errorf("invalid injection.ydotool_timeout: %v", c.Injection.YdotoolTimeout)
	}
	if c.Injection.WtypeTimeout <= 0 {
		return fmt.Errorf("invalid injection.wtype_timeout: %v", c.Injection.WtypeTimeout)
	}
	if c.Injection.ClipboardTimeout <= 0 {
		return fmt.Errorf("invalid injection.clipboard_timeout: %v", c.Injection.ClipboardTimeout)
	}

	validTypes := map[string]bool{"desktop": true, "dbus": true, "log": true, "none": true}
	if !validTypes[c.Notifications.Type] {
		return fmt.Errorf("invalid notifications.type: %s (must be desktop, dbus, log, or none)", c.Notifications.Type)
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("invalid metrics.listen: empty while metrics.enabled = true")
	}

	return nil
}

// MissingAPIKey reports whether the selected engine has no key in the config
// or the environment. It is not a validation error: the daemon still starts
// and reports the missing capability when dictation begins.
func (c *Config) MissingAPIKey() bool {
	switch c.Recognition.Engine {
	case recognition.EngineDeepgram, recognition.EngineOpenAI:
		return c.ResolveAPIKey(c.Recognition.Engine) == ""
	}
	return false
}
