package tui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/courtrecord/voicetext/internal/config"
	"github.com/courtrecord/voicetext/internal/dictation"
	"github.com/courtrecord/voicetext/internal/language"
	"github.com/courtrecord/voicetext/internal/recognition"
)

var engineDisplayNames = map[string]string{
	recognition.EngineDeepgram: "Deepgram (streaming)",
	recognition.EngineOpenAI:   "OpenAI (chunked)",
	recognition.EngineNone:     "None (dictation disabled)",
}

// AllBackends is the injection fallback order offered by the wizard.
var AllBackends = []string{"ydotool", "wtype", "clipboard"}

func editRecognition(cfg *config.Config) error {
	engine := cfg.Recognition.Engine
	var engineOptions []huh.Option[string]
	for _, name := range recognition.Engines() {
		engineOptions = append(engineOptions, huh.NewOption(engineDisplayNames[name], name))
	}

	lang := cfg.Recognition.Language
	interim := cfg.Recognition.InterimResults

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Recognition Engine").
				Options(engineOptions...).
				Value(&engine),
			huh.NewSelect[string]().
				Title("Language").
				Description("Spoken language passed to the recognizer").
				Options(languageOptions(lang)...).
				Height(10).
				Value(&lang),
			huh.NewConfirm().
				Title("Show interim results?").
				Value(&interim),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Recognition.Engine = engine
	cfg.Recognition.Language = lang
	cfg.Recognition.InterimResults = interim
	return nil
}

// languageOptions lists the supported languages, keeping a configured
// regional tag such as en-US selectable as-is.
func languageOptions(current string) []huh.Option[string] {
	var options []huh.Option[string]
	if current != "" && current != language.Base(current) {
		label := current
		if lang, ok := language.FromCode(language.Base(current)); ok {
			label = fmt.Sprintf("%s (%s)", lang.Name, current)
		}
		options = append(options, huh.NewOption(label, current))
	}
	for _, lang := range language.List() {
		options = append(options, huh.NewOption(fmt.Sprintf("%s - %s", lang.Name, lang.NativeName), lang.Code))
	}
	return options
}

func editAPIKey(cfg *config.Config) error {
	engine := cfg.Recognition.Engine
	if engine == recognition.EngineNone {
		fmt.Println(StyleMuted.Render("No engine selected, nothing to configure."))
		return nil
	}

	var key string
	desc := "Leave empty to keep the current key"
	if envVar := config.EnvVarForEngine(engine); envVar != "" {
		desc += fmt.Sprintf(" (or set %s)", envVar)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("%s API Key", engineDisplayNames[engine])).
				Description(desc).
				EchoMode(huh.EchoModePassword).
				Value(&key),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	setAPIKey(cfg, engine, key)
	return nil
}

// setAPIKey stores key for engine, ignoring blank input.
func setAPIKey(cfg *config.Config, engine, key string) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]config.ProviderConfig)
	}
	pc := cfg.Providers[engine]
	pc.APIKey = key
	cfg.Providers[engine] = pc
}

func editDictation(cfg *config.Config) error {
	settle := cfg.Dictation.SettleDelay.String()
	restart := cfg.Dictation.RestartDelay.String()
	editMode := cfg.Dictation.EditMode

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Settle Delay").
				Description("Pause after a final result before it is applied").
				Value(&settle).
				Validate(validateDelay),
			huh.NewInput().
				Title("Restart Delay").
				Description("Wait before reopening a recognition session that ended").
				Value(&restart).
				Validate(validateDelay),
			huh.NewSelect[string]().
				Title("Edit Commands").
				Description("What \"delete that\" and friends do").
				Options(
					huh.NewOption("Clear the field", string(dictation.EditClearOnly)),
					huh.NewOption("Undo the last insertion", string(dictation.EditHistory)),
				).
				Value(&editMode),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Dictation.SettleDelay, _ = time.ParseDuration(settle)
	cfg.Dictation.RestartDelay, _ = time.ParseDuration(restart)
	cfg.Dictation.EditMode = editMode
	return nil
}

func validateDelay(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("use a duration like 300ms")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func selectBackends(current []string) ([]string, error) {
	selected := append([]string(nil), current...)
	var options []huh.Option[string]
	for _, name := range AllBackends {
		options = append(options, huh.NewOption(name, name).Selected(slices.Contains(current, name)))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Injection Backends").
				Description("Tried in order until one succeeds").
				Options(options...).
				Value(&selected).
				Validate(func(s []string) error {
					if len(s) == 0 {
						return fmt.Errorf("select at least one backend")
					}
					return nil
				}),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return nil, err
	}
	return orderBackends(selected), nil
}

// orderBackends returns the selected backends in fallback order.
func orderBackends(selected []string) []string {
	var ordered []string
	for _, name := range AllBackends {
		if slices.Contains(selected, name) {
			ordered = append(ordered, name)
		}
	}
	return ordered
}

func editNotifications(cfg *config.Config) error {
	enabled := cfg.Notifications.Enabled
	notifType := cfg.Notifications.Type
	if notifType == "" {
		notifType = "desktop"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable notifications?").
				Description("Announce when listening starts, stops or fails").
				Value(&enabled),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Notification Type").
				Options(
					huh.NewOption("Desktop notifications (notify-send)", "desktop"),
					huh.NewOption("Desktop notifications (D-Bus)", "dbus"),
					huh.NewOption("Log to console only", "log"),
					huh.NewOption("None (silent)", "none"),
				).
				Value(&notifType),
		).WithHideFunc(func() bool { return !enabled }),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Notifications.Enabled = enabled
	cfg.Notifications.Type = notifType
	return nil
}
