package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/courtrecord/voicetext/internal/config"
	"github.com/courtrecord/voicetext/internal/language"
)

func formatRecognitionLabel(cfg *config.Config) string {
	return fmt.Sprintf("Recognition (%s, %s)", cfg.Recognition.Engine, formatLanguage(cfg.Recognition.Language))
}

func formatLanguage(tag string) string {
	if lang, ok := language.FromCode(language.Base(tag)); ok {
		return lang.Name
	}
	return tag
}

func formatAPIKeyLabel(cfg *config.Config) string {
	if cfg.MissingAPIKey() {
		return "API Key " + StyleWarning.Render("(missing)")
	}
	return "API Key"
}

func formatDictationLabel(cfg *config.Config) string {
	return fmt.Sprintf("Dictation (settle %v, %s)", cfg.Dictation.SettleDelay, cfg.Dictation.EditMode)
}

func formatInjectionLabel(cfg *config.Config) string {
	return "Injection (" + strings.Join(cfg.Injection.Backends, " -> ") + ")"
}

func formatNotificationsLabel(cfg *config.Config) string {
	if !cfg.Notifications.Enabled {
		return "Notifications (off)"
	}
	return fmt.Sprintf("Notifications (%s)", cfg.Notifications.Type)
}

// maskAPIKey returns a masked version of an API key for display
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// summaryLines renders each setting as a "Label: value" pair.
func summaryLines(cfg *config.Config) [][2]string {
	lines := [][2]string{
		{"Engine:", cfg.Recognition.Engine},
		{"Language:", cfg.Recognition.Language},
	}

	if key := cfg.ResolveAPIKey(cfg.Recognition.Engine); key != "" {
		lines = append(lines, [2]string{"API key:", maskAPIKey(key)})
	} else if cfg.MissingAPIKey() {
		lines = append(lines, [2]string{"API key:", "missing"})
	}

	lines = append(lines,
		[2]string{"Settle delay:", cfg.Dictation.SettleDelay.String()},
		[2]string{"Edit commands:", cfg.Dictation.EditMode},
		[2]string{"Backends:", strings.Join(cfg.Injection.Backends, " -> ")},
	)

	if cfg.Notifications.Enabled {
		lines = append(lines, [2]string{"Notifications:", cfg.Notifications.Type})
	} else {
		lines = append(lines, [2]string{"Notifications:", "disabled"})
	}
	return lines
}

func showSummary(cfg *config.Config) (bool, error) {
	fmt.Println()
	fmt.Println(StyleHeader.Render("Configuration Summary"))
	fmt.Println()
	for _, line := range summaryLines(cfg) {
		fmt.Printf("  %s %s\n", StyleLabel.Render(line[0]), line[1])
	}
	fmt.Println()

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration?").
				Affirmative("Save").
				Negative("Cancel").
				Value(&confirmed),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}
