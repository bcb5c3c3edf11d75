package tui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/courtrecord/voicetext/internal/config"
)

// ConfigureResult holds the configuration result from the TUI
type ConfigureResult struct {
	Config    *config.Config
	Cancelled bool
}

// ConfigSection represents a configuration section
type ConfigSection string

const (
	SectionRecognition   ConfigSection = "recognition"
	SectionAPIKey        ConfigSection = "api_key"
	SectionDictation     ConfigSection = "dictation"
	SectionInjection     ConfigSection = "injection"
	SectionNotifications ConfigSection = "notifications"
	SectionSaveExit      ConfigSection = "save_exit"
	SectionDiscardExit   ConfigSection = "discard_exit"
)

// Run starts the configuration menu on a copy of cfg. The caller saves the
// returned config.
func Run(cfg *config.Config) (*ConfigureResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	working := cloneConfig(cfg)

	for {
		clearScreen()
		fmt.Println(Logo())
		fmt.Println()

		section, err := selectSection(working)
		if err != nil {
			return &ConfigureResult{Cancelled: true}, nil
		}

		switch section {
		case SectionSaveExit:
			if err := working.Validate(); err != nil {
				fmt.Println(StyleError.Render(err.Error()))
				continue
			}
			confirmed, err := showSummary(working)
			if err != nil {
				return &ConfigureResult{Cancelled: true}, nil
			}
			if confirmed {
				return &ConfigureResult{Config: working}, nil
			}

		case SectionDiscardExit:
			return &ConfigureResult{Cancelled: true}, nil

		case SectionRecognition:
			if err := editRecognition(working); err != nil {
				continue
			}

		case SectionAPIKey:
			if err := editAPIKey(working); err != nil {
				continue
			}

		case SectionDictation:
			if err := editDictation(working); err != nil {
				continue
			}

		case SectionInjection:
			backends, err := selectBackends(working.Injection.Backends)
			if err != nil {
				continue
			}
			working.Injection.Backends = backends

		case SectionNotifications:
			if err := editNotifications(working); err != nil {
				continue
			}
		}
	}
}

func selectSection(cfg *config.Config) (ConfigSection, error) {
	options := []huh.Option[ConfigSection]{
		huh.NewOption(formatRecognitionLabel(cfg), SectionRecognition),
		huh.NewOption(formatAPIKeyLabel(cfg), SectionAPIKey),
		huh.NewOption(formatDictationLabel(cfg), SectionDictation),
		huh.NewOption(formatInjectionLabel(cfg), SectionInjection),
		huh.NewOption(formatNotificationsLabel(cfg), SectionNotifications),
		huh.NewOption("Save & Exit", SectionSaveExit),
		huh.NewOption("Discard & Exit", SectionDiscardExit),
	}

	var selected ConfigSection
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[ConfigSection]().
				Title("Configuration Menu").
				Description("↑/↓ navigate • enter select • esc cancel").
				Options(options...).
				Value(&selected),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return "", err
	}
	return selected, nil
}

func cloneConfig(cfg *config.Config) *config.Config {
	c := *cfg
	c.Providers = make(map[string]config.ProviderConfig, len(cfg.Providers))
	for k, v := range cfg.Providers {
		c.Providers[k] = v
	}
	c.Injection.Backends = append([]string(nil), cfg.Injection.Backends...)
	return &c
}

func clearScreen() {
	output := termenv.NewOutput(os.Stdout)
	output.ClearScreen()
}

func getTheme() *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Title = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	t.Focused.Description = lipgloss.NewStyle().Foreground(ColorMuted)
	t.Focused.Base = lipgloss.NewStyle().BorderForeground(ColorPrimary)
	t.Focused.SelectedOption = lipgloss.NewStyle().Foreground(ColorSecondary)
	t.Focused.UnselectedOption = lipgloss.NewStyle().Foreground(ColorText)

	t.Blurred.Title = lipgloss.NewStyle().Foreground(ColorMuted)
	t.Blurred.Description = lipgloss.NewStyle().Foreground(ColorSubtle)

	return t
}
