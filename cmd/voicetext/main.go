package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/courtrecord/voicetext/internal/bus"
	"github.com/courtrecord/voicetext/internal/config"
	"github.com/courtrecord/voicetext/internal/daemon"
	"github.com/courtrecord/voicetext/internal/deps"
	"github.com/courtrecord/voicetext/internal/injection"
	"github.com/courtrecord/voicetext/internal/recording"
	"github.com/courtrecord/voicetext/internal/tui"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "voicetext",
	Short:        "Voice dictation into a text buffer for Wayland",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		simpleCmd("toggle", "Toggle listening on/off", bus.CmdToggle),
		simpleCmd("start", "Start listening", bus.CmdStart),
		simpleCmd("stop", "Stop listening", bus.CmdStop),
		simpleCmd("clear", "Clear the dictation buffer", bus.CmdClear),
		simpleCmd("inject", "Type the buffer into the focused window and clear it", bus.CmdInject),
		simpleCmd("quit", "Stop the daemon", bus.CmdQuit),
		statusCmd(),
		textCmd(),
		caretCmd(),
		versionCmd(),
		configureCmd(),
		doctorCmd(),
	)
}

func serveCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
			}

			m, err := config.NewManager()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg := m.GetConfig()
			if cfg.MissingAPIKey() {
				log.Printf("No API key for %s; set it with 'voicetext configure' or %s",
					cfg.Recognition.Engine, config.EnvVarForEngine(cfg.Recognition.Engine))
			}

			d, err := daemon.New(cfg, daemon.WithVersion(version))
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}
			defer d.Close()
			return d.Run(cmd.Context(), m)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log with timestamps and source locations")
	return cmd
}

// send issues req and splits the reply. ERR replies come back as errors.
func send(req bus.Request) (kind, body string, err error) {
	resp, err := bus.Send(req)
	if err != nil {
		return "", "", err
	}
	return bus.ParseReply(resp)
}

func simpleCmd(use, short string, c byte) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, body, err := send(bus.Request{Cmd: c})
			if err != nil {
				return fmt.Errorf("%s: %w", use, err)
			}
			fmt.Println(body)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show listening state, interim transcript and caret",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, body, err := send(bus.Request{Cmd: bus.CmdStatus})
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			if raw {
				fmt.Println(body)
				return nil
			}
			fields, err := bus.ParseStatus(body)
			if err != nil {
				return err
			}
			fmt.Print(formatStatus(fields))
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "print the reply as sent by the daemon")
	return cmd
}

func formatStatus(fields map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "state:   %s\n", fields["state"])
	fmt.Fprintf(&b, "caret:   %s\n", fields["caret"])
	if v := fields["interim"]; v != "" {
		fmt.Fprintf(&b, "interim: %s\n", v)
	}
	if v := fields["error"]; v != "" {
		fmt.Fprintf(&b, "error:   %s\n", v)
	}
	return b.String()
}

func textCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "text",
		Short: "Print the dictation buffer",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, text, err := send(bus.Request{Cmd: bus.CmdText})
			if err != nil {
				return fmt.Errorf("failed to get text: %w", err)
			}
			fmt.Println(text)
			return nil
		},
	}
}

func caretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "caret <position>",
		Short: "Move the insertion point (in characters)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := strconv.Atoi(args[0])
			if err != nil || pos < 0 {
				return fmt.Errorf("invalid position %q", args[0])
			}
			_, body, err := send(bus.Request{Cmd: bus.CmdCaret, Caret: pos})
			if err != nil {
				return fmt.Errorf("failed to move caret: %w", err)
			}
			fmt.Println(body)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print client and daemon versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("client: %s (protocol %s)\n", version, bus.ProtoVer)
			_, body, err := send(bus.Request{Cmd: bus.CmdVersion})
			if err != nil {
				fmt.Println("daemon: not running")
				return nil
			}
			fields, err := bus.ParseStatus(body)
			if err != nil {
				return err
			}
			fmt.Printf("daemon: %s (protocol %s)\n", fields["version"], fields["proto"])
			return nil
		},
	}
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		Long: `Interactive configuration menu for voicetext.
This lets you set:
- Recognition engine and language
- The engine's API key
- Dictation timing and edit-command behavior
- Text injection and notification preferences`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure()
		},
	}
}

func runConfigure() error {
	cfg, err := config.LoadOrCreate()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result, err := tui.Run(cfg)
	if err != nil {
		return fmt.Errorf("configuration wizard error: %w", err)
	}
	if result.Cancelled {
		fmt.Println("Configuration cancelled.")
		return nil
	}

	if err := result.Config.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println(tui.StyleSuccess.Render("Configuration saved."))
	fmt.Println("A running daemon picks up the change automatically.")

	configPath, _ := config.GetConfigPath()
	fmt.Printf("Config file location: %s\n", configPath)
	return nil
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools, audio capture and API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context())
		},
	}
}

func runDoctor(ctx context.Context) error {
	problems := 0

	fmt.Println(tui.StyleHeader.Render("Tools"))
	reports := deps.CheckAll()
	for _, r := range reports {
		mark := tui.StyleSuccess.Render("ok")
		detail := r.Status.Path
		if r.Status.Version != "" {
			detail += " (" + r.Status.Version + ")"
		}
		if !r.Status.Installed {
			mark = tui.StyleWarning.Render("--")
			detail = "not found"
			if r.Tool.Required {
				mark = tui.StyleError.Render("!!")
			}
		}
		fmt.Printf("  %s %-12s %-28s %s\n", mark, r.Tool.Name, r.Tool.Purpose, detail)
	}
	if missing := deps.MissingRequired(reports); len(missing) > 0 {
		problems += len(missing)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Println(tui.StyleWarning.Render("\nNo config found, checking defaults. Run 'voicetext configure' to create one."))
		cfg = config.DefaultConfig()
	}

	fmt.Println()
	fmt.Println(tui.StyleHeader.Render("Injection"))
	tools := deps.CheckInjectionTools()
	usable := 0
	for _, name := range cfg.Injection.Backends {
		st, ok := tools[name]
		if ok && st.Installed {
			usable++
			fmt.Printf("  %s %s\n", tui.StyleSuccess.Render("ok"), name)
		} else {
			fmt.Printf("  %s %s\n", tui.StyleWarning.Render("--"), name)
		}
		if name == "ydotool" && ok && st.Installed {
			if deps.Check("ydotoold").Installed {
				if sock, err := injection.YdotooldSocket(500 * time.Millisecond); err != nil {
					fmt.Printf("       %s %v\n", tui.StyleWarning.Render("--"), err)
				} else {
					fmt.Printf("       ydotoold listening on %s\n", sock)
				}
			}
		}
	}
	if usable == 0 {
		fmt.Println(tui.StyleError.Render("  none of the configured backends is installed"))
		problems++
	}

	fmt.Println()
	fmt.Println(tui.StyleHeader.Render("Recognition"))
	fmt.Printf("  engine:   %s\n", cfg.Recognition.Engine)
	fmt.Printf("  language: %s\n", cfg.Recognition.Language)
	if cfg.MissingAPIKey() {
		fmt.Printf("  %s no API key (set [providers.%s] api_key or %s)\n",
			tui.StyleError.Render("!!"), cfg.Recognition.Engine, config.EnvVarForEngine(cfg.Recognition.Engine))
		problems++
	}
	if err := recording.CheckPipeWireAvailable(ctx); err != nil {
		fmt.Printf("  %s %v\n", tui.StyleError.Render("!!"), err)
		problems++
	} else {
		fmt.Printf("  %s audio capture available\n", tui.StyleSuccess.Render("ok"))
	}

	if pid, running := daemonPid(); running {
		fmt.Printf("\nDaemon running (pid %d)\n", pid)
	} else {
		fmt.Println("\nDaemon not running. Start it with: voicetext serve")
	}

	if problems > 0 {
		return fmt.Errorf("%d problem(s) found", problems)
	}
	fmt.Println(tui.StyleSuccess.Render("\nAll checks passed."))
	return nil
}

// daemonPid reads the pid file and checks the daemon answers on the socket.
func daemonPid() (int, bool) {
	path, err := bus.PidPath()
	if err != nil {
		return 0, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	if _, err := bus.SendCommand(bus.CmdVersion); err != nil {
		return pid, false
	}
	return pid, true
}
