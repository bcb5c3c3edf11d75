package injection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrEmptyText is returned when there is nothing to deliver.
var ErrEmptyText = errors.New("cannot inject empty text")

// Backend delivers text to the focused window.
type Backend interface {
	Name() string
	Available() error
	Inject(ctx context.Context, text string, timeout time.Duration) error
}

// Injector delivers dictated text using the first backend that works.
type Injector interface {
	Inject(ctx context.Context, text string) error
}

// Config for text injection
type Config struct {
	Backends         []string // tried in order
	YdotoolTimeout   time.Duration
	WtypeTimeout     time.Duration
	ClipboardTimeout time.Duration
}

// DefaultConfig returns sensible defaults for injection
func DefaultConfig() Config {
	return Config{
		Backends:         []string{"ydotool", "wtype", "clipboard"},
		YdotoolTimeout:   5 * time.Second,
		WtypeTimeout:     5 * time.Second,
		ClipboardTimeout: 3 * time.Second,
	}
}

func (c Config) timeout(backend string) time.Duration {
	switch backend {
	case "ydotool":
		return c.YdotoolTimeout
	case "wtype":
		return c.WtypeTimeout
	default:
		return c.ClipboardTimeout
	}
}

// lookPath and runCommand are swapped in tests.
var (
	lookPath   = exec.LookPath
	runCommand = func(ctx context.Context, stdin string, env []string, name string, args ...string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, name, args...)
		if stdin != "" {
			cmd.Stdin = strings.NewReader(stdin)
		}
		if len(env) > 0 {
			cmd.Env = append(os.Environ(), env...)
		}
		return cmd.Output()
	}
)

// NewBackend returns the backend registered under name.
func NewBackend(name string) (Backend, error) {
	switch name {
	case "ydotool":
		return NewYdotoolBackend(), nil
	case "wtype":
		return NewWtypeBackend(), nil
	case "clipboard":
		return NewClipboardBackend(), nil
	default:
		return nil, fmt.Errorf("unknown injection backend %q", name)
	}
}

type injector struct {
	config   Config
	backends []Backend
}

// NewInjector creates a new injector with the given config
func NewInjector(config Config) (Injector, error) {
	if len(config.Backends) == 0 {
		return nil, fmt.Errorf("no injection backends configured")
	}
	backends := make([]Backend, 0, len(config.Backends))
	for _, name := range config.Backends {
		b, err := NewBackend(name)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}
	return newInjector(config, backends), nil
}

func newInjector(config Config, backends []Backend) *injector {
	return &injector{config: config, backends: backends}
}

// Inject tries each backend in order and returns nil on the first success.
func (i *injector) Inject(ctx context.Context, text string) error {
	if text == "" {
		return ErrEmptyText
	}

	var errs []error
	for _, b := range i.backends {
		if err := b.Available(); err != nil {
			log.Printf("Injection: %s unavailable: %v", b.Name(), err)
			errs = append(errs, err)
			continue
		}
		if err := b.Inject(ctx, text, i.config.timeout(b.Name())); err != nil {
			log.Printf("Injection: %s failed: %v", b.Name(), err)
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		log.Printf("Injection: delivered %d bytes via %s", len(text), b.Name())
		return nil
	}
	return fmt.Errorf("all injection backends failed: %w", errors.Join(errs...))
}
