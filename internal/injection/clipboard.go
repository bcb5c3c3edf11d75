package injection

import (
	"context"
	"fmt"
	"time"
)

// clipboardBackend leaves the text on the clipboard for the user to paste.
type clipboardBackend struct{}

func NewClipboardBackend() Backend {
	return &clipboardBackend{}
}

func (c *clipboardBackend) Name() string {
	return "clipboard"
}

func (c *clipboardBackend) Available() error {
	if _, err := lookPath("wl-copy"); err != nil {
		return fmt.Errorf("wl-copy not found: %w (install wl-clipboard)", err)
	}
	return nil
}

func (c *clipboardBackend) Inject(ctx context.Context, text string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := runCommand(ctx, text, nil, "wl-copy"); err != nil {
		return fmt.Errorf("wl-copy failed: %w", err)
	}
	return nil
}

// Clipboard reads the current clipboard contents.
func Clipboard(ctx context.Context, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := runCommand(ctx, "", nil, "wl-paste", "--no-newline")
	if err != nil {
		return "", fmt.Errorf("wl-paste failed: %w", err)
	}
	return string(output), nil
}
