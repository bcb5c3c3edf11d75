package injection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// ErrNoYdotoolSocket means ydotoold is installed but no socket was found.
var ErrNoYdotoolSocket = errors.New("ydotoold socket not found, ensure ydotoold is running")

const ydotooldDialTimeout = 500 * time.Millisecond

// ydotoolBackend types through ydotoold. The socket found by Available is
// passed to the client so both talk to the same daemon.
type ydotoolBackend struct {
	mu     sync.Mutex
	socket string
}

func NewYdotoolBackend() Backend {
	return &ydotoolBackend{}
}

func (y *ydotoolBackend) Name() string {
	return "ydotool"
}

func (y *ydotoolBackend) Available() error {
	if _, err := lookPath("ydotool"); err != nil {
		return fmt.Errorf("ydotool not found: %w (install ydotool package)", err)
	}

	// without ydotoold the client writes to uinput itself
	if _, err := lookPath("ydotoold"); err != nil {
		y.setSocket("")
		return nil
	}

	sock, err := YdotooldSocket(ydotooldDialTimeout)
	if err != nil {
		return err
	}
	y.setSocket(sock)
	return nil
}

func (y *ydotoolBackend) setSocket(sock string) {
	y.mu.Lock()
	y.socket = sock
	y.mu.Unlock()
}

func (y *ydotoolBackend) env() []string {
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.socket == "" {
		return nil
	}
	return []string{"YDOTOOL_SOCKET=" + y.socket}
}

func (y *ydotoolBackend) Inject(ctx context.Context, text string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := runCommand(ctx, "", y.env(), "ydotool", "type", "--", text); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("ydotool timed out after %v", timeout)
		}
		return fmt.Errorf("ydotool failed: %w", err)
	}
	return nil
}

// YdotooldSocket returns the ydotoold socket once something answers on it.
func YdotooldSocket(timeout time.Duration) (string, error) {
	sock := socketPath()
	if sock == "" {
		return "", ErrNoYdotoolSocket
	}
	if err := dialSocket(sock, timeout); err != nil {
		return sock, fmt.Errorf("ydotoold not responding at %s: %w", sock, err)
	}
	return sock, nil
}

// dialSocket is swapped in tests. ydotoold 1.0.4+ listens on a datagram
// socket, older releases on a stream socket.
var dialSocket = func(sock string, timeout time.Duration) error {
	var err error
	for _, network := range []string{"unixgram", "unix"} {
		var conn net.Conn
		conn, err = net.DialTimeout(network, sock, timeout)
		if err == nil {
			return conn.Close()
		}
	}
	return err
}

// socketPath returns the first existing candidate from socketCandidates.
func socketPath() string {
	for _, p := range socketCandidates() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// socketCandidates lists where ydotoold may listen, $YDOTOOL_SOCKET first.
func socketCandidates() []string {
	var paths []string
	if sock := os.Getenv("YDOTOOL_SOCKET"); sock != "" {
		paths = append(paths, sock)
	}
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, ".ydotool_socket"))
	}
	return append(paths,
		filepath.Join("/run/user", strconv.Itoa(os.Getuid()), ".ydotool_socket"),
		"/tmp/.ydotool_socket",
	)
}
