package bus

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const SockName = "control.sock"
const PidName = "voicetext.pid"
const ProtoVer = "1.0"

// Command bytes. Each request is one line: the command byte followed by an
// optional argument.
const (
	CmdToggle  byte = 't'
	CmdStart   byte = 'b'
	CmdStop    byte = 'e'
	CmdStatus  byte = 's'
	CmdText    byte = 'g'
	CmdClear   byte = 'c'
	CmdInject  byte = 'i'
	CmdCaret   byte = 'p'
	CmdVersion byte = 'v'
	CmdQuit    byte = 'q'
)

var (
	ErrEmpty          = errors.New("empty request")
	ErrUnknownCommand = errors.New("unknown command")
	ErrBadArgument    = errors.New("bad argument")
)

// Request is a parsed control line.
type Request struct {
	Cmd   byte
	Caret int // CmdCaret only
}

func (r Request) String() string {
	if r.Cmd == CmdCaret {
		return fmt.Sprintf("%c%d", r.Cmd, r.Caret)
	}
	return string(r.Cmd)
}

// ParseRequest decodes a line read from a client.
func ParseRequest(line string) (Request, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Request{}, ErrEmpty
	}

	req := Request{Cmd: line[0]}
	arg := strings.TrimSpace(line[1:])
	switch req.Cmd {
	case CmdToggle, CmdStart, CmdStop, CmdStatus, CmdText, CmdClear, CmdInject, CmdVersion, CmdQuit:
		return req, nil
	case CmdCaret:
		pos, err := strconv.Atoi(arg)
		if err != nil || pos < 0 {
			return Request{}, fmt.Errorf("%w: caret %q", ErrBadArgument, arg)
		}
		req.Caret = pos
		return req, nil
	default:
		return Request{}, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Cmd)
	}
}

// Reply kinds.
const (
	KindOK     = "OK"
	KindStatus = "STATUS"
	KindText   = "TEXT"
	KindErr    = "ERR"
)

func OK(msg string) string { return KindOK + " " + msg + "\n" }

// Status formats key=value pairs in the order given. Values that are empty
// or contain spaces are quoted.
func Status(pairs ...string) string {
	var b strings.Builder
	b.WriteString(KindStatus)
	for i := 0; i+1 < len(pairs); i += 2 {
		v := pairs[i+1]
		if v == "" || strings.ContainsAny(v, " \t\n\"") {
			v = strconv.Quote(v)
		}
		fmt.Fprintf(&b, " %s=%s", pairs[i], v)
	}
	b.WriteByte('\n')
	return b.String()
}

// Text quotes s so newlines survive the line protocol.
func Text(s string) string { return KindText + " " + strconv.Quote(s) + "\n" }

func Err(msg string) string { return KindErr + " " + msg + "\n" }

// ParseReply splits a reply into its kind and body. TEXT bodies are unquoted;
// ERR replies are returned as errors.
func ParseReply(line string) (kind, body string, err error) {
	line = strings.TrimRight(line, "\r\n")
	kind, body, _ = strings.Cut(line, " ")
	switch kind {
	case KindOK, KindStatus:
		return kind, body, nil
	case KindText:
		text, err := strconv.Unquote(body)
		if err != nil {
			return "", "", fmt.Errorf("malformed TEXT reply: %w", err)
		}
		return kind, text, nil
	case KindErr:
		return kind, body, fmt.Errorf("daemon: %s", body)
	default:
		return "", "", fmt.Errorf("malformed reply %q", line)
	}
}

// ParseStatus decodes the key=value pairs of a STATUS body.
func ParseStatus(body string) (map[string]string, error) {
	fields := make(map[string]string)
	rest := strings.TrimSpace(body)
	for rest != "" {
		key, after, ok := strings.Cut(rest, "=")
		if !ok || key == "" || strings.ContainsAny(key, " \t") {
			return nil, fmt.Errorf("malformed status %q", body)
		}

		var value string
		if strings.HasPrefix(after, `"`) {
			quoted, err := strconv.QuotedPrefix(after)
			if err != nil {
				return nil, fmt.Errorf("malformed status value for %s: %w", key, err)
			}
			value, _ = strconv.Unquote(quoted)
			after = after[len(quoted):]
		} else {
			value, after, _ = strings.Cut(after, " ")
			after = " " + after
		}

		fields[key] = value
		rest = strings.TrimSpace(after)
	}
	return fields, nil
}

// baseDir is swapped in tests.
var baseDir = func() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "voicetext"), nil
}

// ~/.cache/voicetext/control.sock
func SockPath() (string, error) {
	dir, err := baseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SockName), nil
}

// ~/.cache/voicetext/voicetext.pid
func PidPath() (string, error) {
	dir, err := baseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, PidName), nil
}

func Listen() (net.Listener, error) {
	sp, err := SockPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(sp), 0o700); err != nil {
		return nil, err
	}
	_ = os.Remove(sp) // stale socket from last run
	return net.Listen("unix", sp)
}

func Dial() (net.Conn, error) {
	sp, err := SockPath()
	if err != nil {
		return nil, err
	}
	return net.DialTimeout("unix", sp, 2*time.Second)
}

// Send writes one request and returns the raw reply line.
func Send(req Request) (string, error) {
	c, err := Dial()
	if err != nil {
		return "", err
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(10 * time.Second))

	if _, err := fmt.Fprintf(c, "%s\n", req); err != nil {
		return "", err
	}

	return bufio.NewReader(c).ReadString('\n')
}

func SendCommand(cmd byte) (string, error) {
	return Send(Request{Cmd: cmd})
}

func CheckExistingDaemon() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}

	pidData, err := os.ReadFile(pidPath)
	if os.IsNotExist(err) {
		return nil // no existing daemon
	}
	if err != nil {
		return err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil {
		return nil // invalid pid file, assume stale
	}

	if !isProcessAlive(pid) {
		return nil
	}

	return fmt.Errorf("daemon already running with PID %d", pid)
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 checks existence without delivering anything
	return proc.Signal(syscall.Signal(0)) == nil
}

func CreatePidFile() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(pidPath), 0o700); err != nil {
		return err
	}

	pid := os.Getpid()
	return os.WriteFile(pidPath, []byte(strconv.Itoa(pid)), 0o600)
}

func RemovePidFile() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}
	return os.Remove(pidPath)
}
