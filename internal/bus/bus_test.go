package bus

import (
	"bufio"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func withBaseDir(t *testing.T) string {
	t.Helper()
	// unix socket paths are limited to ~108 bytes, t.TempDir can exceed that
	dir, err := os.MkdirTemp("", "vt")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	orig := baseDir
	baseDir = func() (string, error) { return dir, nil }
	t.Cleanup(func() { baseDir = orig })
	return dir
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		line    string
		want    Request
		wantErr error
	}{
		{"t\n", Request{Cmd: CmdToggle}, nil},
		{"b\n", Request{Cmd: CmdStart}, nil},
		{"e\n", Request{Cmd: CmdStop}, nil},
		{"s", Request{Cmd: CmdStatus}, nil},
		{"g\r\n", Request{Cmd: CmdText}, nil},
		{"c\n", Request{Cmd: CmdClear}, nil},
		{"i\n", Request{Cmd: CmdInject}, nil},
		{"v\n", Request{Cmd: CmdVersion}, nil},
		{"q\n", Request{Cmd: CmdQuit}, nil},
		{"p12\n", Request{Cmd: CmdCaret, Caret: 12}, nil},
		{"p 3\n", Request{Cmd: CmdCaret, Caret: 3}, nil},
		{"p-1\n", Request{}, ErrBadArgument},
		{"pabc\n", Request{}, ErrBadArgument},
		{"x\n", Request{}, ErrUnknownCommand},
		{"\n", Request{}, ErrEmpty},
	}

	for _, tt := range tests {
		t.Run(strconv.Quote(tt.line), func(t *testing.T) {
			got, err := ParseRequest(tt.line)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParseRequest(%q) error = %v, want %v", tt.line, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRequest(%q) error = %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("ParseRequest(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestRequestStringRoundTrip(t *testing.T) {
	for _, req := range []Request{{Cmd: CmdToggle}, {Cmd: CmdCaret, Caret: 42}} {
		got, err := ParseRequest(req.String() + "\n")
		if err != nil || got != req {
			t.Errorf("round trip of %+v = %+v, %v", req, got, err)
		}
	}
}

func TestReplies(t *testing.T) {
	kind, body, err := ParseReply(OK("toggled"))
	if err != nil || kind != KindOK || body != "toggled" {
		t.Errorf("OK reply = %q %q %v", kind, body, err)
	}

	kind, body, err = ParseReply(Text("Hello world.\nFine"))
	if err != nil || kind != KindText || body != "Hello world.\nFine" {
		t.Errorf("TEXT reply = %q %q %v", kind, body, err)
	}

	_, _, err = ParseReply(Err("unknown='x'"))
	if err == nil {
		t.Error("ERR reply should be an error")
	}

	if _, _, err := ParseReply("garbage\n"); err == nil {
		t.Error("expected malformed reply error")
	}
	if _, _, err := ParseReply("TEXT not-quoted\n"); err == nil {
		t.Error("expected malformed TEXT error")
	}
}

func TestStatusRoundTrip(t *testing.T) {
	line := Status("state", "error", "interim", "", "error", "Network error. Check your internet connection.", "caret", "7")
	want := `STATUS state=error interim="" error="Network error. Check your internet connection." caret=7` + "\n"
	if line != want {
		t.Errorf("Status() = %q, want %q", line, want)
	}

	kind, body, err := ParseReply(line)
	if err != nil || kind != KindStatus {
		t.Fatalf("ParseReply() = %q, %v", kind, err)
	}
	fields, err := ParseStatus(body)
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}
	if fields["state"] != "error" || fields["interim"] != "" || fields["caret"] != "7" {
		t.Errorf("unexpected fields %v", fields)
	}
	if fields["error"] != "Network error. Check your internet connection." {
		t.Errorf("error field = %q", fields["error"])
	}

	if _, err := ParseStatus("novalue"); err == nil {
		t.Error("expected malformed status error")
	}
}

func TestPathFunctions(t *testing.T) {
	dir := withBaseDir(t)

	sp, err := SockPath()
	if err != nil || sp != filepath.Join(dir, SockName) {
		t.Errorf("SockPath() = %q, %v", sp, err)
	}
	pp, err := PidPath()
	if err != nil || pp != filepath.Join(dir, PidName) {
		t.Errorf("PidPath() = %q, %v", pp, err)
	}
}

func TestPidFile(t *testing.T) {
	withBaseDir(t)

	if err := CheckExistingDaemon(); err != nil {
		t.Errorf("no pid file should not error: %v", err)
	}

	if err := CreatePidFile(); err != nil {
		t.Fatalf("CreatePidFile() error = %v", err)
	}
	pp, _ := PidPath()
	data, err := os.ReadFile(pp)
	if err != nil || string(data) != strconv.Itoa(os.Getpid()) {
		t.Errorf("pid file = %q, %v", data, err)
	}

	// our own pid is alive
	if err := CheckExistingDaemon(); err == nil {
		t.Error("expected running daemon error for our own pid")
	}

	if err := RemovePidFile(); err != nil {
		t.Fatalf("RemovePidFile() error = %v", err)
	}
	if _, err := os.Stat(pp); !os.IsNotExist(err) {
		t.Error("pid file should be gone")
	}
}

func TestCheckExistingDaemon_Stale(t *testing.T) {
	withBaseDir(t)
	pp, _ := PidPath()

	for _, content := range []string{"not-a-pid", "0", "99999999"} {
		if err := os.WriteFile(pp, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := CheckExistingDaemon(); err != nil {
			t.Errorf("pid file %q should be treated as stale: %v", content, err)
		}
	}
}

func TestIsProcessAlive(t *testing.T) {
	if !isProcessAlive(os.Getpid()) {
		t.Error("current process should be alive")
	}
	if isProcessAlive(-1) {
		t.Error("negative pid should not be alive")
	}
}

func TestSendCommandIntegration(t *testing.T) {
	withBaseDir(t)

	ln, err := Listen()
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	received := make(chan Request, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		line, _ := bufio.NewReader(c).ReadString('\n')
		req, err := ParseRequest(line)
		if err != nil {
			c.Write([]byte(Err(err.Error())))
			return
		}
		received <- req
		c.Write([]byte(OK("caret")))
	}()

	resp, err := Send(Request{Cmd: CmdCaret, Caret: 5})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp != "OK caret\n" {
		t.Errorf("Send() = %q", resp)
	}
	if req := <-received; req.Caret != 5 {
		t.Errorf("daemon received %+v", req)
	}
}

func TestListenRemovesStaleSocket(t *testing.T) {
	withBaseDir(t)
	sp, _ := SockPath()
	if err := os.WriteFile(sp, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	ln, err := Listen()
	if err != nil {
		t.Fatalf("Listen() over stale socket error = %v", err)
	}
	ln.Close()
}

func TestDialWithoutDaemon(t *testing.T) {
	withBaseDir(t)
	if _, err := SendCommand(CmdStatus); err == nil {
		t.Error("expected dial error without a daemon")
	}
	var opErr *net.OpError
	if _, err := Dial(); !errors.As(err, &opErr) {
		t.Errorf("expected *net.OpError, got %T", err)
	}
}
