package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/courtrecord/voicetext/internal/bus"
	"github.com/courtrecord/voicetext/internal/clock"
	"github.com/courtrecord/voicetext/internal/config"
	"github.com/courtrecord/voicetext/internal/dictation"
	"github.com/courtrecord/voicetext/internal/field"
	"github.com/courtrecord/voicetext/internal/injection"
	"github.com/courtrecord/voicetext/internal/notify"
	"github.com/courtrecord/voicetext/internal/observe"
	"github.com/courtrecord/voicetext/internal/recognition"
)

const injectTimeout = 15 * time.Second

type Option func(*Daemon)

// WithNotifier overrides the notifier chosen from [notifications].
func WithNotifier(n notify.Notifier) Option {
	return func(d *Daemon) { d.notifier = n; d.fixedNotifier = true }
}

// WithFactory overrides the engine factory built from [recognition].
func WithFactory(f recognition.Factory) Option {
	return func(d *Daemon) { d.factory = f }
}

func WithClock(c clock.Clock) Option {
	return func(d *Daemon) { d.clock = c }
}

// WithInjector overrides the injector built from [injection].
func WithInjector(inj injection.Injector) Option {
	return func(d *Daemon) { d.injector = inj; d.fixedInjector = true }
}

func WithMetrics(m *observe.Metrics) Option {
	return func(d *Daemon) { d.metrics = m }
}

func WithVersion(v string) Option {
	return func(d *Daemon) { d.version = v }
}

// Daemon owns the dictation buffer and serves the control socket.
type Daemon struct {
	mu       sync.Mutex
	cfg      *config.Config
	notifier notify.Notifier
	injector injection.Injector
	input    *dictation.Input
	gen      int    // bumped every time input is rebuilt
	active   bool   // last reported listening state
	lastErr  string // last reported error message

	buffer   *field.Buffer
	factory  recognition.Factory
	clock    clock.Clock
	metrics  *observe.Metrics
	provider *observe.Provider
	version  string

	fixedNotifier bool
	fixedInjector bool

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg *config.Config, opts ...Option) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		cfg:     cfg,
		buffer:  field.New(""),
		version: "dev",
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(d)
	}

	if !d.fixedNotifier {
		d.notifier = notify.FromConfig(cfg.Notifications.Enabled, cfg.Notifications.Type)
	}
	if !d.fixedInjector {
		inj, err := injection.NewInjector(cfg.ToInjectionConfig())
		if err != nil {
			cancel()
			return nil, err
		}
		d.injector = inj
	}

	if cfg.Metrics.Enabled && d.metrics == nil {
		if err := d.initMetrics(); err != nil {
			log.Printf("Daemon: metrics disabled: %v", err)
		}
	}

	if err := d.rebuildInput(cfg); err != nil {
		cancel()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) initMetrics() error {
	provider, err := observe.InitProvider()
	if err != nil {
		return err
	}
	metrics, err := observe.NewMetrics(provider.MeterProvider)
	if err != nil {
		provider.Shutdown(context.Background())
		return err
	}
	d.provider = provider
	d.metrics = metrics
	return nil
}

// Buffer returns the dictated text buffer.
func (d *Daemon) Buffer() *field.Buffer { return d.buffer }

// rebuildInput replaces the dictation input with one built from cfg. A
// session that was listening keeps listening on the new input.
func (d *Daemon) rebuildInput(cfg *config.Config) error {
	dc, err := cfg.ToDictationConfig()
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.gen++
	gen := d.gen
	old := d.input
	d.mu.Unlock()

	dc.Value = d.buffer.Value
	dc.OnChange = d.buffer.SetValue
	dc.Widget = d.buffer
	dc.Observer = func(st dictation.Status) { d.onStatus(gen, st) }
	if d.factory != nil {
		dc.Factory = d.factory
	}
	if d.clock != nil {
		dc.Clock = d.clock
	}
	if d.metrics != nil {
		dc.Metrics = d.metrics
	}

	in, err := dictation.New(dc)
	if err != nil {
		return err
	}
	in.Edit(d.buffer.Value(), d.buffer.Caret())

	wasActive := false
	if old != nil {
		wasActive = old.Status().Active()
		old.Close()
	}

	d.mu.Lock()
	d.input = in
	d.mu.Unlock()

	if wasActive {
		in.Start()
	}
	return nil
}

func (d *Daemon) currentInput() *dictation.Input {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.input
}

// onStatus turns state changes into notifications. Statuses from a replaced
// input are ignored.
func (d *Daemon) onStatus(gen int, st dictation.Status) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	n := d.notifier
	changed := st.Active() != d.active
	d.active = st.Active()
	newErr := st.ErrorMessage != "" && st.ErrorMessage != d.lastErr
	d.lastErr = st.ErrorMessage
	d.mu.Unlock()

	if newErr {
		log.Printf("Daemon: dictation error: %s", st.ErrorMessage)
		go n.Error(st.ErrorMessage)
		return
	}
	if changed {
		go n.ListeningChanged(st.Active())
	}
}

// ApplyConfig switches to updated. Recognition, dictation and recording
// changes rebuild the input; the rest is swapped in place.
func (d *Daemon) ApplyConfig(old, updated *config.Config) {
	d.mu.Lock()
	d.cfg = updated
	if !d.fixedNotifier {
		d.notifier = notify.FromConfig(updated.Notifications.Enabled, updated.Notifications.Type)
	}
	d.mu.Unlock()

	if !d.fixedInjector {
		inj, err := injection.NewInjector(updated.ToInjectionConfig())
		if err != nil {
			log.Printf("Daemon: keeping previous injector: %v", err)
		} else {
			d.mu.Lock()
			d.injector = inj
			d.mu.Unlock()
		}
	}

	if !updated.RequiresRestart(old) {
		return
	}
	log.Printf("Daemon: recognition settings changed, rebuilding dictation input")
	if err := d.rebuildInput(updated); err != nil {
		log.Printf("Daemon: failed to apply config: %v", err)
	}
}

// Run serves the control socket until ctx is cancelled, a quit command
// arrives or the process is signalled. A nil manager disables hot reload.
func (d *Daemon) Run(ctx context.Context, m *config.Manager) error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			log.Printf("Received signal %v, shutting down gracefully", sig)
		case <-d.ctx.Done():
		case <-gctx.Done():
		}
		d.cancel()
		ln.Close()
		return nil
	})

	if m != nil {
		m.OnChange(d.ApplyConfig)
		if err := m.StartWatching(d.ctx); err != nil {
			log.Printf("Daemon: config hot reload disabled: %v", err)
		} else {
			defer m.Stop()
		}
	}

	if d.provider != nil {
		defer d.provider.Shutdown(context.Background())
		listen := d.cfg.Metrics.Listen
		g.Go(func() error { return d.provider.Serve(d.ctx, listen) })
	}

	g.Go(func() error { return d.acceptLoop(ln) })

	log.Printf("Daemon started, listening on socket")
	err = g.Wait()

	d.currentInput().Close()
	log.Printf("Daemon stopped")
	return err
}

func (d *Daemon) acceptLoop(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				log.Printf("Shutdown requested")
				return nil
			}
			log.Printf("Accept error: %v", err)
			return fmt.Errorf("accept failed: %w", err)
		}
		go d.handle(c)
	}
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil && line == "" {
		log.Printf("Client read error: %v", err)
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}

	req, err := bus.ParseRequest(line)
	if err != nil {
		log.Printf("Bad request %q: %v", line, err)
		fmt.Fprint(c, bus.Err(err.Error()))
		return
	}

	fmt.Fprint(c, d.Execute(req))
}

// Execute runs one control request and returns the reply line.
func (d *Daemon) Execute(req bus.Request) string {
	in := d.currentInput()

	switch req.Cmd {
	case bus.CmdToggle:
		in.Toggle()
		return bus.OK("toggled")
	case bus.CmdStart:
		in.Start()
		return bus.OK("started")
	case bus.CmdStop:
		in.Stop()
		return bus.OK("stopped")
	case bus.CmdStatus:
		st := in.Status()
		return bus.Status(
			"state", string(st.State),
			"interim", st.InterimTranscript,
			"error", st.ErrorMessage,
			"caret", strconv.Itoa(in.Caret()),
		)
	case bus.CmdText:
		return bus.Text(d.buffer.Value())
	case bus.CmdClear:
		d.buffer.Clear()
		in.Edit("", 0)
		return bus.OK("cleared")
	case bus.CmdInject:
		return d.inject(in)
	case bus.CmdCaret:
		d.buffer.SetCaret(req.Caret)
		in.TrackCaret(req.Caret)
		return bus.OK("caret=" + strconv.Itoa(in.Caret()))
	case bus.CmdVersion:
		return bus.Status("proto", bus.ProtoVer, "version", d.version)
	case bus.CmdQuit:
		d.cancel()
		return bus.OK("quitting")
	default:
		return bus.Err(fmt.Sprintf("unknown=%q", req.Cmd))
	}
}

// inject delivers the buffer to the focused window and clears it.
func (d *Daemon) inject(in *dictation.Input) string {
	text := d.buffer.Value()
	if text == "" {
		return bus.Err("buffer empty")
	}

	d.mu.Lock()
	inj := d.injector
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(d.ctx, injectTimeout)
	defer cancel()
	if err := inj.Inject(ctx, text); err != nil {
		if errors.Is(err, context.Canceled) {
			return bus.Err("cancelled")
		}
		log.Printf("Daemon: inject failed: %v", err)
		return bus.Err("inject failed")
	}

	d.buffer.Clear()
	in.Edit("", 0)
	return bus.OK("injected")
}

// Stop asks Run to return.
func (d *Daemon) Stop() { d.cancel() }

// Close tears down the dictation input without running the socket loop.
func (d *Daemon) Close() {
	d.cancel()
	d.currentInput().Close()
}
