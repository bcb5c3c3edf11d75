package recognition

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/courtrecord/voicetext/internal/clock"
	"github.com/courtrecord/voicetext/internal/recording"
)

const deepgramEndpoint = "wss://api.deepgram.com/v1/listen"

// finalizeTimeout bounds how long Stop waits for the server to flush.
const finalizeTimeout = 3 * time.Second

var defaultRetryDelays = []time.Duration{500 * time.Millisecond, 1 * time.Second, 2 * time.Second}

// deepgramEngine streams PipeWire audio to the Deepgram live API over a
// websocket and reports interim and final transcripts.
type deepgramEngine struct {
	cfg     Config
	opts    Options
	session *Session
	dialer  *websocket.Dialer

	mu        sync.Mutex // guards the per-session fields below
	cancel    context.CancelFunc
	conn      *websocket.Conn
	source    recording.Source
	stopping  bool
	aborted   bool
	noSpeech  bool
	closeSent bool

	writeMu sync.Mutex // gorilla allows one concurrent writer

	maxRetries  int
	retryDelays []time.Duration
}

type deepgramCloseStream struct {
	Type string `json:"type"`
}

type deepgramMessage struct {
	Type        string            `json:"type"`
	Channel     *deepgramChannel  `json:"channel,omitempty"`
	Metadata    *deepgramMetadata `json:"metadata,omitempty"`
	IsFinal     bool              `json:"is_final,omitempty"`
	SpeechFinal bool              `json:"speech_final,omitempty"`
	Description string            `json:"description,omitempty"`
	Message     string            `json:"message,omitempty"`
}

type deepgramChannel struct {
	Alternatives []deepgramAlternative `json:"alternatives,omitempty"`
}

type deepgramAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type deepgramMetadata struct {
	RequestID string `json:"request_id"`
	ModelInfo struct {
		Name string `json:"name"`
	} `json:"model_info"`
}

func newDeepgramEngine(cfg Config, opts Options, h Handler) *deepgramEngine {
	return &deepgramEngine{
		cfg:     cfg,
		opts:    opts,
		session: NewSession(h),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		maxRetries:  len(defaultRetryDelays),
		retryDelays: defaultRetryDelays,
	}
}

func (e *deepgramEngine) Start() error {
	e.mu.Lock()
	stream, err := e.session.Begin()
	if err != nil {
		e.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.conn = nil
	e.source = nil
	e.stopping = false
	e.aborted = false
	e.noSpeech = false
	e.closeSent = false
	e.mu.Unlock()

	go e.run(ctx, cancel, stream)
	return nil
}

func (e *deepgramEngine) Stop() error {
	if !e.session.Live() {
		return ErrNotStarted
	}

	e.mu.Lock()
	if e.stopping {
		e.mu.Unlock()
		return nil
	}
	e.stopping = true
	src := e.source
	cancel := e.cancel
	e.mu.Unlock()

	if src != nil {
		_ = src.Stop()
	}
	e.sendCloseStream()
	if cancel != nil {
		e.cfg.Clock.AfterFunc(finalizeTimeout, cancel)
	}
	return nil
}

func (e *deepgramEngine) Abort() error {
	if !e.session.Live() {
		return ErrNotStarted
	}

	e.mu.Lock()
	e.aborted = true
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

func (e *deepgramEngine) run(ctx context.Context, cancel context.CancelFunc, stream *Stream) {
	defer stream.End()
	defer cancel()

	conn, err := e.dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			e.reportCancelled(stream)
			return
		}
		log.Printf("Recognition: deepgram dial failed: %v", err)
		stream.Fail(KindOf(err, Network), err.Error())
		return
	}
	e.setConn(conn)
	defer e.closeConn()

	go func() {
		<-ctx.Done()
		e.closeConn()
	}()

	stream.Started()
	if e.isStopping() {
		return
	}

	src := e.cfg.source()
	frames, errs, err := src.Start(ctx)
	if err != nil {
		log.Printf("Recognition: capture failed: %v", err)
		stream.Fail(captureErrorKind(err), err.Error())
		return
	}
	defer src.Stop()

	e.mu.Lock()
	e.source = src
	e.mu.Unlock()

	var silence clock.Timer
	if e.cfg.NoSpeechTimeout > 0 {
		silence = e.cfg.Clock.AfterFunc(e.cfg.NoSpeechTimeout, func() {
			e.mu.Lock()
			e.noSpeech = true
			e.mu.Unlock()
			cancel()
		})
		defer silence.Stop()
	}

	go e.pump(ctx, cancel, frames, errs, stream)
	e.readLoop(ctx, stream, silence)
}

// pump forwards captured audio to the websocket until capture ends.
func (e *deepgramEngine) pump(ctx context.Context, cancel context.CancelFunc, frames <-chan recording.AudioFrame, errs <-chan error, stream *Stream) {
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				// capture ended; ask the server to flush what it has
				e.sendCloseStream()
				return
			}
			if err := e.write(websocket.BinaryMessage, frame.Data); err != nil {
				log.Printf("Recognition: deepgram write error: %v", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil && !e.isStopping() {
				stream.Fail(captureErrorKind(err), err.Error())
				cancel()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (e *deepgramEngine) readLoop(ctx context.Context, stream *Stream, silence clock.Timer) {
	heard := false

	for {
		conn := e.currentConn()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				e.reportCancelled(stream)
				return
			}
			if e.isStopping() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			log.Printf("Recognition: deepgram read error: %v, attempting reconnection", err)
			if e.reconnect(ctx) {
				continue
			}
			if ctx.Err() != nil {
				e.reportCancelled(stream)
				return
			}
			stream.Fail(Network, fmt.Sprintf("connection lost: %v", err))
			return
		}

		var msg deepgramMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Recognition: deepgram parse error: %v", err)
			continue
		}

		switch msg.Type {
		case "Results":
			if msg.Channel == nil || len(msg.Channel.Alternatives) == 0 {
				continue
			}
			alt := msg.Channel.Alternatives[0]
			if strings.TrimSpace(alt.Transcript) == "" {
				continue
			}
			if !heard && silence != nil {
				silence.Stop()
			}
			heard = true

			if msg.IsFinal || msg.SpeechFinal {
				stream.Final(alt.Transcript, alt.Confidence)
				if !e.opts.Continuous {
					_ = e.Stop()
				}
			} else if e.opts.InterimResults {
				stream.Interim(alt.Transcript)
			}

		case "Metadata":
			if msg.Metadata != nil {
				log.Printf("Recognition: deepgram session request_id=%s model=%s",
					msg.Metadata.RequestID, msg.Metadata.ModelInfo.Name)
			}

		case "Error":
			text := strings.TrimSpace(msg.Message + " " + msg.Description)
			log.Printf("Recognition: deepgram error: %s", text)
			stream.Fail(Network, text)
			return

		case "UtteranceEnd", "SpeechStarted":

		default:
			log.Printf("Recognition: deepgram unknown message type: %s", msg.Type)
		}
	}
}

func (e *deepgramEngine) reportCancelled(stream *Stream) {
	e.mu.Lock()
	aborted, noSpeech := e.aborted, e.noSpeech
	e.mu.Unlock()

	switch {
	case aborted:
		stream.Fail(Aborted, "recognition aborted")
	case noSpeech:
		stream.Fail(NoSpeech, "no speech detected")
	}
}

func (e *deepgramEngine) dial(ctx context.Context) (*websocket.Conn, error) {
	wsURL, err := e.buildURL()
	if err != nil {
		return nil, NewEngineError(Network, err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+e.cfg.APIKey)

	conn, resp, err := e.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, NewEngineError(ServiceNotAllowed, fmt.Errorf("deepgram rejected credentials: %s", resp.Status))
		}
		return nil, NewEngineError(Network, fmt.Errorf("websocket dial: %w", err))
	}
	return conn, nil
}

// reconnect re-dials with backoff. It reports whether a new connection is up.
func (e *deepgramEngine) reconnect(ctx context.Context) bool {
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		delay := e.retryDelays[len(e.retryDelays)-1]
		if attempt < len(e.retryDelays) {
			delay = e.retryDelays[attempt]
		}
		log.Printf("Recognition: deepgram reconnect attempt %d/%d after %v", attempt+1, e.maxRetries, delay)

		wait := make(chan struct{})
		t := e.cfg.Clock.AfterFunc(delay, func() { close(wait) })
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-wait:
		}

		conn, err := e.dial(ctx)
		if err != nil {
			log.Printf("Recognition: deepgram reconnect failed: %v", err)
			continue
		}
		e.closeConn()
		e.setConn(conn)
		log.Printf("Recognition: deepgram reconnected")
		return true
	}
	return false
}

func (e *deepgramEngine) buildURL() (string, error) {
	base := e.cfg.Endpoint
	if base == "" {
		base = deepgramEndpoint
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}

	q := u.Query()
	q.Set("model", e.cfg.Model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(e.cfg.Recording.SampleRate))
	q.Set("channels", strconv.Itoa(e.cfg.Recording.Channels))
	q.Set("interim_results", strconv.FormatBool(e.opts.InterimResults))
	// spoken punctuation must reach the classifier as words
	q.Set("punctuate", "false")
	q.Set("smart_format", "false")
	if e.opts.Language != "" {
		q.Set("language", e.opts.Language)
	}
	if e.opts.MaxAlternatives > 1 {
		q.Set("alternatives", strconv.Itoa(e.opts.MaxAlternatives))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (e *deepgramEngine) sendCloseStream() {
	e.mu.Lock()
	if e.closeSent || e.conn == nil {
		e.mu.Unlock()
		return
	}
	e.closeSent = true
	e.mu.Unlock()

	if err := e.writeJSON(deepgramCloseStream{Type: "CloseStream"}); err != nil {
		log.Printf("Recognition: deepgram finalize write error: %v", err)
	}
}

func (e *deepgramEngine) write(messageType int, data []byte) error {
	conn := e.currentConn()
	if conn == nil {
		return fmt.Errorf("no connection")
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return conn.WriteMessage(messageType, data)
}

func (e *deepgramEngine) writeJSON(v any) error {
	conn := e.currentConn()
	if conn == nil {
		return fmt.Errorf("no connection")
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (e *deepgramEngine) currentConn() *websocket.Conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn
}

func (e *deepgramEngine) setConn(c *websocket.Conn) {
	e.mu.Lock()
	e.conn = c
	e.mu.Unlock()
}

func (e *deepgramEngine) closeConn() {
	e.mu.Lock()
	c := e.conn
	e.mu.Unlock()
	if c != nil {
		c.Close()
	}
}

func (e *deepgramEngine) isStopping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopping
}
