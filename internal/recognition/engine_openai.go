package recognition

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/courtrecord/voicetext/internal/clock"
	"github.com/courtrecord/voicetext/internal/language"
	"github.com/courtrecord/voicetext/internal/recording"
)

// transcriptionClient is the subset of *openai.Client used by the engine.
type transcriptionClient interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// openAIEngine cuts captured audio into utterances by energy and sends each
// one to the Whisper transcription API. It produces final results only.
type openAIEngine struct {
	cfg     Config
	opts    Options
	session *Session
	client  transcriptionClient

	mu       sync.Mutex
	cancel   context.CancelFunc
	source   recording.Source
	stopping bool
	aborted  bool
	noSpeech bool
}

func newOpenAIEngine(cfg Config, opts Options, h Handler) *openAIEngine {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}
	return &openAIEngine{
		cfg:     cfg,
		opts:    opts,
		session: NewSession(h),
		client:  openai.NewClientWithConfig(clientConfig),
	}
}

func (e *openAIEngine) Start() error {
	e.mu.Lock()
	stream, err := e.session.Begin()
	if err != nil {
		e.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.source = nil
	e.stopping = false
	e.aborted = false
	e.noSpeech = false
	e.mu.Unlock()

	go e.run(ctx, cancel, stream)
	return nil
}

func (e *openAIEngine) Stop() error {
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
	if cancel != nil {
		e.cfg.Clock.AfterFunc(finalizeTimeout, cancel)
	}
	return nil
}

func (e *openAIEngine) Abort() error {
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

func (e *openAIEngine) run(ctx context.Context, cancel context.CancelFunc, stream *Stream) {
	defer stream.End()
	defer cancel()

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
	stopping := e.stopping
	e.mu.Unlock()
	if stopping {
		_ = src.Stop()
	}

	stream.Started()

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

	seg := newSegmenter(e.cfg.Recording)

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				// capture finished, flush whatever was being said
				if utterance := seg.flush(); utterance != nil && ctx.Err() == nil {
					e.deliver(ctx, stream, utterance)
				}
				if ctx.Err() != nil {
					e.reportCancelled(stream)
				}
				return
			}
			if seg.push(frame.Data) && silence != nil {
				silence.Stop()
			}
			if utterance := seg.take(); utterance != nil {
				if !e.deliver(ctx, stream, utterance) {
					return
				}
				if !e.opts.Continuous {
					return
				}
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil && !e.isStopping() {
				stream.Fail(captureErrorKind(err), err.Error())
				return
			}

		case <-ctx.Done():
			e.reportCancelled(stream)
			return
		}
	}
}

// deliver transcribes one utterance. It reports false when the session must end.
func (e *openAIEngine) deliver(ctx context.Context, stream *Stream, pcm []byte) bool {
	req := openai.AudioRequest{
		Model:    e.cfg.Model,
		Reader:   bytes.NewReader(recording.WAV(pcm, e.cfg.Recording)),
		FilePath: "utterance.wav",
		Language: language.Base(e.opts.Language),
	}

	start := time.Now()
	resp, err := e.client.CreateTranscription(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			e.reportCancelled(stream)
			return false
		}
		log.Printf("Recognition: openai transcription failed after %v: %v", time.Since(start), err)
		stream.Fail(openAIErrorKind(err), err.Error())
		return false
	}

	text := strings.TrimSpace(resp.Text)
	log.Printf("Recognition: openai transcribed %v of audio in %v", e.cfg.Recording.Duration(len(pcm)), time.Since(start))
	if text != "" {
		stream.Final(text, 1)
	}
	return true
}

func (e *openAIEngine) reportCancelled(stream *Stream) {
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

func (e *openAIEngine) isStopping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopping
}

func openAIErrorKind(err error) ErrorKind {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ServiceNotAllowed
	case http.StatusBadRequest:
		return LanguageNotSupported
	default:
		return Network
	}
}

// Endpointing parameters for the chunked engine.
const (
	speechLevel     = 0.02
	endSilence      = 700 * time.Millisecond
	minSpeech       = 200 * time.Millisecond
	maxUtteranceLen = 15 * time.Second
)

// segmenter groups PCM frames into utterances: speech begins with the first
// voiced frame and ends after endSilence of quiet or maxUtteranceLen.
type segmenter struct {
	cfg      recording.Config
	buf      []byte
	speech   time.Duration
	trailing time.Duration
	active   bool
	ready    []byte
}

func newSegmenter(cfg recording.Config) *segmenter {
	return &segmenter{cfg: cfg}
}

// push adds a frame and reports whether it was voiced.
func (s *segmenter) push(data []byte) bool {
	d := s.cfg.Duration(len(data))
	voiced := recording.Level(data) >= speechLevel

	if !s.active {
		if !voiced {
			return false
		}
		s.active = true
	}

	s.buf = append(s.buf, data...)
	if voiced {
		s.speech += d
		s.trailing = 0
	} else {
		s.trailing += d
	}

	if s.trailing >= endSilence || s.cfg.Duration(len(s.buf)) >= maxUtteranceLen {
		s.ready = s.flush()
	}
	return voiced
}

// take returns a completed utterance, if any.
func (s *segmenter) take() []byte {
	out := s.ready
	s.ready = nil
	return out
}

// flush ends the current utterance. Utterances with too little speech are
// dropped.
func (s *segmenter) flush() []byte {
	out, speech := s.buf, s.speech
	s.buf, s.speech, s.trailing, s.active = nil, 0, 0, false
	if speech < minSpeech {
		return nil
	}
	return out
}
