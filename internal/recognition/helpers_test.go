package recognition

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/courtrecord/voicetext/internal/recording"
)

// recordingHandler logs callbacks as short strings.
type recordingHandler struct {
	mu     sync.Mutex
	events []string
	last   ResultEvent
}

func (h *recordingHandler) add(s string) {
	h.mu.Lock()
	h.events = append(h.events, s)
	h.mu.Unlock()
}

func (h *recordingHandler) OnStart() { h.add("start") }

func (h *recordingHandler) OnResult(ev ResultEvent) {
	h.mu.Lock()
	h.last = ev
	h.mu.Unlock()
	r := ev.Results[len(ev.Results)-1]
	if r.IsFinal {
		h.add(fmt.Sprintf("final:%s", r.Transcript))
	} else {
		h.add(fmt.Sprintf("interim:%s", r.Transcript))
	}
}

func (h *recordingHandler) OnError(ev ErrorEvent) { h.add("error:" + string(ev.Kind)) }

func (h *recordingHandler) OnEnd() { h.add("end") }

func (h *recordingHandler) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func (h *recordingHandler) ended() bool {
	for _, e := range h.Events() {
		if e == "end" {
			return true
		}
	}
	return false
}

func waitEnded(t *testing.T, h *recordingHandler) {
	t.Helper()
	require.Eventually(t, h.ended, 2*time.Second, 5*time.Millisecond, "events: %v", h.Events())
}

// fakeSource is a recording.Source fed by the test.
type fakeSource struct {
	frames   chan recording.AudioFrame
	errs     chan error
	startErr error

	once    sync.Once
	mu      sync.Mutex
	started bool
	stopped bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		frames: make(chan recording.AudioFrame, 64),
		errs:   make(chan error, 1),
	}
}

func (s *fakeSource) Start(ctx context.Context) (<-chan recording.AudioFrame, <-chan error, error) {
	if s.startErr != nil {
		return nil, nil, s.startErr
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return s.frames, s.errs, nil
}

func (s *fakeSource) Stop() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.frames)
	})
	return nil
}

func (s *fakeSource) push(data []byte) {
	s.frames <- recording.AudioFrame{Data: data, Timestamp: time.Now()}
}

// tone returns d of 16-bit PCM at a constant amplitude.
func tone(cfg recording.Config, d time.Duration, amplitude int16) []byte {
	n := int(d.Seconds()*float64(cfg.SampleRate)) * cfg.Channels
	b := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		v := amplitude
		if i%2 == 1 {
			v = -amplitude
		}
		b[2*i] = byte(uint16(v))
		b[2*i+1] = byte(uint16(v) >> 8)
	}
	return b
}
