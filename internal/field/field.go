// Package field holds the daemon's text buffer: the widget dictation types
// into before the result is injected into another window.
package field

import (
	"sync"

	"github.com/courtrecord/voicetext/internal/textfmt"
)

// Snapshot is the buffer value and caret at one point in time.
type Snapshot struct {
	Value string
	Caret int // rune offset
}

// Buffer is a thread-safe text value with a caret. It satisfies
// dictation.Widget through SetCaret.
type Buffer struct {
	mu     sync.Mutex
	value  string
	caret  int
	nextID int
	subs   map[int]func(Snapshot)
}

// New returns a buffer holding value with the caret at its end.
func New(value string) *Buffer {
	return &Buffer{
		value: value,
		caret: textfmt.Len(value),
		subs:  make(map[int]func(Snapshot)),
	}
}

func (b *Buffer) Value() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

func (b *Buffer) Caret() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.caret
}

func (b *Buffer) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{Value: b.value, Caret: b.caret}
}

// SetValue replaces the text. The caret is clamped to the new length.
func (b *Buffer) SetValue(value string) {
	b.mu.Lock()
	b.value = value
	b.caret = textfmt.ClampCaret(value, b.caret)
	snap := Snapshot{Value: b.value, Caret: b.caret}
	subs := b.subscribersLocked()
	b.mu.Unlock()

	publish(subs, snap)
}

// SetCaret moves the caret, clamped to [0, len].
func (b *Buffer) SetCaret(pos int) {
	b.mu.Lock()
	clamped := textfmt.ClampCaret(b.value, pos)
	if clamped == b.caret {
		b.mu.Unlock()
		return
	}
	b.caret = clamped
	snap := Snapshot{Value: b.value, Caret: b.caret}
	subs := b.subscribersLocked()
	b.mu.Unlock()

	publish(subs, snap)
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.SetValue("")
}

// Subscribe registers fn for every change. Callbacks run on the goroutine
// that made the change, outside the buffer lock. The returned func
// unsubscribes.
func (b *Buffer) Subscribe(fn func(Snapshot)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *Buffer) subscribersLocked() []func(Snapshot) {
	subs := make([]func(Snapshot), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	return subs
}

func publish(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}
