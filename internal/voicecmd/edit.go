package voicecmd

import (
	"regexp"
	"strings"
)

var sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)

// trimWords is how many trailing words "delete that" removes when the buffer
// holds a single sentence.
const trimWords = 5

// History is an undo stack of buffer snapshots taken before each edit.
// The zero value is ready to use. History is not safe for concurrent use.
type History struct {
	snapshots []string
	limit     int
}

// NewHistory returns a History keeping at most limit snapshots (0 = unbounded).
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

func (h *History) push(s string) {
	h.snapshots = append(h.snapshots, s)
	if h.limit > 0 && len(h.snapshots) > h.limit {
		h.snapshots = h.snapshots[len(h.snapshots)-h.limit:]
	}
}

func (h *History) pop() (string, bool) {
	if len(h.snapshots) == 0 {
		return "", false
	}
	last := h.snapshots[len(h.snapshots)-1]
	h.snapshots = h.snapshots[:len(h.snapshots)-1]
	return last, true
}

// Len returns the number of snapshots available to undo.
func (h *History) Len() int { return len(h.snapshots) }

// Reset drops every snapshot.
func (h *History) Reset() { h.snapshots = nil }

// ApplyEdit applies an edit phrase to text and returns the new text.
//
//   - delete/scratch/remove that: drop the last sentence; with a single
//     sentence drop the last five words; with five words or fewer clear.
//   - undo: restore the snapshot taken before the previous edit.
//   - clear: empty the text.
//
// Every edit except undo records the prior text in h.
func ApplyEdit(phrase, text string, h *History) string {
	switch phrase {
	case EditDeleteThat, EditScratchThat, EditRemoveThat:
		h.push(text)
		return dropLast(text)
	case EditUndo:
		if prev, ok := h.pop(); ok {
			return prev
		}
		return text
	case EditClear:
		h.push(text)
		return ""
	default:
		return text
	}
}

func dropLast(text string) string {
	if bounds := sentenceBoundary.FindAllStringIndex(text, -1); len(bounds) > 0 {
		return text[:bounds[len(bounds)-1][0]]
	}

	words := strings.Split(strings.TrimSpace(text), " ")
	if len(words) > trimWords {
		return strings.Join(words[:len(words)-trimWords], " ") + " "
	}
	return ""
}
