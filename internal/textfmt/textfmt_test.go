package textfmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSmartCapitalize(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		preceding string
		want      string
	}{
		{"start of buffer", "hello", "", "Hello"},
		{"after period", "hello", "Done.", "Hello"},
		{"after period and space", "hello", "Done. ", "Hello"},
		{"after question and newline", "hello", "Really?\n", "Hello"},
		{"after exclamation", "hello", "Wow!", "Hello"},
		{"mid sentence", "hello", "Done", "hello"},
		{"after comma", "hello", "Well, ", "hello"},
		{"only first rune", "hELLO wORLD", "", "HELLO wORLD"},
		{"already upper", "Hello", "", "Hello"},
		{"non letter", "42 apples", "", "42 apples"},
		{"unicode", "élan", "", "Élan"},
		{"empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SmartCapitalize(tt.text, tt.preceding))
		})
	}
}

func TestNeedsSpace(t *testing.T) {
	tests := []struct {
		prev, next string
		want       bool
	}{
		{"", "x", false},
		{"o", ".", false},
		{"o", ",", false},
		{"o", "!", false},
		{"o", "?", false},
		{"o", ":", false},
		{"o", ";", false},
		{"o", ")", false},
		{"o", "]", false},
		{"o", "'", false},
		{"(", "x", false},
		{"[", "x", false},
		{"\"", "x", false},
		{"\n", "w", false},
		{"o", "w", true},
		{" ", "w", true},
		{"\t", "w", true},
		{"\r", "w", true},
		{".", "w", true},
		{"o", "(", true},
		{"o", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.prev+"|"+tt.next, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsSpace(tt.prev, tt.next))
		})
	}
}

func TestSplice(t *testing.T) {
	tests := []struct {
		name      string
		buffer    string
		caret     int
		text      string
		want      string
		wantCaret int
	}{
		{"append", "Hello", 5, " world", "Hello world", 11},
		{"middle keeps suffix", "Hello", 2, "y", "Heyllo", 3},
		{"start", "world", 0, "Hello ", "Hello world", 6},
		{"empty buffer", "", 0, "Hi", "Hi", 2},
		{"caret past end clamps", "ab", 10, "c", "abc", 3},
		{"negative caret clamps", "ab", -3, "c", "cab", 1},
		{"rune offsets", "héllo", 2, "X", "héXllo", 3},
		{"multibyte insert", "ab", 1, "日本", "a日本b", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, caret := Splice(tt.buffer, tt.caret, tt.text)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCaret, caret)
		})
	}
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "", LastChar(""))
	assert.Equal(t, "é", LastChar("café"))
	assert.Equal(t, "", FirstChar(""))
	assert.Equal(t, "日", FirstChar("日本"))
	assert.Equal(t, 4, Len("café"))
	assert.Equal(t, "ca", Before("café", 2))
	assert.Equal(t, "café", Before("café", 99))
	assert.Equal(t, 0, ClampCaret("abc", -1))
	assert.Equal(t, 3, ClampCaret("abc", 7))
}
