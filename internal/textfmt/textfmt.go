// Package textfmt holds the spacing and capitalization rules applied to
// dictated text, and rune-offset splicing into a buffer.
package textfmt

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var sentenceEnd = regexp.MustCompile(`[.!?]\s*$`)

// SmartCapitalize upper-cases the first rune of newText when precedingText is
// empty or ends a sentence. Nothing else is changed.
func SmartCapitalize(newText, precedingText string) string {
	if precedingText != "" && !sentenceEnd.MatchString(precedingText) {
		return newText
	}
	return capitalizeFirst(newText)
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || r == utf8.RuneError {
		return s
	}
	upper := unicode.ToUpper(r)
	if upper == r {
		return s
	}
	return string(upper) + s[size:]
}

const (
	attachesLeft  = ".,!?:;)]'"
	attachesRight = "([\""
)

// NeedsSpace reports whether a space belongs between precedingChar and
// nextChar. Both are single characters or empty.
func NeedsSpace(precedingChar, nextChar string) bool {
	if precedingChar == "" {
		return false
	}
	if nextChar != "" && strings.Contains(attachesLeft, nextChar) {
		return false
	}
	if strings.Contains(attachesRight, precedingChar) {
		return false
	}
	return precedingChar != "\n"
}

// LastChar returns the final rune of s as a string, or "" when s is empty.
func LastChar(s string) string {
	r, size := utf8.DecodeLastRuneInString(s)
	if size == 0 {
		return ""
	}
	return string(r)
}

// FirstChar returns the first rune of s as a string, or "" when s is empty.
func FirstChar(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return ""
	}
	return string(r)
}

// Len returns the length of s in runes. Caret offsets are rune offsets.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

// ClampCaret bounds caret to [0, Len(buffer)].
func ClampCaret(buffer string, caret int) int {
	if caret < 0 {
		return 0
	}
	if n := Len(buffer); caret > n {
		return n
	}
	return caret
}

// Before returns the part of buffer preceding the (clamped) caret.
func Before(buffer string, caret int) string {
	return buffer[:byteOffset(buffer, ClampCaret(buffer, caret))]
}

// Splice inserts text into buffer at caret and returns the new buffer and the
// caret advanced past the insertion.
func Splice(buffer string, caret int, text string) (string, int) {
	caret = ClampCaret(buffer, caret)
	at := byteOffset(buffer, caret)
	return buffer[:at] + text + buffer[at:], caret + Len(text)
}

func byteOffset(s string, runes int) int {
	i := 0
	for at := range s {
		if i == runes {
			return at
		}
		i++
	}
	return len(s)
}
