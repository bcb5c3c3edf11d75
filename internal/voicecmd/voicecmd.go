// Package voicecmd classifies finalized utterances as literal text or as a
// spoken command (punctuation, formatting, or an edit directive).
//
// Matching is exact: an utterance is a command only when its normalized form
// equals a known phrase. "period" is punctuation, "I said period" is text.
package voicecmd

import "strings"

// Kind tags a classified utterance.
type Kind string

const (
	Punctuation Kind = "punctuation"
	Formatting  Kind = "formatting"
	Edit        Kind = "edit"
	Text        Kind = "text"
)

// Command is the result of classifying one utterance.
// For Punctuation and Formatting, Value is the text to splice.
// For Edit, Value is the normalized phrase. For Text, Value is the trimmed
// utterance in its original casing.
type Command struct {
	Kind  Kind
	Value string
}

// IsEmpty reports whether the command carries nothing to insert.
func (c Command) IsEmpty() bool {
	return c.Kind == Text && c.Value == ""
}

// Edit phrases.
const (
	EditDeleteThat  = "delete that"
	EditScratchThat = "scratch that"
	EditUndo        = "undo"
	EditClear       = "clear"
	EditRemoveThat  = "remove that"
)

var defaultPunctuation = map[string]string{
	"period":            ". ",
	"comma":             ", ",
	"question mark":     "? ",
	"exclamation point": "! ",
	"exclamation mark":  "! ",
	"colon":             ": ",
	"semicolon":         "; ",
	"dash":              " - ",
	"hyphen":            "-",
	"quote":             "\"",
	"apostrophe":        "'",
	"open parenthesis":  "(",
	"close parenthesis": ")",
	"open bracket":      "[",
	"close bracket":     "]",
}

var defaultFormatting = map[string]string{
	"new line":        "\n",
	"new paragraph":   "\n\n",
	"line break":      "\n",
	"paragraph break": "\n\n",
	"tab":             "\t",
}

var editPhrases = map[string]struct{}{
	EditDeleteThat:  {},
	EditScratchThat: {},
	EditUndo:        {},
	EditClear:       {},
	EditRemoveThat:  {},
}

// Vocabulary holds the phrase tables used by Classify.
// A Vocabulary is read-only after construction and safe for concurrent use.
type Vocabulary struct {
	punctuation map[string]string
	formatting  map[string]string
}

// DefaultVocabulary returns the built-in English phrase tables.
func DefaultVocabulary() *Vocabulary {
	v := &Vocabulary{
		punctuation: make(map[string]string, len(defaultPunctuation)),
		formatting:  make(map[string]string, len(defaultFormatting)),
	}
	for k, val := range defaultPunctuation {
		v.punctuation[k] = val
	}
	for k, val := range defaultFormatting {
		v.formatting[k] = val
	}
	return v
}

var defaultVocabulary = DefaultVocabulary()

// Classify classifies an utterance against the default vocabulary.
func Classify(utterance string) Command {
	return defaultVocabulary.Classify(utterance)
}

// Classify maps an utterance to a Command.
func (v *Vocabulary) Classify(utterance string) Command {
	normalized := Normalize(utterance)

	if mapped, ok := v.punctuation[normalized]; ok {
		return Command{Kind: Punctuation, Value: mapped}
	}
	if mapped, ok := v.formatting[normalized]; ok {
		return Command{Kind: Formatting, Value: mapped}
	}
	if _, ok := editPhrases[normalized]; ok {
		return Command{Kind: Edit, Value: normalized}
	}

	return Command{Kind: Text, Value: strings.TrimSpace(utterance)}
}

// Phrases returns the number of punctuation and formatting phrases known to v.
func (v *Vocabulary) Phrases() (punctuation, formatting int) {
	return len(v.punctuation), len(v.formatting)
}

// Normalize lowercases and trims an utterance for table lookup.
func Normalize(utterance string) string {
	return strings.ToLower(strings.TrimSpace(utterance))
}

// IsEditPhrase reports whether phrase (already normalized) is an edit command.
func IsEditPhrase(phrase string) bool {
	_, ok := editPhrases[phrase]
	return ok
}
