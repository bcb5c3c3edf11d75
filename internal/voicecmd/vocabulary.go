package voicecmd

import (
	"errors"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidVocabulary = errors.New("invalid vocabulary")

// vocabularyFile is the on-disk shape of a vocabulary extension.
//
//	punctuation:
//	  full stop: ". "
//	  dash: ""        # an empty value removes a built-in phrase
//	formatting:
//	  next line: "\n"
type vocabularyFile struct {
	Punctuation map[string]string `yaml:"punctuation"`
	Formatting  map[string]string `yaml:"formatting"`
}

// LoadVocabulary reads a YAML vocabulary file and merges it over the
// built-in tables. An empty path returns the default vocabulary.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary %s: %w", path, err)
	}

	v, err := ParseVocabulary(data)
	if err != nil {
		return nil, fmt.Errorf("parse vocabulary %s: %w", path, err)
	}

	p, f := v.Phrases()
	log.Printf("Vocabulary: loaded %s (%d punctuation, %d formatting phrases)", path, p, f)
	return v, nil
}

// ParseVocabulary merges YAML vocabulary data over the built-in tables.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var file vocabularyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVocabulary, err)
	}

	v := DefaultVocabulary()
	if err := merge(v.punctuation, file.Punctuation, "punctuation"); err != nil {
		return nil, err
	}
	if err := merge(v.formatting, file.Formatting, "formatting"); err != nil {
		return nil, err
	}

	for phrase := range v.punctuation {
		if _, ok := v.formatting[phrase]; ok {
			return nil, fmt.Errorf("%w: %q is both punctuation and formatting", ErrInvalidVocabulary, phrase)
		}
	}

	return v, nil
}

func merge(dst, src map[string]string, section string) error {
	for raw, value := range src {
		phrase := Normalize(raw)
		if phrase == "" {
			return fmt.Errorf("%w: empty phrase in %s", ErrInvalidVocabulary, section)
		}
		if IsEditPhrase(phrase) {
			return fmt.Errorf("%w: %q is a reserved edit command", ErrInvalidVocabulary, phrase)
		}
		if value == "" {
			delete(dst, phrase)
			continue
		}
		dst[phrase] = value
	}
	return nil
}
