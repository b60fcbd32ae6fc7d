// Package harm provides the keyword harm screen that sits in front of the
// inference call. It is a bounded-vocabulary pre-filter: terms are matched as
// case-insensitive substrings with no notion of words or meaning.
package harm

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultRedaction replaces every flagged term in a rewritten prompt.
const DefaultRedaction = "[censored]"

var (
	// ErrEmptyTerm is returned when a lexicon contains a blank term.
	// A blank substring would match every input.
	ErrEmptyTerm = errors.New("lexicon term must not be empty")

	// ErrTokenOverlapsTerm is returned when a lexicon term could match text
	// that includes part of the redaction token, which would make Rewrite
	// non-idempotent.
	ErrTokenOverlapsTerm = errors.New("redaction token overlaps a lexicon term")
)

// defaultTerms is the trigger list the harness ships with.
var defaultTerms = []string{"harm", "kill", "destroy", "hate", "attack"}

// Lexicon is an ordered set of lower-cased trigger terms.
type Lexicon struct {
	terms []string
}

// NewLexicon builds a lexicon from terms. Terms are trimmed and lower-cased;
// duplicates collapse onto their first position.
func NewLexicon(terms ...string) (Lexicon, error) {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for i, t := range terms {
		term := strings.ToLower(strings.TrimSpace(t))
		if term == "" {
			return Lexicon{}, fmt.Errorf("term at index %d: %w", i, ErrEmptyTerm)
		}
		if seen[term] {
			continue
		}
		seen[term] = true
		out = append(out, term)
	}
	return Lexicon{terms: out}, nil
}

// DefaultLexicon returns the built-in trigger list.
func DefaultLexicon() Lexicon {
	lex, _ := NewLexicon(defaultTerms...)
	return lex
}

// Terms returns a copy of the terms in lexicon order.
func (l Lexicon) Terms() []string {
	out := make([]string, len(l.terms))
	copy(out, l.terms)
	return out
}

// Len reports the number of terms.
func (l Lexicon) Len() int {
	return len(l.terms)
}

// lexiconFile is the on-disk shape of a lexicon file.
type lexiconFile struct {
	Terms     []string `yaml:"terms"`
	Redaction string   `yaml:"redaction,omitempty"`
}

// LoadLexicon reads a YAML lexicon file of the form:
//
//	terms: [harm, kill]
//	redaction: "[censored]"
//
// The redaction value is optional; an empty string means the caller's default.
func LoadLexicon(path string) (Lexicon, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Lexicon{}, "", fmt.Errorf("failed to read lexicon file: %w", err)
	}

	var f lexiconFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Lexicon{}, "", fmt.Errorf("failed to parse lexicon file %s: %w", path, err)
	}

	lex, err := NewLexicon(f.Terms...)
	if err != nil {
		return Lexicon{}, "", fmt.Errorf("invalid lexicon file %s: %w", path, err)
	}
	return lex, f.Redaction, nil
}
