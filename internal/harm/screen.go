package harm

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Screen flags and redacts text containing lexicon terms.
// It is safe for concurrent use; nothing is mutated after construction.
type Screen struct {
	lexicon   Lexicon
	patterns  []*regexp.Regexp
	redaction string
	logger    *slog.Logger
}

// Option configures a Screen.
type Option func(*Screen)

// WithRedaction sets the token that replaces flagged terms.
func WithRedaction(token string) Option {
	return func(s *Screen) {
		if token != "" {
			s.redaction = token
		}
	}
}

// WithLogger sets the logger used for detection and rewrite events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Screen) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScreen creates a screen over lexicon. It fails with
// ErrTokenOverlapsTerm when a term appears in the redaction token, contains
// it, or begins or ends with part of it.
func NewScreen(lexicon Lexicon, opts ...Option) (*Screen, error) {
	s := &Screen{
		lexicon:   lexicon,
		redaction: DefaultRedaction,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	lowered := strings.ToLower(s.redaction)
	s.patterns = make([]*regexp.Regexp, 0, len(lexicon.terms))
	for _, term := range lexicon.terms {
		if overlapsToken(lowered, term) {
			return nil, fmt.Errorf("%w: %q and %q", ErrTokenOverlapsTerm, s.redaction, term)
		}
		s.patterns = append(s.patterns, regexp.MustCompile("(?i)"+regexp.QuoteMeta(term)))
	}

	return s, nil
}

// Lexicon returns the screen's lexicon.
func (s *Screen) Lexicon() Lexicon {
	return s.lexicon
}

// Redaction returns the replacement token.
func (s *Screen) Redaction() string {
	return s.redaction
}

// Match returns the first lexicon term (in lexicon order) that occurs in text.
// Matching is substring based: "harmony" matches "harm".
func (s *Screen) Match(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, term := range s.lexicon.terms {
		if strings.Contains(lowered, term) {
			return term, true
		}
	}
	return "", false
}

// Detect reports whether text contains any lexicon term.
func (s *Screen) Detect(text string) bool {
	_, ok := s.DetectTerm(text)
	return ok
}

// DetectTerm is Detect that also returns the matched term.
func (s *Screen) DetectTerm(text string) (string, bool) {
	term, ok := s.Match(text)
	if ok {
		s.logger.Info("harm term detected", "term", term)
	}
	return term, ok
}

// Rewrite replaces every case-insensitive occurrence of every lexicon term
// with the redaction token. Text outside the matches keeps its casing.
func (s *Screen) Rewrite(text string) string {
	out := text
	for _, re := range s.patterns {
		out = re.ReplaceAllLiteralString(out, s.redaction)
	}
	if out != text {
		s.logger.Info("prompt rewritten", "redaction", s.redaction)
	}
	return out
}

// DetectValue is Detect for values of unknown type. Strings, byte slices
// and fmt.Stringer values are screened; anything else is reported as not
// harmful.
func (s *Screen) DetectValue(v any) bool {
	text, ok := asText(v)
	if !ok {
		return false
	}
	return s.Detect(text)
}

// RewriteValue is Rewrite for values of unknown type. Values that are not
// text-like are returned unchanged. A []byte input yields a []byte result
// and a string input a string; a fmt.Stringer yields a string.
func (s *Screen) RewriteValue(v any) any {
	switch t := v.(type) {
	case string:
		return s.Rewrite(t)
	case []byte:
		return []byte(s.Rewrite(string(t)))
	case fmt.Stringer:
		return s.Rewrite(t.String())
	default:
		return v
	}
}

func asText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	case fmt.Stringer:
		return t.String(), true
	default:
		return "", false
	}
}

// overlapsToken reports whether a match of term in rewritten text could use
// any character of an inserted token.
func overlapsToken(token, term string) bool {
	if strings.Contains(token, term) || strings.Contains(term, token) {
		return true
	}
	for i := 1; i < len(token); i++ {
		if strings.HasPrefix(term, token[i:]) || strings.HasSuffix(term, token[:i]) {
			return true
		}
	}
	return false
}
