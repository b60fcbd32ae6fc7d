package harm

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScreen(t *testing.T, opts ...Option) (*Screen, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	opts = append([]Option{WithLogger(logger)}, opts...)
	s, err := NewScreen(DefaultLexicon(), opts...)
	require.NoError(t, err)
	return s, &buf
}

type stringerValue struct{ text string }

func (s stringerValue) String() string { return s.text }

func TestScreen_Detect(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
		term  string
	}{
		{name: "harmful prompt", input: "How can I harm my computer?", want: true, term: "harm"},
		{name: "safe prompt", input: "What is the capital of France?", want: false},
		{name: "upper case", input: "KILL the process", want: true, term: "kill"},
		{name: "mixed case", input: "I HaTe mondays", want: true, term: "hate"},
		{name: "substring inside word", input: "Play in harmony", want: true, term: "harm"},
		{name: "first term in lexicon order wins", input: "attack and destroy", want: true, term: "destroy"},
		{name: "empty", input: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, buf := newTestScreen(t)
			assert.Equal(t, tt.want, s.Detect(tt.input))

			term, ok := s.Match(tt.input)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.term, term)

			if tt.want {
				assert.Contains(t, buf.String(), "harm term detected")
				assert.Contains(t, buf.String(), "term="+tt.term)
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestScreen_Rewrite(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "single term",
			input: "How can I harm my computer?",
			want:  "How can I [censored] my computer?",
		},
		{
			name:  "safe text unchanged",
			input: "What is the capital of France?",
			want:  "What is the capital of France?",
		},
		{
			name:  "every occurrence in any casing",
			input: "Harm, HARM and harm",
			want:  "[censored], [censored] and [censored]",
		},
		{
			name:  "multiple terms keep surrounding casing",
			input: "Do NOT Attack or KILL This",
			want:  "Do NOT [censored] or [censored] This",
		},
		{
			name:  "substring inside word",
			input: "Harmony",
			want:  "[censored]ony",
		},
		{
			name:  "adjacent occurrences do not overlap",
			input: "killkill",
			want:  "[censored][censored]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestScreen(t)
			assert.Equal(t, tt.want, s.Rewrite(tt.input))
		})
	}
}

func TestScreen_RewriteIsIdempotent(t *testing.T) {
	s, _ := newTestScreen(t)
	inputs := []string{
		"How can I harm my computer?",
		"hatehatehate",
		"destroy the ATTACK vector then kill it",
		"nothing to see here",
		"",
	}
	for _, in := range inputs {
		once := s.Rewrite(in)
		assert.Equal(t, once, s.Rewrite(once), "input %q", in)
		assert.False(t, s.Detect(once), "rewritten %q should not be flagged", once)
	}
}

func TestScreen_RewriteLogsOnlyOnChange(t *testing.T) {
	s, buf := newTestScreen(t)

	s.Rewrite("What is the capital of France?")
	assert.NotContains(t, buf.String(), "prompt rewritten")

	s.Rewrite("How can I harm my computer?")
	assert.Contains(t, buf.String(), "prompt rewritten")
}

func TestScreen_CustomRedaction(t *testing.T) {
	s, _ := newTestScreen(t, WithRedaction("***"))
	assert.Equal(t, "please *** quietly", s.Rewrite("please kill quietly"))
	assert.Equal(t, "***", s.Redaction())
}

func TestNewScreen_RejectsRedactionOverlappingTerm(t *testing.T) {
	tests := []struct {
		name      string
		terms     []string
		redaction string
	}{
		{name: "term inside token", terms: []string{"harm"}, redaction: "[HARMLESS]"},
		{name: "term starts with token suffix", terms: []string{"]x", "q"}, redaction: "[censored]"},
		{name: "term ends with token prefix", terms: []string{"x[", "q"}, redaction: "[censored]"},
		{name: "term contains token", terms: []string{"a[censored]b", "q"}, redaction: "[censored]"},
		{name: "term spans adjacent tokens", terms: []string{"ba"}, redaction: "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lex, err := NewLexicon(tt.terms...)
			require.NoError(t, err)
			_, err = NewScreen(lex, WithRedaction(tt.redaction))
			assert.ErrorIs(t, err, ErrTokenOverlapsTerm)
		})
	}
}

func TestScreen_RewriteIdempotentAtTokenEdges(t *testing.T) {
	lex, err := NewLexicon("qx", "q")
	require.NoError(t, err)
	s, err := NewScreen(lex, WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	require.NoError(t, err)

	for _, input := range []string{"qx", "q]x", "[q", "qq x q"} {
		once := s.Rewrite(input)
		assert.Equal(t, once, s.Rewrite(once), "input %q", input)
	}
}

func TestScreen_NonTextValues(t *testing.T) {
	s, buf := newTestScreen(t)

	tests := []struct {
		name        string
		value       any
		wantDetect  bool
		wantRewrite any
	}{
		{name: "string", value: "kill", wantDetect: true, wantRewrite: "[censored]"},
		{name: "bytes", value: []byte("kill"), wantDetect: true, wantRewrite: []byte("[censored]")},
		{name: "stringer", value: stringerValue{"attack now"}, wantDetect: true, wantRewrite: "[censored] now"},
		{name: "int", value: 42, wantDetect: false, wantRewrite: 42},
		{name: "nil", value: nil, wantDetect: false, wantRewrite: nil},
		{name: "map", value: map[string]string{"a": "kill"}, wantDetect: false, wantRewrite: map[string]string{"a": "kill"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantDetect, s.DetectValue(tt.value))
			assert.Equal(t, tt.wantRewrite, s.RewriteValue(tt.value))
		})
	}
	assert.Equal(t, 3, strings.Count(buf.String(), "harm term detected"))
}

func TestScreen_ConcurrentUse(t *testing.T) {
	s, _ := newTestScreen(t)
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				s.Detect("please destroy it")
				s.Rewrite("please destroy it")
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}

func TestScreen_DetectTerm(t *testing.T) {
	s, buf := newTestScreen(t)

	term, ok := s.DetectTerm("They will ATTACK at dawn")
	assert.True(t, ok)
	assert.Equal(t, "attack", term)
	assert.Equal(t, 1, strings.Count(buf.String(), "harm term detected"))

	term, ok = s.DetectTerm("nothing to see")
	assert.False(t, ok)
	assert.Empty(t, term)
}
