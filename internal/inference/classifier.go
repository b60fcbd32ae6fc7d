package inference

import (
	"context"
	"fmt"
	"math/rand"
)

const (
	// VocabSize bounds token values.
	VocabSize = 10000
	// SequenceLength is the fixed number of tokens a prompt is cut or padded to.
	SequenceLength = 10
	// DefaultClasses is the number of output classes.
	DefaultClasses = 2
	// DefaultSeed seeds the classifier weights.
	DefaultSeed int64 = 1
)

// ClassifierProvider is an offline Provider that needs no model service.
// It maps a prompt to one of a fixed number of classes with a linear scorer
// over character tokens and replies "Predicted class: N". Equal prompts
// always get equal replies for a given seed.
type ClassifierProvider struct {
	weights [][]float64
}

// ClassifierOption configures a ClassifierProvider.
type ClassifierOption func(*classifierOptions)

type classifierOptions struct {
	classes int
	seed    int64
}

// WithClasses sets the number of output classes. Values below 1 are ignored.
func WithClasses(n int) ClassifierOption {
	return func(o *classifierOptions) {
		if n > 0 {
			o.classes = n
		}
	}
}

// WithSeed sets the seed the weights are drawn from.
func WithSeed(seed int64) ClassifierOption {
	return func(o *classifierOptions) {
		o.seed = seed
	}
}

// NewClassifierProvider creates a classifier with weights drawn from its seed.
func NewClassifierProvider(opts ...ClassifierOption) *ClassifierProvider {
	o := classifierOptions{classes: DefaultClasses, seed: DefaultSeed}
	for _, opt := range opts {
		opt(&o)
	}

	rng := rand.New(rand.NewSource(o.seed))
	weights := make([][]float64, o.classes)
	for c := range weights {
		weights[c] = make([]float64, SequenceLength)
		for i := range weights[c] {
			weights[c][i] = rng.Float64()*2 - 1
		}
	}
	return &ClassifierProvider{weights: weights}
}

// Classes reports the number of output classes.
func (p *ClassifierProvider) Classes() int {
	return len(p.weights)
}

// Tokenize maps each character to its code point modulo VocabSize, then cuts
// or zero-pads the result to SequenceLength.
func Tokenize(prompt string) []int {
	tokens := make([]int, 0, SequenceLength)
	for _, r := range prompt {
		if len(tokens) == SequenceLength {
			break
		}
		tokens = append(tokens, int(r)%VocabSize)
	}
	for len(tokens) < SequenceLength {
		tokens = append(tokens, 0)
	}
	return tokens
}

// Classify returns the highest scoring class for prompt. Ties go to the
// lowest class index.
func (p *ClassifierProvider) Classify(prompt string) int {
	tokens := Tokenize(prompt)

	best, bestScore := 0, 0.0
	for c, w := range p.weights {
		var score float64
		for i, tok := range tokens {
			score += w[i] * float64(tok) / VocabSize
		}
		if c == 0 || score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

// Respond implements Provider.
func (p *ClassifierProvider) Respond(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Predicted class: %d", p.Classify(prompt)), nil
}

var _ Provider = (*ClassifierProvider)(nil)
