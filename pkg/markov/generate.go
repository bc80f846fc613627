package markov

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// RetryPolicy bounds the regenerate-on-short-sentence loop. The zero value
// retries without limit, matching the original behavior; RetryLimit caps
// the number of attempts.
type RetryPolicy struct {
	maxAttempts int
}

// RetryUnbounded retries rejected sentences until an acceptable one appears.
func RetryUnbounded() RetryPolicy { return RetryPolicy{} }

// RetryLimit retries rejected sentences at most n times, then keeps the
// last candidate. Values below 1 are treated as 1.
func RetryLimit(n int) RetryPolicy {
	if n < 1 {
		n = 1
	}
	return RetryPolicy{maxAttempts: n}
}

// Generator assembles sampled tokens into sentences and paragraphs. It
// borrows a finalized FrequencyModel without copying it; any number of
// Generators may share one model.
type Generator struct {
	model           *FrequencyModel
	rng             *rand.Rand
	retry           RetryPolicy
	allowSingleRune bool
	subs            []Substitution
	logger          *slog.Logger
}

// GeneratorOption configures a Generator at construction time.
type GeneratorOption func(*Generator)

// WithGenerationRand sets the random source used for start-token selection
// and paragraph-break coin flips. Fixing it (together with the model's
// source) makes generation fully deterministic.
func WithGenerationRand(rng *rand.Rand) GeneratorOption {
	return func(g *Generator) {
		if rng != nil {
			g.rng = rng
		}
	}
}

// WithRetryPolicy sets the policy for regenerating rejected short sentences.
func WithRetryPolicy(p RetryPolicy) GeneratorOption {
	return func(g *Generator) { g.retry = p }
}

// WithSingleCharacterSentences permits sentences whose content is a single
// character. By default such sentences are rejected and regenerated, with
// the pronoun "I" exempted.
func WithSingleCharacterSentences(allow bool) GeneratorOption {
	return func(g *Generator) { g.allowSingleRune = allow }
}

// WithSubstitutions replaces the default final-substitution list.
func WithSubstitutions(subs []Substitution) GeneratorOption {
	return func(g *Generator) { g.subs = slices.Clone(subs) }
}

// NewGenerator creates a Generator over model, which must be finalized.
func NewGenerator(model *FrequencyModel, opts ...GeneratorOption) (*Generator, error) {
	if model == nil || !model.Finalized() {
		return nil, fmt.Errorf("%w: generator requires a finalized model", ErrUntrainedQuery)
	}
	g := &Generator{
		model:  model,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		retry:  RetryUnbounded(),
		subs:   DefaultSubstitutions(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// SetLogger sets the logger for the Generator. By default, all logs are discarded.
func (g *Generator) SetLogger(logger *slog.Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// Substitutions returns a copy of the current final-substitution list.
func (g *Generator) Substitutions() []Substitution {
	return slices.Clone(g.subs)
}

// SetSubstitutions replaces the final-substitution list wholesale.
func (g *Generator) SetSubstitutions(subs []Substitution) {
	g.subs = slices.Clone(subs)
}

// AddSubstitution inserts sub at position, or appends it when position is
// negative or past the end of the list.
func (g *Generator) AddSubstitution(sub Substitution, position int) {
	if position < 0 || position >= len(g.subs) {
		g.subs = append(g.subs, sub)
		return
	}
	g.subs = slices.Insert(g.subs, position, sub)
}

// RemoveSubstitution removes the first substitution whose source pattern
// equals pattern, reporting whether one was found.
func (g *Generator) RemoveSubstitution(pattern string) bool {
	for i, s := range g.subs {
		if s.source == pattern {
			g.subs = slices.Delete(g.subs, i, i+1)
			return true
		}
	}
	return false
}

// Sentence generates one sentence: a uniformly random start token, then
// repeated SampleNext calls until sentence-ending punctuation appears. A
// result whose content is a single character other than "I" is rejected
// and regenerated from a fresh start draw, subject to the retry policy;
// if the policy's attempts run out the last candidate is returned rather
// than failing.
func (g *Generator) Sentence() (string, error) {
	attempts := 0
	for {
		attempts++
		sent, err := g.sentenceOnce()
		if err != nil {
			return "", err
		}
		if g.allowSingleRune || !g.rejectsShort(sent) {
			return sent, nil
		}
		if g.retry.maxAttempts > 0 && attempts >= g.retry.maxAttempts {
			g.logger.Debug("Short-sentence retries exhausted",
				slog.Int("attempts", attempts),
				slog.String("sentence", sent),
			)
			return sent, nil
		}
	}
}

func (g *Generator) sentenceOnce() (string, error) {
	punct := g.model.punct
	curr := g.model.starts[g.rng.IntN(len(g.model.starts))]

	var b strings.Builder
	b.WriteString(curr)

	window := make([]string, 0, g.model.order)
	window = append(window, curr)

	for !punct.IsSentenceEnd(curr) {
		next, err := g.model.SampleNext(window)
		if err != nil {
			return "", err
		}
		prev := curr
		curr = next
		window = append(window, curr)
		if len(window) > g.model.order {
			window = window[1:]
		}
		// Spacing policy: character models join directly; word models put a
		// space between tokens unless the new token attaches backward or
		// the previous one attaches forward.
		if !g.model.charTokens && !punct.IsNoSpaceBefore(curr) && !punct.IsNoSpaceAfter(prev) {
			b.WriteByte(' ')
		}
		b.WriteString(curr)
	}

	return capitalizeFirst(b.String()), nil
}

// rejectsShort reports whether sent should be regenerated: its content,
// after stripping whitespace and sentence-ending punctuation, is exactly
// one character and is not the pronoun "I".
func (g *Generator) rejectsShort(sent string) bool {
	residual := strings.TrimSpace(sent)
	residual = strings.Trim(residual, g.model.punct.SentenceEnd)
	residual = strings.TrimSpace(residual)
	if utf8.RuneCountInString(residual) != 1 {
		return false
	}
	return !strings.EqualFold(residual, "I")
}

// capitalizeFirst upper-cases the first alphanumeric rune of s.
func capitalizeFirst(s string) string {
	for i, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			upper := unicode.ToUpper(r)
			if upper == r {
				return s
			}
			return s[:i] + string(upper) + s[i+utf8.RuneLen(r):]
		}
	}
	return s
}

// ProduceStream lazily generates paragraphs, sending each on the returned
// channel as it is assembled. Sentences are joined with single spaces;
// after every sentence a weighted coin (probability breakProb) decides
// whether to flush the accumulated text as a paragraph, and the final
// sentence always flushes. The channel closes after the last paragraph,
// or early if ctx is cancelled. sentences == 0 yields no paragraphs.
func (g *Generator) ProduceStream(ctx context.Context, sentences int, breakProb float64) (<-chan string, error) {
	if sentences < 0 {
		return nil, fmt.Errorf("%w: sentence count must be non-negative, got %d", ErrInvalidInput, sentences)
	}
	if breakProb < 0 || breakProb > 1 {
		return nil, fmt.Errorf("%w: paragraph break probability must be in [0,1], got %v", ErrInvalidInput, breakProb)
	}

	out := make(chan string)
	go func() {
		defer close(out)

		var text strings.Builder
		for i := 0; i < sentences; i++ {
			sent, err := g.Sentence()
			if err != nil {
				g.logger.Error("Sentence generation failed mid-stream", slog.Any("error", err))
				return
			}
			if text.Len() > 0 {
				text.WriteByte(' ')
			}
			text.WriteString(sent)

			// Strict inequality: breakProb 0 never breaks except the forced
			// final flush, breakProb 1 breaks after every sentence.
			if g.rng.Float64() < breakProb || i == sentences-1 {
				para := strings.TrimSpace(text.String())
				for _, sub := range g.subs {
					para = sub.Apply(para)
				}
				select {
				case <-ctx.Done():
					g.logger.Debug("Paragraph stream cancelled by context")
					return
				case out <- para:
				}
				text.Reset()
			}
		}
	}()
	return out, nil
}

// Produce generates all paragraphs eagerly and returns them as a slice.
func (g *Generator) Produce(sentences int, breakProb float64) ([]string, error) {
	stream, err := g.ProduceStream(context.Background(), sentences, breakProb)
	if err != nil {
		return nil, err
	}
	var paragraphs []string
	for para := range stream {
		paragraphs = append(paragraphs, para)
	}
	return paragraphs, nil
}

// Text generates paragraphs and joins them with blank lines.
func (g *Generator) Text(sentences int, breakProb float64) (string, error) {
	paragraphs, err := g.Produce(sentences, breakProb)
	if err != nil {
		return "", err
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

// HTMLFragment generates paragraphs wrapped in <p> tags, suitable for
// inserting into a larger HTML document. It does not produce a complete
// document.
func (g *Generator) HTMLFragment(sentences int, breakProb float64) (string, error) {
	paragraphs, err := g.Produce(sentences, breakProb)
	if err != nil {
		return "", err
	}
	wrapped := make([]string, len(paragraphs))
	for i, para := range paragraphs {
		wrapped[i] = "<p>" + para + "</p>"
	}
	return strings.Join(wrapped, "\n\n"), nil
}
