package markov

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// contextSep joins context tokens into map keys. The unit separator cannot
// appear in any token produced by the tokenizers, so joined keys are
// unambiguous regardless of token content.
const contextSep = "\x1f"

// Transition is one weighted edge out of a context: a candidate next token
// and, on a finalized model, its probability.
type Transition struct {
	Token       string  `json:"token"`
	Probability float64 `json:"probability"`
}

// FrequencyModel is an order-k Markov chain over string tokens. It is built
// in three phases: zero or more Train calls accumulate weighted transition
// counts, Finalize normalizes the counts into probability distributions and
// locks the model, and SampleNext queries the finalized distributions.
//
// A finalized model is immutable apart from its random source and may be
// read by any number of Generators.
type FrequencyModel struct {
	order      int
	charTokens bool
	punct      PunctuationPolicy
	rng        *rand.Rand
	logger     *slog.Logger

	counts    map[string]map[string]float64
	starts    []string
	startSeen map[string]struct{}
	trained   bool
	finalized bool

	// table replaces counts after finalization. Each distribution is kept
	// sorted by descending probability, then token text, so that the
	// inverse-CDF walk visits candidates in a fixed order.
	table map[string][]Transition
}

// ModelOption configures a FrequencyModel at construction time.
type ModelOption func(*FrequencyModel)

// WithCharacterTokens marks the model as character-based. Character models
// add no spaces between tokens during generation, and Finalize restricts
// their start set to uppercase letters so output begins capitalized.
func WithCharacterTokens() ModelOption {
	return func(m *FrequencyModel) { m.charTokens = true }
}

// WithPunctuation overrides the punctuation policy used for start-token
// learning and sentence-boundary detection.
func WithPunctuation(p PunctuationPolicy) ModelOption {
	return func(m *FrequencyModel) { m.punct = p }
}

// WithRandSource sets the random source used by SampleNext. Fixing the
// source makes sampling deterministic, which tests rely on.
func WithRandSource(rng *rand.Rand) ModelOption {
	return func(m *FrequencyModel) {
		if rng != nil {
			m.rng = rng
		}
	}
}

// NewModel creates an empty model of the given chain order. Order is the
// maximum context length tracked; it must be at least 1.
func NewModel(order int, opts ...ModelOption) (*FrequencyModel, error) {
	if order < 1 {
		return nil, fmt.Errorf("%w: chain order must be >= 1, got %d", ErrInvalidInput, order)
	}
	m := &FrequencyModel{
		order:     order,
		punct:     DefaultPunctuation(),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		counts:    make(map[string]map[string]float64),
		startSeen: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// SetLogger sets the logger for the model. By default, all logs are discarded.
func (m *FrequencyModel) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Order returns the configured chain order.
func (m *FrequencyModel) Order() int { return m.order }

// CharacterTokens reports whether the model treats tokens as characters.
func (m *FrequencyModel) CharacterTokens() bool { return m.charTokens }

// Finalized reports whether Finalize has been called.
func (m *FrequencyModel) Finalized() bool { return m.finalized }

// Punctuation returns the model's punctuation policy.
func (m *FrequencyModel) Punctuation() PunctuationPolicy { return m.punct }

// trainOptions holds per-call training parameters.
type trainOptions struct {
	weight      float64
	learnStarts bool
}

// TrainOption configures a single Train call.
type TrainOption func(*trainOptions)

// WithWeight scales the contribution of one training batch, allowing
// several corpora to be blended with different influence. Weight must be
// positive; the default is 1.
func WithWeight(w float64) TrainOption {
	return func(o *trainOptions) { o.weight = w }
}

// WithoutStartLearning disables start-set learning for one batch. The
// batch's transitions still count, but none of its tokens become eligible
// sentence starters (beyond the batch's very first token).
func WithoutStartLearning() TrainOption {
	return func(o *trainOptions) { o.learnStarts = false }
}

// Train feeds one ordered token sequence into the model. For every position
// with a successor, the following token is registered under the trailing
// context ending at that position and under every shorter suffix of it,
// down to length 1. Registering all suffix lengths is what guarantees that
// context-shortening fallback during sampling always finds an entry.
//
// Train may be called any number of times before Finalize; calling it on a
// finalized model returns ErrAlreadyFinalized.
func (m *FrequencyModel) Train(tokens []string, opts ...TrainOption) error {
	if m.finalized {
		return fmt.Errorf("%w: cannot train after finalization", ErrAlreadyFinalized)
	}
	if len(tokens) == 0 {
		return fmt.Errorf("%w: empty token sequence", ErrInvalidInput)
	}

	o := trainOptions{weight: 1.0, learnStarts: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.weight <= 0 {
		return fmt.Errorf("%w: training weight must be positive, got %v", ErrInvalidInput, o.weight)
	}

	// The first token of any batch can always open a sentence.
	m.addStart(tokens[0])

	for i := 0; i+1 < len(tokens); i++ {
		lo := i + 1 - m.order
		if lo < 0 {
			lo = 0
		}
		history := tokens[lo : i+1]
		follow := tokens[i+1]

		for s := range history {
			m.addCount(history[s:], follow, o.weight)
		}

		if o.learnStarts && m.punct.IsSentenceEnd(history[len(history)-1]) && !m.punct.HasSpaceAfter(follow) {
			m.addStart(follow)
		}
	}

	m.trained = true
	m.logger.Debug("Training batch absorbed",
		slog.Int("tokens", len(tokens)),
		slog.Float64("weight", o.weight),
		slog.Int("contexts", len(m.counts)),
	)
	return nil
}

func (m *FrequencyModel) addCount(context []string, follow string, weight float64) {
	key := strings.Join(context, contextSep)
	next, ok := m.counts[key]
	if !ok {
		next = make(map[string]float64)
		m.counts[key] = next
	}
	next[follow] += weight
}

func (m *FrequencyModel) addStart(tok string) {
	if _, ok := m.startSeen[tok]; ok {
		return
	}
	m.startSeen[tok] = struct{}{}
	m.starts = append(m.starts, tok)
}

// Finalize normalizes the accumulated counts into probability distributions
// and locks the model. For character models it also restricts the start set
// to uppercase letters, so generated words begin capitalized. Finalize may
// be called exactly once; a second call returns ErrAlreadyFinalized rather
// than silently re-normalizing already-normalized weights.
func (m *FrequencyModel) Finalize() error {
	if m.finalized {
		return ErrAlreadyFinalized
	}
	if !m.trained || len(m.starts) == 0 {
		return fmt.Errorf("%w: nothing to finalize", ErrNotTrained)
	}

	if m.charTokens {
		kept := m.starts[:0]
		for _, tok := range m.starts {
			if isUpperToken(tok) {
				kept = append(kept, tok)
			}
		}
		m.starts = kept
		if len(m.starts) == 0 {
			return fmt.Errorf("%w: no uppercase start tokens in character model", ErrNotTrained)
		}
	}

	m.table = make(map[string][]Transition, len(m.counts))
	for key, next := range m.counts {
		var total float64
		for _, w := range next {
			total += w
		}
		dist := make([]Transition, 0, len(next))
		for tok, w := range next {
			dist = append(dist, Transition{Token: tok, Probability: w / total})
		}
		slices.SortFunc(dist, compareTransitions)
		m.table[key] = dist
	}
	m.counts = nil
	m.finalized = true

	m.logger.Info("Model finalized",
		slog.Int("order", m.order),
		slog.Int("contexts", len(m.table)),
		slog.Int("start_tokens", len(m.starts)),
		slog.Bool("character_tokens", m.charTokens),
	)
	return nil
}

// compareTransitions orders a distribution by descending probability, then
// token text. A fixed order keeps inverse-CDF sampling (and its last-token
// rounding fallback) deterministic under a fixed random source.
func compareTransitions(a, b Transition) int {
	switch {
	case a.Probability > b.Probability:
		return -1
	case a.Probability < b.Probability:
		return 1
	}
	return strings.Compare(a.Token, b.Token)
}

func isUpperToken(tok string) bool {
	if utf8.RuneCountInString(tok) != 1 {
		return false
	}
	r, _ := utf8.DecodeRuneInString(tok)
	return unicode.IsUpper(r)
}

// SampleNext draws the token following history from the finalized model.
// Only the trailing Order tokens of history are relevant. If the exact
// context is unknown, the oldest token is dropped and the lookup retried;
// the suffix-registration invariant means this terminates at length 1 for
// any context seen in training. A history that empties without a match is
// defensively resolved to the policy's terminator token so that a sentence
// in progress closes instead of the call failing.
func (m *FrequencyModel) SampleNext(history []string) (string, error) {
	if !m.finalized {
		return "", fmt.Errorf("%w: SampleNext requires a finalized model", ErrUntrainedQuery)
	}
	if len(history) > m.order {
		history = history[len(history)-m.order:]
	}

	for len(history) > 0 {
		dist, ok := m.table[strings.Join(history, contextSep)]
		if !ok {
			history = history[1:]
			continue
		}
		return pickFromDistribution(dist, m.rng.Float64()), nil
	}

	// Unreachable for contexts built from trained tokens, but a caller may
	// hand us arbitrary history. End the sentence rather than fail.
	m.logger.Debug("Context exhausted without a match, forcing terminator")
	return m.punct.Terminator, nil
}

// pickFromDistribution walks the cumulative distribution until it covers u.
// If floating-point rounding keeps the accumulated mass below u, the last
// candidate is returned so the draw always resolves.
func pickFromDistribution(dist []Transition, u float64) string {
	var cum float64
	for _, tr := range dist {
		cum += tr.Probability
		if cum >= u {
			return tr.Token
		}
	}
	return dist[len(dist)-1].Token
}
