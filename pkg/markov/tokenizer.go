package markov

import (
	"regexp"
	"strings"
)

// Mode selects the unit of tokenization.
type Mode int

const (
	// ModeWords splits text into word-like runs and standalone punctuation.
	ModeWords Mode = iota
	// ModeCharacters splits text into individual runes, whitespace included,
	// so the chain recombines characters into invented words.
	ModeCharacters
)

// Tokenizer converts raw text into the token sequences FrequencyModel
// trains on. The word pattern and the per-token normalization hook can be
// customized with functional options.
type Tokenizer struct {
	wordRegex *regexp.Regexp
	normalize func(string) string
}

// TokenizerOption configures a Tokenizer.
type TokenizerOption func(*Tokenizer)

// WithWordPattern sets the regex used to segment words and punctuation in
// ModeWords. The default keeps apostrophes and a few other marks inside
// words and emits common punctuation as standalone tokens.
func WithWordPattern(pattern string) TokenizerOption {
	return func(t *Tokenizer) {
		t.wordRegex = regexp.MustCompile(pattern)
	}
}

// WithNormalizer installs a token normalization strategy, applied to every
// token in both modes. Supplying strings.ToLower, for example, makes the
// model case-insensitive. The default keeps tokens as written.
func WithNormalizer(f func(string) string) TokenizerOption {
	return func(t *Tokenizer) {
		if f != nil {
			t.normalize = f
		}
	}
}

// NewTokenizer creates a tokenizer with default settings, which can be
// overridden by providing one or more TokenizerOption functions.
func NewTokenizer(opts ...TokenizerOption) *Tokenizer {
	t := &Tokenizer{
		// Word-internal punctuation (apostrophes, one-dot leader, etc.)
		// stays inside the word run; the second alternative emits the
		// listed punctuation marks as tokens of their own.
		wordRegex: regexp.MustCompile(`[\w'’❲❳%°#․$]+|[.,:\-!?;—/&…]`),
		normalize: func(s string) string { return s },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Tokenize splits text into tokens according to mode.
func (t *Tokenizer) Tokenize(text string, mode Mode) []string {
	var tokens []string
	if mode == ModeCharacters {
		tokens = make([]string, 0, len(text))
		for _, r := range text {
			tokens = append(tokens, string(r))
		}
	} else {
		tokens = t.wordRegex.FindAllString(text, -1)
	}
	for i, tok := range tokens {
		tokens[i] = t.normalize(tok)
	}
	return tokens
}

var (
	// An acronym directly ending a sentence: at least two letter-dot pairs,
	// then whitespace and a capital opening the next sentence.
	acronymAtSentenceEnd = regexp.MustCompile(`(?:[A-Z]\.){2,}\s[A-Z]`)
	// Any remaining acronym preceded by a period, whitespace, or the start
	// of the text. The capture group isolates the letter-dot pairs.
	acronymAnywhere = regexp.MustCompile(`(?:^|[.\s])((?:[A-Z]\.)+)`)
)

// PrepareAcronyms rewrites the periods inside acronyms as one-dot leaders
// (U+2024) so the word tokenizer treats each acronym as a single token.
// Acronyms that close a sentence get a real period appended so the chain
// still sees the sentence boundary. The default substitutions turn the
// leaders back into periods in generated output.
//
// This is a convenience preprocessor; nothing in the package calls it.
func PrepareAcronyms(text string) string {
	// Sentence-ending acronyms first: dot-leader the acronym, then restore
	// a genuine sentence-ending period before the following capital.
	var b strings.Builder
	rest := text
	for {
		loc := acronymAtSentenceEnd.FindStringIndex(rest)
		if loc == nil {
			b.WriteString(rest)
			break
		}
		match := rest[loc[0]:loc[1]]
		lastDot := strings.LastIndex(match, ".")
		b.WriteString(rest[:loc[0]])
		b.WriteString(strings.ReplaceAll(match[:lastDot+1], ".", "․"))
		b.WriteString(".")
		b.WriteString(match[lastDot+1:])
		rest = rest[loc[1]:]
	}

	// Then every acronym still carrying real periods.
	out := b.String()
	b.Reset()
	last := 0
	for _, idx := range acronymAnywhere.FindAllStringSubmatchIndex(out, -1) {
		start, end := idx[2], idx[3]
		b.WriteString(out[last:start])
		b.WriteString(strings.ReplaceAll(out[start:end], ".", "․"))
		last = end
	}
	b.WriteString(out[last:])
	return b.String()
}
