package markov

import (
	"strings"
	"unicode/utf8"
)

// PunctuationPolicy describes how punctuation tokens behave during training
// and generation. Each class is a string of runes; a token belongs to a class
// when it is exactly one rune long and that rune appears in the class string.
// The zero value is not useful; start from DefaultPunctuation.
type PunctuationPolicy struct {
	// SentenceEnd lists the runes that terminate a sentence.
	SentenceEnd string
	// SpaceAfter lists punctuation runes normally followed by a space.
	// Tokens in this class are never learned as sentence starters.
	SpaceAfter string
	// NoSpaceBefore lists runes that attach directly to the preceding token.
	NoSpaceBefore string
	// NoSpaceAfter lists runes that attach directly to the following token.
	NoSpaceAfter string
	// Terminator is the token emitted when sampling falls off the end of
	// the transition table and the sentence must be forced closed.
	Terminator string
}

// DefaultPunctuation returns the policy used by the original generator,
// including the em dash, horizontal bar, and one-dot leader (U+2024) that
// the default substitutions later clean up.
func DefaultPunctuation() PunctuationPolicy {
	return PunctuationPolicy{
		SentenceEnd:   `.!?`,
		SpaceAfter:    `.,:!?;`,
		NoSpaceBefore: ".,!?;—․-:/",
		NoSpaceAfter:  "—-/․",
		Terminator:    ".",
	}
}

// inClass reports whether tok is a single rune belonging to class.
func inClass(tok, class string) bool {
	if utf8.RuneCountInString(tok) != 1 {
		return false
	}
	r, _ := utf8.DecodeRuneInString(tok)
	return strings.ContainsRune(class, r)
}

// IsSentenceEnd reports whether tok terminates a sentence.
func (p PunctuationPolicy) IsSentenceEnd(tok string) bool {
	return inClass(tok, p.SentenceEnd)
}

// HasSpaceAfter reports whether tok is punctuation normally followed by a
// space (and therefore ineligible to start a sentence).
func (p PunctuationPolicy) HasSpaceAfter(tok string) bool {
	return inClass(tok, p.SpaceAfter)
}

// IsNoSpaceBefore reports whether tok attaches to the preceding token.
func (p PunctuationPolicy) IsNoSpaceBefore(tok string) bool {
	return inClass(tok, p.NoSpaceBefore)
}

// IsNoSpaceAfter reports whether tok attaches to the following token.
func (p PunctuationPolicy) IsNoSpaceAfter(tok string) bool {
	return inClass(tok, p.NoSpaceAfter)
}
