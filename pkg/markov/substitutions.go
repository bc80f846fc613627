package markov

import (
	"fmt"
	"regexp"
)

// Substitution is one ordered rewrite applied to assembled paragraphs:
// a compiled regular expression and its replacement text. Substitutions
// are configuration, not logic; Generators expose their list for
// inspection and wholesale replacement.
type Substitution struct {
	pattern     *regexp.Regexp
	source      string
	replacement string
}

// NewSubstitution compiles pattern and pairs it with replacement. The
// replacement may use $1-style group references. A pattern that does not
// compile is caller error and returns ErrInvalidInput.
func NewSubstitution(pattern, replacement string) (Substitution, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Substitution{}, fmt.Errorf("%w: bad substitution pattern %q: %v", ErrInvalidInput, pattern, err)
	}
	return Substitution{pattern: re, source: pattern, replacement: replacement}, nil
}

// mustSubstitution builds the package defaults, whose patterns are known good.
func mustSubstitution(pattern, replacement string) Substitution {
	s, err := NewSubstitution(pattern, replacement)
	if err != nil {
		panic(err)
	}
	return s
}

// Pattern returns the source pattern the substitution was compiled from.
func (s Substitution) Pattern() string { return s.source }

// Replacement returns the replacement text.
func (s Substitution) Replacement() string { return s.replacement }

// Apply performs the rewrite on text.
func (s Substitution) Apply(text string) string {
	if s.pattern == nil {
		return text
	}
	return s.pattern.ReplaceAllString(text, s.replacement)
}

// DefaultSubstitutions returns the standard cleanup pass: collapsing doubled
// punctuation, normalizing dash and ellipsis glyphs, turning one-dot leaders
// back into periods, and removing spacing artifacts around numerals. The
// rewrites run in exactly this order.
func DefaultSubstitutions() []Substitution {
	return []Substitution{
		mustSubstitution(`--`, "—"),
		mustSubstitution(`\.\.\.`, "…"),
		mustSubstitution(`․`, "."),
		mustSubstitution(`\.\.`, "."),
		mustSubstitution(` ' `, ""),
		mustSubstitution(`――`, "―"),
		mustSubstitution(`―-`, "―"),
		mustSubstitution(`:—`, ": "),
		mustSubstitution(`\n' `, "\n"),
		mustSubstitution(`<p>'`, "<p>"),
		mustSubstitution(`<p> `, "<p>"),
		mustSubstitution(`<p></p>`, ""),
		mustSubstitution(`- `, "-"),
		mustSubstitution(`—-`, "—"),
		mustSubstitution(`——`, "—"),
		mustSubstitution(`([0-9]),\s([0-9])`, "$1,$2"),
		mustSubstitution(`([0-9]):\s([0-9])`, "$1:$2"),
	}
}
