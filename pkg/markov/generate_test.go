package markov

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
)

// newTestGenerator wires a generator with a fixed random source over an
// already-finalized model.
func newTestGenerator(t *testing.T, m *FrequencyModel, opts ...GeneratorOption) *Generator {
	t.Helper()
	opts = append([]GeneratorOption{WithGenerationRand(rand.New(rand.NewPCG(3, 5)))}, opts...)
	g, err := NewGenerator(m, opts...)
	if err != nil {
		t.Fatalf("NewGenerator() failed: %v", err)
	}
	return g
}

func TestNewGeneratorRequiresFinalizedModel(t *testing.T) {
	m, err := NewModel(1)
	if err != nil {
		t.Fatalf("NewModel() failed: %v", err)
	}
	if _, err := NewGenerator(m); !errors.Is(err, ErrUntrainedQuery) {
		t.Errorf("NewGenerator on unfinalized model: expected ErrUntrainedQuery, got %v", err)
	}
	if _, err := NewGenerator(nil); !errors.Is(err, ErrUntrainedQuery) {
		t.Errorf("NewGenerator(nil): expected ErrUntrainedQuery, got %v", err)
	}
}

func TestSentenceAssembly(t *testing.T) {
	// Every context has exactly one successor, so the output is fixed no
	// matter what the random source does.
	testCases := []struct {
		name   string
		tokens []string
		want   string
	}{
		{
			name:   "words with spaces",
			tokens: []string{"the", "cat", "sat", "."},
			want:   "The cat sat.",
		},
		{
			name:   "no space before comma",
			tokens: []string{"a", ",", "b", "."},
			want:   "A, b.",
		},
		{
			name:   "no space around em dash",
			tokens: []string{"a", "—", "b", "."},
			want:   "A—b.",
		},
		{
			name:   "question mark ends sentence",
			tokens: []string{"why", "not", "?"},
			want:   "Why not?",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGenerator(t, newTestModel(t, 1, tc.tokens))
			got, err := g.Sentence()
			if err != nil {
				t.Fatalf("Sentence() failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("Sentence() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCharacterModeOmitsSpaces(t *testing.T) {
	m, err := NewModel(2, WithCharacterTokens(), WithRandSource(rand.New(rand.NewPCG(1, 1))))
	if err != nil {
		t.Fatalf("NewModel() failed: %v", err)
	}
	if err := m.Train([]string{"G", "o", "."}); err != nil {
		t.Fatalf("Train() failed: %v", err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}

	g := newTestGenerator(t, m)
	got, err := g.Sentence()
	if err != nil {
		t.Fatalf("Sentence() failed: %v", err)
	}
	if got != "Go." {
		t.Errorf("Sentence() = %q, want %q", got, "Go.")
	}
}

func TestShortSentenceRejection(t *testing.T) {
	// Starts are I, a, and b. "A." must always be rejected and regenerated;
	// "I." is exempt; "B c." is long enough.
	tokens := []string{"I", ".", "a", ".", "b", "c", "."}
	m := newTestModel(t, 1, tokens)
	g := newTestGenerator(t, m)

	for i := 0; i < 50; i++ {
		got, err := g.Sentence()
		if err != nil {
			t.Fatalf("Sentence() failed: %v", err)
		}
		if got != "I." && got != "B c." {
			t.Errorf("Sentence() = %q, want %q or %q", got, "I.", "B c.")
		}
	}
}

func TestShortSentenceRetryLimit(t *testing.T) {
	// The only reachable sentence is "A.", so an unbounded policy would
	// spin forever. The limit keeps the last candidate instead.
	m := newTestModel(t, 1, []string{"a", "."})
	g := newTestGenerator(t, m, WithRetryPolicy(RetryLimit(3)))

	got, err := g.Sentence()
	if err != nil {
		t.Fatalf("Sentence() failed: %v", err)
	}
	if got != "A." {
		t.Errorf("Sentence() = %q, want %q", got, "A.")
	}
}

func TestShortSentencesAllowed(t *testing.T) {
	m := newTestModel(t, 1, []string{"a", "."})
	g := newTestGenerator(t, m, WithSingleCharacterSentences(true))

	got, err := g.Sentence()
	if err != nil {
		t.Fatalf("Sentence() failed: %v", err)
	}
	if got != "A." {
		t.Errorf("Sentence() = %q, want %q", got, "A.")
	}
}

func TestProduceZeroSentences(t *testing.T) {
	g := newTestGenerator(t, newTestModel(t, 1, []string{"one", "fish", "."}))
	paragraphs, err := g.Produce(0, 0.5)
	if err != nil {
		t.Fatalf("Produce() failed: %v", err)
	}
	if len(paragraphs) != 0 {
		t.Errorf("Produce(0, 0.5) yielded %d paragraphs, want 0", len(paragraphs))
	}
}

func TestProduceSingleParagraph(t *testing.T) {
	g := newTestGenerator(t, newTestModel(t, 1, []string{"one", "fish", "."}))
	paragraphs, err := g.Produce(3, 0)
	if err != nil {
		t.Fatalf("Produce() failed: %v", err)
	}
	if len(paragraphs) != 1 {
		t.Fatalf("Produce(3, 0) yielded %d paragraphs, want 1", len(paragraphs))
	}
	if got := strings.Count(paragraphs[0], "."); got != 3 {
		t.Errorf("paragraph contains %d sentences, want 3: %q", got, paragraphs[0])
	}
	if paragraphs[0] != "One fish. One fish. One fish." {
		t.Errorf("paragraph = %q, want %q", paragraphs[0], "One fish. One fish. One fish.")
	}
}

func TestProduceBreakEverySentence(t *testing.T) {
	g := newTestGenerator(t, newTestModel(t, 1, []string{"one", "fish", "."}))
	paragraphs, err := g.Produce(3, 1)
	if err != nil {
		t.Fatalf("Produce() failed: %v", err)
	}
	if len(paragraphs) != 3 {
		t.Fatalf("Produce(3, 1) yielded %d paragraphs, want 3", len(paragraphs))
	}
	for _, para := range paragraphs {
		if para != "One fish." {
			t.Errorf("paragraph = %q, want %q", para, "One fish.")
		}
	}
}

func TestProduceArgumentValidation(t *testing.T) {
	g := newTestGenerator(t, newTestModel(t, 1, []string{"one", "fish", "."}))
	if _, err := g.Produce(-1, 0.5); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Produce(-1, 0.5): expected ErrInvalidInput, got %v", err)
	}
	if _, err := g.Produce(1, -0.1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Produce(1, -0.1): expected ErrInvalidInput, got %v", err)
	}
	if _, err := g.Produce(1, 1.5); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Produce(1, 1.5): expected ErrInvalidInput, got %v", err)
	}
}

func TestProduceStreamCancellation(t *testing.T) {
	g := newTestGenerator(t, newTestModel(t, 1, []string{"one", "fish", "."}))
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := g.ProduceStream(ctx, 1000, 1)
	if err != nil {
		t.Fatalf("ProduceStream() failed: %v", err)
	}

	if _, ok := <-stream; !ok {
		t.Fatal("stream closed before first paragraph")
	}
	cancel()

	// The producer may have one paragraph already queued for the send that
	// raced the cancellation, but must close shortly after.
	for range stream {
	}
}

func TestDeterministicGeneration(t *testing.T) {
	corpus := strings.Fields("one fish two fish . red fish blue fish . one red two blue .")

	build := func() *Generator {
		m, err := NewModel(2, WithRandSource(rand.New(rand.NewPCG(21, 22))))
		if err != nil {
			t.Fatalf("NewModel() failed: %v", err)
		}
		if err := m.Train(corpus); err != nil {
			t.Fatalf("Train() failed: %v", err)
		}
		if err := m.Finalize(); err != nil {
			t.Fatalf("Finalize() failed: %v", err)
		}
		g, err := NewGenerator(m, WithGenerationRand(rand.New(rand.NewPCG(23, 24))))
		if err != nil {
			t.Fatalf("NewGenerator() failed: %v", err)
		}
		return g
	}

	first, err := build().Text(10, 0.3)
	if err != nil {
		t.Fatalf("Text() failed: %v", err)
	}
	second, err := build().Text(10, 0.3)
	if err != nil {
		t.Fatalf("Text() failed: %v", err)
	}
	if first != second {
		t.Errorf("seeded generation not deterministic:\nfirst:  %q\nsecond: %q", first, second)
	}
}

func TestSubstitutionPass(t *testing.T) {
	// The model emits a double hyphen that the default substitutions fold
	// into an em dash.
	g := newTestGenerator(t, newTestModel(t, 1, []string{"a", "--", "b", "."}))
	got, err := g.Sentence()
	if err != nil {
		t.Fatalf("Sentence() failed: %v", err)
	}
	// Sentence() itself applies no substitutions; the pass runs per paragraph.
	if got != "A -- b." {
		t.Fatalf("Sentence() = %q, want %q", got, "A -- b.")
	}

	paragraphs, err := g.Produce(1, 0)
	if err != nil {
		t.Fatalf("Produce() failed: %v", err)
	}
	if paragraphs[0] != "A — b." {
		t.Errorf("paragraph = %q, want %q", paragraphs[0], "A — b.")
	}
}

func TestSubstitutionManagement(t *testing.T) {
	g := newTestGenerator(t, newTestModel(t, 1, []string{"one", "fish", "."}))

	defaults := g.Substitutions()
	if len(defaults) == 0 {
		t.Fatal("expected non-empty default substitution list")
	}

	sub, err := NewSubstitution(`fish`, "whale")
	if err != nil {
		t.Fatalf("NewSubstitution() failed: %v", err)
	}
	g.AddSubstitution(sub, 0)
	if got := g.Substitutions(); got[0].Pattern() != "fish" {
		t.Errorf("substitution not inserted at head: %q", got[0].Pattern())
	}

	paragraphs, err := g.Produce(1, 0)
	if err != nil {
		t.Fatalf("Produce() failed: %v", err)
	}
	if paragraphs[0] != "One whale." {
		t.Errorf("paragraph = %q, want %q", paragraphs[0], "One whale.")
	}

	if !g.RemoveSubstitution("fish") {
		t.Error("RemoveSubstitution failed to find the pattern")
	}
	if g.RemoveSubstitution("fish") {
		t.Error("RemoveSubstitution removed a pattern twice")
	}
	if len(g.Substitutions()) != len(defaults) {
		t.Errorf("substitution list length = %d, want %d", len(g.Substitutions()), len(defaults))
	}

	g.SetSubstitutions(nil)
	if len(g.Substitutions()) != 0 {
		t.Error("SetSubstitutions(nil) did not clear the list")
	}

	if _, err := NewSubstitution(`[`, "x"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("NewSubstitution with bad pattern: expected ErrInvalidInput, got %v", err)
	}
}

func TestHTMLFragment(t *testing.T) {
	g := newTestGenerator(t, newTestModel(t, 1, []string{"one", "fish", "."}))
	got, err := g.HTMLFragment(2, 1)
	if err != nil {
		t.Fatalf("HTMLFragment() failed: %v", err)
	}
	want := "<p>One fish.</p>\n\n<p>One fish.</p>"
	if got != want {
		t.Errorf("HTMLFragment() = %q, want %q", got, want)
	}
}
