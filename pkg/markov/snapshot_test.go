package markov

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"
)

func TestSnapshotRequiresFinalizedModel(t *testing.T) {
	m, err := NewModel(1)
	if err != nil {
		t.Fatalf("NewModel() failed: %v", err)
	}
	if _, err := m.Snapshot(); !errors.Is(err, ErrUntrainedQuery) {
		t.Errorf("Snapshot before Finalize: expected ErrUntrainedQuery, got %v", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	corpus := strings.Fields("one fish two fish . red fish blue fish .")
	original := newTestModel(t, 2, corpus)

	snap, err := original.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, snap); err != nil {
		t.Fatalf("WriteSnapshot() failed: %v", err)
	}
	decoded, err := ReadSnapshot(&buf)
	if err != nil {
		t.Fatalf("ReadSnapshot() failed: %v", err)
	}

	restored, err := FromSnapshot(decoded)
	if err != nil {
		t.Fatalf("FromSnapshot() failed: %v", err)
	}

	if restored.Order() != original.Order() {
		t.Errorf("restored order = %d, want %d", restored.Order(), original.Order())
	}
	if restored.CharacterTokens() != original.CharacterTokens() {
		t.Errorf("restored character flag = %v, want %v", restored.CharacterTokens(), original.CharacterTokens())
	}
	if !restored.Finalized() {
		t.Error("restored model is not finalized")
	}
	if !slices.Equal(restored.starts, original.starts) {
		t.Errorf("restored starts = %v, want %v", restored.starts, original.starts)
	}
	if len(restored.table) != len(original.table) {
		t.Errorf("restored table has %d contexts, want %d", len(restored.table), len(original.table))
	}

	// Equivalent models driven by identical random sources sample identically.
	original.rng = rand.New(rand.NewPCG(41, 42))
	restored.rng = rand.New(rand.NewPCG(41, 42))
	for i := 0; i < 100; i++ {
		a, err := original.SampleNext([]string{"fish"})
		if err != nil {
			t.Fatalf("SampleNext() failed on original: %v", err)
		}
		b, err := restored.SampleNext([]string{"fish"})
		if err != nil {
			t.Fatalf("SampleNext() failed on restored: %v", err)
		}
		if a != b {
			t.Fatalf("sample %d diverged: original %q, restored %q", i, a, b)
		}
	}
}

func TestSnapshotIsStable(t *testing.T) {
	m := newTestModel(t, 2, strings.Fields("a b c . a c b ."))

	var first, second bytes.Buffer
	snap1, err := m.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	snap2, err := m.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if err := WriteSnapshot(&first, snap1); err != nil {
		t.Fatalf("WriteSnapshot() failed: %v", err)
	}
	if err := WriteSnapshot(&second, snap2); err != nil {
		t.Fatalf("WriteSnapshot() failed: %v", err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("repeated snapshots of the same model are not byte-identical")
	}
}

func TestFromSnapshotValidation(t *testing.T) {
	valid := func() *Snapshot {
		return &Snapshot{
			Order:  1,
			Starts: []string{"a"},
			Contexts: []ContextEntry{
				{Context: []string{"a"}, Next: []Transition{{Token: ".", Probability: 1.0}}},
			},
		}
	}

	testCases := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{"zero order", func(s *Snapshot) { s.Order = 0 }},
		{"no starts", func(s *Snapshot) { s.Starts = nil }},
		{"empty context", func(s *Snapshot) { s.Contexts[0].Context = nil }},
		{"context longer than order", func(s *Snapshot) { s.Contexts[0].Context = []string{"a", "b"} }},
		{"no transitions", func(s *Snapshot) { s.Contexts[0].Next = nil }},
		{"negative probability", func(s *Snapshot) { s.Contexts[0].Next[0].Probability = -0.5 }},
		{"probabilities do not sum to one", func(s *Snapshot) { s.Contexts[0].Next[0].Probability = 0.5 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			snap := valid()
			tc.mutate(snap)
			if _, err := FromSnapshot(snap); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	if _, err := FromSnapshot(nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("FromSnapshot(nil): expected ErrInvalidInput, got %v", err)
	}
	if _, err := FromSnapshot(valid()); err != nil {
		t.Errorf("FromSnapshot on valid snapshot failed: %v", err)
	}
}

func TestReadSnapshotRejectsGarbage(t *testing.T) {
	if _, err := ReadSnapshot(strings.NewReader("{not json")); err == nil {
		t.Error("expected an error decoding malformed snapshot data")
	}
}
