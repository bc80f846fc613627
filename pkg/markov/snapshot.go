package markov

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"
)

// Snapshot is the serializable representation of a finalized model: chain
// order, token mode, start set, and the full transition table with
// normalized probabilities. An external persistence layer may write it in
// any format; round-tripping a Snapshot reproduces an equivalent,
// already-finalized model.
type Snapshot struct {
	Order           int            `json:"order"`
	CharacterTokens bool           `json:"character_tokens"`
	Starts          []string       `json:"starts"`
	Contexts        []ContextEntry `json:"contexts"`
}

// ContextEntry is one context and its outgoing probability distribution.
type ContextEntry struct {
	Context []string     `json:"context"`
	Next    []Transition `json:"next"`
}

// Snapshot exports the finalized model state. Contexts are emitted in a
// stable order so repeated exports of the same model are byte-identical.
func (m *FrequencyModel) Snapshot() (*Snapshot, error) {
	if !m.finalized {
		return nil, fmt.Errorf("%w: snapshot requires a finalized model", ErrUntrainedQuery)
	}

	keys := make([]string, 0, len(m.table))
	for key := range m.table {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	contexts := make([]ContextEntry, 0, len(keys))
	for _, key := range keys {
		contexts = append(contexts, ContextEntry{
			Context: strings.Split(key, contextSep),
			Next:    slices.Clone(m.table[key]),
		})
	}

	return &Snapshot{
		Order:           m.order,
		CharacterTokens: m.charTokens,
		Starts:          slices.Clone(m.starts),
		Contexts:        contexts,
	}, nil
}

// FromSnapshot reconstructs an already-finalized model from snap. The
// snapshot is validated structurally: order and start set must be present,
// every context needs at least one transition, and each distribution must
// sum to 1 within floating-point tolerance. Violations are reported as
// ErrInvalidInput. Options may override the punctuation policy or random
// source of the restored model.
func FromSnapshot(snap *Snapshot, opts ...ModelOption) (*FrequencyModel, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrInvalidInput)
	}
	if snap.Order < 1 {
		return nil, fmt.Errorf("%w: snapshot order must be >= 1, got %d", ErrInvalidInput, snap.Order)
	}
	if len(snap.Starts) == 0 {
		return nil, fmt.Errorf("%w: snapshot has no start tokens", ErrInvalidInput)
	}

	m, err := NewModel(snap.Order, opts...)
	if err != nil {
		return nil, err
	}
	m.charTokens = snap.CharacterTokens

	m.table = make(map[string][]Transition, len(snap.Contexts))
	for _, entry := range snap.Contexts {
		if len(entry.Context) == 0 || len(entry.Context) > snap.Order {
			return nil, fmt.Errorf("%w: snapshot context has length %d for order %d", ErrInvalidInput, len(entry.Context), snap.Order)
		}
		if len(entry.Next) == 0 {
			return nil, fmt.Errorf("%w: snapshot context %q has no transitions", ErrInvalidInput, strings.Join(entry.Context, " "))
		}
		var total float64
		for _, tr := range entry.Next {
			if tr.Probability < 0 {
				return nil, fmt.Errorf("%w: negative probability for token %q", ErrInvalidInput, tr.Token)
			}
			total += tr.Probability
		}
		if math.Abs(total-1.0) > 1e-9 {
			return nil, fmt.Errorf("%w: context %q probabilities sum to %v", ErrInvalidInput, strings.Join(entry.Context, " "), total)
		}
		dist := slices.Clone(entry.Next)
		slices.SortFunc(dist, compareTransitions)
		m.table[strings.Join(entry.Context, contextSep)] = dist
	}

	for _, tok := range snap.Starts {
		m.addStart(tok)
	}
	m.counts = nil
	m.trained = true
	m.finalized = true
	return m, nil
}

// WriteSnapshot encodes snap as indented JSON, for backups or transfer.
func WriteSnapshot(w io.Writer, snap *Snapshot) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode model snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot decodes a JSON snapshot written by WriteSnapshot.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode model snapshot: %w", err)
	}
	return &snap, nil
}
