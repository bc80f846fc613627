package markov

import "strings"

// ModelStats holds aggregate figures for a model's transition structure.
type ModelStats struct {
	Contexts    int // unique context keys in the table
	Transitions int // unique context->token links
	Vocabulary  int // unique tokens appearing as context members or successors
	StartTokens int // tokens eligible to begin a sentence
}

// Stats returns a snapshot of the model's size. It works on both trained
// and finalized models.
func (m *FrequencyModel) Stats() ModelStats {
	vocab := make(map[string]struct{})
	stats := ModelStats{StartTokens: len(m.starts)}

	addContext := func(key string) {
		for _, tok := range strings.Split(key, contextSep) {
			vocab[tok] = struct{}{}
		}
	}

	if m.finalized {
		stats.Contexts = len(m.table)
		for key, dist := range m.table {
			addContext(key)
			stats.Transitions += len(dist)
			for _, tr := range dist {
				vocab[tr.Token] = struct{}{}
			}
		}
	} else {
		stats.Contexts = len(m.counts)
		for key, next := range m.counts {
			addContext(key)
			stats.Transitions += len(next)
			for tok := range next {
				vocab[tok] = struct{}{}
			}
		}
	}

	stats.Vocabulary = len(vocab)
	return stats
}
