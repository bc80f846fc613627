package markov

import "errors"

var (
	// ErrInvalidInput indicates malformed caller input: an empty token
	// sequence, a non-positive order or weight, or a substitution pattern
	// that does not compile.
	ErrInvalidInput = errors.New("markov: invalid input")

	// ErrNotTrained indicates that Finalize was called on a model that has
	// never seen training data, or whose start set came out empty.
	ErrNotTrained = errors.New("markov: model has no training data")

	// ErrAlreadyFinalized indicates a second Finalize call, or an attempt
	// to train a model after finalization. Weights are normalized exactly
	// once; re-normalizing them would corrupt the distributions.
	ErrAlreadyFinalized = errors.New("markov: model already finalized")

	// ErrUntrainedQuery indicates that sampling or snapshotting was
	// attempted before Finalize.
	ErrUntrainedQuery = errors.New("markov: model not finalized")
)
