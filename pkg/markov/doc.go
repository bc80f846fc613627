/*
Package markov builds order-k Markov chain models from token streams and
samples them to synthesize new, structurally similar text.

A FrequencyModel accumulates weighted token-transition counts over one or
more training passes, then Finalize normalizes the counts into probability
distributions and locks the model. A Generator borrows a finalized model
and assembles sampled tokens into sentences and paragraphs, applying
spacing, capitalization and punctuation policy along the way.

Tokenization is pluggable: the package ships a regex-based word tokenizer
and a character tokenizer, but any source of string tokens works. Finalized
models are immutable and may be shared by any number of Generators.
*/
package markov
