// Package tokenizer defines the text-to-token-id collaborator used by the
// embedding service.
package tokenizer

import "context"

// Tokenizer splits text into token ids valid as rows of an embedding table.
// The returned strings are the display form of each token, in the same order.
type Tokenizer interface {
	Tokenize(ctx context.Context, text string) ([]int64, []string, error)
}

// Detokenizer maps token ids back to text.
type Detokenizer interface {
	Detokenize(ctx context.Context, ids []int64) (string, error)
}
