package domain

import (
	"context"
	"errors"
)

// Store-level failures. Both are fatal for the query that hit them; the
// pipeline never synthesizes a partial answer over incomplete results.
var (
	// ErrStoreUnavailable signals the passage store could not be reached.
	ErrStoreUnavailable = errors.New("passage store unavailable")
	// ErrStoreTimeout signals a store query exceeded its deadline.
	ErrStoreTimeout = errors.New("passage store query timed out")
)

// SearchFilter is an exact-match constraint on passage metadata. Zero
// values mean unfiltered. A filtered search must never return a passage
// violating the filter, regardless of its score.
type SearchFilter struct {
	Unit     string
	Category Category
}

// PassageStore is the query contract the retrieval engine issues against
// the vector index. Results are ordered by descending similarity score
// with ties broken by passage insertion order.
type PassageStore interface {
	// SimilaritySearch returns up to limit passages ranked by similarity
	// to the query vector, optionally restricted by an exact metadata
	// filter. filter may be nil.
	SimilaritySearch(ctx context.Context, queryVector []float32, filter *SearchFilter, limit int) ([]ScoredPassage, error)

	// DeleteBySource removes all passages belonging to one source URL.
	// Used by ingestion only, inside a transaction.
	DeleteBySource(ctx context.Context, sourceURL string) error

	// BulkInsert stores a batch of passages with embeddings.
	BulkInsert(ctx context.Context, passages []Passage) error
}

// TransactionManager runs a function within a database transaction
// propagated through the context.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
