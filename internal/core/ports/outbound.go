package ports

import (
	"context"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
)

// VectorIndex searches the corpus index with free text. Returned scores are
// normalized to [0,1] and results are ordered by score descending.
type VectorIndex interface {
	Search(ctx context.Context, text string, filter domain.ScopeFilter, topK int) ([]domain.Chunk, error)
}

// Embedder builds vectors for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// GenerativeBackend is the stateless completion service. Decompose returns a
// malformed outcome (not an error) when the response breaks the schema.
type GenerativeBackend interface {
	Decompose(ctx context.Context, query domain.Query) (domain.DecompositionOutcome, error)
	Generate(ctx context.Context, prompt string) (domain.Generation, error)
}

// DocumentTypeClassifier maps a corpus id to a style tag; unknown ids map to "generic".
type DocumentTypeClassifier interface {
	Classify(ctx context.Context, corpusID string) string
}

// Reranker scores a chunk against the original query. Used downstream of retrieval only.
type Reranker interface {
	Score(ctx context.Context, originalQuery, chunkText string) (float64, error)
}

// RetrievalObserver receives one observation per finished request. It is
// write-only: nothing read back from it influences retrieval decisions.
type RetrievalObserver interface {
	ObserveRetrieval(obs domain.RetrievalObservation)
}
