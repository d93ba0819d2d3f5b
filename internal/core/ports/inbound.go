package ports

import (
	"context"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
)

// Retriever is the inbound contract of the retrieval fusion engine.
type Retriever interface {
	Retrieve(ctx context.Context, query domain.Query, opts domain.RetrieveOptions) (*domain.RetrieveResult, error)
	UsageStats() domain.UsageStats
	DefaultOptions() domain.RetrieveOptions
}

// ContextBuilder retrieves and then reranks with the original query for answer generation.
type ContextBuilder interface {
	BuildContext(ctx context.Context, query domain.Query, opts domain.RetrieveOptions, topN int) ([]domain.RankedContext, *domain.RetrieveResult, error)
}
