package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
	"github.com/kirillkom/normative-retrieval/internal/core/ports"
)

// RerankStage runs retrieval and then reorders the fused candidates with the
// downstream reranker. Scoring always uses RetrieveResult.RerankQuery, the
// original query text.
type RerankStage struct {
	retriever ports.Retriever
	reranker  ports.Reranker
	logger    *slog.Logger
}

func NewRerankStage(retriever ports.Retriever, reranker ports.Reranker, logger *slog.Logger) *RerankStage {
	return &RerankStage{
		retriever: retriever,
		reranker:  reranker,
		logger:    loggerOrDefault(logger),
	}
}

func (s *RerankStage) BuildContext(
	ctx context.Context,
	query domain.Query,
	opts domain.RetrieveOptions,
	topN int,
) ([]domain.RankedContext, *domain.RetrieveResult, error) {
	if topN < 0 {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "build context", fmt.Errorf("top_n must not be negative, got %d", topN))
	}
	result, err := s.retriever.Retrieve(ctx, query, opts)
	if err != nil {
		return nil, result, err
	}
	return topContexts(s.rerank(ctx, result), topN), result, nil
}

func (s *RerankStage) rerank(ctx context.Context, result *domain.RetrieveResult) []domain.RankedContext {
	ranked := make([]domain.RankedContext, 0, len(result.Results))
	for _, fused := range result.Results {
		item := domain.RankedContext{FusedResult: fused}
		if s.reranker != nil {
			score, err := s.reranker.Score(ctx, result.RerankQuery, fused.Chunk.Text)
			if err != nil {
				s.logger.Warn("rerank_score_failed",
					slog.String("chunk_id", fused.Chunk.ID),
					slog.String("error", err.Error()))
				score = 0
			}
			item.RerankScore = score
		}
		ranked = append(ranked, item)
	}

	// Stable sort keeps the fused order between equal rerank scores.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RerankScore > ranked[j].RerankScore
	})
	return ranked
}

// topContexts trims ranked contexts to n; n <= 0 keeps all of them.
func topContexts(ranked []domain.RankedContext, n int) []domain.RankedContext {
	if n <= 0 || len(ranked) <= n {
		return ranked
	}
	return ranked[:n]
}
