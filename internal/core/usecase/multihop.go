package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
	"github.com/kirillkom/normative-retrieval/internal/core/ports"
)

// MultihopRetriever searches every sub-query independently and fuses the
// batches by source count.
type MultihopRetriever struct {
	index       ports.VectorIndex
	boosts      BoostTable
	callTimeout time.Duration
	maxParallel int
	logger      *slog.Logger
}

func NewMultihopRetriever(
	index ports.VectorIndex,
	boosts BoostTable,
	callTimeout time.Duration,
	maxParallel int,
	logger *slog.Logger,
) *MultihopRetriever {
	return &MultihopRetriever{
		index:       index,
		boosts:      boosts,
		callTimeout: callTimeout,
		maxParallel: maxParallel,
		logger:      loggerOrDefault(logger),
	}
}

type strategyOutcome struct {
	results  []domain.FusedResult
	cost     domain.Cost
	hydeUsed bool
}

func subQuerySourceID(i int) string {
	return fmt.Sprintf("sub_query:%d", i)
}

func (r *MultihopRetriever) Retrieve(
	ctx context.Context,
	retrievalID string,
	subQueries []string,
	filter domain.ScopeFilter,
	topK int,
) (strategyOutcome, error) {
	if len(subQueries) == 0 {
		return strategyOutcome{}, domain.WrapError(domain.ErrInvalidInput, "multihop retrieve", fmt.Errorf("no sub-queries"))
	}

	branches := make([]searchBranch, 0, len(subQueries))
	for i, sq := range subQueries {
		branches = append(branches, searchBranch{SourceID: subQuerySourceID(i), Text: sq, TopK: topK})
	}

	start := time.Now()
	batches := fanOutSearch(ctx, r.index, filter, branches, r.callTimeout, r.maxParallel)
	summary := summarizeBatches(batches, r.logger, retrievalID)

	var outcome strategyOutcome
	for i := 0; i < summary.executed; i++ {
		outcome.cost.AddSearch(1)
	}
	if summary.totalFailure() {
		return outcome, domain.WrapError(domain.ErrNoResults, "multihop retrieve", fmt.Errorf("all %d sub-query searches failed", summary.failed))
	}

	outcome.results = trimFused(fuseBySourceCount(batches, r.boosts), topK)
	r.logger.Info("multihop_fused",
		slog.String("retrieval_id", retrievalID),
		slog.Int("sub_queries", len(subQueries)),
		slog.Int("failed_batches", summary.failed),
		slog.Int("results", len(outcome.results)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return outcome, nil
}

// singleHop runs one search with the original query text.
func singleHop(
	ctx context.Context,
	index ports.VectorIndex,
	query domain.Query,
	topK int,
	callTimeout time.Duration,
	logger *slog.Logger,
	retrievalID string,
) (strategyOutcome, error) {
	batches := fanOutSearch(ctx, index, query.Scope, []searchBranch{{SourceID: "query", Text: query.Text, TopK: topK}}, callTimeout, 1)
	summary := summarizeBatches(batches, logger, retrievalID)

	var outcome strategyOutcome
	if summary.executed > 0 {
		outcome.cost.AddSearch(1)
	}
	if summary.totalFailure() {
		return outcome, domain.WrapError(domain.ErrNoResults, "single-hop retrieve", batches[0].Err)
	}
	outcome.results = trimFused(fuseBySourceCount(batches, BoostTable{Two: 1, ThreePlus: 1}), topK)
	return outcome, nil
}
