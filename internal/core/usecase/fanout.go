package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
	"github.com/kirillkom/normative-retrieval/internal/core/ports"
)

type searchBranch struct {
	SourceID string
	Text     string
	TopK     int
}

type branchBatch struct {
	Index    int
	SourceID string
	Chunks   []domain.Chunk
	Err      error
	Skipped  bool
}

// fanOutSearch runs one index search per branch. Each goroutine writes only its
// own slot, so the returned slice is the same for concurrent and sequential runs.
func fanOutSearch(
	ctx context.Context,
	index ports.VectorIndex,
	filter domain.ScopeFilter,
	branches []searchBranch,
	callTimeout time.Duration,
	maxParallel int,
) []branchBatch {
	batches := make([]branchBatch, len(branches))
	var g errgroup.Group
	if maxParallel > 0 {
		g.SetLimit(maxParallel)
	}

	for i, branch := range branches {
		batches[i] = branchBatch{Index: i, SourceID: branch.SourceID}
		if branch.TopK <= 0 || strings.TrimSpace(branch.Text) == "" {
			batches[i].Skipped = true
			continue
		}
		g.Go(func() error {
			callCtx, cancel := withCallTimeout(ctx, callTimeout)
			defer cancel()
			chunks, err := index.Search(callCtx, branch.Text, filter, branch.TopK)
			if err != nil {
				batches[i].Err = domain.WrapError(domain.ErrTemporary, "search "+branch.SourceID, err)
				return nil
			}
			batches[i].Chunks = chunks
			return nil
		})
	}

	_ = g.Wait()
	return batches
}

type batchSummary struct {
	executed int
	failed   int
}

func (s batchSummary) totalFailure() bool {
	return s.executed > 0 && s.failed == s.executed
}

func summarizeBatches(batches []branchBatch, logger *slog.Logger, retrievalID string) batchSummary {
	var summary batchSummary
	for _, batch := range batches {
		if batch.Skipped {
			continue
		}
		summary.executed++
		if batch.Err != nil {
			summary.failed++
			logger.Warn("branch_search_failed",
				slog.String("retrieval_id", retrievalID),
				slog.String("source_id", batch.SourceID),
				slog.String("error", batch.Err.Error()))
		}
	}
	return summary
}

func withCallTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
