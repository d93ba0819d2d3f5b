package usecase

import (
	"context"
	"log/slog"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
)

const (
	skipFallbackDisabled     = "fallback_disabled"
	skipHyDEDisabled         = "hyde_disabled"
	skipMultihopRequest      = "multihop_request"
	skipPrimaryWasHyDE       = "primary_was_hyde"
	skipAboveThreshold       = "above_threshold"
	skipAlternateTotalFailed = "alternate_total_failure"
)

type fallbackRequest struct {
	RetrievalID      string
	Query            domain.Query
	TopK             int
	Options          domain.RetrieveOptions
	RequiresMultihop bool
	PrimaryWasHyDE   bool
	Primary          strategyOutcome
	PrimaryFailed    bool
}

type fallbackResult struct {
	Record    domain.FallbackRecord
	Alternate *strategyOutcome
	// Cost of the alternate run, charged whether or not it was adopted.
	Cost domain.Cost
}

// FallbackEscalator re-runs a weak primary retrieval once through the hybrid
// HyDE path and adopts it only on a strict improvement.
type FallbackEscalator struct {
	hybrid           *HybridFusionSearcher
	threshold        float64
	improvementRatio float64
	logger           *slog.Logger
}

func NewFallbackEscalator(hybrid *HybridFusionSearcher, threshold, improvementRatio float64, logger *slog.Logger) *FallbackEscalator {
	return &FallbackEscalator{
		hybrid:           hybrid,
		threshold:        threshold,
		improvementRatio: improvementRatio,
		logger:           loggerOrDefault(logger),
	}
}

// ShouldAdopt is the strict improvement test.
func ShouldAdopt(originalAvg, alternateAvg, improvementRatio float64) bool {
	return alternateAvg > originalAvg*improvementRatio
}

func (f *FallbackEscalator) Escalate(ctx context.Context, req fallbackRequest) (fallbackResult, error) {
	originalAvg := averageScore(req.Primary.results)
	result := fallbackResult{
		Record: domain.FallbackRecord{OriginalAvgScore: originalAvg},
	}

	switch {
	case !req.Options.EnableFallback:
		result.Record.SkipReason = skipFallbackDisabled
	case !req.Options.EnableHyDE:
		result.Record.SkipReason = skipHyDEDisabled
	case req.RequiresMultihop:
		result.Record.SkipReason = skipMultihopRequest
	case req.PrimaryWasHyDE:
		result.Record.SkipReason = skipPrimaryWasHyDE
	case !req.PrimaryFailed && originalAvg >= f.threshold:
		result.Record.SkipReason = skipAboveThreshold
	}
	if result.Record.SkipReason != "" {
		return result, nil
	}

	result.Record.Triggered = true
	alternate, err := f.hybrid.Search(ctx, req.RetrievalID, req.Query, req.TopK)
	result.Cost = alternate.cost
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	if err != nil {
		result.Record.SkipReason = skipAlternateTotalFailed
		f.logger.Warn("fallback_alternate_failed",
			slog.String("retrieval_id", req.RetrievalID),
			slog.String("error", err.Error()))
		return result, nil
	}

	alternateAvg := averageScore(alternate.results)
	result.Record.AlternateAvgScore = alternateAvg
	if originalAvg > 0 {
		result.Record.ImprovementRatio = alternateAvg / originalAvg
	}
	// A successful alternate always beats a primary that returned nothing at all.
	result.Record.Adopted = req.PrimaryFailed || ShouldAdopt(originalAvg, alternateAvg, f.improvementRatio)
	if result.Record.Adopted {
		result.Alternate = &alternate
	}

	f.logger.Info("fallback_evaluated",
		slog.String("retrieval_id", req.RetrievalID),
		slog.Float64("original_avg_score", originalAvg),
		slog.Float64("alternate_avg_score", alternateAvg),
		slog.Float64("improvement_ratio", result.Record.ImprovementRatio),
		slog.Bool("primary_failed", req.PrimaryFailed),
		slog.Bool("adopted", result.Record.Adopted))
	return result, nil
}
