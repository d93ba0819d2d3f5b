package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
	"github.com/kirillkom/normative-retrieval/internal/core/ports"
)

// RetrieveUseCase composes analysis, activation, the selected strategy and
// fallback escalation into one retrieval call.
type RetrieveUseCase struct {
	settings Settings
	index    ports.VectorIndex
	analyzer *QueryAnalyzer
	policy   *ActivationPolicy
	multihop *MultihopRetriever
	hybrid   *HybridFusionSearcher
	fallback *FallbackEscalator
	usage    *UsageCounters
	observer ports.RetrievalObserver
	logger   *slog.Logger
	newID    func() string
}

type RetrieveOption func(*retrieveOptions)

type retrieveOptions struct {
	logger   *slog.Logger
	observer ports.RetrievalObserver
	cues     *CueLexicon
	rules    []ActivationRule
	newID    func() string
}

func WithLogger(logger *slog.Logger) RetrieveOption {
	return func(o *retrieveOptions) { o.logger = logger }
}

func WithObserver(observer ports.RetrievalObserver) RetrieveOption {
	return func(o *retrieveOptions) { o.observer = observer }
}

func WithCueLexicon(cues CueLexicon) RetrieveOption {
	return func(o *retrieveOptions) { o.cues = &cues }
}

// WithActivationRules replaces the default rule set.
func WithActivationRules(rules []ActivationRule) RetrieveOption {
	return func(o *retrieveOptions) { o.rules = rules }
}

func WithIDGenerator(newID func() string) RetrieveOption {
	return func(o *retrieveOptions) { o.newID = newID }
}

func NewRetrieveUseCase(
	index ports.VectorIndex,
	backend ports.GenerativeBackend,
	classifier ports.DocumentTypeClassifier,
	settings Settings,
	opts ...RetrieveOption,
) (*RetrieveUseCase, error) {
	if index == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "new retrieve usecase", fmt.Errorf("vector index is required"))
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	cfg := retrieveOptions{newID: uuid.NewString}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := loggerOrDefault(cfg.logger)
	cues := MustCompileCues(DefaultCuePhrases())
	if cfg.cues != nil {
		cues = *cfg.cues
	}
	rules := cfg.rules
	if len(rules) == 0 {
		rules = DefaultActivationRules(cues)
	}

	generator := NewHypotheticalDocumentGenerator(backend, classifier, settings.CallTimeout, settings.DefaultCorpusID)
	hybrid := NewHybridFusionSearcher(index, generator, settings.HyDEWeight, settings.RRFK, settings.CallTimeout, settings.MaxParallelSearches, logger)

	return &RetrieveUseCase{
		settings: settings,
		index:    index,
		analyzer: NewQueryAnalyzer(backend, cues, settings.DefaultTopK, settings.CallTimeout, logger),
		policy:   NewActivationPolicy(rules),
		multihop: NewMultihopRetriever(index, settings.boosts(), settings.CallTimeout, settings.MaxParallelSearches, logger),
		hybrid:   hybrid,
		fallback: NewFallbackEscalator(hybrid, settings.FallbackThreshold, settings.ImprovementRatio, logger),
		usage:    &UsageCounters{},
		observer: cfg.observer,
		logger:   logger,
		newID:    cfg.newID,
	}, nil
}

func (uc *RetrieveUseCase) DefaultOptions() domain.RetrieveOptions {
	return uc.settings.defaultOptions()
}

func (uc *RetrieveUseCase) UsageStats() domain.UsageStats {
	return uc.usage.Snapshot()
}

// Retrieve returns a non-nil result together with an ErrNoResults error when
// every branch of the final strategy failed. Cancellation and deadline errors
// are returned as is and discard any partial results.
func (uc *RetrieveUseCase) Retrieve(
	ctx context.Context,
	query domain.Query,
	opts domain.RetrieveOptions,
) (*domain.RetrieveResult, error) {
	query.Text = strings.TrimSpace(query.Text)
	if query.Text == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("query text is required"))
	}
	if err := uc.settings.validateOptions(opts); err != nil {
		return nil, err
	}
	if uc.settings.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.settings.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	retrievalID := uc.newID()

	analysis, cost := uc.analyzer.Analyze(ctx, retrievalID, query)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decision := uc.policy.Decide(ActivationInput{Query: query, Analysis: analysis}, opts)
	topK := uc.settings.resolveTopK(opts, analysis)
	uc.logger.Info("retrieval_planned",
		slog.String("retrieval_id", retrievalID),
		slog.String("query_type", string(analysis.Type)),
		slog.String("analysis_source", string(analysis.Source)),
		slog.Int("matched_rule", decision.MatchedRule),
		slog.String("rule_name", decision.RuleName),
		slog.Bool("use_multihop", decision.UseMultihop),
		slog.Bool("use_hyde", decision.UseHyDE),
		slog.Int("top_k", topK))

	var (
		primary    strategyOutcome
		primaryErr error
		strategy   domain.Strategy
	)
	switch {
	case decision.UseMultihop:
		strategy = domain.StrategyMultihop
		primary, primaryErr = uc.multihop.Retrieve(ctx, retrievalID, analysis.SubQueries, query.Scope, topK)
	case decision.UseHyDE:
		strategy = domain.StrategyHyDE
		primary, primaryErr = uc.hybrid.Search(ctx, retrievalID, query, topK)
		if !primary.hydeUsed {
			strategy = domain.StrategySingleHop
		}
	default:
		strategy = domain.StrategySingleHop
		primary, primaryErr = singleHop(ctx, uc.index, query, topK, uc.settings.CallTimeout, uc.logger, retrievalID)
	}
	cost.Merge(primary.cost)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	primaryFailed := primaryErr != nil
	if primaryFailed && !domain.IsKind(primaryErr, domain.ErrNoResults) {
		return nil, primaryErr
	}

	escalation, err := uc.fallback.Escalate(ctx, fallbackRequest{
		RetrievalID:      retrievalID,
		Query:            query,
		TopK:             topK,
		Options:          opts,
		RequiresMultihop: analysis.RequiresMultihop,
		PrimaryWasHyDE:   decision.UseHyDE,
		Primary:          primary,
		PrimaryFailed:    primaryFailed,
	})
	cost.Merge(escalation.Cost)
	if err != nil {
		return nil, err
	}

	final := primary
	finalErr := primaryErr
	if escalation.Alternate != nil {
		final = *escalation.Alternate
		finalErr = nil
		strategy = domain.StrategyHyDE
		if !final.hydeUsed {
			strategy = domain.StrategySingleHop
		}
	}

	record := escalation.Record
	result := &domain.RetrieveResult{
		Results:       final.results,
		StrategyUsed:  strategy,
		Decomposition: analysis,
		Activation:    decision,
		HyDEUsed:      final.hydeUsed,
		Fallback:      &record,
		Cost:          cost,
		RerankQuery:   query.Text,
		Outcome:       domain.OutcomeOK,
	}
	if result.Results == nil {
		result.Results = []domain.FusedResult{}
	}
	if finalErr != nil {
		result.Outcome = domain.OutcomeNoResults
	}

	uc.record(retrievalID, result, analysis, time.Since(start))

	if finalErr != nil {
		return result, domain.WrapError(domain.ErrNoResults, "retrieve", finalErr)
	}
	return result, nil
}

func (uc *RetrieveUseCase) record(retrievalID string, result *domain.RetrieveResult, analysis domain.QueryAnalysis, elapsed time.Duration) {
	obs := domain.RetrievalObservation{
		Strategy:         result.StrategyUsed,
		Outcome:          result.Outcome,
		HyDEUsed:         result.HyDEUsed,
		FallbackTrigger:  result.Fallback != nil && result.Fallback.Triggered,
		FallbackAdopted:  result.Fallback != nil && result.Fallback.Adopted,
		ResultCount:      len(result.Results),
		Cost:             result.Cost,
		DurationSeconds:  elapsed.Seconds(),
		AnalysisSource:   analysis.Source,
		ActivationRuleID: result.Activation.MatchedRule,
	}
	uc.usage.Record(obs)
	if uc.observer != nil {
		uc.observer.ObserveRetrieval(obs)
	}

	uc.logger.Info("retrieval_completed",
		slog.String("retrieval_id", retrievalID),
		slog.String("strategy", string(obs.Strategy)),
		slog.String("outcome", string(obs.Outcome)),
		slog.Bool("hyde_used", obs.HyDEUsed),
		slog.Bool("fallback_triggered", obs.FallbackTrigger),
		slog.Bool("fallback_adopted", obs.FallbackAdopted),
		slog.Int("results", obs.ResultCount),
		slog.Float64("generation_cost", obs.Cost.GenerationCost),
		slog.Float64("search_cost", obs.Cost.SearchCost),
		slog.Int64("duration_ms", elapsed.Milliseconds()))
}
