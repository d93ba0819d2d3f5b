package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kirillkom/normative-retrieval/internal/config"
	"github.com/kirillkom/normative-retrieval/internal/core/ports"
	"github.com/kirillkom/normative-retrieval/internal/core/usecase"
	"github.com/kirillkom/normative-retrieval/internal/infrastructure/classifier"
	"github.com/kirillkom/normative-retrieval/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/normative-retrieval/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/normative-retrieval/internal/infrastructure/rerank/lexical"
	"github.com/kirillkom/normative-retrieval/internal/infrastructure/resilience"
	"github.com/kirillkom/normative-retrieval/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Executor  *resilience.Executor
	Retriever *usecase.RetrieveUseCase
	Contexts  *usecase.RerankStage

	closeFn func()
}

// Observers are optional monitoring hooks; both may be nil.
type Observers struct {
	Retrieval ports.RetrievalObserver
	Breaker   resilience.StateListener
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, observers Observers) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	settings := SettingsFromConfig(cfg)
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("retrieval settings: %w", err)
	}
	cues, err := cueLexicon(cfg)
	if err != nil {
		return nil, err
	}

	execOpts := []resilience.Option{resilience.WithLogger(logger)}
	if observers.Breaker != nil {
		execOpts = append(execOpts, resilience.WithStateListener(observers.Breaker))
	}
	executor := resilience.NewExecutor(ResilienceConfig(cfg), execOpts...)

	var distance qdrant.Distance
	if cfg.QdrantDistance != "" {
		distance, err = qdrant.ParseDistance(cfg.QdrantDistance)
		if err != nil {
			return nil, fmt.Errorf("qdrant distance: %w", err)
		}
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	index := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, distance, ollama.NewEmbedder(ollamaClient), executor)
	backend := ollama.NewBackend(ollamaClient)

	closeFn := func() {}
	var styles ports.DocumentTypeClassifier
	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewCorpusRepository(db, cfg.CorpusStyleCacheSize, cfg.CorpusStyleCacheTTL, logger)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		if err := SeedCorpusStyles(ctx, repo, cfg.CorpusStyles); err != nil {
			_ = db.Close()
			return nil, err
		}
		styles = repo
		closeFn = func() { _ = db.Close() }
	} else {
		styles = classifier.NewStatic(cfg.CorpusStyles)
	}

	opts := []usecase.RetrieveOption{
		usecase.WithLogger(logger),
		usecase.WithCueLexicon(cues),
	}
	if observers.Retrieval != nil {
		opts = append(opts, usecase.WithObserver(observers.Retrieval))
	}
	retriever, err := usecase.NewRetrieveUseCase(index, backend, styles, settings, opts...)
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("init retrieval: %w", err)
	}

	return &App{
		Config:    cfg,
		Executor:  executor,
		Retriever: retriever,
		Contexts:  usecase.NewRerankStage(retriever, lexical.New(), logger),
		closeFn:   closeFn,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

type styleSeeder interface {
	SetStyle(ctx context.Context, corpusID, style string) error
}

// SeedCorpusStyles writes the CORPUS_STYLES entries into the style store so a
// fresh database classifies the configured corpora. Entries are applied in
// corpus id order.
func SeedCorpusStyles(ctx context.Context, store styleSeeder, styles map[string]string) error {
	ids := make([]string, 0, len(styles))
	for id := range styles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := store.SetStyle(ctx, id, styles[id]); err != nil {
			return fmt.Errorf("seed corpus style %q: %w", id, err)
		}
	}
	return nil
}

func SettingsFromConfig(cfg config.Config) usecase.Settings {
	return usecase.Settings{
		DefaultTopK:         cfg.RetrievalTopK,
		MaxTopK:             cfg.RetrievalMaxTopK,
		EnableMultihop:      cfg.RetrievalEnableMultihop,
		EnableHyDE:          cfg.RetrievalEnableHyDE,
		EnableFallback:      cfg.RetrievalEnableFallback,
		HyDEWeight:          cfg.RetrievalHyDEWeight,
		RRFK:                cfg.RetrievalRRFK,
		BoostTwoSources:     cfg.RetrievalBoostTwoSources,
		BoostThreeSources:   cfg.RetrievalBoostThreeSources,
		FallbackThreshold:   cfg.RetrievalFallbackThreshold,
		ImprovementRatio:    cfg.RetrievalFallbackImprovementRatio,
		CallTimeout:         cfg.RetrievalCallTimeout,
		RequestTimeout:      cfg.RetrievalRequestTimeout,
		MaxParallelSearches: cfg.RetrievalMaxParallel,
		DefaultCorpusID:     cfg.CorpusDefaultID,
	}
}

func ResilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        cfg.ResilienceRetryMaxAttempts,
		RetryInitialBackoff:     cfg.ResilienceRetryInitialBackoff,
		RetryMaxBackoff:         cfg.ResilienceRetryMaxBackoff,
		RetryMultiplier:         cfg.ResilienceRetryMultiplier,
		BreakerEnabled:          cfg.ResilienceBreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.ResilienceBreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.ResilienceBreakerFailureRatio,
		BreakerOpenTimeout:      cfg.ResilienceBreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.ResilienceBreakerHalfOpenMaxCalls, 0)),
	}
}

// CuePhrases overlays the cue file, if any, on the built-in phrases. A family
// present in the file replaces the built-in family.
func CuePhrases(cfg config.Config) (usecase.CuePhrases, error) {
	phrases := usecase.DefaultCuePhrases()
	if cfg.RetrievalCuesFile == "" {
		return phrases, nil
	}
	file, err := config.LoadCueFile(cfg.RetrievalCuesFile)
	if err != nil {
		return usecase.CuePhrases{}, err
	}
	overlay := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = src
		}
	}
	overlay(&phrases.Conditional, file.Conditional)
	overlay(&phrases.Comparison, file.Comparison)
	overlay(&phrases.Procedural, file.Procedural)
	overlay(&phrases.Aggregation, file.Aggregation)
	overlay(&phrases.Locator, file.Locator)
	overlay(&phrases.AboutLocator, file.AboutLocator)
	overlay(&phrases.HyDE, file.HyDE)
	return phrases, nil
}

func cueLexicon(cfg config.Config) (usecase.CueLexicon, error) {
	phrases, err := CuePhrases(cfg)
	if err != nil {
		return usecase.CueLexicon{}, fmt.Errorf("load cues: %w", err)
	}
	lexicon, err := usecase.CompileCues(phrases)
	if err != nil {
		return usecase.CueLexicon{}, fmt.Errorf("compile cues: %w", err)
	}
	return lexicon, nil
}
