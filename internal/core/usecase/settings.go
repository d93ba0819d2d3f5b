package usecase

import (
	"fmt"
	"math"
	"time"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
)

// Settings holds the engine tuning constants. The boost multipliers and the
// fallback thresholds are product-tuned defaults, not derived values.
type Settings struct {
	DefaultTopK int
	MaxTopK     int

	EnableMultihop bool
	EnableHyDE     bool
	EnableFallback bool

	HyDEWeight        float64
	RRFK              int
	BoostTwoSources   float64
	BoostThreeSources float64

	FallbackThreshold float64
	ImprovementRatio  float64

	CallTimeout         time.Duration
	RequestTimeout      time.Duration
	MaxParallelSearches int

	DefaultCorpusID string
}

func DefaultSettings() Settings {
	return Settings{
		DefaultTopK:         10,
		MaxTopK:             100,
		EnableMultihop:      true,
		EnableHyDE:          true,
		EnableFallback:      true,
		HyDEWeight:          0.7,
		RRFK:                60,
		BoostTwoSources:     1.3,
		BoostThreeSources:   1.5,
		FallbackThreshold:   0.30,
		ImprovementRatio:    1.2,
		CallTimeout:         8 * time.Second,
		RequestTimeout:      30 * time.Second,
		MaxParallelSearches: 4,
	}
}

// Validate rejects settings that would make fusion math or the top-k split meaningless.
func (s Settings) Validate() error {
	const op = "validate settings"
	switch {
	case s.MaxTopK <= 0:
		return domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("max top_k must be positive, got %d", s.MaxTopK))
	case s.DefaultTopK <= 0 || s.DefaultTopK > s.MaxTopK:
		return domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("default top_k must be in [1,%d], got %d", s.MaxTopK, s.DefaultTopK))
	case math.IsNaN(s.HyDEWeight) || s.HyDEWeight < 0 || s.HyDEWeight > 1:
		return domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("hyde weight must be in [0,1], got %v", s.HyDEWeight))
	case s.RRFK <= 0:
		return domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("rrf k must be positive, got %d", s.RRFK))
	case s.BoostTwoSources < 1 || s.BoostThreeSources < s.BoostTwoSources:
		return domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("boosts must satisfy 1 <= two(%v) <= three(%v)", s.BoostTwoSources, s.BoostThreeSources))
	case math.IsNaN(s.FallbackThreshold) || s.FallbackThreshold < 0 || s.FallbackThreshold > 1:
		return domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("fallback threshold must be in [0,1], got %v", s.FallbackThreshold))
	case math.IsNaN(s.ImprovementRatio) || s.ImprovementRatio <= 0:
		return domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("improvement ratio must be positive, got %v", s.ImprovementRatio))
	case s.CallTimeout < 0 || s.RequestTimeout < 0:
		return domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("timeouts must not be negative"))
	case s.MaxParallelSearches < 0:
		return domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("max parallel searches must not be negative"))
	}
	return nil
}

func (s Settings) boosts() BoostTable {
	return BoostTable{Two: s.BoostTwoSources, ThreePlus: s.BoostThreeSources}
}

func (s Settings) defaultOptions() domain.RetrieveOptions {
	return domain.RetrieveOptions{
		TopK:           s.DefaultTopK,
		EnableMultihop: s.EnableMultihop,
		EnableHyDE:     s.EnableHyDE,
		EnableFallback: s.EnableFallback,
	}
}

// validateOptions runs before any upstream call. TopK == 0 means "let the
// analysis recommend, else use the default".
func (s Settings) validateOptions(opts domain.RetrieveOptions) error {
	if opts.TopK < 0 || opts.TopK > s.MaxTopK {
		return domain.WrapError(domain.ErrInvalidInput, "validate options", fmt.Errorf("top_k must be in [0,%d], got %d", s.MaxTopK, opts.TopK))
	}
	return nil
}

func (s Settings) resolveTopK(opts domain.RetrieveOptions, analysis domain.QueryAnalysis) int {
	if opts.TopK > 0 {
		return opts.TopK
	}
	if analysis.RecommendedTopK > 0 {
		return min(analysis.RecommendedTopK, s.MaxTopK)
	}
	return s.DefaultTopK
}
