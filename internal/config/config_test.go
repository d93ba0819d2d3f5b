package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadIncludesRetrievalDefaults(t *testing.T) {
	for _, key := range []string{
		"RETRIEVAL_TOP_K", "RETRIEVAL_HYDE_WEIGHT", "RETRIEVAL_RRF_K", "RETRIEVAL_BOOST_TWO_SOURCES",
		"RETRIEVAL_BOOST_THREE_SOURCES", "RETRIEVAL_FALLBACK_THRESHOLD", "RETRIEVAL_FALLBACK_IMPROVEMENT_RATIO",
		"RETRIEVAL_CALL_TIMEOUT", "RETRIEVAL_ENABLE_HYDE", "POSTGRES_DSN", "CORPUS_STYLES",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.RetrievalTopK != 10 {
		t.Fatalf("expected default top k 10, got %d", cfg.RetrievalTopK)
	}
	if cfg.RetrievalHyDEWeight != 0.7 {
		t.Fatalf("expected default hyde weight 0.7, got %v", cfg.RetrievalHyDEWeight)
	}
	if cfg.RetrievalRRFK != 60 {
		t.Fatalf("expected default rrf k 60, got %d", cfg.RetrievalRRFK)
	}
	if cfg.RetrievalBoostTwoSources != 1.3 || cfg.RetrievalBoostThreeSources != 1.5 {
		t.Fatalf("unexpected boosts %v/%v", cfg.RetrievalBoostTwoSources, cfg.RetrievalBoostThreeSources)
	}
	if cfg.RetrievalFallbackThreshold != 0.30 || cfg.RetrievalFallbackImprovementRatio != 1.2 {
		t.Fatalf("unexpected fallback defaults %v/%v", cfg.RetrievalFallbackThreshold, cfg.RetrievalFallbackImprovementRatio)
	}
	if cfg.RetrievalCallTimeout != 8*time.Second {
		t.Fatalf("expected call timeout 8s, got %v", cfg.RetrievalCallTimeout)
	}
	if !cfg.RetrievalEnableHyDE {
		t.Fatalf("expected hyde enabled by default")
	}
	if cfg.PostgresDSN != "" || cfg.CorpusStyles != nil {
		t.Fatalf("expected no classifier source by default")
	}
}

func TestLoadParsesRetrievalOverrides(t *testing.T) {
	t.Setenv("RETRIEVAL_TOP_K", "15")
	t.Setenv("RETRIEVAL_HYDE_WEIGHT", "0.5")
	t.Setenv("RETRIEVAL_ENABLE_FALLBACK", "false")
	t.Setenv("RETRIEVAL_REQUEST_TIMEOUT", "12s")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("CORPUS_STYLES", "sgr=legal, ops = procedural,broken,=x")

	cfg := Load()
	if cfg.RetrievalTopK != 15 {
		t.Fatalf("expected top k 15, got %d", cfg.RetrievalTopK)
	}
	if cfg.RetrievalHyDEWeight != 0.5 {
		t.Fatalf("expected hyde weight 0.5, got %v", cfg.RetrievalHyDEWeight)
	}
	if cfg.RetrievalEnableFallback {
		t.Fatalf("expected fallback disabled")
	}
	if cfg.RetrievalRequestTimeout != 12*time.Second {
		t.Fatalf("expected request timeout 12s, got %v", cfg.RetrievalRequestTimeout)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rps 2.5, got %v", cfg.APIRateLimitRPS)
	}
	if len(cfg.CorpusStyles) != 2 || cfg.CorpusStyles["sgr"] != "legal" || cfg.CorpusStyles["ops"] != "procedural" {
		t.Fatalf("unexpected corpus styles: %v", cfg.CorpusStyles)
	}
}

func TestLoadFallsBackOnMalformedValues(t *testing.T) {
	t.Setenv("RETRIEVAL_RRF_K", "sixty")
	t.Setenv("RETRIEVAL_CALL_TIMEOUT", "soon")
	t.Setenv("RETRIEVAL_ENABLE_MULTIHOP", "maybe")

	cfg := Load()
	if cfg.RetrievalRRFK != 60 || cfg.RetrievalCallTimeout != 8*time.Second || !cfg.RetrievalEnableMultihop {
		t.Fatalf("expected defaults for malformed values, got %+v", cfg)
	}
}

func TestLoadCueFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cues.yaml")
	content := "comparison:\n  - 'contrasta\\w*'\nhyde:\n  - 'definición'\n  - 'alcance de'\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write cues file: %v", err)
	}

	file, err := LoadCueFile(path)
	if err != nil {
		t.Fatalf("LoadCueFile() error = %v", err)
	}
	if len(file.Comparison) != 1 || file.Comparison[0] != `contrasta\w*` {
		t.Fatalf("unexpected comparison cues: %v", file.Comparison)
	}
	if len(file.HyDE) != 2 || file.Locator != nil {
		t.Fatalf("unexpected cue file: %+v", file)
	}

	if _, err := LoadCueFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
