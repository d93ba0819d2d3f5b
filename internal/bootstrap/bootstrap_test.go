package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/kirillkom/normative-retrieval/internal/config"
	"github.com/kirillkom/normative-retrieval/internal/core/domain"
)

func baseConfig() config.Config {
	return config.Config{
		OllamaURL:                         "http://127.0.0.1:1",
		QdrantURL:                         "http://127.0.0.1:1",
		QdrantCollection:                  "normas",
		QdrantDistance:                    "Cosine",
		RetrievalTopK:                     10,
		RetrievalMaxTopK:                  100,
		RetrievalEnableMultihop:           true,
		RetrievalEnableHyDE:               true,
		RetrievalEnableFallback:           true,
		RetrievalHyDEWeight:               0.7,
		RetrievalRRFK:                     60,
		RetrievalBoostTwoSources:          1.3,
		RetrievalBoostThreeSources:        1.5,
		RetrievalFallbackThreshold:        0.3,
		RetrievalFallbackImprovementRatio: 1.2,
		RetrievalCallTimeout:              time.Second,
		RetrievalRequestTimeout:           5 * time.Second,
		RetrievalMaxParallel:              4,
		CorpusStyles:                      map[string]string{"sgr": "legal"},
	}
}

func TestSettingsFromConfigValidates(t *testing.T) {
	settings := SettingsFromConfig(baseConfig())
	if err := settings.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if settings.HyDEWeight != 0.7 || settings.RRFK != 60 || settings.MaxParallelSearches != 4 {
		t.Fatalf("unexpected settings: %+v", settings)
	}
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	cfg := baseConfig()
	cfg.RetrievalHyDEWeight = 1.5
	_, err := New(context.Background(), cfg, nil, Observers{})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestNewRejectsUnknownDistance(t *testing.T) {
	cfg := baseConfig()
	cfg.QdrantDistance = "hamming"
	if _, err := New(context.Background(), cfg, nil, Observers{}); err == nil {
		t.Fatalf("expected distance error")
	}
}

func TestNewWiresStaticClassifierWithoutPostgres(t *testing.T) {
	app, err := New(context.Background(), baseConfig(), nil, Observers{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()
	if app.Retriever == nil || app.Contexts == nil || app.Executor == nil {
		t.Fatalf("expected wired app, got %+v", app)
	}
	if got := app.Retriever.DefaultOptions(); got.TopK != 10 || !got.EnableHyDE {
		t.Fatalf("unexpected default options: %+v", got)
	}
}

func TestCuePhrasesOverlayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cues.yaml")
	if err := os.WriteFile(path, []byte("hyde:\n  - 'alcance de'\n"), 0o600); err != nil {
		t.Fatalf("write cues: %v", err)
	}
	cfg := baseConfig()
	cfg.RetrievalCuesFile = path

	phrases, err := CuePhrases(cfg)
	if err != nil {
		t.Fatalf("CuePhrases() error = %v", err)
	}
	if len(phrases.HyDE) != 1 || phrases.HyDE[0] != "alcance de" {
		t.Fatalf("expected hyde family replaced, got %v", phrases.HyDE)
	}
	if len(phrases.Comparison) == 0 {
		t.Fatalf("expected built-in comparison cues to remain")
	}
}

func TestNewRejectsInvalidCueFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cues.yaml")
	if err := os.WriteFile(path, []byte("comparison:\n  - '(unclosed'\n"), 0o600); err != nil {
		t.Fatalf("write cues: %v", err)
	}
	cfg := baseConfig()
	cfg.RetrievalCuesFile = path
	if _, err := New(context.Background(), cfg, nil, Observers{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for bad cue, got %v", err)
	}
}

func TestResilienceConfigClampsNegativeCounts(t *testing.T) {
	cfg := baseConfig()
	cfg.ResilienceBreakerMinRequests = -3
	cfg.ResilienceRetryMaxAttempts = 3
	rc := ResilienceConfig(cfg)
	if rc.BreakerMinRequests != 0 || rc.RetryMaxAttempts != 3 {
		t.Fatalf("unexpected resilience config: %+v", rc)
	}
}

type recordingSeeder struct {
	calls []string
	err   error
}

func (r *recordingSeeder) SetStyle(_ context.Context, corpusID, style string) error {
	r.calls = append(r.calls, corpusID+"="+style)
	return r.err
}

func TestSeedCorpusStylesAppliesEntriesInOrder(t *testing.T) {
	seeder := &recordingSeeder{}
	styles := map[string]string{"sgr": "legal", "manual": "procedural", "api": "technical"}
	if err := SeedCorpusStyles(context.Background(), seeder, styles); err != nil {
		t.Fatalf("SeedCorpusStyles() error = %v", err)
	}
	want := []string{"api=technical", "manual=procedural", "sgr=legal"}
	if !reflect.DeepEqual(seeder.calls, want) {
		t.Fatalf("expected %v, got %v", want, seeder.calls)
	}
}

func TestSeedCorpusStylesStopsOnError(t *testing.T) {
	seeder := &recordingSeeder{err: errors.New("db down")}
	err := SeedCorpusStyles(context.Background(), seeder, map[string]string{"a": "legal", "b": "legal"})
	if err == nil || len(seeder.calls) != 1 {
		t.Fatalf("expected first failure to stop seeding, got err=%v calls=%v", err, seeder.calls)
	}
}
