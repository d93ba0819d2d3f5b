package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
)

type stubRetriever struct {
	result *domain.RetrieveResult
	err    error
}

func (s stubRetriever) Retrieve(context.Context, domain.Query, domain.RetrieveOptions) (*domain.RetrieveResult, error) {
	return s.result, s.err
}

func (s stubRetriever) UsageStats() domain.UsageStats { return domain.UsageStats{} }

func (s stubRetriever) DefaultOptions() domain.RetrieveOptions { return domain.RetrieveOptions{} }

// keywordReranker scores 1 when the chunk mentions the query and records the
// queries it was asked to score.
type keywordReranker struct {
	queries []string
	failOn  string
}

func (k *keywordReranker) Score(_ context.Context, query, text string) (float64, error) {
	k.queries = append(k.queries, query)
	if k.failOn != "" && strings.Contains(text, k.failOn) {
		return 0, errors.New("scorer down")
	}
	if strings.Contains(text, query) {
		return 1, nil
	}
	return 0.1, nil
}

func fusedText(id, text string, score float64) domain.FusedResult {
	return domain.FusedResult{Chunk: domain.Chunk{ID: id, Text: text}, FusedScore: score}
}

func TestRerankStageReordersByRerankScore(t *testing.T) {
	result := &domain.RetrieveResult{
		RerankQuery: "plazo de pago",
		Results: []domain.FusedResult{
			fusedText("a", "disposiciones generales", 0.9),
			fusedText("b", "el plazo de pago es de treinta días", 0.5),
		},
	}
	reranker := &keywordReranker{}
	stage := NewRerankStage(stubRetriever{result: result}, reranker, discardLogger())

	contexts, got, err := stage.BuildContext(context.Background(), domain.Query{Text: "hypothetical text"}, domain.RetrieveOptions{}, 0)
	if err != nil {
		t.Fatalf("BuildContext() error = %v", err)
	}
	if got != result {
		t.Fatalf("expected retrieval result to be returned")
	}
	if len(contexts) != 2 || contexts[0].Chunk.ID != "b" {
		t.Fatalf("expected chunk b first, got %+v", contexts)
	}
	for _, q := range reranker.queries {
		if q != "plazo de pago" {
			t.Fatalf("expected reranker to score the original query, got %q", q)
		}
	}
}

func TestRerankStageTrimsToTopN(t *testing.T) {
	result := &domain.RetrieveResult{
		RerankQuery: "x",
		Results: []domain.FusedResult{
			fusedText("a", "a", 0.9),
			fusedText("b", "b", 0.8),
			fusedText("c", "c", 0.7),
		},
	}
	stage := NewRerankStage(stubRetriever{result: result}, &keywordReranker{}, discardLogger())

	contexts, _, err := stage.BuildContext(context.Background(), domain.Query{Text: "x"}, domain.RetrieveOptions{}, 2)
	if err != nil {
		t.Fatalf("BuildContext() error = %v", err)
	}
	// Equal rerank scores keep the fused order.
	if len(contexts) != 2 || contexts[0].Chunk.ID != "a" || contexts[1].Chunk.ID != "b" {
		t.Fatalf("unexpected contexts: %+v", contexts)
	}
}

func TestRerankStageScoresFailedChunkAsZero(t *testing.T) {
	result := &domain.RetrieveResult{
		RerankQuery: "pago",
		Results: []domain.FusedResult{
			fusedText("a", "pago broken", 0.9),
			fusedText("b", "otro texto", 0.8),
		},
	}
	stage := NewRerankStage(stubRetriever{result: result}, &keywordReranker{failOn: "broken"}, discardLogger())

	contexts, _, err := stage.BuildContext(context.Background(), domain.Query{Text: "pago"}, domain.RetrieveOptions{}, 0)
	if err != nil {
		t.Fatalf("BuildContext() error = %v", err)
	}
	if contexts[0].Chunk.ID != "b" || contexts[1].RerankScore != 0 {
		t.Fatalf("expected failed chunk last with zero score, got %+v", contexts)
	}
}

func TestRerankStagePropagatesRetrievalError(t *testing.T) {
	partial := &domain.RetrieveResult{Outcome: domain.OutcomeNoResults}
	retrieveErr := domain.WrapError(domain.ErrNoResults, "retrieve", errors.New("all branches failed"))
	stage := NewRerankStage(stubRetriever{result: partial, err: retrieveErr}, &keywordReranker{}, discardLogger())

	contexts, got, err := stage.BuildContext(context.Background(), domain.Query{Text: "x"}, domain.RetrieveOptions{}, 3)
	if !domain.IsKind(err, domain.ErrNoResults) {
		t.Fatalf("expected no results error, got %v", err)
	}
	if contexts != nil || got != partial {
		t.Fatalf("expected partial result and no contexts, got %v %v", contexts, got)
	}
}

func TestRerankStageRejectsNegativeTopN(t *testing.T) {
	stage := NewRerankStage(stubRetriever{}, nil, discardLogger())
	if _, _, err := stage.BuildContext(context.Background(), domain.Query{Text: "x"}, domain.RetrieveOptions{}, -1); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
