package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
)

func TestSplitTopK(t *testing.T) {
	cases := []struct {
		topK   int
		weight float64
		hydeK  int
		origK  int
	}{
		{topK: 10, weight: 0.7, hydeK: 7, origK: 3},
		{topK: 5, weight: 0.7, hydeK: 4, origK: 1},
		{topK: 2, weight: 0.7, hydeK: 1, origK: 1},
		{topK: 1, weight: 0.7, hydeK: 1, origK: 0},
		{topK: 10, weight: 0, hydeK: 0, origK: 10},
		{topK: 10, weight: 1, hydeK: 10, origK: 0},
		{topK: 0, weight: 0.7, hydeK: 0, origK: 0},
	}
	for _, tc := range cases {
		hydeK, origK := SplitTopK(tc.topK, tc.weight)
		if hydeK != tc.hydeK || origK != tc.origK {
			t.Fatalf("SplitTopK(%d, %v) = (%d, %d), want (%d, %d)", tc.topK, tc.weight, hydeK, origK, tc.hydeK, tc.origK)
		}
	}
}

func TestHypotheticalPromptUsesCorpusStyle(t *testing.T) {
	backend := &fakeBackend{passage: "El OCAD es el órgano colegiado que decide sobre los proyectos."}
	generator := NewHypotheticalDocumentGenerator(backend, fakeClassifier{styles: map[string]string{"sgr": StyleLegal}}, 0, "sgr")

	doc, err := generator.Generate(context.Background(), domain.Query{Text: "¿Qué es un OCAD?"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if doc.Text != backend.passage || doc.SourceQuery != "¿Qué es un OCAD?" {
		t.Fatalf("unexpected hypothetical document: %+v", doc)
	}
	if !strings.Contains(backend.prompts[0], "normativa") {
		t.Fatalf("expected legal template, got prompt %q", backend.prompts[0])
	}

	_, _ = NewHypotheticalDocumentGenerator(backend, fakeClassifier{}, 0, "").Generate(context.Background(), domain.Query{
		Text:  "¿Qué es un OCAD?",
		Scope: domain.ScopeFilter{CorpusID: "unknown"},
	})
	if !strings.HasPrefix(backend.prompts[1], hypotheticalTemplates[StyleGeneric]) {
		t.Fatalf("expected generic template for unknown corpus")
	}
}

func TestHypotheticalGenerationRejectsEmptyPassage(t *testing.T) {
	backend := &fakeBackend{passage: "   ", cost: 2}
	doc, err := NewHypotheticalDocumentGenerator(backend, nil, 0, "").Generate(context.Background(), domain.Query{Text: "q"})
	if !domain.IsKind(err, domain.ErrContractViolation) {
		t.Fatalf("expected contract violation, got %v", err)
	}
	if doc.GenerationCost != 2 {
		t.Fatalf("expected generation cost kept on failure, got %v", doc.GenerationCost)
	}
}

func TestHybridSearchFusesHypotheticalAndOriginal(t *testing.T) {
	passage := "Un OCAD es un órgano colegiado de administración y decisión."
	backend := &fakeBackend{passage: passage, cost: 5}
	index := newFakeIndex().
		on(passage, chunk("c1", 0.9), chunk("c2", 0.8), chunk("c3", 0.7)).
		on("¿Qué es un OCAD?", chunk("c2", 0.6), chunk("c4", 0.5))

	searcher := NewHybridFusionSearcher(index, NewHypotheticalDocumentGenerator(backend, nil, 0, ""), 0.7, 60, 0, 2, discardLogger())
	outcome, err := searcher.Search(context.Background(), "r-1", domain.Query{Text: "¿Qué es un OCAD?"}, 4)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	hydeCall, ok := index.callFor(passage)
	if !ok || hydeCall.topK != 3 {
		t.Fatalf("expected hyde search with k=3, got %+v", hydeCall)
	}
	origCall, ok := index.callFor("¿Qué es un OCAD?")
	if !ok || origCall.topK != 1 {
		t.Fatalf("expected original search with k=1, got %+v", origCall)
	}
	if !outcome.hydeUsed {
		t.Fatalf("expected hyde to be used")
	}
	if outcome.results[0].Chunk.ID != "c2" || outcome.results[0].NumSources != 2 {
		t.Fatalf("expected c2 fused from both branches first, got %+v", outcome.results[0])
	}
	if outcome.cost.GenerationCost != 5 || outcome.cost.SearchCalls != 2 {
		t.Fatalf("unexpected cost: %+v", outcome.cost)
	}
}

func TestHybridSearchDegradesWhenGenerationFails(t *testing.T) {
	backend := &fakeBackend{generateErr: errUpstream}
	index := newFakeIndex().on("¿Qué es un OCAD?", chunk("c1", 0.6))

	searcher := NewHybridFusionSearcher(index, NewHypotheticalDocumentGenerator(backend, nil, 0, ""), 0.7, 60, 0, 2, discardLogger())
	outcome, err := searcher.Search(context.Background(), "r-1", domain.Query{Text: "¿Qué es un OCAD?"}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if outcome.hydeUsed {
		t.Fatalf("expected hyde_used=false after generation failure")
	}
	call, _ := index.callFor("¿Qué es un OCAD?")
	if index.callCount() != 1 || call.topK != 5 {
		t.Fatalf("expected one original search with full top_k, got %d calls, k=%d", index.callCount(), call.topK)
	}
	if len(outcome.results) != 1 {
		t.Fatalf("expected degraded results, got %d", len(outcome.results))
	}
}

func TestHybridSearchTotalFailure(t *testing.T) {
	passage := "pasaje"
	backend := &fakeBackend{passage: passage}
	index := newFakeIndex().fail(passage, errUpstream).fail("q", errUpstream)

	searcher := NewHybridFusionSearcher(index, NewHypotheticalDocumentGenerator(backend, nil, 0, ""), 0.7, 60, 0, 2, discardLogger())
	_, err := searcher.Search(context.Background(), "r-1", domain.Query{Text: "q"}, 10)
	if !domain.IsKind(err, domain.ErrNoResults) {
		t.Fatalf("expected no results, got %v", err)
	}
}
