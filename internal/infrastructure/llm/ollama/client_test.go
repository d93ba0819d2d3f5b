package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
	"github.com/kirillkom/normative-retrieval/internal/infrastructure/resilience"
)

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1,
		BreakerEnabled:      false,
	})
}

func TestGenerateReturnsTextAndTokenCost(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"  El OCAD decide sobre proyectos.  ","prompt_eval_count":40,"eval_count":12}`))
	}))
	defer server.Close()

	backend := NewBackend(New(server.URL, "gen", "embed", testExecutor()))
	gen, err := backend.Generate(context.Background(), "prompt text")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if gen.Text != "El OCAD decide sobre proyectos." || gen.Cost != 52 {
		t.Fatalf("unexpected generation: %+v", gen)
	}
	if captured["prompt"] != "prompt text" || captured["model"] != "gen" {
		t.Fatalf("unexpected request payload: %v", captured)
	}
	if _, ok := captured["format"]; ok {
		t.Fatalf("free-text generation must not request json format")
	}
}

func TestDecomposeParsesStrictJSON(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		body, _ := json.Marshal(map[string]any{
			"response":          `{"type":"comparison","requires_multihop":true,"sub_queries":["información sobre A","información sobre B"],"recommended_top_k":6}`,
			"prompt_eval_count": 10,
			"eval_count":        5,
		})
		_, _ = w.Write(body)
	}))
	defer server.Close()

	backend := NewBackend(New(server.URL, "gen", "embed", testExecutor()))
	outcome, err := backend.Decompose(context.Background(), domain.Query{
		Text:  "diferencias entre A y B",
		Scope: domain.ScopeFilter{Locators: map[string]string{"capitulo": "3"}},
	})
	if err != nil {
		t.Fatalf("Decompose() error = %v", err)
	}
	if outcome.Malformed {
		t.Fatalf("expected parsed outcome, got malformed: %s", outcome.Reason)
	}
	if outcome.Analysis.Type != domain.QueryComparison || len(outcome.Analysis.SubQueries) != 2 || outcome.Analysis.RecommendedTopK != 6 {
		t.Fatalf("unexpected analysis: %+v", outcome.Analysis)
	}
	if outcome.Cost != 15 {
		t.Fatalf("expected cost 15, got %v", outcome.Cost)
	}
	if captured["format"] != "json" {
		t.Fatalf("expected json format request, got %v", captured["format"])
	}
	prompt, _ := captured["prompt"].(string)
	if !strings.Contains(prompt, "capitulo = 3") || !strings.Contains(prompt, "diferencias entre A y B") {
		t.Fatalf("unexpected prompt: %s", prompt)
	}
}

func TestParseDecompositionRejectsOffSchemaOutput(t *testing.T) {
	cases := map[string]string{
		"not json":            "no puedo responder",
		"unknown key":         `{"type":"comparison","requires_multihop":false,"sub_queries":[],"confidence":0.9}`,
		"unknown type":        `{"type":"opinion","requires_multihop":false,"sub_queries":[]}`,
		"missing multihop":    `{"type":"comparison","sub_queries":[]}`,
		"missing sub_queries": `{"type":"comparison","requires_multihop":false}`,
		"non-string sub":      `{"type":"comparison","requires_multihop":true,"sub_queries":[1,2]}`,
		"empty sub":           `{"type":"comparison","requires_multihop":true,"sub_queries":["a"," "]}`,
		"multihop no subs":    `{"type":"comparison","requires_multihop":true,"sub_queries":[]}`,
		"type not string":     `{"type":3,"requires_multihop":false,"sub_queries":[]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			outcome := parseDecomposition(raw, 7)
			if !outcome.Malformed {
				t.Fatalf("expected malformed outcome, got %+v", outcome.Analysis)
			}
			if outcome.Reason == "" || outcome.Cost != 7 {
				t.Fatalf("expected reason and cost, got %+v", outcome)
			}
		})
	}
}

func TestParseDecompositionAcceptsWrappedObject(t *testing.T) {
	outcome := parseDecomposition("```json\n{\"type\":\"simple_semantic\",\"requires_multihop\":false,\"sub_queries\":[]}\n```", 1)
	if outcome.Malformed || outcome.Analysis.Type != domain.QuerySimpleSemantic {
		t.Fatalf("expected parsed simple_semantic, got %+v", outcome)
	}
}

func TestEmbedRetriesAndMarksTemporary(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed", testExecutor()))
	_, err := embedder.EmbedQuery(context.Background(), "hola")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected retry on 502, got %d calls", calls.Load())
	}
}

func TestEmbedQueryReturnsFirstVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer server.Close()

	vector, err := NewEmbedder(New(server.URL, "gen", "embed", nil)).EmbedQuery(context.Background(), "hola")
	if err != nil || len(vector) != 3 {
		t.Fatalf("unexpected embedding %v err=%v", vector, err)
	}
}
