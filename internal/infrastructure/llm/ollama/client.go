package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
	"github.com/kirillkom/normative-retrieval/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		// Per-call deadlines come from the caller context.
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// Backend implements the generative port: structured decomposition and
// free-text passage generation.
type Backend struct {
	client *Client
}

func NewBackend(client *Client) *Backend {
	return &Backend{client: client}
}

func (b *Backend) Generate(ctx context.Context, prompt string) (domain.Generation, error) {
	resp, err := b.client.generate(ctx, prompt, false)
	if err != nil {
		return domain.Generation{}, err
	}
	return domain.Generation{Text: strings.TrimSpace(resp.Response), Cost: resp.cost()}, nil
}

func (b *Backend) Decompose(ctx context.Context, query domain.Query) (domain.DecompositionOutcome, error) {
	resp, err := b.client.generate(ctx, buildDecompositionPrompt(query), true)
	if err != nil {
		return domain.DecompositionOutcome{}, err
	}
	return parseDecomposition(resp.Response, resp.cost()), nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 || len(response.Embeddings[0]) == 0 {
		return nil, domain.WrapError(domain.ErrContractViolation, "ollama embed", fmt.Errorf("empty embedding result"))
	}
	return response.Embeddings[0], nil
}

type generateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// cost is the number of tokens processed by the call.
func (r generateResponse) cost() float64 {
	return float64(r.PromptEvalCount + r.EvalCount)
}

func (c *Client) generate(ctx context.Context, prompt string, jsonMode bool) (generateResponse, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	}
	if jsonMode {
		reqBody["format"] = "json"
	}

	var response generateResponse
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return generateResponse{}, err
	}
	return response, nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
