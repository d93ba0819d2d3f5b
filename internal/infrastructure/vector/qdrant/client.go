package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
	"github.com/kirillkom/normative-retrieval/internal/core/ports"
	"github.com/kirillkom/normative-retrieval/internal/infrastructure/resilience"
)

// Index searches a read-only Qdrant collection with embedded query text.
type Index struct {
	baseURL    string
	collection string
	httpClient *http.Client
	embedder   ports.Embedder
	executor   *resilience.Executor

	distanceMu       sync.Mutex
	distance         Distance
	distanceResolved bool
}

// New builds an index client. An empty distance is resolved from the
// collection config on first search.
func New(baseURL, collection string, distance Distance, embedder ports.Embedder, executor *resilience.Executor) *Index {
	idx := &Index{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		embedder:   embedder,
		executor:   executor,
	}
	if distance != "" {
		idx.distance = distance
		idx.distanceResolved = true
	}
	return idx
}

type searchPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func (c *Index) Search(ctx context.Context, text string, filter domain.ScopeFilter, topK int) ([]domain.Chunk, error) {
	if topK <= 0 {
		return []domain.Chunk{}, nil
	}
	vector, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	distance, err := c.resolveDistance(ctx)
	if err != nil {
		return nil, err
	}

	reqBody := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if f := buildFilter(filter); f != nil {
		reqBody["filter"] = f
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	points, err := resilience.Do(ctx, c.executor, "qdrant_search", func(callCtx context.Context) ([]searchPoint, error) {
		var searchResp struct {
			Result []searchPoint `json:"result"`
		}
		if err := c.doJSON(callCtx, http.MethodPost, url, body, &searchResp, "search"); err != nil {
			return nil, err
		}
		return searchResp.Result, nil
	}, classifyQdrantError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("qdrant search", err)
	}

	out := make([]domain.Chunk, 0, len(points))
	for _, p := range points {
		out = append(out, toChunk(p, distance))
	}
	return out, nil
}

func toChunk(p searchPoint, distance Distance) domain.Chunk {
	id := getStringPayload(p.Payload, "chunk_id")
	if id == "" {
		id = pointID(p.ID)
	}
	return domain.Chunk{
		ID:                 id,
		DocumentID:         getStringPayload(p.Payload, "doc_id"),
		Text:               getStringPayload(p.Payload, "text"),
		Score:              distance.Normalize(p.Score),
		StructuralMetadata: getStringMapPayload(p.Payload, structurePayloadKey),
		HierarchyPath:      getStringPayload(p.Payload, "hierarchy_path"),
	}
}

func (c *Index) resolveDistance(ctx context.Context) (Distance, error) {
	c.distanceMu.Lock()
	if c.distanceResolved {
		d := c.distance
		c.distanceMu.Unlock()
		return d, nil
	}
	c.distanceMu.Unlock()

	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.executor.Execute(ctx, "qdrant_collection_info", func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodGet, url, nil, &info, "collection info")
	}, classifyQdrantError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("qdrant collection info", err)
	}

	distance, err := ParseDistance(info.Result.Config.Params.Vectors.Distance)
	if err != nil {
		return "", domain.WrapError(domain.ErrContractViolation, "qdrant collection info", err)
	}

	c.distanceMu.Lock()
	defer c.distanceMu.Unlock()
	c.distance = distance
	c.distanceResolved = true
	return distance, nil
}

func (c *Index) doJSON(ctx context.Context, method, url string, body []byte, out any, operation string) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Operation: operation, StatusCode: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

type StatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.Operation, e.Status, e.Body)
}

func classifyQdrantError(err error) resilience.ErrorClassification {
	if err == nil || resilience.IsContextError(err) {
		return resilience.ErrorClassification{}
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		case http.StatusInternalServerError:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
		default:
			return resilience.ErrorClassification{}
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) || resilience.IsContextError(err) {
		return err
	}
	return domain.WrapError(domain.ErrTemporary, operation, err)
}

func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.TrimSpace(string(raw))
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getStringMapPayload(payload map[string]any, key string) map[string]string {
	raw, ok := payload[key].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k := range raw {
		out[k] = getStringPayload(raw, k)
	}
	return out
}
