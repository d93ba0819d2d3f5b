package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kirillkom/normative-retrieval/internal/config"
	"github.com/kirillkom/normative-retrieval/internal/core/domain"
	"github.com/kirillkom/normative-retrieval/internal/core/ports"
	"github.com/kirillkom/normative-retrieval/internal/observability/metrics"
)

const (
	serviceName     = "retrieval-api"
	maxRequestBytes = 1 << 20
)

type Router struct {
	cfg       config.Config
	retriever ports.Retriever
	contexts  ports.ContextBuilder
	metrics   *metrics.HTTPServerMetrics
}

// NewRouter builds the API. contexts and httpMetrics may be nil; the matching
// endpoints are then not served.
func NewRouter(
	cfg config.Config,
	retriever ports.Retriever,
	contexts ports.ContextBuilder,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:       cfg,
		retriever: retriever,
		contexts:  contexts,
		metrics:   httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/v1/retrieve", rt.retrieve)
	api.HandleFunc("/v1/usage", rt.usage)
	if rt.contexts != nil {
		api.HandleFunc("/v1/context", rt.buildContext)
	}

	var guarded http.Handler = api
	guarded = backpressureMiddleware(guarded, rt.cfg.APIMaxInFlight, rt.cfg.APIQueueWait, rt.onRejected)
	guarded = rateLimitMiddleware(guarded, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.onRejected)
	guarded = authMiddleware(guarded, rt.cfg.APIKey)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", guarded)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) onRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) usage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, rt.retriever.UsageStats())
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRetrieveRequest(w, r)
	if !ok {
		return
	}

	result, err := rt.retriever.Retrieve(r.Context(), req.ToQuery(), req.ResolveOptions(rt.retriever.DefaultOptions()))
	if err != nil {
		writeRetrievalError(w, r, err, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type contextResponse struct {
	Contexts  []domain.RankedContext `json:"contexts"`
	Retrieval *domain.RetrieveResult `json:"retrieval"`
}

func (rt *Router) buildContext(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRetrieveRequest(w, r)
	if !ok {
		return
	}
	topN := req.TopN
	if topN == 0 {
		topN = rt.cfg.RetrievalContextTopN
	}

	contexts, result, err := rt.contexts.BuildContext(r.Context(), req.ToQuery(), req.ResolveOptions(rt.retriever.DefaultOptions()), topN)
	if err != nil {
		writeRetrievalError(w, r, err, result)
		return
	}
	if contexts == nil {
		contexts = []domain.RankedContext{}
	}
	writeJSON(w, http.StatusOK, contextResponse{Contexts: contexts, Retrieval: result})
}

func decodeRetrieveRequest(w http.ResponseWriter, r *http.Request) (domain.RetrieveRequest, bool) {
	var req domain.RetrieveRequest
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return req, false
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json: " + err.Error(), RequestID: requestIDFromContext(r.Context())})
		return req, false
	}
	return req, true
}

type errorResponse struct {
	Error     string                 `json:"error"`
	Kind      string                 `json:"kind,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Result    *domain.RetrieveResult `json:"result,omitempty"`
}

func writeRetrievalError(w http.ResponseWriter, r *http.Request, err error, result *domain.RetrieveResult) {
	resp := errorResponse{
		Error:     err.Error(),
		Kind:      errorKind(err),
		RequestID: requestIDFromContext(r.Context()),
	}
	if errors.Is(err, domain.ErrNoResults) {
		resp.Result = result
	}
	writeJSON(w, mapErrorToHTTPStatus(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
