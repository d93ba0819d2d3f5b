package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type indexResponse struct {
	chunks []domain.Chunk
	err    error
}

type indexCall struct {
	text string
	topK int
}

type fakeIndex struct {
	mu        sync.Mutex
	responses map[string]indexResponse
	calls     []indexCall
	block     bool
	hanging   map[string]bool
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{responses: make(map[string]indexResponse), hanging: make(map[string]bool)}
}

// hang makes searches for text wait until their context is done.
func (f *fakeIndex) hang(text string) *fakeIndex {
	f.hanging[text] = true
	return f
}

func (f *fakeIndex) on(text string, chunks ...domain.Chunk) *fakeIndex {
	f.responses[text] = indexResponse{chunks: chunks}
	return f
}

func (f *fakeIndex) fail(text string, err error) *fakeIndex {
	f.responses[text] = indexResponse{err: err}
	return f
}

func (f *fakeIndex) Search(ctx context.Context, text string, _ domain.ScopeFilter, topK int) ([]domain.Chunk, error) {
	f.mu.Lock()
	f.calls = append(f.calls, indexCall{text: text, topK: topK})
	resp := f.responses[text]
	block := f.block || f.hanging[text]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if resp.err != nil {
		return nil, resp.err
	}
	chunks := resp.chunks
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}
	out := make([]domain.Chunk, len(chunks))
	copy(out, chunks)
	return out, nil
}

func (f *fakeIndex) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeIndex) callFor(text string) (indexCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, call := range f.calls {
		if call.text == text {
			return call, true
		}
	}
	return indexCall{}, false
}

type fakeBackend struct {
	mu sync.Mutex

	decomposition domain.DecompositionOutcome
	decomposeErr  error

	passage     string
	generateErr error
	cost        float64

	decomposeCalls int
	generateCalls  int
	prompts        []string
}

func malformedBackend(passage string) *fakeBackend {
	return &fakeBackend{
		decomposition: domain.MalformedDecomposition("not json", 1),
		passage:       passage,
		cost:          3,
	}
}

func (f *fakeBackend) Decompose(_ context.Context, _ domain.Query) (domain.DecompositionOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decomposeCalls++
	if f.decomposeErr != nil {
		return domain.DecompositionOutcome{}, f.decomposeErr
	}
	return f.decomposition, nil
}

func (f *fakeBackend) Generate(_ context.Context, prompt string) (domain.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateCalls++
	f.prompts = append(f.prompts, prompt)
	if f.generateErr != nil {
		return domain.Generation{}, f.generateErr
	}
	return domain.Generation{Text: f.passage, Cost: f.cost}, nil
}

func (f *fakeBackend) generations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generateCalls
}

type fakeClassifier struct {
	styles map[string]string
}

func (f fakeClassifier) Classify(_ context.Context, corpusID string) string {
	if style, ok := f.styles[corpusID]; ok {
		return style
	}
	return StyleGeneric
}

type recordingObserver struct {
	mu           sync.Mutex
	observations []domain.RetrievalObservation
}

func (r *recordingObserver) ObserveRetrieval(obs domain.RetrievalObservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observations = append(r.observations, obs)
}

var errUpstream = errors.New("upstream unavailable")

func chunk(id string, score float64) domain.Chunk {
	return domain.Chunk{ID: id, Text: "texto " + id, Score: score}
}

func testSettings() Settings {
	s := DefaultSettings()
	s.CallTimeout = 0
	s.RequestTimeout = 0
	return s
}

func allEnabled(topK int) domain.RetrieveOptions {
	return domain.RetrieveOptions{TopK: topK, EnableMultihop: true, EnableHyDE: true, EnableFallback: true}
}
