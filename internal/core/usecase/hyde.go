package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
	"github.com/kirillkom/normative-retrieval/internal/core/ports"
)

const (
	StyleGeneric    = "generic"
	StyleLegal      = "legal"
	StyleTechnical  = "technical"
	StyleProcedural = "procedural"

	sourceHyDE     = "hyde"
	sourceOriginal = "original"
)

var hypotheticalTemplates = map[string]string{
	StyleLegal: `Eres redactor de normativa pública colombiana.
Escribe un fragmento de 2 o 3 oraciones, en tono declarativo y con el estilo de un artículo normativo,
que responda directamente la consulta. No formules preguntas. No cites números de artículos, leyes,
decretos ni fuentes. No uses viñetas ni encabezados.`,
	StyleTechnical: `Eres autor de manuales técnicos y guías operativas.
Escribe un fragmento de 2 o 3 oraciones, en tono declarativo, como si fuera un extracto de un manual
técnico que responde la consulta. No formules preguntas. No incluyas referencias ni citas.`,
	StyleProcedural: `Eres autor de guías de procedimiento administrativo.
Escribe un fragmento de 2 o 3 oraciones, en tono declarativo, que describa el procedimiento, los
responsables y el resultado esperado para la consulta. No formules preguntas. No incluyas citas.`,
	StyleGeneric: `Escribe un fragmento de 2 o 3 oraciones, en tono declarativo y neutral, como si fuera un
extracto de un documento que responde la consulta. No formules preguntas. No incluyas citas,
referencias numeradas ni marcadores de fuente.`,
}

// buildHypotheticalPrompt selects the template for the corpus style; unknown styles use the generic one.
func buildHypotheticalPrompt(style, query string) string {
	template, ok := hypotheticalTemplates[strings.ToLower(strings.TrimSpace(style))]
	if !ok {
		template = hypotheticalTemplates[StyleGeneric]
	}
	return fmt.Sprintf("%s\n\nConsulta: %s\n\nFragmento:", template, strings.TrimSpace(query))
}

// HypotheticalDocumentGenerator writes a short synthetic passage for HyDE search.
type HypotheticalDocumentGenerator struct {
	backend         ports.GenerativeBackend
	classifier      ports.DocumentTypeClassifier
	callTimeout     time.Duration
	defaultCorpusID string
}

func NewHypotheticalDocumentGenerator(
	backend ports.GenerativeBackend,
	classifier ports.DocumentTypeClassifier,
	callTimeout time.Duration,
	defaultCorpusID string,
) *HypotheticalDocumentGenerator {
	return &HypotheticalDocumentGenerator{
		backend:         backend,
		classifier:      classifier,
		callTimeout:     callTimeout,
		defaultCorpusID: defaultCorpusID,
	}
}

func (g *HypotheticalDocumentGenerator) style(ctx context.Context, corpusID string) string {
	if g.classifier == nil {
		return StyleGeneric
	}
	if strings.TrimSpace(corpusID) == "" {
		corpusID = g.defaultCorpusID
	}
	style := strings.TrimSpace(g.classifier.Classify(ctx, corpusID))
	if style == "" {
		return StyleGeneric
	}
	return style
}

func (g *HypotheticalDocumentGenerator) Generate(ctx context.Context, query domain.Query) (domain.HypotheticalDocument, error) {
	if g.backend == nil {
		return domain.HypotheticalDocument{}, domain.WrapError(domain.ErrTemporary, "generate hypothetical", fmt.Errorf("generative backend is not configured"))
	}

	callCtx, cancel := withCallTimeout(ctx, g.callTimeout)
	defer cancel()

	prompt := buildHypotheticalPrompt(g.style(callCtx, query.Scope.CorpusID), query.Text)
	generation, err := g.backend.Generate(callCtx, prompt)
	if err != nil {
		return domain.HypotheticalDocument{GenerationCost: generation.Cost, SourceQuery: query.Text},
			domain.WrapError(domain.ErrTemporary, "generate hypothetical", err)
	}
	text := strings.TrimSpace(generation.Text)
	if text == "" {
		return domain.HypotheticalDocument{GenerationCost: generation.Cost, SourceQuery: query.Text},
			domain.WrapError(domain.ErrContractViolation, "generate hypothetical", fmt.Errorf("empty passage"))
	}
	return domain.HypotheticalDocument{
		Text:           text,
		GenerationCost: generation.Cost,
		SourceQuery:    query.Text,
	}, nil
}

// SplitTopK divides top_k between the hypothetical and the original query
// searches; the two parts always add up to topK.
func SplitTopK(topK int, hydeWeight float64) (hydeK, origK int) {
	if topK <= 0 {
		return 0, 0
	}
	hydeK = int(math.Round(float64(topK) * hydeWeight))
	hydeK = max(0, min(hydeK, topK))
	return hydeK, topK - hydeK
}

// HybridFusionSearcher searches with the hypothetical passage and the original
// query, then fuses both rankings with RRF.
type HybridFusionSearcher struct {
	index       ports.VectorIndex
	generator   *HypotheticalDocumentGenerator
	hydeWeight  float64
	rrfK        int
	callTimeout time.Duration
	maxParallel int
	logger      *slog.Logger
}

func NewHybridFusionSearcher(
	index ports.VectorIndex,
	generator *HypotheticalDocumentGenerator,
	hydeWeight float64,
	rrfK int,
	callTimeout time.Duration,
	maxParallel int,
	logger *slog.Logger,
) *HybridFusionSearcher {
	return &HybridFusionSearcher{
		index:       index,
		generator:   generator,
		hydeWeight:  hydeWeight,
		rrfK:        rrfK,
		callTimeout: callTimeout,
		maxParallel: maxParallel,
		logger:      loggerOrDefault(logger),
	}
}

func (s *HybridFusionSearcher) Search(ctx context.Context, retrievalID string, query domain.Query, topK int) (strategyOutcome, error) {
	var outcome strategyOutcome

	hypothetical, err := s.generator.Generate(ctx, query)
	outcome.cost.AddGeneration(hypothetical.GenerationCost)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome, ctxErr
		}
		s.logger.Warn("hypothetical_generation_failed",
			slog.String("retrieval_id", retrievalID),
			slog.String("error", err.Error()))
		degraded, searchErr := singleHop(ctx, s.index, query, topK, s.callTimeout, s.logger, retrievalID)
		outcome.cost.Merge(degraded.cost)
		outcome.results = degraded.results
		return outcome, searchErr
	}

	hydeK, origK := SplitTopK(topK, s.hydeWeight)
	branches := []searchBranch{
		{SourceID: sourceHyDE, Text: hypothetical.Text, TopK: hydeK},
		{SourceID: sourceOriginal, Text: query.Text, TopK: origK},
	}
	batches := fanOutSearch(ctx, s.index, query.Scope, branches, s.callTimeout, s.maxParallel)
	summary := summarizeBatches(batches, s.logger, retrievalID)
	for i := 0; i < summary.executed; i++ {
		outcome.cost.AddSearch(1)
	}
	if summary.totalFailure() {
		return outcome, domain.WrapError(domain.ErrNoResults, "hybrid search", fmt.Errorf("all %d hybrid branches failed", summary.failed))
	}

	outcome.hydeUsed = !batches[0].Skipped && batches[0].Err == nil
	outcome.results = trimFused(fuseRRF(batches, s.rrfK), topK)
	s.logger.Info("hybrid_rrf_fused",
		slog.String("retrieval_id", retrievalID),
		slog.Int("hyde_k", hydeK),
		slog.Int("orig_k", origK),
		slog.Int("hyde_hits", len(batches[0].Chunks)),
		slog.Int("original_hits", len(batches[1].Chunks)),
		slog.Int("results", len(outcome.results)),
		slog.Float64("generation_cost", hypothetical.GenerationCost))
	return outcome, nil
}
