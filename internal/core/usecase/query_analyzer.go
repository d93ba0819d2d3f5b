package usecase

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
	"github.com/kirillkom/normative-retrieval/internal/core/ports"
)

var (
	comparisonBetweenRe = regexp.MustCompile(`(?i)entre\s+(.+?)\s+y\s+(.+)$`)
	comparisonVersusRe  = regexp.MustCompile(`(?i)^(.+?)\s+(?:vs\.?|versus|frente\s+a)\s+(.+)$`)
	conditionalRe       = regexp.MustCompile(`(?i)(?:^|[^\p{L}])si\s+(.+?)\s*,?\s*entonces\s+(.+)$`)
	comparisonLeadRe    = regexp.MustCompile(`(?i)^(?:cu[aá]l(?:es)?\s+(?:es|son)\s+)?(?:las?\s+)?(?:diferencias?|compara\w*)\s+(?:(?:de|del|entre)\s+)?`)
)

const subQueryPrefix = "información sobre "

// QueryAnalyzer classifies a query with the generative backend and degrades to
// cue-phrase heuristics when the backend fails or answers out of contract.
type QueryAnalyzer struct {
	backend     ports.GenerativeBackend
	cues        CueLexicon
	defaultTopK int
	callTimeout time.Duration
	logger      *slog.Logger
}

func NewQueryAnalyzer(
	backend ports.GenerativeBackend,
	cues CueLexicon,
	defaultTopK int,
	callTimeout time.Duration,
	logger *slog.Logger,
) *QueryAnalyzer {
	return &QueryAnalyzer{
		backend:     backend,
		cues:        cues,
		defaultTopK: defaultTopK,
		callTimeout: callTimeout,
		logger:      loggerOrDefault(logger),
	}
}

// Analyze never fails: backend errors and malformed output fall back to the
// heuristic classification. The returned cost covers the decomposition call.
func (a *QueryAnalyzer) Analyze(ctx context.Context, retrievalID string, query domain.Query) (domain.QueryAnalysis, domain.Cost) {
	var cost domain.Cost
	if a.backend == nil {
		return a.Heuristic(query.Text), cost
	}

	callCtx, cancel := withCallTimeout(ctx, a.callTimeout)
	defer cancel()

	outcome, err := a.backend.Decompose(callCtx, query)
	cost.AddGeneration(outcome.Cost)
	switch {
	case err != nil:
		a.logger.Warn("decomposition_failed",
			slog.String("retrieval_id", retrievalID),
			slog.String("error", err.Error()))
		return a.Heuristic(query.Text), cost
	case outcome.Malformed:
		a.logger.Warn("decomposition_malformed",
			slog.String("retrieval_id", retrievalID),
			slog.String("reason", outcome.Reason))
		return a.Heuristic(query.Text), cost
	}

	analysis := normalizeAnalysis(outcome.Analysis)
	if !analysis.Consistent() {
		a.logger.Warn("decomposition_malformed",
			slog.String("retrieval_id", retrievalID),
			slog.String("reason", "inconsistent analysis"),
			slog.String("type", string(analysis.Type)),
			slog.Bool("requires_multihop", analysis.RequiresMultihop),
			slog.Int("sub_queries", len(analysis.SubQueries)))
		return a.Heuristic(query.Text), cost
	}
	analysis.Source = domain.AnalysisFromLLM
	return analysis, cost
}

func normalizeAnalysis(analysis domain.QueryAnalysis) domain.QueryAnalysis {
	subQueries := make([]string, 0, len(analysis.SubQueries))
	for _, sq := range analysis.SubQueries {
		subQueries = append(subQueries, strings.TrimSpace(sq))
	}
	analysis.SubQueries = subQueries
	if analysis.RecommendedTopK < 0 {
		analysis.RecommendedTopK = 0
	}
	return analysis
}

// Heuristic classifies by cue phrases in fixed order: conditional, comparison,
// procedural, aggregation, else simple semantic. Explicit locators are left to
// the activation policy so its "about this locator" exception still applies.
func (a *QueryAnalyzer) Heuristic(text string) domain.QueryAnalysis {
	text = strings.TrimSpace(text)
	analysis := domain.QueryAnalysis{
		Type:            domain.QuerySimpleSemantic,
		SubQueries:      []string{},
		RecommendedTopK: a.defaultTopK,
		Source:          domain.AnalysisFromHeuristic,
	}

	switch {
	case matches(a.cues.Conditional, text):
		analysis.Type = domain.QueryConditional
		analysis.SubQueries = conditionalSubQueries(text)
	case matches(a.cues.Comparison, text):
		analysis.Type = domain.QueryComparison
		analysis.SubQueries = comparisonSubQueries(text)
	case matches(a.cues.Procedural, text):
		analysis.Type = domain.QueryProcedural
	case matches(a.cues.Aggregation, text):
		analysis.Type = domain.QueryAggregation
		analysis.RecommendedTopK = a.defaultTopK * 2
	}

	analysis.RequiresMultihop = len(analysis.SubQueries) >= 2
	return analysis
}

func comparisonSubQueries(text string) []string {
	body := trimQueryPunctuation(text)
	var left, right string
	if m := comparisonBetweenRe.FindStringSubmatch(body); m != nil {
		left, right = m[1], m[2]
	} else if m := comparisonVersusRe.FindStringSubmatch(body); m != nil {
		left, right = comparisonLeadRe.ReplaceAllString(trimQueryPunctuation(m[1]), ""), m[2]
	} else {
		return []string{}
	}
	left, right = trimQueryPunctuation(left), trimQueryPunctuation(right)
	if left == "" || right == "" {
		return []string{}
	}
	return []string{subQueryPrefix + left, subQueryPrefix + right}
}

func conditionalSubQueries(text string) []string {
	m := conditionalRe.FindStringSubmatch(trimQueryPunctuation(text))
	if m == nil {
		return []string{}
	}
	condition, consequence := trimQueryPunctuation(m[1]), trimQueryPunctuation(m[2])
	if condition == "" || consequence == "" {
		return []string{}
	}
	return []string{condition, consequence}
}

func trimQueryPunctuation(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "¿?¡!.,;:\"'"))
}
