package ollama

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
)

type decompositionPayload struct {
	Type             *string   `json:"type"`
	RequiresMultihop *bool     `json:"requires_multihop"`
	SubQueries       *[]string `json:"sub_queries"`
	RecommendedTopK  *int      `json:"recommended_top_k"`
}

// parseDecomposition validates the model output against the decomposition
// schema. Anything off-schema becomes a malformed outcome, never an error.
func parseDecomposition(raw string, cost float64) domain.DecompositionOutcome {
	dec := json.NewDecoder(bytes.NewReader([]byte(extractJSONObject(raw))))
	dec.DisallowUnknownFields()

	var payload decompositionPayload
	if err := dec.Decode(&payload); err != nil {
		return domain.MalformedDecomposition(fmt.Sprintf("decode: %v", err), cost)
	}
	if _, err := dec.Token(); err != io.EOF {
		return domain.MalformedDecomposition("trailing data after object", cost)
	}

	switch {
	case payload.Type == nil:
		return domain.MalformedDecomposition("missing type", cost)
	case payload.RequiresMultihop == nil:
		return domain.MalformedDecomposition("missing requires_multihop", cost)
	case payload.SubQueries == nil:
		return domain.MalformedDecomposition("missing sub_queries", cost)
	}

	queryType := domain.QueryType(strings.TrimSpace(*payload.Type))
	if !queryType.Valid() {
		return domain.MalformedDecomposition(fmt.Sprintf("unknown type %q", *payload.Type), cost)
	}

	subQueries := make([]string, 0, len(*payload.SubQueries))
	for i, sq := range *payload.SubQueries {
		sq = strings.TrimSpace(sq)
		if sq == "" {
			return domain.MalformedDecomposition(fmt.Sprintf("empty sub_query at %d", i), cost)
		}
		subQueries = append(subQueries, sq)
	}
	if *payload.RequiresMultihop && len(subQueries) == 0 {
		return domain.MalformedDecomposition("requires_multihop without sub_queries", cost)
	}

	analysis := domain.QueryAnalysis{
		Type:             queryType,
		RequiresMultihop: *payload.RequiresMultihop,
		SubQueries:       subQueries,
	}
	if payload.RecommendedTopK != nil && *payload.RecommendedTopK > 0 {
		analysis.RecommendedTopK = *payload.RecommendedTopK
	}
	return domain.ParsedDecomposition(analysis, cost)
}
