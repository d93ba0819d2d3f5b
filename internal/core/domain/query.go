package domain

import (
	"sort"
	"strings"
)

// ScopeFilter narrows a search. Locators are exact-match filters on structural
// metadata (article, chapter, section...); the remaining fields scope by corpus,
// document or thematic area.
type ScopeFilter struct {
	CorpusID   string            `json:"corpus_id,omitempty"`
	DocumentID string            `json:"document_id,omitempty"`
	Area       string            `json:"area,omitempty"`
	Locators   map[string]string `json:"locators,omitempty"`
}

// HasStructuralLocator reports whether the scope pins a specific structural unit.
func (f ScopeFilter) HasStructuralLocator() bool {
	for key, value := range f.Locators {
		if strings.TrimSpace(key) != "" && strings.TrimSpace(value) != "" {
			return true
		}
	}
	return false
}

// LocatorKeys returns the non-empty locator keys in stable order.
func (f ScopeFilter) LocatorKeys() []string {
	keys := make([]string, 0, len(f.Locators))
	for key, value := range f.Locators {
		if strings.TrimSpace(key) == "" || strings.TrimSpace(value) == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

type Query struct {
	Text  string      `json:"text"`
	Scope ScopeFilter `json:"scope"`
}

type QueryType string

const (
	QuerySimpleSemantic QueryType = "simple_semantic"
	QueryStructural     QueryType = "structural"
	QueryConditional    QueryType = "conditional"
	QueryComparison     QueryType = "comparison"
	QueryProcedural     QueryType = "procedural"
	QueryAggregation    QueryType = "aggregation"
)

func (t QueryType) Valid() bool {
	switch t {
	case QuerySimpleSemantic, QueryStructural, QueryConditional, QueryComparison, QueryProcedural, QueryAggregation:
		return true
	default:
		return false
	}
}

type AnalysisSource string

const (
	AnalysisFromLLM       AnalysisSource = "llm"
	AnalysisFromHeuristic AnalysisSource = "heuristic"
)

// QueryAnalysis is the classification of a query. SubQueries is never empty
// when RequiresMultihop is set.
type QueryAnalysis struct {
	Type             QueryType      `json:"type"`
	RequiresMultihop bool           `json:"requires_multihop"`
	SubQueries       []string       `json:"sub_queries"`
	RecommendedTopK  int            `json:"recommended_top_k"`
	Source           AnalysisSource `json:"source"`
}

// Consistent checks the multihop/sub-query invariant and the type enum.
func (a QueryAnalysis) Consistent() bool {
	if !a.Type.Valid() {
		return false
	}
	if a.RequiresMultihop && len(a.SubQueries) == 0 {
		return false
	}
	for _, sq := range a.SubQueries {
		if strings.TrimSpace(sq) == "" {
			return false
		}
	}
	return true
}

// DecompositionOutcome is the tagged result of a structured decomposition call:
// either a parsed analysis or a malformed response with a reason.
type DecompositionOutcome struct {
	Analysis  QueryAnalysis
	Malformed bool
	Reason    string
	Cost      float64
}

func ParsedDecomposition(analysis QueryAnalysis, cost float64) DecompositionOutcome {
	return DecompositionOutcome{Analysis: analysis, Cost: cost}
}

func MalformedDecomposition(reason string, cost float64) DecompositionOutcome {
	return DecompositionOutcome{Malformed: true, Reason: reason, Cost: cost}
}

// Generation is a single text completion together with its reported cost units.
type Generation struct {
	Text string  `json:"text"`
	Cost float64 `json:"cost"`
}
