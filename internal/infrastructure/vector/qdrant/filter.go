package qdrant

import (
	"strings"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
)

// structurePayloadKey holds the structural locators of a chunk, e.g.
// {"structure": {"articulo": "4.5.1.2", "capitulo": "4"}}.
const structurePayloadKey = "structure"

// buildFilter turns the scope into exact-match "must" conditions. Locator keys
// are lower-cased to match the ingestion payload.
func buildFilter(scope domain.ScopeFilter) map[string]any {
	must := make([]map[string]any, 0, 3+len(scope.Locators))
	add := func(key, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"value": value},
		})
	}

	add("corpus_id", scope.CorpusID)
	add("doc_id", scope.DocumentID)
	add("area", scope.Area)
	for _, key := range scope.LocatorKeys() {
		add(structurePayloadKey+"."+strings.ToLower(strings.TrimSpace(key)), scope.Locators[key])
	}

	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}
