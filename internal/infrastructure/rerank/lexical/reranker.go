// Package lexical scores chunks against the original query by term overlap.
package lexical

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const (
	bm25K            = 1.2
	coverageWeight   = 0.70
	similarityWeight = 0.30
	maxTerms         = 256
)

// stopwords are dropped before overlap; they would otherwise dominate
// coverage for Spanish questions.
var stopwords = map[string]struct{}{
	"a": {}, "al": {}, "con": {}, "cual": {}, "cuál": {}, "de": {}, "del": {}, "el": {},
	"en": {}, "es": {}, "la": {}, "las": {}, "lo": {}, "los": {}, "o": {}, "para": {},
	"por": {}, "que": {}, "qué": {}, "se": {}, "sobre": {}, "su": {}, "un": {}, "una": {},
	"y": {},
}

// Reranker mixes query-term coverage with a cosine over BM25-saturated
// hashed term frequencies. Scores are in [0,1].
type Reranker struct{}

func New() *Reranker {
	return &Reranker{}
}

func (r *Reranker) Score(ctx context.Context, originalQuery, chunkText string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	queryTokens := tokenize(originalQuery)
	chunkTokens := tokenize(chunkText)
	if len(queryTokens) == 0 || len(chunkTokens) == 0 {
		return 0, nil
	}
	return coverageWeight*coverage(queryTokens, chunkTokens) +
		similarityWeight*cosine(termWeights(queryTokens), termWeights(chunkTokens)), nil
}

func coverage(query, chunk []string) float64 {
	chunkSet := make(map[string]struct{}, len(chunk))
	for _, token := range chunk {
		chunkSet[token] = struct{}{}
	}
	querySet := make(map[string]struct{}, len(query))
	for _, token := range query {
		querySet[token] = struct{}{}
	}
	matches := 0
	for token := range querySet {
		if _, ok := chunkSet[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(querySet))
}

func termWeights(tokens []string) map[uint32]float64 {
	tf := make(map[uint32]float64, len(tokens))
	for _, token := range tokens {
		if len(tf) >= maxTerms {
			if _, ok := tf[hashToken(token)]; !ok {
				continue
			}
		}
		tf[hashToken(token)]++
	}
	for idx, v := range tf {
		tf[idx] = (v * (bm25K + 1)) / (v + bm25K)
	}
	return tf
}

func cosine(a, b map[uint32]float64) float64 {
	var dot, na, nb float64
	for idx, va := range a {
		na += va * va
		if vb, ok := b[idx]; ok {
			dot += va * vb
		}
	}
	for _, vb := range b {
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(sim) {
		return 0
	}
	return math.Min(sim, 1)
}

func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return h.Sum32()
}

// tokenize lower-cases letters and digits (accents kept) and drops stopwords.
func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		token := b.String()
		b.Reset()
		if _, stop := stopwords[token]; !stop {
			out = append(out, token)
		}
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()
	return out
}
