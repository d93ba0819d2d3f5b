package usecase

import (
	"sort"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
)

// BoostTable maps the number of branches that returned a chunk to a score multiplier.
type BoostTable struct {
	Two       float64
	ThreePlus float64
}

func (b BoostTable) Factor(numSources int) float64 {
	switch {
	case numSources >= 3:
		return b.ThreePlus
	case numSources == 2:
		return b.Two
	default:
		return 1.0
	}
}

type fusedEntry struct {
	chunk     domain.Chunk
	sources   []int
	sourceIDs []string
	first     int
	rrf       float64
}

// collectEntries merges batches by chunk id. Batches are walked in index order
// and chunks in rank order, so accumulation is identical no matter how the
// batches were produced.
func collectEntries(batches []branchBatch, onHit func(entry *fusedEntry, rank int)) []*fusedEntry {
	acc := make(map[string]*fusedEntry)
	order := make([]*fusedEntry, 0)
	for _, batch := range batches {
		if batch.Err != nil || batch.Skipped {
			continue
		}
		rank := 0
		for _, chunk := range batch.Chunks {
			if chunk.ID == "" {
				continue
			}
			rank++
			entry, ok := acc[chunk.ID]
			if !ok {
				entry = &fusedEntry{chunk: chunk, first: batch.Index}
				acc[chunk.ID] = entry
				order = append(order, entry)
			} else {
				entry.chunk = preferRicherChunk(entry.chunk, chunk)
				if chunk.Score > entry.chunk.Score {
					entry.chunk.Score = chunk.Score
				}
			}
			if containsInt(entry.sources, batch.Index) {
				continue
			}
			entry.sources = append(entry.sources, batch.Index)
			entry.sourceIDs = append(entry.sourceIDs, batch.SourceID)
			if onHit != nil {
				onHit(entry, rank)
			}
		}
	}
	return order
}

// fuseBySourceCount implements best_score × boost(num_sources).
func fuseBySourceCount(batches []branchBatch, boosts BoostTable) []domain.FusedResult {
	entries := collectEntries(batches, nil)
	out := make([]domain.FusedResult, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toFused(entry, entry.chunk.Score*boosts.Factor(len(entry.sources))))
	}
	sortFused(out)
	return out
}

// fuseRRF implements Σ 1/(k + rank) over the batches containing a chunk, rank starting at 1.
func fuseRRF(batches []branchBatch, rrfK int) []domain.FusedResult {
	if rrfK <= 0 {
		rrfK = 60
	}
	entries := collectEntries(batches, func(entry *fusedEntry, rank int) {
		entry.rrf += 1.0 / float64(rrfK+rank)
	})
	out := make([]domain.FusedResult, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toFused(entry, entry.rrf))
	}
	sortFused(out)
	return out
}

func toFused(entry *fusedEntry, score float64) domain.FusedResult {
	ids := make([]string, len(entry.sourceIDs))
	copy(ids, entry.sourceIDs)
	sort.Strings(ids)
	return domain.FusedResult{
		Chunk:       entry.chunk,
		FusedScore:  score,
		SourceIDs:   ids,
		NumSources:  len(entry.sources),
		FirstSource: entry.first,
	}
}

// sortFused orders by fused score desc, then num_sources desc, first source asc, chunk id asc.
func sortFused(results []domain.FusedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		if results[i].NumSources != results[j].NumSources {
			return results[i].NumSources > results[j].NumSources
		}
		if results[i].FirstSource != results[j].FirstSource {
			return results[i].FirstSource < results[j].FirstSource
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
}

func trimFused(results []domain.FusedResult, limit int) []domain.FusedResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}

// averageScore is the mean raw similarity of the returned chunks.
func averageScore(results []domain.FusedResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Chunk.Score
	}
	return sum / float64(len(results))
}

func preferRicherChunk(current, candidate domain.Chunk) domain.Chunk {
	if current.Text == "" && candidate.Text != "" {
		current.Text = candidate.Text
	}
	if current.DocumentID == "" && candidate.DocumentID != "" {
		current.DocumentID = candidate.DocumentID
	}
	if current.HierarchyPath == "" && candidate.HierarchyPath != "" {
		current.HierarchyPath = candidate.HierarchyPath
	}
	if len(current.StructuralMetadata) == 0 && len(candidate.StructuralMetadata) > 0 {
		current.StructuralMetadata = candidate.StructuralMetadata
	}
	return current
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
