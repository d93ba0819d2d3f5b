package usecase

import (
	"math"
	"testing"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
)

const epsilon = 1e-9

func batch(index int, source string, chunks ...domain.Chunk) branchBatch {
	return branchBatch{Index: index, SourceID: source, Chunks: chunks}
}

func TestFuseBySourceCountAppliesBoostTable(t *testing.T) {
	boosts := BoostTable{Two: 1.3, ThreePlus: 1.5}
	batches := []branchBatch{
		batch(0, "sub_query:0", chunk("two", 0.6), chunk("three", 0.5), chunk("one", 0.4)),
		batch(1, "sub_query:1", chunk("two", 0.7), chunk("three", 0.3)),
		batch(2, "sub_query:2", chunk("three", 0.2)),
	}

	fused := fuseBySourceCount(batches, boosts)
	byID := make(map[string]domain.FusedResult, len(fused))
	for _, r := range fused {
		byID[r.Chunk.ID] = r
	}

	if got := byID["two"].FusedScore; math.Abs(got-0.7*1.3) > epsilon {
		t.Fatalf("expected best score x1.3 for two sources, got %v", got)
	}
	if got := byID["three"].FusedScore; math.Abs(got-0.5*1.5) > epsilon {
		t.Fatalf("expected best score x1.5 for three sources, got %v", got)
	}
	if got := byID["one"].FusedScore; math.Abs(got-0.4) > epsilon {
		t.Fatalf("expected unboosted single-source score, got %v", got)
	}
	if byID["three"].NumSources != 3 || len(byID["three"].SourceIDs) != 3 {
		t.Fatalf("expected three sources, got %+v", byID["three"])
	}
}

func TestFuseBySourceCountBoostIsParameterized(t *testing.T) {
	for _, boosts := range []BoostTable{{Two: 1.3, ThreePlus: 1.5}, {Two: 1.1, ThreePlus: 1.2}, {Two: 2, ThreePlus: 3}} {
		batches := []branchBatch{
			batch(0, "sub_query:0", chunk("c", 0.5)),
			batch(1, "sub_query:1", chunk("c", 0.4)),
		}
		fused := fuseBySourceCount(batches, boosts)
		if len(fused) != 1 || math.Abs(fused[0].FusedScore-0.5*boosts.Two) > epsilon {
			t.Fatalf("boosts %+v: unexpected fused %+v", boosts, fused)
		}
	}
}

func TestFuseRRFMatchesClosedForm(t *testing.T) {
	const k = 60
	batches := []branchBatch{
		batch(0, "hyde", chunk("a", 0.9), chunk("b", 0.8), chunk("c", 0.7)),
		batch(1, "original", chunk("c", 0.6), chunk("d", 0.5), chunk("a", 0.4)),
	}

	want := map[string]float64{
		"a": 1.0/(k+1) + 1.0/(k+3),
		"b": 1.0 / (k + 2),
		"c": 1.0/(k+3) + 1.0/(k+1),
		"d": 1.0 / (k + 2),
	}
	fused := fuseRRF(batches, k)
	if len(fused) != len(want) {
		t.Fatalf("expected %d fused results, got %d", len(want), len(fused))
	}
	for _, r := range fused {
		if math.Abs(r.FusedScore-want[r.Chunk.ID]) > epsilon {
			t.Fatalf("chunk %s: expected rrf %v, got %v", r.Chunk.ID, want[r.Chunk.ID], r.FusedScore)
		}
	}
	// a and c tie on rrf, sources and first batch, so the id decides.
	if fused[0].Chunk.ID != "a" || fused[1].Chunk.ID != "c" {
		t.Fatalf("unexpected order: %s, %s", fused[0].Chunk.ID, fused[1].Chunk.ID)
	}
	// b and d tie on rrf and sources; b came from the earlier batch.
	if fused[2].Chunk.ID != "b" || fused[3].Chunk.ID != "d" {
		t.Fatalf("expected b before d by first source, got %s, %s", fused[2].Chunk.ID, fused[3].Chunk.ID)
	}
}

func TestFuseRRFDefaultsNonPositiveK(t *testing.T) {
	fused := fuseRRF([]branchBatch{batch(0, "hyde", chunk("a", 0.9))}, 0)
	if math.Abs(fused[0].FusedScore-1.0/61) > epsilon {
		t.Fatalf("expected k=60 default, got %v", fused[0].FusedScore)
	}
}

func TestCollectEntriesIgnoresFailedAndSkippedBatches(t *testing.T) {
	batches := []branchBatch{
		{Index: 0, SourceID: "sub_query:0", Err: errUpstream, Chunks: []domain.Chunk{chunk("x", 0.99)}},
		{Index: 1, SourceID: "sub_query:1", Skipped: true},
		batch(2, "sub_query:2", chunk("y", 0.5)),
	}
	fused := fuseBySourceCount(batches, BoostTable{Two: 1.3, ThreePlus: 1.5})
	if len(fused) != 1 || fused[0].Chunk.ID != "y" {
		t.Fatalf("expected only chunk y, got %+v", fused)
	}
	if fused[0].SourceIDs[0] != "sub_query:2" {
		t.Fatalf("expected source ids limited to executed batch, got %v", fused[0].SourceIDs)
	}
}

func TestCollectEntriesCountsDuplicateInBatchOnce(t *testing.T) {
	batches := []branchBatch{
		batch(0, "hyde", chunk("a", 0.9), chunk("a", 0.95), chunk("b", 0.5)),
	}
	fused := fuseRRF(batches, 60)
	if len(fused) != 2 {
		t.Fatalf("expected 2 fused results, got %d", len(fused))
	}
	if fused[0].NumSources != 1 || math.Abs(fused[0].FusedScore-1.0/61) > epsilon {
		t.Fatalf("expected single rrf contribution for duplicate chunk, got %+v", fused[0])
	}
	if fused[0].Chunk.Score != 0.95 {
		t.Fatalf("expected best raw score kept, got %v", fused[0].Chunk.Score)
	}
}

func TestSortFusedTieBreak(t *testing.T) {
	results := []domain.FusedResult{
		{Chunk: domain.Chunk{ID: "z"}, FusedScore: 0.5, NumSources: 1, FirstSource: 0},
		{Chunk: domain.Chunk{ID: "b"}, FusedScore: 0.5, NumSources: 1, FirstSource: 1},
		{Chunk: domain.Chunk{ID: "a"}, FusedScore: 0.5, NumSources: 1, FirstSource: 1},
		{Chunk: domain.Chunk{ID: "m"}, FusedScore: 0.5, NumSources: 2, FirstSource: 2},
		{Chunk: domain.Chunk{ID: "top"}, FusedScore: 0.9, NumSources: 1, FirstSource: 3},
	}
	sortFused(results)

	want := []string{"top", "m", "z", "a", "b"}
	for i, id := range want {
		if results[i].Chunk.ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, results[i].Chunk.ID)
		}
	}
}

func TestAverageScoreUsesRawSimilarity(t *testing.T) {
	results := []domain.FusedResult{
		{Chunk: chunk("a", 0.2), FusedScore: 10},
		{Chunk: chunk("b", 0.4), FusedScore: 20},
	}
	if got := averageScore(results); math.Abs(got-0.3) > epsilon {
		t.Fatalf("expected 0.3, got %v", got)
	}
	if averageScore(nil) != 0 {
		t.Fatalf("expected zero average for empty results")
	}
}
