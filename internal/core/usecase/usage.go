package usecase

import (
	"sync/atomic"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
)

// UsageCounters are process-wide monitoring aggregates. Retrieval decisions
// never read them.
type UsageCounters struct {
	queries         atomic.Int64
	multihop        atomic.Int64
	hyde            atomic.Int64
	fallbackTrigger atomic.Int64
	fallbackAdopted atomic.Int64
}

func (c *UsageCounters) Record(obs domain.RetrievalObservation) {
	c.queries.Add(1)
	if obs.Strategy == domain.StrategyMultihop {
		c.multihop.Add(1)
	}
	if obs.HyDEUsed {
		c.hyde.Add(1)
	}
	if obs.FallbackTrigger {
		c.fallbackTrigger.Add(1)
	}
	if obs.FallbackAdopted {
		c.fallbackAdopted.Add(1)
	}
}

func (c *UsageCounters) Snapshot() domain.UsageStats {
	queries := c.queries.Load()
	triggered := c.fallbackTrigger.Load()
	return domain.UsageStats{
		QueriesProcessed:    queries,
		MultihopRate:        ratio(c.multihop.Load(), queries),
		HyDERate:            ratio(c.hyde.Load(), queries),
		FallbackRate:        ratio(triggered, queries),
		FallbackSuccessRate: ratio(c.fallbackAdopted.Load(), triggered),
	}
}

func ratio(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}
