package domain

// Chunk is a passage returned by the vector index. Score is a similarity
// normalized to [0,1].
type Chunk struct {
	ID                 string            `json:"id"`
	DocumentID         string            `json:"document_id,omitempty"`
	Text               string            `json:"text"`
	Score              float64           `json:"score"`
	StructuralMetadata map[string]string `json:"structural_metadata,omitempty"`
	HierarchyPath      string            `json:"hierarchy_path,omitempty"`
}

// RetrievalResult is one (branch, chunk) hit before fusion.
type RetrievalResult struct {
	ChunkID  string  `json:"chunk_id"`
	Score    float64 `json:"score"`
	SourceID string  `json:"source_id"`
}

// FusedResult is a chunk after merging every branch that returned it. Chunk.Score
// keeps the best raw similarity; FusedScore is the strategy-specific fused value.
type FusedResult struct {
	Chunk       Chunk    `json:"chunk"`
	FusedScore  float64  `json:"fused_score"`
	SourceIDs   []string `json:"source_ids"`
	NumSources  int      `json:"num_sources"`
	FirstSource int      `json:"-"`
}

// HypotheticalDocument is a synthetic passage used only as a search input.
type HypotheticalDocument struct {
	Text           string
	GenerationCost float64
	SourceQuery    string
}

type Strategy string

const (
	StrategySingleHop Strategy = "single_hop"
	StrategyMultihop  Strategy = "multihop"
	StrategyHyDE      Strategy = "hyde"
)

type ActivationDecision struct {
	UseMultihop bool   `json:"use_multihop"`
	UseHyDE     bool   `json:"use_hyde"`
	MatchedRule int    `json:"matched_rule"`
	RuleName    string `json:"rule_name"`
}

type FallbackRecord struct {
	Triggered         bool    `json:"triggered"`
	OriginalAvgScore  float64 `json:"original_avg_score"`
	AlternateAvgScore float64 `json:"alternate_avg_score"`
	ImprovementRatio  float64 `json:"improvement_ratio"`
	Adopted           bool    `json:"adopted"`
	SkipReason        string  `json:"skip_reason,omitempty"`
}

// RetrieveOptions are the per-request switches of the public surface.
type RetrieveOptions struct {
	TopK           int  `json:"top_k"`
	EnableMultihop bool `json:"enable_multihop"`
	EnableHyDE     bool `json:"enable_hyde"`
	EnableFallback bool `json:"enable_fallback"`
}

type Cost struct {
	GenerationCost  float64 `json:"generation_cost"`
	SearchCost      float64 `json:"search_cost"`
	GenerationCalls int     `json:"generation_calls"`
	SearchCalls     int     `json:"search_calls"`
}

func (c *Cost) AddGeneration(units float64) {
	c.GenerationCost += units
	c.GenerationCalls++
}

func (c *Cost) AddSearch(units float64) {
	c.SearchCost += units
	c.SearchCalls++
}

func (c *Cost) Merge(other Cost) {
	c.GenerationCost += other.GenerationCost
	c.SearchCost += other.SearchCost
	c.GenerationCalls += other.GenerationCalls
	c.SearchCalls += other.SearchCalls
}

type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeNoResults Outcome = "no_results"
)

type RetrieveResult struct {
	Results       []FusedResult      `json:"results"`
	StrategyUsed  Strategy           `json:"strategy_used"`
	Decomposition QueryAnalysis      `json:"decomposition"`
	Activation    ActivationDecision `json:"activation"`
	HyDEUsed      bool               `json:"hyde_used"`
	Fallback      *FallbackRecord    `json:"fallback"`
	Cost          Cost               `json:"cost"`
	// RerankQuery is the text any downstream reranker must score against. It is
	// always the original query, never a hypothetical passage.
	RerankQuery string  `json:"rerank_query"`
	Outcome     Outcome `json:"outcome"`
}

type UsageStats struct {
	QueriesProcessed    int64   `json:"queries_processed"`
	MultihopRate        float64 `json:"multihop_rate"`
	HyDERate            float64 `json:"hyde_rate"`
	FallbackRate        float64 `json:"fallback_rate"`
	FallbackSuccessRate float64 `json:"fallback_success_rate"`
}

// RetrievalObservation is emitted once per finished request for monitoring sinks.
type RetrievalObservation struct {
	Strategy         Strategy
	Outcome          Outcome
	HyDEUsed         bool
	FallbackTrigger  bool
	FallbackAdopted  bool
	ResultCount      int
	Cost             Cost
	DurationSeconds  float64
	AnalysisSource   AnalysisSource
	ActivationRuleID int
}

// RankedContext is a retrieved chunk with the downstream reranker score.
type RankedContext struct {
	FusedResult
	RerankScore float64 `json:"rerank_score"`
}
