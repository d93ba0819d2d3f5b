package usecase

import (
	"github.com/kirillkom/normative-retrieval/internal/core/domain"
)

type ActivationInput struct {
	Query    domain.Query
	Analysis domain.QueryAnalysis
}

// ActivationRule is one pure predicate of the strategy policy. EnableHyDE is the
// decision taken when Match is the first rule to fire.
type ActivationRule struct {
	ID         int
	Name       string
	Match      func(in ActivationInput) bool
	EnableHyDE bool
}

// DefaultActivationRules returns the ordered rule set; the last rule always matches.
func DefaultActivationRules(cues CueLexicon) []ActivationRule {
	return []ActivationRule{
		{
			ID:   1,
			Name: "structural_scope_filter",
			Match: func(in ActivationInput) bool {
				return in.Query.Scope.HasStructuralLocator()
			},
		},
		{
			ID:   2,
			Name: "structural_query_type",
			Match: func(in ActivationInput) bool {
				return in.Analysis.Type == domain.QueryStructural
			},
		},
		{
			ID:   3,
			Name: "requires_multihop",
			Match: func(in ActivationInput) bool {
				return in.Analysis.RequiresMultihop
			},
		},
		{
			ID:   4,
			Name: "explicit_locator",
			Match: func(in ActivationInput) bool {
				return matches(cues.Locator, in.Query.Text) && !matches(cues.AboutLocator, in.Query.Text)
			},
		},
		{
			ID:         5,
			Name:       "explanatory_cue",
			EnableHyDE: true,
			Match: func(in ActivationInput) bool {
				return matches(cues.HyDE, in.Query.Text)
			},
		},
		{
			ID:         6,
			Name:       "simple_semantic",
			EnableHyDE: true,
			Match: func(in ActivationInput) bool {
				return in.Analysis.Type == domain.QuerySimpleSemantic
			},
		},
		{
			ID:   7,
			Name: "default",
			Match: func(ActivationInput) bool {
				return true
			},
		},
	}
}

type ActivationPolicy struct {
	rules []ActivationRule
}

func NewActivationPolicy(rules []ActivationRule) *ActivationPolicy {
	return &ActivationPolicy{rules: rules}
}

// Decide evaluates the rules in order and gates the result by the caller flags.
// Multihop and HyDE are never both enabled: rule 3 fires before any HyDE rule.
func (p *ActivationPolicy) Decide(in ActivationInput, opts domain.RetrieveOptions) domain.ActivationDecision {
	decision := domain.ActivationDecision{
		UseMultihop: in.Analysis.RequiresMultihop && len(in.Analysis.SubQueries) > 0 && opts.EnableMultihop,
	}
	for _, rule := range p.rules {
		if !rule.Match(in) {
			continue
		}
		decision.MatchedRule = rule.ID
		decision.RuleName = rule.Name
		decision.UseHyDE = rule.EnableHyDE && opts.EnableHyDE && !in.Analysis.RequiresMultihop
		return decision
	}
	return decision
}
