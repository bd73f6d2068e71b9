package featurehub

import (
	"strings"
	"time"
)

// ApplyFeature runs the rollout-strategy evaluation algorithm: given a
// feature's ordered strategy list and a request context, it decides which
// strategy (if any) applies and what value it contributes.
type ApplyFeature struct {
	percentageCalculator PercentageCalculator
	matcherRepository    MatcherRepository
}

// NewApplyFeature builds an ApplyFeature using the default murmur3
// percentage calculator and matcher registry.
func NewApplyFeature() *ApplyFeature {
	return &ApplyFeature{
		percentageCalculator: Murmur3PercentageCalculator{},
		matcherRepository:    MatcherRegistry{},
	}
}

// Apply evaluates strategies, in order, against ctx for featureID. The
// first strategy whose gates are satisfied wins; later strategies are
// never consulted. Percentage-only strategies (no attributes) accumulate
// into a shared basePercentage ceiling per bucket key, so several
// percentage rollouts sharing a key partition the same [0, 1_000_000)
// range rather than each starting from zero.
func (a *ApplyFeature) Apply(strategies []RolloutStrategy, key, featureID string, ctx ClientContext) Applied {
	if ctx == nil || len(strategies) == 0 {
		return Applied{Matched: false}
	}

	basePercentage := map[string]int{}
	percentageMemo := map[string]int{}

	hasDefaultKey := ctx.DefaultPercentageKey() != ""

	for i := range strategies {
		s := &strategies[i]

		if s.Percentage != 0 && (hasDefaultKey || s.HasPercentageAttributes()) {
			pk := a.determinePercentageKey(s, ctx)

			percentage, ok := percentageMemo[pk]
			if !ok {
				percentage = a.percentageCalculator.DeterminePercentage(pk, featureID)
				percentageMemo[pk] = percentage
			}

			useBase := 0
			if !s.HasAttributes() {
				useBase = basePercentage[pk]
			}

			if percentage <= useBase+s.Percentage {
				if !s.HasAttributes() || a.matchAttribute(ctx, s) {
					return Applied{Matched: true, Value: s.Value}
				}
			}

			if !s.HasAttributes() {
				basePercentage[pk] += s.Percentage
			}
		} else if s.Percentage == 0 && s.HasAttributes() && a.matchAttribute(ctx, s) {
			return Applied{Matched: true, Value: s.Value}
		}
	}

	return Applied{Matched: false}
}

// matchAttribute requires every attribute on s to match ctx. An attribute
// whose values and supplied context value are both absent matches only
// when its conditional is EQUALS; an attribute where exactly one side is
// absent never matches.
func (a *ApplyFeature) matchAttribute(ctx ClientContext, s *RolloutStrategy) bool {
	for i := range s.Attributes {
		attr := &s.Attributes[i]

		supplied, suppliedOK := a.suppliedValue(attr, ctx)
		valuesAbsent := len(attr.Values) == 0

		switch {
		case valuesAbsent && !suppliedOK:
			if attr.Conditional != ConditionalEquals {
				return false
			}
			continue
		case valuesAbsent == suppliedOK:
			return false
		}

		matcher := a.matcherRepository.FindMatcher(attr)
		if !matcher.Match(supplied, attr) {
			return false
		}
	}
	return true
}

// suppliedValue resolves ctx's value for attr.FieldName. The field named
// "now" (case-insensitively) synthesises the current UTC instant when the
// context supplies nothing, formatted per attr.Type.
func (a *ApplyFeature) suppliedValue(attr *RolloutStrategyAttribute, ctx ClientContext) (string, bool) {
	if v, ok := ctx.GetAttrValue(attr.FieldName); ok {
		return v, true
	}

	if strings.EqualFold(attr.FieldName, "now") {
		switch attr.Type {
		case FieldTypeDate:
			return time.Now().UTC().Format("2006-01-02"), true
		case FieldTypeDatetime:
			return time.Now().UTC().Format(time.RFC3339), true
		}
	}

	return "", false
}

// determinePercentageKey resolves the bucketing key for a strategy: the
// "$"-joined context values for s.PercentageAttributes (missing ones
// substitute "<none>"), or ctx.DefaultPercentageKey() when the strategy
// names no percentage attributes.
func (a *ApplyFeature) determinePercentageKey(s *RolloutStrategy, ctx ClientContext) string {
	if !s.HasPercentageAttributes() {
		return ctx.DefaultPercentageKey()
	}

	parts := make([]string, len(s.PercentageAttributes))
	for i, field := range s.PercentageAttributes {
		v, ok := ctx.GetAttrValue(field)
		if !ok {
			v = "<none>"
		}
		parts[i] = v
	}

	return strings.Join(parts, "$")
}
