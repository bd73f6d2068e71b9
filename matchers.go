package featurehub

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/twmb/murmur3"
)

// PercentageCalculator buckets a (percentageText, featureID) pair into
// [0, 999_999]. Implementations must be bit-identical across SDKs because
// client-side and server-side evaluation have to agree on the same bucket
// for the same inputs.
type PercentageCalculator interface {
	DeterminePercentage(percentageText, featureID string) int
}

// Murmur3PercentageCalculator is the reference implementation: MurmurHash3
// (32-bit, seed 0) of percentageText+featureID, scaled into
// [0, 999_999]. This is the FeatureHub wire protocol's bucketing function
// and every SDK (Java, Python, .NET, ...) computes it identically.
type Murmur3PercentageCalculator struct{}

const murmur3Seed = 0
const maxPercentage = 1_000_000

// DeterminePercentage implements PercentageCalculator.
func (Murmur3PercentageCalculator) DeterminePercentage(percentageText, featureID string) int {
	h := murmur3.SeedSum32(murmur3Seed, []byte(percentageText+featureID))
	return int(float64(h) / 4294967296.0 * maxPercentage)
}

// StrategyMatcher decides whether a context-supplied value satisfies one
// RolloutStrategyAttribute.
type StrategyMatcher interface {
	Match(supplied string, attr *RolloutStrategyAttribute) bool
}

// MatcherRepository resolves the StrategyMatcher responsible for a given
// attribute's field type.
type MatcherRepository interface {
	FindMatcher(attr *RolloutStrategyAttribute) StrategyMatcher
}

// MatcherRegistry is the default MatcherRepository, dispatching on
// RolloutStrategyAttribute.Type.
type MatcherRegistry struct{}

func (MatcherRegistry) FindMatcher(attr *RolloutStrategyAttribute) StrategyMatcher {
	switch attr.Type {
	case FieldTypeString, FieldTypeDate, FieldTypeDatetime:
		return StringMatcher{}
	case FieldTypeSemanticVersion:
		return SemanticVersionMatcher{}
	case FieldTypeNumber:
		return NumberMatcher{}
	case FieldTypeBoolean:
		return BooleanMatcher{}
	case FieldTypeIPAddress:
		return IPAddressMatcher{}
	default:
		return FallthroughMatcher{}
	}
}

// FallthroughMatcher never matches; used for field types MatcherRegistry
// doesn't otherwise recognise.
type FallthroughMatcher struct{}

func (FallthroughMatcher) Match(string, *RolloutStrategyAttribute) bool { return false }

// BooleanMatcher compares the supplied value, case-insensitively, to the
// first configured value interpreted as a boolean.
type BooleanMatcher struct{}

func (BooleanMatcher) Match(supplied string, attr *RolloutStrategyAttribute) bool {
	if len(attr.Values) == 0 {
		return false
	}

	val := strings.EqualFold(supplied, "true")
	want := strings.EqualFold(strings.TrimSpace(toStr(attr.Values[0])), "true")

	switch attr.Conditional {
	case ConditionalEquals:
		return val == want
	case ConditionalNotEquals:
		return val != want
	default:
		return false
	}
}

func toStr(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// StringMatcher implements set membership, prefix/suffix, lexical
// ordering, and regex matching over attr.StrValues().
type StringMatcher struct{}

func (StringMatcher) Match(supplied string, attr *RolloutStrategyAttribute) bool {
	vals := attr.StrValues()

	any := func(pred func(string) bool) bool {
		for _, v := range vals {
			if pred(v) {
				return true
			}
		}
		return false
	}
	none := func(pred func(string) bool) bool { return !any(pred) }

	switch attr.Conditional {
	case ConditionalEquals:
		return any(func(v string) bool { return supplied == v })
	case ConditionalNotEquals:
		return none(func(v string) bool { return supplied == v })
	case ConditionalIncludes:
		return any(func(v string) bool { return strings.Contains(supplied, v) })
	case ConditionalExcludes:
		return none(func(v string) bool { return strings.Contains(supplied, v) })
	case ConditionalStartsWith:
		return any(func(v string) bool { return strings.HasPrefix(supplied, v) })
	case ConditionalEndsWith:
		return any(func(v string) bool { return strings.HasSuffix(supplied, v) })
	case ConditionalGreater:
		return any(func(v string) bool { return supplied > v })
	case ConditionalGreaterEquals:
		return any(func(v string) bool { return supplied >= v })
	case ConditionalLess:
		return any(func(v string) bool { return supplied < v })
	case ConditionalLessEquals:
		return any(func(v string) bool { return supplied <= v })
	case ConditionalRegex:
		return any(func(v string) bool {
			re, err := regexp.Compile(v)
			if err != nil {
				return false
			}
			return re.MatchString(supplied)
		})
	default:
		return false
	}
}

// NumberMatcher parses the supplied value as a float for numeric
// conditionals, but falls back to plain string semantics for
// StartsWith/EndsWith/Regex — preserved from the reference implementation
// even though it reads oddly for a "number" matcher (see spec open
// questions).
type NumberMatcher struct{}

func (NumberMatcher) Match(supplied string, attr *RolloutStrategyAttribute) bool {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(supplied), 64)
	if err != nil {
		return false
	}

	switch attr.Conditional {
	case ConditionalEndsWith:
		for _, v := range attr.StrValues() {
			if strings.HasSuffix(supplied, v) {
				return true
			}
		}
		return false
	case ConditionalStartsWith:
		for _, v := range attr.StrValues() {
			if strings.HasPrefix(supplied, v) {
				return true
			}
		}
		return false
	case ConditionalRegex:
		for _, v := range attr.StrValues() {
			re, err := regexp.Compile(v)
			if err == nil && re.MatchString(supplied) {
				return true
			}
		}
		return false
	}

	vals := attr.FloatValues()
	any := func(pred func(float64) bool) bool {
		for _, v := range vals {
			if pred(v) {
				return true
			}
		}
		return false
	}

	switch attr.Conditional {
	case ConditionalEquals, ConditionalIncludes:
		return any(func(v float64) bool { return parsed == v })
	case ConditionalGreater:
		return any(func(v float64) bool { return parsed > v })
	case ConditionalGreaterEquals:
		return any(func(v float64) bool { return parsed >= v })
	case ConditionalLess:
		return any(func(v float64) bool { return parsed < v })
	case ConditionalLessEquals:
		return any(func(v float64) bool { return parsed <= v })
	case ConditionalNotEquals, ConditionalExcludes:
		return !any(func(v float64) bool { return parsed == v })
	default:
		return false
	}
}

// SemanticVersionMatcher compares the supplied value to each configured
// value using loose semver ordering.
type SemanticVersionMatcher struct{}

func (SemanticVersionMatcher) Match(supplied string, attr *RolloutStrategyAttribute) bool {
	sv, err := semver.NewVersion(supplied)
	if err != nil {
		return false
	}

	cmp := func(v string) (int, bool) {
		other, err := semver.NewVersion(v)
		if err != nil {
			return 0, false
		}
		return sv.Compare(other), true
	}

	any := func(pred func(int) bool) bool {
		for _, v := range attr.StrValues() {
			if c, ok := cmp(v); ok && pred(c) {
				return true
			}
		}
		return false
	}

	switch attr.Conditional {
	case ConditionalIncludes, ConditionalEquals:
		return any(func(c int) bool { return c == 0 })
	case ConditionalExcludes, ConditionalNotEquals:
		return !any(func(c int) bool { return c == 0 })
	case ConditionalGreater:
		return any(func(c int) bool { return c > 0 })
	case ConditionalGreaterEquals:
		return any(func(c int) bool { return c >= 0 })
	case ConditionalLess:
		return any(func(c int) bool { return c < 0 })
	case ConditionalLessEquals:
		return any(func(c int) bool { return c <= 0 })
	default:
		return false
	}
}

// IPAddressMatcher treats each configured value as a plain address or a
// CIDR network. EXCLUDES and NOT_EQUALS are intentionally identical, per
// the reference implementation (spec open question: preserve, don't
// invent a distinction).
type IPAddressMatcher struct{}

func (IPAddressMatcher) Match(supplied string, attr *RolloutStrategyAttribute) bool {
	ip := net.ParseIP(supplied)
	if ip == nil {
		return false
	}

	contains := func(v string) bool {
		if _, network, err := net.ParseCIDR(v); err == nil {
			return network.Contains(ip)
		}
		if other := net.ParseIP(v); other != nil {
			return other.Equal(ip)
		}
		return false
	}

	any := func() bool {
		for _, v := range attr.StrValues() {
			if contains(v) {
				return true
			}
		}
		return false
	}

	switch attr.Conditional {
	case ConditionalIncludes, ConditionalEquals:
		return any()
	case ConditionalExcludes, ConditionalNotEquals:
		return !any()
	default:
		return false
	}
}
