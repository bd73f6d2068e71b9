package featurehub

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FeatureValueType is the wire type tag for a feature's value.
type FeatureValueType string

const (
	FeatureValueTypeBoolean FeatureValueType = "BOOLEAN"
	FeatureValueTypeString  FeatureValueType = "STRING"
	FeatureValueTypeNumber  FeatureValueType = "NUMBER"
	FeatureValueTypeJSON    FeatureValueType = "JSON"
)

// RolloutStrategyFieldType is the type of a RolloutStrategyAttribute's
// values, used to pick the StrategyMatcher that applies to it.
type RolloutStrategyFieldType string

const (
	FieldTypeString          RolloutStrategyFieldType = "STRING"
	FieldTypeSemanticVersion RolloutStrategyFieldType = "SEMANTIC_VERSION"
	FieldTypeNumber          RolloutStrategyFieldType = "NUMBER"
	FieldTypeDate            RolloutStrategyFieldType = "DATE"
	FieldTypeDatetime        RolloutStrategyFieldType = "DATETIME"
	FieldTypeBoolean         RolloutStrategyFieldType = "BOOLEAN"
	FieldTypeIPAddress       RolloutStrategyFieldType = "IP_ADDRESS"
)

// RolloutStrategyAttributeConditional is the comparison operator carried by
// a RolloutStrategyAttribute.
type RolloutStrategyAttributeConditional string

const (
	ConditionalEquals        RolloutStrategyAttributeConditional = "EQUALS"
	ConditionalNotEquals     RolloutStrategyAttributeConditional = "NOT_EQUALS"
	ConditionalIncludes      RolloutStrategyAttributeConditional = "INCLUDES"
	ConditionalExcludes      RolloutStrategyAttributeConditional = "EXCLUDES"
	ConditionalStartsWith    RolloutStrategyAttributeConditional = "STARTS_WITH"
	ConditionalEndsWith      RolloutStrategyAttributeConditional = "ENDS_WITH"
	ConditionalGreater       RolloutStrategyAttributeConditional = "GREATER"
	ConditionalGreaterEquals RolloutStrategyAttributeConditional = "GREATER_EQUALS"
	ConditionalLess          RolloutStrategyAttributeConditional = "LESS"
	ConditionalLessEquals    RolloutStrategyAttributeConditional = "LESS_EQUALS"
	ConditionalRegex         RolloutStrategyAttributeConditional = "REGEX"
)

func parseFieldType(s string) (RolloutStrategyFieldType, error) {
	switch RolloutStrategyFieldType(s) {
	case FieldTypeString, FieldTypeSemanticVersion, FieldTypeNumber, FieldTypeDate,
		FieldTypeDatetime, FieldTypeBoolean, FieldTypeIPAddress:
		return RolloutStrategyFieldType(s), nil
	default:
		return "", NewSDKError(ErrorTypeInvalidFlag, fmt.Sprintf("unknown rollout strategy field type %q", s), nil)
	}
}

func parseConditional(s string) (RolloutStrategyAttributeConditional, error) {
	switch RolloutStrategyAttributeConditional(s) {
	case ConditionalEquals, ConditionalNotEquals, ConditionalIncludes, ConditionalExcludes,
		ConditionalStartsWith, ConditionalEndsWith, ConditionalGreater, ConditionalGreaterEquals,
		ConditionalLess, ConditionalLessEquals, ConditionalRegex:
		return RolloutStrategyAttributeConditional(s), nil
	default:
		return "", NewSDKError(ErrorTypeInvalidFlag, fmt.Sprintf("unknown rollout strategy conditional %q", s), nil)
	}
}

// RolloutStrategyAttribute is one condition a request context must satisfy
// for its enclosing RolloutStrategy to be considered a candidate match.
type RolloutStrategyAttribute struct {
	FieldName   string
	Conditional RolloutStrategyAttributeConditional
	Type        RolloutStrategyFieldType
	Values      []interface{}
}

// wireRolloutStrategyAttribute mirrors the JSON shape sent by the edge.
type wireRolloutStrategyAttribute struct {
	ID          string            `json:"id"`
	FieldName   string            `json:"fieldName"`
	Conditional string            `json:"conditional"`
	Type        string            `json:"type"`
	Values      []json.RawMessage `json:"values"`
}

// UnmarshalJSON validates and converts the wire representation, failing
// loudly (per spec §4.A) on an unrecognised conditional or field type.
func (a *RolloutStrategyAttribute) UnmarshalJSON(data []byte) error {
	var w wireRolloutStrategyAttribute
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	cond, err := parseConditional(w.Conditional)
	if err != nil {
		return err
	}

	typ, err := parseFieldType(w.Type)
	if err != nil {
		return err
	}

	values := make([]interface{}, 0, len(w.Values))
	for _, raw := range w.Values {
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		values = append(values, v)
	}

	a.FieldName = w.FieldName
	a.Conditional = cond
	a.Type = typ
	if len(values) > 0 {
		a.Values = values
	}

	return nil
}

// StrValues coerces Values to strings, skipping entries that are nil.
func (a *RolloutStrategyAttribute) StrValues() []string {
	out := make([]string, 0, len(a.Values))
	for _, v := range a.Values {
		if v == nil {
			continue
		}
		out = append(out, fmt.Sprintf("%v", v))
	}
	return out
}

// FloatValues coerces Values to float64, skipping entries that don't parse
// and nil entries.
func (a *RolloutStrategyAttribute) FloatValues() []float64 {
	out := make([]float64, 0, len(a.Values))
	for _, v := range a.Values {
		if v == nil {
			continue
		}
		switch t := v.(type) {
		case float64:
			out = append(out, t)
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				out = append(out, f)
			}
		}
	}
	return out
}

// RolloutStrategy is a single variant/rule for a feature: a percentage
// bucket gate, an attribute-matching gate, or both.
type RolloutStrategy struct {
	ID                   string
	Name                 string
	Value                interface{}
	Percentage           int
	PercentageAttributes []string
	Attributes           []RolloutStrategyAttribute
}

type wireRolloutStrategy struct {
	ID                   string                     `json:"id"`
	Name                 string                     `json:"name"`
	Value                interface{}                `json:"value"`
	Percentage           int                        `json:"percentage"`
	PercentageAttributes []string                   `json:"percentageAttributes"`
	Attributes           []RolloutStrategyAttribute `json:"attributes"`
}

func (s *RolloutStrategy) UnmarshalJSON(data []byte) error {
	var w wireRolloutStrategy
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	s.ID = w.ID
	s.Name = w.Name
	s.Value = w.Value
	s.Percentage = w.Percentage
	s.PercentageAttributes = w.PercentageAttributes
	s.Attributes = w.Attributes

	return nil
}

// HasAttributes reports whether this strategy carries any attribute
// conditions that must all match.
func (s *RolloutStrategy) HasAttributes() bool {
	return len(s.Attributes) > 0
}

// HasPercentageAttributes reports whether the percentage bucket key is
// derived from specific context attributes rather than the default key.
func (s *RolloutStrategy) HasPercentageAttributes() bool {
	return len(s.PercentageAttributes) > 0
}

// Applied is the outcome of running the Apply engine against a strategy
// list: whether a strategy matched, and if so, the value it contributes.
type Applied struct {
	Matched bool
	Value   interface{}
}
