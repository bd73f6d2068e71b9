package featurehub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRolloutStrategyAttribute_UnmarshalJSON(t *testing.T) {
	raw := []byte(`{"id":"1","fieldName":"country","conditional":"EQUALS","type":"STRING","values":["NZ","AU"]}`)

	var attr RolloutStrategyAttribute
	require.NoError(t, json.Unmarshal(raw, &attr))

	assert.Equal(t, "country", attr.FieldName)
	assert.Equal(t, ConditionalEquals, attr.Conditional)
	assert.Equal(t, FieldTypeString, attr.Type)
	assert.Equal(t, []string{"NZ", "AU"}, attr.StrValues())
}

func TestRolloutStrategyAttribute_UnmarshalJSON_UnknownConditional(t *testing.T) {
	raw := []byte(`{"fieldName":"country","conditional":"SOMETHING_ELSE","type":"STRING","values":["NZ"]}`)

	var attr RolloutStrategyAttribute
	err := json.Unmarshal(raw, &attr)
	require.Error(t, err)

	var sdkErr *SDKError
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, ErrorTypeInvalidFlag, sdkErr.Type)
}

func TestRolloutStrategyAttribute_UnmarshalJSON_UnknownType(t *testing.T) {
	raw := []byte(`{"fieldName":"country","conditional":"EQUALS","type":"WEIRD","values":["NZ"]}`)

	var attr RolloutStrategyAttribute
	err := json.Unmarshal(raw, &attr)
	require.Error(t, err)
}

func TestRolloutStrategy_UnmarshalJSON(t *testing.T) {
	raw := []byte(`{
		"id": "strat-1",
		"name": "beta-rollout",
		"value": "sausage",
		"percentage": 250000,
		"percentageAttributes": ["userkey"],
		"attributes": [
			{"fieldName":"warehouseId","conditional":"INCLUDES","type":"STRING","values":["ponsonby"]}
		]
	}`)

	var s RolloutStrategy
	require.NoError(t, json.Unmarshal(raw, &s))

	assert.Equal(t, "strat-1", s.ID)
	assert.Equal(t, "sausage", s.Value)
	assert.Equal(t, 250000, s.Percentage)
	assert.True(t, s.HasAttributes())
	assert.True(t, s.HasPercentageAttributes())
}

func TestRolloutStrategyAttribute_FloatValues(t *testing.T) {
	attr := RolloutStrategyAttribute{Values: []interface{}{1.5, "2.5", nil, "not-a-number"}}
	assert.Equal(t, []float64{1.5, 2.5}, attr.FloatValues())
}

func TestRolloutStrategyAttribute_StrValues_SkipsNil(t *testing.T) {
	attr := RolloutStrategyAttribute{Values: []interface{}{"a", nil, "b"}}
	assert.Equal(t, []string{"a", "b"}, attr.StrValues())
}
