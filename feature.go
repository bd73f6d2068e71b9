package featurehub

import "encoding/json"

// featureStateWire is the JSON shape of a feature as sent by the edge
// service (polling body or SSE `feature`/`features` events). Unknown
// fields are ignored by encoding/json by default.
type featureStateWire struct {
	ID         string            `json:"id"`
	Key        string            `json:"key"`
	Version    int64             `json:"version"`
	Type       string            `json:"type"`
	Value      interface{}       `json:"value"`
	Locked     *bool             `json:"l"`
	Strategies []RolloutStrategy `json:"strategies"`
	Properties map[string]string `json:"fp"`
}

// deleteFeatureWire is the partial payload carried by a delete_feature
// event: only the key is guaranteed to be present.
type deleteFeatureWire struct {
	Key string `json:"key"`
}

// environmentFeaturesWire wraps one polled environment's feature list, the
// shape the polling endpoint returns a list of.
type environmentFeaturesWire struct {
	Features []featureStateWire `json:"features"`
}

func decodeFeatureStates(data []byte) ([]featureStateWire, error) {
	var envs []environmentFeaturesWire
	if err := json.Unmarshal(data, &envs); err != nil {
		return nil, err
	}

	var all []featureStateWire
	for _, env := range envs {
		all = append(all, env.Features...)
	}
	return all, nil
}
