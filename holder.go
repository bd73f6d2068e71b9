package featurehub

import "strconv"

// FeatureStateHolder is the handle callers get back from
// Repository.Feature(key). It plays one of three roles:
//
//   - live: reflects the repository's current value for the key, updated
//     in place as the edge pushes new versions.
//   - sentinel: created the first time a key is requested before the repo
//     has ever seen that key from the edge; exists() is false until the
//     edge eventually defines it, but callers keep a stable reference.
//   - context-bound child: returned by WithContext, evaluates rollout
//     strategies against the supplied ClientContext and falls back to the
//     parent's plain value when no strategy matches.
type FeatureStateHolder struct {
	id         string
	key        string
	version    int64
	valueType  FeatureValueType
	value      interface{}
	locked     bool
	exists     bool
	strategies []RolloutStrategy
	properties map[string]string

	parent *FeatureStateHolder
	ctx    ClientContext

	apply       *ApplyFeature
	interceptor func(key string) (InterceptorValue, bool)
}

func newSentinelHolder(key string) *FeatureStateHolder {
	return &FeatureStateHolder{key: key, version: -1, exists: false}
}

func (h *FeatureStateHolder) copyFrom(w featureStateWire) {
	h.id = w.ID
	h.key = w.Key
	h.version = w.Version
	h.valueType = FeatureValueType(w.Type)
	h.value = w.Value
	h.locked = w.Locked != nil && *w.Locked
	h.exists = w.Locked != nil
	h.strategies = w.Strategies
	h.properties = w.Properties
}

// WithContext returns a new holder scoped to ctx: its getters run the
// rollout-strategy Apply engine against ctx before falling back to the
// parent holder's plain value.
func (h *FeatureStateHolder) WithContext(ctx ClientContext) *FeatureStateHolder {
	if ctx == nil {
		return h
	}

	return &FeatureStateHolder{
		id:          h.id,
		key:         h.key,
		version:     h.version,
		valueType:   h.valueType,
		value:       h.value,
		locked:      h.locked,
		exists:      h.exists,
		strategies:  h.strategies,
		properties:  h.properties,
		parent:      h,
		ctx:         ctx,
		apply:       h.apply,
		interceptor: h.interceptor,
	}
}

// Key returns the feature's key.
func (h *FeatureStateHolder) Key() string { return h.key }

// ID returns the feature's server-assigned id.
func (h *FeatureStateHolder) ID() string { return h.id }

// Version returns the last version number pushed by the edge.
func (h *FeatureStateHolder) Version() int64 { return h.version }

// Locked reports whether the feature is locked (rollout strategies are
// never evaluated for a locked feature; only its plain value is used).
func (h *FeatureStateHolder) Locked() bool { return h.locked }

// Exists reports whether the edge has ever defined this key. A holder
// returned before the first successful poll/stream update exists() as
// false.
func (h *FeatureStateHolder) Exists() bool { return h.exists }

// Type returns the feature's wire value type.
func (h *FeatureStateHolder) Type() FeatureValueType { return h.valueType }

// FeatureProperties returns the feature's server-assigned properties (the
// wire's "fp" field), or an empty, non-nil map if none are set.
func (h *FeatureStateHolder) FeatureProperties() map[string]string {
	if h.properties == nil {
		return map[string]string{}
	}
	return h.properties
}

// getValue resolves this holder's effective value: an interceptor
// override takes precedence when the feature isn't locked, then a
// matching rollout strategy (if this holder is context-bound and the
// feature isn't locked), then the plain value.
func (h *FeatureStateHolder) getValue() interface{} {
	if h.interceptor != nil && !h.locked {
		if iv, ok := h.interceptor(h.key); ok {
			return iv.Cast(h.valueType)
		}
	}

	if h.ctx != nil && !h.locked && len(h.strategies) > 0 && h.apply != nil {
		applied := h.apply.Apply(h.strategies, h.key, h.id, h.ctx)
		if applied.Matched {
			return applied.Value
		}
	}

	return h.value
}

// GetFlag is an alias for GetBoolean.
func (h *FeatureStateHolder) GetFlag() *bool { return h.GetBoolean() }

// GetBoolean returns the feature's boolean value, or nil if it isn't a
// boolean feature or has never been set.
func (h *FeatureStateHolder) GetBoolean() *bool {
	v := h.getValue()
	if b, ok := v.(bool); ok {
		return &b
	}
	return nil
}

// GetString returns the feature's value formatted as a string, or nil if
// unset.
func (h *FeatureStateHolder) GetString() *string {
	v := h.getValue()
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case string:
		return &t
	default:
		s := toStr(v)
		return &s
	}
}

// GetNumber returns the feature's value as a float64, or nil if it isn't
// numeric or is unset.
func (h *FeatureStateHolder) GetNumber() *float64 {
	v := h.getValue()
	switch t := v.(type) {
	case float64:
		return &t
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return &f
		}
	}
	return nil
}

// GetRawJSON returns the feature's raw JSON value (object/array/anything
// else), or nil if unset.
func (h *FeatureStateHolder) GetRawJSON() interface{} {
	return h.getValue()
}

// IsSet reports whether the feature currently has a non-nil value.
func (h *FeatureStateHolder) IsSet() bool {
	return h.getValue() != nil
}

// IsEnabled is shorthand for a boolean feature's current truthiness;
// non-boolean or unset features are always disabled.
func (h *FeatureStateHolder) IsEnabled() bool {
	b := h.GetBoolean()
	return b != nil && *b
}
