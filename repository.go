package featurehub

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FeatureStateSnapshot is a read-only view of one live feature, returned
// by Repository.ExtractFeatureState for callers that want to inspect the
// whole repository (diagnostics, admin endpoints) without going through
// per-key holders.
type FeatureStateSnapshot struct {
	ID      string
	Key     string
	Version int64
	Type    FeatureValueType
	Value   interface{}
	Locked  bool
}

// Repository is the in-memory, keyed store of feature states. Exactly
// one Repository backs a Config; every ClientEvalContext/ServerEvalContext
// reads through it, and exactly one edge service writes to it via Notify.
type Repository struct {
	mu       sync.RWMutex
	features map[string]*FeatureStateHolder
	ready    bool

	interceptors []ValueInterceptor
	apply        *ApplyFeature

	logger zerolog.Logger
}

// newRepository builds an empty, not-ready Repository.
func newRepository() *Repository {
	return &Repository{
		features: map[string]*FeatureStateHolder{},
		apply:    NewApplyFeature(),
		logger:   log.With().Str("component", "repository").Logger(),
	}
}

// Feature returns the holder for key, creating a not-yet-existing
// sentinel the first time key is requested. The returned holder's
// identity is stable: later Notify calls mutate this same holder rather
// than replacing it, so callers may hold onto the reference.
func (r *Repository) Feature(key string) *FeatureStateHolder {
	r.mu.RLock()
	h, ok := r.features[key]
	r.mu.RUnlock()
	if ok {
		return h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.features[key]; ok {
		return h
	}

	h = newSentinelHolder(key)
	h.apply = r.apply
	h.interceptor = r.FindInterceptor
	r.features[key] = h
	return h
}

// IsReady reports whether the repository has ever received a successful
// features/feature notification since the last failure.
func (r *Repository) IsReady() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// NotReady clears the readiness latch, used by ServerEvalContext.Build
// while a new context header is in flight.
func (r *Repository) NotReady() {
	r.mu.Lock()
	r.ready = false
	r.mu.Unlock()
}

// RegisterInterceptor adds v to the interceptor chain, consulted in
// registration order by FindInterceptor.
func (r *Repository) RegisterInterceptor(v ValueInterceptor) {
	r.mu.Lock()
	r.interceptors = append(r.interceptors, v)
	r.mu.Unlock()
}

// FindInterceptor returns the first registered interceptor willing to
// override key, or (zero value, false) if none claims it.
func (r *Repository) FindInterceptor(key string) (InterceptorValue, bool) {
	r.mu.RLock()
	interceptors := r.interceptors
	r.mu.RUnlock()

	for _, it := range interceptors {
		if iv, ok := it.Intercept(key); ok {
			return iv, true
		}
	}
	return InterceptorValue{}, false
}

// ExtractFeatureState snapshots every live (non-sentinel) feature
// currently held.
func (r *Repository) ExtractFeatureState() []FeatureStateSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]FeatureStateSnapshot, 0, len(r.features))
	for _, h := range r.features {
		if !h.Exists() {
			continue
		}
		out = append(out, FeatureStateSnapshot{
			ID:      h.ID(),
			Key:     h.Key(),
			Version: h.Version(),
			Type:    h.Type(),
			Value:   h.GetRawJSON(),
			Locked:  h.Locked(),
		})
	}
	return out
}

// Notify is the single entry point edge services use to push updates
// into the repository. kind is one of "failed", "features", "feature",
// "delete_feature"; data is the raw JSON payload for that event (nil for
// "failed").
func (r *Repository) Notify(kind string, data json.RawMessage) {
	switch kind {
	case "failed":
		r.mu.Lock()
		r.ready = false
		r.mu.Unlock()
		return
	case "config":
		// Handled by the edge service itself (edge.stale); nothing for
		// the repository to do.
		return
	}

	if len(data) == 0 {
		return
	}

	switch kind {
	case "features":
		var list []featureStateWire
		if err := json.Unmarshal(data, &list); err != nil {
			r.logger.Warn().Err(err).Msg("malformed features payload, ignoring")
			return
		}
		r.NotifyFeatures(list)

	case "feature":
		var w featureStateWire
		if err := json.Unmarshal(data, &w); err != nil {
			r.logger.Warn().Err(err).Msg("malformed feature payload, ignoring")
			return
		}
		r.updateFeature(w)
		r.mu.Lock()
		r.ready = true
		r.mu.Unlock()

	case "delete_feature":
		var w deleteFeatureWire
		if err := json.Unmarshal(data, &w); err != nil {
			r.logger.Warn().Err(err).Msg("malformed delete_feature payload, ignoring")
			return
		}
		r.deleteFeature(w.Key)
	}
}

// NotifyFeatures applies the version-monotonic overwrite rule to every
// record in list and then marks the repository ready. Edge services that
// already hold parsed records (PollingEdge, after decoding its response
// body) call this directly instead of round-tripping through JSON again.
func (r *Repository) NotifyFeatures(list []featureStateWire) {
	for _, w := range list {
		r.updateFeature(w)
	}
	r.mu.Lock()
	r.ready = true
	r.mu.Unlock()
}

// updateFeature applies the version-monotonic overwrite rule for a
// single incoming record.
func (r *Repository) updateFeature(w featureStateWire) {
	if w.Key == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.features[w.Key]
	if !ok {
		h = newSentinelHolder(w.Key)
		h.apply = r.apply
		h.interceptor = r.FindInterceptor
		r.features[w.Key] = h
	}

	if h.exists {
		if w.Version < h.version {
			return
		}
		if w.Version == h.version && equalValue(w.Value, h.value) {
			return
		}
	}

	h.copyFrom(w)
}

// deleteFeature resets a holder to the absent state, keeping its
// identity stable for callers already holding a reference.
func (r *Repository) deleteFeature(key string) {
	if key == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.features[key]
	if !ok {
		return
	}
	h.id = ""
	h.version = -1
	h.value = nil
	h.locked = false
	h.exists = false
	h.strategies = nil
}

// Apply delegates to the repository's strategy applier, used by
// FeatureStateHolder getters through the apply field.
func (r *Repository) Apply(strategies []RolloutStrategy, key, featureID string, ctx ClientContext) Applied {
	return r.apply.Apply(strategies, key, featureID, ctx)
}

func equalValue(a, b interface{}) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aj) == string(bj)
}
