package featurehub

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strings"
)

// ClientContext is the subset of the context facade the Apply engine and
// FeatureStateHolder depend on: attribute lookup for matchers, and the
// default percentage-bucketing key.
type ClientContext interface {
	GetAttrValue(key string) (string, bool)
	DefaultPercentageKey() string
}

// Context is the full request-scoped facade: attribute builder methods
// plus typed feature reads. NewContext returns either a
// *ClientEvalContext or a *ServerEvalContext behind this interface,
// depending on the configured API key type.
type Context interface {
	ClientContext

	UserKey(value string) Context
	SessionKey(value string) Context
	Country(value string) Context
	Device(value string) Context
	Platform(value string) Context
	Version(value string) Context
	AttributeValues(key string, values []string) Context
	Clear() Context
	GetAttr(key, defaultValue string) string

	Feature(name string) *FeatureStateHolder
	IsEnabled(name string) bool
	IsSet(name string) bool
	GetBoolean(name string) *bool
	GetString(name string) *string
	GetNumber(name string) *float64
	GetRawJSON(name string) interface{}
	GetJSON(name string, out interface{}) error

	// Build suspends while the context's edge service catches up: for
	// ClientEvalContext, ensuring at least one poll/connect has
	// completed; for ServerEvalContext, sending a changed context header
	// to the edge.
	Build() error
	Close() error
}

// attributes holds the request-scoped context values. Each value is
// either a scalar string or a slice of strings (attribute_values, or a
// well-known multi-value attribute).
type attributes map[string]interface{}

func (a attributes) first(key string) (string, bool) {
	v, ok := a[key]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case []string:
		if len(t) == 0 {
			return "", false
		}
		return t[0], true
	default:
		return "", false
	}
}

// baseContext implements the attribute storage and typed-getter surface
// shared by ClientEvalContext and ServerEvalContext. Its builder methods
// are unexported (setAttr et al.) because the fluent, interface-typed
// builder methods (UserKey, SessionKey, ...) must be implemented per
// concrete context type so they can return that type as a Context.
type baseContext struct {
	repo  *Repository
	attrs attributes
}

func newBaseContext(repo *Repository) *baseContext {
	return &baseContext{repo: repo, attrs: attributes{}}
}

func (c *baseContext) setAttr(key, value string) { c.attrs[key] = value }

func (c *baseContext) setAttrValues(key string, values []string) { c.attrs[key] = values }

func (c *baseContext) clearAttrs() { c.attrs = attributes{} }

// GetAttr returns the attribute's first value, or defaultValue if unset.
func (c *baseContext) GetAttr(key, defaultValue string) string {
	if v, ok := c.attrs.first(key); ok {
		return v
	}
	return defaultValue
}

// GetAttrValue implements ClientContext.
func (c *baseContext) GetAttrValue(key string) (string, bool) {
	return c.attrs.first(key)
}

// DefaultPercentageKey implements ClientContext: session takes priority
// over userkey.
func (c *baseContext) DefaultPercentageKey() string {
	if v, ok := c.attrs.first("session"); ok {
		return v
	}
	return c.GetAttr("userkey", "")
}

func (c *baseContext) isEnabled(name string) bool { return c.repo.Feature(name).IsEnabled() }
func (c *baseContext) isSet(name string) bool     { return c.repo.Feature(name).IsSet() }

func (c *baseContext) getJSON(h *FeatureStateHolder, out interface{}) error {
	raw := h.GetRawJSON()
	if raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// ClientEvalContext evaluates rollout strategies locally: Feature returns
// a holder bound to this context so the Apply engine runs against its
// attributes.
type ClientEvalContext struct {
	*baseContext
	edge EdgeService
}

func newClientEvalContext(repo *Repository, edge EdgeService) *ClientEvalContext {
	return &ClientEvalContext{baseContext: newBaseContext(repo), edge: edge}
}

func (c *ClientEvalContext) UserKey(v string) Context    { c.setAttr("userkey", v); return c }
func (c *ClientEvalContext) SessionKey(v string) Context { c.setAttr("session", v); return c }
func (c *ClientEvalContext) Country(v string) Context    { c.setAttr("country", v); return c }
func (c *ClientEvalContext) Device(v string) Context     { c.setAttr("device", v); return c }
func (c *ClientEvalContext) Platform(v string) Context   { c.setAttr("platform", v); return c }
func (c *ClientEvalContext) Version(v string) Context    { c.setAttr("version", v); return c }
func (c *ClientEvalContext) AttributeValues(k string, v []string) Context {
	c.setAttrValues(k, v)
	return c
}
func (c *ClientEvalContext) Clear() Context { c.clearAttrs(); return c }

// Build ensures the edge service has completed at least one poll/stream
// connection attempt before returning.
func (c *ClientEvalContext) Build() error {
	return c.edge.Poll()
}

// Close tears down this context's edge service.
func (c *ClientEvalContext) Close() error {
	return c.edge.Close()
}

// Feature returns a holder scoped to this context's attributes.
func (c *ClientEvalContext) Feature(name string) *FeatureStateHolder {
	return c.repo.Feature(name).WithContext(c)
}

func (c *ClientEvalContext) IsEnabled(name string) bool         { return c.Feature(name).IsEnabled() }
func (c *ClientEvalContext) IsSet(name string) bool             { return c.Feature(name).IsSet() }
func (c *ClientEvalContext) GetBoolean(name string) *bool       { return c.Feature(name).GetBoolean() }
func (c *ClientEvalContext) GetString(name string) *string      { return c.Feature(name).GetString() }
func (c *ClientEvalContext) GetNumber(name string) *float64     { return c.Feature(name).GetNumber() }
func (c *ClientEvalContext) GetRawJSON(name string) interface{} { return c.Feature(name).GetRawJSON() }
func (c *ClientEvalContext) GetJSON(name string, out interface{}) error {
	return c.getJSON(c.Feature(name), out)
}

// ServerEvalContext delegates strategy evaluation to the edge service:
// Build URL-encodes the current attributes into a header and, when it
// differs from the last one sent, marks the repository not-ready and
// asks the edge service to refresh with the new context.
type ServerEvalContext struct {
	*baseContext
	edgeProvider func() (EdgeService, error)
	currentEdge  EdgeService
	lastHeader   string
	builtOnce    bool
}

func newServerEvalContext(repo *Repository, edgeProvider func() (EdgeService, error)) *ServerEvalContext {
	return &ServerEvalContext{baseContext: newBaseContext(repo), edgeProvider: edgeProvider}
}

func (c *ServerEvalContext) UserKey(v string) Context    { c.setAttr("userkey", v); return c }
func (c *ServerEvalContext) SessionKey(v string) Context { c.setAttr("session", v); return c }
func (c *ServerEvalContext) Country(v string) Context    { c.setAttr("country", v); return c }
func (c *ServerEvalContext) Device(v string) Context     { c.setAttr("device", v); return c }
func (c *ServerEvalContext) Platform(v string) Context   { c.setAttr("platform", v); return c }
func (c *ServerEvalContext) Version(v string) Context    { c.setAttr("version", v); return c }
func (c *ServerEvalContext) AttributeValues(k string, v []string) Context {
	c.setAttrValues(k, v)
	return c
}
func (c *ServerEvalContext) Clear() Context { c.clearAttrs(); return c }

// contextHeader URL-encodes the current attributes as k=v&k=v, sorted by
// key for determinism. List-valued attributes contribute only their
// first element.
func (c *ServerEvalContext) contextHeader() string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, ok := c.attrs.first(k)
		if !ok {
			continue
		}
		parts = append(parts, k+"="+url.QueryEscape(v))
	}
	return strings.Join(parts, "&")
}

// ContextSha returns the SHA-256 hex digest of the current context
// header, or "0" if no attributes are set, matching the polling edge's
// contextSha query parameter.
func (c *ServerEvalContext) ContextSha() string {
	header := c.contextHeader()
	if header == "" {
		return "0"
	}
	sum := sha256.Sum256([]byte(header))
	return hex.EncodeToString(sum[:])
}

// Build sends the current context to the edge service if it has changed
// since the last Build call. A first Build with no attributes set only
// polls the edge; an unchanged header is not resent.
func (c *ServerEvalContext) Build() error {
	newHeader := c.contextHeader()

	if newHeader == c.lastHeader && c.builtOnce {
		return nil
	}

	if c.currentEdge == nil {
		edge, err := c.edgeProvider()
		if err != nil {
			return err
		}
		c.currentEdge = edge
	}

	if newHeader == "" && !c.builtOnce {
		c.builtOnce = true
		return c.currentEdge.Poll()
	}

	c.lastHeader = newHeader
	c.builtOnce = true
	c.repo.NotReady()

	return c.currentEdge.ContextChange(newHeader)
}

// Close tears down the currently held edge service, if any.
func (c *ServerEvalContext) Close() error {
	if c.currentEdge == nil {
		return nil
	}
	err := c.currentEdge.Close()
	c.currentEdge = nil
	c.lastHeader = ""
	return err
}

// Feature returns the repository holder verbatim: the edge has already
// evaluated strategies on the client's behalf.
func (c *ServerEvalContext) Feature(name string) *FeatureStateHolder {
	return c.repo.Feature(name)
}

func (c *ServerEvalContext) IsEnabled(name string) bool         { return c.isEnabled(name) }
func (c *ServerEvalContext) IsSet(name string) bool             { return c.isSet(name) }
func (c *ServerEvalContext) GetBoolean(name string) *bool       { return c.Feature(name).GetBoolean() }
func (c *ServerEvalContext) GetString(name string) *string      { return c.Feature(name).GetString() }
func (c *ServerEvalContext) GetNumber(name string) *float64     { return c.Feature(name).GetNumber() }
func (c *ServerEvalContext) GetRawJSON(name string) interface{} { return c.Feature(name).GetRawJSON() }
func (c *ServerEvalContext) GetJSON(name string, out interface{}) error {
	return c.getJSON(c.Feature(name), out)
}
