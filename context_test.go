package featurehub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopEdge struct {
	polled        int
	closed        int
	contextChange string
}

func (e *noopEdge) Poll() error                       { e.polled++; return nil }
func (e *noopEdge) Close() error                       { e.closed++; return nil }
func (e *noopEdge) ContextChange(header string) error { e.contextChange = header; return nil }
func (e *noopEdge) ClientEvaluated() bool              { return false }

func TestClientEvalContext_BuildPollsEdge(t *testing.T) {
	repo := newRepository()
	edge := &noopEdge{}
	ctx := newClientEvalContext(repo, edge)

	require.NoError(t, ctx.Build())
	assert.Equal(t, 1, edge.polled)
}

func TestClientEvalContext_FeatureIsContextBound(t *testing.T) {
	repo := newRepository()
	repo.Notify("feature", mustJSON(t, featureStateWire{
		Key: "flag", Version: 1, Type: "STRING", Value: "base", Locked: boolPtr(false),
		Strategies: []RolloutStrategy{
			{
				Value: "nz",
				Attributes: []RolloutStrategyAttribute{
					{FieldName: "country", Conditional: ConditionalEquals, Type: FieldTypeString, Values: []interface{}{"NZ"}},
				},
			},
		},
	}))

	ctx := newClientEvalContext(repo, &noopEdge{})
	ctx.Country("NZ")

	assert.Equal(t, "nz", *ctx.GetString("flag"))
}

func TestServerEvalContext_ContextHeader_ListUsesFirstElement(t *testing.T) {
	repo := newRepository()
	ctx := newServerEvalContext(repo, func() (EdgeService, error) { return &noopEdge{}, nil })

	ctx.UserKey("fred")
	ctx.AttributeValues("piffle", []string{"a+", "b", "c"})

	assert.Equal(t, "piffle=a%2B&userkey=fred", ctx.contextHeader())
}

func TestServerEvalContext_Build_NotifiesContextChangeOnce(t *testing.T) {
	repo := newRepository()
	repo.Notify("feature", mustJSON(t, featureStateWire{Key: "k", Version: 1, Type: "BOOLEAN", Value: true, Locked: boolPtr(false)}))

	edge := &noopEdge{}
	ctx := newServerEvalContext(repo, func() (EdgeService, error) { return edge, nil })

	ctx.UserKey("fred")
	require.NoError(t, ctx.Build())
	assert.Equal(t, "userkey=fred", edge.contextChange)

	edge.contextChange = ""
	require.NoError(t, ctx.Build())
	assert.Empty(t, edge.contextChange, "an unchanged header must not be resent")
}

func TestServerEvalContext_ContextSha(t *testing.T) {
	repo := newRepository()
	ctx := newServerEvalContext(repo, func() (EdgeService, error) { return &noopEdge{}, nil })

	assert.Equal(t, "0", ctx.ContextSha())

	ctx.UserKey("fred")
	assert.NotEqual(t, "0", ctx.ContextSha())
}

func TestServerEvalContext_FeatureReturnsRepoHolderVerbatim(t *testing.T) {
	repo := newRepository()
	repo.Notify("feature", mustJSON(t, featureStateWire{
		Key: "flag", Version: 1, Type: "STRING", Value: "server-decided", Locked: boolPtr(false),
		Strategies: []RolloutStrategy{
			{
				Value: "should-never-apply",
				Attributes: []RolloutStrategyAttribute{
					{FieldName: "country", Conditional: ConditionalEquals, Type: FieldTypeString, Values: []interface{}{"NZ"}},
				},
			},
		},
	}))

	ctx := newServerEvalContext(repo, func() (EdgeService, error) { return &noopEdge{}, nil })
	ctx.Country("NZ")

	assert.Equal(t, "server-decided", *ctx.GetString("flag"))
}
