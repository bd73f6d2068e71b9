package featurehub

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_RejectsEmptyURL(t *testing.T) {
	_, err := NewConfig("", []string{"k1"})
	require.Error(t, err)
}

func TestNewConfig_RejectsEmptyKeys(t *testing.T) {
	_, err := NewConfig("http://localhost:8553", nil)
	require.Error(t, err)
}

func TestNewConfig_RejectsMixedKeyTypes(t *testing.T) {
	_, err := NewConfig("http://localhost:8553", []string{"default/*-key", "default/plain-key"})
	require.Error(t, err)

	var sdkErr *SDKError
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, ErrorTypeInvalidConfig, sdkErr.Type)
}

func TestNewConfig_NormalizesTrailingSlash(t *testing.T) {
	cfg, err := NewConfig("http://localhost:8553", []string{"k1"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8553/", cfg.edgeURL)
}

func TestConfig_Init_UsesEdgeServiceProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[{"features":[]}]`))
	}))
	defer server.Close()

	cfg, err := NewConfig(server.URL, []string{"k1"})
	require.NoError(t, err)

	var built EdgeService
	cfg.EdgeServiceProvider(func(repo *Repository, keys []string, edgeURL string) (EdgeService, error) {
		e := NewPollingEdge(server.Client(), repo, edgeURL, keys, 0)
		built = e
		return e, nil
	})

	require.NoError(t, cfg.Init())
	assert.NotNil(t, built)
	assert.True(t, cfg.Repository().IsReady())
}

func TestConfig_NewContext_ServerEvalForPlainKeys(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[{"features":[]}]`))
	}))
	defer server.Close()

	cfg, err := NewConfig(server.URL, []string{"default/plain-key"})
	require.NoError(t, err)
	require.NoError(t, cfg.Init())
	defer cfg.Close()

	ctx := cfg.NewContext()
	_, ok := ctx.(*ServerEvalContext)
	assert.True(t, ok)
}

func TestConfig_NewContext_ClientEvalForStarKeys(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[{"features":[]}]`))
	}))
	defer server.Close()

	cfg, err := NewConfig(server.URL, []string{"default/*-key"})
	require.NoError(t, err)
	require.NoError(t, cfg.Init())
	defer cfg.Close()

	ctx := cfg.NewContext()
	_, ok := ctx.(*ClientEvalContext)
	assert.True(t, ok)
}
