package featurehub

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func sseHandler(events ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)

		flusher := w.(http.Flusher)

		for _, e := range events {
			fmt.Fprint(w, e)
			flusher.Flush()
		}

		// give the client time to read the events before the connection
		// closes out from under it.
		time.Sleep(150 * time.Millisecond)
	}
}

func TestStreamingEdge_HappyPath_ForwardsFeatureEvent(t *testing.T) {
	server := httptest.NewServer(sseHandler(
		"id: 1\nevent: feature\ndata: {\"key\":\"a\",\"version\":1,\"type\":\"BOOLEAN\",\"value\":true,\"l\":false}\n\n",
	))
	defer server.Close()

	repo := newRepository()
	edge := NewStreamingEdge(repo, server.URL+"/", []string{"k1"})

	require.NoError(t, edge.Poll())
	defer edge.Close()

	ok := waitUntil(t, 2*time.Second, func() bool {
		return repo.Feature("a").Exists()
	})
	require.True(t, ok, "feature event should have been forwarded to the repository")
	assert.True(t, *repo.Feature("a").GetBoolean())
}

func TestStreamingEdge_ConfigEdgeStale_StopsTransport(t *testing.T) {
	server := httptest.NewServer(sseHandler(
		"id: 1\nevent: config\ndata: {\"edge.stale\":\"true\"}\n\n",
	))
	defer server.Close()

	repo := newRepository()
	edge := NewStreamingEdge(repo, server.URL+"/", []string{"k1"})

	require.NoError(t, edge.Poll())
	defer edge.Close()

	ok := waitUntil(t, 2*time.Second, func() bool {
		edge.mu.Lock()
		defer edge.mu.Unlock()
		return edge.stopped
	})
	assert.True(t, ok, "a config event carrying edge.stale must stop the transport")
}

func TestStreamingEdge_FeaturesEvent_PopulatesRepository(t *testing.T) {
	server := httptest.NewServer(sseHandler(
		"id: 1\nevent: features\ndata: [{\"key\":\"a\",\"version\":1,\"type\":\"STRING\",\"value\":\"hi\",\"l\":false}]\n\n",
	))
	defer server.Close()

	repo := newRepository()
	edge := NewStreamingEdge(repo, server.URL+"/", []string{"k1"})

	require.NoError(t, edge.Poll())
	defer edge.Close()

	ok := waitUntil(t, 2*time.Second, repo.IsReady)
	require.True(t, ok)
	assert.Equal(t, "hi", *repo.Feature("a").GetString())
}

func TestStreamingEdge_DeleteFeatureEvent_RemovesValue(t *testing.T) {
	server := httptest.NewServer(sseHandler(
		"id: 1\nevent: feature\ndata: {\"key\":\"a\",\"version\":1,\"type\":\"STRING\",\"value\":\"hi\",\"l\":false}\n\n",
		"id: 2\nevent: delete_feature\ndata: {\"key\":\"a\"}\n\n",
	))
	defer server.Close()

	repo := newRepository()
	edge := NewStreamingEdge(repo, server.URL+"/", []string{"k1"})

	require.NoError(t, edge.Poll())
	defer edge.Close()

	ok := waitUntil(t, 2*time.Second, func() bool {
		return !repo.Feature("a").Exists()
	})
	assert.True(t, ok, "delete_feature must remove the feature's value while keeping holder identity")
}

func TestStreamingEdge_404_NotifiesFailedAndCancels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	repo := newRepository()
	repo.Notify("feature", mustJSON(t, featureStateWire{Key: "k", Version: 1, Type: "BOOLEAN", Value: true, Locked: boolPtr(false)}))

	edge := NewStreamingEdge(repo, server.URL+"/", []string{"k1"})
	require.NoError(t, edge.Poll())

	assert.False(t, repo.IsReady())
	assert.True(t, edge.cancelled)
}

func TestStreamingEdge_Close_Idempotent(t *testing.T) {
	server := httptest.NewServer(sseHandler("id: 1\nevent: feature\ndata: {\"key\":\"a\",\"version\":1,\"type\":\"BOOLEAN\",\"value\":true,\"l\":false}\n\n"))
	defer server.Close()

	repo := newRepository()
	edge := NewStreamingEdge(repo, server.URL+"/", []string{"k1"})
	require.NoError(t, edge.Poll())

	require.NoError(t, edge.Close())
	require.NoError(t, edge.Close())
	assert.True(t, edge.cancelled)
}

func TestStreamingEdge_ContextChange_IsNoop(t *testing.T) {
	repo := newRepository()
	edge := NewStreamingEdge(repo, "http://example.invalid/", []string{"k1"})
	assert.NoError(t, edge.ContextChange("userkey=fred"))
}

func TestStreamingEdge_ClientEvaluated(t *testing.T) {
	repo := newRepository()
	serverKey := NewStreamingEdge(repo, "http://example.invalid/", []string{"default/plain-key"})
	clientKey := NewStreamingEdge(repo, "http://example.invalid/", []string{"default/*-key"})

	assert.False(t, serverKey.ClientEvaluated())
	assert.True(t, clientKey.ClientEvaluated())
}
