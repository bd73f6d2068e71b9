package featurehub

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// EdgeServiceFactory builds the EdgeService a Config should use. Config's
// default factory picks PollingEdge or StreamingEdge based on
// useStreaming; tests and advanced callers can replace it with
// EdgeServiceProvider.
type EdgeServiceFactory func(repo *Repository, apiKeys []string, edgeURL string) (EdgeService, error)

// Config binds an edge URL and API keys to a Repository and a single
// lazily constructed edge service, and vends contexts against them.
type Config struct {
	edgeURL string
	apiKeys []string

	httpClient    *http.Client
	pollInterval  time.Duration
	useStreaming  bool
	factory       EdgeServiceFactory
	factoryIsUser bool

	repo *Repository
	edge EdgeService
}

// NewConfig validates edgeURL and apiKeys and builds a Config. It does
// not contact the edge service; call Init for that.
//
// edgeURL must be non-empty. apiKeys must be non-empty and internally
// consistent: every key contains "*" (client-side evaluation) or none do
// (server-side evaluation) — mixing the two is a configuration error.
func NewConfig(edgeURL string, apiKeys []string) (*Config, error) {
	if strings.TrimSpace(edgeURL) == "" {
		return nil, NewSDKError(ErrorTypeInvalidConfig, "edge URL must not be empty", nil)
	}
	if len(apiKeys) == 0 {
		return nil, NewSDKError(ErrorTypeInvalidConfig, "at least one API key is required", nil)
	}

	clientEval := clientEvaluated(apiKeys)
	for _, k := range apiKeys {
		if strings.TrimSpace(k) == "" {
			return nil, NewSDKError(ErrorTypeInvalidConfig, "API keys must not be empty", nil)
		}
		if strings.Contains(k, "*") != clientEval {
			return nil, NewSDKError(ErrorTypeInvalidConfig, "API keys must be consistently client-eval or server-eval, not mixed", nil)
		}
	}

	normalized := edgeURL
	if !strings.HasSuffix(normalized, "/") {
		normalized += "/"
	}

	pollInterval := defaultPollIntervalSeconds * time.Second
	if n, err := strconv.Atoi(os.Getenv("FEATUREHUB_POLL_INTERVAL")); err == nil && n > 0 {
		pollInterval = time.Duration(n) * time.Second
	}

	return &Config{
		edgeURL:      normalized,
		apiKeys:      apiKeys,
		httpClient:   http.DefaultClient,
		pollInterval: pollInterval,
	}, nil
}

// UsePollingEdgeService selects the polling transport, overriding the
// default reschedule interval when interval is positive.
func (c *Config) UsePollingEdgeService(interval time.Duration) *Config {
	c.useStreaming = false
	if interval > 0 {
		c.pollInterval = interval
	}
	return c
}

// UseStreamingEdgeService selects the SSE transport.
func (c *Config) UseStreamingEdgeService() *Config {
	c.useStreaming = true
	return c
}

// EdgeServiceProvider replaces the default edge-service construction
// logic, primarily for tests.
func (c *Config) EdgeServiceProvider(factory EdgeServiceFactory) *Config {
	c.factory = factory
	c.factoryIsUser = true
	return c
}

// SetHTTPClient replaces the *http.Client used by the polling transport.
func (c *Config) SetHTTPClient(client *http.Client) *Config {
	c.httpClient = client
	return c
}

func (c *Config) defaultFactory() EdgeServiceFactory {
	return func(repo *Repository, apiKeys []string, edgeURL string) (EdgeService, error) {
		if c.useStreaming {
			return NewStreamingEdge(repo, edgeURL, apiKeys), nil
		}
		return NewPollingEdge(c.httpClient, repo, edgeURL, apiKeys, c.pollInterval), nil
	}
}

func (c *Config) edgeFactory() EdgeServiceFactory {
	if c.factoryIsUser {
		return c.factory
	}
	return c.defaultFactory()
}

// Init builds the repository and the (single) edge service, and performs
// the initial poll/connect.
func (c *Config) Init() error {
	c.repo = newRepository()

	edge, err := c.edgeFactory()(c.repo, c.apiKeys, c.edgeURL)
	if err != nil {
		return err
	}
	c.edge = edge

	return c.edge.Poll()
}

// Repository returns the Config's backing Repository.
func (c *Config) Repository() *Repository {
	return c.repo
}

// NewContext returns a ClientEvalContext or ServerEvalContext depending
// on whether the configured API keys request client-side evaluation.
func (c *Config) NewContext() Context {
	if clientEvaluated(c.apiKeys) {
		return newClientEvalContext(c.repo, c.edge)
	}
	return newServerEvalContext(c.repo, func() (EdgeService, error) {
		return c.edge, nil
	})
}

// Close tears down the edge service. Idempotent via the edge service's
// own Close.
func (c *Config) Close() error {
	if c.edge == nil {
		return nil
	}
	return c.edge.Close()
}
