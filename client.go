package featurehub

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Client is a thin convenience wrapper around Config: it validates
// input, sets up a scoped logger the way the rest of the package does,
// and performs the initial edge connection in one call.
type Client struct {
	config *Config
	logger zerolog.Logger
}

// ClientOptions configures NewClient. Only EdgeURL and APIKeys are
// required; everything else has a workable default.
type ClientOptions struct {
	EdgeURL    string
	APIKeys    []string
	Streaming  bool
	HTTPClient *http.Client
	PollEvery  time.Duration
	LogLevel   string
}

// NewClient validates opts, builds the underlying Config, performs the
// initial edge connection, and returns a ready-to-use Client.
func NewClient(opts ClientOptions) (*Client, error) {
	logLevel := opts.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return nil, NewSDKError(ErrorTypeInvalidConfig, fmt.Sprintf("invalid log level %q", logLevel), err)
	}
	logger := log.With().Str("component", "featurehub-client").Logger().Level(level)

	cfg, err := NewConfig(opts.EdgeURL, opts.APIKeys)
	if err != nil {
		return nil, err
	}

	if opts.Streaming {
		cfg.UseStreamingEdgeService()
	} else {
		cfg.UsePollingEdgeService(opts.PollEvery)
	}
	if opts.HTTPClient != nil {
		cfg.SetHTTPClient(opts.HTTPClient)
	}

	if err := cfg.Init(); err != nil {
		return nil, err
	}

	logger.Info().
		Str("edge_url", opts.EdgeURL).
		Bool("streaming", opts.Streaming).
		Msg("featurehub client initialized")

	return &Client{config: cfg, logger: logger}, nil
}

// NewContext returns a fresh request-scoped Context bound to this
// client's repository and edge service.
func (c *Client) NewContext() Context {
	return c.config.NewContext()
}

// Repository exposes the underlying Repository for diagnostics
// (ExtractFeatureState, RegisterInterceptor) that don't need a context.
func (c *Client) Repository() *Repository {
	return c.config.Repository()
}

// IsReady reports whether the repository has received at least one
// successful update since the last failure.
func (c *Client) IsReady() bool {
	return c.config.Repository().IsReady()
}

// Close tears down the client's edge service.
func (c *Client) Close() error {
	c.logger.Info().Msg("closing featurehub client")
	return c.config.Close()
}
