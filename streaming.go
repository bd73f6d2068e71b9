package featurehub

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/launchdarkly/eventsource"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StreamingEdge implements EdgeService over server-sent events: a single
// background goroutine reads the long-lived connection, which the SSE
// client reconnects on transport errors until Close is called. A failed
// initial connection is logged and not retried; a 404 on it marks the
// repository failed and cancels the edge.
type StreamingEdge struct {
	repo    *Repository
	baseURL string
	apiKeys []string

	mu          sync.Mutex
	cancelled   bool
	stopped     bool
	lastEventID string
	stream      *eventsource.Stream

	doneChan chan struct{}
	logger   zerolog.Logger
}

// NewStreamingEdge builds a StreamingEdge against baseURL's
// features/{apiKey0} SSE endpoint.
func NewStreamingEdge(repo *Repository, baseURL string, apiKeys []string) *StreamingEdge {
	return &StreamingEdge{
		repo:     repo,
		baseURL:  baseURL,
		apiKeys:  apiKeys,
		doneChan: make(chan struct{}),
		logger:   log.With().Str("component", "streaming-edge").Logger(),
	}
}

func (s *StreamingEdge) requestURL() string {
	key := ""
	if len(s.apiKeys) > 0 {
		key = s.apiKeys[0]
	}
	return strings.TrimSuffix(s.baseURL, "/") + "/features/" + key
}

// Poll opens the SSE connection and starts the background event loop.
// Unlike PollingEdge, the network round-trip for subsequent updates
// happens off this call: Poll returns once the initial connection attempt
// has been made.
func (s *StreamingEdge) Poll() error {
	req, err := http.NewRequest(http.MethodGet, s.requestURL(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-SDK", sdkName)
	req.Header.Set("X-SDK-Version", sdkVersion)

	stream, err := eventsource.SubscribeWithRequest(s.lastEventID, req)
	if err != nil {
		if subErr, ok := err.(eventsource.SubscriptionError); ok && subErr.Code == http.StatusNotFound {
			s.repo.Notify("failed", nil)
			s.mu.Lock()
			s.cancelled = true
			s.mu.Unlock()
			return nil
		}
		s.logger.Warn().Err(err).Msg("streaming connect failed")
		return nil
	}

	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()

	go s.loop(stream)
	return nil
}

func (s *StreamingEdge) loop(stream *eventsource.Stream) {
	for {
		s.mu.Lock()
		done := s.cancelled || s.stopped
		s.mu.Unlock()
		if done {
			stream.Close()
			return
		}

		select {
		case ev, ok := <-stream.Events:
			if !ok {
				return
			}
			s.handleEvent(ev)
		case err, ok := <-stream.Errors:
			if !ok {
				return
			}
			s.logger.Warn().Err(err).Msg("streaming transport error, reconnecting")
		case <-s.doneChan:
			stream.Close()
			return
		}
	}
}

func (s *StreamingEdge) handleEvent(ev eventsource.Event) {
	s.mu.Lock()
	s.lastEventID = ev.Id()
	s.mu.Unlock()

	data := []byte(ev.Data())

	switch ev.Event() {
	case "config":
		var cfg struct {
			EdgeStale interface{} `json:"edge.stale"`
		}
		if err := json.Unmarshal(data, &cfg); err == nil && cfg.EdgeStale != nil {
			s.mu.Lock()
			s.stopped = true
			s.mu.Unlock()
		}
	case "features", "feature", "delete_feature", "failed":
		s.repo.Notify(ev.Event(), json.RawMessage(data))
	}
}

// Close cancels the background loop and closes the underlying
// connection. Idempotent.
func (s *StreamingEdge) Close() error {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return nil
	}
	s.cancelled = true
	stream := s.stream
	s.mu.Unlock()

	close(s.doneChan)
	if stream != nil {
		stream.Close()
	}
	return nil
}

// ContextChange is a no-op: server-side evaluation via context header
// isn't supported over the streaming transport.
func (s *StreamingEdge) ContextChange(string) error {
	return nil
}

// ClientEvaluated implements EdgeService.
func (s *StreamingEdge) ClientEvaluated() bool {
	return clientEvaluated(s.apiKeys)
}
