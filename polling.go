package featurehub

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultPollIntervalSeconds = 30

// PollingEdge implements EdgeService with conditional GET polling:
// ETag/if-none-match, cache-control-driven reschedule interval, and a
// context SHA query parameter so the edge can evaluate server-side
// context changes between polls.
type PollingEdge struct {
	httpClient *http.Client
	repo       *Repository
	baseURL    string
	apiKeys    []string
	interval   time.Duration

	mu         sync.Mutex
	etag       string
	contextHdr string
	cancelled  bool
	stopped    bool
	timer      *time.Timer

	logger zerolog.Logger
}

// NewPollingEdge builds a PollingEdge against baseURL (already
// trailing-slash normalised by Config) using apiKeys, with interval as its
// reschedule interval (30s if zero). Config passes the interval given to
// UsePollingEdgeService, else FEATUREHUB_POLL_INTERVAL, else 30s.
func NewPollingEdge(httpClient *http.Client, repo *Repository, baseURL string, apiKeys []string, interval time.Duration) *PollingEdge {
	if interval <= 0 {
		interval = defaultPollIntervalSeconds * time.Second
	}
	return &PollingEdge{
		httpClient: httpClient,
		repo:       repo,
		baseURL:    baseURL,
		apiKeys:    apiKeys,
		interval:   interval,
		logger:     log.With().Str("component", "polling-edge").Logger(),
	}
}

func (p *PollingEdge) requestURL() string {
	q := url.Values{}
	for _, k := range p.apiKeys {
		q.Add("apiKey", k)
	}

	p.mu.Lock()
	hdr := p.contextHdr
	p.mu.Unlock()

	sha := "0"
	if hdr != "" {
		sha = shaHex(hdr)
	}
	q.Set("contextSha", sha)

	return strings.TrimSuffix(p.baseURL, "/") + "/features?" + q.Encode()
}

// Poll performs one round immediately and schedules the next one after
// the current interval (updated from cache-control max-age), unless the
// round got a 404 or a 236, which end polling.
func (p *PollingEdge) Poll() error {
	return p.pollOnce()
}

func (p *PollingEdge) pollOnce() error {
	p.mu.Lock()
	if p.cancelled || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	req, err := http.NewRequest(http.MethodGet, p.requestURL(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-SDK", sdkName)
	req.Header.Set("X-SDK-Version", sdkVersion)

	p.mu.Lock()
	if p.etag != "" {
		req.Header.Set("if-none-match", p.etag)
	}
	if p.contextHdr != "" {
		req.Header.Set("x-featurehub", p.contextHdr)
	}
	p.mu.Unlock()

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn().Err(err).Msg("poll request failed, will retry")
		p.scheduleNext()
		return nil
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, 236:
		if etag := resp.Header.Get("etag"); etag != "" {
			p.mu.Lock()
			p.etag = etag
			p.mu.Unlock()
		}

		if maxAge, ok := parseMaxAge(resp.Header.Get("cache-control")); ok && maxAge > 0 {
			p.mu.Lock()
			p.interval = time.Duration(maxAge) * time.Second
			p.mu.Unlock()
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			p.logger.Warn().Err(err).Msg("failed reading poll response body")
			p.scheduleNext()
			return nil
		}

		envs, decodeErr := decodeFeatureStates(body)
		if decodeErr != nil {
			p.logger.Warn().Err(decodeErr).Msg("malformed poll response body, ignoring")
		} else {
			p.repo.NotifyFeatures(envs)
		}

		if resp.StatusCode == 236 {
			p.mu.Lock()
			p.stopped = true
			p.mu.Unlock()
			return nil
		}

		p.scheduleNext()

	case http.StatusNotFound:
		p.repo.Notify("failed", nil)
		p.mu.Lock()
		p.cancelled = true
		p.mu.Unlock()

	case http.StatusServiceUnavailable:
		p.scheduleNext()

	default:
		p.scheduleNext()
	}

	return nil
}

// scheduleNext arms a one-shot daemon timer for the next poll round, per
// the currently known interval.
func (p *PollingEdge) scheduleNext() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelled || p.stopped || p.interval <= 0 {
		return
	}

	p.timer = time.AfterFunc(p.interval, func() {
		_ = p.pollOnce()
	})
}

// Close stops any pending reschedule. Idempotent.
func (p *PollingEdge) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = true
	if p.timer != nil {
		p.timer.Stop()
	}
	return nil
}

// ContextChange stores the new server-eval context header and, when it
// differs from the stored one, polls immediately with it; the caller
// (ServerEvalContext.Build) has already marked the repository not-ready.
func (p *PollingEdge) ContextChange(header string) error {
	p.mu.Lock()
	changed := header != p.contextHdr
	p.contextHdr = header
	p.mu.Unlock()

	if !changed {
		return nil
	}
	return p.pollOnce()
}

// ClientEvaluated implements EdgeService.
func (p *PollingEdge) ClientEvaluated() bool {
	return clientEvaluated(p.apiKeys)
}

func parseMaxAge(cacheControl string) (int, bool) {
	if cacheControl == "" {
		return 0, false
	}
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		if !strings.HasPrefix(directive, "max-age=") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func shaHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
