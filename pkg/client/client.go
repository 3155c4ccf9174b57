// Package client is the fetch gateway of the viewer: it requests the record
// list from the upstream endpoint, validates the payload shape and maps every
// failure to a typed FetchError. Caching, rate limit tracking, pacing and
// opt-in retries sit underneath the single FetchRecords entry point.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/postview/pkg/cache"
	"github.com/Sternrassler/postview/pkg/logging"
	"github.com/Sternrassler/postview/pkg/pagination"
	"github.com/Sternrassler/postview/pkg/ratelimit"
	"github.com/Sternrassler/postview/pkg/record"
)

// DefaultEndpoint is the public post list used when none is configured.
const DefaultEndpoint = "https://jsonplaceholder.typicode.com/posts"

// Prometheus metrics for gateway operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postview_requests_total",
		Help: "Total upstream requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "postview_request_duration_seconds",
		Help:    "Upstream request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postview_errors_total",
		Help: "Total fetch failures by kind and error class",
	}, []string{"kind", "class"})

	payloadCoercedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postview_payload_coerced_total",
		Help: "Total list payloads that were not a JSON array and were treated as empty",
	})
)

var tracer = otel.Tracer("github.com/Sternrassler/postview/pkg/client")

// Outcome is the result of one fetch: either records (Err == nil) or a
// typed failure.
type Outcome struct {
	Records []record.Record

	// Coerced is set when the payload was valid JSON but not an array and
	// was treated as an empty list.
	Coerced bool

	Err *FetchError
}

// OK reports whether the fetch succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Success builds a successful outcome.
func Success(records []record.Record, coerced bool) Outcome {
	return Outcome{Records: records, Coerced: coerced}
}

// Failure builds a failed outcome.
func Failure(err *FetchError) Outcome {
	return Outcome{Err: err}
}

// Fetcher is what the viewer needs from the gateway.
type Fetcher interface {
	FetchRecords(ctx context.Context) Outcome
}

// Config holds the gateway configuration.
type Config struct {
	// Endpoint is the absolute URL of the record list
	Endpoint string

	// UserAgent header sent with every request
	UserAgent string

	// Redis enables the response cache and shared rate limit tracking (optional)
	Redis *redis.Client

	// RateLimit paces outgoing requests (requests per second, 0 = unlimited)
	RateLimit float64

	// Timeout bounds a whole request; 0 means no timeout
	Timeout time.Duration

	// Retry controls retries of server and network failures
	Retry RetryConfig

	// RemotePageSize > 0 fetches the list with ?_page/_limit in parallel
	RemotePageSize int

	// MaxConcurrency bounds parallel page requests
	MaxConcurrency int

	// MaxRemotePages rejects a reported total needing more pages than this
	MaxRemotePages int

	// StrictPayload turns a non-array payload into a MalformedPayload failure
	StrictPayload bool

	// Transport overrides the base round tripper (for testing)
	Transport http.RoundTripper
}

// DefaultConfig returns the configuration used by the viewer.
func DefaultConfig() Config {
	return Config{
		Endpoint:       DefaultEndpoint,
		UserAgent:      "postview/0.1.0",
		Retry:          DefaultRetryConfig(),
		MaxConcurrency: 5,
		MaxRemotePages: pagination.DefaultMaxPages,
	}
}

// Client is the fetch gateway.
type Client struct {
	httpClient  *http.Client
	endpoint    *url.URL
	cache       *cache.Manager
	rateLimiter *ratelimit.Tracker
	pacer       *rate.Limiter
	config      Config
	logger      zerolog.Logger
}

// New creates a new gateway.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("endpoint must be an absolute http(s) URL (got %q)", cfg.Endpoint)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must be >= 0 (got %v)", cfg.RateLimit)
	}

	if cfg.RemotePageSize < 0 {
		return nil, fmt.Errorf("remote_page_size must be >= 0 (got %d)", cfg.RemotePageSize)
	}

	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	logger := logging.NewLogger("gateway")

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(base),
		},
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
	}

	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis)
		c.rateLimiter = ratelimit.NewTracker(cfg.Redis, logger)
	}

	if cfg.RateLimit > 0 {
		c.pacer = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return c, nil
}

// FetchRecords performs one fetch cycle and never returns a Go error: every
// failure is carried in the outcome.
func (c *Client) FetchRecords(ctx context.Context) Outcome {
	ctx, span := tracer.Start(ctx, "client.FetchRecords")
	defer span.End()
	span.SetAttributes(
		attribute.String("endpoint", c.endpoint.String()),
		attribute.Int("remote_page_size", c.config.RemotePageSize),
	)

	var bodies [][]byte
	var err error
	if c.config.RemotePageSize > 0 {
		bf := pagination.NewBatchFetcher(c, pagination.Config{
			MaxConcurrency: c.config.MaxConcurrency,
			PageSize:       c.config.RemotePageSize,
			MaxPages:       c.config.MaxRemotePages,
			Timeout:        c.config.Timeout,
		})
		bodies, err = bf.FetchAllPages(ctx)
	} else {
		var body []byte
		body, _, err = c.get(ctx, c.endpoint)
		bodies = [][]byte{body}
	}

	if err != nil {
		fe := AsFetchError(err)
		return c.fail(span, fe)
	}

	var records []record.Record
	coerced := false
	for _, body := range bodies {
		page, pageCoerced, err := decodeRecords(body)
		if err != nil {
			return c.fail(span, &FetchError{Kind: KindMalformedPayload, Message: err.Error(), Err: err})
		}
		coerced = coerced || pageCoerced
		records = append(records, page...)
	}

	if coerced {
		payloadCoercedTotal.Inc()
		if c.config.StrictPayload {
			return c.fail(span, &FetchError{
				Kind:    KindMalformedPayload,
				Message: "payload is not a list",
			})
		}
		c.logger.Warn().
			Str("endpoint", c.endpoint.String()).
			Msg("Payload is not a JSON array, treating it as an empty list")
	}

	if records == nil {
		records = []record.Record{}
	}

	span.SetAttributes(attribute.Int("records", len(records)), attribute.Bool("coerced", coerced))
	c.logger.Debug().
		Str("endpoint", c.endpoint.String()).
		Int("records", len(records)).
		Msg("Fetched records")

	return Success(records, coerced)
}

func (c *Client) fail(span trace.Span, fe *FetchError) Outcome {
	errorsTotal.WithLabelValues(string(fe.Kind), string(fe.Class)).Inc()
	span.RecordError(fe)
	span.SetStatus(codes.Error, fe.Message)

	c.logger.Error().
		Str("endpoint", c.endpoint.String()).
		Str("kind", string(fe.Kind)).
		Str("error_class", string(fe.Class)).
		Int("status", fe.StatusCode).
		Msg(fe.Message)

	return Failure(fe)
}

// FetchPage implements pagination.PageFetcher for remotely paginated lists.
func (c *Client) FetchPage(ctx context.Context, pageNum, pageSize int) ([]byte, int, error) {
	u := *c.endpoint
	q := u.Query()
	q.Set("_page", strconv.Itoa(pageNum))
	q.Set("_limit", strconv.Itoa(pageSize))
	u.RawQuery = q.Encode()

	body, header, err := c.get(ctx, &u)
	if err != nil {
		return nil, 0, err
	}

	total := 0
	if s := header.Get("X-Total-Count"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			total = n
		}
	}
	return body, total, nil
}

// get performs a GET and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, u *url.URL) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, networkError(fmt.Errorf("read response body: %w", err))
	}
	return body, resp.Header, nil
}

// Do performs a request with pacing, rate limit gating, caching and retries.
// Only 2xx responses (or a cached copy after 304) are returned; every other
// status becomes a *FetchError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	start := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(start).Seconds())
	}()

	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, networkError(fmt.Errorf("rate pacing: %w", err))
		}
	}

	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			// Redis trouble must not take the viewer down
			c.logger.Warn().Err(err).Msg("Rate limit check failed")
		} else if !allowed {
			requestsTotal.WithLabelValues("rate_limited").Inc()
			return nil, ErrRequestBlocked
		}
	}

	var cacheKey cache.Key
	var cached *cache.Entry
	if c.cache != nil {
		cacheKey = cache.KeyFromURL(req.URL)
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			cached = entry
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("key", cacheKey.String()).Msg("Cache get error")
		}
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if cache.CanRevalidate(cached) {
		cache.AddConditionalHeaders(req, cached)
		cache.ConditionalRequestsSent.Inc()
	}

	c.logger.Debug().
		Str("url", req.URL.String()).
		Bool("conditional", cached != nil).
		Msg("Executing upstream request")

	var resp *http.Response
	err := retryWithBackoff(ctx, c.config.Retry, func() (ErrorClass, error) {
		r, err := c.httpClient.Do(req.Clone(ctx))
		if err != nil {
			requestsTotal.WithLabelValues("network_error").Inc()
			return ErrorClassNetwork, networkError(err)
		}

		if c.rateLimiter != nil {
			if err := c.rateLimiter.UpdateFromHeaders(ctx, r.Header); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
			}
		}

		requestsTotal.WithLabelValues(strconv.Itoa(r.StatusCode)).Inc()

		if r.StatusCode == http.StatusNotModified && cached != nil {
			resp = r
			return "", nil
		}

		if r.StatusCode < 200 || r.StatusCode > 299 {
			// Drain so the connection can be reused
			_, _ = io.Copy(io.Discard, r.Body)
			r.Body.Close()
			fe := statusError(r.StatusCode)
			c.logger.Warn().
				Int("status", r.StatusCode).
				Str("error_class", string(fe.Class)).
				Msg("Upstream request error")
			return fe.Class, fe
		}

		resp = r
		return "", nil
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		cache.NotModifiedResponses.Inc()
		c.logger.Debug().Str("key", cacheKey.String()).Msg("304 Not Modified - using cache")

		entry := *cached
		if refreshed, err := cache.FromResponse(resp304(resp)); err == nil {
			entry.Expires = refreshed.Expires
			if err := c.cache.UpdateTTL(ctx, cacheKey, entry.Expires); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
			}
		}
		return cache.ToResponse(&entry, req), nil
	}

	if c.cache != nil && resp.StatusCode == http.StatusOK {
		entry, err := cache.FromResponse(resp)
		if err != nil {
			// The body could not be read; nothing to hand back either
			return nil, networkError(err)
		}
		switch {
		case !entry.IsExpired():
			if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to cache response")
			}
		case cached != nil:
			// Uncacheable now; the old validator must not be sent again
			if err := c.cache.Delete(ctx, cacheKey); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to drop cached response")
			}
		}
	}

	return resp, nil
}

// resp304 gives cache.FromResponse an empty body to read from a 304 whose
// body was already closed.
func resp304(r *http.Response) *http.Response {
	clone := *r
	clone.Body = http.NoBody
	return &clone
}

// Close releases idle upstream connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
