package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Header names as sent by json-server style APIs.
const (
	HeaderLimit     = "X-Ratelimit-Limit"
	HeaderRemaining = "X-Ratelimit-Remaining"
	HeaderReset     = "X-Ratelimit-Reset"
)

// epochCutoff separates "seconds until reset" from "unix reset time" values.
const epochCutoff = 1_000_000_000

var (
	upstreamRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "postview_upstream_requests_remaining",
		Help: "Requests remaining in the current upstream rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postview_rate_limit_blocks_total",
		Help: "Total number of requests blocked because the upstream budget is nearly exhausted",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postview_rate_limit_throttles_total",
		Help: "Total number of requests delayed because the upstream budget is low",
	})
)

// Tracker monitors the upstream rate limit and gates requests.
type Tracker struct {
	redis    *redis.Client
	logger   zerolog.Logger
	throttle time.Duration
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:    redisClient,
		logger:   logger,
		throttle: 1 * time.Second,
	}
}

// SetThrottleDelay changes how long a throttled request waits (for testing).
func (t *Tracker) SetThrottleDelay(d time.Duration) {
	t.throttle = d
}

// GetState reads the shared state from Redis. An empty Redis yields a
// healthy default.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	fields, err := t.redis.HGetAll(ctx, RedisKeyState).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}

	if len(fields) == 0 {
		t.logger.Debug().Msg("No rate limit state in Redis, assuming healthy")
		return &State{
			Remaining:  100,
			LastUpdate: time.Now(),
			IsHealthy:  true,
		}, nil
	}

	state := &State{}
	if state.Limit, err = atoiField(fields, "limit"); err != nil {
		return nil, err
	}
	if state.Remaining, err = atoiField(fields, "remaining"); err != nil {
		return nil, err
	}
	resetUnix, err := atoiField(fields, "reset_at")
	if err != nil {
		return nil, err
	}
	lastUnix, err := atoiField(fields, "last_update")
	if err != nil {
		return nil, err
	}
	state.ResetAt = time.Unix(int64(resetUnix), 0)
	state.LastUpdate = time.Unix(int64(lastUnix), 0)
	state.UpdateHealth()

	return state, nil
}

func atoiField(fields map[string]string, name string) (int, error) {
	v, ok := fields[name]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse rate limit field %s: %w", name, err)
	}
	return n, nil
}

// ParseHeaders extracts the rate limit state from response headers.
// ok is false when the upstream does not report a budget.
func ParseHeaders(headers http.Header, now time.Time) (state *State, ok bool, err error) {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil, false, nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	state = &State{Remaining: remain, LastUpdate: now}

	if limitStr := headers.Get(HeaderLimit); limitStr != "" {
		if state.Limit, err = strconv.Atoi(limitStr); err != nil {
			return nil, false, fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return nil, false, errors.New(HeaderReset + " header missing")
	}
	reset, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}
	if reset >= epochCutoff {
		state.ResetAt = time.Unix(reset, 0)
	} else {
		state.ResetAt = now.Add(time.Duration(reset) * time.Second)
	}

	state.UpdateHealth()
	return state, true, nil
}

// UpdateFromHeaders parses the rate limit headers and stores them in Redis.
// Responses without the headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, ok, err := ParseHeaders(headers, time.Now())
	if err != nil || !ok {
		return err
	}

	pipe := t.redis.TxPipeline()
	pipe.HSet(ctx, RedisKeyState,
		"limit", state.Limit,
		"remaining", state.Remaining,
		"reset_at", state.ResetAt.Unix(),
		"last_update", state.LastUpdate.Unix(),
	)
	// Drop the state a little after the window resets
	pipe.ExpireAt(ctx, RedisKeyState, state.ResetAt.Add(time.Minute))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	upstreamRemaining.Set(float64(state.Remaining))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Upstream rate limit CRITICAL - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Upstream rate limit WARNING - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Int("limit", state.Limit).
			Bool("is_healthy", state.IsHealthy).
			Msg("Upstream rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest reports whether a request may go out. In the warning
// range it waits for the throttle delay first; the wait honours ctx.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, err
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Upstream rate limit critical - blocking request")
		rateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("Upstream rate limit low - throttling request")
		rateLimitThrottlesTotal.Inc()

		timer := time.NewTimer(t.throttle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}
