// Package cache provides a Redis-backed response cache for the record list
// endpoint with ETag and Last-Modified revalidation.
//
// The cache is optional: the gateway only uses it when a Redis client is
// configured. Entries are stored as JSON under deterministic keys and expire
// in Redis at the same time as their Expires field.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.KeyFromURL(req.URL)
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from upstream
//	}
//
// # Revalidation
//
//	if cache.CanRevalidate(entry) {
//		cache.AddConditionalHeaders(req, entry)
//		// upstream answers 304 when unchanged
//	}
//
// A 304 answer is turned back into a full response with ToResponse.
//
// # Freshness
//
// Expiry is taken from Cache-Control max-age, then Expires, then DefaultTTL,
// and is capped at MaxTTL. no-store and no-cache responses are never stored.
//
// # Metrics
//
//   - postview_cache_hits_total
//   - postview_cache_misses_total
//   - postview_cache_entry_bytes
//   - postview_conditional_requests_total
//   - postview_304_responses_total
//   - postview_cache_errors_total{operation}
package cache
