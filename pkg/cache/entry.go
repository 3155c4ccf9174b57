package cache

import (
	"time"
)

// Entry is a cached upstream response.
type Entry struct {
	// Body is the raw response body
	Body []byte `json:"body"`

	// ETag for If-None-Match revalidation
	ETag string `json:"etag,omitempty"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`

	// LastModified for If-Modified-Since revalidation
	LastModified time.Time `json:"last_modified,omitempty"`

	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type,omitempty"`
	StoredAt    time.Time `json:"stored_at"`

	// TotalCount carries X-Total-Count for remotely paginated endpoints
	TotalCount string `json:"total_count,omitempty"`
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return !time.Now().Before(e.Expires)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Age returns how long ago the entry was stored.
func (e *Entry) Age() time.Duration {
	return time.Since(e.StoredAt)
}
