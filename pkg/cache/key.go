package cache

import (
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces all cache keys in Redis.
const KeyPrefix = "postview:resp"

// Key identifies a cached upstream response.
type Key struct {
	// Host is the upstream host, so two upstreams never share entries
	Host string

	// Path is the request path (e.g. "/posts")
	Path string

	// Query holds the query parameters (e.g. _page, _limit)
	Query url.Values
}

// KeyFromURL builds a key from a request URL.
func KeyFromURL(u *url.URL) Key {
	return Key{
		Host:  u.Host,
		Path:  u.Path,
		Query: u.Query(),
	}
}

// String generates a deterministic key.
//
// Format: postview:resp:host/path:q1=v1:q2=v2
//
// Example:
//
//	postview:resp:jsonplaceholder.typicode.com/posts:_limit=20:_page=2
func (k Key) String() string {
	parts := []string{KeyPrefix}

	target := strings.ToLower(k.Host) + "/" + strings.Trim(k.Path, "/")
	parts = append(parts, strings.TrimSuffix(target, "/"))

	if len(k.Query) > 0 {
		names := make([]string, 0, len(k.Query))
		for name := range k.Query {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, name+"="+strings.Join(k.Query[name], ","))
		}
	}

	return strings.Join(parts, ":")
}
