// Package testutil provides a json-server style mock of the posts upstream.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/postview/pkg/record"
)

// PostsPath is where the mock serves its record list.
const PostsPath = "/posts"

// MockResponse overrides the behaviour of one path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is a configurable posts server for tests. By default it
// serves its posts at PostsPath with ETag revalidation, _page/_limit
// pagination and X-Ratelimit headers.
type MockUpstream struct {
	server   *httptest.Server
	mu       sync.RWMutex
	posts    []record.Record
	etag     string
	handlers map[string]http.HandlerFunc

	// Tracking
	RequestCount      int
	ConditionalCount  int
	LastRequestHeader http.Header
}

// NewMockUpstream starts a mock serving the given posts.
func NewMockUpstream(posts []record.Record) *MockUpstream {
	mock := &MockUpstream{
		posts:    posts,
		etag:     `"v1"`,
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		if r.URL.Path == PostsPath {
			mock.servePosts(w, r)
			return
		}
		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// PostsURL returns the absolute URL of the record list.
func (m *MockUpstream) PostsURL() string {
	return m.server.URL + PostsPath
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
}

// SetPosts replaces the served list and bumps the ETag.
func (m *MockUpstream) SetPosts(posts []record.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = posts
	m.etag = fmt.Sprintf(`"v%d"`, time.Now().UnixNano())
}

// SetHandler sets a custom handler for a specific path.
func (m *MockUpstream) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockUpstream) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockUpstream) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

func (m *MockUpstream) servePosts(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	posts, etag := m.posts, m.etag
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "max-age=300")
	w.Header().Set("X-Ratelimit-Limit", "1000")
	w.Header().Set("X-Ratelimit-Remaining", "999")
	w.Header().Set("X-Ratelimit-Reset", "60")

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	page := posts
	q := r.URL.Query()
	if limit, err := strconv.Atoi(q.Get("_limit")); err == nil && limit > 0 {
		pageNum, err := strconv.Atoi(q.Get("_page"))
		if err != nil || pageNum < 1 {
			pageNum = 1
		}
		start := min((pageNum-1)*limit, len(posts))
		end := min(start+limit, len(posts))
		page = posts[start:end]
		w.Header().Set("X-Total-Count", strconv.Itoa(len(posts)))
	}

	body, err := json.Marshal(page)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// GeneratePosts builds n posts with ids 1..n, ten per owner.
func GeneratePosts(n int) []record.Record {
	posts := make([]record.Record, n)
	for i := range posts {
		id := i + 1
		posts[i] = record.Record{
			ID:      id,
			OwnerID: i/10 + 1,
			Title:   fmt.Sprintf("Post %d", id),
			Body:    fmt.Sprintf("Body of post %d", id),
		}
	}
	return posts
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 with a nearly exhausted budget.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"X-Ratelimit-Limit":     "1000",
			"X-Ratelimit-Remaining": "2",
			"X-Ratelimit-Reset":     "30",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewObjectResponse serves a JSON object instead of a list.
func NewObjectResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"message": "not a list"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
