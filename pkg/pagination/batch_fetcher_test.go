package pagination

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeFetcher struct {
	totalItems int
	failPage   int
	delay      time.Duration

	mu       sync.Mutex
	calls    []int
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeFetcher) FetchPage(ctx context.Context, pageNum, pageSize int) ([]byte, int, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, pageNum)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}

	if pageNum == f.failPage {
		return nil, 0, errors.New("HTTP 503")
	}
	return []byte(fmt.Sprintf("page-%d", pageNum)), f.totalItems, nil
}

func TestNewBatchFetcher_Defaults(t *testing.T) {
	bf := NewBatchFetcher(&fakeFetcher{}, Config{})

	if bf.config.MaxConcurrency != 5 {
		t.Errorf("MaxConcurrency = %d, want 5", bf.config.MaxConcurrency)
	}
	if bf.config.PageSize != 20 {
		t.Errorf("PageSize = %d, want 20", bf.config.PageSize)
	}
	if bf.config.MaxPages != DefaultMaxPages {
		t.Errorf("MaxPages = %d, want %d", bf.config.MaxPages, DefaultMaxPages)
	}
	if bf.config.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0 (no deadline)", bf.config.Timeout)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", cfg.Timeout)
	}
	if cfg.MaxPages != DefaultMaxPages {
		t.Errorf("MaxPages = %d, want %d", cfg.MaxPages, DefaultMaxPages)
	}
}

func TestFetchAllPages_SinglePage(t *testing.T) {
	f := &fakeFetcher{totalItems: 7}
	bf := NewBatchFetcher(f, Config{PageSize: 10})

	pages, err := bf.FetchAllPages(context.Background())
	if err != nil {
		t.Fatalf("FetchAllPages() error = %v", err)
	}
	if len(pages) != 1 || string(pages[0]) != "page-1" {
		t.Errorf("pages = %q, want [page-1]", pages)
	}
	if len(f.calls) != 1 {
		t.Errorf("calls = %v, want only page 1", f.calls)
	}
}

func TestFetchAllPages_OrderedResult(t *testing.T) {
	f := &fakeFetcher{totalItems: 95, delay: 5 * time.Millisecond}
	bf := NewBatchFetcher(f, Config{PageSize: 10, MaxConcurrency: 3})

	pages, err := bf.FetchAllPages(context.Background())
	if err != nil {
		t.Fatalf("FetchAllPages() error = %v", err)
	}
	if len(pages) != 10 {
		t.Fatalf("got %d pages, want 10", len(pages))
	}
	for i, p := range pages {
		if want := fmt.Sprintf("page-%d", i+1); string(p) != want {
			t.Errorf("pages[%d] = %q, want %q", i, p, want)
		}
	}
	if peak := f.peak.Load(); peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak)
	}
}

func TestFetchAllPages_PageFailureFailsBatch(t *testing.T) {
	f := &fakeFetcher{totalItems: 50, failPage: 3}
	bf := NewBatchFetcher(f, Config{PageSize: 10, MaxConcurrency: 2})

	pages, err := bf.FetchAllPages(context.Background())
	if err == nil {
		t.Fatal("expected error when a page fails")
	}
	if pages != nil {
		t.Errorf("expected no partial result, got %d pages", len(pages))
	}
}

func TestFetchAllPages_FirstPageFailure(t *testing.T) {
	f := &fakeFetcher{totalItems: 50, failPage: 1}
	bf := NewBatchFetcher(f, Config{PageSize: 10})

	if _, err := bf.FetchAllPages(context.Background()); err == nil {
		t.Fatal("expected error when first page fails")
	}
}

func TestFetchAllPages_RejectsImplausibleTotal(t *testing.T) {
	tests := []struct {
		name       string
		totalItems int
		maxPages   int
	}{
		{name: "huge total", totalItems: 1_000_000_000_000_000},
		{name: "max int", totalItems: math.MaxInt},
		{name: "one page over limit", totalItems: 31, maxPages: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{totalItems: tt.totalItems}
			bf := NewBatchFetcher(f, Config{PageSize: 10, MaxPages: tt.maxPages})

			pages, err := bf.FetchAllPages(context.Background())
			if !errors.Is(err, ErrTooManyPages) {
				t.Fatalf("FetchAllPages() error = %v, want ErrTooManyPages", err)
			}
			if pages != nil {
				t.Errorf("pages = %d, want none", len(pages))
			}
			if len(f.calls) != 1 {
				t.Errorf("calls = %v, want only page 1", f.calls)
			}
		})
	}
}

func TestFetchAllPages_AtPageLimit(t *testing.T) {
	f := &fakeFetcher{totalItems: 30}
	bf := NewBatchFetcher(f, Config{PageSize: 10, MaxPages: 3})

	pages, err := bf.FetchAllPages(context.Background())
	if err != nil {
		t.Fatalf("FetchAllPages() error = %v", err)
	}
	if len(pages) != 3 {
		t.Errorf("got %d pages, want 3", len(pages))
	}
}

// deadlineFetcher records whether page contexts carry a deadline.
type deadlineFetcher struct {
	mu          sync.Mutex
	hadDeadline []bool
	totalItems  int
}

func (f *deadlineFetcher) FetchPage(ctx context.Context, pageNum, pageSize int) ([]byte, int, error) {
	_, ok := ctx.Deadline()
	f.mu.Lock()
	f.hadDeadline = append(f.hadDeadline, ok)
	f.mu.Unlock()
	return []byte("[]"), f.totalItems, nil
}

func TestFetchAllPages_Timeout(t *testing.T) {
	tests := []struct {
		name         string
		timeout      time.Duration
		wantDeadline bool
	}{
		{name: "zero means no deadline", timeout: 0, wantDeadline: false},
		{name: "explicit timeout", timeout: time.Minute, wantDeadline: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &deadlineFetcher{totalItems: 25}
			bf := NewBatchFetcher(f, Config{PageSize: 10, Timeout: tt.timeout})

			if _, err := bf.FetchAllPages(context.Background()); err != nil {
				t.Fatalf("FetchAllPages() error = %v", err)
			}
			if len(f.hadDeadline) != 3 {
				t.Fatalf("calls = %d, want 3", len(f.hadDeadline))
			}
			for i, got := range f.hadDeadline {
				if got != tt.wantDeadline {
					t.Errorf("call %d deadline = %v, want %v", i, got, tt.wantDeadline)
				}
			}
		})
	}
}
