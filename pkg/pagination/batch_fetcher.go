package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxPages bounds how many remote pages one batch may fetch.
const DefaultMaxPages = 500

// ErrTooManyPages is returned when the reported total needs more pages
// than MaxPages allows.
var ErrTooManyPages = errors.New("remote total exceeds page limit")

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel page requests
	MaxConcurrency int
	// PageSize is the number of items requested per remote page
	PageSize int
	// MaxPages caps the page count derived from the remote total
	MaxPages int
	// Timeout per page fetch; 0 means no deadline beyond ctx
	Timeout time.Duration
}

// DefaultConfig returns a conservative configuration for public JSON APIs
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		PageSize:       20,
		MaxPages:       DefaultMaxPages,
		Timeout:        15 * time.Second,
	}
}

// PageFetcher fetches one remote page.
type PageFetcher interface {
	// FetchPage returns the raw page body and the total item count reported
	// by the remote side (X-Total-Count). The count is only needed for page 1.
	FetchPage(ctx context.Context, pageNum, pageSize int) (data []byte, totalItems int, err error)
}

// BatchFetcher handles parallel fetching of all remote pages
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.PageSize <= 0 {
		config.PageSize = 20
	}
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultMaxPages
	}
	if config.Timeout < 0 {
		config.Timeout = 0
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAllPages fetches page 1 to learn the total count, then the remaining
// pages in parallel. The result is ordered by page number. Unlike a partial
// listing, any failed page fails the whole batch.
func (bf *BatchFetcher) FetchAllPages(ctx context.Context) ([][]byte, error) {
	start := time.Now()

	firstCtx, cancel := bf.pageContext(ctx)
	first, totalItems, err := bf.fetcher.FetchPage(firstCtx, 1, bf.config.PageSize)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("fetch first page: %w", err)
	}

	totalPages := TotalPages(totalItems, bf.config.PageSize)
	if totalPages > bf.config.MaxPages {
		log.Warn().
			Int("total_items", totalItems).
			Int("total_pages", totalPages).
			Int("max_pages", bf.config.MaxPages).
			Msg("Remote total rejected")
		return nil, fmt.Errorf("%w: %d items need %d pages, limit %d",
			ErrTooManyPages, totalItems, totalPages, bf.config.MaxPages)
	}
	if totalPages <= 1 {
		log.Debug().
			Int("total_items", totalItems).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return [][]byte{first}, nil
	}

	log.Info().
		Int("total_pages", totalPages).
		Int("max_concurrency", bf.config.MaxConcurrency).
		Msg("Starting parallel page fetch")

	results := make([][]byte, totalPages)
	results[0] = first

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bf.config.MaxConcurrency)

	for page := 2; page <= totalPages; page++ {
		g.Go(func() error {
			pageCtx, cancel := bf.pageContext(gctx)
			defer cancel()

			data, _, err := bf.fetcher.FetchPage(pageCtx, page, bf.config.PageSize)
			if err != nil {
				log.Warn().Err(err).Int("page", page).Msg("Page fetch failed")
				return fmt.Errorf("fetch page %d: %w", page, err)
			}
			// Each goroutine owns exactly one index.
			results[page-1] = data
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info().
		Int("pages", totalPages).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return results, nil
}

// pageContext applies the per-page timeout, if any.
func (bf *BatchFetcher) pageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if bf.config.Timeout == 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, bf.config.Timeout)
}
