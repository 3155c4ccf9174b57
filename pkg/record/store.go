package record

import (
	"fmt"

	"github.com/Sternrassler/postview/pkg/pagination"
)

// DefaultPageSize is the number of records shown per page.
const DefaultPageSize = 6

// Store owns the full fetched list and the current page pointer.
//
// Invariant: 1 <= CurrentPage() <= max(1, TotalPages()).
// Store is not safe for concurrent use; it is owned by the viewer loop.
type Store struct {
	items       []Record
	pageSize    int
	currentPage int
}

// NewStore creates an empty store with a fixed page size.
func NewStore(pageSize int) (*Store, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be > 0 (got %d)", pageSize)
	}
	return &Store{
		pageSize:    pageSize,
		currentPage: 1,
	}, nil
}

// Replace swaps in a freshly fetched list and resets the page to 1.
// The list is never merged with the previous one.
func (s *Store) Replace(items []Record) {
	s.items = append([]Record(nil), items...)
	s.currentPage = 1
}

// Reset drops all items, e.g. after a failed fetch.
func (s *Store) Reset() {
	s.items = nil
	s.currentPage = 1
}

// Len returns the number of records held.
func (s *Store) Len() int { return len(s.items) }

// PageSize returns the fixed page size.
func (s *Store) PageSize() int { return s.pageSize }

// CurrentPage returns the 1-based current page.
func (s *Store) CurrentPage() int { return s.currentPage }

// TotalPages returns the number of pages for the held list.
func (s *Store) TotalPages() int {
	return pagination.TotalPages(len(s.items), s.pageSize)
}

// SetPage moves the page pointer. Pages outside 1..TotalPages are rejected
// and leave the store untouched.
func (s *Store) SetPage(page int) bool {
	if page < 1 || page > s.TotalPages() {
		return false
	}
	s.currentPage = page
	return true
}

// Page returns the records of the current page.
func (s *Store) Page() []Record {
	return pagination.Slice(s.items, s.pageSize, s.currentPage)
}

// Info returns the pagination info for the current page.
func (s *Store) Info() pagination.Info {
	return pagination.NewInfo(s.currentPage, s.TotalPages())
}

// Find looks up a record by id within the current page.
func (s *Store) Find(id int) (Record, bool) {
	for _, r := range s.Page() {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}
