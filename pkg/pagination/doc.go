// Package pagination provides page arithmetic for record lists and parallel
// batch fetching for remote endpoints that paginate server side.
//
// Page arithmetic is pure and never fails: pages outside 1..TotalPages map to
// an empty slice, and zero items give zero pages.
//
//	total := pagination.TotalPages(len(posts), 6)
//	page := pagination.Slice(posts, 6, 2)
//	info := pagination.NewInfo(2, total)
//
// Remote pagination follows the json-server convention (?_page=N&_limit=K
// with an X-Total-Count header). The batch fetcher:
//   - Fetches page 1 to learn the total item count
//   - Fetches the remaining pages through a bounded errgroup
//   - Returns bodies ordered by page number
//   - Fails the whole batch when any page fails
package pagination
