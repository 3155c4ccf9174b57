package pagination

// TotalPages returns ceil(itemCount/pageSize). Zero items give zero pages.
func TotalPages(itemCount, pageSize int) int {
	if itemCount <= 0 || pageSize <= 0 {
		return 0
	}
	pages := itemCount / pageSize
	if itemCount%pageSize != 0 {
		pages++
	}
	return pages
}

// Slice returns the 1-based page of items. Pages outside 1..TotalPages
// yield an empty slice rather than an error.
func Slice[T any](items []T, pageSize, page int) []T {
	total := TotalPages(len(items), pageSize)
	if page < 1 || page > total {
		return []T{}
	}

	start := (page - 1) * pageSize
	end := min(start+pageSize, len(items))
	return items[start:end:end]
}

// Clamp pulls page into 1..max(1, total).
func Clamp(page, total int) int {
	if page > total {
		page = total
	}
	if page < 1 {
		page = 1
	}
	return page
}

// Info describes the pagination controls for one page.
type Info struct {
	Current int
	Total   int
	HasPrev bool
	HasNext bool
}

// NewInfo builds the control state for the current page of total pages.
func NewInfo(current, total int) Info {
	current = Clamp(current, total)
	return Info{
		Current: current,
		Total:   total,
		HasPrev: current > 1,
		HasNext: current < total,
	}
}

// ShowControls reports whether pagination controls should be drawn at all.
// Zero or one page needs no controls.
func (i Info) ShowControls() bool {
	return i.Total > 1
}

// Target resolves a pagination control value ("prev", "next" or a page
// number already parsed into page) against the current state. ok is false
// when the move is out of range.
func (i Info) Target(control string, page int) (int, bool) {
	switch control {
	case ControlPrev:
		if !i.HasPrev {
			return 0, false
		}
		return i.Current - 1, true
	case ControlNext:
		if !i.HasNext {
			return 0, false
		}
		return i.Current + 1, true
	}
	if page < 1 || page > i.Total {
		return 0, false
	}
	return page, true
}

// Pagination control values carried by the prev/next buttons.
const (
	ControlPrev = "prev"
	ControlNext = "next"
)
