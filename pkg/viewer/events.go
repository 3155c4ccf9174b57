package viewer

import (
	"github.com/Sternrassler/postview/pkg/client"
	"github.com/Sternrassler/postview/pkg/detail"
)

// Event is an input to the controller loop.
type Event interface {
	eventName() string
}

// Refresh refetches the list and returns to page 1.
type Refresh struct{}

// GotoPage moves to another page. Control is "prev", "next" or empty, in
// which case Page names the target page.
type GotoPage struct {
	Control string
	Page    int
}

// SelectCard opens the detail overlay for a record on the current page.
type SelectCard struct {
	ID int
}

// CloseDetail asks the overlay to close.
type CloseDetail struct {
	Trigger detail.Trigger
}

// KeyDown forwards a key press (only Escape matters today).
type KeyDown struct {
	Key string
}

// fetchDone carries a fetch outcome back into the loop.
type fetchDone struct {
	generation uint64
	outcome    client.Outcome
}

// closeElapsed fires when the overlay exit transition is over.
type closeElapsed struct {
	token detail.Token
}

func (Refresh) eventName() string      { return "refresh" }
func (GotoPage) eventName() string     { return "page" }
func (SelectCard) eventName() string   { return "select" }
func (CloseDetail) eventName() string  { return "close" }
func (KeyDown) eventName() string      { return "key" }
func (fetchDone) eventName() string    { return "fetch_done" }
func (closeElapsed) eventName() string { return "close_elapsed" }
