// Package record holds the post records fetched from the remote list endpoint
// and the store that tracks which page of them is being viewed.
package record

import "fmt"

// Record is one post as returned by the remote endpoint.
// Records are immutable once fetched.
type Record struct {
	ID      int    `json:"id"`
	OwnerID int    `json:"userId"`
	Title   string `json:"title"`
	Body    string `json:"body"`
}

// Meta returns the "Post #id • User ownerId" line shown on cards and in the
// detail overlay.
func (r Record) Meta() string {
	return fmt.Sprintf("Post #%d • User %d", r.ID, r.OwnerID)
}
