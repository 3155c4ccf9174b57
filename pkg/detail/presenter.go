// Package detail implements the single-record overlay state machine.
//
// The overlay is closed, open, or closing (exit transition running). Closing
// is finished by FinishClose once the transition delay has passed; the
// caller owns the timer. Every transition hands out a token so a delayed
// FinishClose that lost a race against a reopen is ignored.
package detail

import (
	"time"

	"github.com/Sternrassler/postview/pkg/record"
)

// DefaultCloseDelay matches the exit transition of the overlay.
const DefaultCloseDelay = 150 * time.Millisecond

// Phase of the overlay.
type Phase int

const (
	Closed Phase = iota
	Open
	Closing
)

func (p Phase) String() string {
	switch p {
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return "closed"
	}
}

// Trigger identifies what asked the overlay to close.
type Trigger string

const (
	TriggerButton   Trigger = "button"
	TriggerBackdrop Trigger = "backdrop"
	TriggerEscape   Trigger = "escape"
)

// ParseTrigger maps a client-supplied name to a Trigger.
func ParseTrigger(s string) (Trigger, bool) {
	switch Trigger(s) {
	case TriggerButton, TriggerBackdrop, TriggerEscape:
		return Trigger(s), true
	}
	return "", false
}

// Token identifies one transition.
type Token uint64

// State is a snapshot of the overlay.
type State struct {
	Phase        Phase
	Record       record.Record
	HasRecord    bool
	ScrollLocked bool
}

// Visible reports whether the overlay is on screen (open or animating out).
func (s State) Visible() bool {
	return s.Phase != Closed
}

// Presenter owns the overlay state. It is not safe for concurrent use; the
// viewer drives it from its event loop.
type Presenter struct {
	state State
	token Token
}

// NewPresenter returns a closed presenter.
func NewPresenter() *Presenter {
	return &Presenter{}
}

// State returns the current snapshot.
func (p *Presenter) State() State {
	return p.state
}

// Open shows rec. From any phase the content is replaced in place and a
// pending close is invalidated.
func (p *Presenter) Open(rec record.Record) Token {
	p.token++
	p.state = State{
		Phase:        Open,
		Record:       rec,
		HasRecord:    true,
		ScrollLocked: true,
	}
	return p.token
}

// BeginClose starts the exit transition. It is a no-op unless the overlay
// is open; ok reports whether a transition started.
func (p *Presenter) BeginClose(trigger Trigger) (Token, bool) {
	if p.state.Phase != Open {
		return 0, false
	}
	if _, valid := ParseTrigger(string(trigger)); !valid {
		return 0, false
	}
	p.token++
	p.state.Phase = Closing
	return p.token, true
}

// FinishClose hides the overlay and releases the scroll lock. Tokens from an
// earlier transition are ignored.
func (p *Presenter) FinishClose(token Token) bool {
	if p.state.Phase != Closing || token != p.token {
		return false
	}
	p.state = State{Phase: Closed}
	return true
}

// HandleKey closes the overlay on Escape.
func (p *Presenter) HandleKey(key string) (Token, bool) {
	if key != "Escape" && key != "Esc" {
		return 0, false
	}
	return p.BeginClose(TriggerEscape)
}
