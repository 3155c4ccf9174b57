package web

import (
	"fmt"
	"strconv"

	"github.com/Sternrassler/postview/pkg/detail"
	"github.com/Sternrassler/postview/pkg/pagination"
	"github.com/Sternrassler/postview/pkg/viewer"
)

// Inbound message types.
const (
	MsgRefresh = "refresh"
	MsgPage    = "page"
	MsgSelect  = "select"
	MsgClose   = "close"
	MsgKey     = "key"
)

// FrameMessage is the JSON form of a viewer frame. Region fields carry
// markup ready to be assigned to the region containers.
type FrameMessage struct {
	Session      string `json:"session"`
	View         string `json:"view"`
	List         string `json:"list"`
	Pagination   string `json:"pagination"`
	Error        string `json:"error"`
	Overlay      string `json:"overlay"`
	Page         int    `json:"page"`
	TotalPages   int    `json:"totalPages"`
	ScrollTop    bool   `json:"scrollTop"`
	ScrollLocked bool   `json:"scrollLocked"`
}

// NewFrameMessage serialises a frame for session id.
func NewFrameMessage(id string, f viewer.Frame) FrameMessage {
	return FrameMessage{
		Session:      id,
		View:         f.View.String(),
		List:         f.Regions.List.Markup(),
		Pagination:   f.Regions.Pagination.Markup(),
		Error:        f.Regions.Error.Markup(),
		Overlay:      f.Overlay.Markup(),
		Page:         f.Page.Current,
		TotalPages:   f.Page.Total,
		ScrollTop:    f.ScrollTop,
		ScrollLocked: f.ScrollLocked,
	}
}

// InboundMessage is a user interaction forwarded by the page script.
type InboundMessage struct {
	Type string `json:"type"`

	// Page is "prev", "next" or a page number (type "page")
	Page string `json:"page,omitempty"`

	// ID is the record id of a selected card (type "select")
	ID int `json:"id,omitempty"`

	// Trigger is button, backdrop or escape (type "close")
	Trigger string `json:"trigger,omitempty"`

	// Key is the KeyboardEvent.key value (type "key")
	Key string `json:"key,omitempty"`
}

// Event converts the message into a viewer event.
func (m InboundMessage) Event() (viewer.Event, error) {
	switch m.Type {
	case MsgRefresh:
		return viewer.Refresh{}, nil
	case MsgPage:
		switch m.Page {
		case pagination.ControlPrev, pagination.ControlNext:
			return viewer.GotoPage{Control: m.Page}, nil
		}
		page, err := strconv.Atoi(m.Page)
		if err != nil {
			return nil, fmt.Errorf("invalid page %q", m.Page)
		}
		return viewer.GotoPage{Page: page}, nil
	case MsgSelect:
		return viewer.SelectCard{ID: m.ID}, nil
	case MsgClose:
		trigger, ok := detail.ParseTrigger(m.Trigger)
		if !ok {
			return nil, fmt.Errorf("invalid close trigger %q", m.Trigger)
		}
		return viewer.CloseDetail{Trigger: trigger}, nil
	case MsgKey:
		return viewer.KeyDown{Key: m.Key}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", m.Type)
	}
}
