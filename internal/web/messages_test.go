package web

import (
	"reflect"
	"strings"
	"testing"

	"github.com/Sternrassler/postview/pkg/detail"
	"github.com/Sternrassler/postview/pkg/pagination"
	"github.com/Sternrassler/postview/pkg/render"
	"github.com/Sternrassler/postview/pkg/viewer"
)

func TestInboundMessage_Event(t *testing.T) {
	tests := []struct {
		name    string
		msg     InboundMessage
		want    viewer.Event
		wantErr bool
	}{
		{name: "refresh", msg: InboundMessage{Type: MsgRefresh}, want: viewer.Refresh{}},
		{name: "prev", msg: InboundMessage{Type: MsgPage, Page: "prev"}, want: viewer.GotoPage{Control: pagination.ControlPrev}},
		{name: "next", msg: InboundMessage{Type: MsgPage, Page: "next"}, want: viewer.GotoPage{Control: pagination.ControlNext}},
		{name: "numbered page", msg: InboundMessage{Type: MsgPage, Page: "3"}, want: viewer.GotoPage{Page: 3}},
		{name: "bad page", msg: InboundMessage{Type: MsgPage, Page: "last"}, wantErr: true},
		{name: "select", msg: InboundMessage{Type: MsgSelect, ID: 42}, want: viewer.SelectCard{ID: 42}},
		{name: "close backdrop", msg: InboundMessage{Type: MsgClose, Trigger: "backdrop"}, want: viewer.CloseDetail{Trigger: detail.TriggerBackdrop}},
		{name: "close unknown trigger", msg: InboundMessage{Type: MsgClose, Trigger: "swipe"}, wantErr: true},
		{name: "key", msg: InboundMessage{Type: MsgKey, Key: "Escape"}, want: viewer.KeyDown{Key: "Escape"}},
		{name: "unknown type", msg: InboundMessage{Type: "scroll"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.msg.Event()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Event() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Event() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestNewFrameMessage(t *testing.T) {
	regions := render.Render(render.ErrorState("HTTP 500"))
	f := viewer.Frame{
		Regions:      regions,
		View:         render.Failed,
		Page:         pagination.NewInfo(2, 4),
		ScrollTop:    true,
		ScrollLocked: true,
	}

	msg := NewFrameMessage("abc", f)

	if msg.Session != "abc" {
		t.Errorf("Session = %q, want abc", msg.Session)
	}
	if msg.View != "error" {
		t.Errorf("View = %q, want error", msg.View)
	}
	if !strings.Contains(msg.Error, render.ErrorPrefix+"HTTP 500") {
		t.Errorf("Error = %q, want the failure message", msg.Error)
	}
	if msg.Overlay != "" {
		t.Errorf("Overlay = %q, want empty for a nil overlay", msg.Overlay)
	}
	if msg.Page != 2 || msg.TotalPages != 4 {
		t.Errorf("Page = %d/%d, want 2/4", msg.Page, msg.TotalPages)
	}
	if !msg.ScrollTop || !msg.ScrollLocked {
		t.Error("scroll flags should carry over")
	}
}

func TestSession_PresentKeepsLatest(t *testing.T) {
	s := &session{id: "s", latest: make(chan FrameMessage, 1)}

	s.Present(viewer.Frame{Page: pagination.NewInfo(1, 3), ScrollTop: true})
	s.Present(viewer.Frame{Page: pagination.NewInfo(2, 3)})

	msg := <-s.latest
	if msg.Page != 2 {
		t.Errorf("Page = %d, want the newest frame", msg.Page)
	}
	if !msg.ScrollTop {
		t.Error("ScrollTop of a replaced frame should not be lost")
	}
	select {
	case extra := <-s.latest:
		t.Errorf("unexpected extra frame %+v", extra)
	default:
	}
}
