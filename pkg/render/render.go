// Package render turns viewer state into UI node descriptions. Rendering is
// pure: the same input always yields the same tree.
package render

import (
	"strconv"
	"strings"

	"github.com/Sternrassler/postview/pkg/detail"
	"github.com/Sternrassler/postview/pkg/pagination"
	"github.com/Sternrassler/postview/pkg/record"
)

// ErrorPrefix precedes the failure message in the error region.
const ErrorPrefix = "Error while loading posts: "

// Kind tags a ViewState.
type Kind int

const (
	Loading Kind = iota
	Loaded
	Failed
)

func (k Kind) String() string {
	switch k {
	case Loaded:
		return "loaded"
	case Failed:
		return "error"
	default:
		return "loading"
	}
}

// ViewState is what the list region shows. Exactly one of the variants is
// active, selected by Kind.
type ViewState struct {
	Kind    Kind
	Records []record.Record
	Page    pagination.Info
	Message string
}

// LoadingState shows placeholders while a fetch is in flight.
func LoadingState() ViewState {
	return ViewState{Kind: Loading}
}

// LoadedState shows a page of records.
func LoadedState(records []record.Record, page pagination.Info) ViewState {
	return ViewState{Kind: Loaded, Records: records, Page: page}
}

// ErrorState shows a failure message.
func ErrorState(message string) ViewState {
	return ViewState{Kind: Failed, Message: message}
}

// Regions is the full replacement content of the three list-side regions.
// Each region is a fragment; an empty fragment clears the region.
type Regions struct {
	List       *Node
	Pagination *Node
	Error      *Node
}

// Config holds renderer settings.
type Config struct {
	// SkeletonCount is the number of placeholder cards while loading
	SkeletonCount int

	// BodyPreviewRunes truncates card bodies; 0 disables truncation
	BodyPreviewRunes int
}

// DefaultConfig returns the settings of the stock viewer.
func DefaultConfig() Config {
	return Config{
		SkeletonCount:    6,
		BodyPreviewRunes: 140,
	}
}

// Renderer renders view states with a fixed configuration.
type Renderer struct {
	config Config
}

// New creates a renderer. Negative counts are treated as zero.
func New(cfg Config) *Renderer {
	cfg.SkeletonCount = max(cfg.SkeletonCount, 0)
	cfg.BodyPreviewRunes = max(cfg.BodyPreviewRunes, 0)
	return &Renderer{config: cfg}
}

// Render builds the regions for vs.
func (r *Renderer) Render(vs ViewState) Regions {
	switch vs.Kind {
	case Loaded:
		return Regions{
			List:       r.cards(vs.Records),
			Pagination: paginationControls(vs.Page),
			Error:      Fragment(),
		}
	case Failed:
		return Regions{
			List:       Fragment(),
			Pagination: Fragment(),
			Error:      Fragment(El("p", []Attr{{"role", "alert"}}, Text(ErrorPrefix+vs.Message))),
		}
	default:
		return Regions{
			List:       r.skeletons(),
			Pagination: Fragment(),
			Error:      Fragment(),
		}
	}
}

func (r *Renderer) skeletons() *Node {
	bar := func(class string) *Node { return El("div", []Attr{{"class", class}}) }

	nodes := make([]*Node, r.config.SkeletonCount)
	for i := range nodes {
		nodes[i] = El("div", []Attr{{"class", "card skeleton"}, {"aria-hidden", "true"}},
			El("div", []Attr{{"class", "skeleton-header"}},
				bar("bar bar-title"),
				bar("bar bar-meta"),
			),
			El("div", []Attr{{"class", "skeleton-body"}},
				bar("bar"),
				bar("bar"),
				bar("bar bar-short"),
			),
		)
	}
	return Fragment(nodes...)
}

func (r *Renderer) cards(records []record.Record) *Node {
	nodes := make([]*Node, len(records))
	for i, rec := range records {
		nodes[i] = El("article", []Attr{{"class", "card"}, {"data-record", strconv.Itoa(rec.ID)}},
			El("header", nil,
				El("h2", []Attr{{"class", "card-title"}}, Text(rec.Title)),
				El("div", []Attr{{"class", "card-meta"}}, Text(rec.Meta())),
			),
			El("p", []Attr{{"class", "card-body"}}, Text(Truncate(rec.Body, r.config.BodyPreviewRunes))),
		)
	}
	return Fragment(nodes...)
}

func paginationControls(info pagination.Info) *Node {
	if !info.ShowControls() {
		return Fragment()
	}

	buttons := make([]*Node, 0, info.Total+2)
	buttons = append(buttons, stepButton(pagination.ControlPrev, "Previous", !info.HasPrev))
	for page := 1; page <= info.Total; page++ {
		label := strconv.Itoa(page)
		attrs := []Attr{{"class", "page"}, {"data-page", label}}
		if page == info.Current {
			attrs = []Attr{{"class", "page active"}, {"data-page", label}, {"aria-current", "page"}}
		}
		buttons = append(buttons, El("button", attrs, Text(label)))
	}
	buttons = append(buttons, stepButton(pagination.ControlNext, "Next", !info.HasNext))

	return Fragment(El("nav", []Attr{{"class", "pager"}, {"aria-label", "Pagination"}}, buttons...))
}

func stepButton(control, label string, disabled bool) *Node {
	attrs := []Attr{{"class", "step"}, {"data-page", control}}
	if disabled {
		attrs = []Attr{{"class", "step disabled"}, {"data-page", control}, {"disabled", ""}}
	}
	return El("button", attrs, Text(label))
}

// RenderDetail builds the overlay region. A closed overlay renders hidden
// and empty.
func (r *Renderer) RenderDetail(st detail.State) *Node {
	classes := []string{"modal"}
	switch st.Phase {
	case detail.Open:
		classes = append(classes, "modal-fade-in")
	case detail.Closing:
		classes = append(classes, "modal-fade-out")
	default:
		classes = append(classes, "hidden")
	}

	var title, meta, body string
	if st.HasRecord {
		title, meta, body = st.Record.Title, st.Record.Meta(), st.Record.Body
	}

	content := "modal-content modal-content-in"
	if st.Phase != detail.Open {
		content = "modal-content modal-content-out"
	}

	return El("div", []Attr{
		{"class", strings.Join(classes, " ")},
		{"data-phase", st.Phase.String()},
		{"data-close", string(detail.TriggerBackdrop)},
	},
		El("div", []Attr{{"class", content}, {"role", "dialog"}, {"aria-modal", "true"}},
			El("button", []Attr{{"class", "modal-close"}, {"data-close", string(detail.TriggerButton)}, {"aria-label", "Close"}}, Text("×")),
			El("h2", []Attr{{"data-field", "title"}}, Text(title)),
			El("div", []Attr{{"data-field", "meta"}}, Text(meta)),
			El("p", []Attr{{"data-field", "body"}}, Text(body)),
		),
	)
}

// Truncate shortens s to at most n runes, marking the cut with "…".
// n <= 0 returns s unchanged.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimRight(string(runes[:n]), " \t\n") + "…"
}

var defaultRenderer = New(DefaultConfig())

// Render renders vs with the default configuration.
func Render(vs ViewState) Regions {
	return defaultRenderer.Render(vs)
}

// RenderDetail renders the overlay with the default configuration.
func RenderDetail(st detail.State) *Node {
	return defaultRenderer.RenderDetail(st)
}
