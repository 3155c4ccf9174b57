// Package viewer wires the gateway, store, renderer and detail presenter
// into one event loop per viewer session.
//
// All state lives on the goroutine running Run. Fetches and timers run on
// helper goroutines and report back through the event queue, so no locking
// is needed. Each refresh starts a new generation: the previous fetch is
// cancelled and any result it still delivers is dropped.
package viewer

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/postview/pkg/client"
	"github.com/Sternrassler/postview/pkg/detail"
	"github.com/Sternrassler/postview/pkg/pagination"
	"github.com/Sternrassler/postview/pkg/record"
	"github.com/Sternrassler/postview/pkg/render"
)

var (
	eventsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postview_events_total",
		Help: "Events processed by viewer loops",
	}, []string{"event"})

	fetchCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postview_fetch_cycles_total",
		Help: "Completed fetch cycles by result",
	}, []string{"result"})

	staleDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postview_stale_results_dropped_total",
		Help: "Fetch results discarded because a newer refresh superseded them",
	})

	pageChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postview_page_changes_total",
		Help: "Accepted page navigations",
	})

	detailOpens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postview_detail_opens_total",
		Help: "Detail overlays opened",
	})
)

// Frame is everything a surface needs to redraw after an event.
type Frame struct {
	Regions render.Regions
	Overlay *render.Node

	View render.Kind
	Page pagination.Info

	// ScrollTop asks the surface to scroll the list back to the top
	ScrollTop bool

	// ScrollLocked suspends background scrolling while the overlay is up
	ScrollLocked bool
}

// Surface receives frames. Present is called from the controller loop and
// must not block for long.
type Surface interface {
	Present(Frame)
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(Frame)

// Present calls f.
func (f SurfaceFunc) Present(fr Frame) { f(fr) }

// Config holds controller settings.
type Config struct {
	PageSize int

	// SkeletonDelay keeps the loading state visible after a successful
	// fetch; 0 disables it
	SkeletonDelay time.Duration

	// CloseDelay is the overlay exit transition; 0 closes immediately
	CloseDelay time.Duration

	Render render.Config
}

// DefaultConfig returns the settings of the stock viewer.
func DefaultConfig() Config {
	return Config{
		PageSize:      record.DefaultPageSize,
		SkeletonDelay: 500 * time.Millisecond,
		CloseDelay:    detail.DefaultCloseDelay,
		Render:        render.DefaultConfig(),
	}
}

// Controller is the viewer event loop.
type Controller struct {
	fetcher client.Fetcher
	surface Surface
	config  Config
	logger  zerolog.Logger

	store     *record.Store
	presenter *detail.Presenter
	renderer  *render.Renderer
	view      render.ViewState

	generation  uint64
	cancelFetch context.CancelFunc

	events chan Event
	done   chan struct{}
}

// New creates a controller. Nothing happens until Run is called.
func New(fetcher client.Fetcher, surface Surface, cfg Config, logger zerolog.Logger) (*Controller, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if surface == nil {
		return nil, fmt.Errorf("surface is required")
	}
	if cfg.SkeletonDelay < 0 || cfg.CloseDelay < 0 {
		return nil, fmt.Errorf("delays must be >= 0")
	}

	store, err := record.NewStore(cfg.PageSize)
	if err != nil {
		return nil, err
	}

	return &Controller{
		fetcher:   fetcher,
		surface:   surface,
		config:    cfg,
		logger:    logger,
		store:     store,
		presenter: detail.NewPresenter(),
		renderer:  render.New(cfg.Render),
		view:      render.LoadingState(),
		events:    make(chan Event, 16),
		done:      make(chan struct{}),
	}, nil
}

// Send queues an event. It blocks while the queue is full and returns false
// once the loop has stopped.
func (c *Controller) Send(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

// Done is closed when Run returns.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Run starts the initial fetch and processes events until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	defer func() {
		if c.cancelFetch != nil {
			c.cancelFetch()
		}
	}()

	c.logger.Info().Int("page_size", c.config.PageSize).Msg("Viewer started")
	c.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Viewer stopped")
			return nil
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

func (c *Controller) handle(ctx context.Context, ev Event) {
	eventsHandled.WithLabelValues(ev.eventName()).Inc()

	switch ev := ev.(type) {
	case Refresh:
		c.refresh(ctx)
	case fetchDone:
		c.applyOutcome(ev)
	case GotoPage:
		c.gotoPage(ev)
	case SelectCard:
		c.selectCard(ev.ID)
	case CloseDetail:
		c.beginClose(c.presenter.BeginClose(ev.Trigger))
	case KeyDown:
		c.beginClose(c.presenter.HandleKey(ev.Key))
	case closeElapsed:
		if c.presenter.FinishClose(ev.token) {
			c.present(false)
		}
	default:
		c.logger.Warn().Str("event", fmt.Sprintf("%T", ev)).Msg("Unknown event ignored")
	}
}

func (c *Controller) refresh(ctx context.Context) {
	if c.cancelFetch != nil {
		c.cancelFetch()
	}
	c.generation++
	gen := c.generation

	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancelFetch = cancel

	c.view = render.LoadingState()
	c.present(false)

	c.logger.Debug().Uint64("generation", gen).Msg("Fetch started")
	go c.fetch(fetchCtx, gen)
}

// fetch runs on a helper goroutine.
func (c *Controller) fetch(ctx context.Context, gen uint64) {
	out := c.fetcher.FetchRecords(ctx)

	if out.OK() && c.config.SkeletonDelay > 0 {
		timer := time.NewTimer(c.config.SkeletonDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	c.Send(fetchDone{generation: gen, outcome: out})
}

func (c *Controller) applyOutcome(ev fetchDone) {
	if ev.generation != c.generation {
		staleDropped.Inc()
		c.logger.Debug().
			Uint64("generation", ev.generation).
			Uint64("current", c.generation).
			Msg("Stale fetch result dropped")
		return
	}
	c.cancelFetch()
	c.cancelFetch = nil

	if !ev.outcome.OK() {
		fetchCycles.WithLabelValues("error").Inc()
		c.store.Reset()
		c.view = render.ErrorState(ev.outcome.Err.Message)
		c.present(false)
		return
	}

	fetchCycles.WithLabelValues("ok").Inc()
	c.store.Replace(ev.outcome.Records)
	c.view = render.LoadedState(c.store.Page(), c.store.Info())

	c.logger.Info().
		Uint64("generation", ev.generation).
		Int("records", c.store.Len()).
		Int("total_pages", c.store.TotalPages()).
		Bool("coerced", ev.outcome.Coerced).
		Msg("Fetch cycle completed")

	c.present(false)
}

func (c *Controller) gotoPage(ev GotoPage) {
	if c.view.Kind != render.Loaded {
		return
	}

	target, ok := c.store.Info().Target(ev.Control, ev.Page)
	if !ok || !c.store.SetPage(target) {
		return
	}

	pageChanges.Inc()
	c.view = render.LoadedState(c.store.Page(), c.store.Info())
	c.present(true)
}

func (c *Controller) selectCard(id int) {
	if c.view.Kind != render.Loaded {
		return
	}
	rec, ok := c.store.Find(id)
	if !ok {
		return
	}

	detailOpens.Inc()
	c.presenter.Open(rec)
	c.present(false)
}

func (c *Controller) beginClose(token detail.Token, ok bool) {
	if !ok {
		return
	}

	if c.config.CloseDelay <= 0 {
		c.presenter.FinishClose(token)
		c.present(false)
		return
	}

	c.present(false)
	time.AfterFunc(c.config.CloseDelay, func() {
		c.Send(closeElapsed{token: token})
	})
}

func (c *Controller) present(scrollTop bool) {
	st := c.presenter.State()
	c.surface.Present(Frame{
		Regions:      c.renderer.Render(c.view),
		Overlay:      c.renderer.RenderDetail(st),
		View:         c.view.Kind,
		Page:         c.view.Page,
		ScrollTop:    scrollTop,
		ScrollLocked: st.ScrollLocked,
	})
}
