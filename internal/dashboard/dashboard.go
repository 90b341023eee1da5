// Package dashboard owns the live dashboard state: the market snapshot, the
// user's view state, the transient message banner, and the refresh pipeline
// that ties the provider client, snapshot store, and reconciler together.
//
// All mutation goes through Dashboard methods; there is no ambient global
// state. The render adapter (the HTTP/WebSocket layer) registers a listener
// and is notified after every reconciliation.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fteduche/cryptopluse/internal/coinlore"
	"github.com/fteduche/cryptopluse/internal/market"
	"github.com/fteduche/cryptopluse/internal/prefs"
	"github.com/fteduche/cryptopluse/internal/refresh"
	"github.com/fteduche/cryptopluse/pkg/models"
)

// ErrRefreshBusy is returned when a manual refresh is requested while
// another refresh is still in flight.
var ErrRefreshBusy = errors.New("a refresh is already in progress")

// Fetcher retrieves a full market round-trip. *coinlore.Client satisfies it.
type Fetcher interface {
	FetchMarket(ctx context.Context) (*coinlore.Market, error)
}

// BannerKind classifies the transient user-facing message.
type BannerKind string

const (
	BannerNone    BannerKind = ""
	BannerInfo    BannerKind = "info"
	BannerLoading BannerKind = "loading"
	BannerSuccess BannerKind = "success"
	BannerError   BannerKind = "error"
)

// Banner is the transient message shown above the asset list. Success
// banners auto-dismiss; error banners stay until the next refresh outcome.
type Banner struct {
	Kind BannerKind `json:"kind"`
	Text string     `json:"text"`
}

// Options configures a Dashboard.
type Options struct {
	ItemsPerPage   int
	DefaultMode    models.ViewMode
	SearchDebounce time.Duration // delay before a typed query is applied
	BannerDismiss  time.Duration // how long success banners stay visible
	Logger         *slog.Logger
}

func (o *Options) fillDefaults() {
	if o.ItemsPerPage <= 0 {
		o.ItemsPerPage = 10
	}
	if !o.DefaultMode.Valid() {
		o.DefaultMode = models.ModeTable
	}
	if o.SearchDebounce <= 0 {
		o.SearchDebounce = 300 * time.Millisecond
	}
	if o.BannerDismiss <= 0 {
		o.BannerDismiss = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Listener is notified after every reconciliation with the fresh view.
type Listener func(view models.DerivedView, banner Banner)

// Dashboard is the owned application-state object.
type Dashboard struct {
	fetcher Fetcher
	store   *market.Store
	prefs   *prefs.Store
	sched   *refresh.Scheduler
	opts    Options
	logger  *slog.Logger

	mu          sync.Mutex
	state       models.ViewState
	view        models.DerivedView
	banner      Banner
	loaded      bool // at least one successful fetch
	inFlight    bool
	listener    Listener
	pending     []notification // queued listener deliveries, in order
	notifying   bool           // a drain goroutine is running
	searchTimer *time.Timer    // single-slot debounced search
	bannerTimer *time.Timer    // single-slot success auto-dismiss
}

// notification is one queued listener delivery.
type notification struct {
	view   models.DerivedView
	banner Banner
}

// New creates a dashboard. The initial view mode comes from the persisted
// preference when present, otherwise from Options.DefaultMode.
func New(fetcher Fetcher, pref *prefs.Store, opts Options) *Dashboard {
	opts.fillDefaults()

	mode := opts.DefaultMode
	if pref != nil {
		if v, ok := pref.Get(prefs.KeyViewMode); ok && models.ViewMode(v).Valid() {
			mode = models.ViewMode(v)
		}
	}

	d := &Dashboard{
		fetcher: fetcher,
		store:   market.NewStore(),
		prefs:   pref,
		opts:    opts,
		logger:  opts.Logger,
		state: models.ViewState{
			CurrentPage:  1,
			ItemsPerPage: opts.ItemsPerPage,
			Mode:         mode,
		},
	}
	d.sched = refresh.New(func(ctx context.Context) error {
		return d.Refresh(ctx, true)
	}, opts.Logger)

	d.view = market.Reconcile(nil, d.state, nil)
	return d
}

// SetListener registers the render-adapter callback. Pass nil to clear.
func (d *Dashboard) SetListener(fn Listener) {
	d.mu.Lock()
	d.listener = fn
	d.mu.Unlock()
}

// --- Refresh pipeline ---

// Refresh runs the fetch-and-reconcile pipeline. In silent mode (background
// ticks) no loading banner is raised; only the error or success outcome is
// surfaced. Concurrent refreshes are serialized: a second caller gets
// ErrRefreshBusy instead of racing the store.
//
// A failed refresh never clears displayed data: the stale snapshot stays
// visible behind a non-blocking error banner. Only a failure before the
// first successful load is presented as blocking.
func (d *Dashboard) Refresh(ctx context.Context, silent bool) error {
	d.mu.Lock()
	if d.inFlight {
		d.mu.Unlock()
		return ErrRefreshBusy
	}
	d.inFlight = true
	if !silent {
		d.setBannerLocked(Banner{Kind: BannerLoading, Text: "Loading market data..."})
	}
	d.mu.Unlock()

	m, err := d.fetcher.FetchMarket(ctx)

	d.mu.Lock()
	d.inFlight = false
	if err != nil {
		text := "Refresh failed, showing last known data. Retrying on next cycle."
		if !d.loaded {
			text = "Could not load market data. Check your connection and refresh."
		}
		d.setBannerLocked(Banner{Kind: BannerError, Text: text})
		d.notifyLocked()
		d.mu.Unlock()
		d.logger.Warn("market refresh failed", "err", err, "silent", silent)
		return err
	}

	d.store.Replace(m.Assets, m.Global)
	d.loaded = true
	d.setBannerLocked(Banner{Kind: BannerSuccess, Text: "Market data updated."})
	d.scheduleBannerDismissLocked()
	d.reconcileLocked()
	d.mu.Unlock()

	d.logger.Info("market refreshed", "assets", len(m.Assets), "silent", silent)
	return nil
}

// Refreshing reports whether a refresh is currently in flight.
func (d *Dashboard) Refreshing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}

// Loaded reports whether at least one fetch has succeeded.
func (d *Dashboard) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

// StartAutoRefresh begins periodic silent refreshes.
func (d *Dashboard) StartAutoRefresh(interval time.Duration) {
	d.sched.Start(interval)
}

// StopAutoRefresh halts future refresh ticks.
func (d *Dashboard) StopAutoRefresh() {
	d.sched.Stop()
}

// --- View state mutations ---

// SetSearch schedules the query to be applied after the debounce delay.
// Scheduling a new search cancels any pending one, so only the final query
// in a burst of keystrokes triggers a reconciliation.
func (d *Dashboard) SetSearch(query string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.searchTimer != nil {
		d.searchTimer.Stop()
	}
	d.searchTimer = time.AfterFunc(d.opts.SearchDebounce, func() {
		d.SetSearchNow(query)
	})
}

// SetSearchNow applies the query immediately and resets to the first page.
func (d *Dashboard) SetSearchNow(query string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.searchTimer != nil {
		d.searchTimer.Stop()
		d.searchTimer = nil
	}
	d.state.SearchQuery = query
	d.state.CurrentPage = 1
	d.reconcileLocked()
}

// SetPage moves to the given page; reconcile clamps it into range.
func (d *Dashboard) SetPage(page int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.CurrentPage = page
	d.reconcileLocked()
	d.state.CurrentPage = d.view.Page
}

// NextPage advances one page, bounded by the last page.
func (d *Dashboard) NextPage() {
	d.mu.Lock()
	page := d.state.CurrentPage + 1
	d.mu.Unlock()
	d.SetPage(page)
}

// PrevPage moves back one page, bounded by the first.
func (d *Dashboard) PrevPage() {
	d.mu.Lock()
	page := d.state.CurrentPage - 1
	d.mu.Unlock()
	d.SetPage(page)
}

// SetViewMode switches between table and card layout and persists the
// choice. Unknown modes are rejected.
func (d *Dashboard) SetViewMode(mode models.ViewMode) error {
	if !mode.Valid() {
		return errors.New("unknown view mode: " + string(mode))
	}

	d.mu.Lock()
	d.state.Mode = mode
	d.reconcileLocked()
	d.mu.Unlock()

	if d.prefs != nil {
		if err := d.prefs.Set(prefs.KeyViewMode, string(mode)); err != nil {
			d.logger.Warn("persist view mode failed", "err", err)
		}
	}
	return nil
}

// --- Read side ---

// View returns the current derived view.
func (d *Dashboard) View() models.DerivedView {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.view
}

// State returns a copy of the current view state.
func (d *Dashboard) State() models.ViewState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Banner returns the current transient message.
func (d *Dashboard) Banner() Banner {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.banner
}

// Global returns the latest aggregate market figures.
func (d *Dashboard) Global() models.GlobalStats {
	return d.store.Global()
}

// LastUpdated returns the time of the last successful fetch.
func (d *Dashboard) LastUpdated() time.Time {
	return d.store.LastUpdated()
}

// AssetByID returns the asset with its current price delta, for the detail
// view. The second result is false when the id is not in the snapshot.
func (d *Dashboard) AssetByID(id string) (models.VisibleAsset, bool) {
	a, ok := d.store.AssetByID(id)
	if !ok {
		return models.VisibleAsset{}, false
	}

	prior := d.store.PriorPrices()
	vs := models.ViewState{CurrentPage: 1, ItemsPerPage: 1}
	dv := market.Reconcile([]models.Asset{a}, vs, prior)
	return dv.Visible[0], true
}

// --- Internals ---

// reconcileLocked recomputes the derived view and notifies the listener.
// Caller must hold d.mu.
func (d *Dashboard) reconcileLocked() {
	d.view = market.Reconcile(d.store.Assets(), d.state, d.store.PriorPrices())
	d.notifyLocked()
}

// notifyLocked queues the current view for the listener. Deliveries run on a
// single drain goroutine so clients always observe reconciliations in the
// order they happened. Caller must hold d.mu.
func (d *Dashboard) notifyLocked() {
	if d.listener == nil {
		return
	}
	d.pending = append(d.pending, notification{view: d.view, banner: d.banner})
	if !d.notifying {
		d.notifying = true
		go d.drainNotifications()
	}
}

// drainNotifications delivers queued notifications outside the lock, one at
// a time, so a listener can call back into the dashboard.
func (d *Dashboard) drainNotifications() {
	for {
		d.mu.Lock()
		if len(d.pending) == 0 {
			d.notifying = false
			d.mu.Unlock()
			return
		}
		n := d.pending[0]
		d.pending = d.pending[1:]
		fn := d.listener
		d.mu.Unlock()

		if fn != nil {
			fn(n.view, n.banner)
		}
	}
}

// setBannerLocked replaces the banner, cancelling any pending auto-dismiss.
// Caller must hold d.mu.
func (d *Dashboard) setBannerLocked(b Banner) {
	if d.bannerTimer != nil {
		d.bannerTimer.Stop()
		d.bannerTimer = nil
	}
	d.banner = b
}

// scheduleBannerDismissLocked clears a success banner after the configured
// delay. Caller must hold d.mu.
func (d *Dashboard) scheduleBannerDismissLocked() {
	d.bannerTimer = time.AfterFunc(d.opts.BannerDismiss, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.banner.Kind == BannerSuccess {
			d.banner = Banner{}
			d.notifyLocked()
		}
	})
}
