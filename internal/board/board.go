package board

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderboard/pkg/errorbank"
)

var boardTracer = otel.Tracer("github.com/Additional-Code/orderboard/board")

// Credential is the staff bearer token forwarded to the restaurant API.
type Credential struct {
	Token string
	// Subject identifies the staff member in logs only.
	Subject string
}

// Empty reports whether no token is present.
func (c Credential) Empty() bool {
	return c.Token == ""
}

// API is the subset of the restaurant API the board mutates through.
type API interface {
	MarkOrderPreparing(ctx context.Context, cred Credential, orderID int64) error
	MarkOrderServed(ctx context.Context, cred Credential, orderID int64) error
	MarkOrderReady(ctx context.Context, cred Credential, orderID int64) error
	UpdateOrDeleteOrder(ctx context.Context, cred Credential, orderID int64, items []ItemQuantity) error
}

// Feed exposes the latest snapshot of the upstream feeds.
type Feed interface {
	Snapshot() Snapshot
}

// refreshRequester is implemented by feeds that can refresh ahead of schedule.
type refreshRequester interface {
	RequestRefresh()
}

// Options tunes reconciliation and the default tab.
type Options struct {
	PollInterval     time.Duration
	ReconcileTimeout time.Duration
	DefaultTab       Status
}

// patch is an optimistic status laid over the feed. It holds only while
// the feed still reports the order as it was when the patch was taken.
type patch struct {
	status      Status
	base        Status
	baseUpdated time.Time
	unconfirmed bool
}

func (p patch) superseded(o Order) bool {
	return o.Status != p.base || !o.UpdatedAt.Equal(p.baseUpdated)
}

// Board serves the order board: derived views over the feed, status
// transitions with optimistic patches, and item removal.
type Board struct {
	api     API
	feed    Feed
	logger  *zap.Logger
	opts    Options
	metrics *metrics

	mu      sync.Mutex
	loading map[int64]struct{}
	patches map[int64]patch
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Board.
func New(api API, feed Feed, logger *zap.Logger, opts Options) *Board {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.ReconcileTimeout <= 0 {
		opts.ReconcileTimeout = 10 * time.Second
	}
	if !opts.DefaultTab.Valid() {
		opts.DefaultTab = StatusPreparing
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Board{
		api:     api,
		feed:    feed,
		logger:  logger,
		opts:    opts,
		metrics: newMetrics(),
		loading: make(map[int64]struct{}),
		patches: make(map[int64]patch),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Close cancels outstanding reconciliations and waits for them to finish.
func (b *Board) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Orders returns every board row, newest first, with local state applied.
func (b *Board) Orders() []ViewOrder {
	snap := b.feed.Snapshot()
	views := Aggregate(snap.Orders, snap.Dishes, snap.Tables, snap.Stats)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked(snap)
	for i := range views {
		b.overlayLocked(&views[i])
	}
	return views
}

// Tabs buckets the board rows and selects tab, or the default tab when
// tab is empty.
func (b *Board) Tabs(tab Status) (*Tabs, error) {
	if tab == "" {
		tab = b.opts.DefaultTab
	}
	tabs := NewTabs(b.Orders())
	if err := tabs.Select(tab); err != nil {
		return nil, errorbank.BadRequest("unknown tab", errorbank.WithCause(err), errorbank.WithDetail("tab", string(tab)))
	}
	return tabs, nil
}

// Order returns a single board row.
func (b *Board) Order(id int64) (ViewOrder, error) {
	snap := b.feed.Snapshot()
	b.mu.Lock()
	defer b.mu.Unlock()
	view, ok := b.viewLocked(snap, id)
	if !ok {
		return ViewOrder{}, errorbank.NotFound("order not found", errorbank.WithCause(ErrOrderNotFound))
	}
	return view, nil
}

func (b *Board) viewLocked(snap Snapshot, id int64) (ViewOrder, bool) {
	order, ok := snap.Order(id)
	if !ok {
		return ViewOrder{}, false
	}
	view := Aggregate([]Order{order}, snap.Dishes, snap.Tables, snap.Stats)[0]
	b.overlayLocked(&view)
	return view, true
}

// overlayLocked applies optimistic patches and the loading flag. A patch is
// dropped as soon as the feed reports any change to the order, whether or
// not the new status is the patched one.
func (b *Board) overlayLocked(view *ViewOrder) {
	_, loading := b.loading[view.ID]
	view.Loading = loading

	p, ok := b.patches[view.ID]
	if !ok {
		return
	}
	if p.superseded(Order{Status: view.Status, UpdatedAt: view.UpdatedAt}) {
		delete(b.patches, view.ID)
		return
	}
	view.Status = p.status
	view.Action = p.status.ActionLabel()
	view.Unconfirmed = p.unconfirmed
}

// InFlight counts orders with a transition in flight and orders whose
// optimistic status timed out unconfirmed.
func (b *Board) InFlight() (loading, unconfirmed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.patches {
		if p.unconfirmed {
			unconfirmed++
		}
	}
	return len(b.loading), unconfirmed
}

// pruneLocked drops patches for orders that left the feed.
func (b *Board) pruneLocked(snap Snapshot) {
	for id := range b.patches {
		if _, ok := snap.Order(id); !ok {
			delete(b.patches, id)
		}
	}
}

func (b *Board) requestRefresh() {
	if r, ok := b.feed.(refreshRequester); ok {
		r.RequestRefresh()
	}
}
