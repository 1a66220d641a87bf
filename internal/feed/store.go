package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderboard/internal/board"
)

var (
	feedTracer = otel.Tracer("github.com/Additional-Code/orderboard/feed")
	feedMeter  = otel.Meter("github.com/Additional-Code/orderboard/feed")
)

// Source reads the four upstream feeds.
type Source interface {
	ListOrders(ctx context.Context, cred board.Credential) ([]board.Order, error)
	ListDishes(ctx context.Context, cred board.Credential) ([]board.Dish, error)
	ListTables(ctx context.Context, cred board.Credential) ([]board.Table, error)
	FetchTableStats(ctx context.Context, cred board.Credential) ([]board.TableStats, error)
}

// Store keeps the latest snapshot of the upstream feeds. Readers always
// see a complete snapshot; a failed refresh keeps the previous one.
type Store struct {
	source Source
	cred   board.Credential
	logger *zap.Logger

	mu          sync.RWMutex
	snap        board.Snapshot
	refreshedAt time.Time
	lastErr     error
	listeners   []func(error)

	refreshMu sync.Mutex
	wake      chan struct{}
	refreshes metric.Int64Counter
}

// NewStore constructs an empty Store reading from source with the service
// credential.
func NewStore(source Source, cred board.Credential, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	counter, _ := feedMeter.Int64Counter("feed.refreshes",
		metric.WithDescription("Upstream feed refreshes, by outcome."))
	return &Store{
		source:    source,
		cred:      cred,
		logger:    logger,
		wake:      make(chan struct{}, 1),
		refreshes: counter,
	}
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() board.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// RefreshedAt is the time of the last successful refresh.
func (s *Store) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}

// LastError is the error of the latest refresh, nil when it succeeded.
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// OnRefresh registers fn to run after every refresh with its outcome.
func (s *Store) OnRefresh(fn func(error)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// RequestRefresh schedules a refresh ahead of the interval. Requests
// arriving while one is pending are coalesced.
func (s *Store) RequestRefresh() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Refresh reads all four feeds and swaps the snapshot.
func (s *Store) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	ctx, span := feedTracer.Start(ctx, "Feed.Refresh")
	defer span.End()

	snap, err := s.load(ctx)

	s.mu.Lock()
	s.lastErr = err
	if err == nil {
		s.snap = snap
		s.refreshedAt = time.Now()
	}
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	outcome := "ok"
	if err != nil {
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
	} else {
		span.SetAttributes(attribute.Int("feed.orders", len(snap.Orders)))
	}
	if s.refreshes != nil {
		s.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	for _, fn := range listeners {
		fn(err)
	}
	return err
}

func (s *Store) load(ctx context.Context) (board.Snapshot, error) {
	var snap board.Snapshot
	var err error

	if snap.Orders, err = s.source.ListOrders(ctx, s.cred); err != nil {
		return board.Snapshot{}, fmt.Errorf("list orders: %w", err)
	}
	if snap.Dishes, err = s.source.ListDishes(ctx, s.cred); err != nil {
		return board.Snapshot{}, fmt.Errorf("list dishes: %w", err)
	}
	if snap.Tables, err = s.source.ListTables(ctx, s.cred); err != nil {
		return board.Snapshot{}, fmt.Errorf("list tables: %w", err)
	}
	if snap.Stats, err = s.source.FetchTableStats(ctx, s.cred); err != nil {
		return board.Snapshot{}, fmt.Errorf("fetch table stats: %w", err)
	}
	return snap, nil
}

// Run refreshes every interval and whenever a refresh is requested, until
// ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.refreshLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.wake:
		}
		s.refreshLogged(ctx)
	}
}

func (s *Store) refreshLogged(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("feed refresh failed", zap.Error(err))
	}
}
