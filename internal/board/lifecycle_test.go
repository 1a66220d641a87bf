package board

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/orderboard/pkg/errorbank"
)

var staff = Credential{Token: "token-1", Subject: "waiter-7"}

func closeBoard(t *testing.T, b *Board) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, b.Close(ctx))
}

func TestAdvancePatchesOptimistically(t *testing.T) {
	api := &fakeAPI{}
	feed := &fakeFeed{snap: sampleSnapshot()}
	b := newTestBoard(api, feed, 10*time.Millisecond, time.Second)
	defer closeBoard(t, b)

	view, err := b.Advance(context.Background(), staff, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusPreparing, view.Status)
	assert.Equal(t, "Mark Served", view.Action)
	assert.True(t, view.Loading)

	calls := api.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "preparing", calls[0].method)
	assert.Equal(t, "token-1", calls[0].token)

	// The feed has not caught up, the board still shows the patch.
	current, err := b.Order(1)
	require.NoError(t, err)
	assert.Equal(t, StatusPreparing, current.Status)
	assert.Equal(t, StatusPending, feed.Snapshot().Orders[0].Status)
	assert.Equal(t, 1, feed.requests)
}

func TestAdvanceUsesTransitionForCurrentStatus(t *testing.T) {
	api := &fakeAPI{}
	feed := &fakeFeed{snap: sampleSnapshot()}
	b := newTestBoard(api, feed, 10*time.Millisecond, time.Second)
	defer closeBoard(t, b)

	view, err := b.Advance(context.Background(), staff, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusServed, view.Status)
	require.Len(t, api.Calls(), 1)
	assert.Equal(t, "served", api.Calls()[0].method)
}

func TestAdvanceConfirmedByFeed(t *testing.T) {
	feed := &fakeFeed{snap: sampleSnapshot()}
	api := &fakeAPI{}
	api.onCall = func(_ string, orderID int64) {
		go func() {
			time.Sleep(30 * time.Millisecond)
			feed.setStatus(orderID, StatusPreparing)
		}()
	}
	b := newTestBoard(api, feed, 10*time.Millisecond, 2*time.Second)
	defer closeBoard(t, b)

	_, err := b.Advance(context.Background(), staff, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, err := b.Order(1)
		return err == nil && !v.Loading
	}, time.Second, 5*time.Millisecond)

	v, err := b.Order(1)
	require.NoError(t, err)
	assert.Equal(t, StatusPreparing, v.Status)
	assert.False(t, v.Unconfirmed)

	b.mu.Lock()
	_, patched := b.patches[1]
	b.mu.Unlock()
	assert.False(t, patched, "confirmed patch should be dropped")
}

func TestAdvanceRemoteFailureLeavesOrderUntouched(t *testing.T) {
	api := &fakeAPI{err: errors.New("connection refused")}
	feed := &fakeFeed{snap: sampleSnapshot()}
	b := newTestBoard(api, feed, 10*time.Millisecond, time.Second)
	defer closeBoard(t, b)

	_, err := b.Advance(context.Background(), staff, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteCall)
	assert.Equal(t, errorbank.KindUnavailable, errorbank.KindOf(err))

	v, err := b.Order(1)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, v.Status)
	assert.False(t, v.Loading)

	b.mu.Lock()
	assert.Empty(t, b.patches)
	assert.Empty(t, b.loading)
	b.mu.Unlock()

	// Staff may retry by hand.
	api.mu.Lock()
	api.err = nil
	api.mu.Unlock()
	_, err = b.Advance(context.Background(), staff, 1)
	require.NoError(t, err)
}

func TestAdvanceKeepsRemoteErrorKind(t *testing.T) {
	api := &fakeAPI{err: errorbank.Conflict("order status changed")}
	b := newTestBoard(api, &fakeFeed{snap: sampleSnapshot()}, 10*time.Millisecond, time.Second)
	defer closeBoard(t, b)

	_, err := b.Advance(context.Background(), staff, 1)
	assert.Equal(t, errorbank.KindConflict, errorbank.KindOf(err))
	assert.ErrorIs(t, err, ErrRemoteCall)
}

func TestAdvanceReconcileTimeoutKeepsOptimisticStatus(t *testing.T) {
	api := &fakeAPI{}
	feed := &fakeFeed{snap: sampleSnapshot()}
	b := newTestBoard(api, feed, 10*time.Millisecond, 60*time.Millisecond)
	defer closeBoard(t, b)

	_, err := b.Advance(context.Background(), staff, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, err := b.Order(1)
		return err == nil && !v.Loading
	}, time.Second, 5*time.Millisecond)

	v, err := b.Order(1)
	require.NoError(t, err)
	assert.Equal(t, StatusPreparing, v.Status)
	assert.True(t, v.Unconfirmed)
	assert.Equal(t, StatusPending, feed.Snapshot().Orders[0].Status)

	// A late confirmation clears the flag.
	feed.setStatus(1, StatusPreparing)
	v, err = b.Order(1)
	require.NoError(t, err)
	assert.False(t, v.Unconfirmed)
	assert.Equal(t, StatusPreparing, v.Status)
}

func waitReconciled(t *testing.T, b *Board, id int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		v, err := b.Order(id)
		return err == nil && !v.Loading
	}, time.Second, 5*time.Millisecond)
}

func TestUnconfirmedPatchYieldsToLaterFeedStatus(t *testing.T) {
	api := &fakeAPI{}
	feed := &fakeFeed{snap: sampleSnapshot()}
	b := newTestBoard(api, feed, 10*time.Millisecond, 60*time.Millisecond)
	defer closeBoard(t, b)

	_, err := b.Advance(context.Background(), staff, 1)
	require.NoError(t, err)
	waitReconciled(t, b, 1)

	// Another terminal moved the order on after the timeout.
	feed.setStatus(1, StatusServed)
	v, err := b.Order(1)
	require.NoError(t, err)
	assert.Equal(t, StatusServed, v.Status)
	assert.False(t, v.Unconfirmed)

	// The feed stays authoritative once the patch is gone.
	feed.setStatus(1, StatusPending)
	v, err = b.Order(1)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, v.Status)

	_, err = b.Advance(context.Background(), staff, 1)
	require.NoError(t, err)
	calls := api.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "preparing", calls[1].method)
}

func TestUnconfirmedPatchYieldsToNewerRevision(t *testing.T) {
	feed := &fakeFeed{snap: sampleSnapshot()}
	b := newTestBoard(&fakeAPI{}, feed, 10*time.Millisecond, 60*time.Millisecond)
	defer closeBoard(t, b)

	_, err := b.Advance(context.Background(), staff, 1)
	require.NoError(t, err)
	waitReconciled(t, b, 1)

	v, err := b.Order(1)
	require.NoError(t, err)
	require.True(t, v.Unconfirmed)
	loading, unconfirmed := b.InFlight()
	assert.Zero(t, loading)
	assert.Equal(t, 1, unconfirmed)

	// Same status, newer revision: the server kept the order pending.
	feed.touch(1, baseTime.Add(time.Hour))
	v, err = b.Order(1)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, v.Status)
	assert.False(t, v.Unconfirmed)
	_, unconfirmed = b.InFlight()
	assert.Zero(t, unconfirmed)
}

func TestRetryFromUnconfirmedStartsFromFeedStatus(t *testing.T) {
	api := &fakeAPI{}
	feed := &fakeFeed{snap: sampleSnapshot()}
	b := newTestBoard(api, feed, 10*time.Millisecond, 60*time.Millisecond)
	defer closeBoard(t, b)

	_, err := b.Advance(context.Background(), staff, 1)
	require.NoError(t, err)
	waitReconciled(t, b, 1)

	view, err := b.Advance(context.Background(), staff, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusPreparing, view.Status)
	assert.False(t, view.Unconfirmed)

	calls := api.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "preparing", calls[1].method)
}

func TestPatchDroppedWhenOrderLeavesFeed(t *testing.T) {
	feed := &fakeFeed{snap: sampleSnapshot()}
	b := newTestBoard(&fakeAPI{}, feed, 10*time.Millisecond, 60*time.Millisecond)
	defer closeBoard(t, b)

	_, err := b.Advance(context.Background(), staff, 1)
	require.NoError(t, err)
	feed.drop(1)
	waitGone := func() bool {
		b.Orders()
		b.mu.Lock()
		defer b.mu.Unlock()
		_, patched := b.patches[1]
		_, loading := b.loading[1]
		return !patched && !loading
	}
	require.Eventually(t, waitGone, time.Second, 5*time.Millisecond)
}

func TestAdvanceRejectsSecondTransitionForSameOrder(t *testing.T) {
	api := &fakeAPI{}
	feed := &fakeFeed{snap: sampleSnapshot()}
	b := newTestBoard(api, feed, 10*time.Millisecond, time.Second)
	defer closeBoard(t, b)

	_, err := b.Advance(context.Background(), staff, 1)
	require.NoError(t, err)

	_, err = b.Advance(context.Background(), staff, 1)
	assert.ErrorIs(t, err, ErrTransitionInFlight)
	assert.Equal(t, errorbank.KindConflict, errorbank.KindOf(err))

	// Other orders stay actionable.
	_, err = b.Advance(context.Background(), staff, 2)
	assert.NoError(t, err)
	assert.Len(t, api.Calls(), 2)
}

func TestAdvanceMissingCredentialMakesNoCall(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBoard(api, &fakeFeed{snap: sampleSnapshot()}, 10*time.Millisecond, time.Second)
	defer closeBoard(t, b)

	_, err := b.Advance(context.Background(), Credential{}, 1)
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Equal(t, errorbank.KindUnauthorized, errorbank.KindOf(err))
	assert.Empty(t, api.Calls())
}

func TestAdvanceReadyIsNotActionable(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBoard(api, &fakeFeed{snap: sampleSnapshot()}, 10*time.Millisecond, time.Second)
	defer closeBoard(t, b)

	_, err := b.Advance(context.Background(), staff, 3)
	assert.ErrorIs(t, err, ErrNotActionable)
	assert.Empty(t, api.Calls())
}

func TestAdvanceUnknownOrder(t *testing.T) {
	b := newTestBoard(&fakeAPI{}, &fakeFeed{snap: sampleSnapshot()}, 10*time.Millisecond, time.Second)
	defer closeBoard(t, b)

	_, err := b.Advance(context.Background(), staff, 42)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Equal(t, errorbank.KindNotFound, errorbank.KindOf(err))
}

func TestCloseCancelsReconciliation(t *testing.T) {
	b := newTestBoard(&fakeAPI{}, &fakeFeed{snap: sampleSnapshot()}, 10*time.Millisecond, time.Hour)

	_, err := b.Advance(context.Background(), staff, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, b.Close(ctx))

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Empty(t, b.loading)
}

func TestTabsReflectOptimisticPatch(t *testing.T) {
	b := newTestBoard(&fakeAPI{}, &fakeFeed{snap: sampleSnapshot()}, 10*time.Millisecond, time.Second)
	defer closeBoard(t, b)

	tabs, err := b.Tabs("")
	require.NoError(t, err)
	assert.Equal(t, 1, tabs.Counts()[StatusPreparing])

	_, err = b.Advance(context.Background(), staff, 1)
	require.NoError(t, err)

	tabs, err = b.Tabs(StatusPreparing)
	require.NoError(t, err)
	assert.Equal(t, 2, tabs.Counts()[StatusPreparing])
	assert.Equal(t, 0, tabs.Counts()[StatusPending])

	_, err = b.Tabs("archived")
	assert.Equal(t, errorbank.KindBadRequest, errorbank.KindOf(err))
}
