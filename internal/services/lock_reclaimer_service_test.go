package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smarttransit/booking-core/internal/clock"
	"github.com/smarttransit/booking-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockReclaimer_RunOnce(t *testing.T) {
	inventory, store, clk := setupInventoryTest(t)
	store.addTrip(testTrip("trip-1", models.SeatSelectionRequired), 1, 6)
	ctx := context.Background()

	_, err := inventory.LockSeats(ctx, testCaller, "trip-1", []string{"trip-1-s1", "trip-1-s2"})
	require.NoError(t, err)
	held, err := inventory.LockSeats(ctx, testCaller, "trip-1", []string{"trip-1-s3"})
	require.NoError(t, err)
	// sold through the sale unit
	store.confirmLock(held.LockID, nil)

	reclaimer := NewLockReclaimerService(store, clk, discardLogger(), time.Minute, 100)

	assert.Equal(t, 0, reclaimer.RunOnce(ctx))
	assert.Equal(t, 3, store.available("trip-1"))

	clk.Advance(16 * time.Minute)

	assert.Equal(t, 2, reclaimer.RunOnce(ctx))
	assert.Equal(t, 5, store.available("trip-1"))
	assert.Equal(t, models.TripSeatStatusAvailable, store.seat("trip-1-s1").Status)
	assert.Nil(t, store.seat("trip-1-s1").LockID)
	// confirmed seats are never reclaimed
	assert.Equal(t, models.TripSeatStatusConfirmed, store.seat("trip-1-s3").Status)

	assert.Equal(t, 0, reclaimer.RunOnce(ctx))
}

func TestLockReclaimer_DrainsInBatches(t *testing.T) {
	inventory, store, clk := setupInventoryTest(t)
	store.addTrip(testTrip("trip-1", models.SeatSelectionRequired), 1, 5)
	ctx := context.Background()

	_, err := inventory.LockSeats(ctx, testCaller, "trip-1", []string{"trip-1-s1", "trip-1-s2", "trip-1-s3"})
	require.NoError(t, err)
	clk.Advance(time.Hour)

	reclaimer := NewLockReclaimerService(store, clk, discardLogger(), time.Minute, 1)
	assert.Equal(t, 3, reclaimer.RunOnce(ctx))
	assert.Equal(t, 5, store.available("trip-1"))
}

func TestLockReclaimer_StartRunsImmediately(t *testing.T) {
	inventory, store, clk := setupInventoryTest(t)
	store.addTrip(testTrip("trip-1", models.SeatSelectionRequired), 1, 2)

	_, err := inventory.LockSeats(context.Background(), testCaller, "trip-1", []string{"trip-1-s1"})
	require.NoError(t, err)
	clk.Advance(20 * time.Minute)

	reclaimer := NewLockReclaimerService(store, clk, discardLogger(), time.Hour, 10)
	reclaimer.Start()
	reclaimer.Stop()
	reclaimer.Stop()

	assert.Equal(t, 2, store.available("trip-1"))
}

func TestLockReclaimer_StopWithoutStart(t *testing.T) {
	_, store, clk := setupInventoryTest(t)
	reclaimer := NewLockReclaimerService(store, clk, discardLogger(), time.Minute, 10)

	stopped := make(chan struct{})
	go func() {
		reclaimer.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a reclaimer that was never started")
	}
}

// flakyReclaimStore fails its first failures calls, then delegates
type flakyReclaimStore struct {
	mu       sync.Mutex
	inner    ReclaimStore
	failures int
	calls    int
}

func (f *flakyReclaimStore) ReleaseExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return 0, errors.New("connection reset")
	}
	return f.inner.ReleaseExpired(ctx, now, limit)
}

func (f *flakyReclaimStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestLockReclaimer_TickAfterErrorRetries(t *testing.T) {
	inventory, store, clk := setupInventoryTest(t)
	store.addTrip(testTrip("trip-1", models.SeatSelectionRequired), 1, 4)

	_, err := inventory.LockSeats(context.Background(), testCaller, "trip-1", []string{"trip-1-s1", "trip-1-s2"})
	require.NoError(t, err)
	clk.Advance(20 * time.Minute)

	// the startup sweep and the first tick fail
	flaky := &flakyReclaimStore{inner: store, failures: 2}
	reclaimer := NewLockReclaimerService(flaky, clk, discardLogger(), time.Minute, 10)
	reclaimer.Start()
	defer reclaimer.Stop()

	require.Eventually(t, func() bool { return clk.Tickers() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, flaky.callCount())
	assert.Equal(t, 2, store.available("trip-1"))

	clk.Tick()
	require.Eventually(t, func() bool { return flaky.callCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.TripSeatStatusLocked, store.seat("trip-1-s1").Status)

	clk.Tick()
	require.Eventually(t, func() bool { return store.available("trip-1") == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.TripSeatStatusAvailable, store.seat("trip-1-s2").Status)

	reclaimer.Stop()
	assert.Equal(t, 0, clk.Tickers())
}

type failingReclaimStore struct{ calls int }

func (f *failingReclaimStore) ReleaseExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	f.calls++
	return 0, errors.New("connection reset")
}

func TestLockReclaimer_ErrorsAreSwallowed(t *testing.T) {
	store := &failingReclaimStore{}
	reclaimer := NewLockReclaimerService(store, &clock.Fixed{T: testNow()}, discardLogger(), time.Minute, 10)

	assert.NotPanics(t, func() {
		assert.Equal(t, 0, reclaimer.RunOnce(context.Background()))
	})
	assert.Equal(t, 1, store.calls)
}
