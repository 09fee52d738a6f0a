package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/logger"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/models"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGameID = "2024-04-12-CHC-LAD-1"

var testGame = models.GameRef{ID: testGameID, PK: 745123}

type response struct {
	snapshot *models.GameSnapshot
	err      error
}

// scriptedFetcher replays responses in order and repeats the last one.
// When gate is set every call blocks until a value is received from it.
type scriptedFetcher struct {
	mu        sync.Mutex
	responses []response
	cursors   []string
	gate      chan struct{}
}

func (f *scriptedFetcher) FetchGameSnapshot(ctx context.Context, game models.GameRef, cursor string) (*models.GameSnapshot, error) {
	f.mu.Lock()
	n := len(f.cursors)
	f.cursors = append(f.cursors, cursor)
	var r response
	if len(f.responses) > 0 {
		if n >= len(f.responses) {
			n = len(f.responses) - 1
		}
		r = f.responses[n]
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return r.snapshot, r.err
}

func (f *scriptedFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cursors)
}

func (f *scriptedFetcher) sentCursors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cursors...)
}

type recorder struct {
	mu      sync.Mutex
	updates []*models.GameSnapshot
	errors  []string
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnUpdate: func(s *models.GameSnapshot) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.updates = append(r.updates, s)
		},
		OnError: func(msg string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errors = append(r.errors, msg)
		},
	}
}

func (r *recorder) updateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func (r *recorder) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

func ok(cursor string, hasChanges bool) response {
	return response{snapshot: &models.GameSnapshot{
		GameID:     testGameID,
		Success:    true,
		HasChanges: hasChanges,
		Timestamp:  cursor,
	}}
}

// fakeClock is the part of clockwork's fake clock the tests drive
type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
	BlockUntil(n int)
}

// testClock records the delay of every timer the scheduler arms
type testClock struct {
	fakeClock
	mu      sync.Mutex
	created []time.Duration
}

func newTestClock() *testClock {
	return &testClock{fakeClock: clockwork.NewFakeClockAt(time.Date(2024, 4, 12, 19, 0, 0, 0, time.UTC))}
}

func (c *testClock) AfterFunc(d time.Duration, f func()) clockwork.Timer {
	c.mu.Lock()
	c.created = append(c.created, d)
	c.mu.Unlock()
	return c.fakeClock.AfterFunc(d, f)
}

func (c *testClock) durations() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.created...)
}

// waitTimers waits until exactly n timers are armed
func waitTimers(t *testing.T, c *testClock, n int) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		c.BlockUntil(n)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %d armed timers", n)
	}
}

func newTestScheduler(f *scriptedFetcher, rec *recorder) (*Scheduler, *testClock) {
	c := newTestClock()
	cfg := DefaultConfig()
	cfg.Clock = c
	return NewScheduler(f, nil, cfg, rec.callbacks(), logger.Discard()), c
}

func waitIdle(t *testing.T, s *Scheduler, f *scriptedFetcher, calls int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.calls() == calls && !s.State().IsFetching
	}, time.Second, time.Millisecond)
}

func TestScheduler_EndToEnd(t *testing.T) {
	f := &scriptedFetcher{responses: []response{
		ok("T1", true),
		ok("T1", false),
		ok("T2", true),
	}}
	rec := &recorder{}
	s, mc := newTestScheduler(f, rec)

	require.NoError(t, s.Start(testGame, 30*time.Second))
	waitIdle(t, s, f, 1)

	state := s.State()
	assert.Equal(t, 1, rec.updateCount())
	assert.Equal(t, "T1", state.LastAppliedCursor)
	assert.Equal(t, int64(1), state.ChangeCount)
	assert.True(t, state.IsLive)

	mc.Advance(30 * time.Second)
	waitIdle(t, s, f, 2)

	state = s.State()
	assert.Equal(t, 1, rec.updateCount())
	assert.Equal(t, "T1", state.LastAppliedCursor)
	assert.Equal(t, int64(1), state.ChangeCount)

	mc.Advance(30 * time.Second)
	waitIdle(t, s, f, 3)

	state = s.State()
	require.Equal(t, 2, rec.updateCount())
	assert.Equal(t, "T2", rec.updates[1].Timestamp)
	assert.Equal(t, "T2", state.LastAppliedCursor)
	assert.Equal(t, int64(2), state.ChangeCount)
	assert.Same(t, rec.updates[1], state.CurrentSnapshot)

	// first fetch of the session sends no cursor
	assert.Equal(t, []string{"", "T1", "T1"}, f.sentCursors())
}

func TestScheduler_StartIsIdempotent(t *testing.T) {
	f := &scriptedFetcher{responses: []response{ok("T1", true)}}
	rec := &recorder{}
	s, mc := newTestScheduler(f, rec)

	require.NoError(t, s.Start(testGame, 30*time.Second))
	gen := s.State().Generation
	require.NoError(t, s.Start(testGame, 30*time.Second))
	waitIdle(t, s, f, 1)

	assert.Equal(t, gen, s.State().Generation)
	waitTimers(t, mc, 1)
	assert.Len(t, mc.durations(), 1, "exactly one interval timer")
}

func TestScheduler_RetryBackoffThenGiveUp(t *testing.T) {
	f := &scriptedFetcher{responses: []response{{err: errors.New("connection refused")}}}
	rec := &recorder{}
	s, mc := newTestScheduler(f, rec)

	require.NoError(t, s.Start(testGame, time.Minute))

	waitRetry := func(attempt int) {
		t.Helper()
		require.Eventually(t, func() bool {
			st := s.State()
			return st.RetryPending && st.RetryAttempt == attempt && !st.IsFetching
		}, time.Second, time.Millisecond)
	}

	waitRetry(1)
	mc.Advance(2 * time.Second)
	waitRetry(2)
	mc.Advance(4 * time.Second)
	waitRetry(3)
	mc.Advance(8 * time.Second)

	require.Eventually(t, func() bool { return rec.errorCount() == 1 }, time.Second, time.Millisecond)
	waitIdle(t, s, f, 4)

	assert.Equal(t, []time.Duration{time.Minute, 2 * time.Second, 4 * time.Second, 8 * time.Second}, mc.durations())
	state := s.State()
	assert.False(t, state.RetryPending)
	assert.True(t, state.IsLive, "session survives an exhausted retry budget")
	assert.Contains(t, state.LastError, "connection refused")
	assert.Equal(t, 0, rec.updateCount())

	// next regular tick starts a fresh chain
	mc.Advance(time.Minute - 14*time.Second)
	waitRetry(1)
	assert.Equal(t, 1, rec.errorCount())
	assert.Equal(t, 5, f.calls())
	durations := mc.durations()
	assert.Equal(t, []time.Duration{time.Minute, 2 * time.Second}, durations[len(durations)-2:])
}

func TestScheduler_SuccessResetsRetry(t *testing.T) {
	f := &scriptedFetcher{responses: []response{
		{err: errors.New("503")},
		ok("T1", true),
		{err: errors.New("503")},
	}}
	rec := &recorder{}
	s, mc := newTestScheduler(f, rec)

	require.NoError(t, s.Start(testGame, time.Minute))
	require.Eventually(t, func() bool { return s.State().RetryPending }, time.Second, time.Millisecond)

	mc.Advance(2 * time.Second)
	waitIdle(t, s, f, 2)
	assert.Equal(t, 0, s.State().RetryAttempt)
	assert.Empty(t, s.State().LastError)

	// land exactly on the tick so the new retry timer stays pending
	mc.Advance(58 * time.Second)
	waitIdle(t, s, f, 3)
	assert.Equal(t, 1, s.State().RetryAttempt)
	durations := mc.durations()
	assert.Equal(t, 2*time.Second, durations[len(durations)-1])
}

func TestScheduler_CursorNeverMovesBackwards(t *testing.T) {
	f := &scriptedFetcher{responses: []response{
		ok("T2", true),
		ok("T1", true),
		ok("T2", true),
		ok("T3", true),
	}}
	rec := &recorder{}
	s, mc := newTestScheduler(f, rec)

	require.NoError(t, s.Start(testGame, 10*time.Second))
	waitIdle(t, s, f, 1)

	want := []struct {
		cursor string
		count  int64
	}{
		{"T2", 1},
		{"T2", 1},
		{"T3", 2},
	}
	for i, w := range want {
		mc.Advance(10 * time.Second)
		waitIdle(t, s, f, i+2)
		assert.Equal(t, w.cursor, s.State().LastAppliedCursor, "poll %d", i+2)
		assert.Equal(t, w.count, s.State().ChangeCount, "poll %d", i+2)
	}
	assert.Equal(t, 2, rec.updateCount())
}

func TestScheduler_StopDiscardsInFlightResult(t *testing.T) {
	f := &scriptedFetcher{
		responses: []response{ok("T1", true)},
		gate:      make(chan struct{}),
	}
	rec := &recorder{}
	s, mc := newTestScheduler(f, rec)

	require.NoError(t, s.Start(testGame, 30*time.Second))
	require.Eventually(t, func() bool { return f.calls() == 1 }, time.Second, time.Millisecond)
	assert.True(t, s.State().IsFetching)

	s.Stop()
	s.Stop()
	close(f.gate)

	require.Eventually(t, func() bool { return s.StaleDiscards() == 1 }, time.Second, time.Millisecond)

	state := s.State()
	assert.False(t, state.IsLive)
	assert.False(t, state.IsFetching)
	assert.Nil(t, state.CurrentSnapshot)
	assert.Equal(t, int64(0), state.ChangeCount)
	assert.Equal(t, 0, rec.updateCount())
	waitTimers(t, mc, 0)

	// no polling after stop
	mc.Advance(time.Hour)
	assert.Equal(t, 1, f.calls())
}

func TestScheduler_StopWhenStopped(t *testing.T) {
	s, _ := newTestScheduler(&scriptedFetcher{}, &recorder{})
	assert.NotPanics(t, func() {
		s.Stop()
		s.Stop()
	})
	assert.False(t, s.State().IsLive)
}

func TestScheduler_InvalidGameID(t *testing.T) {
	f := &scriptedFetcher{responses: []response{ok("T1", true)}}
	rec := &recorder{}
	s, mc := newTestScheduler(f, rec)

	err := s.Start(models.GameRef{ID: "not-a-game"}, 30*time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidGameID)

	assert.Equal(t, 1, rec.errorCount())
	assert.False(t, s.State().IsLive)
	waitTimers(t, mc, 0)
	assert.Equal(t, 0, f.calls())
}

func TestScheduler_RefreshNowKeepsPhase(t *testing.T) {
	f := &scriptedFetcher{responses: []response{ok("T1", true)}}
	s, mc := newTestScheduler(f, &recorder{})

	require.NoError(t, s.Start(testGame, 30*time.Second))
	waitIdle(t, s, f, 1)

	mc.Advance(10 * time.Second)
	s.RefreshNow()
	waitIdle(t, s, f, 2)

	mc.Advance(19 * time.Second)
	assert.Equal(t, 2, f.calls())

	mc.Advance(time.Second)
	waitIdle(t, s, f, 3)
}

func TestScheduler_RefreshNowWhenStopped(t *testing.T) {
	f := &scriptedFetcher{responses: []response{ok("T1", true)}}
	s, _ := newTestScheduler(f, &recorder{})

	s.RefreshNow()
	assert.Equal(t, 0, f.calls())
}

func TestScheduler_SkipsTickWhileFetching(t *testing.T) {
	f := &scriptedFetcher{
		responses: []response{ok("T1", true)},
		gate:      make(chan struct{}),
	}
	s, mc := newTestScheduler(f, &recorder{})

	require.NoError(t, s.Start(testGame, 30*time.Second))
	require.Eventually(t, func() bool { return f.calls() == 1 }, time.Second, time.Millisecond)

	mc.Advance(30 * time.Second)
	// the tick has run once the interval timer is re-armed
	waitTimers(t, mc, 1)
	s.RefreshNow()
	assert.Equal(t, 1, f.calls(), "no overlapping fetches")

	f.gate <- struct{}{}
	waitIdle(t, s, f, 1)
	assert.Equal(t, int64(1), s.State().ChangeCount)

	close(f.gate)
	mc.Advance(30 * time.Second)
	waitIdle(t, s, f, 2)
}

func TestScheduler_UnsuccessfulResponseIsTransient(t *testing.T) {
	f := &scriptedFetcher{responses: []response{{snapshot: &models.GameSnapshot{Success: false, Error: "upstream 502"}}}}
	s, _ := newTestScheduler(f, &recorder{})

	require.NoError(t, s.Start(testGame, time.Minute))
	require.Eventually(t, func() bool { return s.State().RetryPending }, time.Second, time.Millisecond)
	assert.Contains(t, s.State().LastError, "upstream 502")
}

func TestScheduler_FetchTimeoutIsTransient(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Clock = clockwork.NewFakeClock()
	cfg.FetchTimeout = 5 * time.Millisecond

	blocking := fetcherFunc(func(ctx context.Context, _ models.GameRef, _ string) (*models.GameSnapshot, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s := NewScheduler(blocking, nil, cfg, Callbacks{}, logger.Discard())

	require.NoError(t, s.Start(testGame, time.Minute))
	require.Eventually(t, func() bool { return s.State().RetryPending }, time.Second, time.Millisecond)
	assert.Contains(t, s.State().LastError, context.DeadlineExceeded.Error())
	s.Stop()
}

func TestScheduler_SwitchingGamesStartsNewSession(t *testing.T) {
	f := &scriptedFetcher{responses: []response{ok("T1", true)}}
	s, mc := newTestScheduler(f, &recorder{})

	require.NoError(t, s.Start(testGame, 30*time.Second))
	waitIdle(t, s, f, 1)
	gen := s.State().Generation

	other := models.GameRef{ID: "2024-04-12-NYY-BOS-1"}
	require.NoError(t, s.Start(other, 30*time.Second))
	waitIdle(t, s, f, 2)

	state := s.State()
	assert.Equal(t, other.ID, state.GameID)
	assert.Equal(t, gen+2, state.Generation, "stop and start each bump the generation")
	waitTimers(t, mc, 1)
	assert.Equal(t, []string{"", ""}, f.sentCursors())
}

func TestScheduler_CallbackMayStop(t *testing.T) {
	f := &scriptedFetcher{responses: []response{ok("T1", true)}}
	cfg := DefaultConfig()
	cfg.Clock = clockwork.NewFakeClock()

	var s *Scheduler
	s = NewScheduler(f, nil, cfg, Callbacks{
		OnUpdate: func(*models.GameSnapshot) { s.Stop() },
	}, logger.Discard())

	require.NoError(t, s.Start(testGame, 30*time.Second))
	require.Eventually(t, func() bool { return !s.State().IsLive }, time.Second, time.Millisecond)
	assert.Equal(t, int64(1), s.State().ChangeCount)
}

func TestScheduler_UpdatesDeliveredInOrder(t *testing.T) {
	f := &scriptedFetcher{responses: []response{ok("T1", true), ok("T2", true)}}
	release := make(chan struct{})

	var mu sync.Mutex
	var delivered []string
	cfg := DefaultConfig()
	cfg.Clock = newTestClock()
	s := NewScheduler(f, nil, cfg, Callbacks{
		OnUpdate: func(snap *models.GameSnapshot) {
			if snap.Timestamp == "T1" {
				<-release
			}
			mu.Lock()
			delivered = append(delivered, snap.Timestamp)
			mu.Unlock()
		},
	}, logger.Discard())

	require.NoError(t, s.Start(testGame, 30*time.Second))
	waitIdle(t, s, f, 1)

	// T2 is applied while the T1 callback is still running
	s.RefreshNow()
	waitIdle(t, s, f, 2)
	assert.Equal(t, int64(2), s.State().ChangeCount)
	assert.Equal(t, "T2", s.State().LastAppliedCursor)

	close(release)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"T1", "T2"}, delivered)
}

func TestScheduler_RestartDropsPendingRetry(t *testing.T) {
	f := &scriptedFetcher{responses: []response{
		{err: errors.New("connection reset")},
		ok("T1", true),
	}}
	rec := &recorder{}
	s, mc := newTestScheduler(f, rec)

	require.NoError(t, s.Start(testGame, 30*time.Second))
	require.Eventually(t, func() bool {
		st := s.State()
		return st.RetryPending && !st.IsFetching
	}, time.Second, time.Millisecond)
	waitTimers(t, mc, 2)

	s.Stop()
	waitTimers(t, mc, 0)

	require.NoError(t, s.Start(testGame, 30*time.Second))
	waitIdle(t, s, f, 2)

	// past the old session's 2s retry delay
	mc.Advance(5 * time.Second)
	assert.Never(t, func() bool { return f.calls() > 2 }, 50*time.Millisecond, time.Millisecond)

	state := s.State()
	assert.False(t, state.RetryPending)
	assert.Equal(t, 0, state.RetryAttempt)
	assert.Equal(t, "T1", state.LastAppliedCursor)
	assert.Equal(t, int64(1), state.ChangeCount)
	assert.Equal(t, int64(0), s.StaleDiscards())
	assert.Equal(t, 1, rec.updateCount())
	assert.Equal(t, []string{"", ""}, f.sentCursors())
	waitTimers(t, mc, 1)
}

func TestScheduler_MissingCursorIsTransient(t *testing.T) {
	f := &scriptedFetcher{responses: []response{ok("", true), ok("T1", true)}}
	rec := &recorder{}
	s, mc := newTestScheduler(f, rec)

	require.NoError(t, s.Start(testGame, time.Minute))
	require.Eventually(t, func() bool {
		st := s.State()
		return st.RetryPending && !st.IsFetching
	}, time.Second, time.Millisecond)

	state := s.State()
	assert.Equal(t, ErrMissingCursor.Error(), state.LastError)
	assert.Equal(t, int64(0), state.ChangeCount)
	assert.Nil(t, state.CurrentSnapshot)
	assert.Equal(t, 0, rec.updateCount())

	mc.Advance(2 * time.Second)
	waitIdle(t, s, f, 2)
	assert.Equal(t, int64(1), s.State().ChangeCount)
	assert.Equal(t, "T1", s.State().LastAppliedCursor)
}

type fetcherFunc func(ctx context.Context, game models.GameRef, cursor string) (*models.GameSnapshot, error)

func (f fetcherFunc) FetchGameSnapshot(ctx context.Context, game models.GameRef, cursor string) (*models.GameSnapshot, error) {
	return f(ctx, game, cursor)
}
