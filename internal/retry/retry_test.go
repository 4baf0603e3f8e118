package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fakeClock advances only when a timer is started.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTimer() backoff.Timer {
	return &fakeTimer{clock: c, ch: make(chan time.Time, 1)}
}

type fakeTimer struct {
	clock *fakeClock
	ch    chan time.Time
}

func (t *fakeTimer) Start(d time.Duration) {
	t.clock.mu.Lock()
	t.clock.now = t.clock.now.Add(d)
	t.clock.sleeps = append(t.clock.sleeps, d)
	now := t.clock.now
	t.clock.mu.Unlock()
	t.ch <- now
}

func (t *fakeTimer) Stop()               {}
func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func noJitter(p Policy) Policy {
	p.Jitter = false
	return p
}

func TestDo_RetriesRetryableCodes(t *testing.T) {
	clock := newFakeClock()
	p := noJitter(exponential("test", time.Minute, codes.Unavailable))

	var retries []int
	calls := 0
	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		if calls < 4 {
			return status.Error(codes.Unavailable, "try again")
		}
		return nil
	}, WithClock(clock), OnRetry(func(attempt int, err error, delay time.Duration) {
		retries = append(retries, attempt)
	}))

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []int{1, 2, 3}, retries)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 130 * time.Millisecond, 169 * time.Millisecond}, clock.sleeps)
}

func TestDo_NonRetryableReturnsImmediately(t *testing.T) {
	clock := newFakeClock()
	p := noJitter(exponential("test", time.Minute, codes.Unavailable))

	calls := 0
	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		return status.Error(codes.NotFound, "gone")
	}, WithClock(clock))

	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.sleeps)
}

func TestDo_StopsAtTotalTimeout(t *testing.T) {
	clock := newFakeClock()
	p := noJitter(exponential("test", time.Second, codes.Unavailable))
	p.InitialRetryDelay = 300 * time.Millisecond
	p.RetryDelayMultiplier = 1

	calls := 0
	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		return status.Errorf(codes.Unavailable, "attempt %d", calls)
	}, WithClock(clock))

	require.Error(t, err)
	assert.Equal(t, "attempt 4", status.Convert(err).Message())
	assert.Equal(t, 4, calls)
	assert.Len(t, clock.sleeps, 3)
}

func TestDo_DelayCappedAtMax(t *testing.T) {
	clock := newFakeClock()
	p := noJitter(exponential("test", time.Hour, codes.Unavailable))
	p.InitialRetryDelay = time.Second
	p.RetryDelayMultiplier = 10
	p.MaxRetryDelay = 5 * time.Second

	calls := 0
	_ = Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		if calls == 4 {
			return nil
		}
		return status.Error(codes.Unavailable, "x")
	}, WithClock(clock))

	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 5 * time.Second}, clock.sleeps)
}

func TestDo_JitterStaysBelowDelay(t *testing.T) {
	clock := newFakeClock()
	p := exponential("test", time.Hour, codes.Unavailable)

	calls := 0
	_ = Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		if calls == 10 {
			return nil
		}
		return status.Error(codes.Unavailable, "x")
	}, WithClock(clock))

	want := 100 * time.Millisecond
	for _, d := range clock.sleeps {
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, want)
		want = time.Duration(float64(want) * 1.3)
	}
}

func TestDo_AttemptDeadline(t *testing.T) {
	p := noRetry("t", 50*time.Millisecond)
	err := Do(context.Background(), p, func(ctx context.Context) error {
		dl, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), dl, 50*time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	err = Do(context.Background(), noRetry(NoRetry, 0), func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.False(t, ok)
		return errors.New("plain")
	})
	assert.EqualError(t, err, "plain")
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := noJitter(exponential("test", time.Minute, codes.Unavailable))

	calls := 0
	err := Do(ctx, p, func(ctx context.Context) error {
		calls++
		cancel()
		return status.Error(codes.Unavailable, "x")
	}, WithClock(newFakeClock()))

	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Equal(t, 1, calls)
}

func TestPoll(t *testing.T) {
	clock := newFakeClock()
	n := 0
	err := Poll(context.Background(), DefaultPollPolicy(), func(ctx context.Context) (bool, error) {
		n++
		return n == 3, nil
	}, WithClock(clock))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second, 7500 * time.Millisecond}, clock.sleeps)
}

func TestPoll_Timeout(t *testing.T) {
	clock := newFakeClock()
	err := Poll(context.Background(), DefaultPollPolicy(), func(ctx context.Context) (bool, error) {
		return false, nil
	}, WithClock(clock))
	require.Error(t, err)
	assert.Equal(t, codes.DeadlineExceeded, status.Code(err))

	var total time.Duration
	for _, d := range clock.sleeps {
		total += d
		assert.LessOrEqual(t, d, 45*time.Second)
	}
	assert.LessOrEqual(t, total, 5*time.Minute)
}

func TestPoll_Error(t *testing.T) {
	err := Poll(context.Background(), DefaultPollPolicy(), func(ctx context.Context) (bool, error) {
		return false, status.Error(codes.PermissionDenied, "no")
	}, WithClock(newFakeClock()))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestPoll_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Poll(ctx, DefaultPollPolicy(), func(ctx context.Context) (bool, error) {
		return false, nil
	}, WithClock(newFakeClock()))
	assert.Equal(t, codes.Canceled, status.Code(err))
}
