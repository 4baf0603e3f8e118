package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	NewTimer() backoff.Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time          { return time.Now() }
func (systemClock) NewTimer() backoff.Timer { return &realTimer{} }

type realTimer struct{ t *time.Timer }

func (r *realTimer) Start(d time.Duration) {
	if r.t == nil {
		r.t = time.NewTimer(d)
	} else {
		r.t.Reset(d)
	}
}

func (r *realTimer) Stop() {
	if r.t != nil {
		r.t.Stop()
	}
}

func (r *realTimer) C() <-chan time.Time { return r.t.C }

type options struct {
	onRetry func(attempt int, err error, delay time.Duration)
	clock   Clock
	rand    func() float64
}

// Option configures Do and Poll.
type Option func(*options)

// OnRetry is called before each retry sleep with the 1-based number of
// the attempt that failed.
func OnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(o *options) { o.onRetry = fn }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

func buildOptions(opts []Option) options {
	o := options{clock: systemClock{}, rand: rand.Float64}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// jittered draws each delay uniformly from [0, delay).
type jittered struct {
	backoff.BackOff
	rand func() float64
}

func (j jittered) NextBackOff() time.Duration {
	d := j.BackOff.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	return time.Duration(j.rand() * float64(d))
}

// deadlined stops once the next sleep would run past the deadline.
type deadlined struct {
	backoff.BackOff
	clock    Clock
	deadline time.Time
}

func (d deadlined) NextBackOff() time.Duration {
	next := d.BackOff.NextBackOff()
	if next == backoff.Stop || d.deadline.IsZero() {
		return next
	}
	if !d.clock.Now().Add(next).Before(d.deadline) {
		return backoff.Stop
	}
	return next
}

func (p Policy) backOff(o options, deadline time.Time) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialRetryDelay
	eb.Multiplier = p.RetryDelayMultiplier
	if eb.Multiplier < 1 {
		eb.Multiplier = 1
	}
	eb.MaxInterval = p.MaxRetryDelay
	if eb.MaxInterval == 0 {
		eb.MaxInterval = p.InitialRetryDelay
	}
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	eb.Clock = o.clock
	eb.Reset()

	var b backoff.BackOff = eb
	if p.Jitter {
		b = jittered{BackOff: b, rand: o.rand}
	}
	return deadlined{BackOff: b, clock: o.clock, deadline: deadline}
}

// Do runs fn until it succeeds, fails with a code the policy does not
// retry, or the total timeout or ctx ends the call. Each attempt runs
// under the policy's RPC timeout, capped by the time left. The last
// attempt's error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, opts ...Option) error {
	o := buildOptions(opts)

	var deadline time.Time
	if p.TotalTimeout > 0 {
		deadline = o.clock.Now().Add(p.TotalTimeout)
	}

	var (
		lastErr    error
		attempt    int
		rpcTimeout = p.InitialRPCTimeout
	)
	op := func() error {
		attempt++
		actx, cancel := attemptContext(ctx, o.clock, rpcTimeout, deadline)
		defer cancel()
		rpcTimeout = p.nextRPCTimeout(rpcTimeout)

		err := fn(actx)
		lastErr = err
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, d time.Duration) {
		if o.onRetry != nil {
			o.onRetry(attempt, err, d)
		}
	}

	err := backoff.RetryNotifyWithTimer(op, backoff.WithContext(p.backOff(o, deadline), ctx), notify, o.clock.NewTimer())
	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}

func attemptContext(ctx context.Context, clock Clock, rpcTimeout time.Duration, deadline time.Time) (context.Context, context.CancelFunc) {
	timeout := rpcTimeout
	if !deadline.IsZero() {
		left := deadline.Sub(clock.Now())
		if left <= 0 {
			left = time.Millisecond
		}
		if timeout <= 0 || left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

var errNotDone = errors.New("operation not done")

// Poll calls fn on the poll schedule until it reports done or fails.
// Running past the total timeout yields a DEADLINE_EXCEEDED status error.
func Poll(ctx context.Context, p PollPolicy, fn func(ctx context.Context) (bool, error), opts ...Option) error {
	o := buildOptions(opts)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialDelay
	eb.Multiplier = p.Multiplier
	eb.MaxInterval = p.MaxDelay
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = p.TotalTimeout
	eb.Clock = o.clock
	eb.Reset()

	attempt := 0
	op := func() error {
		attempt++
		done, err := fn(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !done {
			return errNotDone
		}
		return nil
	}
	notify := func(_ error, d time.Duration) {
		if o.onRetry != nil {
			o.onRetry(attempt, errNotDone, d)
		}
	}

	err := backoff.RetryNotifyWithTimer(op, backoff.WithContext(eb, ctx), notify, o.clock.NewTimer())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errNotDone):
		return status.Errorf(codes.DeadlineExceeded, "operation did not finish within %s", p.TotalTimeout)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	return err
}
