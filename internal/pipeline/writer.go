// Package pipeline moves documents in bulk: a throttled BatchWrite
// writer and a partitioned parallel reader.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/retry"
)

const (
	// MaxBatchSize is the most writes one BatchWrite call may carry.
	MaxBatchSize = 500

	rampBase     = 500
	rampGrowth   = 1.5
	rampInterval = 5 * time.Minute
)

// BatchWriter is the part of the data client the writer needs.
type BatchWriter interface {
	BatchWrite(ctx context.Context, req *model.BatchWriteRequest) (*model.BatchWriteResponse, error)
}

type WriterConfig struct {
	// Database is the full database name, projects/{p}/databases/{d}.
	Database     string
	MaxBatchSize int
	Workers      int
	// MaxAttempts bounds how often one write is sent, first try included.
	MaxAttempts int
	// RetryDelay is the wait before the first re-send round; it grows
	// exponentially for later rounds.
	RetryDelay time.Duration
	// Now drives the ramp-up schedule. Defaults to time.Now.
	Now func() time.Time
}

func (c *WriterConfig) setDefaults() error {
	if c.Database == "" {
		return errors.New("pipeline: database is required")
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = MaxBatchSize
	}
	if c.MaxBatchSize < 0 || c.MaxBatchSize > MaxBatchSize {
		return fmt.Errorf("pipeline: batch size must be between 1 and %d, got %d", MaxBatchSize, c.MaxBatchSize)
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

// Stats counts write outcomes. Retried counts re-sends, so one write
// may add to it several times.
type Stats struct {
	Written int64
	Failed  int64
	Retried int64
	Batches int64
}

// WriteError is the final failure of one write.
type WriteError struct {
	Document string
	Attempts int
	Status   *status.Status
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: %s after %d attempt(s): %s", e.Document, retry.CodeName(e.Status.Code()), e.Attempts, e.Status.Message())
}

func (e *WriteError) GRPCStatus() *status.Status { return e.Status }

// Writer sends writes with BatchWrite, throttled by the 500/50/5
// ramp-up rule: 500 writes per second to start, growing by half every
// five minutes.
type Writer struct {
	client  BatchWriter
	cfg     WriterConfig
	policy  retry.Policy
	limiter *rate.Limiter
	start   time.Time
	logger  zerolog.Logger
}

func NewWriter(client BatchWriter, cfg WriterConfig, logger zerolog.Logger) (*Writer, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	policy, _ := retry.FirestoreDefaults().Policy(retry.RetryPolicy5)
	return &Writer{
		client:  client,
		cfg:     cfg,
		policy:  policy,
		limiter: rate.NewLimiter(rate.Limit(rampBase), max(rampBase, cfg.MaxBatchSize)),
		start:   cfg.Now(),
		logger:  logger.With().Str("component", "pipeline-writer").Logger(),
	}, nil
}

// RampRate is the allowed writes per second after elapsed time.
func RampRate(elapsed time.Duration) float64 {
	if elapsed < 0 {
		elapsed = 0
	}
	steps := math.Floor(float64(elapsed) / float64(rampInterval))
	return rampBase * math.Pow(rampGrowth, steps)
}

type pendingWrite struct {
	write    model.Write
	attempts int
}

// Write sends every write, re-sending those that fail with a retryable
// code until MaxAttempts. The returned error joins one WriteError per
// write that finally failed. Writes to the same document in one call are
// not ordered relative to each other.
func (w *Writer) Write(ctx context.Context, writes []model.Write) (Stats, error) {
	var (
		stats    Stats
		failures []error
	)
	pending := make([]pendingWrite, len(writes))
	for i, wr := range writes {
		pending[i] = pendingWrite{write: wr}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.RetryDelay
	b.MaxElapsedTime = 0
	b.Reset()

	for round := 0; len(pending) > 0; round++ {
		if round > 0 {
			delay := b.NextBackOff()
			w.logger.Warn().Int("round", round).Int("writes", len(pending)).Dur("delay", delay).Msg("re-sending failed writes")
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return stats, ctx.Err()
			case <-t.C:
			}
		}
		again, failed, err := w.round(ctx, pending, &stats)
		failures = append(failures, failed...)
		if err != nil {
			return stats, errors.Join(append(failures, err)...)
		}
		pending = again
	}
	return stats, errors.Join(failures...)
}

// round sends pending once and returns the writes to re-send.
func (w *Writer) round(ctx context.Context, pending []pendingWrite, stats *Stats) ([]pendingWrite, []error, error) {
	var (
		mu       sync.Mutex
		again    []pendingWrite
		failures []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Workers)
	for _, batch := range w.batches(pending) {
		g.Go(func() error {
			if err := w.wait(gctx, len(batch)); err != nil {
				return err
			}
			statuses, err := w.send(gctx, batch)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			stats.Batches++
			for i, st := range statuses {
				pw := batch[i]
				pw.attempts++
				switch {
				case st.Code() == codes.OK:
					stats.Written++
				case w.policy.Retryable(st.Err()) && pw.attempts < w.cfg.MaxAttempts:
					stats.Retried++
					again = append(again, pw)
				default:
					stats.Failed++
					failures = append(failures, &WriteError{Document: pw.write.Target(), Attempts: pw.attempts, Status: st})
				}
			}
			return nil
		})
	}
	err := g.Wait()
	return again, failures, err
}

// send issues one BatchWrite. A call that fails as a whole fails each of
// its writes with the call's status, unless the context is done.
func (w *Writer) send(ctx context.Context, batch []pendingWrite) ([]*status.Status, error) {
	req := &model.BatchWriteRequest{Database: w.cfg.Database, Writes: make([]model.Write, len(batch))}
	for i, pw := range batch {
		req.Writes[i] = pw.write
	}
	w.logger.Debug().Int("writes", len(batch)).Msg("batch write")

	out := make([]*status.Status, len(batch))
	resp, err := w.client.BatchWrite(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		st := status.Convert(err)
		for i := range out {
			out[i] = st
		}
		return out, nil
	}
	for i := range out {
		if i < len(resp.Status) {
			out[i] = status.New(codes.Code(resp.Status[i].Code), resp.Status[i].Message)
		} else {
			out[i] = status.New(codes.Unknown, "no status returned for write")
		}
	}
	return out, nil
}

func (w *Writer) wait(ctx context.Context, n int) error {
	w.limiter.SetLimitAt(w.cfg.Now(), rate.Limit(RampRate(w.cfg.Now().Sub(w.start))))
	return w.limiter.WaitN(ctx, n)
}

// batches splits pending into requests of at most MaxBatchSize writes,
// never putting two writes to one document in the same request.
func (w *Writer) batches(pending []pendingWrite) [][]pendingWrite {
	var (
		out     [][]pendingWrite
		cur     []pendingWrite
		targets = map[string]bool{}
	)
	for _, pw := range pending {
		t := pw.write.Target()
		if len(cur) == w.cfg.MaxBatchSize || targets[t] {
			out = append(out, cur)
			cur = nil
			clear(targets)
		}
		cur = append(cur, pw)
		targets[t] = true
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}
