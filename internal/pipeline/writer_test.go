package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/model"
)

const testDatabase = "projects/demo/databases/(default)"

// fakeBatchWriter answers each write with the code outcome returns for
// the write's target and how often that target was sent before.
type fakeBatchWriter struct {
	mu      sync.Mutex
	batches [][]string
	sent    map[string]int
	outcome func(target string, sent int) codes.Code
	callErr error
}

func (f *fakeBatchWriter) BatchWrite(_ context.Context, req *model.BatchWriteRequest) (*model.BatchWriteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = map[string]int{}
	}
	var targets []string
	resp := &model.BatchWriteResponse{}
	for i := range req.Writes {
		t := req.Writes[i].Target()
		targets = append(targets, t)
		code := codes.OK
		if f.outcome != nil {
			code = f.outcome(t, f.sent[t])
		}
		f.sent[t]++
		resp.WriteResults = append(resp.WriteResults, model.WriteResult{})
		resp.Status = append(resp.Status, model.Status{Code: int32(code), Message: code.String()})
	}
	f.batches = append(f.batches, targets)
	if f.callErr != nil {
		return nil, f.callErr
	}
	return resp, nil
}

func docWrites(n int) []model.Write {
	out := make([]model.Write, n)
	for i := range out {
		out[i] = model.Write{Update: &model.Document{
			Name:   fmt.Sprintf("%s/documents/items/item-%03d", testDatabase, i),
			Fields: map[string]*model.Value{"n": model.IntegerValue(int64(i))},
		}}
	}
	return out
}

func newTestWriter(t *testing.T, client BatchWriter, cfg WriterConfig) *Writer {
	t.Helper()
	cfg.Database = testDatabase
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	w, err := NewWriter(client, cfg, zerolog.Nop())
	require.NoError(t, err)
	return w
}

func TestWriter_Batches(t *testing.T) {
	fake := &fakeBatchWriter{}
	w := newTestWriter(t, fake, WriterConfig{MaxBatchSize: 10, Workers: 2})

	stats, err := w.Write(context.Background(), docWrites(25))
	require.NoError(t, err)
	assert.EqualValues(t, 25, stats.Written)
	assert.EqualValues(t, 3, stats.Batches)
	assert.Zero(t, stats.Failed)

	sizes := map[int]int{}
	for _, b := range fake.batches {
		sizes[len(b)]++
	}
	assert.Equal(t, map[int]int{10: 2, 5: 1}, sizes)
}

func TestWriter_SplitsDuplicateTargets(t *testing.T) {
	w := newTestWriter(t, &fakeBatchWriter{}, WriterConfig{})
	writes := docWrites(3)
	writes = append(writes, model.Write{Delete: writes[1].Update.Name})

	pending := make([]pendingWrite, len(writes))
	for i, wr := range writes {
		pending[i] = pendingWrite{write: wr}
	}
	batches := w.batches(pending)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 3)
	assert.Equal(t, writes[1].Update.Name, batches[1][0].write.Delete)
}

func TestWriter_RetriesTransientFailures(t *testing.T) {
	writes := docWrites(4)
	flaky := writes[2].Update.Name
	fake := &fakeBatchWriter{outcome: func(target string, sent int) codes.Code {
		if target == flaky && sent < 2 {
			return codes.Unavailable
		}
		return codes.OK
	}}
	w := newTestWriter(t, fake, WriterConfig{MaxAttempts: 5})

	stats, err := w.Write(context.Background(), writes)
	require.NoError(t, err)
	assert.EqualValues(t, 4, stats.Written)
	assert.EqualValues(t, 2, stats.Retried)
	assert.Equal(t, 3, fake.sent[flaky])
	require.Len(t, fake.batches, 3)
	assert.Equal(t, []string{flaky}, fake.batches[2])
}

func TestWriter_PermanentFailure(t *testing.T) {
	writes := docWrites(3)
	bad := writes[0].Update.Name
	fake := &fakeBatchWriter{outcome: func(target string, _ int) codes.Code {
		if target == bad {
			return codes.FailedPrecondition
		}
		return codes.OK
	}}
	w := newTestWriter(t, fake, WriterConfig{})

	stats, err := w.Write(context.Background(), writes)
	require.Error(t, err)
	assert.EqualValues(t, 2, stats.Written)
	assert.EqualValues(t, 1, stats.Failed)
	assert.Zero(t, stats.Retried)

	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, bad, we.Document)
	assert.Equal(t, 1, we.Attempts)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Contains(t, err.Error(), "FAILED_PRECONDITION")
}

func TestWriter_GivesUpAfterMaxAttempts(t *testing.T) {
	fake := &fakeBatchWriter{outcome: func(string, int) codes.Code { return codes.Aborted }}
	w := newTestWriter(t, fake, WriterConfig{MaxAttempts: 3})

	stats, err := w.Write(context.Background(), docWrites(1))
	require.Error(t, err)
	assert.EqualValues(t, 1, stats.Failed)
	assert.EqualValues(t, 2, stats.Retried)
	assert.Len(t, fake.batches, 3)

	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, 3, we.Attempts)
	assert.Equal(t, codes.Aborted, we.Status.Code())
}

func TestWriter_CallFailureFailsEachWrite(t *testing.T) {
	fake := &fakeBatchWriter{callErr: status.Error(codes.PermissionDenied, "denied")}
	w := newTestWriter(t, fake, WriterConfig{})

	stats, err := w.Write(context.Background(), docWrites(2))
	require.Error(t, err)
	assert.EqualValues(t, 2, stats.Failed)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestWriter_ContextCanceled(t *testing.T) {
	fake := &fakeBatchWriter{outcome: func(string, int) codes.Code { return codes.Unavailable }}
	w := newTestWriter(t, fake, WriterConfig{RetryDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := w.Write(ctx, docWrites(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewWriter_Validation(t *testing.T) {
	_, err := NewWriter(&fakeBatchWriter{}, WriterConfig{}, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewWriter(&fakeBatchWriter{}, WriterConfig{Database: testDatabase, MaxBatchSize: 501}, zerolog.Nop())
	assert.Error(t, err)
}

func TestRampRate(t *testing.T) {
	tests := []struct {
		elapsed time.Duration
		want    float64
	}{
		{0, 500},
		{-time.Second, 500},
		{4*time.Minute + 59*time.Second, 500},
		{5 * time.Minute, 750},
		{10 * time.Minute, 1125},
		{16 * time.Minute, 1687.5},
	}
	for _, tt := range tests {
		t.Run(tt.elapsed.String(), func(t *testing.T) {
			assert.InDelta(t, tt.want, RampRate(tt.elapsed), 1e-9)
		})
	}
}
