package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/retry"
	"github.com/edvin/firestore-admin/internal/rpc"
	"github.com/edvin/firestore-admin/internal/transport"
)

// Untyped holds a packed message of any type as raw JSON.
type Untyped struct{ json.RawMessage }

func (Untyped) TypeURL() string { return "" }

// Operation tracks a long-running operation whose result is an R and
// whose metadata is an M.
type Operation[R, M model.Message] struct {
	c  *Client
	mu sync.Mutex
	op *model.Operation
}

func newOperation[R, M model.Message](c *Client, op *model.Operation) *Operation[R, M] {
	return &Operation[R, M]{c: c, op: op}
}

// Resume attaches to an operation started elsewhere.
func Resume[R, M model.Message](c *Client, name string) *Operation[R, M] {
	return newOperation[R, M](c, &model.Operation{Name: name})
}

func (o *Operation[R, M]) snapshot() *model.Operation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.op
}

func (o *Operation[R, M]) Name() string { return o.snapshot().Name }

// Done reports whether the last refresh saw the operation finished.
func (o *Operation[R, M]) Done() bool { return o.snapshot().Done }

// Raw returns the operation as last fetched.
func (o *Operation[R, M]) Raw() *model.Operation { return o.snapshot() }

// Metadata decodes the metadata of the last refresh, or returns nil when
// the server has not reported any.
func (o *Operation[R, M]) Metadata() (*M, error) {
	raw := o.snapshot().Metadata
	if len(raw) == 0 {
		return nil, nil
	}
	return unpack[M](raw)
}

// Poll refreshes the operation once. It returns a nil result while the
// operation is running.
func (o *Operation[R, M]) Poll(ctx context.Context) (*R, error) {
	if !o.Done() {
		if err := o.refresh(ctx); err != nil {
			return nil, err
		}
	}
	if !o.Done() {
		return nil, nil
	}
	return o.result()
}

// Wait polls until the operation finishes, following the client's poll
// policy, and returns its result.
func (o *Operation[R, M]) Wait(ctx context.Context) (*R, error) {
	if !o.Done() {
		err := retry.Poll(ctx, o.c.poll, func(ctx context.Context) (bool, error) {
			if err := o.refresh(ctx); err != nil {
				return false, err
			}
			return o.Done(), nil
		}, retry.OnRetry(func(attempt int, _ error, delay time.Duration) {
			o.c.logger.Debug().Str("operation", o.Name()).Int("poll", attempt).Dur("delay", delay).Msg("operation still running")
		}))
		if err != nil {
			return nil, err
		}
	}
	return o.result()
}

// Cancel asks the server to stop the operation. Cancellation is best
// effort; Wait reports CANCELLED once it takes effect.
func (o *Operation[R, M]) Cancel(ctx context.Context) error {
	return o.c.CancelOperation(ctx, &model.CancelOperationRequest{Name: o.Name()})
}

// Delete forgets a finished operation on the server.
func (o *Operation[R, M]) Delete(ctx context.Context) error {
	return o.c.DeleteOperation(ctx, &model.DeleteOperationRequest{Name: o.Name()})
}

func (o *Operation[R, M]) refresh(ctx context.Context) error {
	var op model.Operation
	err := o.c.tc.Invoke(ctx, transport.Call{
		RPC:     rpc.GetOperation,
		Request: &model.GetOperationRequest{Name: o.Name()},
	}, &op)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.op = &op
	o.mu.Unlock()
	return nil
}

func (o *Operation[R, M]) result() (*R, error) {
	op := o.snapshot()
	if op.Error != nil {
		return nil, StatusError(op.Error)
	}
	if len(op.Response) == 0 {
		return new(R), nil
	}
	return unpack[R](op.Response)
}

// StatusError converts a finished operation's error to a gRPC status
// error.
func StatusError(s *model.Status) error {
	if s == nil {
		return nil
	}
	return status.Error(codes.Code(s.Code), s.Message)
}

func unpack[T model.Message](raw json.RawMessage) (*T, error) {
	out := new(T)
	var zero T
	if zero.TypeURL() == "" {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decode operation payload: %w", err)
		}
		return out, nil
	}
	msg, ok := any(out).(model.Message)
	if !ok {
		return nil, fmt.Errorf("%T is not a message", out)
	}
	if err := model.UnpackAny(raw, msg); err != nil {
		return nil, err
	}
	return out, nil
}
