package emulator

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/resource"
)

type operation struct {
	op       *model.Operation
	database string
	meta     func(model.OperationState) model.Message
	onCancel func()
}

// job describes the work behind a long-running operation. run and
// onCancel are called with s.mu held. load, when set, runs before run
// and does the job's blob I/O; a delayed job calls it without s.mu, so
// it must only touch state captured when the job was created.
type job struct {
	// name is generated when empty.
	name     string
	meta     func(state model.OperationState) model.Message
	load     func() error
	run      func() (model.Message, error)
	onCancel func()
}

func (j job) loaded(err error) func() (model.Message, error) {
	return func() (model.Message, error) {
		if err != nil {
			return nil, err
		}
		return j.run()
	}
}

func (j job) doLoad() error {
	if j.load == nil {
		return nil
	}
	return j.load()
}

// startOperationLocked registers an operation on db and runs its job,
// synchronously when no operation delay is configured. s.mu must be held
// for writing.
func (s *Server) startOperationLocked(db resource.DatabaseName, j job) (*model.Operation, error) {
	name := j.name
	if name == "" {
		name = db.Operation(newID()).String()
	}
	o := &operation{
		op:       &model.Operation{Name: name},
		database: db.String(),
		meta:     j.meta,
		onCancel: j.onCancel,
	}
	if err := o.setMeta(model.OperationProcessing); err != nil {
		return nil, err
	}
	s.operations[name] = o
	s.opOrder = append(s.opOrder, name)

	delay := s.cfg.EmulatorOperationDelay
	if delay <= 0 {
		s.finishLocked(o, j.loaded(j.doLoad()))
		return cloneOperation(o.op), nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
		}
		s.mu.RLock()
		cancelled := o.op.Done
		s.mu.RUnlock()
		if cancelled {
			return
		}
		loadErr := j.doLoad()

		s.mu.Lock()
		defer s.mu.Unlock()
		if o.op.Done {
			return
		}
		s.finishLocked(o, j.loaded(loadErr))
	}()
	return cloneOperation(o.op), nil
}

func (s *Server) finishLocked(o *operation, run func() (model.Message, error)) {
	resp, err := run()
	o.op.Done = true
	if err != nil {
		st, _ := status.FromError(err)
		o.op.Error = &model.Status{Code: int32(st.Code()), Message: st.Message()}
		o.setMeta(model.OperationFailed)
		s.logger.Warn().Err(err).Str("operation", o.op.Name).Msg("operation failed")
		return
	}
	if resp == nil {
		resp = model.Empty{}
	}
	raw, perr := model.PackAny(resp)
	if perr != nil {
		o.op.Error = &model.Status{Code: int32(codes.Internal), Message: perr.Error()}
		o.setMeta(model.OperationFailed)
		return
	}
	o.op.Response = raw
	o.setMeta(model.OperationSuccessful)
}

func (o *operation) setMeta(state model.OperationState) error {
	if o.meta == nil {
		return nil
	}
	raw, err := model.PackAny(o.meta(state))
	if err != nil {
		return status.Errorf(codes.Internal, "pack metadata: %v", err)
	}
	o.op.Metadata = raw
	return nil
}

func cloneOperation(op *model.Operation) *model.Operation {
	c := *op
	if op.Error != nil {
		e := *op.Error
		c.Error = &e
	}
	return &c
}

func (s *Server) getOperation(_ context.Context, req *model.GetOperationRequest) (*model.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.operations[req.Name]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "operation %s not found", req.Name)
	}
	return cloneOperation(o.op), nil
}

func (s *Server) listOperations(_ context.Context, req *model.ListOperationsRequest) (*model.ListOperationsResponse, error) {
	if _, err := resource.ParseDatabaseName(req.Name); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	filterDone, hasFilter, err := parseDoneFilter(req.Filter)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	var ops []*model.Operation
	for _, name := range s.opOrder {
		o, ok := s.operations[name]
		if !ok || o.database != req.Name {
			continue
		}
		if hasFilter && o.op.Done != filterDone {
			continue
		}
		ops = append(ops, cloneOperation(o.op))
	}
	s.mu.RUnlock()

	page, next, err := pageOf(ops, req.PageSize, req.PageToken)
	if err != nil {
		return nil, err
	}
	return &model.ListOperationsResponse{Operations: page, NextPageToken: next}, nil
}

// parseDoneFilter understands the one filter worth emulating: "done=true"
// or "done=false".
func parseDoneFilter(filter string) (done, ok bool, err error) {
	f := strings.ReplaceAll(strings.TrimSpace(filter), " ", "")
	switch f {
	case "":
		return false, false, nil
	case "done=true", "done:true":
		return true, true, nil
	case "done=false", "done:false":
		return false, true, nil
	}
	return false, false, status.Errorf(codes.InvalidArgument, "unsupported filter %q", filter)
}

func (s *Server) cancelOperation(_ context.Context, req *model.CancelOperationRequest) (*model.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.operations[req.Name]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "operation %s not found", req.Name)
	}
	if o.op.Done {
		return &model.Empty{}, nil
	}
	o.op.Done = true
	o.op.Error = &model.Status{Code: int32(codes.Canceled), Message: "operation was cancelled"}
	o.setMeta(model.OperationCancelled)
	if o.onCancel != nil {
		o.onCancel()
	}
	return &model.Empty{}, nil
}

func (s *Server) deleteOperation(_ context.Context, req *model.DeleteOperationRequest) (*model.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.operations[req.Name]; !ok {
		return nil, status.Errorf(codes.NotFound, "operation %s not found", req.Name)
	}
	delete(s.operations, req.Name)
	for i, n := range s.opOrder {
		if n == req.Name {
			s.opOrder = append(s.opOrder[:i], s.opOrder[i+1:]...)
			break
		}
	}
	return &model.Empty{}, nil
}
