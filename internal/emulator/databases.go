package emulator

import (
	"context"
	"sort"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/resource"
)

func terminal(state model.OperationState) bool {
	switch state {
	case model.OperationSuccessful, model.OperationFailed, model.OperationCancelled:
		return true
	}
	return false
}

// endTime is set on metadata once the operation reaches a final state.
func (s *Server) endTime(state model.OperationState) *time.Time {
	if !terminal(state) {
		return nil
	}
	return ptr(s.now())
}

func cloneDatabase(db *model.Database) *model.Database {
	c := *db
	return &c
}

func (s *Server) createDatabase(_ context.Context, req *model.CreateDatabaseRequest) (*model.Operation, error) {
	parent, err := resource.ParseProjectName(req.Parent)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if !validDatabaseID(req.DatabaseID) {
		return nil, status.Errorf(codes.InvalidArgument, "database id %q must match [a-z][a-z0-9-]{2,62} or be (default)", req.DatabaseID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.projectLocked(parent.Project)
	if _, ok := p.databases[req.DatabaseID]; ok {
		return nil, status.Errorf(codes.AlreadyExists, "database %s already exists", parent.Database(req.DatabaseID))
	}
	name := parent.Database(req.DatabaseID)
	meta := s.newDatabaseMeta(name, req.Database)
	p.databases[req.DatabaseID] = newDatabase(meta)

	return s.startOperationLocked(name, job{
		meta: func(model.OperationState) model.Message { return model.CreateDatabaseMetadata{} },
		run: func() (model.Message, error) {
			return *cloneDatabase(meta), nil
		},
	})
}

func (s *Server) getDatabase(_ context.Context, req *model.GetDatabaseRequest) (*model.Database, error) {
	n, err := resource.ParseDatabaseName(req.Name)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	var out *model.Database
	err = s.readDatabase(n, func(db *database) error {
		out = cloneDatabase(db.meta)
		return nil
	})
	return out, err
}

func (s *Server) listDatabases(_ context.Context, req *model.ListDatabasesRequest) (*model.ListDatabasesResponse, error) {
	parent, err := resource.ParseProjectName(req.Parent)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp := &model.ListDatabasesResponse{}
	s.readProject(parent.Project, func(p *project) error {
		for _, id := range sortedKeys(p.databases) {
			resp.Databases = append(resp.Databases, cloneDatabase(p.databases[id].meta))
		}
		if req.ShowDeleted {
			for _, d := range p.deleted {
				resp.Databases = append(resp.Databases, cloneDatabase(d))
			}
		}
		return nil
	})
	if req.ShowDeleted {
		sort.SliceStable(resp.Databases, func(i, j int) bool { return resp.Databases[i].Name < resp.Databases[j].Name })
	}
	return resp, nil
}

func (s *Server) updateDatabase(_ context.Context, req *model.UpdateDatabaseRequest) (*model.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, name, err := s.databaseLocked(req.Database.Name)
	if err != nil {
		return nil, err
	}
	if req.Database.Etag != "" && req.Database.Etag != db.meta.Etag {
		return nil, status.Errorf(codes.FailedPrecondition, "etag mismatch for %s", name)
	}

	paths := []string{"deleteProtectionState", "pointInTimeRecoveryEnablement", "appEngineIntegrationMode", "concurrencyMode"}
	if req.UpdateMask != nil && len(req.UpdateMask.Paths) > 0 {
		for _, p := range req.UpdateMask.Paths {
			switch p {
			case "deleteProtectionState", "pointInTimeRecoveryEnablement", "appEngineIntegrationMode", "concurrencyMode":
			default:
				return nil, status.Errorf(codes.InvalidArgument, "field %q cannot be updated", p)
			}
		}
		paths = req.UpdateMask.Paths
	}

	next := cloneDatabase(db.meta)
	in := req.Database
	for _, p := range paths {
		switch p {
		case "deleteProtectionState":
			if in.DeleteProtectionState != "" || req.UpdateMask != nil {
				next.DeleteProtectionState = orDefault(in.DeleteProtectionState, model.DeleteProtectionDisabled)
			}
		case "pointInTimeRecoveryEnablement":
			if in.PointInTimeRecoveryEnablement != "" || req.UpdateMask != nil {
				next.PointInTimeRecoveryEnablement = orDefault(in.PointInTimeRecoveryEnablement, model.PointInTimeRecoveryDisabled)
				next.VersionRetentionPeriod = model.NewDuration(retentionFor(next.PointInTimeRecoveryEnablement))
			}
		case "appEngineIntegrationMode":
			if in.AppEngineIntegrationMode != "" || req.UpdateMask != nil {
				next.AppEngineIntegrationMode = orDefault(in.AppEngineIntegrationMode, model.AppEngineIntegrationDisabled)
			}
		case "concurrencyMode":
			if in.ConcurrencyMode != "" || req.UpdateMask != nil {
				next.ConcurrencyMode = orDefault(in.ConcurrencyMode, model.Pessimistic)
			}
		}
	}
	next.UpdateTime = ptr(s.now())
	next.Etag = newID()
	db.meta = next

	return s.startOperationLocked(name, job{
		meta: func(model.OperationState) model.Message { return model.UpdateDatabaseMetadata{} },
		run: func() (model.Message, error) {
			return *cloneDatabase(next), nil
		},
	})
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func (s *Server) deleteDatabase(_ context.Context, req *model.DeleteDatabaseRequest) (*model.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, name, err := s.databaseLocked(req.Name)
	if err != nil {
		return nil, err
	}
	if req.Etag != "" && req.Etag != db.meta.Etag {
		return nil, status.Errorf(codes.FailedPrecondition, "etag mismatch for %s", name)
	}
	if db.meta.DeleteProtectionState == model.DeleteProtectionEnabled {
		return nil, status.Errorf(codes.FailedPrecondition, "database %s has delete protection enabled", name)
	}

	p := s.projects[name.Project]
	delete(p.databases, name.Database)
	gone := cloneDatabase(db.meta)
	gone.DeleteTime = ptr(s.now())
	gone.Etag = newID()
	p.deleted = append(p.deleted, gone)

	return s.startOperationLocked(name, job{
		meta: func(model.OperationState) model.Message { return model.DeleteDatabaseMetadata{} },
		run: func() (model.Message, error) {
			return *cloneDatabase(gone), nil
		},
	})
}
