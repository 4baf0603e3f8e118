package emulator

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/resource"
)

// allGroups lists across every collection group of a database.
const allGroups = "-"

func cloneIndex(ix *model.Index) *model.Index {
	c := *ix
	c.Fields = append([]model.IndexField(nil), ix.Fields...)
	return &c
}

func (s *Server) collectionGroupLocked(parent string) (*database, resource.CollectionGroupName, error) {
	cg, err := resource.ParseCollectionGroupName(parent)
	if err != nil {
		return nil, cg, status.Error(codes.InvalidArgument, err.Error())
	}
	db, _, err := s.databaseLocked(cg.Parent().String())
	return db, cg, err
}

func (s *Server) createIndex(_ context.Context, req *model.CreateIndexRequest) (*model.Operation, error) {
	if len(req.Index.Fields) == 0 {
		return nil, status.Error(codes.InvalidArgument, "index must have at least one field")
	}
	for _, f := range req.Index.Fields {
		if f.FieldPath == "" || (f.Order == "") == (f.ArrayConfig == "") {
			return nil, status.Errorf(codes.InvalidArgument, "index field %q must set exactly one of order and arrayConfig", f.FieldPath)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	db, cg, err := s.collectionGroupLocked(req.Parent)
	if err != nil {
		return nil, err
	}
	if cg.Collection == allGroups {
		return nil, status.Error(codes.InvalidArgument, "indexes must be created on a named collection group")
	}

	ix := cloneIndex(req.Index)
	ix.QueryScope = orDefault(ix.QueryScope, model.QueryScopeCollection)
	ix.APIScope = orDefault(ix.APIScope, model.AnyAPI)
	prefix := cg.String() + "/"
	for name, existing := range db.indexes {
		if strings.HasPrefix(name, prefix) && existing.Key() == ix.Key() {
			return nil, status.Errorf(codes.AlreadyExists, "index already exists: %s", name)
		}
	}
	ix.Name = cg.Index(newID()).String()
	ix.State = model.IndexCreating
	db.indexes[ix.Name] = ix

	start := s.now()
	count := int64(len(db.docs))
	return s.startOperationLocked(cg.Parent(), job{
		meta: func(state model.OperationState) model.Message {
			m := model.IndexOperationMetadata{StartTime: &start, EndTime: s.endTime(state), Index: ix.Name, State: state}
			if terminal(state) {
				m.ProgressDocuments = &model.Progress{EstimatedWork: count, CompletedWork: count}
			}
			return m
		},
		run: func() (model.Message, error) {
			ix.State = model.IndexReady
			return *cloneIndex(ix), nil
		},
		onCancel: func() { delete(db.indexes, ix.Name) },
	})
}

func (s *Server) listIndexes(_ context.Context, req *model.ListIndexesRequest) (*model.ListIndexesResponse, error) {
	if req.Filter != "" {
		return nil, status.Errorf(codes.InvalidArgument, "unsupported filter %q", req.Filter)
	}
	cg, err := resource.ParseCollectionGroupName(req.Parent)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	prefix := cg.String() + "/"
	if cg.Collection == allGroups {
		prefix = cg.Parent().String() + "/collectionGroups/"
	}
	var out []*model.Index
	err = s.readDatabase(cg.Parent(), func(db *database) error {
		for _, name := range sortedKeys(db.indexes) {
			if strings.HasPrefix(name, prefix) {
				out = append(out, cloneIndex(db.indexes[name]))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	page, next, err := pageOf(out, req.PageSize, req.PageToken)
	if err != nil {
		return nil, err
	}
	return &model.ListIndexesResponse{Indexes: page, NextPageToken: next}, nil
}

func (s *Server) indexLocked(name string) (*database, *model.Index, error) {
	n, err := resource.ParseIndexName(name)
	if err != nil {
		return nil, nil, status.Error(codes.InvalidArgument, err.Error())
	}
	db, _, err := s.databaseLocked(n.Parent().Parent().String())
	if err != nil {
		return nil, nil, err
	}
	ix, ok := db.indexes[name]
	if !ok {
		return nil, nil, status.Errorf(codes.NotFound, "index %s not found", name)
	}
	return db, ix, nil
}

func (s *Server) getIndex(_ context.Context, req *model.GetIndexRequest) (*model.Index, error) {
	n, err := resource.ParseIndexName(req.Name)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	var out *model.Index
	err = s.readDatabase(n.Parent().Parent(), func(db *database) error {
		ix, ok := db.indexes[req.Name]
		if !ok {
			return status.Errorf(codes.NotFound, "index %s not found", req.Name)
		}
		out = cloneIndex(ix)
		return nil
	})
	return out, err
}

func (s *Server) deleteIndex(_ context.Context, req *model.DeleteIndexRequest) (*model.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ix, err := s.indexLocked(req.Name)
	if err != nil {
		return nil, err
	}
	delete(db.indexes, ix.Name)
	return &model.Empty{}, nil
}
