package emulator

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/resource"
)

const (
	defaultGroup = "__default__"
	wildcard     = "*"
	// usesAncestorFilter is the only ListFields filter the API accepts.
	usesAncestorFilter = "indexConfig.usesAncestorConfig:false"
)

// builtinIndexes are the single-field indexes every field gets unless
// configured otherwise.
func builtinIndexes(fieldPath string) []model.Index {
	mk := func(f model.IndexField) model.Index {
		f.FieldPath = fieldPath
		return model.Index{QueryScope: model.QueryScopeCollection, Fields: []model.IndexField{f}, State: model.IndexReady}
	}
	return []model.Index{
		mk(model.IndexField{Order: model.Ascending}),
		mk(model.IndexField{Order: model.Descending}),
		mk(model.IndexField{ArrayConfig: model.ArrayContains}),
	}
}

func cloneField(f *model.Field) *model.Field {
	c := *f
	if f.IndexConfig != nil {
		ic := *f.IndexConfig
		ic.Indexes = make([]model.Index, len(f.IndexConfig.Indexes))
		for i := range f.IndexConfig.Indexes {
			ic.Indexes[i] = *cloneIndex(&f.IndexConfig.Indexes[i])
		}
		c.IndexConfig = &ic
	}
	if f.TTLConfig != nil {
		t := *f.TTLConfig
		c.TTLConfig = &t
	}
	return &c
}

func retarget(indexes []model.Index, fieldPath string) []model.Index {
	out := make([]model.Index, len(indexes))
	for i, ix := range indexes {
		out[i] = *cloneIndex(&ix)
		for j := range out[i].Fields {
			out[i].Fields[j].FieldPath = fieldPath
		}
	}
	return out
}

// effectiveFieldLocked returns the configuration a field has, explicit or
// inherited from its ancestor wildcard field.
func (s *Server) effectiveFieldLocked(db *database, n resource.FieldName) *model.Field {
	if f, ok := db.fields[n.String()]; ok && f.IndexConfig != nil {
		return cloneField(f)
	}
	explicit := db.fields[n.String()]

	ancestor := n.Parent().Parent().CollectionGroup(defaultGroup).Field(wildcard)
	indexes := builtinIndexes(wildcard)
	if def, ok := db.fields[ancestor.String()]; ok && def.IndexConfig != nil {
		indexes = def.IndexConfig.Indexes
	}
	f := &model.Field{
		Name: n.String(),
		IndexConfig: &model.FieldIndexConfig{
			Indexes:            retarget(indexes, n.Field),
			UsesAncestorConfig: n.String() != ancestor.String(),
		},
	}
	if f.IndexConfig.UsesAncestorConfig {
		f.IndexConfig.AncestorField = ancestor.String()
	}
	if explicit != nil && explicit.TTLConfig != nil {
		t := *explicit.TTLConfig
		f.TTLConfig = &t
	}
	return f
}

func (s *Server) fieldLocked(name string) (*database, resource.FieldName, error) {
	n, err := resource.ParseFieldName(name)
	if err != nil {
		return nil, n, status.Error(codes.InvalidArgument, err.Error())
	}
	db, _, err := s.databaseLocked(n.Parent().Parent().String())
	return db, n, err
}

func (s *Server) getField(_ context.Context, req *model.GetFieldRequest) (*model.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, n, err := s.fieldLocked(req.Name)
	if err != nil {
		return nil, err
	}
	return s.effectiveFieldLocked(db, n), nil
}

func (s *Server) updateField(_ context.Context, req *model.UpdateFieldRequest) (*model.Operation, error) {
	paths := []string{}
	if req.UpdateMask != nil && len(req.UpdateMask.Paths) > 0 {
		for _, p := range req.UpdateMask.Paths {
			if p != "indexConfig" && p != "ttlConfig" {
				return nil, status.Errorf(codes.InvalidArgument, "field %q cannot be updated", p)
			}
		}
		paths = req.UpdateMask.Paths
	} else {
		if req.Field.IndexConfig != nil {
			paths = append(paths, "indexConfig")
		}
		if req.Field.TTLConfig != nil {
			paths = append(paths, "ttlConfig")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	db, n, err := s.fieldLocked(req.Field.Name)
	if err != nil {
		return nil, err
	}
	if n.Collection == allGroups {
		return nil, status.Error(codes.InvalidArgument, "fields must be updated on a named collection group")
	}

	before := s.effectiveFieldLocked(db, n)
	stored, ok := db.fields[n.String()]
	if !ok {
		stored = &model.Field{Name: n.String()}
	} else {
		stored = cloneField(stored)
	}

	var (
		deltas   []model.IndexConfigDelta
		ttlDelta *model.TTLConfigDelta
	)
	for _, p := range paths {
		switch p {
		case "indexConfig":
			if req.Field.IndexConfig == nil {
				stored.IndexConfig = nil
				continue
			}
			next := &model.FieldIndexConfig{Indexes: retarget(req.Field.IndexConfig.Indexes, n.Field)}
			for i := range next.Indexes {
				next.Indexes[i].QueryScope = orDefault(next.Indexes[i].QueryScope, model.QueryScopeCollection)
				next.Indexes[i].State = model.IndexCreating
			}
			deltas = indexDeltas(before.IndexConfig.Indexes, next.Indexes)
			stored.IndexConfig = next
		case "ttlConfig":
			if n.Field == wildcard {
				return nil, status.Error(codes.InvalidArgument, "TTL cannot be configured on the wildcard field")
			}
			if req.Field.TTLConfig == nil {
				if stored.TTLConfig != nil {
					ttlDelta = &model.TTLConfigDelta{ChangeType: model.ChangeRemove}
				}
				stored.TTLConfig = nil
				continue
			}
			if stored.TTLConfig == nil {
				ttlDelta = &model.TTLConfigDelta{ChangeType: model.ChangeAdd}
			}
			stored.TTLConfig = &model.TTLConfig{State: model.TTLCreating}
		}
	}
	if stored.IndexConfig == nil && stored.TTLConfig == nil {
		delete(db.fields, n.String())
	} else {
		db.fields[n.String()] = stored
	}

	start := s.now()
	count := int64(len(db.docs))
	return s.startOperationLocked(n.Parent().Parent(), job{
		meta: func(state model.OperationState) model.Message {
			m := model.FieldOperationMetadata{
				StartTime: &start, EndTime: s.endTime(state),
				Field: n.String(), IndexConfigDeltas: deltas, TTLConfigDelta: ttlDelta, State: state,
			}
			if terminal(state) {
				m.ProgressDocuments = &model.Progress{EstimatedWork: count, CompletedWork: count}
			}
			return m
		},
		run: func() (model.Message, error) {
			if cur, ok := db.fields[n.String()]; ok {
				if cur.IndexConfig != nil {
					for i := range cur.IndexConfig.Indexes {
						cur.IndexConfig.Indexes[i].State = model.IndexReady
					}
				}
				if cur.TTLConfig != nil {
					cur.TTLConfig.State = model.TTLActive
				}
			}
			return *s.effectiveFieldLocked(db, n), nil
		},
	})
}

func indexDeltas(before, after []model.Index) []model.IndexConfigDelta {
	has := func(list []model.Index, ix *model.Index) bool {
		for i := range list {
			if list[i].Key() == ix.Key() {
				return true
			}
		}
		return false
	}
	var out []model.IndexConfigDelta
	for i := range after {
		if !has(before, &after[i]) {
			out = append(out, model.IndexConfigDelta{ChangeType: model.ChangeAdd, Index: cloneIndex(&after[i])})
		}
	}
	for i := range before {
		if !has(after, &before[i]) {
			out = append(out, model.IndexConfigDelta{ChangeType: model.ChangeRemove, Index: cloneIndex(&before[i])})
		}
	}
	return out
}

func (s *Server) listFields(_ context.Context, req *model.ListFieldsRequest) (*model.ListFieldsResponse, error) {
	overridesOnly := false
	switch strings.ReplaceAll(req.Filter, " ", "") {
	case "":
	case usesAncestorFilter:
		overridesOnly = true
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unsupported filter %q, only %q is supported", req.Filter, usesAncestorFilter)
	}

	s.mu.Lock()
	db, cg, err := s.collectionGroupLocked(req.Parent)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	prefix := cg.String() + "/fields/"
	if cg.Collection == allGroups {
		prefix = cg.Parent().String() + "/collectionGroups/"
	}
	var out []*model.Field
	for _, name := range sortedKeys(db.fields) {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		n, err := resource.ParseFieldName(name)
		if err != nil {
			continue
		}
		f := s.effectiveFieldLocked(db, n)
		if overridesOnly && f.IndexConfig.UsesAncestorConfig && f.TTLConfig == nil {
			continue
		}
		out = append(out, f)
	}
	if !overridesOnly && cg.Collection != allGroups {
		wild := cg.Field(wildcard)
		if _, ok := db.fields[wild.String()]; !ok {
			out = append([]*model.Field{s.effectiveFieldLocked(db, wild)}, out...)
		}
	}
	s.mu.Unlock()

	page, next, err := pageOf(out, req.PageSize, req.PageToken)
	if err != nil {
		return nil, err
	}
	return &model.ListFieldsResponse{Fields: page, NextPageToken: next}, nil
}
