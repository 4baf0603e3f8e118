package emulator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/paging"
)

func TestGetField_InheritsDefaults(t *testing.T) {
	env := newTestEnv(t)
	f, err := env.admin.GetField(context.Background(), &model.GetFieldRequest{Name: usersGroup + "/fields/age"})
	require.NoError(t, err)

	require.NotNil(t, f.IndexConfig)
	assert.True(t, f.IndexConfig.UsesAncestorConfig)
	assert.Equal(t, testDB+"/collectionGroups/__default__/fields/*", f.IndexConfig.AncestorField)
	require.Len(t, f.IndexConfig.Indexes, 3)
	for _, ix := range f.IndexConfig.Indexes {
		assert.Equal(t, "age", ix.Fields[0].FieldPath)
	}
	assert.Nil(t, f.TTLConfig)
}

func TestUpdateField_ExemptIndexes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	name := usersGroup + "/fields/bio"

	op, err := env.admin.UpdateField(ctx, &model.UpdateFieldRequest{
		Field:      &model.Field{Name: name, IndexConfig: &model.FieldIndexConfig{}},
		UpdateMask: model.NewFieldMask("indexConfig"),
	})
	require.NoError(t, err)
	f, err := op.Wait(ctx)
	require.NoError(t, err)
	assert.False(t, f.IndexConfig.UsesAncestorConfig)
	assert.Empty(t, f.IndexConfig.Indexes)

	meta, err := op.Metadata()
	require.NoError(t, err)
	assert.Equal(t, name, meta.Field)
	require.Len(t, meta.IndexConfigDeltas, 3)
	for _, d := range meta.IndexConfigDeltas {
		assert.Equal(t, model.ChangeRemove, d.ChangeType)
	}

	overrides, err := paging.Collect(env.admin.ListFields(ctx, &model.ListFieldsRequest{
		Parent: usersGroup,
		Filter: "indexConfig.usesAncestorConfig:false",
	}), 0)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, name, overrides[0].Name)

	all, err := paging.Collect(env.admin.ListFields(ctx, &model.ListFieldsRequest{Parent: usersGroup}), 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, usersGroup+"/fields/*", all[0].Name)
}

func TestUpdateField_TTL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	name := usersGroup + "/fields/expireAt"

	op, err := env.admin.UpdateField(ctx, &model.UpdateFieldRequest{
		Field:      &model.Field{Name: name, TTLConfig: &model.TTLConfig{}},
		UpdateMask: model.NewFieldMask("ttlConfig"),
	})
	require.NoError(t, err)
	f, err := op.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, f.TTLConfig)
	assert.Equal(t, model.TTLActive, f.TTLConfig.State)
	assert.True(t, f.IndexConfig.UsesAncestorConfig, "index config is still inherited")

	meta, err := op.Metadata()
	require.NoError(t, err)
	require.NotNil(t, meta.TTLConfigDelta)
	assert.Equal(t, model.ChangeAdd, meta.TTLConfigDelta.ChangeType)

	op, err = env.admin.UpdateField(ctx, &model.UpdateFieldRequest{
		Field:      &model.Field{Name: name},
		UpdateMask: model.NewFieldMask("ttlConfig"),
	})
	require.NoError(t, err)
	f, err = op.Wait(ctx)
	require.NoError(t, err)
	assert.Nil(t, f.TTLConfig)
	meta, err = op.Metadata()
	require.NoError(t, err)
	assert.Equal(t, model.ChangeRemove, meta.TTLConfigDelta.ChangeType)
}

func TestUpdateField_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.admin.UpdateField(ctx, &model.UpdateFieldRequest{
		Field:      &model.Field{Name: usersGroup + "/fields/*", TTLConfig: &model.TTLConfig{}},
		UpdateMask: model.NewFieldMask("ttlConfig"),
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = env.admin.UpdateField(ctx, &model.UpdateFieldRequest{
		Field:      &model.Field{Name: usersGroup + "/fields/age"},
		UpdateMask: model.NewFieldMask("name"),
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = paging.Collect(env.admin.ListFields(ctx, &model.ListFieldsRequest{Parent: usersGroup, Filter: "ttlConfig:*"}), 0)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestUpdateField_DefaultWildcardChangesInheritance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	op, err := env.admin.UpdateField(ctx, &model.UpdateFieldRequest{
		Field: &model.Field{
			Name: testDB + "/collectionGroups/__default__/fields/*",
			IndexConfig: &model.FieldIndexConfig{Indexes: []model.Index{{
				Fields: []model.IndexField{{FieldPath: "*", Order: model.Ascending}},
			}}},
		},
	})
	require.NoError(t, err)
	_, err = op.Wait(ctx)
	require.NoError(t, err)

	f, err := env.admin.GetField(ctx, &model.GetFieldRequest{Name: usersGroup + "/fields/age"})
	require.NoError(t, err)
	require.Len(t, f.IndexConfig.Indexes, 1)
	assert.Equal(t, model.Ascending, f.IndexConfig.Indexes[0].Fields[0].Order)
	assert.Equal(t, "age", f.IndexConfig.Indexes[0].Fields[0].FieldPath)
}
