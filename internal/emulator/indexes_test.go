package emulator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/config"
	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/paging"
)

const usersGroup = testDB + "/collectionGroups/users"

func userIndex(fields ...model.IndexField) *model.Index {
	if len(fields) == 0 {
		fields = []model.IndexField{
			{FieldPath: "city", Order: model.Ascending},
			{FieldPath: "age", Order: model.Descending},
		}
	}
	return &model.Index{Fields: fields}
}

func TestCreateIndex(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	op, err := env.admin.CreateIndex(ctx, &model.CreateIndexRequest{Parent: usersGroup, Index: userIndex()})
	require.NoError(t, err)
	ix, err := op.Wait(ctx)
	require.NoError(t, err)

	assert.Contains(t, ix.Name, usersGroup+"/indexes/")
	assert.Equal(t, model.IndexReady, ix.State)
	assert.Equal(t, model.QueryScopeCollection, ix.QueryScope)
	assert.Equal(t, model.AnyAPI, ix.APIScope)

	meta, err := op.Metadata()
	require.NoError(t, err)
	assert.Equal(t, ix.Name, meta.Index)
	assert.Equal(t, model.OperationSuccessful, meta.State)
	assert.NotNil(t, meta.EndTime)

	got, err := env.admin.GetIndex(ctx, &model.GetIndexRequest{Name: ix.Name})
	require.NoError(t, err)
	assert.Equal(t, ix.Fields, got.Fields)

	_, err = env.admin.CreateIndex(ctx, &model.CreateIndexRequest{Parent: usersGroup, Index: userIndex()})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
}

func TestCreateIndex_InvalidFields(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name  string
		index *model.Index
	}{
		{"no fields", &model.Index{}},
		{"order and array config", userIndex(model.IndexField{FieldPath: "tags", Order: model.Ascending, ArrayConfig: model.ArrayContains})},
		{"neither", userIndex(model.IndexField{FieldPath: "tags"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.admin.CreateIndex(context.Background(), &model.CreateIndexRequest{Parent: usersGroup, Index: tt.index})
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestListAndDeleteIndexes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, parent := range []string{usersGroup, testDB + "/collectionGroups/orders"} {
		op, err := env.admin.CreateIndex(ctx, &model.CreateIndexRequest{Parent: parent, Index: userIndex()})
		require.NoError(t, err)
		_, err = op.Wait(ctx)
		require.NoError(t, err)
	}

	users, err := paging.Collect(env.admin.ListIndexes(ctx, &model.ListIndexesRequest{Parent: usersGroup}), 0)
	require.NoError(t, err)
	require.Len(t, users, 1)

	all, err := paging.Collect(env.admin.ListIndexes(ctx, &model.ListIndexesRequest{Parent: testDB + "/collectionGroups/-", PageSize: 1}), 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, env.admin.DeleteIndex(ctx, &model.DeleteIndexRequest{Name: users[0].Name}))
	_, err = env.admin.GetIndex(ctx, &model.GetIndexRequest{Name: users[0].Name})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = paging.Collect(env.admin.ListIndexes(ctx, &model.ListIndexesRequest{Parent: usersGroup, Filter: "state=READY"}), 0)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestCreateIndex_CancelWhileRunning(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.EmulatorOperationDelay = time.Hour })
	ctx := context.Background()

	op, err := env.admin.CreateIndex(ctx, &model.CreateIndexRequest{Parent: usersGroup, Index: userIndex()})
	require.NoError(t, err)
	require.False(t, op.Done())

	meta, err := op.Metadata()
	require.NoError(t, err)
	ix, err := env.admin.GetIndex(ctx, &model.GetIndexRequest{Name: meta.Index})
	require.NoError(t, err)
	assert.Equal(t, model.IndexCreating, ix.State)

	running, err := paging.Collect(env.admin.ListOperations(ctx, &model.ListOperationsRequest{Name: testDB, Filter: "done=false"}), 0)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, op.Name(), running[0].Name)

	require.NoError(t, op.Cancel(ctx))
	_, err = op.Wait(ctx)
	assert.Equal(t, codes.Canceled, status.Code(err))

	meta, err = op.Metadata()
	require.NoError(t, err)
	assert.Equal(t, model.OperationCancelled, meta.State)

	_, err = env.admin.GetIndex(ctx, &model.GetIndexRequest{Name: ix.Name})
	assert.Equal(t, codes.NotFound, status.Code(err), "cancelled index is removed")

	require.NoError(t, op.Delete(ctx))
	_, err = env.admin.GetOperation(ctx, &model.GetOperationRequest{Name: op.Name()})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestCreateIndex_CompletesAfterDelay(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.EmulatorOperationDelay = 20 * time.Millisecond })
	ctx := context.Background()

	op, err := env.admin.CreateIndex(ctx, &model.CreateIndexRequest{Parent: usersGroup, Index: userIndex()})
	require.NoError(t, err)
	assert.False(t, op.Done())

	ix, err := op.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.IndexReady, ix.State)
	assert.True(t, op.Done())
}
