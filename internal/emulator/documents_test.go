package emulator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/firestore"
	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/paging"
)

func TestCreateAndGetDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc := putUser(t, env, "alice", map[string]any{"age": 30, "address": map[string]any{"city": "Oslo"}})
	assert.Equal(t, testRoot+"/users/alice", doc.Name)
	require.NotNil(t, doc.CreateTime)
	assert.Equal(t, doc.CreateTime, doc.UpdateTime)

	got, err := env.data.GetDocument(ctx, &model.GetDocumentRequest{
		Name: doc.Name,
		Mask: &model.DocumentMask{FieldPaths: []string{"address.city"}},
	})
	require.NoError(t, err)
	assert.NotContains(t, got.Fields, "age")
	city, ok := model.GetField(got.Fields, "address.city")
	require.True(t, ok)
	assert.Equal(t, "Oslo", *city.StringValue)

	_, err = env.data.CreateDocument(ctx, &model.CreateDocumentRequest{
		Parent: testRoot, CollectionID: "users", DocumentID: "alice", Document: &model.Document{},
	})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	auto, err := env.data.CreateDocument(ctx, &model.CreateDocumentRequest{
		Parent: testRoot, CollectionID: "users", Document: &model.Document{},
	})
	require.NoError(t, err)
	assert.Len(t, auto.Name, len(testRoot+"/users/")+20)
}

func TestCreateDocument_Subcollection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc, err := env.data.CreateDocument(ctx, &model.CreateDocumentRequest{
		Parent:       testRoot + "/users/alice",
		CollectionID: "posts",
		DocumentID:   "p1",
		Document:     &model.Document{Fields: map[string]*model.Value{"title": model.StringValue("hi")}},
	})
	require.NoError(t, err)
	assert.Equal(t, testRoot+"/users/alice/posts/p1", doc.Name)

	got, err := env.data.GetDocument(ctx, &model.GetDocumentRequest{Name: doc.Name})
	require.NoError(t, err)
	assert.Equal(t, "hi", *got.Fields["title"].StringValue)
}

func TestUpdateDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orig := putUser(t, env, "alice", map[string]any{"age": 30, "city": "Oslo"})

	updated, err := env.data.UpdateDocument(ctx, &model.UpdateDocumentRequest{
		Document: &model.Document{Name: orig.Name, Fields: map[string]*model.Value{
			"age":  model.IntegerValue(31),
			"city": model.StringValue("ignored"),
		}},
		UpdateMask: &model.DocumentMask{FieldPaths: []string{"age", "nickname"}},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 31, *updated.Fields["age"].IntegerValue)
	assert.Equal(t, "Oslo", *updated.Fields["city"].StringValue, "fields outside the mask are kept")
	assert.NotContains(t, updated.Fields, "nickname", "masked fields missing from the update are deleted")
	assert.Equal(t, orig.CreateTime, updated.CreateTime)
	assert.True(t, updated.UpdateTime.After(*orig.UpdateTime))

	t.Run("stale update time", func(t *testing.T) {
		_, err := env.data.UpdateDocument(ctx, &model.UpdateDocumentRequest{
			Document:        &model.Document{Name: orig.Name},
			CurrentDocument: &model.Precondition{UpdateTime: orig.UpdateTime},
		})
		assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	})

	t.Run("must exist", func(t *testing.T) {
		exists := true
		_, err := env.data.UpdateDocument(ctx, &model.UpdateDocumentRequest{
			Document:        &model.Document{Name: testRoot + "/users/nobody"},
			CurrentDocument: &model.Precondition{Exists: &exists},
		})
		assert.Equal(t, codes.NotFound, status.Code(err))
	})

	t.Run("upsert", func(t *testing.T) {
		doc, err := env.data.UpdateDocument(ctx, &model.UpdateDocumentRequest{
			Document: &model.Document{Name: testRoot + "/users/carol", Fields: map[string]*model.Value{"age": model.IntegerValue(5)}},
		})
		require.NoError(t, err)
		assert.Equal(t, doc.CreateTime, doc.UpdateTime)
	})
}

func TestDeleteDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := putUser(t, env, "alice", map[string]any{"age": 30})

	exists := true
	require.NoError(t, env.data.DeleteDocument(ctx, &model.DeleteDocumentRequest{Name: doc.Name, CurrentDocument: &model.Precondition{Exists: &exists}}))
	_, err := env.data.GetDocument(ctx, &model.GetDocumentRequest{Name: doc.Name})
	assert.Equal(t, codes.NotFound, status.Code(err))

	err = env.data.DeleteDocument(ctx, &model.DeleteDocumentRequest{Name: doc.Name, CurrentDocument: &model.Precondition{Exists: &exists}})
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.NoError(t, env.data.DeleteDocument(ctx, &model.DeleteDocumentRequest{Name: doc.Name}), "deleting a missing document is not an error")
}

func TestListDocuments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	putUser(t, env, "carol", map[string]any{"age": 25})
	putUser(t, env, "alice", map[string]any{"age": 30})
	putUser(t, env, "bob", map[string]any{"age": 41})
	_, err := env.data.CreateDocument(ctx, &model.CreateDocumentRequest{
		Parent: testRoot + "/users/ghost", CollectionID: "posts", DocumentID: "p1", Document: &model.Document{},
	})
	require.NoError(t, err)

	names := func(docs []*model.Document) []string {
		var out []string
		for _, d := range docs {
			out = append(out, documentPath(d.Name))
		}
		return out
	}

	docs, err := paging.Collect(env.data.ListDocuments(ctx, &model.ListDocumentsRequest{Parent: testRoot, CollectionID: "users", PageSize: 2}), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"users/alice", "users/bob", "users/carol"}, names(docs))

	docs, err = paging.Collect(env.data.ListDocuments(ctx, &model.ListDocumentsRequest{Parent: testRoot, CollectionID: "users", OrderBy: "age desc"}), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"users/bob", "users/alice", "users/carol"}, names(docs))

	docs, err = paging.Collect(env.data.ListDocuments(ctx, &model.ListDocumentsRequest{Parent: testRoot, CollectionID: "users", ShowMissing: true}), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"users/alice", "users/bob", "users/carol", "users/ghost"}, names(docs))
	assert.Nil(t, docs[3].CreateTime, "missing documents carry only a name")

	_, err = paging.Collect(env.data.ListDocuments(ctx, &model.ListDocumentsRequest{Parent: testRoot, CollectionID: "users", OrderBy: "age sideways"}), 0)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestBatchGetDocuments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	putUser(t, env, "alice", map[string]any{"age": 30})

	var found, missing []string
	var txID []byte
	for resp, err := range env.data.BatchGetDocuments(ctx, &model.BatchGetDocumentsRequest{
		Database:       testDB,
		Documents:      []string{testRoot + "/users/alice", testRoot + "/users/nobody"},
		NewTransaction: &model.TransactionOptions{ReadOnly: &model.ReadOnlyOptions{}},
	}) {
		require.NoError(t, err)
		switch {
		case len(resp.Transaction) > 0:
			txID = resp.Transaction
		case resp.Found != nil:
			found = append(found, resp.Found.Name)
		default:
			missing = append(missing, resp.Missing)
		}
	}
	assert.NotEmpty(t, txID)
	assert.Equal(t, []string{testRoot + "/users/alice"}, found)
	assert.Equal(t, []string{testRoot + "/users/nobody"}, missing)

	require.NoError(t, env.data.Rollback(ctx, &model.RollbackRequest{Database: testDB, Transaction: txID}))
	err := env.data.Rollback(ctx, &model.RollbackRequest{Database: testDB, Transaction: txID})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestCommit_Atomic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	putUser(t, env, "alice", map[string]any{"age": 30})

	exists := false
	_, err := env.data.Commit(ctx, &model.CommitRequest{
		Database: testDB,
		Writes: []model.Write{
			{Update: &model.Document{Name: testRoot + "/users/bob"}},
			{Update: &model.Document{Name: testRoot + "/users/alice"}, CurrentDocument: &model.Precondition{Exists: &exists}},
		},
	})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = env.data.GetDocument(ctx, &model.GetDocumentRequest{Name: testRoot + "/users/bob"})
	assert.Equal(t, codes.NotFound, status.Code(err), "no write of a failed commit is applied")

	resp, err := env.data.Commit(ctx, &model.CommitRequest{
		Database: testDB,
		Writes: []model.Write{
			{Update: &model.Document{Name: testRoot + "/users/bob"}},
			{Delete: testRoot + "/users/alice"},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.WriteResults, 2)
	require.NotNil(t, resp.CommitTime)
	assert.Equal(t, resp.CommitTime, resp.WriteResults[0].UpdateTime)
	assert.Nil(t, resp.WriteResults[1].UpdateTime)
}

func TestCommit_CommitTimesIncrease(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	var last *model.CommitResponse
	for i := 0; i < 5; i++ {
		resp, err := env.data.Commit(ctx, &model.CommitRequest{
			Database: testDB,
			Writes:   []model.Write{{Update: &model.Document{Name: testRoot + "/counters/c"}}},
		})
		require.NoError(t, err)
		if last != nil {
			assert.True(t, resp.CommitTime.After(*last.CommitTime))
		}
		last = resp
	}
}

func TestRunTransaction_RetriesOnConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	name := testRoot + "/counters/visits"
	_, err := env.data.UpdateDocument(ctx, &model.UpdateDocumentRequest{
		Document: &model.Document{Name: name, Fields: map[string]*model.Value{"n": model.IntegerValue(1)}},
	})
	require.NoError(t, err)

	attempts := 0
	_, err = env.data.RunTransaction(ctx, testDB, func(ctx context.Context, tx *firestore.Transaction) error {
		attempts++
		doc, err := tx.Get(ctx, name)
		if err != nil {
			return err
		}
		n := *doc.Fields["n"].IntegerValue
		if attempts == 1 {
			// A write outside the transaction invalidates the read.
			_, err := env.data.UpdateDocument(ctx, &model.UpdateDocumentRequest{
				Document: &model.Document{Name: name, Fields: map[string]*model.Value{"n": model.IntegerValue(10)}},
			})
			if err != nil {
				return err
			}
		}
		return tx.Set(&model.Document{Name: name, Fields: map[string]*model.Value{"n": model.IntegerValue(n + 1)}})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	doc, err := env.data.GetDocument(ctx, &model.GetDocumentRequest{Name: name})
	require.NoError(t, err)
	assert.EqualValues(t, 11, *doc.Fields["n"].IntegerValue)
}

func TestRunTransaction_GivesUpAfterMaxAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	name := testRoot + "/users/dave"

	attempts := 0
	_, err := env.data.RunTransaction(ctx, testDB, func(ctx context.Context, tx *firestore.Transaction) error {
		attempts++
		// The first read finds nothing, later ones the concurrent write.
		if _, err := tx.Get(ctx, name); err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if _, err := env.data.UpdateDocument(ctx, &model.UpdateDocumentRequest{Document: &model.Document{Name: name}}); err != nil {
			return err
		}
		return tx.Set(&model.Document{Name: name})
	}, firestore.MaxAttempts(2))
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, codes.Aborted, status.Code(err))
}

func TestRunTransaction_FnErrorRollsBack(t *testing.T) {
	env := newTestEnv(t)
	boom := errors.New("boom")
	_, err := env.data.RunTransaction(context.Background(), testDB, func(ctx context.Context, tx *firestore.Transaction) error {
		require.NoError(t, tx.Set(&model.Document{Name: testRoot + "/users/erin"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = env.data.GetDocument(context.Background(), &model.GetDocumentRequest{Name: testRoot + "/users/erin"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestCommit_ReadOnlyTransactionRejectsWrites(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	begin, err := env.data.BeginTransaction(ctx, &model.BeginTransactionRequest{
		Database: testDB,
		Options:  &model.TransactionOptions{ReadOnly: &model.ReadOnlyOptions{}},
	})
	require.NoError(t, err)

	_, err = env.data.Commit(ctx, &model.CommitRequest{
		Database:    testDB,
		Transaction: begin.Transaction,
		Writes:      []model.Write{{Update: &model.Document{Name: testRoot + "/users/x"}}},
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = env.data.Commit(ctx, &model.CommitRequest{Database: testDB, Transaction: []byte("unknown")})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestBatchWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	putUser(t, env, "alice", map[string]any{"age": 30})

	exists := false
	resp, err := env.data.BatchWrite(ctx, &model.BatchWriteRequest{
		Database: testDB,
		Writes: []model.Write{
			{Update: &model.Document{Name: testRoot + "/users/bob"}},
			{Update: &model.Document{Name: testRoot + "/users/alice"}, CurrentDocument: &model.Precondition{Exists: &exists}},
			{Delete: testRoot + "/users/nobody"},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Status, 3)
	assert.EqualValues(t, codes.OK, resp.Status[0].Code)
	assert.EqualValues(t, codes.AlreadyExists, resp.Status[1].Code)
	assert.EqualValues(t, codes.OK, resp.Status[2].Code)
	assert.NotNil(t, resp.WriteResults[0].UpdateTime)

	_, err = env.data.GetDocument(ctx, &model.GetDocumentRequest{Name: testRoot + "/users/bob"})
	assert.NoError(t, err, "writes apply independently")

	_, err = env.data.BatchWrite(ctx, &model.BatchWriteRequest{
		Database: testDB,
		Writes: []model.Write{
			{Update: &model.Document{Name: testRoot + "/users/bob"}},
			{Delete: testRoot + "/users/bob"},
		},
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
