package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackAny(t *testing.T) {
	meta := &IndexOperationMetadata{
		Index:             "projects/p/databases/d/collectionGroups/c/indexes/i",
		State:             OperationProcessing,
		ProgressDocuments: &Progress{EstimatedWork: 10, CompletedWork: 3},
	}
	raw, err := PackAny(meta)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"@type":"type.googleapis.com/google.firestore.admin.v1.IndexOperationMetadata"`)
	assert.Contains(t, string(raw), `"estimatedWork":"10"`)
	assert.Equal(t, "google.firestore.admin.v1.IndexOperationMetadata", AnyType(raw))

	var back IndexOperationMetadata
	require.NoError(t, UnpackAny(raw, &back))
	assert.Equal(t, *meta, back)

	var wrong FieldOperationMetadata
	err = UnpackAny(raw, &wrong)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want type.googleapis.com/google.firestore.admin.v1.FieldOperationMetadata")
}

func TestPackAny_Empty(t *testing.T) {
	raw, err := PackAny(Empty{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"@type":"type.googleapis.com/google.protobuf.Empty"}`, string(raw))

	var e Empty
	assert.NoError(t, UnpackAny(raw, &e))
}

func TestDuration_JSON(t *testing.T) {
	b, err := json.Marshal(BackupSchedule{Retention: NewDuration(7 * 24 * time.Hour)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"retention":"604800s"}`, string(b))

	var s BackupSchedule
	require.NoError(t, json.Unmarshal([]byte(`{"retention":"1.5s"}`), &s))
	assert.Equal(t, 1500*time.Millisecond, s.Retention.Duration)

	assert.Error(t, json.Unmarshal([]byte(`{"retention":"soon"}`), &s))
}

func TestFieldMask_JSON(t *testing.T) {
	b, err := json.Marshal(UpdateDatabaseRequest{
		Database:   &Database{Name: "projects/p/databases/d"},
		UpdateMask: NewFieldMask("deleteProtectionState", "concurrencyMode"),
	})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"updateMask":"deleteProtectionState,concurrencyMode"`)

	var m FieldMask
	require.NoError(t, json.Unmarshal([]byte(`"a, b,,c"`), &m))
	assert.Equal(t, []string{"a", "b", "c"}, m.Paths)
	assert.True(t, m.Has("b"))
	assert.False(t, (*FieldMask)(nil).Has("b"))
}

func TestInt64AsString(t *testing.T) {
	b, err := json.Marshal(BackupStats{SizeBytes: 1 << 40, DocumentCount: 7})
	require.NoError(t, err)
	assert.JSONEq(t, `{"sizeBytes":"1099511627776","documentCount":"7"}`, string(b))
}

func TestIndexKey(t *testing.T) {
	a := &Index{Name: "x", QueryScope: QueryScopeCollection, Fields: []IndexField{{FieldPath: "a", Order: Ascending}, {FieldPath: "b", Order: Descending}}}
	b := &Index{Name: "y", State: IndexReady, QueryScope: QueryScopeCollection, Fields: []IndexField{{FieldPath: "a", Order: Ascending}, {FieldPath: "b", Order: Descending}}}
	c := &Index{QueryScope: QueryScopeCollectionGroup, Fields: a.Fields}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(&GetIndexRequest{Name: "n"}))

	err := Validate(&CreateIndexRequest{Parent: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Index")

	assert.Error(t, Validate((*GetIndexRequest)(nil)))
	assert.Error(t, Validate(&BatchWriteRequest{Database: "d", Writes: make([]Write, 501)}))
	assert.NoError(t, Validate("not a struct"))
}
