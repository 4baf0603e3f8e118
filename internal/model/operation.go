package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const typePrefix = "type.googleapis.com/"

// Operation is a google.longrunning.Operation. Metadata and Response are
// packed Any messages: a JSON object carrying "@type" next to the fields.
type Operation struct {
	Name     string          `json:"name,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Done     bool            `json:"done,omitempty"`
	Error    *Status         `json:"error,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Status is a google.rpc.Status.
type Status struct {
	Code    int32             `json:"code,omitempty"`
	Message string            `json:"message,omitempty"`
	Details []json.RawMessage `json:"details,omitempty"`
}

// Progress measures work done by an operation.
type Progress struct {
	EstimatedWork int64 `json:"estimatedWork,omitempty,string"`
	CompletedWork int64 `json:"completedWork,omitempty,string"`
}

// Message is implemented by types that can travel inside an Any.
type Message interface {
	TypeURL() string
}

// PackAny encodes m as a JSON Any.
func PackAny(m Message) (json.RawMessage, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	typ, err := json.Marshal(m.TypeURL())
	if err != nil {
		return nil, err
	}
	if string(body) == "{}" {
		return json.RawMessage(`{"@type":` + string(typ) + `}`), nil
	}
	return json.RawMessage(`{"@type":` + string(typ) + `,` + string(body[1:])), nil
}

// UnpackAny decodes a JSON Any into m, checking the type when present.
func UnpackAny(raw json.RawMessage, m Message) error {
	var head struct {
		Type string `json:"@type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return fmt.Errorf("decode any: %w", err)
	}
	if head.Type != "" && head.Type != m.TypeURL() {
		return fmt.Errorf("any holds %s, want %s", head.Type, m.TypeURL())
	}
	return json.Unmarshal(raw, m)
}

// AnyType returns the short message name packed in raw, or "".
func AnyType(raw json.RawMessage) string {
	var head struct {
		Type string `json:"@type"`
	}
	if json.Unmarshal(raw, &head) != nil {
		return ""
	}
	return strings.TrimPrefix(head.Type, typePrefix)
}

type Empty struct{}

func (Empty) TypeURL() string { return typePrefix + "google.protobuf.Empty" }

type IndexOperationMetadata struct {
	StartTime         *time.Time     `json:"startTime,omitempty"`
	EndTime           *time.Time     `json:"endTime,omitempty"`
	Index             string         `json:"index,omitempty"`
	State             OperationState `json:"state,omitempty"`
	ProgressDocuments *Progress      `json:"progressDocuments,omitempty"`
	ProgressBytes     *Progress      `json:"progressBytes,omitempty"`
}

func (IndexOperationMetadata) TypeURL() string {
	return typePrefix + "google.firestore.admin.v1.IndexOperationMetadata"
}

type FieldOperationMetadata struct {
	StartTime         *time.Time         `json:"startTime,omitempty"`
	EndTime           *time.Time         `json:"endTime,omitempty"`
	Field             string             `json:"field,omitempty"`
	IndexConfigDeltas []IndexConfigDelta `json:"indexConfigDeltas,omitempty"`
	State             OperationState     `json:"state,omitempty"`
	ProgressDocuments *Progress          `json:"progressDocuments,omitempty"`
	ProgressBytes     *Progress          `json:"progressBytes,omitempty"`
	TTLConfigDelta    *TTLConfigDelta    `json:"ttlConfigDelta,omitempty"`
}

func (FieldOperationMetadata) TypeURL() string {
	return typePrefix + "google.firestore.admin.v1.FieldOperationMetadata"
}

type IndexConfigDelta struct {
	ChangeType ChangeType `json:"changeType,omitempty"`
	Index      *Index     `json:"index,omitempty"`
}

type TTLConfigDelta struct {
	ChangeType ChangeType `json:"changeType,omitempty"`
}

type ExportDocumentsMetadata struct {
	StartTime         *time.Time     `json:"startTime,omitempty"`
	EndTime           *time.Time     `json:"endTime,omitempty"`
	OperationState    OperationState `json:"operationState,omitempty"`
	ProgressDocuments *Progress      `json:"progressDocuments,omitempty"`
	ProgressBytes     *Progress      `json:"progressBytes,omitempty"`
	CollectionIDs     []string       `json:"collectionIds,omitempty"`
	OutputURIPrefix   string         `json:"outputUriPrefix,omitempty"`
	NamespaceIDs      []string       `json:"namespaceIds,omitempty"`
	SnapshotTime      *time.Time     `json:"snapshotTime,omitempty"`
}

func (ExportDocumentsMetadata) TypeURL() string {
	return typePrefix + "google.firestore.admin.v1.ExportDocumentsMetadata"
}

type ImportDocumentsMetadata struct {
	StartTime         *time.Time     `json:"startTime,omitempty"`
	EndTime           *time.Time     `json:"endTime,omitempty"`
	OperationState    OperationState `json:"operationState,omitempty"`
	ProgressDocuments *Progress      `json:"progressDocuments,omitempty"`
	ProgressBytes     *Progress      `json:"progressBytes,omitempty"`
	CollectionIDs     []string       `json:"collectionIds,omitempty"`
	InputURIPrefix    string         `json:"inputUriPrefix,omitempty"`
	NamespaceIDs      []string       `json:"namespaceIds,omitempty"`
}

func (ImportDocumentsMetadata) TypeURL() string {
	return typePrefix + "google.firestore.admin.v1.ImportDocumentsMetadata"
}

type BulkDeleteDocumentsMetadata struct {
	StartTime         *time.Time     `json:"startTime,omitempty"`
	EndTime           *time.Time     `json:"endTime,omitempty"`
	OperationState    OperationState `json:"operationState,omitempty"`
	ProgressDocuments *Progress      `json:"progressDocuments,omitempty"`
	ProgressBytes     *Progress      `json:"progressBytes,omitempty"`
	CollectionIDs     []string       `json:"collectionIds,omitempty"`
	NamespaceIDs      []string       `json:"namespaceIds,omitempty"`
	SnapshotTime      *time.Time     `json:"snapshotTime,omitempty"`
}

func (BulkDeleteDocumentsMetadata) TypeURL() string {
	return typePrefix + "google.firestore.admin.v1.BulkDeleteDocumentsMetadata"
}

type CreateDatabaseMetadata struct{}

func (CreateDatabaseMetadata) TypeURL() string {
	return typePrefix + "google.firestore.admin.v1.CreateDatabaseMetadata"
}

type UpdateDatabaseMetadata struct{}

func (UpdateDatabaseMetadata) TypeURL() string {
	return typePrefix + "google.firestore.admin.v1.UpdateDatabaseMetadata"
}

type DeleteDatabaseMetadata struct{}

func (DeleteDatabaseMetadata) TypeURL() string {
	return typePrefix + "google.firestore.admin.v1.DeleteDatabaseMetadata"
}

type RestoreDatabaseMetadata struct {
	StartTime          *time.Time     `json:"startTime,omitempty"`
	EndTime            *time.Time     `json:"endTime,omitempty"`
	OperationState     OperationState `json:"operationState,omitempty"`
	Database           string         `json:"database,omitempty"`
	Backup             string         `json:"backup,omitempty"`
	ProgressPercentage *Progress      `json:"progressPercentage,omitempty"`
}

func (RestoreDatabaseMetadata) TypeURL() string {
	return typePrefix + "google.firestore.admin.v1.RestoreDatabaseMetadata"
}

// ExportDocumentsResponse is the result of a finished export.
type ExportDocumentsResponse struct {
	OutputURIPrefix string `json:"outputUriPrefix,omitempty"`
}

func (ExportDocumentsResponse) TypeURL() string {
	return typePrefix + "google.firestore.admin.v1.ExportDocumentsResponse"
}

type BulkDeleteDocumentsResponse struct{}

func (BulkDeleteDocumentsResponse) TypeURL() string {
	return typePrefix + "google.firestore.admin.v1.BulkDeleteDocumentsResponse"
}

func (Index) TypeURL() string    { return typePrefix + "google.firestore.admin.v1.Index" }
func (Field) TypeURL() string    { return typePrefix + "google.firestore.admin.v1.Field" }
func (Database) TypeURL() string { return typePrefix + "google.firestore.admin.v1.Database" }
