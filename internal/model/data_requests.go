package model

import "time"

type GetDocumentRequest struct {
	Name        string        `json:"name" validate:"required"`
	Mask        *DocumentMask `json:"mask,omitempty"`
	Transaction []byte        `json:"transaction,omitempty"`
	ReadTime    *time.Time    `json:"readTime,omitempty"`
}

type ListDocumentsRequest struct {
	Parent       string        `json:"parent" validate:"required"`
	CollectionID string        `json:"collectionId" validate:"required"`
	PageSize     int32         `json:"pageSize,omitempty" validate:"gte=0"`
	PageToken    string        `json:"pageToken,omitempty"`
	OrderBy      string        `json:"orderBy,omitempty"`
	Mask         *DocumentMask `json:"mask,omitempty"`
	Transaction  []byte        `json:"transaction,omitempty"`
	ReadTime     *time.Time    `json:"readTime,omitempty"`
	ShowMissing  bool          `json:"showMissing,omitempty"`
}

type ListDocumentsResponse struct {
	Documents     []*Document `json:"documents,omitempty"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
}

type CreateDocumentRequest struct {
	Parent       string        `json:"parent" validate:"required"`
	CollectionID string        `json:"collectionId" validate:"required"`
	DocumentID   string        `json:"documentId,omitempty"`
	Document     *Document     `json:"document" validate:"required"`
	Mask         *DocumentMask `json:"mask,omitempty"`
}

type UpdateDocumentRequest struct {
	Document        *Document     `json:"document" validate:"required"`
	UpdateMask      *DocumentMask `json:"updateMask,omitempty"`
	Mask            *DocumentMask `json:"mask,omitempty"`
	CurrentDocument *Precondition `json:"currentDocument,omitempty"`
}

type DeleteDocumentRequest struct {
	Name            string        `json:"name" validate:"required"`
	CurrentDocument *Precondition `json:"currentDocument,omitempty"`
}

type BatchGetDocumentsRequest struct {
	Database       string              `json:"database" validate:"required"`
	Documents      []string            `json:"documents,omitempty"`
	Mask           *DocumentMask       `json:"mask,omitempty"`
	Transaction    []byte              `json:"transaction,omitempty"`
	NewTransaction *TransactionOptions `json:"newTransaction,omitempty"`
	ReadTime       *time.Time          `json:"readTime,omitempty"`
}

// BatchGetDocumentsResponse sets exactly one of Found and Missing.
type BatchGetDocumentsResponse struct {
	Found       *Document  `json:"found,omitempty"`
	Missing     string     `json:"missing,omitempty"`
	Transaction []byte     `json:"transaction,omitempty"`
	ReadTime    *time.Time `json:"readTime,omitempty"`
}

type BeginTransactionRequest struct {
	Database string              `json:"database" validate:"required"`
	Options  *TransactionOptions `json:"options,omitempty"`
}

type BeginTransactionResponse struct {
	Transaction []byte `json:"transaction,omitempty"`
}

type CommitRequest struct {
	Database    string  `json:"database" validate:"required"`
	Writes      []Write `json:"writes,omitempty"`
	Transaction []byte  `json:"transaction,omitempty"`
}

type CommitResponse struct {
	WriteResults []WriteResult `json:"writeResults,omitempty"`
	CommitTime   *time.Time    `json:"commitTime,omitempty"`
}

type RollbackRequest struct {
	Database    string `json:"database" validate:"required"`
	Transaction []byte `json:"transaction" validate:"required"`
}

type RunQueryRequest struct {
	Parent          string              `json:"parent" validate:"required"`
	StructuredQuery *StructuredQuery    `json:"structuredQuery,omitempty"`
	Transaction     []byte              `json:"transaction,omitempty"`
	NewTransaction  *TransactionOptions `json:"newTransaction,omitempty"`
	ReadTime        *time.Time          `json:"readTime,omitempty"`
}

type RunQueryResponse struct {
	Transaction    []byte     `json:"transaction,omitempty"`
	Document       *Document  `json:"document,omitempty"`
	ReadTime       *time.Time `json:"readTime,omitempty"`
	SkippedResults int32      `json:"skippedResults,omitempty"`
	Done           bool       `json:"done,omitempty"`
}

type RunAggregationQueryRequest struct {
	Parent                     string                      `json:"parent" validate:"required"`
	StructuredAggregationQuery *StructuredAggregationQuery `json:"structuredAggregationQuery,omitempty"`
	Transaction                []byte                      `json:"transaction,omitempty"`
	NewTransaction             *TransactionOptions         `json:"newTransaction,omitempty"`
	ReadTime                   *time.Time                  `json:"readTime,omitempty"`
}

type RunAggregationQueryResponse struct {
	Result      *AggregationResult `json:"result,omitempty"`
	Transaction []byte             `json:"transaction,omitempty"`
	ReadTime    *time.Time         `json:"readTime,omitempty"`
}

type PartitionQueryRequest struct {
	Parent          string           `json:"parent" validate:"required"`
	StructuredQuery *StructuredQuery `json:"structuredQuery,omitempty"`
	PartitionCount  int64            `json:"partitionCount,omitempty,string" validate:"gte=0"`
	PageToken       string           `json:"pageToken,omitempty"`
	PageSize        int32            `json:"pageSize,omitempty" validate:"gte=0"`
	ReadTime        *time.Time       `json:"readTime,omitempty"`
}

type PartitionQueryResponse struct {
	Partitions    []Cursor `json:"partitions,omitempty"`
	NextPageToken string   `json:"nextPageToken,omitempty"`
}

type ListCollectionIdsRequest struct {
	Parent    string     `json:"parent" validate:"required"`
	PageSize  int32      `json:"pageSize,omitempty" validate:"gte=0"`
	PageToken string     `json:"pageToken,omitempty"`
	ReadTime  *time.Time `json:"readTime,omitempty"`
}

type ListCollectionIdsResponse struct {
	CollectionIDs []string `json:"collectionIds,omitempty"`
	NextPageToken string   `json:"nextPageToken,omitempty"`
}

type BatchWriteRequest struct {
	Database string            `json:"database" validate:"required"`
	Writes   []Write           `json:"writes,omitempty" validate:"max=500"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// BatchWriteResponse carries one result and one status per write, in
// request order. Writes are applied independently.
type BatchWriteResponse struct {
	WriteResults []WriteResult `json:"writeResults,omitempty"`
	Status       []Status      `json:"status,omitempty"`
}
