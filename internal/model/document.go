package model

import (
	"time"
)

// Document is a Firestore document.
type Document struct {
	Name       string            `json:"name,omitempty"`
	Fields     map[string]*Value `json:"fields,omitempty"`
	CreateTime *time.Time        `json:"createTime,omitempty"`
	UpdateTime *time.Time        `json:"updateTime,omitempty"`
}

type ArrayValue struct {
	Values []*Value `json:"values,omitempty"`
}

type MapValue struct {
	Fields map[string]*Value `json:"fields,omitempty"`
}

// LatLng is a google.type.LatLng.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DocumentMask selects fields by dotted path.
type DocumentMask struct {
	FieldPaths []string `json:"fieldPaths,omitempty"`
}

// Precondition on a document. At most one field is set.
type Precondition struct {
	Exists     *bool      `json:"exists,omitempty"`
	UpdateTime *time.Time `json:"updateTime,omitempty"`
}

// Write is one mutation. Exactly one of Update and Delete is set.
type Write struct {
	Update          *Document     `json:"update,omitempty"`
	Delete          string        `json:"delete,omitempty"`
	UpdateMask      *DocumentMask `json:"updateMask,omitempty"`
	CurrentDocument *Precondition `json:"currentDocument,omitempty"`
}

// Target returns the name of the document the write touches.
func (w *Write) Target() string {
	if w.Update != nil {
		return w.Update.Name
	}
	return w.Delete
}

type WriteResult struct {
	UpdateTime *time.Time `json:"updateTime,omitempty"`
}

// TransactionOptions sets exactly one of ReadOnly and ReadWrite.
type TransactionOptions struct {
	ReadOnly  *ReadOnlyOptions  `json:"readOnly,omitempty"`
	ReadWrite *ReadWriteOptions `json:"readWrite,omitempty"`
}

type ReadOnlyOptions struct {
	ReadTime *time.Time `json:"readTime,omitempty"`
}

type ReadWriteOptions struct {
	RetryTransaction []byte `json:"retryTransaction,omitempty"`
}

// StructuredQuery is a Firestore query.
type StructuredQuery struct {
	Select  *Projection          `json:"select,omitempty"`
	From    []CollectionSelector `json:"from,omitempty"`
	Where   *Filter              `json:"where,omitempty"`
	OrderBy []Order              `json:"orderBy,omitempty"`
	StartAt *Cursor              `json:"startAt,omitempty"`
	EndAt   *Cursor              `json:"endAt,omitempty"`
	Offset  int32                `json:"offset,omitempty"`
	Limit   *int32               `json:"limit,omitempty"`
}

type CollectionSelector struct {
	CollectionID   string `json:"collectionId,omitempty"`
	AllDescendants bool   `json:"allDescendants,omitempty"`
}

type Projection struct {
	Fields []FieldReference `json:"fields,omitempty"`
}

type FieldReference struct {
	FieldPath string `json:"fieldPath,omitempty"`
}

// Filter sets exactly one of its members.
type Filter struct {
	CompositeFilter *CompositeFilter `json:"compositeFilter,omitempty"`
	FieldFilter     *FieldFilter     `json:"fieldFilter,omitempty"`
	UnaryFilter     *UnaryFilter     `json:"unaryFilter,omitempty"`
}

type CompositeOperator string

const (
	And CompositeOperator = "AND"
	Or  CompositeOperator = "OR"
)

type CompositeFilter struct {
	Op      CompositeOperator `json:"op,omitempty"`
	Filters []Filter          `json:"filters,omitempty"`
}

type FieldOperator string

const (
	LessThan           FieldOperator = "LESS_THAN"
	LessThanOrEqual    FieldOperator = "LESS_THAN_OR_EQUAL"
	GreaterThan        FieldOperator = "GREATER_THAN"
	GreaterThanOrEqual FieldOperator = "GREATER_THAN_OR_EQUAL"
	Equal              FieldOperator = "EQUAL"
	NotEqual           FieldOperator = "NOT_EQUAL"
	ArrayContainsOp    FieldOperator = "ARRAY_CONTAINS"
	In                 FieldOperator = "IN"
	ArrayContainsAny   FieldOperator = "ARRAY_CONTAINS_ANY"
	NotIn              FieldOperator = "NOT_IN"
)

type FieldFilter struct {
	Field FieldReference `json:"field"`
	Op    FieldOperator  `json:"op,omitempty"`
	Value *Value         `json:"value,omitempty"`
}

type UnaryOperator string

const (
	IsNaN     UnaryOperator = "IS_NAN"
	IsNull    UnaryOperator = "IS_NULL"
	IsNotNaN  UnaryOperator = "IS_NOT_NAN"
	IsNotNull UnaryOperator = "IS_NOT_NULL"
)

type UnaryFilter struct {
	Op    UnaryOperator  `json:"op,omitempty"`
	Field FieldReference `json:"field"`
}

type Direction string

const (
	Asc  Direction = "ASCENDING"
	Desc Direction = "DESCENDING"
)

type Order struct {
	Field     FieldReference `json:"field"`
	Direction Direction      `json:"direction,omitempty"`
}

// Cursor is a position in a query's result order.
type Cursor struct {
	Values []*Value `json:"values,omitempty"`
	Before bool     `json:"before,omitempty"`
}

type StructuredAggregationQuery struct {
	StructuredQuery *StructuredQuery `json:"structuredQuery,omitempty"`
	Aggregations    []Aggregation    `json:"aggregations,omitempty"`
}

// Aggregation sets exactly one of Count, Sum and Avg.
type Aggregation struct {
	Count *CountAggregation `json:"count,omitempty"`
	Sum   *FieldAggregation `json:"sum,omitempty"`
	Avg   *FieldAggregation `json:"avg,omitempty"`
	Alias string            `json:"alias,omitempty"`
}

type CountAggregation struct {
	UpTo *int64 `json:"upTo,omitempty,string"`
}

type FieldAggregation struct {
	Field FieldReference `json:"field"`
}

type AggregationResult struct {
	AggregateFields map[string]*Value `json:"aggregateFields,omitempty"`
}

// Query helpers.

// FieldEq is a shorthand for an EQUAL field filter.
func FieldEq(path string, v *Value) *Filter {
	return &Filter{FieldFilter: &FieldFilter{Field: FieldReference{FieldPath: path}, Op: Equal, Value: v}}
}

// NameField is the pseudo-field ordering documents by name.
const NameField = "__name__"
