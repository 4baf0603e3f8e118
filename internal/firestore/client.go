// Package firestore is a client for the Firestore data plane over REST.
package firestore

import (
	"context"
	"errors"
	"iter"

	"github.com/rs/zerolog"

	"github.com/edvin/firestore-admin/internal/config"
	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/paging"
	"github.com/edvin/firestore-admin/internal/retry"
	"github.com/edvin/firestore-admin/internal/rpc"
	"github.com/edvin/firestore-admin/internal/transport"
)

type Client struct {
	tc     *transport.Client
	logger zerolog.Logger
}

func New(tc *transport.Client, logger zerolog.Logger) *Client {
	return &Client{tc: tc, logger: logger}
}

// NewFromConfig builds the transport from cfg with the default data-plane
// retry table plus any overrides cfg names.
func NewFromConfig(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	tc, err := transport.NewFromConfig(cfg, logger, transport.FirestoreRoutes, retry.FirestoreDefaults())
	if err != nil {
		return nil, err
	}
	return New(tc, logger), nil
}

func (c *Client) call(ctx context.Context, name string, req, out any) error {
	return c.tc.Invoke(ctx, transport.Call{RPC: name, Request: req}, out)
}

var errStopped = errors.New("iteration stopped")

func stream[T any](ctx context.Context, c *Client, name string, req any) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		stopped := false
		err := transport.Stream(ctx, c.tc, transport.Call{RPC: name, Request: req}, func(item *T) error {
			if !yield(item, nil) {
				stopped = true
				return errStopped
			}
			return nil
		})
		if err != nil && !stopped {
			yield(nil, err)
		}
	}
}

func (c *Client) GetDocument(ctx context.Context, req *model.GetDocumentRequest) (*model.Document, error) {
	var out model.Document
	if err := c.call(ctx, rpc.GetDocument, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDocuments iterates over every page. PageToken in req is ignored.
func (c *Client) ListDocuments(ctx context.Context, req *model.ListDocumentsRequest) iter.Seq2[*model.Document, error] {
	return paging.Iterate(ctx, func(ctx context.Context, token string) ([]*model.Document, string, error) {
		page := *req
		page.PageToken = token
		var resp model.ListDocumentsResponse
		if err := c.call(ctx, rpc.ListDocuments, &page, &resp); err != nil {
			return nil, "", err
		}
		return resp.Documents, resp.NextPageToken, nil
	})
}

func (c *Client) CreateDocument(ctx context.Context, req *model.CreateDocumentRequest) (*model.Document, error) {
	var out model.Document
	if err := c.call(ctx, rpc.CreateDocument, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateDocument(ctx context.Context, req *model.UpdateDocumentRequest) (*model.Document, error) {
	var out model.Document
	if err := c.call(ctx, rpc.UpdateDocument, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteDocument(ctx context.Context, req *model.DeleteDocumentRequest) error {
	return c.call(ctx, rpc.DeleteDocument, req, nil)
}

// BatchGetDocuments streams one response per requested document, found
// or missing, in no particular order.
func (c *Client) BatchGetDocuments(ctx context.Context, req *model.BatchGetDocumentsRequest) iter.Seq2[*model.BatchGetDocumentsResponse, error] {
	return stream[model.BatchGetDocumentsResponse](ctx, c, rpc.BatchGetDocuments, req)
}

func (c *Client) BeginTransaction(ctx context.Context, req *model.BeginTransactionRequest) (*model.BeginTransactionResponse, error) {
	var out model.BeginTransactionResponse
	if err := c.call(ctx, rpc.BeginTransaction, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Commit(ctx context.Context, req *model.CommitRequest) (*model.CommitResponse, error) {
	var out model.CommitResponse
	if err := c.call(ctx, rpc.Commit, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Rollback(ctx context.Context, req *model.RollbackRequest) error {
	return c.call(ctx, rpc.Rollback, req, nil)
}

// RunQuery streams query results. Responses without a document carry
// progress only (read time, skipped results, done).
func (c *Client) RunQuery(ctx context.Context, req *model.RunQueryRequest) iter.Seq2[*model.RunQueryResponse, error] {
	return stream[model.RunQueryResponse](ctx, c, rpc.RunQuery, req)
}

// Documents runs a query and yields only its documents.
func (c *Client) Documents(ctx context.Context, req *model.RunQueryRequest) iter.Seq2[*model.Document, error] {
	return func(yield func(*model.Document, error) bool) {
		for resp, err := range c.RunQuery(ctx, req) {
			if err != nil {
				yield(nil, err)
				return
			}
			if resp.Document == nil {
				continue
			}
			if !yield(resp.Document, nil) {
				return
			}
		}
	}
}

func (c *Client) RunAggregationQuery(ctx context.Context, req *model.RunAggregationQueryRequest) iter.Seq2[*model.RunAggregationQueryResponse, error] {
	return stream[model.RunAggregationQueryResponse](ctx, c, rpc.RunAggregationQuery, req)
}

// PartitionQuery iterates over the split points of a query, across
// pages.
func (c *Client) PartitionQuery(ctx context.Context, req *model.PartitionQueryRequest) iter.Seq2[model.Cursor, error] {
	return paging.Iterate(ctx, func(ctx context.Context, token string) ([]model.Cursor, string, error) {
		page := *req
		page.PageToken = token
		var resp model.PartitionQueryResponse
		if err := c.call(ctx, rpc.PartitionQuery, &page, &resp); err != nil {
			return nil, "", err
		}
		return resp.Partitions, resp.NextPageToken, nil
	})
}

func (c *Client) ListCollectionIds(ctx context.Context, req *model.ListCollectionIdsRequest) iter.Seq2[string, error] {
	return paging.Iterate(ctx, func(ctx context.Context, token string) ([]string, string, error) {
		page := *req
		page.PageToken = token
		var resp model.ListCollectionIdsResponse
		if err := c.call(ctx, rpc.ListCollectionIds, &page, &resp); err != nil {
			return nil, "", err
		}
		return resp.CollectionIDs, resp.NextPageToken, nil
	})
}

// BatchWrite applies writes independently. A nil error means the call
// went through; per-write outcomes are in the response's Status.
func (c *Client) BatchWrite(ctx context.Context, req *model.BatchWriteRequest) (*model.BatchWriteResponse, error) {
	var out model.BatchWriteResponse
	if err := c.call(ctx, rpc.BatchWrite, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
