package firestore

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/model"
)

// MaxTransactionAttempts bounds RunTransaction's retries on ABORTED.
const MaxTransactionAttempts = 5

// Transaction collects writes to commit atomically and reads documents
// under the transaction's lock.
type Transaction struct {
	c        *Client
	database string
	id       []byte
	writes   []model.Write
	readOnly bool
}

// ID is the opaque transaction id the server returned.
func (tx *Transaction) ID() []byte { return tx.id }

// Get reads a document in the transaction.
func (tx *Transaction) Get(ctx context.Context, name string) (*model.Document, error) {
	if len(tx.writes) > 0 {
		return nil, status.Error(codes.FailedPrecondition, "read after write in transaction")
	}
	return tx.c.GetDocument(ctx, &model.GetDocumentRequest{Name: name, Transaction: tx.id})
}

// Query runs a query in the transaction and yields its documents.
func (tx *Transaction) Query(ctx context.Context, parent string, q *model.StructuredQuery) iter.Seq2[*model.Document, error] {
	return tx.c.Documents(ctx, &model.RunQueryRequest{Parent: parent, StructuredQuery: q, Transaction: tx.id})
}

// Set replaces a document, creating it when missing.
func (tx *Transaction) Set(doc *model.Document) error {
	return tx.add(model.Write{Update: doc})
}

// Create writes a document that must not exist yet.
func (tx *Transaction) Create(doc *model.Document) error {
	exists := false
	return tx.add(model.Write{Update: doc, CurrentDocument: &model.Precondition{Exists: &exists}})
}

// Update changes the masked fields of an existing document.
func (tx *Transaction) Update(doc *model.Document, fieldPaths ...string) error {
	exists := true
	w := model.Write{Update: doc, CurrentDocument: &model.Precondition{Exists: &exists}}
	if len(fieldPaths) > 0 {
		w.UpdateMask = &model.DocumentMask{FieldPaths: fieldPaths}
	}
	return tx.add(w)
}

func (tx *Transaction) Delete(name string) error {
	return tx.add(model.Write{Delete: name})
}

func (tx *Transaction) add(w model.Write) error {
	if tx.readOnly {
		return status.Error(codes.FailedPrecondition, "write in read-only transaction")
	}
	tx.writes = append(tx.writes, w)
	return nil
}

type txOptions struct {
	readOnly bool
	attempts int
}

// TxOption configures RunTransaction.
type TxOption func(*txOptions)

// ReadOnly runs fn in a read-only transaction.
func ReadOnly() TxOption { return func(o *txOptions) { o.readOnly = true } }

// MaxAttempts overrides MaxTransactionAttempts.
func MaxAttempts(n int) TxOption { return func(o *txOptions) { o.attempts = n } }

// RunTransaction begins a transaction on database, runs fn, and commits
// the writes fn collected. Commits failing with ABORTED are retried from
// the start, passing the previous transaction id so the server can keep
// its place. When fn fails the transaction is rolled back and fn's error
// returned.
func (c *Client) RunTransaction(ctx context.Context, database string, fn func(context.Context, *Transaction) error, opts ...TxOption) (*model.CommitResponse, error) {
	o := txOptions{attempts: MaxTransactionAttempts}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		prev    []byte
		lastErr error
	)
	for attempt := 1; attempt <= o.attempts; attempt++ {
		txOpts := &model.TransactionOptions{ReadWrite: &model.ReadWriteOptions{RetryTransaction: prev}}
		if o.readOnly {
			txOpts = &model.TransactionOptions{ReadOnly: &model.ReadOnlyOptions{}}
		}
		begin, err := c.BeginTransaction(ctx, &model.BeginTransactionRequest{Database: database, Options: txOpts})
		if err != nil {
			return nil, fmt.Errorf("begin transaction: %w", err)
		}
		tx := &Transaction{c: c, database: database, id: begin.Transaction, readOnly: o.readOnly}

		if err := fn(ctx, tx); err != nil {
			if rbErr := c.Rollback(ctx, &model.RollbackRequest{Database: database, Transaction: tx.id}); rbErr != nil {
				c.logger.Warn().Err(rbErr).Msg("rollback failed")
			}
			return nil, err
		}

		resp, err := c.Commit(ctx, &model.CommitRequest{Database: database, Writes: tx.writes, Transaction: tx.id})
		if err == nil {
			return resp, nil
		}
		if status.Code(err) != codes.Aborted {
			return nil, err
		}
		c.logger.Debug().Int("attempt", attempt).Err(err).Msg("transaction aborted, retrying")
		lastErr, prev = err, tx.id
	}
	return nil, errors.Join(fmt.Errorf("transaction failed after %d attempts", o.attempts), lastErr)
}
