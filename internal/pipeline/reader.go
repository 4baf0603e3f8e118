package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/firestore-admin/internal/model"
)

// Querier is the part of the data client the reader needs.
type Querier interface {
	PartitionQuery(ctx context.Context, req *model.PartitionQueryRequest) iter.Seq2[model.Cursor, error]
	Documents(ctx context.Context, req *model.RunQueryRequest) iter.Seq2[*model.Document, error]
}

type ReaderConfig struct {
	// Partitions is how many slices a query is split into. Values below
	// two read with a single query.
	Partitions int
	Workers    int
	// Buffer is how many documents a partition may read ahead of the
	// consumer.
	Buffer int
}

// Reader runs a query as several concurrent partition queries and hands
// the documents to one consumer in query order.
type Reader struct {
	client Querier
	cfg    ReaderConfig
	logger zerolog.Logger
}

func NewReader(client Querier, cfg ReaderConfig, logger zerolog.Logger) *Reader {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 100
	}
	return &Reader{client: client, cfg: cfg, logger: logger.With().Str("component", "pipeline-reader").Logger()}
}

// Read calls fn for each document q matches below parent. Queries with
// an explicit order, cursors, offset, limit or an inequality filter
// cannot be split and run as one query. A non-nil error from fn stops
// the read and is returned.
func (r *Reader) Read(ctx context.Context, parent string, q *model.StructuredQuery, fn func(*model.Document) error) error {
	if q == nil || len(q.From) != 1 {
		return errors.New("pipeline: query must select exactly one collection")
	}
	if r.cfg.Partitions < 2 || !splittable(q) {
		return r.readOne(ctx, parent, q, fn)
	}

	cursors, err := r.splitPoints(ctx, parent, q)
	if err != nil {
		return fmt.Errorf("partition query: %w", err)
	}
	r.logger.Debug().Str("parent", parent).Int("partitions", len(cursors)+1).Msg("reading partitions")
	if len(cursors) == 0 {
		return r.readOne(ctx, parent, q, fn)
	}

	parts := make([]*model.StructuredQuery, len(cursors)+1)
	for i := range parts {
		pq := *q
		pq.OrderBy = []model.Order{{Field: model.FieldReference{FieldPath: model.NameField}, Direction: model.Asc}}
		if i > 0 {
			pq.StartAt = &cursors[i-1]
		}
		if i < len(cursors) {
			pq.EndAt = &cursors[i]
		}
		parts[i] = &pq
	}
	return r.readPartitions(ctx, parent, parts, fn)
}

// splitPoints asks for Partitions-1 cursors over the collection group
// the query reads from.
func (r *Reader) splitPoints(ctx context.Context, parent string, q *model.StructuredQuery) ([]model.Cursor, error) {
	group := &model.StructuredQuery{
		From:    []model.CollectionSelector{{CollectionID: q.From[0].CollectionID, AllDescendants: true}},
		OrderBy: []model.Order{{Field: model.FieldReference{FieldPath: model.NameField}, Direction: model.Asc}},
	}
	var cursors []model.Cursor
	for c, err := range r.client.PartitionQuery(ctx, &model.PartitionQueryRequest{
		Parent:          parent,
		StructuredQuery: group,
		PartitionCount:  int64(r.cfg.Partitions),
	}) {
		if err != nil {
			return nil, err
		}
		cursors = append(cursors, c)
	}
	return cursors, nil
}

func (r *Reader) readOne(ctx context.Context, parent string, q *model.StructuredQuery, fn func(*model.Document) error) error {
	for d, err := range r.client.Documents(ctx, &model.RunQueryRequest{Parent: parent, StructuredQuery: q}) {
		if err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) readPartitions(ctx context.Context, parent string, parts []*model.StructuredQuery, fn func(*model.Document) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chans := make([]chan *model.Document, len(parts))
	for i := range chans {
		chans[i] = make(chan *model.Document, r.cfg.Buffer)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var workers errgroup.Group
		workers.SetLimit(r.cfg.Workers)
		for i, pq := range parts {
			workers.Go(func() error {
				defer close(chans[i])
				for d, err := range r.client.Documents(gctx, &model.RunQueryRequest{Parent: parent, StructuredQuery: pq}) {
					if err != nil {
						return fmt.Errorf("partition %d: %w", i, err)
					}
					select {
					case chans[i] <- d:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
				return nil
			})
		}
		return workers.Wait()
	})

	var consumerErr error
consume:
	for _, ch := range chans {
		for {
			select {
			case d, ok := <-ch:
				if !ok {
					continue consume
				}
				if err := fn(d); err != nil {
					consumerErr = err
					break consume
				}
			case <-gctx.Done():
				break consume
			}
		}
	}
	if consumerErr != nil {
		cancel()
		_ = g.Wait()
		return consumerErr
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// splittable reports whether q keeps its meaning when cut into
// __name__ ranges.
func splittable(q *model.StructuredQuery) bool {
	if len(q.OrderBy) > 0 || q.StartAt != nil || q.EndAt != nil || q.Offset != 0 || q.Limit != nil {
		return false
	}
	return !hasInequality(q.Where)
}

func hasInequality(f *model.Filter) bool {
	switch {
	case f == nil:
		return false
	case f.CompositeFilter != nil:
		for i := range f.CompositeFilter.Filters {
			if hasInequality(&f.CompositeFilter.Filters[i]) {
				return true
			}
		}
		return false
	case f.FieldFilter != nil:
		switch f.FieldFilter.Op {
		case model.Equal, model.ArrayContainsOp, model.In, model.ArrayContainsAny:
			return false
		}
		return true
	case f.UnaryFilter != nil:
		return f.UnaryFilter.Op == model.IsNotNaN || f.UnaryFilter.Op == model.IsNotNull
	}
	return false
}
