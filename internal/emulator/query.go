package emulator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/model"
)

// orderValue returns the value a document sorts by for a field path;
// __name__ is the document's own reference.
func orderValue(d *model.Document, path string) (*model.Value, bool) {
	if path == model.NameField {
		return model.ReferenceValue(d.Name), true
	}
	return model.GetField(d.Fields, path)
}

func compareDocuments(a, b *model.Document, orders []model.Order) int {
	for _, o := range orders {
		va, okA := orderValue(a, o.Field.FieldPath)
		vb, okB := orderValue(b, o.Field.FieldPath)
		var c int
		switch {
		case !okA && !okB:
		case !okA:
			c = -1
		case !okB:
			c = 1
		default:
			c = model.CompareValues(va, vb)
		}
		if o.Direction == model.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return model.CompareValues(model.ReferenceValue(a.Name), model.ReferenceValue(b.Name))
}

func isInequality(op model.FieldOperator) bool {
	switch op {
	case model.LessThan, model.LessThanOrEqual, model.GreaterThan, model.GreaterThanOrEqual,
		model.NotEqual, model.NotIn:
		return true
	}
	return false
}

// inequalityFields collects the fields constrained by inequality filters,
// which results are implicitly ordered by.
func inequalityFields(f *model.Filter, into map[string]bool) {
	switch {
	case f == nil:
	case f.CompositeFilter != nil:
		for i := range f.CompositeFilter.Filters {
			inequalityFields(&f.CompositeFilter.Filters[i], into)
		}
	case f.FieldFilter != nil:
		if isInequality(f.FieldFilter.Op) {
			into[f.FieldFilter.Field.FieldPath] = true
		}
	case f.UnaryFilter != nil:
		if f.UnaryFilter.Op == model.IsNotNaN || f.UnaryFilter.Op == model.IsNotNull {
			into[f.UnaryFilter.Field.FieldPath] = true
		}
	}
}

// normalizeOrders adds the implicit orders: inequality fields not already
// ordered, then __name__ in the direction of the last order.
func normalizeOrders(q *model.StructuredQuery) []model.Order {
	orders := append([]model.Order(nil), q.OrderBy...)
	for i := range orders {
		orders[i].Direction = orDefault(orders[i].Direction, model.Asc)
	}
	ordered := map[string]bool{}
	for _, o := range orders {
		ordered[o.Field.FieldPath] = true
	}
	ineq := map[string]bool{}
	inequalityFields(q.Where, ineq)
	var missing []string
	for f := range ineq {
		if !ordered[f] {
			missing = append(missing, f)
		}
	}
	sort.Strings(missing)
	for _, f := range missing {
		orders = append(orders, model.Order{Field: model.FieldReference{FieldPath: f}, Direction: model.Asc})
	}
	if !ordered[model.NameField] {
		dir := model.Asc
		if len(orders) > 0 {
			dir = orders[len(orders)-1].Direction
		}
		orders = append(orders, model.Order{Field: model.FieldReference{FieldPath: model.NameField}, Direction: dir})
	}
	return orders
}

func matches(d *model.Document, f *model.Filter) (bool, error) {
	switch {
	case f == nil:
		return true, nil
	case f.CompositeFilter != nil:
		cf := f.CompositeFilter
		if cf.Op != model.And && cf.Op != model.Or {
			return false, status.Errorf(codes.InvalidArgument, "unsupported composite operator %q", cf.Op)
		}
		for i := range cf.Filters {
			ok, err := matches(d, &cf.Filters[i])
			if err != nil {
				return false, err
			}
			if cf.Op == model.Or && ok {
				return true, nil
			}
			if cf.Op == model.And && !ok {
				return false, nil
			}
		}
		return cf.Op == model.And || len(cf.Filters) == 0, nil
	case f.FieldFilter != nil:
		return matchField(d, f.FieldFilter)
	case f.UnaryFilter != nil:
		v, ok := orderValue(d, f.UnaryFilter.Field.FieldPath)
		switch f.UnaryFilter.Op {
		case model.IsNaN:
			return ok && v.IsNaN(), nil
		case model.IsNull:
			return ok && v.Kind() == model.KindNull, nil
		case model.IsNotNaN:
			return ok && !v.IsNaN(), nil
		case model.IsNotNull:
			return ok && v.Kind() != model.KindNull, nil
		}
		return false, status.Errorf(codes.InvalidArgument, "unsupported unary operator %q", f.UnaryFilter.Op)
	}
	return false, status.Error(codes.InvalidArgument, "empty filter")
}

// checkNaN rejects equality filters on NaN, which must be written as
// IS_NAN or IS_NOT_NAN.
func checkNaN(f *model.Filter) error {
	switch {
	case f == nil:
	case f.CompositeFilter != nil:
		for i := range f.CompositeFilter.Filters {
			if err := checkNaN(&f.CompositeFilter.Filters[i]); err != nil {
				return err
			}
		}
	case f.FieldFilter != nil:
		ff := f.FieldFilter
		switch ff.Op {
		case model.Equal, model.NotEqual:
			if ff.Value.IsNaN() {
				return status.Errorf(codes.InvalidArgument, "%s filter on %s cannot compare with NaN, use IS_NAN or IS_NOT_NAN", ff.Op, ff.Field.FieldPath)
			}
		case model.In, model.NotIn:
			vals, _ := arrayValues(ff.Value)
			for _, v := range vals {
				if v.IsNaN() {
					return status.Errorf(codes.InvalidArgument, "%s filter on %s cannot contain NaN", ff.Op, ff.Field.FieldPath)
				}
			}
		}
	}
	return nil
}

func arrayValues(v *model.Value) ([]*model.Value, bool) {
	if v == nil || v.Kind() != model.KindArray {
		return nil, false
	}
	return v.ArrayValue.Values, true
}

func containsValue(list []*model.Value, v *model.Value) bool {
	for _, x := range list {
		if model.EqualValues(x, v) {
			return true
		}
	}
	return false
}

func matchField(d *model.Document, f *model.FieldFilter) (bool, error) {
	if f.Value == nil {
		return false, status.Errorf(codes.InvalidArgument, "filter on %s has no value", f.Field.FieldPath)
	}
	v, ok := orderValue(d, f.Field.FieldPath)
	if !ok {
		return false, nil
	}
	switch f.Op {
	case model.Equal:
		return model.EqualValues(v, f.Value), nil
	case model.NotEqual:
		return v.Kind() != model.KindNull && !model.EqualValues(v, f.Value), nil
	case model.LessThan, model.LessThanOrEqual, model.GreaterThan, model.GreaterThanOrEqual:
		if !model.SameTypeClass(v, f.Value) || v.IsNaN() || f.Value.IsNaN() {
			return false, nil
		}
		c := model.CompareValues(v, f.Value)
		switch f.Op {
		case model.LessThan:
			return c < 0, nil
		case model.LessThanOrEqual:
			return c <= 0, nil
		case model.GreaterThan:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	case model.ArrayContainsOp:
		vals, ok := arrayValues(v)
		return ok && containsValue(vals, f.Value), nil
	case model.In, model.NotIn, model.ArrayContainsAny:
		want, ok := arrayValues(f.Value)
		if !ok {
			return false, status.Errorf(codes.InvalidArgument, "%s filter on %s needs an array value", f.Op, f.Field.FieldPath)
		}
		switch f.Op {
		case model.In:
			return containsValue(want, v), nil
		case model.NotIn:
			return v.Kind() != model.KindNull && !containsValue(want, v), nil
		default:
			vals, ok := arrayValues(v)
			if !ok {
				return false, nil
			}
			for _, w := range want {
				if containsValue(vals, w) {
					return true, nil
				}
			}
			return false, nil
		}
	}
	return false, status.Errorf(codes.InvalidArgument, "unsupported field operator %q", f.Op)
}

// cursorPosition compares a document with a cursor over the leading
// orders the cursor has values for.
func cursorPosition(d *model.Document, orders []model.Order, c *model.Cursor) (int, error) {
	if len(c.Values) > len(orders) {
		return 0, status.Error(codes.InvalidArgument, "cursor has more values than the query has orders")
	}
	for i, cv := range c.Values {
		o := orders[i]
		v, _ := orderValue(d, o.Field.FieldPath)
		if o.Field.FieldPath == model.NameField && cv.Kind() != model.KindReference {
			return 0, status.Error(codes.InvalidArgument, "cursor value for __name__ must be a document reference")
		}
		cmp := model.CompareValues(v, cv)
		if o.Direction == model.Desc {
			cmp = -cmp
		}
		if cmp != 0 {
			return cmp, nil
		}
	}
	return 0, nil
}

// queryLocked evaluates q below parent and returns the matching
// documents plus how many the offset skipped.
func (s *Server) queryLocked(db *database, prefix string, q *model.StructuredQuery) ([]*model.Document, int32, error) {
	if q == nil {
		return nil, 0, status.Error(codes.InvalidArgument, "structured query is required")
	}
	if len(q.From) != 1 {
		return nil, 0, status.Error(codes.InvalidArgument, "query must select exactly one collection")
	}
	if q.Offset < 0 || (q.Limit != nil && *q.Limit < 0) {
		return nil, 0, status.Error(codes.InvalidArgument, "offset and limit must not be negative")
	}
	if err := checkNaN(q.Where); err != nil {
		return nil, 0, err
	}
	from := q.From[0]
	orders := normalizeOrders(q)

	var out []*model.Document
	for path, d := range db.docs {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok {
			continue
		}
		segs := strings.Split(rest, "/")
		if from.AllDescendants {
			if from.CollectionID != "" && segs[len(segs)-2] != from.CollectionID {
				continue
			}
		} else if len(segs) != 2 || segs[0] != from.CollectionID {
			continue
		}
		ok, err := matches(d, q.Where)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			continue
		}
		hasAll := true
		for _, o := range orders {
			if _, ok := orderValue(d, o.Field.FieldPath); !ok {
				hasAll = false
				break
			}
		}
		if hasAll {
			out = append(out, d)
		}
	}
	sortDocuments(out, orders)

	filtered := out[:0]
	for _, d := range out {
		if q.StartAt != nil {
			c, err := cursorPosition(d, orders, q.StartAt)
			if err != nil {
				return nil, 0, err
			}
			if c < 0 || (c == 0 && !q.StartAt.Before) {
				continue
			}
		}
		if q.EndAt != nil {
			c, err := cursorPosition(d, orders, q.EndAt)
			if err != nil {
				return nil, 0, err
			}
			if c > 0 || (c == 0 && q.EndAt.Before) {
				continue
			}
		}
		filtered = append(filtered, d)
	}
	out = filtered

	skipped := min(int(q.Offset), len(out))
	out = out[skipped:]
	if q.Limit != nil && int(*q.Limit) < len(out) {
		out = out[:*q.Limit]
	}

	var mask *model.DocumentMask
	if q.Select != nil {
		mask = &model.DocumentMask{}
		for _, f := range q.Select.Fields {
			if f.FieldPath != model.NameField {
				mask.FieldPaths = append(mask.FieldPaths, f.FieldPath)
			}
		}
	}
	res := make([]*model.Document, len(out))
	for i, d := range out {
		res[i] = maskDocument(d, mask)
	}
	return res, int32(skipped), nil
}

func (s *Server) runQuery(_ context.Context, req *model.RunQueryRequest) ([]*model.RunQueryResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, _, prefix, err := s.parentLocked(req.Parent)
	if err != nil {
		return nil, err
	}
	tx, newTx, err := s.readTxLocked(db, req.Transaction, req.NewTransaction)
	if err != nil {
		return nil, err
	}
	docs, skipped, err := s.queryLocked(db, prefix, req.StructuredQuery)
	if err != nil {
		return nil, err
	}

	readTime := s.now()
	if len(docs) == 0 {
		return []*model.RunQueryResponse{{Transaction: newTx, ReadTime: &readTime, SkippedResults: skipped, Done: true}}, nil
	}
	out := make([]*model.RunQueryResponse, len(docs))
	for i, d := range docs {
		recordRead(tx, documentPath(d.Name), db.docs[documentPath(d.Name)])
		out[i] = &model.RunQueryResponse{Document: d, ReadTime: &readTime}
	}
	out[0].Transaction = newTx
	out[0].SkippedResults = skipped
	out[len(out)-1].Done = true
	return out, nil
}

func (s *Server) runAggregationQuery(_ context.Context, req *model.RunAggregationQueryRequest) ([]*model.RunAggregationQueryResponse, error) {
	agg := req.StructuredAggregationQuery
	if agg == nil || len(agg.Aggregations) == 0 {
		return nil, status.Error(codes.InvalidArgument, "at least one aggregation is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	db, _, prefix, err := s.parentLocked(req.Parent)
	if err != nil {
		return nil, err
	}
	tx, newTx, err := s.readTxLocked(db, req.Transaction, req.NewTransaction)
	if err != nil {
		return nil, err
	}
	docs, _, err := s.queryLocked(db, prefix, agg.StructuredQuery)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		recordRead(tx, documentPath(d.Name), db.docs[documentPath(d.Name)])
	}

	result := &model.AggregationResult{AggregateFields: map[string]*model.Value{}}
	for i, a := range agg.Aggregations {
		alias := a.Alias
		if alias == "" {
			alias = fmt.Sprintf("field_%d", i+1)
		}
		if _, dup := result.AggregateFields[alias]; dup {
			return nil, status.Errorf(codes.InvalidArgument, "duplicate aggregation alias %q", alias)
		}
		v, err := aggregate(docs, &a)
		if err != nil {
			return nil, err
		}
		result.AggregateFields[alias] = v
	}

	readTime := s.now()
	return []*model.RunAggregationQueryResponse{{Result: result, Transaction: newTx, ReadTime: &readTime}}, nil
}

func aggregate(docs []*model.Document, a *model.Aggregation) (*model.Value, error) {
	switch {
	case a.Count != nil:
		n := int64(len(docs))
		if a.Count.UpTo != nil {
			if *a.Count.UpTo <= 0 {
				return nil, status.Error(codes.InvalidArgument, "count upTo must be positive")
			}
			n = min(n, *a.Count.UpTo)
		}
		return model.IntegerValue(n), nil
	case a.Sum != nil, a.Avg != nil:
		field := a.Sum
		if field == nil {
			field = a.Avg
		}
		var (
			isum    int64
			fsum    float64
			n       int64
			doubles bool
		)
		for _, d := range docs {
			v, ok := model.GetField(d.Fields, field.Field.FieldPath)
			if !ok {
				continue
			}
			switch v.Kind() {
			case model.KindInteger:
				i := *v.IntegerValue
				if !doubles {
					if next := isum + i; (i > 0 && next < isum) || (i < 0 && next > isum) {
						doubles = true
						fsum = float64(isum) + float64(i)
					} else {
						isum = next
					}
				} else {
					fsum += float64(i)
				}
				n++
			case model.KindDouble:
				if !doubles {
					doubles = true
					fsum = float64(isum)
				}
				fsum += *v.DoubleValue
				n++
			}
		}
		if a.Avg != nil {
			if n == 0 {
				return model.NullValue(), nil
			}
			total := fsum
			if !doubles {
				total = float64(isum)
			}
			return model.DoubleValue(total / float64(n)), nil
		}
		if doubles {
			return model.DoubleValue(fsum), nil
		}
		return model.IntegerValue(isum), nil
	}
	return nil, status.Error(codes.InvalidArgument, "aggregation must set one of count, sum and avg")
}

func (s *Server) partitionQuery(_ context.Context, req *model.PartitionQueryRequest) (*model.PartitionQueryResponse, error) {
	q := req.StructuredQuery
	if q == nil || len(q.From) != 1 || !q.From[0].AllDescendants {
		return nil, status.Error(codes.InvalidArgument, "partition queries must select all descendants of one collection group")
	}
	if q.Where != nil || q.StartAt != nil || q.EndAt != nil || q.Offset != 0 || q.Limit != nil {
		return nil, status.Error(codes.InvalidArgument, "partition queries support no filters, cursors, offset or limit")
	}
	for _, o := range q.OrderBy {
		if o.Field.FieldPath != model.NameField || o.Direction == model.Desc {
			return nil, status.Error(codes.InvalidArgument, "partition queries must be ordered by __name__ ascending")
		}
	}
	if req.PartitionCount < 0 {
		return nil, status.Error(codes.InvalidArgument, "partition count must not be negative")
	}

	s.mu.Lock()
	db, _, prefix, err := s.parentLocked(req.Parent)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	docs, _, err := s.queryLocked(db, prefix, q)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var cursors []model.Cursor
	splits := req.PartitionCount - 1
	if n := int64(len(docs)); splits > n-1 {
		splits = n - 1
	}
	for i := int64(1); i <= splits; i++ {
		idx := int(math.Round(float64(i) * float64(len(docs)) / float64(splits+1)))
		cursors = append(cursors, model.Cursor{Values: []*model.Value{model.ReferenceValue(docs[idx].Name)}, Before: true})
	}

	page, next, err := pageOf(cursors, req.PageSize, req.PageToken)
	if err != nil {
		return nil, err
	}
	return &model.PartitionQueryResponse{Partitions: page, NextPageToken: next}, nil
}

func (s *Server) listCollectionIds(_ context.Context, req *model.ListCollectionIdsRequest) (*model.ListCollectionIdsResponse, error) {
	s.mu.Lock()
	db, _, prefix, err := s.parentLocked(req.Parent)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	seen := map[string]bool{}
	for path := range db.docs {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok {
			continue
		}
		id, _, _ := strings.Cut(rest, "/")
		seen[id] = true
	}
	s.mu.Unlock()

	ids := sortedKeys(seen)
	page, next, err := pageOf(ids, req.PageSize, req.PageToken)
	if err != nil {
		return nil, err
	}
	return &model.ListCollectionIdsResponse{CollectionIDs: page, NextPageToken: next}, nil
}
