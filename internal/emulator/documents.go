package emulator

import (
	"context"
	"maps"
	"sort"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/resource"
)

func cloneDocument(d *model.Document) *model.Document {
	c := *d
	c.Fields = model.CloneFields(d.Fields)
	return &c
}

// documentPath is the part of a document name after "/documents/".
func documentPath(name string) string {
	_, path, _ := strings.Cut(name, "/documents/")
	return path
}

func renameDocument(name string, db resource.DatabaseName) string {
	return db.Documents().Document(documentPath(name)).String()
}

func maskDocument(d *model.Document, mask *model.DocumentMask) *model.Document {
	c := cloneDocument(d)
	if mask != nil {
		c.Fields = model.ApplyMask(c.Fields, mask)
	}
	return c
}

// commitTimeLocked returns a strictly increasing timestamp with microsecond
// precision so every write gets a distinct update time.
func (s *Server) commitTimeLocked() time.Time {
	t := s.now().Truncate(time.Microsecond)
	if !t.After(s.lastCommit) {
		t = s.lastCommit.Add(time.Microsecond)
	}
	s.lastCommit = t
	return t
}

// documentLocked resolves a document name to its database.
func (s *Server) documentLocked(name string) (*database, resource.DocumentName, error) {
	n, err := resource.ParseDocumentName(name)
	if err != nil {
		return nil, n, status.Error(codes.InvalidArgument, err.Error())
	}
	db, _, err := s.databaseLocked(n.Root().DatabaseName().String())
	return db, n, err
}

// parentLocked resolves a list or query parent into its database and the
// path prefix documents below it share.
func (s *Server) parentLocked(parent string) (*database, resource.DatabaseName, string, error) {
	root, docPath, err := resource.SplitParent(parent)
	if err != nil {
		return nil, resource.DatabaseName{}, "", status.Error(codes.InvalidArgument, err.Error())
	}
	db, name, err := s.databaseLocked(root.DatabaseName().String())
	if err != nil {
		return nil, name, "", err
	}
	prefix := ""
	if docPath != "" {
		prefix = docPath + "/"
	}
	return db, name, prefix, nil
}

func (s *Server) txLocked(db *database, id []byte) (*txState, error) {
	tx, ok := db.txs[txKey(id)]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "transaction is invalid or has expired")
	}
	return tx, nil
}

// recordRead records a document read inside a transaction.
func recordRead(tx *txState, path string, d *model.Document) {
	if tx == nil || tx.readOnly {
		return
	}
	if _, seen := tx.reads[path]; seen {
		return
	}
	var t time.Time
	if d != nil && d.UpdateTime != nil {
		t = *d.UpdateTime
	}
	tx.reads[path] = t
}

func (s *Server) beginLocked(db *database, opts *model.TransactionOptions) ([]byte, *txState) {
	tx := &txState{reads: map[string]time.Time{}}
	if opts != nil {
		tx.readOnly = opts.ReadOnly != nil
		if opts.ReadWrite != nil && len(opts.ReadWrite.RetryTransaction) > 0 {
			delete(db.txs, txKey(opts.ReadWrite.RetryTransaction))
		}
	}
	id := newTransactionID()
	db.txs[txKey(id)] = tx
	return id, tx
}

// readTx resolves the transaction a read runs in: an existing one, a new
// one begun for the read, or none.
func (s *Server) readTxLocked(db *database, id []byte, begin *model.TransactionOptions) (*txState, []byte, error) {
	if len(id) > 0 && begin != nil {
		return nil, nil, status.Error(codes.InvalidArgument, "transaction and newTransaction are mutually exclusive")
	}
	if len(id) > 0 {
		tx, err := s.txLocked(db, id)
		return tx, nil, err
	}
	if begin != nil {
		newID, tx := s.beginLocked(db, begin)
		return tx, newID, nil
	}
	return nil, nil, nil
}

func (s *Server) getDocument(_ context.Context, req *model.GetDocumentRequest) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, n, err := s.documentLocked(req.Name)
	if err != nil {
		return nil, err
	}
	tx, _, err := s.readTxLocked(db, req.Transaction, nil)
	if err != nil {
		return nil, err
	}
	d, ok := db.docs[n.Path]
	recordRead(tx, n.Path, d)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "document %s not found", req.Name)
	}
	return maskDocument(d, req.Mask), nil
}

func (s *Server) listDocuments(_ context.Context, req *model.ListDocumentsRequest) (*model.ListDocumentsResponse, error) {
	orders, err := parseOrderBy(req.OrderBy)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	db, name, prefix, err := s.parentLocked(req.Parent)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	tx, _, err := s.readTxLocked(db, req.Transaction, nil)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	collPrefix := prefix + req.CollectionID + "/"
	var docs []*model.Document
	missing := map[string]bool{}
	for path, d := range db.docs {
		rest, ok := strings.CutPrefix(path, collPrefix)
		if !ok {
			continue
		}
		if !strings.Contains(rest, "/") {
			recordRead(tx, path, d)
			docs = append(docs, maskDocument(d, req.Mask))
			continue
		}
		if req.ShowMissing {
			id, _, _ := strings.Cut(rest, "/")
			if _, exists := db.docs[collPrefix+id]; !exists {
				missing[collPrefix+id] = true
			}
		}
	}
	for path := range missing {
		docs = append(docs, &model.Document{Name: name.Documents().Document(path).String()})
	}
	s.mu.Unlock()

	sortDocuments(docs, orders)
	page, next, err := pageOf(docs, req.PageSize, req.PageToken)
	if err != nil {
		return nil, err
	}
	return &model.ListDocumentsResponse{Documents: page, NextPageToken: next}, nil
}

// parseOrderBy parses the ListDocuments order_by form: "a desc, b".
func parseOrderBy(s string) ([]model.Order, error) {
	var out []model.Order
	for _, part := range strings.Split(s, ",") {
		f := strings.Fields(part)
		if len(f) == 0 {
			continue
		}
		o := model.Order{Field: model.FieldReference{FieldPath: f[0]}, Direction: model.Asc}
		if len(f) > 2 {
			return nil, status.Errorf(codes.InvalidArgument, "invalid order by %q", part)
		}
		if len(f) == 2 {
			switch strings.ToLower(f[1]) {
			case "asc":
			case "desc":
				o.Direction = model.Desc
			default:
				return nil, status.Errorf(codes.InvalidArgument, "invalid order direction %q", f[1])
			}
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Server) createDocument(_ context.Context, req *model.CreateDocumentRequest) (*model.Document, error) {
	id := req.DocumentID
	if id == "" {
		id = autoID()
	}
	if strings.Contains(id, "/") {
		return nil, status.Errorf(codes.InvalidArgument, "document id %q must not contain '/'", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	db, name, prefix, err := s.parentLocked(req.Parent)
	if err != nil {
		return nil, err
	}
	path := prefix + req.CollectionID + "/" + id
	docName := name.Documents().Document(path).String()
	exists := false
	_, err = s.applyWritesLocked(db, name, []model.Write{{
		Update:          &model.Document{Name: docName, Fields: req.Document.Fields},
		CurrentDocument: &model.Precondition{Exists: &exists},
	}})
	if err != nil {
		return nil, err
	}
	return maskDocument(db.docs[path], req.Mask), nil
}

func (s *Server) updateDocument(_ context.Context, req *model.UpdateDocumentRequest) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, n, err := s.documentLocked(req.Document.Name)
	if err != nil {
		return nil, err
	}
	_, err = s.applyWritesLocked(db, n.Root().DatabaseName(), []model.Write{{
		Update:          req.Document,
		UpdateMask:      req.UpdateMask,
		CurrentDocument: req.CurrentDocument,
	}})
	if err != nil {
		return nil, err
	}
	return maskDocument(db.docs[n.Path], req.Mask), nil
}

func (s *Server) deleteDocument(_ context.Context, req *model.DeleteDocumentRequest) (*model.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, n, err := s.documentLocked(req.Name)
	if err != nil {
		return nil, err
	}
	_, err = s.applyWritesLocked(db, n.Root().DatabaseName(), []model.Write{{
		Delete:          req.Name,
		CurrentDocument: req.CurrentDocument,
	}})
	if err != nil {
		return nil, err
	}
	return &model.Empty{}, nil
}

func checkPrecondition(p *model.Precondition, name string, d *model.Document) error {
	if p == nil {
		return nil
	}
	if p.Exists != nil {
		switch {
		case *p.Exists && d == nil:
			return status.Errorf(codes.NotFound, "no document to update: %s", name)
		case !*p.Exists && d != nil:
			return status.Errorf(codes.AlreadyExists, "document already exists: %s", name)
		}
	}
	if p.UpdateTime != nil {
		if d == nil || d.UpdateTime == nil || !d.UpdateTime.Equal(*p.UpdateTime) {
			return status.Errorf(codes.FailedPrecondition, "document %s was updated after %s", name, p.UpdateTime.Format(time.RFC3339Nano))
		}
	}
	return nil
}

// applyWrite applies one write to docs at commit time now. Stored
// documents are replaced, never mutated, so docs may be a copy of the
// live map.
func applyWrite(docs map[string]*model.Document, db resource.DatabaseName, w *model.Write, now time.Time) (model.WriteResult, error) {
	if (w.Update == nil) == (w.Delete == "") {
		return model.WriteResult{}, status.Error(codes.InvalidArgument, "write must set exactly one of update and delete")
	}
	n, err := resource.ParseDocumentName(w.Target())
	if err != nil {
		return model.WriteResult{}, status.Error(codes.InvalidArgument, err.Error())
	}
	if n.Root().DatabaseName() != db {
		return model.WriteResult{}, status.Errorf(codes.InvalidArgument, "document %s is not in database %s", w.Target(), db)
	}
	cur := docs[n.Path]
	if err := checkPrecondition(w.CurrentDocument, w.Target(), cur); err != nil {
		return model.WriteResult{}, err
	}

	if w.Delete != "" {
		delete(docs, n.Path)
		return model.WriteResult{}, nil
	}

	var fields map[string]*model.Value
	if w.UpdateMask != nil {
		if cur != nil {
			fields = model.CloneFields(cur.Fields)
		} else {
			fields = map[string]*model.Value{}
		}
		for _, p := range w.UpdateMask.FieldPaths {
			v, _ := model.GetField(w.Update.Fields, p)
			if err := model.SetField(fields, p, v); err != nil {
				return model.WriteResult{}, status.Errorf(codes.InvalidArgument, "update mask: %v", err)
			}
		}
	} else {
		fields = model.CloneFields(w.Update.Fields)
	}

	next := &model.Document{Name: n.String(), Fields: fields, UpdateTime: &now}
	if cur != nil {
		next.CreateTime = cur.CreateTime
	} else {
		next.CreateTime = &now
	}
	docs[n.Path] = next
	return model.WriteResult{UpdateTime: &now}, nil
}

// applyWritesLocked commits writes atomically: either all apply or none.
func (s *Server) applyWritesLocked(db *database, name resource.DatabaseName, writes []model.Write) (*model.CommitResponse, error) {
	now := s.commitTimeLocked()
	working := maps.Clone(db.docs)
	resp := &model.CommitResponse{CommitTime: &now, WriteResults: make([]model.WriteResult, 0, len(writes))}
	for i := range writes {
		res, err := applyWrite(working, name, &writes[i], now)
		if err != nil {
			return nil, err
		}
		resp.WriteResults = append(resp.WriteResults, res)
	}
	db.docs = working
	return resp, nil
}

func (s *Server) batchGetDocuments(_ context.Context, req *model.BatchGetDocumentsRequest) ([]*model.BatchGetDocumentsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, name, err := s.databaseLocked(req.Database)
	if err != nil {
		return nil, err
	}
	tx, newTx, err := s.readTxLocked(db, req.Transaction, req.NewTransaction)
	if err != nil {
		return nil, err
	}

	readTime := s.now()
	var out []*model.BatchGetDocumentsResponse
	if newTx != nil {
		out = append(out, &model.BatchGetDocumentsResponse{Transaction: newTx, ReadTime: &readTime})
	}
	for _, docName := range req.Documents {
		n, err := resource.ParseDocumentName(docName)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		if n.Root().DatabaseName() != name {
			return nil, status.Errorf(codes.InvalidArgument, "document %s is not in database %s", docName, name)
		}
		d, ok := db.docs[n.Path]
		recordRead(tx, n.Path, d)
		r := &model.BatchGetDocumentsResponse{ReadTime: &readTime}
		if ok {
			r.Found = maskDocument(d, req.Mask)
		} else {
			r.Missing = docName
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Server) beginTransaction(_ context.Context, req *model.BeginTransactionRequest) (*model.BeginTransactionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, _, err := s.databaseLocked(req.Database)
	if err != nil {
		return nil, err
	}
	id, _ := s.beginLocked(db, req.Options)
	return &model.BeginTransactionResponse{Transaction: id}, nil
}

func (s *Server) commit(_ context.Context, req *model.CommitRequest) (*model.CommitResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, name, err := s.databaseLocked(req.Database)
	if err != nil {
		return nil, err
	}
	if len(req.Transaction) > 0 {
		tx, err := s.txLocked(db, req.Transaction)
		if err != nil {
			return nil, err
		}
		delete(db.txs, txKey(req.Transaction))
		if tx.readOnly && len(req.Writes) > 0 {
			return nil, status.Error(codes.InvalidArgument, "cannot write in a read-only transaction")
		}
		for path, seen := range tx.reads {
			var cur time.Time
			if d, ok := db.docs[path]; ok && d.UpdateTime != nil {
				cur = *d.UpdateTime
			}
			if !cur.Equal(seen) {
				return nil, status.Errorf(codes.Aborted, "transaction aborted: %s changed after it was read", path)
			}
		}
	}
	return s.applyWritesLocked(db, name, req.Writes)
}

func (s *Server) rollback(_ context.Context, req *model.RollbackRequest) (*model.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, _, err := s.databaseLocked(req.Database)
	if err != nil {
		return nil, err
	}
	if _, err := s.txLocked(db, req.Transaction); err != nil {
		return nil, err
	}
	delete(db.txs, txKey(req.Transaction))
	return &model.Empty{}, nil
}

func (s *Server) batchWrite(_ context.Context, req *model.BatchWriteRequest) (*model.BatchWriteResponse, error) {
	seen := map[string]bool{}
	for i := range req.Writes {
		t := req.Writes[i].Target()
		if seen[t] {
			return nil, status.Errorf(codes.InvalidArgument, "batch write contains more than one write to %s", t)
		}
		seen[t] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	db, name, err := s.databaseLocked(req.Database)
	if err != nil {
		return nil, err
	}
	resp := &model.BatchWriteResponse{
		WriteResults: make([]model.WriteResult, len(req.Writes)),
		Status:       make([]model.Status, len(req.Writes)),
	}
	for i := range req.Writes {
		now := s.commitTimeLocked()
		res, err := applyWrite(db.docs, name, &req.Writes[i], now)
		if err != nil {
			st, _ := status.FromError(err)
			resp.Status[i] = model.Status{Code: int32(st.Code()), Message: st.Message()}
			continue
		}
		resp.WriteResults[i] = res
	}
	return resp, nil
}

// sortDocuments orders documents by the given orders, then by name.
func sortDocuments(docs []*model.Document, orders []model.Order) {
	sort.SliceStable(docs, func(i, j int) bool {
		return compareDocuments(docs[i], docs[j], orders) < 0
	})
}
