package emulator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/resource"
)

const (
	namespacesDir  = "all_namespaces"
	kindPrefix     = "kind_"
	outputFile     = "output-0"
	manifestSuffix = ".overall_export_metadata"
)

// exportManifest is written next to the exported documents.
type exportManifest struct {
	Database      string    `json:"database"`
	CollectionIDs []string  `json:"collectionIds,omitempty"`
	DocumentCount int64     `json:"documentCount"`
	SnapshotTime  time.Time `json:"snapshotTime"`
}

func exportTimestamp(t time.Time) string {
	return fmt.Sprintf("%s_%05d", t.UTC().Format("2006-01-02T15:04:05"), t.Nanosecond()/10000)
}

func selected(ids []string, collection string) bool {
	return len(ids) == 0 || slices.Contains(ids, collection)
}

func collectionOf(path string) string {
	segs := strings.Split(path, "/")
	return segs[len(segs)-2]
}

func (s *Server) exportDocuments(_ context.Context, req *model.ExportDocumentsRequest) (*model.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, name, err := s.databaseLocked(req.Name)
	if err != nil {
		return nil, err
	}

	now := s.now()
	snapshot := now
	if req.SnapshotTime != nil {
		snapshot = *req.SnapshotTime
	}
	base := req.OutputURIPrefix
	if base == "" {
		base = "gs://" + name.Project + "-exports"
	}
	ts := exportTimestamp(now)
	outURI := strings.TrimRight(base, "/") + "/" + ts
	store, keyPrefix, err := s.blobs.resolve(outURI)
	if err != nil {
		return nil, err
	}

	byKind := map[string][]*model.Document{}
	var total int64
	for _, path := range sortedKeys(db.docs) {
		c := collectionOf(path)
		if selected(req.CollectionIDs, c) {
			byKind[c] = append(byKind[c], cloneDocument(db.docs[path]))
			total++
		}
	}

	var doneDocs, doneBytes, wroteDocs, wroteBytes int64
	return s.startOperationLocked(name, job{
		meta: func(state model.OperationState) model.Message {
			return model.ExportDocumentsMetadata{
				StartTime: &now, EndTime: s.endTime(state), OperationState: state,
				ProgressDocuments: &model.Progress{EstimatedWork: total, CompletedWork: doneDocs},
				ProgressBytes:     &model.Progress{EstimatedWork: doneBytes, CompletedWork: doneBytes},
				CollectionIDs:     req.CollectionIDs,
				NamespaceIDs:      req.NamespaceIDs,
				OutputURIPrefix:   outURI,
				SnapshotTime:      &snapshot,
			}
		},
		load: func() error {
			for _, kind := range sortedKeys(byKind) {
				var buf bytes.Buffer
				enc := json.NewEncoder(&buf)
				for _, d := range byKind[kind] {
					if err := enc.Encode(d); err != nil {
						return status.Errorf(codes.Internal, "encode %s: %v", d.Name, err)
					}
				}
				key := joinKey(keyPrefix, namespacesDir, kindPrefix+kind, outputFile)
				if err := store.Put(s.ctx, key, buf.Bytes()); err != nil {
					return status.Errorf(codes.Unavailable, "write export: %v", err)
				}
				wroteDocs += int64(len(byKind[kind]))
				wroteBytes += int64(buf.Len())
			}
			manifest, err := json.Marshal(exportManifest{
				Database:      name.String(),
				CollectionIDs: req.CollectionIDs,
				DocumentCount: total,
				SnapshotTime:  snapshot,
			})
			if err != nil {
				return status.Errorf(codes.Internal, "encode manifest: %v", err)
			}
			if err := store.Put(s.ctx, joinKey(keyPrefix, ts+manifestSuffix), manifest); err != nil {
				return status.Errorf(codes.Unavailable, "write export manifest: %v", err)
			}
			return nil
		},
		run: func() (model.Message, error) {
			doneDocs, doneBytes = wroteDocs, wroteBytes
			s.logger.Info().Str("database", name.String()).Str("output", outURI).Int64("documents", total).Msg("export finished")
			return model.ExportDocumentsResponse{OutputURIPrefix: outURI}, nil
		},
	})
}

func (s *Server) importDocuments(_ context.Context, req *model.ImportDocumentsRequest) (*model.Operation, error) {
	store, keyPrefix, err := s.blobs.resolve(strings.TrimRight(req.InputURIPrefix, "/"))
	if err != nil {
		return nil, err
	}
	keys, err := store.List(s.ctx, joinKey(keyPrefix, namespacesDir))
	if err != nil {
		return nil, err
	}
	var files []string
	for _, k := range keys {
		dir, file := pathSplit(k)
		kind, ok := strings.CutPrefix(dir[strings.LastIndexByte(dir, '/')+1:], kindPrefix)
		if ok && strings.HasPrefix(file, "output-") && selected(req.CollectionIDs, kind) {
			files = append(files, k)
		}
	}
	if len(files) == 0 {
		return nil, status.Errorf(codes.NotFound, "no export files found under %s", req.InputURIPrefix)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	db, name, err := s.databaseLocked(req.Name)
	if err != nil {
		return nil, err
	}

	start := s.now()
	var doneDocs, doneBytes, readBytes int64
	imported := map[string]*model.Document{}
	return s.startOperationLocked(name, job{
		meta: func(state model.OperationState) model.Message {
			return model.ImportDocumentsMetadata{
				StartTime: &start, EndTime: s.endTime(state), OperationState: state,
				ProgressDocuments: &model.Progress{EstimatedWork: doneDocs, CompletedWork: doneDocs},
				ProgressBytes:     &model.Progress{EstimatedWork: doneBytes, CompletedWork: doneBytes},
				CollectionIDs:     req.CollectionIDs,
				NamespaceIDs:      req.NamespaceIDs,
				InputURIPrefix:    req.InputURIPrefix,
			}
		},
		load: func() error {
			for _, key := range files {
				data, err := store.Get(s.ctx, key)
				if err != nil {
					return status.Errorf(codes.Unavailable, "read %s: %v", key, err)
				}
				readBytes += int64(len(data))
				sc := bufio.NewScanner(bytes.NewReader(data))
				sc.Buffer(make([]byte, 0, 64<<10), maxRequestBody)
				for sc.Scan() {
					if len(bytes.TrimSpace(sc.Bytes())) == 0 {
						continue
					}
					var d model.Document
					if err := json.Unmarshal(sc.Bytes(), &d); err != nil {
						return status.Errorf(codes.InvalidArgument, "%s: %v", key, err)
					}
					path := documentPath(d.Name)
					if _, err := resource.ParseDocumentName(d.Name); err != nil {
						return status.Errorf(codes.InvalidArgument, "%s: %v", key, err)
					}
					d.Name = renameDocument(d.Name, name)
					imported[path] = &d
				}
				if err := sc.Err(); err != nil {
					return status.Errorf(codes.InvalidArgument, "%s: %v", key, err)
				}
			}
			return nil
		},
		run: func() (model.Message, error) {
			now := s.commitTimeLocked()
			for path, d := range imported {
				d.UpdateTime = &now
				if d.CreateTime == nil {
					d.CreateTime = &now
				}
				db.docs[path] = d
			}
			doneDocs, doneBytes = int64(len(imported)), readBytes
			s.logger.Info().Str("database", name.String()).Str("input", req.InputURIPrefix).Int64("documents", doneDocs).Msg("import finished")
			return model.Empty{}, nil
		},
	})
}

func pathSplit(key string) (dir, file string) {
	i := strings.LastIndexByte(key, '/')
	if i < 0 {
		return "", key
	}
	return key[:i], key[i+1:]
}

func (s *Server) bulkDeleteDocuments(_ context.Context, req *model.BulkDeleteDocumentsRequest) (*model.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, name, err := s.databaseLocked(req.Name)
	if err != nil {
		return nil, err
	}

	start := s.now()
	var estimated int64
	for path := range db.docs {
		if selected(req.CollectionIDs, collectionOf(path)) {
			estimated++
		}
	}
	var deleted int64
	return s.startOperationLocked(name, job{
		meta: func(state model.OperationState) model.Message {
			return model.BulkDeleteDocumentsMetadata{
				StartTime: &start, EndTime: s.endTime(state), OperationState: state,
				ProgressDocuments: &model.Progress{EstimatedWork: estimated, CompletedWork: deleted},
				CollectionIDs:     req.CollectionIDs,
				NamespaceIDs:      req.NamespaceIDs,
				SnapshotTime:      &start,
			}
		},
		run: func() (model.Message, error) {
			for path := range db.docs {
				if selected(req.CollectionIDs, collectionOf(path)) {
					delete(db.docs, path)
					deleted++
				}
			}
			return model.BulkDeleteDocumentsResponse{}, nil
		},
	})
}
