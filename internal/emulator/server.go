// Package emulator is an in-memory Firestore server speaking the same
// REST surface as the admin and firestore clients. It serves the route
// tables the clients use, so every RPC the clients can send is decoded
// by the binding that encoded it.
package emulator

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/config"
	"github.com/edvin/firestore-admin/internal/metrics"
	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/resource"
	"github.com/edvin/firestore-admin/internal/rpc"
	"github.com/edvin/firestore-admin/internal/transport"
)

const maxRequestBody = 16 << 20

// Server holds the emulated state of every project it has seen.
type Server struct {
	cfg       *config.Config
	logger    zerolog.Logger
	routes    *transport.Routes
	endpoints map[string]endpoint
	blobs     *blobResolver
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.RWMutex
	lastCommit time.Time
	projects   map[string]*project
	operations map[string]*operation
	opOrder    []string
}

// New creates an emulator. Close releases its background work.
func New(cfg *config.Config, logger zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		logger:     logger.With().Str("component", "emulator").Logger(),
		routes:     transport.Merge(transport.AdminRoutes, transport.FirestoreRoutes),
		blobs:      newBlobResolver(cfg),
		now:        func() time.Time { return time.Now().UTC() },
		ctx:        ctx,
		cancel:     cancel,
		projects:   map[string]*project{},
		operations: map[string]*operation{},
	}
	s.endpoints = s.registerEndpoints()
	return s
}

// Handler returns the HTTP handler serving the REST surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.HTTP)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/emulator/v1/*", s.handleBackupNow)
	r.Delete("/emulator/v1/projects/{project}/databases/{database}/documents", s.handleClearDocuments)
	r.HandleFunc("/v1/*", s.dispatch)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, status.Errorf(codes.NotFound, "no such path: %s", r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, status.Errorf(codes.Unimplemented, "method %s not allowed on %s", r.Method, r.URL.Path))
	})
	return r
}

// Run drives the backup scheduler until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	tick := s.cfg.EmulatorBackupTick
	if tick <= 0 {
		tick = time.Minute
	}
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.ctx.Done():
			return nil
		case <-t.C:
			s.runSchedules(s.now())
		}
	}
}

// Close stops pending operations and waits for them to return.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

type endpoint struct {
	newReq func() any
	serve  func(w http.ResponseWriter, r *http.Request, req any) error
}

func unary[Req, Resp any](h func(context.Context, *Req) (*Resp, error)) endpoint {
	return endpoint{
		newReq: func() any { return new(Req) },
		serve: func(w http.ResponseWriter, r *http.Request, req any) error {
			resp, err := h(r.Context(), req.(*Req))
			if err != nil {
				return err
			}
			writeJSON(w, http.StatusOK, resp)
			return nil
		},
	}
}

func streaming[Req, Item any](h func(context.Context, *Req) ([]*Item, error)) endpoint {
	return endpoint{
		newReq: func() any { return new(Req) },
		serve: func(w http.ResponseWriter, r *http.Request, req any) error {
			items, err := h(r.Context(), req.(*Req))
			if err != nil {
				return err
			}
			writeStream(w, items)
			return nil
		},
	}
}

func (s *Server) registerEndpoints() map[string]endpoint {
	return map[string]endpoint{
		rpc.CreateIndex:         unary(s.createIndex),
		rpc.ListIndexes:         unary(s.listIndexes),
		rpc.GetIndex:            unary(s.getIndex),
		rpc.DeleteIndex:         unary(s.deleteIndex),
		rpc.GetField:            unary(s.getField),
		rpc.UpdateField:         unary(s.updateField),
		rpc.ListFields:          unary(s.listFields),
		rpc.ExportDocuments:     unary(s.exportDocuments),
		rpc.ImportDocuments:     unary(s.importDocuments),
		rpc.BulkDeleteDocuments: unary(s.bulkDeleteDocuments),

		rpc.CreateDatabase: unary(s.createDatabase),
		rpc.GetDatabase:    unary(s.getDatabase),
		rpc.ListDatabases:  unary(s.listDatabases),
		rpc.UpdateDatabase: unary(s.updateDatabase),
		rpc.DeleteDatabase: unary(s.deleteDatabase),

		rpc.CreateUserCreds:   unary(s.createUserCreds),
		rpc.GetUserCreds:      unary(s.getUserCreds),
		rpc.ListUserCreds:     unary(s.listUserCreds),
		rpc.EnableUserCreds:   unary(s.enableUserCreds),
		rpc.DisableUserCreds:  unary(s.disableUserCreds),
		rpc.ResetUserPassword: unary(s.resetUserPassword),
		rpc.DeleteUserCreds:   unary(s.deleteUserCreds),

		rpc.GetBackup:       unary(s.getBackup),
		rpc.ListBackups:     unary(s.listBackups),
		rpc.DeleteBackup:    unary(s.deleteBackup),
		rpc.RestoreDatabase: unary(s.restoreDatabase),

		rpc.CreateBackupSchedule: unary(s.createBackupSchedule),
		rpc.GetBackupSchedule:    unary(s.getBackupSchedule),
		rpc.ListBackupSchedules:  unary(s.listBackupSchedules),
		rpc.UpdateBackupSchedule: unary(s.updateBackupSchedule),
		rpc.DeleteBackupSchedule: unary(s.deleteBackupSchedule),

		rpc.GetOperation:    unary(s.getOperation),
		rpc.ListOperations:  unary(s.listOperations),
		rpc.CancelOperation: unary(s.cancelOperation),
		rpc.DeleteOperation: unary(s.deleteOperation),

		rpc.GetDocument:         unary(s.getDocument),
		rpc.ListDocuments:       unary(s.listDocuments),
		rpc.CreateDocument:      unary(s.createDocument),
		rpc.UpdateDocument:      unary(s.updateDocument),
		rpc.DeleteDocument:      unary(s.deleteDocument),
		rpc.BatchGetDocuments:   streaming(s.batchGetDocuments),
		rpc.BeginTransaction:    unary(s.beginTransaction),
		rpc.Commit:              unary(s.commit),
		rpc.Rollback:            unary(s.rollback),
		rpc.RunQuery:            streaming(s.runQuery),
		rpc.RunAggregationQuery: streaming(s.runAggregationQuery),
		rpc.PartitionQuery:      unary(s.partitionQuery),
		rpc.ListCollectionIds:   unary(s.listCollectionIds),
		rpc.BatchWrite:          unary(s.batchWrite),
	}
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	route, params, ok := s.routes.MatchWhere(r.Method, r.URL.EscapedPath(), acceptBinding)
	if !ok {
		writeError(w, r, status.Errorf(codes.NotFound, "no RPC bound to %s %s", r.Method, r.URL.Path))
		return
	}
	metrics.SetRoute(r.Context(), rpc.Short(route.RPC))

	ep, ok := s.endpoints[route.RPC]
	if !ok {
		writeError(w, r, status.Errorf(codes.Unimplemented, "%s is not implemented by the emulator", route.RPC))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, r, status.Errorf(codes.InvalidArgument, "read body: %v", err))
		return
	}
	req := ep.newReq()
	if err := transport.Decode(route, params, r.URL.Query(), body, req); err != nil {
		writeError(w, r, status.Error(codes.InvalidArgument, err.Error()))
		return
	}
	if err := model.Validate(req); err != nil {
		writeError(w, r, status.Error(codes.InvalidArgument, err.Error()))
		return
	}
	if err := s.authenticate(r, params); err != nil {
		writeError(w, r, err)
		return
	}

	zerolog.Ctx(r.Context()).Debug().Str("rpc", rpc.Short(route.RPC)).Msg("dispatch")
	if err := ep.serve(w, r, req); err != nil {
		writeError(w, r, err)
	}
}

// acceptBinding separates routes whose templates overlap: a document name
// has an even number of path segments, a list or create parent an odd
// one relative to the documents root.
func acceptBinding(route *transport.Route, params map[string]string) bool {
	switch route.RPC {
	case rpc.GetDocument, rpc.DeleteDocument:
		return resource.IsDocumentName(params["name"])
	case rpc.UpdateDocument:
		return resource.IsDocumentName(params["document.name"])
	case rpc.ListDocuments, rpc.CreateDocument, rpc.RunQuery, rpc.RunAggregationQuery,
		rpc.PartitionQuery, rpc.ListCollectionIds:
		_, _, err := resource.SplitParent(params["parent"])
		return err == nil
	}
	return true
}

var databasePrefix = regexp.MustCompile(`^projects/[^/]+/databases/[^/:]+`)

// authenticate checks HTTP basic credentials against the user creds of the
// database a request targets. Requests without basic auth pass, as bearer
// tokens are not verified.
func (s *Server) authenticate(r *http.Request, params map[string]string) error {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return nil
	}
	var dbName string
	for _, v := range params {
		if m := databasePrefix.FindString(v); m != "" {
			dbName = m
			break
		}
	}
	if dbName == "" {
		return status.Error(codes.Unauthenticated, "basic auth requires a database scoped request")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	db, _, err := s.databaseLocked(dbName)
	if err != nil {
		return status.Error(codes.Unauthenticated, "invalid credentials")
	}
	cred, ok := db.creds[user]
	if !ok || cred.meta.State != model.UserCredsEnabled || !checkPassword(cred.hash, pass) {
		return status.Error(codes.Unauthenticated, "invalid credentials")
	}
	return nil
}

// handleBackupNow serves POST /emulator/v1/{database}:backup, taking a
// backup of the database outside of any schedule.
func (s *Server) handleBackupNow(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	name, ok := strings.CutSuffix(path, ":backup")
	if !ok {
		writeError(w, r, status.Errorf(codes.NotFound, "no such path: %s", r.URL.Path))
		return
	}
	var retention time.Duration
	if v := r.URL.Query().Get("retention"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			writeError(w, r, status.Errorf(codes.InvalidArgument, "retention: %v", err))
			return
		}
		retention = d
	}

	s.mu.Lock()
	b, err := s.backupNowLocked(name, retention)
	s.mu.Unlock()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleClearDocuments drops every document of a database, as the local
// emulator's reset endpoint does.
func (s *Server) handleClearDocuments(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("projects/%s/databases/%s", chi.URLParam(r, "project"), chi.URLParam(r, "database"))
	s.mu.Lock()
	defer s.mu.Unlock()
	db, _, err := s.databaseLocked(name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	db.docs = map[string]*model.Document{}
	db.txs = map[string]*txState{}
	writeJSON(w, http.StatusOK, model.Empty{})
}

func txKey(id []byte) string { return base64.StdEncoding.EncodeToString(id) }
