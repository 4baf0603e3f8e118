package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/config"
	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/retry"
	"github.com/edvin/firestore-admin/internal/rpc"
)

func fastTable(t *testing.T, base *retry.Table, method string) *retry.Table {
	t.Helper()
	p := base.For(method)
	p.InitialRetryDelay = time.Millisecond
	p.MaxRetryDelay = 2 * time.Millisecond
	require.NoError(t, base.Set(method, p))
	return base
}

func newTestClient(t *testing.T, srv *httptest.Server, routes *Routes, table *retry.Table) *Client {
	t.Helper()
	c, err := New(Options{
		BaseURL:     srv.URL,
		Routes:      routes,
		Retries:     table,
		HTTPClient:  srv.Client(),
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: EmulatorToken}),
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	return c
}

func writeEnvelope(w http.ResponseWriter, code codes.Code, msg string) {
	httpStatus, body := Envelope(status.Error(code, msg))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(body)
}

func TestInvoke_RequestShape(t *testing.T) {
	var got *http.Request
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		gotBody, _ = io.ReadAll(r.Body)
		json.NewEncoder(w).Encode(map[string]any{"name": "projects/p/databases/d/operations/op1"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, AdminRoutes, retry.AdminDefaults())
	var op model.Operation
	err := c.Invoke(context.Background(), Call{
		RPC: rpc.CreateIndex,
		Request: &model.CreateIndexRequest{
			Parent: "projects/p/databases/d/collectionGroups/cities",
			Index:  &model.Index{QueryScope: model.QueryScopeCollection},
		},
	}, &op)
	require.NoError(t, err)

	assert.Equal(t, "projects/p/databases/d/operations/op1", op.Name)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/v1/projects/p/databases/d/collectionGroups/cities/indexes", got.URL.Path)
	assert.Equal(t, "Bearer owner", got.Header.Get("Authorization"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "parent=projects%2Fp%2Fdatabases%2Fd%2FcollectionGroups%2Fcities", got.Header.Get("x-goog-request-params"))
	assert.Contains(t, got.Header.Get("x-goog-api-client"), "gl-go/")
	assert.Equal(t, "firestore-admin-go/1.0", got.Header.Get("User-Agent"))
	assert.JSONEq(t, `{"queryScope":"COLLECTION"}`, string(gotBody))
}

func TestInvoke_ValidationFailsLocally(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, AdminRoutes, retry.AdminDefaults())
	err := c.Invoke(context.Background(), Call{RPC: rpc.GetIndex, Request: &model.GetIndexRequest{}}, nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Zero(t, calls.Load())
}

func TestInvoke_UnknownRPC(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := newTestClient(t, srv, AdminRoutes, retry.AdminDefaults())
	err := c.Invoke(context.Background(), Call{RPC: rpc.Commit, Request: &model.CommitRequest{Database: "x"}}, nil)
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestInvoke_RetriesRetryableCodes(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeEnvelope(w, codes.Unavailable, "try again")
			return
		}
		json.NewEncoder(w).Encode(model.Index{Name: "projects/p/databases/d/collectionGroups/c/indexes/i"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, AdminRoutes, fastTable(t, retry.AdminDefaults(), rpc.GetIndex))
	var idx model.Index
	err := c.Invoke(context.Background(), Call{
		RPC:     rpc.GetIndex,
		Request: &model.GetIndexRequest{Name: "projects/p/databases/d/collectionGroups/c/indexes/i"},
	}, &idx)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "projects/p/databases/d/collectionGroups/c/indexes/i", idx.Name)
}

func TestInvoke_NoRetryPolicy(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeEnvelope(w, codes.Unavailable, "down")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, AdminRoutes, retry.AdminDefaults())
	err := c.Invoke(context.Background(), Call{
		RPC:     rpc.GetDatabase,
		Request: &model.GetDatabaseRequest{Name: "projects/p/databases/d"},
	}, nil)
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.HTTPStatus)
	assert.Equal(t, "down", apiErr.Message)
}

func TestInvoke_ErrorWithoutEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, AdminRoutes, retry.AdminDefaults())
	err := c.Invoke(context.Background(), Call{
		RPC:     rpc.GetDatabase,
		Request: &model.GetDatabaseRequest{Name: "projects/p/databases/d"},
	}, nil)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestInvoke_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := New(Options{BaseURL: srv.URL, Routes: AdminRoutes, Retries: retry.AdminDefaults(), Logger: zerolog.Nop()})
	require.NoError(t, err)
	err = c.Invoke(context.Background(), Call{
		RPC:     rpc.GetDatabase,
		Request: &model.GetDatabaseRequest{Name: "projects/p/databases/d"},
	}, nil)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestInvoke_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv, AdminRoutes, retry.AdminDefaults())
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	err := c.Invoke(ctx, Call{
		RPC:     rpc.GetDatabase,
		Request: &model.GetDatabaseRequest{Name: "projects/p/databases/d"},
	}, nil)
	assert.Equal(t, codes.Canceled, status.Code(err))
}

func TestStream_DecodesArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"document":{"name":"a"}},{"document":{"name":"b"}},{"done":true}]`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, FirestoreRoutes, retry.FirestoreDefaults())
	var names []string
	err := Stream(context.Background(), c, Call{
		RPC:     rpc.RunQuery,
		Request: &model.RunQueryRequest{Parent: "projects/p/databases/d/documents"},
	}, func(r *model.RunQueryResponse) error {
		if r.Document != nil {
			names = append(names, r.Document.Name)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestStream_ConsumerErrorStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"document":{"name":"a"}},{"document":{"name":"b"}}]`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, FirestoreRoutes, retry.FirestoreDefaults())
	stop := errors.New("stop")
	n := 0
	err := Stream(context.Background(), c, Call{
		RPC:     rpc.RunQuery,
		Request: &model.RunQueryRequest{Parent: "projects/p/databases/d/documents"},
	}, func(*model.RunQueryResponse) error {
		n++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}

func TestStream_ConsumerErrorSurvivesCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"document":{"name":"a"}},{"document":{"name":"b"}}]`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, FirestoreRoutes, retry.FirestoreDefaults())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := errors.New("stop")
	err := Stream(ctx, c, Call{
		RPC:     rpc.RunQuery,
		Request: &model.RunQueryRequest{Parent: "projects/p/databases/d/documents"},
	}, func(*model.RunQueryResponse) error {
		cancel()
		return stop
	})
	assert.ErrorIs(t, err, stop)
}

func TestStream_NoRetryAfterFirstItem(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.WriteString(w, `[{"document":{"name":"a"}},{"docu`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, FirestoreRoutes, fastTable(t, retry.FirestoreDefaults(), rpc.RunQuery))
	err := Stream(context.Background(), c, Call{
		RPC:     rpc.RunQuery,
		Request: &model.RunQueryRequest{Parent: "projects/p/databases/d/documents"},
	}, func(*model.RunQueryResponse) error { return nil })
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewFromConfig_Emulator(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	cfg := &config.Config{EmulatorHost: srv.Listener.Addr().String(), UserAgent: "test/1"}
	c, err := NewFromConfig(cfg, zerolog.Nop(), AdminRoutes, retry.AdminDefaults())
	require.NoError(t, err)
	require.NoError(t, c.Invoke(context.Background(), Call{
		RPC:     rpc.GetDatabase,
		Request: &model.GetDatabaseRequest{Name: "projects/p/databases/d"},
	}, &model.Database{}))
	assert.Equal(t, "Bearer owner", auth)
}

func TestErrorFromResponse(t *testing.T) {
	e := ErrorFromResponse("x", http.StatusBadRequest, []byte(`{"error":{"code":400,"message":"bad","status":"FAILED_PRECONDITION"}}`))
	assert.Equal(t, codes.FailedPrecondition, e.Code)
	assert.Equal(t, "bad", e.Message)
	assert.Equal(t, codes.FailedPrecondition, status.Code(e))

	e = ErrorFromResponse("x", http.StatusTooManyRequests, nil)
	assert.Equal(t, codes.ResourceExhausted, e.Code)
	assert.Equal(t, "Too Many Requests", e.Message)
}

func TestEnvelope(t *testing.T) {
	code, body := Envelope(status.Error(codes.AlreadyExists, "dup"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ALREADY_EXISTS", body.Error.Status)
	assert.Equal(t, "dup", body.Error.Message)

	code, body = Envelope(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "INTERNAL", body.Error.Status)
}
