package firestore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/retry"
	"github.com/edvin/firestore-admin/internal/transport"
)

const testRoot = "projects/p/databases/d/documents"

func newStreamClient(t *testing.T, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	tc, err := transport.New(transport.Options{
		BaseURL:     srv.URL,
		Routes:      transport.FirestoreRoutes,
		Retries:     retry.FirestoreDefaults(),
		HTTPClient:  srv.Client(),
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: transport.EmulatorToken}),
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	return New(tc, zerolog.Nop())
}

const threeDocs = `[{"document":{"name":"` + testRoot + `/c/a"}},{"document":{"name":"` + testRoot + `/c/b"}},{"document":{"name":"` + testRoot + `/c/c"}}]`

func TestRunQuery_Break(t *testing.T) {
	c := newStreamClient(t, threeDocs)
	n := 0
	for resp, err := range c.RunQuery(context.Background(), &model.RunQueryRequest{Parent: testRoot}) {
		require.NoError(t, err)
		require.NotNil(t, resp.Document)
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestRunQuery_BreakAfterCancel(t *testing.T) {
	c := newStreamClient(t, threeDocs)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := 0
	assert.NotPanics(t, func() {
		for _, err := range c.RunQuery(ctx, &model.RunQueryRequest{Parent: testRoot}) {
			require.NoError(t, err)
			n++
			cancel()
			break
		}
	})
	assert.Equal(t, 1, n)
}

func TestDocuments_BreakAfterCancel(t *testing.T) {
	c := newStreamClient(t, threeDocs)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var names []string
	assert.NotPanics(t, func() {
		for doc, err := range c.Documents(ctx, &model.RunQueryRequest{Parent: testRoot}) {
			require.NoError(t, err)
			names = append(names, doc.Name)
			cancel()
			break
		}
	})
	assert.Equal(t, []string{testRoot + "/c/a"}, names)
}

func TestRunQuery_ErrorYieldedOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpStatus, body := transport.Envelope(status.Error(codes.InvalidArgument, "bad query"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpStatus)
		json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()
	tc, err := transport.New(transport.Options{
		BaseURL:    srv.URL,
		Routes:     transport.FirestoreRoutes,
		Retries:    retry.FirestoreDefaults(),
		HTTPClient: srv.Client(),
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	c := New(tc, zerolog.Nop())

	var errs []error
	for _, err := range c.RunQuery(context.Background(), &model.RunQueryRequest{Parent: testRoot}) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.Equal(t, codes.InvalidArgument, status.Code(errs[0]))
}
