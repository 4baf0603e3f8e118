package emulator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/transport"
)

func doRequest(t *testing.T, env *testEnv, method, path, body string, prepare ...func(*http.Request)) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, env.http.URL+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, p := range prepare {
		p(req)
	}
	resp, err := env.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, b
}

func decodeEnvelope(t *testing.T, b []byte) transport.ErrorDetail {
	t.Helper()
	var body transport.ErrorBody
	require.NoError(t, json.Unmarshal(b, &body))
	return body.Error
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	code, body := doRequest(t, env, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestDispatch_UnknownPath(t *testing.T) {
	env := newTestEnv(t)
	code, body := doRequest(t, env, http.MethodGet, "/v1/nothing/here", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", decodeEnvelope(t, body).Status)
}

func TestDispatch_MalformedBody(t *testing.T) {
	env := newTestEnv(t)
	code, body := doRequest(t, env, http.MethodPost, "/v1/"+testDB+"/documents:commit", "{")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ARGUMENT", decodeEnvelope(t, body).Status)
}

func TestDispatch_ValidationFailure(t *testing.T) {
	env := newTestEnv(t)
	code, body := doRequest(t, env, http.MethodPost, "/v1/"+testDB+"/documents:rollback", "{}")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ARGUMENT", decodeEnvelope(t, body).Status)
}

func TestDispatch_GetMissingDocument(t *testing.T) {
	env := newTestEnv(t)
	code, body := doRequest(t, env, http.MethodGet, "/v1/"+testRoot+"/users/alice", "")
	assert.Equal(t, http.StatusNotFound, code)
	detail := decodeEnvelope(t, body)
	assert.Equal(t, http.StatusNotFound, detail.Code)
	assert.Contains(t, detail.Message, "users/alice")
}

func TestBasicAuth(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cred, err := env.admin.CreateUserCreds(ctx, &model.CreateUserCredsRequest{
		Parent:      testDB,
		UserCreds:   &model.UserCreds{},
		UserCredsID: "reader",
	})
	require.NoError(t, err)
	require.NotEmpty(t, cred.SecurePassword)

	withAuth := func(user, pass string) func(*http.Request) {
		return func(r *http.Request) { r.SetBasicAuth(user, pass) }
	}
	path := "/v1/" + testRoot + "/users/alice"

	code, body := doRequest(t, env, http.MethodGet, path, "", withAuth("reader", "wrong"))
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHENTICATED", decodeEnvelope(t, body).Status)

	code, _ = doRequest(t, env, http.MethodGet, path, "", withAuth("nobody", cred.SecurePassword))
	assert.Equal(t, http.StatusUnauthorized, code)

	// Authenticated, so the request reaches the handler and finds no document.
	code, _ = doRequest(t, env, http.MethodGet, path, "", withAuth("reader", cred.SecurePassword))
	assert.Equal(t, http.StatusNotFound, code)

	_, err = env.admin.DisableUserCreds(ctx, &model.DisableUserCredsRequest{Name: cred.Name})
	require.NoError(t, err)
	code, _ = doRequest(t, env, http.MethodGet, path, "", withAuth("reader", cred.SecurePassword))
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestClearDocuments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.data.CreateDocument(ctx, &model.CreateDocumentRequest{
		Parent:       testRoot,
		CollectionID: "users",
		DocumentID:   "alice",
		Document:     &model.Document{Fields: map[string]*model.Value{"age": model.IntegerValue(30)}},
	})
	require.NoError(t, err)

	code, _ := doRequest(t, env, http.MethodDelete, "/emulator/v1/"+testRoot, "")
	require.Equal(t, http.StatusOK, code)

	_, err = env.data.GetDocument(ctx, &model.GetDocumentRequest{Name: testRoot + "/users/alice"})
	assert.Error(t, err)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	doRequest(t, env, http.MethodGet, "/v1/"+testRoot+"/users/alice", "")
	code, body := doRequest(t, env, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body)
}
