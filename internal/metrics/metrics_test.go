package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer_Healthz(t *testing.T) {
	srv := NewServer(":0")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestNewServer_Metrics(t *testing.T) {
	ObserveRPC("test/Scrape", "OK", time.Millisecond)

	srv := NewServer(":0")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `firestore_client_requests_total{code="OK",rpc="test/Scrape"}`)
}

func TestObserveRPC(t *testing.T) {
	before := counterValue(t, clientRequestsTotal.WithLabelValues("test/Get", "OK"))
	ObserveRPC("test/Get", "OK", 10*time.Millisecond)
	assert.Equal(t, before+1, counterValue(t, clientRequestsTotal.WithLabelValues("test/Get", "OK")))

	retries := counterValue(t, clientRetriesTotal.WithLabelValues("test/Get"))
	ObserveRetry("test/Get")
	assert.Equal(t, retries+1, counterValue(t, clientRetriesTotal.WithLabelValues("test/Get")))
}

func TestHTTP_RoutePatternAndOverride(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTP)
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/v1/*", func(w http.ResponseWriter, r *http.Request) {
		SetRoute(r.Context(), "Svc/Get")
		io.WriteString(w, "{}")
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/items/42")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, float64(1), counterValue(t, httpRequestsTotal.WithLabelValues("GET", "/items/{id}", "418")))

	resp, err = http.Get(srv.URL + "/v1/anything")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, float64(1), counterValue(t, httpRequestsTotal.WithLabelValues("GET", "Svc/Get", "200")))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
