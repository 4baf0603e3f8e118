package emulator

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/edvin/firestore-admin/internal/admin"
	"github.com/edvin/firestore-admin/internal/config"
	"github.com/edvin/firestore-admin/internal/firestore"
	"github.com/edvin/firestore-admin/internal/retry"
	"github.com/edvin/firestore-admin/internal/transport"
)

const (
	testProject = "demo"
	testDB      = "projects/demo/databases/(default)"
	testRoot    = testDB + "/documents"
)

type testEnv struct {
	server *Server
	http   *httptest.Server
	admin  *admin.Client
	data   *firestore.Client
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := &config.Config{
		ProjectID:          testProject,
		LocationID:         "nam5",
		EmulatorExportDir:  t.TempDir(),
		EmulatorBackupTick: time.Minute,
	}
	for _, m := range mutate {
		m(cfg)
	}
	s := New(cfg, zerolog.Nop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})

	ac := admin.New(newTransport(t, srv, transport.AdminRoutes, retry.AdminDefaults()), zerolog.Nop())
	ac.SetPollPolicy(retry.PollPolicy{InitialDelay: 5 * time.Millisecond, Multiplier: 1.5, MaxDelay: 50 * time.Millisecond, TotalTimeout: 5 * time.Second})
	fc := firestore.New(newTransport(t, srv, transport.FirestoreRoutes, retry.FirestoreDefaults()), zerolog.Nop())
	return &testEnv{server: s, http: srv, admin: ac, data: fc}
}

func newTransport(t *testing.T, srv *httptest.Server, routes *transport.Routes, table *retry.Table) *transport.Client {
	t.Helper()
	tc, err := transport.New(transport.Options{
		BaseURL:     srv.URL,
		Routes:      routes,
		Retries:     table,
		HTTPClient:  srv.Client(),
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: transport.EmulatorToken}),
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	return tc
}

// fixedClock lets tests move the emulator's time.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
