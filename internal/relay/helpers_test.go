package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Sentini2/edusp/internal/session"
	"github.com/Sentini2/edusp/internal/session/sessiontest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	registry *session.Registry
	router   *Router
	hub      *Hub
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	logger := quietLogger()
	reg := session.NewRegistry(logger)
	router := NewRouter(reg, logger)
	t.Cleanup(router.Close)
	return &fixture{
		registry: reg,
		router:   router,
		hub:      NewHub(reg, router, logger, opts...),
	}
}

func (f *fixture) agent(t *testing.T, lab string) (*Peer, *sessiontest.Conn) {
	t.Helper()
	conn := sessiontest.NewConn()
	peer, err := f.hub.Accept(context.Background(), ConnectRequest{Role: RoleAgent, TenantHint: lab, Address: "127.0.0.1"}, conn)
	require.NoError(t, err)
	return peer, conn
}

func (f *fixture) controller(t *testing.T, lab string) (*Peer, *sessiontest.Conn) {
	t.Helper()
	conn := sessiontest.NewConn()
	peer, err := f.hub.Accept(context.Background(), ConnectRequest{Role: RoleController, TenantHint: lab}, conn)
	require.NoError(t, err)
	return peer, conn
}

func rawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// waitForEvent blocks until conn has recorded at least n events named name.
func waitForEvent(t *testing.T, conn *sessiontest.Conn, name string, n int, timeout time.Duration) []sessiontest.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if got := conn.Named(name); len(got) >= n {
			return got
		}
		select {
		case <-conn.Notify():
		case <-deadline:
			t.Fatalf("timed out waiting for %d %q events, have %d", n, name, len(conn.Named(name)))
		}
	}
}

type denyGate struct{ err error }

func (g denyGate) Admit(context.Context, string, string) error { return g.err }

var errDenied = errors.New("denied")
