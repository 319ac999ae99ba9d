package session

import (
	"io"
	"log/slog"

	"github.com/Sentini2/edusp/internal/session/sessiontest"
)

func newFakeConn() *sessiontest.Conn {
	return sessiontest.NewConn()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry() *Registry {
	return NewRegistry(quietLogger())
}
