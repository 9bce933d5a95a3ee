package remote_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/DoyleJ11/handfill/internal/docstore"
	"github.com/DoyleJ11/handfill/internal/docstore/docstoretest"
	"github.com/DoyleJ11/handfill/internal/docstore/remote"
	"github.com/DoyleJ11/handfill/internal/httpapi"
	"github.com/DoyleJ11/handfill/internal/room"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newServer(t *testing.T, clock clockwork.Clock) *httptest.Server {
	t.Helper()
	logger := zaptest.NewLogger(t)
	mem := docstore.NewMemory(context.Background(), clock, logger)
	srv := httptest.NewServer(httpapi.SetupRoutes(mem, logger))
	t.Cleanup(func() {
		_ = mem.Close()
		srv.Close()
	})
	return srv
}

func TestClient_Conformance(t *testing.T) {
	docstoretest.Run(t, func(t *testing.T, clock *clockwork.FakeClock) docstore.Store {
		srv := newServer(t, clock)
		return remote.New(srv.URL, nil, zaptest.NewLogger(t))
	})
}

func TestClient_RejectsBadCode(t *testing.T) {
	srv := newServer(t, clockwork.NewFakeClock())
	c := remote.New(srv.URL, nil, nil)

	_, err := c.Get(context.Background(), "NOPE0")
	require.ErrorContains(t, err, "status 400")

	_, err = c.CompareAndSwap(context.Background(), "ab", 0, room.New("", "easy", "classic", room.NewPlayerRecord("Ana", nil)))
	require.Error(t, err)
}

func TestClient_WatchFailsWhenServerIsDown(t *testing.T) {
	srv := newServer(t, clockwork.NewFakeClock())
	url := srv.URL
	srv.Close()

	_, err := remote.New(url, nil, nil).Watch(context.Background(), "ABCD")
	require.Error(t, err)
}
