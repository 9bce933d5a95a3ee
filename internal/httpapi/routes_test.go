package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DoyleJ11/handfill/internal/docstore"
	"github.com/DoyleJ11/handfill/internal/room"
	"github.com/DoyleJ11/handfill/internal/types"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newRouter(t *testing.T) (http.Handler, *docstore.Memory) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	mem := docstore.NewMemory(context.Background(), clockwork.NewFakeClock(), logger)
	t.Cleanup(func() { _ = mem.Close() })
	return SetupRoutes(mem, logger), mem
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func putBody(t *testing.T, expected int64) string {
	t.Helper()
	b, err := json.Marshal(types.PutRequest{
		ExpectedVersion: expected,
		Room:            room.New("ABCD", "normal", "classic", room.NewPlayerRecord("Ana", []int{1})),
	})
	require.NoError(t, err)
	return string(b)
}

func TestRoutes_StatusCodes(t *testing.T) {
	h, _ := newRouter(t)

	cases := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"healthz", http.MethodGet, "/healthz", "", http.StatusOK},
		{"bad code", http.MethodGet, "/rooms/AB", "", http.StatusBadRequest},
		{"missing room is not an error", http.MethodGet, "/rooms/WXYZ", "", http.StatusOK},
		{"bad json", http.MethodPut, "/rooms/ABCD", "{", http.StatusBadRequest},
		{"no room", http.MethodPut, "/rooms/ABCD", `{"expectedVersion":0}`, http.StatusBadRequest},
		{"bad delete version", http.MethodDelete, "/rooms/ABCD?expectedVersion=x", "", http.StatusBadRequest},
		{"stale put", http.MethodPut, "/rooms/ABCD", putBody(t, 3), http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.target, tc.body)
			require.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestRoutes_PutGetListDelete(t *testing.T) {
	h, _ := newRouter(t)

	rec := do(t, h, http.MethodPut, "/rooms/abcd", putBody(t, 0))
	require.Equal(t, http.StatusOK, rec.Code)
	var doc types.DocumentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Equal(t, "ABCD", doc.Key)
	require.Equal(t, int64(1), doc.Version)

	rec = do(t, h, http.MethodGet, "/rooms/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var keys types.KeysResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &keys))
	require.Equal(t, []string{"ABCD"}, keys.Keys)

	require.Equal(t, http.StatusConflict, do(t, h, http.MethodDelete, "/rooms/ABCD?expectedVersion=0", "").Code)
	rec = do(t, h, http.MethodDelete, "/rooms/ABCD?expectedVersion=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Nil(t, doc.Room)
	require.Equal(t, int64(2), doc.Version)
}
