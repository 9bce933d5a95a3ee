package pgstore

import (
	"context"
	"os"
	"testing"

	"github.com/DoyleJ11/handfill/internal/docstore"
	"github.com/DoyleJ11/handfill/internal/docstore/docstoretest"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("HANDFILL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("HANDFILL_TEST_DATABASE_URL not set")
	}
	return dsn
}

func openClean(t *testing.T, clock clockwork.Clock) *Store {
	t.Helper()
	s, err := Open(context.Background(), testDSN(t), clock, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, s.db.Exec("DELETE FROM rooms").Error)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestStore_Conformance(t *testing.T) {
	docstoretest.Run(t, func(t *testing.T, clock *clockwork.FakeClock) docstore.Store {
		return openClean(t, clock)
	})
}

func TestStore_DeleteLeavesTombstone(t *testing.T) {
	ctx := context.Background()
	s := openClean(t, clockwork.NewFakeClock())

	created, err := s.CompareAndSwap(ctx, "ABCD", 0, nil)
	require.NoError(t, err)
	require.False(t, created.Exists())

	var row roomRow
	require.NoError(t, s.db.Where("code = ?", "ABCD").First(&row).Error)
	require.Nil(t, row.Data)
	require.Equal(t, created.Version, row.Version)
}
