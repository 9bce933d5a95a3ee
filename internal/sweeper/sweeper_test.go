package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/DoyleJ11/handfill/internal/docstore"
	"github.com/DoyleJ11/handfill/internal/room"
	"github.com/DoyleJ11/handfill/internal/rooms"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// seed creates ABCD, then WXYZ 23h later, then ages the store clock 2h more so only ABCD expired.
func seed(t *testing.T) (*rooms.Client, *clockwork.FakeClock) {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	logger := zaptest.NewLogger(t)
	mem := docstore.NewMemory(context.Background(), clock, logger)
	t.Cleanup(func() { _ = mem.Close() })
	rc := rooms.NewClient(mem, clock, logger)

	host := func(code string) *room.Room {
		return room.New(code, "normal", "classic", room.NewPlayerRecord("Ana", []int{1, 2}))
	}
	_, err := rc.CreateRoom(ctx, "ABCD", host("ABCD"))
	require.NoError(t, err)
	clock.Advance(23 * time.Hour)
	_, err = rc.CreateRoom(ctx, "WXYZ", host("WXYZ"))
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	return rc, clock
}

func TestSweep_DeletesOnlyExpired(t *testing.T) {
	ctx := context.Background()
	rc, _ := seed(t)
	s, err := New(rc, clockwork.NewFakeClock(), zaptest.NewLogger(t), time.Minute)
	require.NoError(t, err)

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	codes, err := rc.Codes(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"WXYZ"}, codes)

	n, err = s.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSweeper_RunsOnSchedule(t *testing.T) {
	ctx := context.Background()
	rc, _ := seed(t)
	s, err := New(rc, clockwork.NewRealClock(), zaptest.NewLogger(t), 10*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))
	t.Cleanup(func() { require.NoError(t, s.Stop()) })

	require.Eventually(t, func() bool {
		snap, err := rc.Get(ctx, "ABCD")
		return err == nil && !snap.Exists()
	}, 3*time.Second, 10*time.Millisecond)

	snap, err := rc.Get(ctx, "WXYZ")
	require.NoError(t, err)
	require.True(t, snap.Exists())
}

func TestNew_RejectsZeroInterval(t *testing.T) {
	_, err := New(nil, nil, zaptest.NewLogger(t), 0)
	require.Error(t, err)
}
