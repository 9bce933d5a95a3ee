package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/handfill/internal/docstore"
	"github.com/DoyleJ11/handfill/internal/profile"
	"github.com/DoyleJ11/handfill/internal/room"
	"github.com/DoyleJ11/handfill/internal/rooms"
	"github.com/DoyleJ11/handfill/internal/session"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type buffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (b *buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

func newApp(t *testing.T, rc *rooms.Client, clock clockwork.Clock) (*app, *buffer) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	tracker, err := profile.NewTracker(context.Background(), profile.NewFileStore(filepath.Join(t.TempDir(), "p.json")), logger)
	require.NoError(t, err)
	out := &buffer{}
	a := &app{
		rooms:      rc,
		tracker:    tracker,
		opts:       session.Options{Clock: clock, Logger: logger, Reporter: tracker, MaxDots: 3},
		logger:     logger,
		out:        &syncWriter{w: out},
		difficulty: "easy",
		mode:       "classic",
	}
	t.Cleanup(a.leave)
	return a, out
}

func exec(t *testing.T, a *app, line string) error {
	t.Helper()
	quit, err := a.exec(context.Background(), line)
	require.False(t, quit)
	return err
}

func TestApp_CreateJoinStart(t *testing.T) {
	clock := clockwork.NewFakeClock()
	logger := zaptest.NewLogger(t)
	mem := docstore.NewMemory(context.Background(), clock, logger)
	t.Cleanup(func() { _ = mem.Close() })
	rc := rooms.NewClient(mem, clock, logger)

	host, hostOut := newApp(t, rc, clock)
	guest, _ := newApp(t, rc, clock)

	require.ErrorIs(t, exec(t, host, "create ABCD"), room.ErrNameRequired)
	require.NoError(t, exec(t, host, "name Ana"))
	require.NoError(t, exec(t, host, "create abcd"))
	require.Contains(t, hostOut.String(), "room ABCD created")

	require.ErrorIs(t, exec(t, guest, "start"), errNoRoom)
	require.NoError(t, exec(t, guest, "name Bea"))
	require.NoError(t, exec(t, guest, "join ABCD"))

	require.Eventually(t, func() bool { return host.sess.View().Opponent != nil }, 3*time.Second, 5*time.Millisecond)
	require.Error(t, exec(t, guest, "start"))
	require.NoError(t, exec(t, host, "start"))

	require.Eventually(t, func() bool {
		return strings.Contains(hostOut.String(), "[ABCD] your turn  hand 0/3 vs 0/3  [pick or roll]")
	}, 3*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return host.sess.View().Ready }, 3*time.Second, 5*time.Millisecond)

	require.Error(t, exec(t, host, "pick ten"))
	require.NoError(t, exec(t, host, "pick 10"))
	require.Eventually(t, func() bool {
		return strings.Contains(hostOut.String(), "opponent is searching for 10  hand 0/3 vs 0/3  [filling]")
	}, 3*time.Second, 5*time.Millisecond)

	require.NoError(t, exec(t, host, "board"))
	require.NoError(t, exec(t, host, "profile"))
	require.Contains(t, hostOut.String(), "Ana  level 1 (Novice)  xp 0/100 (0%)")
	require.Error(t, exec(t, host, "dance"))

	quit, err := host.exec(context.Background(), "quit")
	require.NoError(t, err)
	require.True(t, quit)
}

func TestApp_RunReadsUntilQuit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	logger := zaptest.NewLogger(t)
	mem := docstore.NewMemory(context.Background(), clock, logger)
	t.Cleanup(func() { _ = mem.Close() })

	a, out := newApp(t, rooms.NewClient(mem, clock, logger), clock)
	in := strings.NewReader("name Cy\ncreate\nroll\nquit\nname never\n")
	require.NoError(t, a.run(context.Background(), in))

	require.Nil(t, a.sess, "run leaves the room on exit")
	require.Equal(t, "Cy", a.name)
	require.Contains(t, out.String(), "hello Cy")
	require.Contains(t, out.String(), "! game has not started")
}
