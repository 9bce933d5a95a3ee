package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DoyleJ11/handfill/internal/docstore"
	"github.com/DoyleJ11/handfill/internal/engine"
	"github.com/DoyleJ11/handfill/internal/room"
	"github.com/DoyleJ11/handfill/internal/rooms"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const waitFor = 3 * time.Second

type recordingReporter struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *recordingReporter) ReportOutcome(o Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return nil
}

func (r *recordingReporter) all() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}

type harness struct {
	clock *clockwork.FakeClock
	mem   *docstore.Memory
	rc    *rooms.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := clockwork.NewFakeClock()
	logger := zaptest.NewLogger(t)
	mem := docstore.NewMemory(context.Background(), clock, logger)
	t.Cleanup(func() { _ = mem.Close() })
	return &harness{clock: clock, mem: mem, rc: rooms.NewClient(mem, clock, logger)}
}

func (h *harness) opts(t *testing.T, rep OutcomeReporter) Options {
	return Options{Clock: h.clock, Logger: zaptest.NewLogger(t), Reporter: rep, MaxDots: 3}
}

func waitView(t *testing.T, s *Session, cond func(View) bool) View {
	t.Helper()
	require.Eventually(t, func() bool { return cond(s.View()) }, waitFor, 5*time.Millisecond)
	return s.View()
}

func closeOnCleanup(t *testing.T, s *Session) {
	t.Cleanup(func() { require.NoError(t, s.Close()) })
}

func TestSession_FullGame(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	anaRep, beaRep := &recordingReporter{}, &recordingReporter{}

	ana, err := Create(ctx, h.rc, h.opts(t, anaRep), " Ana ", "abcd", "easy", "classic")
	require.NoError(t, err)
	closeOnCleanup(t, ana)
	require.Equal(t, "ABCD", ana.Code())

	v := waitView(t, ana, func(v View) bool { return v.Me != nil })
	require.Equal(t, StatusWaitingOpponent, v.StatusText)
	require.Len(t, v.Me.Board, 50)

	require.ErrorIs(t, ana.Start(ctx), ErrNoOpponent)

	bea, err := Join(ctx, h.rc, h.opts(t, beaRep), "Bea", "ABCD")
	require.NoError(t, err)
	closeOnCleanup(t, bea)
	require.ErrorIs(t, bea.Start(ctx), ErrNotHost)

	waitView(t, ana, func(v View) bool { return v.Opponent != nil })
	require.NoError(t, ana.Start(ctx))

	started := func(v View) bool { return v.Status == room.StatusPlaying && v.ResetVersion == 1 && v.Ready }
	v = waitView(t, ana, started)
	require.Equal(t, StatusYourTurn, v.StatusText)
	v = waitView(t, bea, started)
	require.Equal(t, StatusWaitingForNumber, v.StatusText)

	require.ErrorIs(t, bea.Choose(ctx, 5), engine.ErrNotYourTurn)
	require.ErrorIs(t, ana.Choose(ctx, 51), engine.ErrNumberOutOfRange)
	require.NoError(t, ana.Choose(ctx, 42))

	v = waitView(t, ana, func(v View) bool { return v.HasTarget() })
	require.Equal(t, "opponent is searching for 42", v.StatusText)
	require.True(t, v.Filling)
	v = waitView(t, bea, func(v View) bool { return v.HasTarget() })
	require.Equal(t, "find 42 on your board", v.StatusText)
	require.False(t, v.Filling)

	require.ErrorIs(t, ana.Found(ctx, 42), engine.ErrOwnTurn)
	require.ErrorIs(t, bea.Found(ctx, 41), ErrNotTheNumber)
	require.Equal(t, "that is not the number", bea.View().Message)
	require.NoError(t, bea.Found(ctx, 42))

	v = waitView(t, bea, func(v View) bool { return !v.HasTarget() && v.CurrentPlayer == room.SeatTwo })
	require.Equal(t, StatusYourTurn, v.StatusText)
	require.Empty(t, v.Message)
	require.Equal(t, []int{42}, v.Me.Found)
	waitView(t, ana, func(v View) bool { return !v.Filling })

	n, err := bea.Roll(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 1)
	require.LessOrEqual(t, n, 50)
	waitView(t, bea, func(v View) bool { return v.Filling })

	require.Eventually(t, func() bool {
		h.clock.Advance(TickInterval)
		return bea.View().Status == room.StatusFinished
	}, waitFor, 5*time.Millisecond)

	v = waitView(t, bea, func(v View) bool { return !v.Filling })
	require.Equal(t, StatusYouWin, v.StatusText)
	require.Equal(t, 3, v.Me.HandProgress)
	v = waitView(t, ana, func(v View) bool { return v.Status == room.StatusFinished })
	require.Equal(t, "Bea wins", v.StatusText)

	require.Eventually(t, func() bool { return len(anaRep.all()) == 1 && len(beaRep.all()) == 1 }, waitFor, 5*time.Millisecond)
	require.True(t, beaRep.all()[0].Won)
	require.False(t, anaRep.all()[0].Won)
	require.Equal(t, "easy", beaRep.all()[0].Difficulty)

	// A restart redeals both boards and clears the hands.
	require.NoError(t, ana.Start(ctx))
	v = waitView(t, bea, func(v View) bool {
		return v.ResetVersion == 2 && v.Ready && v.Me != nil && v.Me.HandProgress == 0 && len(v.Me.Found) == 0
	})
	require.Equal(t, room.StatusPlaying, v.Status)
	require.Len(t, beaRep.all(), 1)
}

var errStoreDown = errors.New("store unavailable")

// failingStore rejects every write while armed.
type failingStore struct {
	docstore.Store
	armed    atomic.Bool
	failures atomic.Int32
}

func (f *failingStore) CompareAndSwap(ctx context.Context, key string, expected int64, doc *room.Room) (docstore.Snapshot, error) {
	if f.armed.Load() {
		f.failures.Add(1)
		return docstore.Snapshot{}, errStoreDown
	}
	return f.Store.CompareAndSwap(ctx, key, expected, doc)
}

func TestSession_FailedRedealIsRetriedByTheNextIntent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	flaky := &failingStore{Store: h.mem}
	anaRooms := rooms.NewClient(flaky, h.clock, zaptest.NewLogger(t))

	ana, err := Create(ctx, anaRooms, h.opts(t, nil), "Ana", "ABCD", "easy", "classic")
	require.NoError(t, err)
	closeOnCleanup(t, ana)
	bea, err := Join(ctx, h.rc, h.opts(t, nil), "Bea", "ABCD")
	require.NoError(t, err)
	closeOnCleanup(t, bea)
	waitView(t, ana, func(v View) bool { return v.Opponent != nil })

	// Seat 1's push fails; seat 2's succeeds and is the last commit in the room.
	flaky.armed.Store(true)
	_, err = h.rc.StartGame(ctx, "ABCD", 1)
	require.NoError(t, err)
	waitView(t, bea, func(v View) bool { return v.ResetVersion == 1 && v.Ready })
	latest, err := h.mem.Get(ctx, "ABCD")
	require.NoError(t, err)
	v := waitView(t, ana, func(v View) bool { return v.Version == latest.Version && v.Message != "" })
	require.Equal(t, "something went wrong, try again", v.Message)
	require.Never(t, func() bool { return ana.View().Ready }, 50*time.Millisecond, 5*time.Millisecond)
	require.Positive(t, flaky.failures.Load())

	flaky.armed.Store(false)
	n, err := ana.Roll(ctx)
	require.NoError(t, err)

	v = waitView(t, ana, func(v View) bool { return v.Ready && v.HasTarget() })
	require.Equal(t, n, *v.TargetNumber)
	require.Equal(t, []int{n}, v.Me.Used)
	require.Len(t, v.Me.Board, 50)
	require.Empty(t, v.Message)
}

func TestSession_CloseStopsTheFillTimer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ana, err := Create(ctx, h.rc, h.opts(t, nil), "Ana", "ABCD", "easy", "classic")
	require.NoError(t, err)
	closeOnCleanup(t, ana)
	bea, err := Join(ctx, h.rc, h.opts(t, nil), "Bea", "ABCD")
	require.NoError(t, err)
	closeOnCleanup(t, bea)
	waitView(t, ana, func(v View) bool { return v.Opponent != nil })

	require.NoError(t, ana.Start(ctx))
	waitView(t, ana, func(v View) bool { return v.Status == room.StatusPlaying && v.Ready })
	require.NoError(t, ana.Choose(ctx, 7))
	waitView(t, ana, func(v View) bool { return v.Filling })
	require.Eventually(t, ana.timer.Running, waitFor, 5*time.Millisecond)

	require.NoError(t, ana.Close())
	require.False(t, ana.timer.Running())

	progress := func() int {
		snap, err := h.mem.Get(ctx, "ABCD")
		if err != nil || !snap.Exists() {
			return -1
		}
		return snap.Room.Player(room.SeatOne).HandProgress
	}
	before := progress()
	for range 5 {
		h.clock.Advance(TickInterval)
	}
	require.Never(t, func() bool { return progress() != before }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestSession_RoomClosed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ana, err := Create(ctx, h.rc, h.opts(t, nil), "Ana", "ABCD", "normal", "classic")
	require.NoError(t, err)
	closeOnCleanup(t, ana)
	waitView(t, ana, func(v View) bool { return v.Me != nil })

	snap, err := h.mem.Get(ctx, "ABCD")
	require.NoError(t, err)
	_, err = h.mem.CompareAndSwap(ctx, "ABCD", snap.Version, nil)
	require.NoError(t, err)

	v := waitView(t, ana, func(v View) bool { return v.Closed })
	require.Equal(t, StatusRoomClosed, v.StatusText)
	require.ErrorIs(t, ana.Found(ctx, 1), ErrRoomClosed)
}

func TestSession_JoinFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := Join(ctx, h.rc, h.opts(t, nil), "Bea", "ZZZZ")
	require.ErrorIs(t, err, engine.ErrRoomMissing)

	_, err = Join(ctx, h.rc, h.opts(t, nil), "  ", "ZZZZ")
	require.ErrorIs(t, err, room.ErrNameRequired)

	_, err = Join(ctx, h.rc, h.opts(t, nil), "Bea", "Z")
	require.ErrorIs(t, err, room.ErrInvalidCode)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	h := newHarness(t)
	s, err := Create(context.Background(), h.rc, h.opts(t, nil), "Ana", "", "normal", "classic")
	require.NoError(t, err)
	require.Len(t, s.Code(), room.CodeLength)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, ok := <-s.Views()
	for ok {
		_, ok = <-s.Views()
	}
}

func TestMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{engine.ErrRoomFull, "room full"},
		{fmt.Errorf("join: %w", engine.ErrRoomExpired), "room expired"},
		{ErrNotTheNumber, "that is not the number"},
		{errors.New("connection reset"), "something went wrong, try again"},
		{docstore.ErrContention, "something went wrong, try again"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Message(tc.err))
	}
}
