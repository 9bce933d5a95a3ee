// Package docstoretest holds the behaviour every docstore.Store implementation must share.
package docstoretest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/handfill/internal/docstore"
	"github.com/DoyleJ11/handfill/internal/room"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// Factory builds a fresh store whose commit timestamps come from clock.
type Factory func(t *testing.T, clock *clockwork.FakeClock) docstore.Store

const waitFor = 3 * time.Second

func Run(t *testing.T, newStore Factory) {
	t.Run("missing document", func(t *testing.T) { testMissing(t, newStore) })
	t.Run("create stamps server fields", func(t *testing.T) { testCreate(t, newStore) })
	t.Run("stale version conflicts", func(t *testing.T) { testConflict(t, newStore) })
	t.Run("delete keeps version moving", func(t *testing.T) { testDelete(t, newStore) })
	t.Run("watch delivers current then updates", func(t *testing.T) { testWatch(t, newStore) })
	t.Run("watch coalesces", func(t *testing.T) { testCoalesce(t, newStore) })
	t.Run("transactions do not lose updates", func(t *testing.T) { testNoLostUpdates(t, newStore) })
}

func newKey(t *testing.T) string {
	t.Helper()
	code, err := room.GenerateCode()
	require.NoError(t, err)
	return code
}

func sampleRoom() *room.Room {
	return room.New("", "normal", "classic", room.NewPlayerRecord("Ana", []int{2, 1, 3}))
}

func recv(t *testing.T, ch <-chan docstore.Snapshot) docstore.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "watch closed early")
		return snap
	case <-time.After(waitFor):
		t.Fatal("timeout waiting for snapshot")
		return docstore.Snapshot{}
	}
}

func testMissing(t *testing.T, newStore Factory) {
	s := newStore(t, clockwork.NewFakeClock())
	snap, err := s.Get(context.Background(), newKey(t))
	require.NoError(t, err)
	require.False(t, snap.Exists())
}

func testCreate(t *testing.T, newStore Factory) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	s := newStore(t, clock)
	key := newKey(t)

	snap, err := s.CompareAndSwap(ctx, key, 0, sampleRoom())
	require.NoError(t, err)
	require.True(t, snap.Exists())
	require.Greater(t, snap.Version, int64(0))
	require.Equal(t, key, snap.Room.Code)
	require.True(t, snap.Room.CreatedAt.Equal(clock.Now()))
	require.True(t, snap.Room.UpdatedAt.Equal(clock.Now()))

	clock.Advance(time.Minute)
	next := snap.Room.Clone()
	next.Status = room.StatusPlaying
	updated, err := s.CompareAndSwap(ctx, key, snap.Version, next)
	require.NoError(t, err)
	require.Greater(t, updated.Version, snap.Version)
	require.True(t, updated.Room.CreatedAt.Equal(snap.Room.CreatedAt), "createdAt must survive updates")
	require.True(t, updated.Room.LastActivity.Equal(clock.Now()))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, updated.Version, got.Version)
	require.Equal(t, room.StatusPlaying, got.Room.Status)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	require.Contains(t, keys, key)
}

func testConflict(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, clockwork.NewFakeClock())
	key := newKey(t)

	snap, err := s.CompareAndSwap(ctx, key, 0, sampleRoom())
	require.NoError(t, err)

	_, err = s.CompareAndSwap(ctx, key, 0, sampleRoom())
	require.ErrorIs(t, err, docstore.ErrConflict)

	_, err = s.CompareAndSwap(ctx, key, snap.Version+1, sampleRoom())
	require.ErrorIs(t, err, docstore.ErrConflict)
}

func testDelete(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, clockwork.NewFakeClock())
	key := newKey(t)

	created, err := s.CompareAndSwap(ctx, key, 0, sampleRoom())
	require.NoError(t, err)

	deleted, err := s.CompareAndSwap(ctx, key, created.Version, nil)
	require.NoError(t, err)
	require.False(t, deleted.Exists())
	require.Greater(t, deleted.Version, created.Version)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	require.NotContains(t, keys, key)

	_, err = s.CompareAndSwap(ctx, key, 0, sampleRoom())
	require.ErrorIs(t, err, docstore.ErrConflict, "versions restart would break watchers")

	again, err := s.CompareAndSwap(ctx, key, deleted.Version, sampleRoom())
	require.NoError(t, err)
	require.Greater(t, again.Version, deleted.Version)
}

func testWatch(t *testing.T, newStore Factory) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newStore(t, clockwork.NewFakeClock())
	key := newKey(t)

	created, err := s.CompareAndSwap(ctx, key, 0, sampleRoom())
	require.NoError(t, err)

	watchCtx, stop := context.WithCancel(ctx)
	ch, err := s.Watch(watchCtx, key)
	require.NoError(t, err)

	first := recv(t, ch)
	require.Equal(t, created.Version, first.Version)
	require.Equal(t, "Ana", first.Room.Player(room.SeatOne).Name)

	next := first.Room.Clone()
	next.Players[room.SeatTwo] = room.NewPlayerRecord("Bea", []int{1, 2, 3})
	committed, err := s.CompareAndSwap(ctx, key, first.Version, next)
	require.NoError(t, err)

	second := recv(t, ch)
	require.Equal(t, committed.Version, second.Version)
	require.Equal(t, "Bea", second.Room.Player(room.SeatTwo).Name)

	_, err = s.CompareAndSwap(ctx, key, committed.Version, nil)
	require.NoError(t, err)
	require.False(t, recv(t, ch).Exists())

	stop()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, waitFor, 10*time.Millisecond)
}

func testCoalesce(t *testing.T, newStore Factory) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newStore(t, clockwork.NewFakeClock())
	key := newKey(t)

	ch, err := s.Watch(ctx, key)
	require.NoError(t, err)
	require.False(t, recv(t, ch).Exists())

	var last docstore.Snapshot
	version := int64(0)
	for i := 0; i < 20; i++ {
		r := sampleRoom()
		r.ResetVersion = i
		last, err = s.CompareAndSwap(ctx, key, version, r)
		require.NoError(t, err)
		version = last.Version
	}

	var got docstore.Snapshot
	for got.Version < last.Version {
		snap := recv(t, ch)
		require.Greater(t, snap.Version, got.Version, "snapshots must never go backwards")
		got = snap
	}
	require.Equal(t, 19, got.Room.ResetVersion)
}

func testNoLostUpdates(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, clockwork.NewFakeClock())
	key := newKey(t)

	_, err := s.CompareAndSwap(ctx, key, 0, sampleRoom())
	require.NoError(t, err)

	const perWorker = 10
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for done := 0; done < perWorker; {
				_, err := docstore.RunTransaction(ctx, s, key, func(cur *room.Room) (docstore.Write, error) {
					cur.Players[room.SeatOne].HandProgress++
					return docstore.Put(cur), nil
				})
				if errors.Is(err, docstore.ErrContention) {
					continue
				}
				if err != nil {
					errs <- err
					return
				}
				done++
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 2*perWorker, got.Room.Player(room.SeatOne).HandProgress)
}
