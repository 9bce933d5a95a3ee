package docstore

import (
	"context"
	"slices"

	"github.com/DoyleJ11/handfill/internal/room"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type memMsg interface{ isMemMsg() }

type getDoc struct {
	Key   string
	Reply chan Snapshot
}

type casDoc struct {
	Key      string
	Expected int64
	Doc      *room.Room
	Reply    chan casResult
}

type casResult struct {
	Snap Snapshot
	Err  error
}

type subscribe struct {
	Key    string
	ID     string
	Outbox chan Snapshot
}

type unsubscribe struct {
	Key string
	ID  string
}

type listKeys struct {
	Reply chan []string
}

// countWatchers is test-only: reflect internal state without data races.
type countWatchers struct {
	Key   string
	Reply chan int
}

func (getDoc) isMemMsg()        {}
func (casDoc) isMemMsg()        {}
func (subscribe) isMemMsg()     {}
func (unsubscribe) isMemMsg()   {}
func (listKeys) isMemMsg()      {}
func (countWatchers) isMemMsg() {}

type memEntry struct {
	version  int64
	room     *room.Room
	watchers map[string]chan Snapshot
}

func (e *memEntry) snapshot(key string) Snapshot {
	return Snapshot{Key: key, Version: e.version, Room: e.room.Clone()}
}

// Memory is a Store whose documents live in a single actor goroutine. Every commit is
// serialized through the inbox, which is what makes CompareAndSwap atomic.
type Memory struct {
	inbox  chan memMsg
	docs   map[string]*memEntry
	clock  clockwork.Clock
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewMemory(parent context.Context, clock clockwork.Clock, logger *zap.Logger) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	m := &Memory{
		inbox:  make(chan memMsg, 64),
		docs:   make(map[string]*memEntry),
		clock:  clock,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *Memory) loop() {
	defer close(m.done)
	for {
		select {
		case <-m.ctx.Done():
			m.shutdown()
			return

		case msg := <-m.inbox:
			switch msg := msg.(type) {
			case getDoc:
				msg.Reply <- m.entry(msg.Key).snapshot(msg.Key)
				m.forget(msg.Key)

			case casDoc:
				msg.Reply <- m.commit(msg)

			case subscribe:
				// Register watcher + send current snapshot immediately
				e := m.entry(msg.Key)
				e.watchers[msg.ID] = msg.Outbox
				Offer(msg.Outbox, e.snapshot(msg.Key))

			case unsubscribe:
				e := m.docs[msg.Key]
				if e == nil {
					break
				}
				if ch, ok := e.watchers[msg.ID]; ok {
					close(ch)
					delete(e.watchers, msg.ID)
				}
				m.forget(msg.Key)

			case listKeys:
				keys := make([]string, 0, len(m.docs))
				for k, e := range m.docs {
					if e.room != nil {
						keys = append(keys, k)
					}
				}
				slices.Sort(keys)
				msg.Reply <- keys

			case countWatchers:
				n := 0
				if e := m.docs[msg.Key]; e != nil {
					n = len(e.watchers)
				}
				msg.Reply <- n
			}
		}
	}
}

func (m *Memory) entry(key string) *memEntry {
	e := m.docs[key]
	if e == nil {
		e = &memEntry{watchers: make(map[string]chan Snapshot)}
		m.docs[key] = e
	}
	return e
}

// forget drops bookkeeping for a key nobody holds. Tombstones (deleted documents, version > 0)
// are kept so a later create continues from their version; there is at most one per room code.
func (m *Memory) forget(key string) {
	e := m.docs[key]
	if e != nil && e.room == nil && e.version == 0 && len(e.watchers) == 0 {
		delete(m.docs, key)
	}
}

func (m *Memory) commit(msg casDoc) casResult {
	e := m.entry(msg.Key)
	if e.version != msg.Expected {
		m.forget(msg.Key)
		return casResult{Snap: e.snapshot(msg.Key), Err: ErrConflict}
	}

	e.room = Stamp(msg.Doc, msg.Key, m.clock.Now())
	e.version++
	snap := e.snapshot(msg.Key)
	m.logger.Debug("document committed",
		zap.String("key", msg.Key),
		zap.Int64("version", e.version),
		zap.Bool("deleted", e.room == nil))
	m.broadcast(e, snap)
	return casResult{Snap: snap}
}

func (m *Memory) broadcast(e *memEntry, snap Snapshot) {
	for _, ch := range e.watchers {
		Offer(ch, Snapshot{Key: snap.Key, Version: snap.Version, Room: snap.Room.Clone()})
	}
}

func (m *Memory) shutdown() {
	for _, e := range m.docs {
		for id, ch := range e.watchers {
			close(ch) // Tell watcher no more snapshots
			delete(e.watchers, id)
		}
	}
}

// Offer hands snap to a watch channel of capacity one, replacing whatever the reader has
// not taken yet. It never blocks as long as the caller is the channel's only sender.
func Offer(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

func (m *Memory) send(ctx context.Context, msg memMsg) error {
	select {
	case m.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
}

func await[T any](ctx context.Context, m *Memory, reply chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-m.done:
		return zero, ErrClosed
	}
}

func (m *Memory) Get(ctx context.Context, key string) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := m.send(ctx, getDoc{Key: key, Reply: reply}); err != nil {
		return Snapshot{}, err
	}
	return await(ctx, m, reply)
}

func (m *Memory) CompareAndSwap(ctx context.Context, key string, expected int64, doc *room.Room) (Snapshot, error) {
	reply := make(chan casResult, 1)
	if err := m.send(ctx, casDoc{Key: key, Expected: expected, Doc: doc.Clone(), Reply: reply}); err != nil {
		return Snapshot{}, err
	}
	res, err := await(ctx, m, reply)
	if err != nil {
		return Snapshot{}, err
	}
	return res.Snap, res.Err
}

func (m *Memory) Watch(ctx context.Context, key string) (<-chan Snapshot, error) {
	out := make(chan Snapshot, 1)
	id := uuid.NewString()
	if err := m.send(ctx, subscribe{Key: key, ID: id, Outbox: out}); err != nil {
		return nil, err
	}
	go func() {
		// The actor closes out, either here or on shutdown.
		select {
		case <-ctx.Done():
			_ = m.send(context.Background(), unsubscribe{Key: key, ID: id})
		case <-m.done:
		}
	}()
	return out, nil
}

func (m *Memory) Keys(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	if err := m.send(ctx, listKeys{Reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, m, reply)
}

// Watchers reports how many subscriptions are open on key.
func (m *Memory) Watchers(ctx context.Context, key string) (int, error) {
	reply := make(chan int, 1)
	if err := m.send(ctx, countWatchers{Key: key, Reply: reply}); err != nil {
		return 0, err
	}
	return await(ctx, m, reply)
}

// Close stops the actor and closes every open watch channel.
func (m *Memory) Close() error {
	m.cancel()
	<-m.done
	return nil
}
