package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/handfill/internal/room"
	"go.uber.org/zap"
)

var ErrConflict = errors.New("document version conflict")
var ErrContention = errors.New("too much contention on document")
var ErrClosed = errors.New("store closed")

// Snapshot is one committed state of a document. Room is nil when the document does not exist.
// Version never decreases for a key, deletes included.
type Snapshot struct {
	Key     string     `json:"key"`
	Version int64      `json:"version"`
	Room    *room.Room `json:"room"`
}

func (s Snapshot) Exists() bool { return s.Room != nil }

// Store is a keyed, versioned document store with conditional writes and push delivery.
type Store interface {
	Get(ctx context.Context, key string) (Snapshot, error)
	// CompareAndSwap commits doc only if the key is still at version expected.
	// A nil doc deletes the document.
	CompareAndSwap(ctx context.Context, key string, expected int64, doc *room.Room) (Snapshot, error)
	// Watch sends the current state first and then later states. A slow reader only
	// sees the newest one. The channel closes when ctx is done.
	Watch(ctx context.Context, key string) (<-chan Snapshot, error)
	Keys(ctx context.Context) ([]string, error)
}

type writeKind int

const (
	writeNone writeKind = iota
	writePut
	writeDelete
)

// Write is the outcome of a transaction body.
type Write struct {
	kind writeKind
	doc  *room.Room
}

var NoWrite = Write{kind: writeNone}

func Put(r *room.Room) Write { return Write{kind: writePut, doc: r} }

func Delete() Write { return Write{kind: writeDelete} }

// MaxAttempts bounds how often RunTransaction re-reads after losing a race.
const MaxAttempts = 5

type TxOption func(*txConfig)

type txConfig struct {
	logger *zap.Logger
}

func WithLogger(l *zap.Logger) TxOption {
	return func(c *txConfig) { c.logger = l }
}

// RunTransaction runs fn against a private copy of the document at key and commits its Write
// only if nobody else committed in between. On a version conflict it re-reads and runs fn again.
// An error from fn aborts with nothing written and is returned as is.
func RunTransaction(ctx context.Context, s Store, key string, fn func(cur *room.Room) (Write, error), opts ...TxOption) (Snapshot, error) {
	cfg := txConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		snap, err := s.Get(ctx, key)
		if err != nil {
			return Snapshot{}, fmt.Errorf("read %s: %w", key, err)
		}

		w, err := fn(snap.Room.Clone())
		if err != nil {
			return snap, err
		}

		var doc *room.Room
		switch w.kind {
		case writeNone:
			return snap, nil
		case writePut:
			doc = w.doc
		case writeDelete:
			if !snap.Exists() {
				return snap, nil
			}
		}

		committed, err := s.CompareAndSwap(ctx, key, snap.Version, doc)
		if errors.Is(err, ErrConflict) {
			cfg.logger.Debug("transaction conflict, retrying",
				zap.String("key", key),
				zap.Int("attempt", attempt),
				zap.Int64("version", snap.Version))
			continue
		}
		if err != nil {
			return Snapshot{}, fmt.Errorf("commit %s: %w", key, err)
		}
		return committed, nil
	}

	cfg.logger.Warn("transaction gave up", zap.String("key", key), zap.Int("attempts", MaxAttempts))
	return Snapshot{}, ErrContention
}

// Stamp returns a copy of doc carrying the server-side fields of a commit at t.
func Stamp(doc *room.Room, key string, t time.Time) *room.Room {
	if doc == nil {
		return nil
	}
	out := doc.Clone()
	out.Code = key
	out.UpdatedAt = t
	out.LastActivity = t
	if out.CreatedAt.IsZero() {
		out.CreatedAt = t
	}
	return out
}
