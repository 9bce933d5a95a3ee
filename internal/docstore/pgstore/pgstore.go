// Package pgstore keeps room documents in PostgreSQL. Rows are written through gorm inside
// row-locking transactions; commits are pushed to watchers through LISTEN/NOTIFY.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DoyleJ11/handfill/internal/docstore"
	"github.com/DoyleJ11/handfill/internal/room"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const notifyChannel = "room_changes"

// roomRow is one document. Data is NULL for a deleted document; the row stays behind so
// Version keeps counting up.
type roomRow struct {
	Code      string    `gorm:"primaryKey;size:8"`
	Version   int64     `gorm:"not null"`
	Data      []byte    `gorm:"type:jsonb"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (roomRow) TableName() string { return "rooms" }

type watcher struct {
	ch   chan docstore.Snapshot
	last int64
}

type Store struct {
	db     *gorm.DB
	pool   *pgxpool.Pool
	clock  clockwork.Clock
	logger *zap.Logger

	mu       sync.Mutex
	watchers map[string]map[string]*watcher
	closed   bool

	cancel context.CancelFunc
	done   chan struct{}
}

func Open(ctx context.Context, dsn string, clock clockwork.Clock, logger *zap.Logger) (*Store, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&roomRow{}); err != nil {
		return nil, multierr.Append(fmt.Errorf("migrate: %w", err), closeGorm(db))
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("open pool: %w", err), closeGorm(db))
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s := &Store{
		db:       db,
		pool:     pool,
		clock:    clock,
		logger:   logger,
		watchers: make(map[string]map[string]*watcher),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.listen(listenCtx)
	return s, nil
}

func closeGorm(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Get(ctx context.Context, key string) (docstore.Snapshot, error) {
	var rows []roomRow
	if err := s.db.WithContext(ctx).Where("code = ?", key).Limit(1).Find(&rows).Error; err != nil {
		return docstore.Snapshot{}, fmt.Errorf("select %s: %w", key, err)
	}
	if len(rows) == 0 {
		return docstore.Snapshot{Key: key}, nil
	}
	return decode(rows[0])
}

func decode(row roomRow) (docstore.Snapshot, error) {
	snap := docstore.Snapshot{Key: row.Code, Version: row.Version}
	if row.Data == nil {
		return snap, nil
	}
	var r room.Room
	if err := json.Unmarshal(row.Data, &r); err != nil {
		return docstore.Snapshot{}, fmt.Errorf("decode %s: %w", row.Code, err)
	}
	snap.Room = &r
	return snap, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, expected int64, doc *room.Room) (docstore.Snapshot, error) {
	now := s.clock.Now()
	stamped := docstore.Stamp(doc, key, now)
	var data []byte
	if stamped != nil {
		var err error
		if data, err = json.Marshal(stamped); err != nil {
			return docstore.Snapshot{}, fmt.Errorf("encode %s: %w", key, err)
		}
	}

	var committed roomRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []roomRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ?", key).Limit(1).Find(&rows).Error
		if err != nil {
			return err
		}

		current := int64(0)
		if len(rows) > 0 {
			current = rows[0].Version
		}
		if current != expected {
			return docstore.ErrConflict
		}

		committed = roomRow{Code: key, Version: current + 1, Data: data, UpdatedAt: now}
		if len(rows) == 0 {
			// Two first writers race on the primary key; the one that inserts nothing lost.
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&committed)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return docstore.ErrConflict
			}
		} else {
			err := tx.Model(&roomRow{}).Where("code = ?", key).Updates(map[string]any{
				"version":    committed.Version,
				"data":       data,
				"updated_at": now,
			}).Error
			if err != nil {
				return err
			}
		}
		return tx.Exec("SELECT pg_notify(?, ?)", notifyChannel, key).Error
	})
	if errors.Is(err, docstore.ErrConflict) {
		return docstore.Snapshot{}, docstore.ErrConflict
	}
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("commit %s: %w", key, err)
	}
	return docstore.Snapshot{Key: key, Version: committed.Version, Room: stamped}, nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).Model(&roomRow{}).
		Where("data IS NOT NULL").Order("code").Pluck("code", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

func (s *Store) Watch(ctx context.Context, key string) (<-chan docstore.Snapshot, error) {
	w := &watcher{ch: make(chan docstore.Snapshot, 1), last: -1}
	id := uuid.NewString()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, docstore.ErrClosed
	}
	if s.watchers[key] == nil {
		s.watchers[key] = make(map[string]*watcher)
	}
	s.watchers[key][id] = w
	s.mu.Unlock()

	// Registered first, so a commit racing this read is still delivered by the listener.
	if err := s.refresh(ctx, key); err != nil {
		s.drop(key, id)
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			s.drop(key, id)
		case <-s.done:
		}
	}()
	return w.ch, nil
}

func (s *Store) drop(key, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.watchers[key][id]; ok {
		close(w.ch)
		delete(s.watchers[key], id)
		if len(s.watchers[key]) == 0 {
			delete(s.watchers, key)
		}
	}
}

// refresh reads key and hands the result to every watcher that has not seen it yet.
func (s *Store) refresh(ctx context.Context, key string) error {
	snap, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.watchers[key] {
		if snap.Version <= w.last {
			continue
		}
		w.last = snap.Version
		docstore.Offer(w.ch, docstore.Snapshot{Key: snap.Key, Version: snap.Version, Room: snap.Room.Clone()})
	}
	return nil
}

func (s *Store) watchedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.watchers))
	for k := range s.watchers {
		keys = append(keys, k)
	}
	return keys
}

func (s *Store) listen(ctx context.Context) {
	defer close(s.done)
	backoff := 100 * time.Millisecond
	for ctx.Err() == nil {
		err := s.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("notification listener dropped", zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(backoff):
		}
		backoff = min(backoff*2, 5*time.Second)
	}
}

func (s *Store) listenOnce(ctx context.Context) error {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer c.Release()

	if _, err := c.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	// Anything committed while we were not listening is picked up here.
	for _, key := range s.watchedKeys() {
		if err := s.refresh(ctx, key); err != nil {
			s.logger.Warn("resync failed", zap.String("key", key), zap.Error(err))
		}
	}

	for {
		n, err := c.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if err := s.refresh(ctx, n.Payload); err != nil {
			s.logger.Warn("refresh failed", zap.String("key", n.Payload), zap.Error(err))
		}
	}
}

// Close stops the listener, ends every watch and releases both connection pools.
func (s *Store) Close() error {
	s.cancel()
	<-s.done

	s.mu.Lock()
	s.closed = true
	for key, ws := range s.watchers {
		for id, w := range ws {
			close(w.ch)
			delete(ws, id)
		}
		delete(s.watchers, key)
	}
	s.mu.Unlock()

	s.pool.Close()
	return closeGorm(s.db)
}
