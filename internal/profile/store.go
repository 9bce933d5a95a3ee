package profile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/DoyleJ11/handfill/internal/session"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// FileStore keeps one profile as an indented JSON file.
type FileStore struct{ path string }

func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

func (s *FileStore) Path() string { return s.path }

// Load returns the saved profile, or a fresh one when nothing has been saved yet.
func (s *FileStore) Load(ctx context.Context) (*Profile, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	p := Default()
	if err := json.Unmarshal(data, p); err != nil {
		return nil, err
	}
	if p.Level < 1 {
		p.Level = 1
	}
	if p.Achievements == nil {
		p.Achievements = []string{}
	}
	return p, nil
}

// Save writes p next to the target and renames it into place, so a failed write leaves the
// previous profile intact.
func (s *FileStore) Save(ctx context.Context, p *Profile) (err error) {
	if p == nil {
		return errors.New("invalid profile: nil")
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	err = enc.Encode(p)
	multierr.AppendInvoke(&err, multierr.Close(f))
	if err != nil {
		return err
	}
	return os.Rename(f.Name(), s.path)
}

// Tracker applies finished games to the stored profile.
type Tracker struct {
	store  *FileStore
	logger *zap.Logger

	mu      sync.Mutex
	current *Profile
}

func NewTracker(ctx context.Context, store *FileStore, logger *zap.Logger) (*Tracker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &Tracker{store: store, logger: logger, current: p}, nil
}

// Profile returns a copy of the current profile.
func (t *Tracker) Profile() Profile {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := *t.current
	p.Achievements = append([]string(nil), t.current.Achievements...)
	return p
}

// SetUsername remembers the name the player last entered.
func (t *Tracker) SetUsername(ctx context.Context, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current.Username == name {
		return nil
	}
	t.current.Username = name
	return t.store.Save(ctx, t.current)
}

func (t *Tracker) ReportOutcome(o session.Outcome) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	res := t.current.Record(o.Won, o.Difficulty, o.Duration)
	t.logger.Info("game recorded",
		zap.Bool("won", o.Won),
		zap.Int("xp", res.XPGained),
		zap.Int("level", t.current.Level),
	)
	if res.LeveledUp {
		t.logger.Info("level up", zap.Int("level", t.current.Level), zap.String("title", Title(t.current.Level)))
	}
	for _, id := range res.NewAchievements {
		t.logger.Info("achievement unlocked", zap.String("achievement", id))
	}
	return t.store.Save(context.Background(), t.current)
}

var _ session.OutcomeReporter = (*Tracker)(nil)
