// Package session owns one player's connection to a room: it mirrors every snapshot into a
// View, runs the fill timer while the local hand is filling, redeals the local board after a
// restart and reports finished games.
package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/DoyleJ11/handfill/internal/board"
	"github.com/DoyleJ11/handfill/internal/docstore"
	"github.com/DoyleJ11/handfill/internal/engine"
	"github.com/DoyleJ11/handfill/internal/room"
	"github.com/DoyleJ11/handfill/internal/rooms"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var ErrNotHost = errors.New("only the host can start the game")
var ErrNoOpponent = errors.New("waiting for opponent")
var ErrBoardNotReady = errors.New("your board is still being dealt")
var ErrNotTheNumber = errors.New("that is not the number")
var ErrNoNumbersLeft = errors.New("no numbers left")
var ErrRoomClosed = errors.New("room closed")

const genericFailure = "something went wrong, try again"

// OutcomeReporter receives finished games; the profile implements it.
type OutcomeReporter interface {
	ReportOutcome(Outcome) error
}

type Options struct {
	Clock        clockwork.Clock
	Logger       *zap.Logger
	Reporter     OutcomeReporter
	TickInterval time.Duration
	MaxDots      int
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.TickInterval <= 0 {
		o.TickInterval = TickInterval
	}
	if o.MaxDots <= 0 {
		o.MaxDots = room.MaxDots
	}
	return o
}

type Session struct {
	rooms  *rooms.Client
	opts   Options
	logger *zap.Logger
	code   string
	seat   room.Seat
	intN   func(n int) int

	mu          sync.Mutex
	rec         *reconciler
	views       chan View
	viewsClosed bool

	// resetMu keeps the watch loop and intents from redealing the same version twice.
	resetMu sync.Mutex

	timer  *FillTimer
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Create opens a new room with the local player in seat 1. An empty code draws a fresh one.
func Create(ctx context.Context, rc *rooms.Client, opts Options, name, code, difficulty, mode string) (*Session, error) {
	name, err := room.NormalizeName(name)
	if err != nil {
		return nil, err
	}
	d := board.LookupDifficulty(difficulty)
	m := board.LookupMode(mode)
	build := func(code string) *room.Room {
		return room.New(code, d.ID, m.ID, room.NewPlayerRecord(name, board.Generate(d.Max)))
	}

	var snap docstore.Snapshot
	if code == "" {
		snap, err = rc.CreateRoomWithNewCode(ctx, build)
	} else {
		if code, err = room.NormalizeCode(code); err != nil {
			return nil, err
		}
		snap, err = rc.CreateRoom(ctx, code, build(code))
	}
	if err != nil {
		return nil, err
	}
	return start(rc, opts, snap.Key, room.SeatOne)
}

// Join takes seat 2 of an existing room. The board is sized by the room's difficulty.
func Join(ctx context.Context, rc *rooms.Client, opts Options, name, code string) (*Session, error) {
	name, err := room.NormalizeName(name)
	if err != nil {
		return nil, err
	}
	if code, err = room.NormalizeCode(code); err != nil {
		return nil, err
	}
	peek, err := rc.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !peek.Exists() {
		return nil, engine.ErrRoomMissing
	}
	d := board.LookupDifficulty(peek.Room.Difficulty)
	if _, err := rc.JoinRoom(ctx, code, room.NewPlayerRecord(name, board.Generate(d.Max))); err != nil {
		return nil, err
	}
	return start(rc, opts, code, room.SeatTwo)
}

func start(rc *rooms.Client, opts Options, code string, seat room.Seat) (*Session, error) {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		rooms:  rc,
		opts:   opts,
		logger: opts.Logger.With(zap.String("code", code), zap.Int("seat", int(seat))),
		code:   code,
		seat:   seat,
		intN:   rand.IntN,
		rec:    newReconciler(code, seat),
		views:  make(chan View, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.timer = NewFillTimer(opts.Clock, opts.TickInterval, s.tick)

	snaps, err := rc.Watch(ctx, code)
	if err != nil {
		cancel()
		return nil, err
	}
	go s.loop(snaps)
	return s, nil
}

func (s *Session) Code() string    { return s.code }
func (s *Session) Seat() room.Seat { return s.seat }

// Views delivers the newest View after every change. A slow reader only sees the latest.
func (s *Session) Views() <-chan View { return s.views }

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.view
}

// Close tears down the subscription and the timer. Safe to call more than once.
func (s *Session) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *Session) loop(snaps <-chan docstore.Snapshot) {
	defer close(s.done)

	for snap := range snaps {
		s.reconcile(snap)
	}

	s.timer.Stop()
	s.mu.Lock()
	s.viewsClosed = true
	close(s.views)
	s.mu.Unlock()
}

// reconcile applies one snapshot. Applying the same snapshot again changes nothing.
func (s *Session) reconcile(snap docstore.Snapshot) {
	s.mu.Lock()
	eff := s.rec.apply(snap, s.opts.Clock.Now())
	resetVersion := s.rec.view.ResetVersion
	s.mu.Unlock()

	// Always stop first, so a restart can never leave two timers running.
	s.timer.Stop()

	if eff.regenerate {
		if err := s.redeal(s.ctx, resetVersion); err != nil {
			s.setMessage(err)
		}
	}

	if eff.win != nil {
		s.logger.Info("game finished", zap.Bool("won", eff.win.Won), zap.Duration("duration", eff.win.Duration))
		if s.opts.Reporter != nil {
			if err := s.opts.Reporter.ReportOutcome(*eff.win); err != nil {
				s.logger.Warn("report outcome failed", zap.Error(err))
			}
		}
	}
	if eff.closed {
		s.logger.Info("room closed")
	}

	if eff.fill {
		s.timer.Start(s.ctx)
	}
	s.publish()
}

// redeal pushes a fresh board for restart version, at most once per version. On failure the
// next snapshot or the next intent tries again.
func (s *Session) redeal(ctx context.Context, version int) error {
	s.resetMu.Lock()
	defer s.resetMu.Unlock()

	s.mu.Lock()
	done := s.rec.lastReset >= version
	me, d := s.rec.view.Me, s.rec.view.Difficulty
	s.mu.Unlock()
	if done || me == nil {
		return nil
	}

	record := room.NewPlayerRecord(me.Name, board.Generate(d.Max))
	if _, err := s.rooms.ResetPlayer(ctx, s.code, s.seat, record); err != nil {
		s.logger.Warn("board reset failed", zap.Int("reset_version", version), zap.Error(err))
		return err
	}
	s.mu.Lock()
	s.rec.markReset(version)
	s.mu.Unlock()
	s.logger.Debug("board reset", zap.Int("reset_version", version))
	return nil
}

// ensureBoard finishes a redeal that failed earlier before an intent that needs the board.
func (s *Session) ensureBoard(ctx context.Context) (View, error) {
	v := s.View()
	if v.Ready || v.Closed || v.Me == nil {
		return v, nil
	}
	if err := s.redeal(ctx, v.ResetVersion); err != nil {
		return v, err
	}
	return s.View(), nil
}

func (s *Session) tick(ctx context.Context) {
	if _, err := s.rooms.IncrementHand(ctx, s.code, s.seat, s.opts.MaxDots); err != nil && ctx.Err() == nil {
		s.logger.Debug("fill tick failed", zap.Error(err))
	}
}

func (s *Session) publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.viewsClosed {
		return
	}
	offerView(s.views, s.rec.view)
}

// offerView is only called under s.mu, which makes it the single sender.
func offerView(ch chan View, v View) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

func (s *Session) setMessage(err error) {
	s.mu.Lock()
	s.rec.view.Message = Message(err)
	s.mu.Unlock()
}

// finish records the outcome of an intent on the view and hands err back.
func (s *Session) finish(err error) error {
	s.setMessage(err)
	s.publish()
	return err
}

// Message maps an intent error to the text shown to the player.
func Message(err error) string {
	if err == nil {
		return ""
	}
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return genericFailure
}

var knownErrors = []error{
	ErrNotHost, ErrNoOpponent, ErrBoardNotReady, ErrNotTheNumber, ErrNoNumbersLeft, ErrRoomClosed,
	room.ErrNameRequired, room.ErrInvalidCode,
	engine.ErrCodeInUse, engine.ErrRoomMissing, engine.ErrRoomExpired, engine.ErrRoomFull,
	engine.ErrNotPlaying, engine.ErrNotYourTurn, engine.ErrNumberActive, engine.ErrNumberRepeated,
	engine.ErrNumberOutOfRange, engine.ErrNoActiveNumber, engine.ErrOwnTurn,
}

// Start restarts the game from seat 1 once the opponent is in.
func (s *Session) Start(ctx context.Context) error {
	v := s.View()
	switch {
	case v.Closed:
		return s.finish(ErrRoomClosed)
	case s.seat != room.SeatOne:
		return s.finish(ErrNotHost)
	case v.Opponent == nil:
		return s.finish(ErrNoOpponent)
	}
	_, err := s.rooms.StartGame(ctx, s.code, v.ResetVersion+1)
	return s.finish(err)
}

// Choose proposes n as the next target.
func (s *Session) Choose(ctx context.Context, n int) error {
	v, err := s.ensureBoard(ctx)
	if err != nil {
		return s.finish(err)
	}
	if err := canChoose(v); err != nil {
		return s.finish(err)
	}
	if n < v.Difficulty.Min || n > v.Difficulty.Max {
		return s.finish(engine.ErrNumberOutOfRange)
	}
	if v.Me.HasUsed(n) {
		return s.finish(engine.ErrNumberRepeated)
	}
	_, err = s.rooms.ChooseNumber(ctx, s.code, s.seat, n)
	return s.finish(err)
}

// Roll proposes a random number this seat has not used yet and returns it.
func (s *Session) Roll(ctx context.Context) (int, error) {
	v, err := s.ensureBoard(ctx)
	if err != nil {
		return 0, s.finish(err)
	}
	if err := canChoose(v); err != nil {
		return 0, s.finish(err)
	}
	unused := v.Me.Unused(v.Difficulty)
	if len(unused) == 0 {
		return 0, s.finish(ErrNoNumbersLeft)
	}
	n := unused[s.intN(len(unused))]
	_, err = s.rooms.ChooseNumber(ctx, s.code, s.seat, n)
	return n, s.finish(err)
}

func canChoose(v View) error {
	switch {
	case v.Closed:
		return ErrRoomClosed
	case v.Status != room.StatusPlaying:
		return engine.ErrNotPlaying
	case v.HasTarget():
		return engine.ErrNumberActive
	case !v.MyTurn():
		return engine.ErrNotYourTurn
	case !v.Ready || v.Me == nil:
		return ErrBoardNotReady
	}
	return nil
}

// Found is a click on n on the local board. Only the active target confirms.
func (s *Session) Found(ctx context.Context, n int) error {
	v, err := s.ensureBoard(ctx)
	if err != nil {
		return s.finish(err)
	}
	switch {
	case v.Closed:
		return s.finish(ErrRoomClosed)
	case v.Status != room.StatusPlaying:
		return s.finish(engine.ErrNotPlaying)
	case !v.HasTarget():
		return s.finish(engine.ErrNoActiveNumber)
	case v.TargetOwner != nil && *v.TargetOwner == s.seat:
		return s.finish(engine.ErrOwnTurn)
	case !v.Ready:
		return s.finish(ErrBoardNotReady)
	case n != *v.TargetNumber:
		return s.finish(ErrNotTheNumber)
	}
	_, err = s.rooms.ConfirmFound(ctx, s.code, s.seat)
	return s.finish(err)
}
