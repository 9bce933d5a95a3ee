// Package rooms runs every game intent as one conditional transaction on the room document.
package rooms

import (
	"context"
	"errors"

	"github.com/DoyleJ11/handfill/internal/docstore"
	"github.com/DoyleJ11/handfill/internal/engine"
	"github.com/DoyleJ11/handfill/internal/room"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// CodeAttempts bounds how many generated codes CreateRoomWithNewCode tries.
const CodeAttempts = 5

type Client struct {
	store   docstore.Store
	clock   clockwork.Clock
	logger  *zap.Logger
	newCode func() (string, error)
}

func NewClient(store docstore.Store, clock clockwork.Clock, logger *zap.Logger) *Client {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{store: store, clock: clock, logger: logger, newCode: room.GenerateCode}
}

// apply re-reads the document, evaluates cmd against it and commits the result atomically.
// Precondition failures come back as the engine's sentinel errors with nothing written.
func (c *Client) apply(ctx context.Context, code string, cmd engine.Command) (docstore.Snapshot, []engine.Event, error) {
	var events []engine.Event
	snap, err := docstore.RunTransaction(ctx, c.store, code, func(cur *room.Room) (docstore.Write, error) {
		evs, next, err := engine.Apply(cur, cmd, c.clock.Now())
		if err != nil {
			return docstore.NoWrite, err
		}
		events = evs
		switch {
		case len(evs) == 0:
			return docstore.NoWrite, nil
		case next == nil:
			return docstore.Delete(), nil
		default:
			return docstore.Put(next), nil
		}
	}, docstore.WithLogger(c.logger))
	if err != nil {
		c.logger.Debug("transaction rejected",
			zap.String("code", code),
			zap.String("cmd", string(cmd.Type)),
			zap.Int("seat", int(cmd.Seat)),
			zap.Error(err))
		return snap, nil, err
	}

	for _, e := range events {
		// Fill ticks are far too frequent for info.
		if e.Type == engine.EvtHandFilled {
			continue
		}
		c.logger.Info("room event",
			zap.String("code", code),
			zap.String("event", string(e.Type)),
			zap.Int("seat", int(e.Seat)),
			zap.Int("number", e.Number),
			zap.Int64("version", snap.Version))
	}
	return snap, events, nil
}

// CreateRoom writes payload at code unless a live room already holds it.
// An expired room at code is replaced.
func (c *Client) CreateRoom(ctx context.Context, code string, payload *room.Room) (docstore.Snapshot, error) {
	snap, _, err := c.apply(ctx, code, engine.Command{Type: engine.CmdCreateRoom, Room: payload})
	return snap, err
}

// CreateRoomWithNewCode draws fresh codes until one is free. build receives the code.
func (c *Client) CreateRoomWithNewCode(ctx context.Context, build func(code string) *room.Room) (docstore.Snapshot, error) {
	var lastErr error
	for range CodeAttempts {
		code, err := c.newCode()
		if err != nil {
			return docstore.Snapshot{}, err
		}
		snap, err := c.CreateRoom(ctx, code, build(code))
		if errors.Is(err, engine.ErrCodeInUse) {
			c.logger.Debug("collision on code, regenerating", zap.String("code", code))
			lastErr = err
			continue
		}
		return snap, err
	}
	return docstore.Snapshot{}, lastErr
}

func (c *Client) JoinRoom(ctx context.Context, code string, player *room.PlayerRecord) (docstore.Snapshot, error) {
	snap, _, err := c.apply(ctx, code, engine.Command{Type: engine.CmdJoinRoom, Seat: room.SeatTwo, Player: player})
	return snap, err
}

// StartGame (re)opens play. Only seat 1 should call it; that is the caller's check.
func (c *Client) StartGame(ctx context.Context, code string, nextResetVersion int) (docstore.Snapshot, error) {
	snap, _, err := c.apply(ctx, code, engine.Command{Type: engine.CmdStartGame, ResetVersion: nextResetVersion})
	return snap, err
}

func (c *Client) ResetPlayer(ctx context.Context, code string, seat room.Seat, record *room.PlayerRecord) (docstore.Snapshot, error) {
	snap, _, err := c.apply(ctx, code, engine.Command{Type: engine.CmdResetPlayer, Seat: seat, Player: record})
	return snap, err
}

func (c *Client) ChooseNumber(ctx context.Context, code string, seat room.Seat, number int) (docstore.Snapshot, error) {
	snap, _, err := c.apply(ctx, code, engine.Command{Type: engine.CmdChooseNumber, Seat: seat, Number: number})
	return snap, err
}

func (c *Client) ConfirmFound(ctx context.Context, code string, finder room.Seat) (docstore.Snapshot, error) {
	snap, _, err := c.apply(ctx, code, engine.Command{Type: engine.CmdConfirmFound, Seat: finder})
	return snap, err
}

// IncrementHand is a best-effort tick. It reports whether this tick won the game.
func (c *Client) IncrementHand(ctx context.Context, code string, seat room.Seat, maxDots int) (bool, error) {
	_, events, err := c.apply(ctx, code, engine.Command{Type: engine.CmdIncrementHand, Seat: seat, MaxDots: maxDots})
	if err != nil {
		return false, err
	}
	return engine.ContainsEvent(events, engine.EvtGameWon), nil
}

// DeleteExpiredRoom removes the room at code if it has gone a full expiry window untouched.
func (c *Client) DeleteExpiredRoom(ctx context.Context, code string) (bool, error) {
	_, events, err := c.apply(ctx, code, engine.Command{Type: engine.CmdDeleteExpired})
	if err != nil {
		return false, err
	}
	return engine.ContainsEvent(events, engine.EvtRoomDeleted), nil
}

func (c *Client) Get(ctx context.Context, code string) (docstore.Snapshot, error) {
	return c.store.Get(ctx, code)
}

func (c *Client) Watch(ctx context.Context, code string) (<-chan docstore.Snapshot, error) {
	return c.store.Watch(ctx, code)
}

func (c *Client) Codes(ctx context.Context) ([]string, error) {
	return c.store.Keys(ctx)
}
