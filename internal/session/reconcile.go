package session

import (
	"time"

	"github.com/DoyleJ11/handfill/internal/board"
	"github.com/DoyleJ11/handfill/internal/docstore"
	"github.com/DoyleJ11/handfill/internal/engine"
	"github.com/DoyleJ11/handfill/internal/room"
)

// View is everything the UI needs about the room, derived from the latest snapshot.
type View struct {
	Code          string
	Seat          room.Seat
	Version       int64
	Closed        bool
	Status        room.Status
	CurrentPlayer room.Seat
	// Proposer is the seat allowed to choose next, nil while a target is out or outside play.
	Proposer      *room.Seat
	TargetNumber  *int
	TargetOwner   *room.Seat
	Winner        *room.Seat
	ResetVersion  int
	Difficulty    board.Difficulty
	Mode          board.Mode
	Me            *PlayerView
	Opponent      *PlayerView
	StatusText    string
	// Message is the outcome of the last local intent, empty after a success.
	Message string
	// Ready is false between a restart and the local board being dealt for it.
	Ready   bool
	Filling bool
}

func (v View) HasTarget() bool { return v.TargetNumber != nil }

func (v View) MyTurn() bool {
	return v.Proposer != nil && *v.Proposer == v.Seat
}

// Outcome is reported to the profile once per finished game.
type Outcome struct {
	Won        bool
	Difficulty string
	Duration   time.Duration
}

type winKey struct {
	resetVersion int
	winner       room.Seat
}

// effects are the side effects one snapshot asks for.
type effects struct {
	fill       bool
	regenerate bool
	win        *Outcome
	closed     bool
}

// reconciler derives local state from snapshots. Everything is recomputed from the snapshot;
// the only memory it keeps is which restart and which win have already been handled.
type reconciler struct {
	seat      room.Seat
	code      string
	lastReset int
	lastWin   winKey
	seen      bool
	view      View
}

func newReconciler(code string, seat room.Seat) *reconciler {
	return &reconciler{
		seat: seat,
		code: code,
		view: View{Code: code, Seat: seat, StatusText: StatusIdle, Ready: true},
	}
}

func (r *reconciler) apply(snap docstore.Snapshot, now time.Time) effects {
	doc := snap.Room
	msg := r.view.Message

	if doc == nil {
		// A missing document before we ever saw one is just a slow create.
		r.view = View{Code: r.code, Seat: r.seat, Version: snap.Version, StatusText: StatusIdle, Message: msg, Ready: true}
		if r.seen {
			r.view.Closed = true
			r.view.StatusText = StatusRoomClosed
		}
		return effects{closed: r.seen}
	}
	r.seen = true

	v := View{
		Code:          r.code,
		Seat:          r.seat,
		Version:       snap.Version,
		Status:        doc.Status,
		CurrentPlayer: doc.CurrentPlayerID,
		TargetNumber:  copyPtr(doc.TargetNumber),
		TargetOwner:   copyPtr(doc.TargetOwnerID),
		Winner:        copyPtr(doc.WinnerID),
		ResetVersion:  doc.ResetVersion,
		Difficulty:    board.LookupDifficulty(doc.Difficulty),
		Mode:          board.LookupMode(doc.GameMode),
		Me:            newPlayerView(r.seat, doc.Player(r.seat)),
		Opponent:      newPlayerView(r.seat.Opponent(), doc.Player(r.seat.Opponent())),
		StatusText:    DeriveStatus(doc, r.seat),
		Message:       msg,
	}

	if proposer, ok := engine.ProposerTurn(doc); ok {
		v.Proposer = &proposer
	}

	var eff effects
	filling, ok := engine.FillingSeat(doc)
	eff.fill = ok && filling == r.seat
	eff.regenerate = doc.ResetVersion > r.lastReset && v.Me != nil
	v.Ready = doc.ResetVersion <= r.lastReset
	v.Filling = eff.fill

	if doc.Status == room.StatusFinished && doc.WinnerID != nil {
		key := winKey{resetVersion: doc.ResetVersion, winner: *doc.WinnerID}
		if key != r.lastWin {
			r.lastWin = key
			out := Outcome{Won: key.winner == r.seat, Difficulty: v.Difficulty.ID}
			if doc.GameStartTime != nil {
				out.Duration = now.Sub(*doc.GameStartTime)
			}
			eff.win = &out
		}
	}

	r.view = v
	return eff
}

// markReset records that the local board for version has been pushed.
func (r *reconciler) markReset(version int) {
	if version > r.lastReset {
		r.lastReset = version
	}
	r.view.Ready = r.view.ResetVersion <= r.lastReset
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
