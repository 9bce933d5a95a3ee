package engine

import (
	"errors"
	"time"

	"github.com/DoyleJ11/handfill/internal/board"
	"github.com/DoyleJ11/handfill/internal/room"
)

var ErrCodeInUse = errors.New("code already in use")
var ErrRoomMissing = errors.New("room missing")
var ErrRoomExpired = errors.New("room expired")
var ErrRoomFull = errors.New("room full")
var ErrNotPlaying = errors.New("game has not started")
var ErrNotYourTurn = errors.New("not your turn")
var ErrNumberActive = errors.New("number already active")
var ErrNumberRepeated = errors.New("number repeated")
var ErrNumberOutOfRange = errors.New("number out of range")
var ErrNoActiveNumber = errors.New("no active number")
var ErrOwnTurn = errors.New("cannot confirm your own turn")
var ErrPlayerMissing = errors.New("player not found")
var ErrInvalidSeat = errors.New("invalid seat")
var ErrUnsupportedCommand = errors.New("unsupported command")

type CommandType string

const (
	CmdCreateRoom    CommandType = "CreateRoom"
	CmdJoinRoom      CommandType = "JoinRoom"
	CmdStartGame     CommandType = "StartGame"
	CmdResetPlayer   CommandType = "ResetPlayer"
	CmdChooseNumber  CommandType = "ChooseNumber"
	CmdConfirmFound  CommandType = "ConfirmFound"
	CmdIncrementHand CommandType = "IncrementHand"
	CmdDeleteExpired CommandType = "DeleteExpired"
)

/*
	CmdCreateRoom    -> [EvtRoomReplaced] -> EvtRoomCreated
	CmdJoinRoom      -> EvtPlayerJoined
	CmdStartGame     -> EvtGameStarted
	CmdResetPlayer   -> EvtPlayerReset
	CmdChooseNumber  -> EvtNumberChosen
	CmdConfirmFound  -> EvtNumberFound
	CmdIncrementHand -> EvtHandFilled -> [EvtGameWon]   (no events on a stale tick)
	CmdDeleteExpired -> EvtRoomDeleted                  (no events while the room is live)
*/

type Command struct {
	Type         CommandType
	Seat         room.Seat
	Number       int
	MaxDots      int
	ResetVersion int
	Player       *room.PlayerRecord
	Room         *room.Room
}

type EventType string

const (
	EvtRoomCreated  EventType = "RoomCreated"
	EvtRoomReplaced EventType = "RoomReplaced"
	EvtPlayerJoined EventType = "PlayerJoined"
	EvtGameStarted  EventType = "GameStarted"
	EvtPlayerReset  EventType = "PlayerReset"
	EvtNumberChosen EventType = "NumberChosen"
	EvtNumberFound  EventType = "NumberFound"
	EvtHandFilled   EventType = "HandFilled"
	EvtGameWon      EventType = "GameWon"
	EvtRoomDeleted  EventType = "RoomDeleted"
)

type Event struct {
	Type   EventType
	Seat   room.Seat
	Number int
}

// Apply evaluates cmd against the current document (nil when absent) at time now.
// It never mutates cur. With no events the document is unchanged and next == cur;
// a nil next alongside EvtRoomDeleted means the document should be removed.
func Apply(cur *room.Room, cmd Command, now time.Time) ([]Event, *room.Room, error) {
	switch cmd.Type {
	case CmdCreateRoom:
		if cmd.Room == nil || cmd.Room.Player(room.SeatOne) == nil {
			return nil, cur, ErrPlayerMissing
		}
		events := []Event{}
		if cur != nil {
			if !cur.Expired(now) {
				return nil, cur, ErrCodeInUse
			}
			events = append(events, Event{Type: EvtRoomReplaced})
		}
		next := cmd.Room.Clone()
		// A replaced document starts over rather than inheriting the old creation time.
		next.CreatedAt = time.Time{}
		events = append(events, Event{Type: EvtRoomCreated, Seat: room.SeatOne})
		return events, next, nil

	case CmdJoinRoom:
		if cur == nil {
			return nil, cur, ErrRoomMissing
		}
		if cur.Expired(now) {
			return nil, cur, ErrRoomExpired
		}
		if cur.Player(room.SeatTwo) != nil {
			return nil, cur, ErrRoomFull
		}
		if cmd.Player == nil {
			return nil, cur, ErrPlayerMissing
		}
		next := cur.Clone()
		if next.Players == nil {
			next.Players = map[room.Seat]*room.PlayerRecord{}
		}
		next.Players[room.SeatTwo] = cmd.Player.Clone()
		next.Status = room.StatusWaiting
		return []Event{{Type: EvtPlayerJoined, Seat: room.SeatTwo}}, next, nil

	case CmdStartGame:
		if cur == nil {
			return nil, cur, ErrRoomMissing
		}
		next := cur.Clone()
		next.Status = room.StatusPlaying
		next.CurrentPlayerID = room.SeatOne
		next.TargetNumber = nil
		next.TargetOwnerID = nil
		next.WinnerID = nil
		// A stale caller may ask for a version already in use; restarts must still move forward.
		next.ResetVersion = max(cmd.ResetVersion, cur.ResetVersion+1)
		started := now
		next.GameStartTime = &started
		return []Event{{Type: EvtGameStarted, Number: next.ResetVersion}}, next, nil

	case CmdResetPlayer:
		if cur == nil {
			return nil, cur, ErrRoomMissing
		}
		if !cmd.Seat.Valid() {
			return nil, cur, ErrInvalidSeat
		}
		if cmd.Player == nil {
			return nil, cur, ErrPlayerMissing
		}
		next := cur.Clone()
		if next.Players == nil {
			next.Players = map[room.Seat]*room.PlayerRecord{}
		}
		next.Players[cmd.Seat] = cmd.Player.Clone()
		return []Event{{Type: EvtPlayerReset, Seat: cmd.Seat}}, next, nil

	case CmdChooseNumber:
		if cur == nil {
			return nil, cur, ErrRoomMissing
		}
		if cur.Status != room.StatusPlaying {
			return nil, cur, ErrNotPlaying
		}
		if cur.HasTarget() {
			return nil, cur, ErrNumberActive
		}
		if proposer, _ := ProposerTurn(cur); proposer != cmd.Seat {
			return nil, cur, ErrNotYourTurn
		}
		player := cur.Player(cmd.Seat)
		if player == nil {
			return nil, cur, ErrPlayerMissing
		}
		if !inRange(cur, cmd.Number) {
			return nil, cur, ErrNumberOutOfRange
		}
		if player.HasUsed(cmd.Number) {
			return nil, cur, ErrNumberRepeated
		}

		next := cur.Clone()
		p := next.Players[cmd.Seat]
		p.UsedNumbers = append(p.UsedNumbers, cmd.Number)
		number, owner := cmd.Number, cmd.Seat
		next.TargetNumber = &number
		next.TargetOwnerID = &owner
		return []Event{{Type: EvtNumberChosen, Seat: cmd.Seat, Number: cmd.Number}}, next, nil

	case CmdConfirmFound:
		if cur == nil {
			return nil, cur, ErrRoomMissing
		}
		if !cur.HasTarget() {
			return nil, cur, ErrNoActiveNumber
		}
		if cur.TargetOwnerID != nil && *cur.TargetOwnerID == cmd.Seat {
			return nil, cur, ErrOwnTurn
		}
		if cur.Player(cmd.Seat) == nil {
			return nil, cur, ErrPlayerMissing
		}

		next := cur.Clone()
		target := *cur.TargetNumber
		p := next.Players[cmd.Seat]
		if !p.HasFound(target) {
			p.FoundNumbers = append(p.FoundNumbers, target)
		}
		next.TargetNumber = nil
		next.TargetOwnerID = nil
		next.CurrentPlayerID = cmd.Seat
		return []Event{{Type: EvtNumberFound, Seat: cmd.Seat, Number: target}}, next, nil

	case CmdIncrementHand:
		// A tick is best effort: anything stale is a silent no-op.
		seat, filling := FillingSeat(cur)
		if !filling || seat != cmd.Seat || cur.Player(cmd.Seat) == nil {
			return nil, cur, nil
		}
		maxDots := cmd.MaxDots
		if maxDots <= 0 {
			maxDots = room.MaxDots
		}

		next := cur.Clone()
		p := next.Players[cmd.Seat]
		p.HandProgress = min(p.HandProgress+1, maxDots)
		events := []Event{{Type: EvtHandFilled, Seat: cmd.Seat, Number: p.HandProgress}}
		if p.HandProgress >= maxDots {
			winner := cmd.Seat
			next.Status = room.StatusFinished
			next.WinnerID = &winner
			events = append(events, Event{Type: EvtGameWon, Seat: cmd.Seat})
		}
		return events, next, nil

	case CmdDeleteExpired:
		if cur == nil || !cur.Expired(now) {
			return nil, cur, nil
		}
		return []Event{{Type: EvtRoomDeleted}}, nil, nil

	default:
		return nil, cur, ErrUnsupportedCommand
	}
}

func inRange(r *room.Room, n int) bool {
	d := board.LookupDifficulty(r.Difficulty)
	return n >= d.Min && n <= d.Max
}
