package room

import (
	"slices"
	"time"
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Seat identifies one of the two player slots. It marshals as a map key "1" / "2".
type Seat int

const (
	SeatOne Seat = 1
	SeatTwo Seat = 2
)

func (s Seat) Valid() bool { return s == SeatOne || s == SeatTwo }

func (s Seat) Opponent() Seat {
	if s == SeatOne {
		return SeatTwo
	}
	return SeatOne
}

// MaxDots is the hand size; reaching it wins the game.
const MaxDots = 300

// ExpiryWindow is how long a room survives without an update.
const ExpiryWindow = 24 * time.Hour

type PlayerRecord struct {
	Name         string `json:"name"`
	BoardNumbers []int  `json:"boardNumbers"`
	UsedNumbers  []int  `json:"usedNumbers"`
	FoundNumbers []int  `json:"foundNumbers"`
	HandProgress int    `json:"handProgress"`
}

// NewPlayerRecord returns a fresh record for a seat holding the given board.
func NewPlayerRecord(name string, board []int) *PlayerRecord {
	return &PlayerRecord{
		Name:         name,
		BoardNumbers: board,
		UsedNumbers:  []int{},
		FoundNumbers: []int{},
	}
}

func (p *PlayerRecord) HasUsed(n int) bool  { return slices.Contains(p.UsedNumbers, n) }
func (p *PlayerRecord) HasFound(n int) bool { return slices.Contains(p.FoundNumbers, n) }

func (p *PlayerRecord) Clone() *PlayerRecord {
	if p == nil {
		return nil
	}
	return &PlayerRecord{
		Name:         p.Name,
		BoardNumbers: cloneInts(p.BoardNumbers),
		UsedNumbers:  cloneInts(p.UsedNumbers),
		FoundNumbers: cloneInts(p.FoundNumbers),
		HandProgress: p.HandProgress,
	}
}

// Room is the shared document for one match, keyed by Code.
type Room struct {
	Code            string                 `json:"code"`
	Status          Status                 `json:"status"`
	CurrentPlayerID Seat                   `json:"currentPlayerId"`
	TargetNumber    *int                   `json:"targetNumber"`
	TargetOwnerID   *Seat                  `json:"targetOwnerId"`
	WinnerID        *Seat                  `json:"winnerId"`
	ResetVersion    int                    `json:"resetVersion"`
	Difficulty      string                 `json:"difficulty"`
	GameMode        string                 `json:"gameMode"`
	Players         map[Seat]*PlayerRecord `json:"players"`
	GameStartTime   *time.Time             `json:"gameStartTime,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
	LastActivity    time.Time              `json:"lastActivity"`
}

// New builds the initial document written by the creating player.
func New(code, difficulty, gameMode string, host *PlayerRecord) *Room {
	return &Room{
		Code:            code,
		Status:          StatusWaiting,
		CurrentPlayerID: SeatOne,
		Difficulty:      difficulty,
		GameMode:        gameMode,
		Players:         map[Seat]*PlayerRecord{SeatOne: host},
	}
}

func (r *Room) Player(s Seat) *PlayerRecord {
	if r == nil || r.Players == nil {
		return nil
	}
	return r.Players[s]
}

func (r *Room) HasTarget() bool { return r.TargetNumber != nil }

// Expired reports whether the room has gone a full window without an update.
// A room that was never stamped counts as expired.
func (r *Room) Expired(now time.Time) bool {
	return now.Sub(r.UpdatedAt) >= ExpiryWindow
}

// Clone returns a deep copy; transactions always work on a private copy.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.TargetNumber = clonePtr(r.TargetNumber)
	c.TargetOwnerID = clonePtr(r.TargetOwnerID)
	c.WinnerID = clonePtr(r.WinnerID)
	c.GameStartTime = clonePtr(r.GameStartTime)
	if r.Players != nil {
		c.Players = make(map[Seat]*PlayerRecord, len(r.Players))
		for s, p := range r.Players {
			c.Players[s] = p.Clone()
		}
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInts(xs []int) []int {
	if xs == nil {
		return nil
	}
	return slices.Clone(xs)
}
