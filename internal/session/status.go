package session

import (
	"fmt"

	"github.com/DoyleJ11/handfill/internal/engine"
	"github.com/DoyleJ11/handfill/internal/room"
)

const (
	StatusIdle             = "not in a room"
	StatusRoomClosed       = "room closed"
	StatusWaitingOpponent  = "waiting for opponent"
	StatusYourTurn         = "your turn"
	StatusWaitingForNumber = "waiting for opponent's number"
	StatusYouWin           = "you win"
	StatusGameOver         = "game over"
)

// DeriveStatus turns the latest document into the line shown to the local seat.
func DeriveStatus(r *room.Room, local room.Seat) string {
	if r == nil {
		return StatusRoomClosed
	}
	switch r.Status {
	case room.StatusWaiting:
		return StatusWaitingOpponent

	case room.StatusPlaying:
		if proposer, ok := engine.ProposerTurn(r); ok {
			if proposer == local {
				return StatusYourTurn
			}
			return StatusWaitingForNumber
		}
		if r.TargetOwnerID != nil && *r.TargetOwnerID == local {
			return fmt.Sprintf("opponent is searching for %d", *r.TargetNumber)
		}
		return fmt.Sprintf("find %d on your board", *r.TargetNumber)

	case room.StatusFinished:
		if r.WinnerID == nil {
			return StatusGameOver
		}
		if *r.WinnerID == local {
			return StatusYouWin
		}
		name := "opponent"
		if p := r.Player(*r.WinnerID); p != nil && p.Name != "" {
			name = p.Name
		}
		return name + " wins"
	}
	return StatusIdle
}
