package engine

import "github.com/DoyleJ11/handfill/internal/room"

// The stored currentPlayerId means two things depending on whether a target is
// active. These helpers split it into the two roles without changing the schema.

// ProposerTurn returns the seat allowed to choose the next number.
func ProposerTurn(r *room.Room) (room.Seat, bool) {
	if r == nil || r.Status != room.StatusPlaying || r.HasTarget() {
		return 0, false
	}
	return r.CurrentPlayerID, true
}

// FillingSeat returns the seat whose hand fills while the opponent searches.
func FillingSeat(r *room.Room) (room.Seat, bool) {
	if r == nil || r.Status != room.StatusPlaying || !r.HasTarget() {
		return 0, false
	}
	return r.CurrentPlayerID, true
}
