package session

import (
	"slices"

	"github.com/DoyleJ11/handfill/internal/board"
	"github.com/DoyleJ11/handfill/internal/room"
)

// PlayerView mirrors one seat's record. It is rebuilt from every snapshot, never patched.
type PlayerView struct {
	Seat         room.Seat
	Name         string
	Board        []int
	Used         []int
	Found        []int
	HandProgress int
}

func newPlayerView(seat room.Seat, rec *room.PlayerRecord) *PlayerView {
	if rec == nil {
		return nil
	}
	return &PlayerView{
		Seat:         seat,
		Name:         rec.Name,
		Board:        slices.Clone(rec.BoardNumbers),
		Used:         slices.Clone(rec.UsedNumbers),
		Found:        slices.Clone(rec.FoundNumbers),
		HandProgress: rec.HandProgress,
	}
}

// Unused lists the numbers of the difficulty range this player has not proposed yet.
func (p *PlayerView) Unused(d board.Difficulty) []int {
	out := make([]int, 0, d.Max-d.Min+1)
	for n := d.Min; n <= d.Max; n++ {
		if p == nil || !slices.Contains(p.Used, n) {
			out = append(out, n)
		}
	}
	return out
}

func (p *PlayerView) HasUsed(n int) bool {
	return p != nil && slices.Contains(p.Used, n)
}
