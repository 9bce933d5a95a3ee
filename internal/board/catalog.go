package board

import "time"

type Difficulty struct {
	ID           string
	Name         string
	Min          int
	Max          int
	XPMultiplier float64
}

const (
	DifficultyEasy    = "easy"
	DifficultyNormal  = "normal"
	DifficultyHard    = "hard"
	DifficultyExtreme = "extreme"
)

var Difficulties = map[string]Difficulty{
	DifficultyEasy:    {ID: DifficultyEasy, Name: "Easy", Min: 1, Max: 50, XPMultiplier: 0.5},
	DifficultyNormal:  {ID: DifficultyNormal, Name: "Normal", Min: 1, Max: 100, XPMultiplier: 1},
	DifficultyHard:    {ID: DifficultyHard, Name: "Hard", Min: 1, Max: 200, XPMultiplier: 1.5},
	DifficultyExtreme: {ID: DifficultyExtreme, Name: "Extreme", Min: 1, Max: 500, XPMultiplier: 2},
}

// LookupDifficulty falls back to normal for unknown ids.
func LookupDifficulty(id string) Difficulty {
	if d, ok := Difficulties[id]; ok {
		return d
	}
	return Difficulties[DifficultyNormal]
}

// Mode is stored on the room as configuration; play rules are identical across modes.
type Mode struct {
	ID          string
	Name        string
	Description string
	TimeLimit   time.Duration // infinite only
	TargetCount int           // challenge only
}

const (
	ModeClassic   = "classic"
	ModeInfinite  = "infinite"
	ModeChallenge = "challenge"
)

var Modes = map[string]Mode{
	ModeClassic:   {ID: ModeClassic, Name: "Classic", Description: "Find numbers until your hand is full"},
	ModeInfinite:  {ID: ModeInfinite, Name: "Infinite", Description: "No number limit, timed round", TimeLimit: 3 * time.Minute},
	ModeChallenge: {ID: ModeChallenge, Name: "Challenge", Description: "Find exactly 50 numbers as fast as possible", TargetCount: 50},
}

func LookupMode(id string) Mode {
	if m, ok := Modes[id]; ok {
		return m
	}
	return Modes[ModeClassic]
}
