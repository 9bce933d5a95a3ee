// Package profile keeps the local player's record across games: totals, XP, level, title
// and achievements.
package profile

import (
	"math"
	"slices"
	"time"

	"github.com/DoyleJ11/handfill/internal/board"
)

const (
	BaseXP      = 100
	LevelGrowth = 1.1
	WinXP       = 50
	LossXP      = 25
	speedRecord = 60 * time.Second
)

type Profile struct {
	Username         string   `json:"username"`
	Level            int      `json:"level"`
	Experience       int      `json:"experience"`
	GamesPlayed      int      `json:"totalGamesPlayed"`
	Wins             int      `json:"totalWins"`
	Losses           int      `json:"totalLoses"`
	WinStreak        int      `json:"winStreak"`
	FastestVictoryMS int64    `json:"fastestVictory,omitempty"`
	Achievements     []string `json:"achievements"`
}

func Default() *Profile {
	return &Profile{Level: 1, Achievements: []string{}}
}

// XPRequired is the experience needed to leave level.
func XPRequired(level int) int {
	if level < 1 {
		level = 1
	}
	return int(math.Floor(BaseXP * math.Pow(LevelGrowth, float64(level-1))))
}

func Title(level int) string {
	switch {
	case level >= 50:
		return "Legend"
	case level >= 40:
		return "Champion"
	case level >= 30:
		return "Master"
	case level >= 20:
		return "Expert"
	case level >= 10:
		return "Intermediate"
	case level >= 5:
		return "Apprentice"
	}
	return "Novice"
}

// LevelProgress is the share of the current level already earned, in [0, 1).
func (p *Profile) LevelProgress() float64 {
	return float64(p.Experience) / float64(XPRequired(p.Level))
}

type Achievement struct {
	ID          string
	Name        string
	Description string
	check       func(p *Profile) bool
}

var Achievements = []Achievement{
	{"firstGame", "First Game", "Play your first game", func(p *Profile) bool { return p.GamesPlayed >= 1 }},
	{"firstWin", "First Winner", "Win your first game", func(p *Profile) bool { return p.Wins >= 1 }},
	{"winStreak3", "Triple Streak", "Win 3 games in a row", func(p *Profile) bool { return p.WinStreak >= 3 }},
	{"winStreak5", "On Fire", "Win 5 games in a row", func(p *Profile) bool { return p.WinStreak >= 5 }},
	{"level10", "Level 10", "Reach level 10", func(p *Profile) bool { return p.Level >= 10 }},
	{"level25", "Master", "Reach level 25", func(p *Profile) bool { return p.Level >= 25 }},
	{"speedracer", "Velocity", "Win a game in under 60 seconds", func(p *Profile) bool {
		return p.FastestVictoryMS > 0 && time.Duration(p.FastestVictoryMS)*time.Millisecond < speedRecord
	}},
	{"tenGames", "Routine", "Play 10 games", func(p *Profile) bool { return p.GamesPlayed >= 10 }},
}

// Result describes what one game changed.
type Result struct {
	XPGained        int
	LeveledUp       bool
	NewAchievements []string
}

// Record applies one finished game to the profile.
func (p *Profile) Record(won bool, difficulty string, took time.Duration) Result {
	var res Result
	p.GamesPlayed++
	if won {
		p.Wins++
		p.WinStreak++
		res.XPGained = int(math.Floor(WinXP * board.LookupDifficulty(difficulty).XPMultiplier))
		if ms := took.Milliseconds(); ms > 0 && (p.FastestVictoryMS == 0 || ms < p.FastestVictoryMS) {
			p.FastestVictoryMS = ms
		}
	} else {
		p.Losses++
		p.WinStreak = 0
		res.XPGained = LossXP
	}
	res.LeveledUp = p.addExperience(res.XPGained)

	for _, a := range Achievements {
		if !slices.Contains(p.Achievements, a.ID) && a.check(p) {
			p.Achievements = append(p.Achievements, a.ID)
			res.NewAchievements = append(res.NewAchievements, a.ID)
		}
	}
	return res
}

func (p *Profile) addExperience(amount int) bool {
	if p.Level < 1 {
		p.Level = 1
	}
	p.Experience += amount
	leveled := false
	for p.Experience >= XPRequired(p.Level) {
		p.Experience -= XPRequired(p.Level)
		p.Level++
		leveled = true
	}
	return leveled
}
