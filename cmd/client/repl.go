package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/DoyleJ11/handfill/internal/board"
	"github.com/DoyleJ11/handfill/internal/profile"
	"github.com/DoyleJ11/handfill/internal/room"
	"github.com/DoyleJ11/handfill/internal/rooms"
	"github.com/DoyleJ11/handfill/internal/session"
	"go.uber.org/zap"
)

const help = `commands:
  name NAME          set your display name
  create [CODE]      open a room (random code when omitted)
  join CODE          take the second seat of a room
  start              start or restart the game (host only)
  roll               propose a random unused number
  pick N             propose N
  found N            click N on your board
  board              print your board
  status             print the room status
  profile            print your profile
  leave              leave the current room
  quit`

var errNoRoom = errors.New("not in a room, create or join one first")

// syncWriter serializes output from the command loop and the view printer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format+"\n", args...)
}

type app struct {
	rooms      *rooms.Client
	tracker    *profile.Tracker
	opts       session.Options
	logger     *zap.Logger
	out        *syncWriter
	name       string
	difficulty string
	mode       string

	sess    *session.Session
	printed chan struct{}
}

func (a *app) run(ctx context.Context, in io.Reader) error {
	defer a.leave()
	a.out.printf("%s", help)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		quit, err := a.exec(ctx, sc.Text())
		if err != nil {
			a.out.printf("! %s", session.Message(err))
			a.logger.Debug("command failed", zap.Error(err))
		}
		if quit || ctx.Err() != nil {
			return nil
		}
	}
	return sc.Err()
}

func (a *app) exec(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit":
		return true, nil
	case "help":
		a.out.printf("%s", help)
	case "name":
		name, err := room.NormalizeName(strings.Join(args, " "))
		if err != nil {
			return false, err
		}
		a.name = name
		if a.tracker != nil {
			if err := a.tracker.SetUsername(ctx, name); err != nil {
				a.logger.Warn("save profile", zap.Error(err))
			}
		}
		a.out.printf("hello %s", name)
	case "create":
		a.leave()
		code := ""
		if len(args) > 0 {
			code = args[0]
		}
		s, err := session.Create(ctx, a.rooms, a.opts, a.name, code, a.difficulty, a.mode)
		if err != nil {
			return false, err
		}
		a.attach(s)
		a.out.printf("room %s created, share the code with your opponent", s.Code())
	case "join":
		if len(args) == 0 {
			return false, room.ErrInvalidCode
		}
		a.leave()
		s, err := session.Join(ctx, a.rooms, a.opts, a.name, args[0])
		if err != nil {
			return false, err
		}
		a.attach(s)
		a.out.printf("joined room %s", s.Code())
	case "leave":
		a.leave()
	case "profile":
		a.printProfile()
	default:
		return false, a.intent(ctx, cmd, args)
	}
	return false, nil
}

// intent runs the commands that need a room.
func (a *app) intent(ctx context.Context, cmd string, args []string) error {
	if a.sess == nil {
		return errNoRoom
	}
	switch cmd {
	case "start":
		return a.sess.Start(ctx)
	case "roll":
		n, err := a.sess.Roll(ctx)
		if err == nil {
			a.out.printf("you proposed %d", n)
		}
		return err
	case "pick", "found":
		if len(args) == 0 {
			return fmt.Errorf("%s needs a number", cmd)
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%s needs a number: %w", cmd, err)
		}
		if cmd == "pick" {
			return a.sess.Choose(ctx, n)
		}
		return a.sess.Found(ctx, n)
	case "board":
		a.printBoard(a.sess.View())
	case "status":
		a.printView(a.sess.View())
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}

func (a *app) attach(s *session.Session) {
	a.sess = s
	done := make(chan struct{})
	a.printed = done
	go func() {
		defer close(done)
		var last session.View
		for v := range s.Views() {
			if v.Version == last.Version && v.StatusText == last.StatusText && v.Message == last.Message {
				continue
			}
			last = v
			a.printView(v)
		}
	}()
}

func (a *app) leave() {
	if a.sess == nil {
		return
	}
	if err := a.sess.Close(); err != nil {
		a.logger.Warn("close session", zap.Error(err))
	}
	<-a.printed
	a.sess, a.printed = nil, nil
}

func (a *app) printView(v session.View) {
	line := fmt.Sprintf("[%s] %s", v.Code, v.StatusText)
	if v.Status == room.StatusPlaying || v.Status == room.StatusFinished {
		line += fmt.Sprintf("  hand %s vs %s", progress(v.Me, a.opts.MaxDots), progress(v.Opponent, a.opts.MaxDots))
	}
	switch {
	case v.MyTurn():
		line += "  [pick or roll]"
	case v.Filling:
		line += "  [filling]"
	}
	if v.Message != "" {
		line += "  (" + v.Message + ")"
	}
	a.out.printf("%s", line)
}

func progress(p *session.PlayerView, maxDots int) string {
	if maxDots <= 0 {
		maxDots = room.MaxDots
	}
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%d/%d", p.HandProgress, maxDots)
}

func (a *app) printBoard(v session.View) {
	if v.Me == nil {
		a.out.printf("no board yet")
		return
	}
	var b strings.Builder
	for i, n := range v.Me.Board {
		cell := strconv.Itoa(n)
		if slices.Contains(v.Me.Found, n) {
			cell = "*" + cell
		}
		fmt.Fprintf(&b, "%5s", cell)
		if (i+1)%10 == 0 {
			b.WriteByte('\n')
		}
	}
	a.out.printf("%s", strings.TrimRight(b.String(), "\n"))
}

func (a *app) printProfile() {
	if a.tracker == nil {
		a.out.printf("no profile")
		return
	}
	p := a.tracker.Profile()
	a.out.printf("%s  level %d (%s)  xp %d/%d (%.0f%%)", p.Username, p.Level, profile.Title(p.Level),
		p.Experience, profile.XPRequired(p.Level), 100*p.LevelProgress())
	a.out.printf("games %d  wins %d  losses %d  streak %d", p.GamesPlayed, p.Wins, p.Losses, p.WinStreak)
	if len(p.Achievements) > 0 {
		a.out.printf("achievements: %s", strings.Join(p.Achievements, ", "))
	}
	d := board.LookupDifficulty(a.difficulty)
	a.out.printf("next rooms: %s (%d-%d), %s", d.Name, d.Min, d.Max, board.LookupMode(a.mode).Name)
}
