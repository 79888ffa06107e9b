package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rpsarena/client/internal/coordinator"
	"github.com/rpsarena/client/internal/game"
	"github.com/rpsarena/client/internal/logger"
	"github.com/rpsarena/client/internal/records"
	"github.com/rpsarena/client/internal/transport"
)

// ErrUsage marks input the shell could not parse.
var ErrUsage = errors.New("usage")

// Game is the turn coordinator as the shell drives it.
type Game interface {
	Start(ctx context.Context, setup coordinator.Setup) error
	RequestMove(ctx context.Context, player int, choice game.Choice) error
	AdvanceRound(ctx context.Context) (coordinator.Advance, error)
	Refresh(ctx context.Context) (bool, error)
	ReturnToMenu(ctx context.Context) error
	Status(ctx context.Context) (coordinator.Status, error)
}

type Challenges interface {
	Submit(ctx context.Context, player int, answer string) error
	Continue(ctx context.Context) error
}

type Records interface {
	Fetch(ctx context.Context) (*transport.Records, error)
	Invalidate()
}

// Shell turns typed commands into coordinator calls. The coordinator and
// challenge flow render their own results and errors; the shell only prints
// usage problems and screens it owns.
type Shell struct {
	game       Game
	challenges Challenges
	records    Records
	out        io.Writer
	log        *logger.Logger
}

func New(g Game, ch Challenges, rec Records, out io.Writer) *Shell {
	return &Shell{game: g, challenges: ch, records: rec, out: out, log: logger.Default().With("shell")}
}

const helpText = `Commands:
  start <mode> [player1] [player2] [rounds]   modes: pvp, easy, hard, auto
  move [player] <rock|paper|scissors>         or just type the choice
  next                                        continue after a round
  refresh                                     fetch the latest match state
  answer <player> <text>                      answer a challenge
  continue                                    close an answered challenge
  records                                     show saved match records
  stats                                       player 1 move statistics
  menu                                        abandon the match
  help, quit
`

// Run reads commands until EOF, quit, or ctx ends.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprint(s.out, "Rock Paper Scissors. Type 'help' for commands.\n")
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := s.Execute(ctx, line)
			if err != nil {
				s.log.Debug("command failed", logger.Fields{"line": line, "error": err.Error()})
			}
			if quit {
				return nil
			}
		}
	}
}

// Execute runs one command line.
func (s *Shell) Execute(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		fmt.Fprint(s.out, helpText)
		return false, nil
	case "start", "new":
		return false, s.start(ctx, args)
	case "move", "m":
		return false, s.move(ctx, args)
	case "next", "n":
		return false, s.next(ctx)
	case "refresh", "r!":
		_, err := s.game.Refresh(ctx)
		return false, err
	case "answer", "a":
		return false, s.answer(ctx, args)
	case "continue", "c":
		return false, s.challenges.Continue(ctx)
	case "records":
		return false, s.showRecords(ctx)
	case "stats":
		return false, s.stats(ctx)
	case "menu":
		return false, s.game.ReturnToMenu(ctx)
	}

	if _, perr := game.ParseChoice(cmd); perr == nil && len(args) == 0 {
		return false, s.move(ctx, fields)
	}
	return false, s.usage("unknown command %q, type 'help'", cmd)
}

func (s *Shell) usage(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(s.out, msg)
	return fmt.Errorf("%w: %s", ErrUsage, msg)
}

func (s *Shell) start(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return s.usage("start <mode> [player1] [player2] [rounds]")
	}
	mode, err := game.ParseMode(args[0])
	if err != nil {
		return s.usage("%v", err)
	}
	setup := coordinator.Setup{Mode: mode}
	names := args[1:]
	if n := len(names); n > 0 {
		if rounds, err := strconv.Atoi(names[n-1]); err == nil {
			if rounds <= 0 {
				return s.usage("rounds must be positive")
			}
			setup.MaxRounds = rounds
			names = names[:n-1]
		}
	}
	if len(names) > 0 {
		setup.Player1 = names[0]
	}
	if len(names) > 1 {
		setup.Player2 = names[1]
	}
	if len(names) > 2 {
		return s.usage("player names must be single words")
	}
	return s.game.Start(ctx, setup)
}

func (s *Shell) move(ctx context.Context, args []string) error {
	var player int
	switch len(args) {
	case 1:
		st, err := s.game.Status(ctx)
		if err != nil {
			return err
		}
		player = st.OnTurn
		if player == 0 {
			player = 1
		}
	case 2:
		p, err := strconv.Atoi(args[0])
		if err != nil || !game.ValidPlayer(p) {
			return s.usage("player must be 1 or 2")
		}
		player = p
		args = args[1:]
	default:
		return s.usage("move [player] <rock|paper|scissors>")
	}
	choice, err := game.ParseChoice(args[0])
	if err != nil {
		return s.usage("%v", err)
	}
	return s.game.RequestMove(ctx, player, choice)
}

func (s *Shell) next(ctx context.Context) error {
	adv, err := s.game.AdvanceRound(ctx)
	if err != nil {
		return err
	}
	if adv.Complete && s.records != nil {
		s.records.Invalidate()
	}
	return nil
}

func (s *Shell) answer(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return s.usage("answer <player> <text>")
	}
	p, err := strconv.Atoi(args[0])
	if err != nil || !game.ValidPlayer(p) {
		return s.usage("player must be 1 or 2")
	}
	return s.challenges.Submit(ctx, p, strings.Join(args[1:], " "))
}

func (s *Shell) showRecords(ctx context.Context) error {
	if s.records == nil {
		return s.usage("records are not available")
	}
	recs, err := s.records.Fetch(ctx)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return err
	}
	fmt.Fprint(s.out, records.Format(recs))
	return nil
}

func (s *Shell) stats(ctx context.Context) error {
	st, err := s.game.Status(ctx)
	if err != nil {
		return err
	}
	if st.Board.Empty() {
		return s.usage("no match in progress")
	}
	// the shared view never includes an unrevealed move
	v := st.Board.View(0)
	fmt.Fprintln(s.out, records.Summarize(v.History).String())
	return nil
}
