package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpsarena/client/internal/analytics"
	"github.com/rpsarena/client/internal/game"
	"github.com/rpsarena/client/internal/logger"
	"github.com/rpsarena/client/internal/loop"
	"github.com/rpsarena/client/internal/render"
	"github.com/rpsarena/client/internal/transport"
)

var (
	ErrNoMatch          = errors.New("no match in progress")
	ErrMatchInactive    = errors.New("the match is over")
	ErrRoundResolved    = errors.New("round already resolved, advance to the next round")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrAlreadyCommitted = errors.New("choice already made this round")
	ErrMoveInFlight     = errors.New("a move is already being submitted")
	ErrNotHumanPlayer   = errors.New("that seat is played by the CPU")
	ErrInvalidPlayer    = errors.New("player must be 1 or 2")
	ErrChallengePending = errors.New("the pending challenge must be resolved first")
	ErrMatchChanged     = errors.New("the match changed while the request was in flight")
)

// Server is the part of the rules server the coordinator talks to.
type Server interface {
	ResetMatch(ctx context.Context) error
	StartMatch(ctx context.Context, req transport.StartRequest) (*game.MatchState, error)
	SubmitMove(ctx context.Context, player int, choice game.Choice) (*transport.MoveResponse, error)
	CurrentState(ctx context.Context) (*game.MatchState, error)
}

// ChallengeHandler takes over when a round result issues a challenge.
// Both methods are called on the event loop.
type ChallengeHandler interface {
	BeginChallenge(owner int)
	Abandon()
}

// Tracker receives analytics events. Track must not block.
type Tracker interface {
	Track(ev analytics.GameEvent)
}

// Phase is where the coordinator is within a match.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRound    Phase = "round"
	PhaseResolved Phase = "resolved"
)

type Options struct {
	Server       Server
	Renderer     render.Renderer
	Loop         *loop.Loop
	PollInterval time.Duration
	CPUDelay     time.Duration
	Tracker      Tracker
	Logger       *logger.Logger
}

// Setup describes a match to start. Zero values take the server defaults.
type Setup struct {
	Mode      game.Mode
	Player1   string
	Player2   string
	MaxRounds int
}

const DefaultMaxRounds = 5

func (s Setup) withDefaults() Setup {
	if strings.TrimSpace(s.Player1) == "" {
		s.Player1 = "Player 1"
	}
	if strings.TrimSpace(s.Player2) == "" {
		if s.Mode == game.ModePvP {
			s.Player2 = "Player 2"
		} else {
			s.Player2 = "CPU"
		}
	}
	if s.MaxRounds <= 0 {
		s.MaxRounds = DefaultMaxRounds
	}
	return s
}

// Coordinator tracks whose turn it is and what has been revealed, and keeps
// the cached match in step with the server. Every field below the options
// is owned by the event loop.
type Coordinator struct {
	server       Server
	render       render.Renderer
	loop         *loop.Loop
	tracker      Tracker
	log          *logger.Logger
	pollInterval time.Duration
	cpuDelay     time.Duration

	state     *game.MatchState
	version   uint64
	phase     Phase
	gen       uint64
	onTurn    int
	moving    bool
	cpuArmed  bool
	poll      *loop.Ticker
	polling   bool
	challenge ChallengeHandler
	// challengeOpen is set from the round result until the flow releases.
	challengeOpen bool
	matchID       string
	startedAt     time.Time
}

func New(opts Options) *Coordinator {
	c := &Coordinator{
		server:       opts.Server,
		render:       opts.Renderer,
		loop:         opts.Loop,
		tracker:      opts.Tracker,
		log:          opts.Logger,
		pollInterval: opts.PollInterval,
		cpuDelay:     opts.CPUDelay,
		phase:        PhaseIdle,
		onTurn:       1,
	}
	if c.render == nil {
		c.render = render.Discard{}
	}
	if c.log == nil {
		c.log = logger.Default().With("coordinator")
	}
	return c
}

// SetChallengeHandler wires the challenge flow. Call it before the loop runs.
func (c *Coordinator) SetChallengeHandler(h ChallengeHandler) {
	c.challenge = h
}

// onLoop runs fn on the event loop and returns its error.
func (c *Coordinator) onLoop(ctx context.Context, fn func() error) error {
	var err error
	if derr := c.loop.Do(ctx, func() { err = fn() }); derr != nil {
		return derr
	}
	return err
}

// Status is a consistent read of the coordinator.
type Status struct {
	Board         game.Board
	Phase         Phase
	OnTurn        int
	ChallengeOpen bool
	MatchID       string
}

func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.onLoop(ctx, func() error {
		st = Status{
			Board:         c.board(),
			Phase:         c.phase,
			OnTurn:        c.onTurn,
			ChallengeOpen: c.challengeOpen,
			MatchID:       c.matchID,
		}
		return nil
	})
	return st, err
}

func (c *Coordinator) board() game.Board {
	return game.NewBoard(c.state)
}

// swap replaces the cached match as a whole.
func (c *Coordinator) swap(st *game.MatchState) {
	c.state = st
	c.version++
}

func (c *Coordinator) track(ev analytics.GameEvent) {
	if c.tracker != nil {
		c.tracker.Track(ev)
	}
}

// Start begins a new match, discarding any local one.
func (c *Coordinator) Start(ctx context.Context, setup Setup) error {
	setup = setup.withDefaults()
	if _, err := game.ParseMode(string(setup.Mode)); err != nil {
		c.render.Error(err)
		return err
	}

	var gen uint64
	if err := c.onLoop(ctx, func() error {
		c.resetLocal()
		gen = c.gen
		return nil
	}); err != nil {
		return err
	}

	st, err := c.server.StartMatch(ctx, transport.StartRequest{
		Mode:        setup.Mode,
		Player1Name: setup.Player1,
		Player2Name: setup.Player2,
		MaxRounds:   setup.MaxRounds,
	})

	return c.onLoop(context.Background(), func() error {
		if gen != c.gen {
			return ErrMatchChanged
		}
		if err != nil {
			c.render.Error(err)
			return fmt.Errorf("start match: %w", err)
		}
		if verr := st.Validate(); verr != nil {
			verr = fmt.Errorf("server sent an invalid match: %w", verr)
			c.render.Error(verr)
			return verr
		}

		c.swap(st)
		c.phase = PhaseRound
		c.onTurn = 1
		c.matchID = uuid.New().String()
		c.startedAt = time.Now()
		c.log.Info("match started", logger.Fields{"match": c.matchID, "mode": st.Mode, "max_rounds": st.MaxRounds})
		c.track(analytics.MatchStartEvent(c.matchID, string(st.Mode), st.Player1.Name, st.Player2.Name, st.MaxRounds))

		c.render.Board(c.board())
		c.scheduleCPU()
		c.ensurePolling()
		return nil
	})
}

// resetLocal discards the match. Timers and polls armed for it become stale.
func (c *Coordinator) resetLocal() {
	c.gen++
	c.stopPolling()
	if c.challengeOpen && c.challenge != nil {
		c.challenge.Abandon()
	}
	c.challengeOpen = false
	c.swap(nil)
	c.phase = PhaseIdle
	c.onTurn = 1
	c.moving = false
	c.cpuArmed = false
	c.polling = false
	c.matchID = ""
}

// ReturnToMenu drops the match locally and asks the server to reset it.
func (c *Coordinator) ReturnToMenu(ctx context.Context) error {
	if err := c.onLoop(ctx, func() error {
		c.resetLocal()
		c.render.Board(c.board())
		return nil
	}); err != nil {
		return err
	}
	if err := c.server.ResetMatch(ctx); err != nil {
		c.log.Warn("reset match failed", logger.Fields{"error": err.Error()})
		return fmt.Errorf("reset match: %w", err)
	}
	return nil
}

// Replace adopts a snapshot delivered outside the move path. Loop only.
func (c *Coordinator) Replace(st *game.MatchState) {
	if c.state == nil || st == nil {
		return
	}
	if err := st.Validate(); err != nil {
		c.log.Warn("ignoring invalid snapshot", logger.Fields{"error": err.Error()})
		return
	}
	c.swap(st)
}

// Rerender draws the cached match again. Loop only.
func (c *Coordinator) Rerender() {
	c.render.Board(c.board())
}

// ChallengeClosed releases the round after the challenge flow is done. A nil
// result means no challenge was presented. Loop only.
func (c *Coordinator) ChallengeClosed(res *game.ChallengeResult) {
	if !c.challengeOpen {
		return
	}
	c.challengeOpen = false
	if res != nil {
		c.track(analytics.ChallengeEndEvent(c.matchID, res.Owner, res.Passed))
	}
	if c.state != nil {
		c.render.Notice("Type 'next' to continue.")
	}
}

// Reload fetches the current state and renders it.
func (c *Coordinator) Reload(ctx context.Context) error {
	var gen uint64
	if err := c.onLoop(ctx, func() error {
		if c.state == nil {
			return ErrNoMatch
		}
		gen = c.gen
		return nil
	}); err != nil {
		return err
	}

	st, err := c.server.CurrentState(ctx)
	if err != nil {
		return fmt.Errorf("reload state: %w", err)
	}
	return c.onLoop(context.Background(), func() error {
		if gen != c.gen {
			return ErrMatchChanged
		}
		c.Replace(st)
		c.render.Board(c.board())
		return nil
	})
}
