package coordinator

import (
	"context"
	"fmt"

	"github.com/rpsarena/client/internal/analytics"
	"github.com/rpsarena/client/internal/game"
	"github.com/rpsarena/client/internal/logger"
	"github.com/rpsarena/client/internal/transport"
)

// RequestMove submits a human move. Local rejections never reach the server.
func (c *Coordinator) RequestMove(ctx context.Context, player int, choice game.Choice) error {
	return c.move(ctx, player, choice, false)
}

func (c *Coordinator) move(ctx context.Context, player int, choice game.Choice, auto bool) error {
	var gen uint64
	if err := c.onLoop(ctx, func() error {
		var err error
		gen, err = c.beginMove(player, choice, auto)
		return err
	}); err != nil {
		return err
	}

	resp, err := c.server.SubmitMove(ctx, player, choice)

	return c.onLoop(context.Background(), func() error {
		if gen != c.gen {
			return ErrMatchChanged
		}
		c.moving = false
		if err != nil {
			c.log.Warn("move failed", logger.Fields{"player": player, "auto": auto, "error": err.Error()})
			c.render.Error(err)
			return fmt.Errorf("submit move: %w", err)
		}
		if verr := resp.State.Validate(); verr != nil {
			verr = fmt.Errorf("server sent an invalid match: %w", verr)
			c.render.Error(verr)
			return verr
		}
		c.applyMove(player, auto, resp)
		return nil
	})
}

// beginMove gates a move on the loop and marks it in flight.
func (c *Coordinator) beginMove(player int, choice game.Choice, auto bool) (uint64, error) {
	err := c.checkMove(player, choice, auto)
	switch err {
	case nil:
	case ErrNotYourTurn:
		c.render.Notice(fmt.Sprintf("Not your turn! It's %s's turn.", c.state.Player(c.onTurn).Name))
		return 0, err
	default:
		if !auto {
			c.render.Error(err)
		}
		return 0, err
	}
	c.moving = true
	return c.gen, nil
}

func (c *Coordinator) checkMove(player int, choice game.Choice, auto bool) error {
	switch {
	case c.state == nil:
		return ErrNoMatch
	case !c.state.Active:
		return ErrMatchInactive
	case c.phase != PhaseRound:
		return ErrRoundResolved
	case !game.ValidPlayer(player):
		return ErrInvalidPlayer
	case c.moving:
		return ErrMoveInFlight
	}
	seat := c.state.Player(player)
	if !auto {
		if !seat.Human {
			return ErrNotHumanPlayer
		}
		if !choice.Valid() {
			return game.ErrInvalidChoice
		}
	}
	if c.state.Mode == game.ModePvP && player != c.onTurn {
		return ErrNotYourTurn
	}
	if !c.state.Owes(player) {
		return ErrAlreadyCommitted
	}
	return nil
}

// applyMove folds a server reply into the cache. Loop only.
func (c *Coordinator) applyMove(player int, auto bool, resp *transport.MoveResponse) {
	st := resp.State
	round := c.state.Round
	c.track(analytics.MoveEvent(c.matchID, round, player, auto))

	if resp.Waiting() {
		seat := st.Player(player)
		seat.Committed = true
		seat.Display = game.StatusReady
		st.BothCommitted = false
		c.swap(st)
		if st.Mode == game.ModePvP {
			c.onTurn = game.Other(player)
		}
		c.render.Board(c.board())
		c.scheduleCPU()
		c.ensurePolling()
		return
	}

	for _, seat := range []*game.PlayerState{&st.Player1, &st.Player2} {
		seat.Committed = true
		seat.Display = game.StatusRevealed
	}
	st.BothCommitted = true
	// the reply is the board as scored, before the server counts the round
	if st.Round <= round {
		st.Round = round + 1
	}
	if resp.GameComplete {
		st.Active = false
	}
	c.swap(st)
	c.phase = PhaseResolved
	c.onTurn = 1
	c.stopPolling()

	out := game.RoundOutcome{
		Result:          resp.Result,
		Message:         resp.Message,
		VictoryMessage:  resp.VictoryMessage,
		MatchOver:       resp.GameComplete || !st.Active,
		ChallengeIssued: resp.ChallengeIssued,
	}
	if out.ChallengeIssued {
		out.ChallengeOwner = resp.ChallengeOwner
		if !game.ValidPlayer(out.ChallengeOwner) {
			out.ChallengeOwner = resp.Result.Loser()
		}
	}
	c.log.Info("round resolved", logger.Fields{"match": c.matchID, "round": round, "result": resp.Result})
	c.track(analytics.RoundEndEvent(c.matchID, round, string(resp.Result), out.ChallengeIssued))
	c.render.Round(c.board(), out)

	if out.ChallengeIssued && game.ValidPlayer(out.ChallengeOwner) {
		c.openChallenge(out.ChallengeOwner)
	}
}

func (c *Coordinator) openChallenge(owner int) {
	if c.challenge == nil || c.challengeOpen {
		return
	}
	c.challengeOpen = true
	c.challenge.BeginChallenge(owner)
}

// owedCPU returns the first computer seat still owing a choice once no human
// seat does.
func (c *Coordinator) owedCPU() int {
	for seat := 1; seat <= 2; seat++ {
		if p := c.state.Player(seat); p.Human && c.state.Owes(seat) {
			return 0
		}
	}
	for seat := 1; seat <= 2; seat++ {
		if p := c.state.Player(seat); !p.Human && c.state.Owes(seat) {
			return seat
		}
	}
	return 0
}

// scheduleCPU arms a delayed server-chosen move for an owed computer seat.
// The timer cannot be cancelled, so its continuation re-checks everything.
func (c *Coordinator) scheduleCPU() {
	if c.cpuArmed || c.moving || c.phase != PhaseRound || c.state == nil || !c.state.Active {
		return
	}
	seat := c.owedCPU()
	if seat == 0 {
		return
	}
	c.cpuArmed = true
	gen, round := c.gen, c.state.Round
	c.loop.After(c.cpuDelay, func() {
		if gen != c.gen {
			return
		}
		c.cpuArmed = false
		if c.state == nil || !c.state.Active || c.phase != PhaseRound || c.state.Round != round || c.moving {
			return
		}
		if !c.state.Owes(seat) {
			c.scheduleCPU()
			return
		}
		go c.move(context.Background(), seat, game.ChoiceServer, true)
	})
}
