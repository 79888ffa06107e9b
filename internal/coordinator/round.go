package coordinator

import (
	"context"
	"time"

	"github.com/rpsarena/client/internal/analytics"
	"github.com/rpsarena/client/internal/game"
	"github.com/rpsarena/client/internal/logger"
)

// Advance is the result of AdvanceRound.
type Advance struct {
	Complete bool
	Champion game.Champion
}

// AdvanceRound moves to the next round, or finishes the match when the
// server says it is no longer active.
func (c *Coordinator) AdvanceRound(ctx context.Context) (Advance, error) {
	var gen uint64
	if err := c.onLoop(ctx, func() error {
		switch {
		case c.state == nil:
			c.render.Error(ErrNoMatch)
			return ErrNoMatch
		case c.challengeOpen:
			c.render.Notice("Finish the challenge first.")
			return ErrChallengePending
		case c.moving:
			return ErrMoveInFlight
		}
		gen = c.gen
		return nil
	}); err != nil {
		return Advance{}, err
	}

	st, err := c.server.CurrentState(ctx)

	var adv Advance
	rerr := c.onLoop(context.Background(), func() error {
		if gen != c.gen {
			return ErrMatchChanged
		}
		if c.challengeOpen {
			return ErrChallengePending
		}

		if err != nil {
			c.log.Warn("advance without server state", logger.Fields{"error": err.Error()})
			if !c.state.Active {
				adv = c.complete(c.state)
				return nil
			}
			next := c.state.Clone()
			next.ClearRound()
			c.render.Notice("Server unreachable, continuing with the local board.")
			c.beginRound(next)
			return nil
		}

		if verr := st.Validate(); verr != nil && st.Active {
			c.render.Error(verr)
			return verr
		}
		if !st.Active {
			adv = c.complete(st)
			return nil
		}
		if st.PendingChallenge != nil && c.challenge != nil {
			c.swap(st)
			c.openChallenge(*st.PendingChallenge)
			return ErrChallengePending
		}

		next := st.Clone()
		next.ClearRound()
		c.beginRound(next)
		return nil
	})
	return adv, rerr
}

// beginRound installs the state of a fresh round. Loop only.
func (c *Coordinator) beginRound(st *game.MatchState) {
	c.stopPolling()
	c.swap(st)
	c.phase = PhaseRound
	c.onTurn = 1
	c.render.Board(c.board())
	c.scheduleCPU()
	c.ensurePolling()
}

// complete announces the champion and returns to the menu. Loop only.
func (c *Coordinator) complete(st *game.MatchState) Advance {
	champ := st.Champion()
	c.log.Info("match complete", logger.Fields{"match": c.matchID, "winner": champ.Winner, "score1": champ.Score1, "score2": champ.Score2})
	c.track(analytics.MatchEndEvent(c.matchID, champ.Name, champ.Tie(), champ.Score1, champ.Score2, time.Since(c.startedAt)))
	c.render.Champion(champ)

	c.resetLocal()
	go func() {
		if err := c.server.ResetMatch(context.Background()); err != nil {
			c.log.Warn("reset after match failed", logger.Fields{"error": err.Error()})
		}
	}()
	return Advance{Complete: true, Champion: champ}
}
