package coordinator

import (
	"context"
	"fmt"

	"github.com/rpsarena/client/internal/game"
	"github.com/rpsarena/client/internal/logger"
)

func (c *Coordinator) shouldPoll() bool {
	return c.state != nil && c.phase == PhaseRound && c.state.Active && !c.state.BothCommitted
}

// ensurePolling starts the supervised poll task when the round needs it.
func (c *Coordinator) ensurePolling() {
	if c.pollInterval <= 0 || c.poll != nil || !c.shouldPoll() {
		return
	}
	gen := c.gen
	c.poll = c.loop.Every(c.pollInterval, func() { c.pollTick(gen) })
}

func (c *Coordinator) stopPolling() {
	if c.poll != nil {
		c.poll.Stop()
		c.poll = nil
	}
}

func (c *Coordinator) pollTick(gen uint64) {
	if gen != c.gen {
		return
	}
	if !c.shouldPoll() {
		c.stopPolling()
		return
	}
	if c.polling || c.moving {
		return
	}
	c.polling = true
	version := c.version
	go func() {
		st, err := c.server.CurrentState(context.Background())
		c.loop.Post(func() {
			if gen != c.gen {
				return
			}
			c.polling = false
			if err != nil {
				c.log.Debug("poll failed", logger.Fields{"error": err.Error()})
				return
			}
			// a move landed while this poll was in flight
			if version != c.version {
				return
			}
			c.reconcile(st)
		})
	}()
}

// reconcile adopts a server snapshot when it differs from the cache. It
// reports whether anything changed. Loop only.
func (c *Coordinator) reconcile(st *game.MatchState) bool {
	if c.state == nil || st == nil || c.phase != PhaseRound {
		return false
	}
	if c.state.Equal(st) {
		return false
	}
	if err := st.Validate(); err != nil {
		c.log.Warn("ignoring invalid snapshot", logger.Fields{"error": err.Error()})
		return false
	}

	prev := c.state
	c.swap(st)
	c.log.Debug("adopted server snapshot", logger.Fields{"round": st.Round, "both": st.BothCommitted})

	switch {
	case !st.Active:
		c.phase = PhaseResolved
		c.onTurn = 1
		c.render.Board(c.board())
		c.render.Notice("The match has ended. Type 'next' for the result.")
	case st.BothCommitted:
		c.phase = PhaseResolved
		c.onTurn = 1
		c.render.Board(c.board())
		c.render.Notice("Both choices are in. Type 'next' to continue.")
	case st.Round != prev.Round:
		// resolved on another device
		c.onTurn = 1
		c.render.Notice(fmt.Sprintf("Round %d was resolved elsewhere.", prev.Round))
		c.render.Board(c.board())
		if st.PendingChallenge != nil {
			c.openChallenge(*st.PendingChallenge)
		}
	default:
		if st.Mode == game.ModePvP {
			c.onTurn = 1
			if st.Player1.Committed && !st.Player2.Committed {
				c.onTurn = 2
			}
		}
		c.render.Board(c.board())
	}

	if c.shouldPoll() {
		c.scheduleCPU()
	} else {
		c.stopPolling()
	}
	return true
}

// Refresh fetches the current state and adopts it when it changed. Once a
// round is resolved the revealed board is kept until AdvanceRound.
func (c *Coordinator) Refresh(ctx context.Context) (bool, error) {
	var gen uint64
	var resolved bool
	if err := c.onLoop(ctx, func() error {
		if c.state == nil {
			c.render.Error(ErrNoMatch)
			return ErrNoMatch
		}
		gen = c.gen
		resolved = c.phase != PhaseRound
		if resolved {
			c.render.Board(c.board())
		}
		return nil
	}); err != nil || resolved {
		return false, err
	}

	st, err := c.server.CurrentState(ctx)

	var changed bool
	rerr := c.onLoop(context.Background(), func() error {
		if gen != c.gen {
			return ErrMatchChanged
		}
		if err != nil {
			c.render.Error(err)
			return fmt.Errorf("refresh: %w", err)
		}
		changed = c.reconcile(st)
		if !changed && c.shouldPoll() {
			c.scheduleCPU()
		}
		return nil
	})
	return changed, rerr
}

// Reconcile applies a pushed snapshot, for example from the live feed.
func (c *Coordinator) Reconcile(ctx context.Context, st *game.MatchState) (bool, error) {
	var changed bool
	err := c.onLoop(ctx, func() error {
		changed = c.reconcile(st)
		return nil
	})
	return changed, err
}
