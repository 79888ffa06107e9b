package game

// Board is a read-only handle on a cached snapshot. Renderers only ever see
// the match through View, which enforces hidden-choice play.
type Board struct {
	state *MatchState
}

// NewBoard copies s so later swaps of the cache do not leak through.
func NewBoard(s *MatchState) Board {
	return Board{state: s.Clone()}
}

// Empty reports whether there is no match.
func (b Board) Empty() bool {
	return b.state == nil
}

// PlayerView is one seat as a particular viewer may see it.
type PlayerView struct {
	Number    int           `json:"number"`
	Name      string        `json:"name"`
	Human     bool          `json:"human"`
	Score     int           `json:"score"`
	Committed bool          `json:"committed"`
	Status    DisplayStatus `json:"status"`
	Choice    Choice        `json:"choice,omitempty"`
}

// View is a redacted snapshot for one viewer (1, 2, or 0 for a shared screen).
type View struct {
	Viewer           int           `json:"viewer"`
	Mode             Mode          `json:"mode"`
	Players          [2]PlayerView `json:"players"`
	Draws            int           `json:"draws"`
	Round            int           `json:"round"`
	MaxRounds        int           `json:"max_rounds"`
	Active           bool          `json:"active"`
	BothCommitted    bool          `json:"both_committed"`
	PendingChallenge int           `json:"pending_challenge,omitempty"`
	History          []Choice      `json:"history,omitempty"`
}

// View returns what viewer is allowed to see. A choice is exposed only after
// both seats committed, or to the seat that made it.
func (b Board) View(viewer int) View {
	if b.state == nil {
		return View{Viewer: viewer}
	}
	s := b.state
	v := View{
		Viewer:        viewer,
		Mode:          s.Mode,
		Draws:         s.Draws,
		Round:         s.Round,
		MaxRounds:     s.MaxRounds,
		Active:        s.Active,
		BothCommitted: s.BothCommitted,
	}
	if s.PendingChallenge != nil {
		v.PendingChallenge = *s.PendingChallenge
	}
	for i := 1; i <= 2; i++ {
		p := s.Player(i)
		pv := PlayerView{
			Number:    i,
			Name:      p.Name,
			Human:     p.Human,
			Score:     p.Score,
			Committed: p.Committed || s.BothCommitted,
		}
		switch {
		case s.BothCommitted:
			pv.Status = StatusRevealed
			pv.Choice = p.Choice
		case p.Committed:
			pv.Status = StatusReady
			if viewer == i {
				pv.Choice = p.Choice
			}
		default:
			pv.Status = StatusWaiting
		}
		v.Players[i-1] = pv
	}
	// The server appends player 1's move to history as soon as it commits.
	history := s.History
	if viewer != 1 && s.Player1.Human && s.Player1.Committed && !s.BothCommitted && len(history) > 0 {
		history = history[:len(history)-1]
	}
	if len(history) > 0 {
		v.History = append([]Choice(nil), history...)
	}
	return v
}

// Round is the index of the round in play, 0 without a match.
func (b Board) Round() int {
	if b.state == nil {
		return 0
	}
	return b.state.Round
}

// Active reports whether the match accepts moves.
func (b Board) Active() bool {
	return b.state != nil && b.state.Active
}
