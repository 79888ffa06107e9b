package render

import (
	"github.com/rpsarena/client/internal/game"
)

// Renderer reflects coordinator state somewhere a person can see it. Calls
// arrive on the coordinator's event loop and must not block for long.
type Renderer interface {
	Board(b game.Board)
	Round(b game.Board, out game.RoundOutcome)
	Champion(c game.Champion)
	Challenge(owner int, c game.Challenge)
	ChallengeResult(res game.ChallengeResult)
	Notice(msg string)
	Error(err error)
}

// Fanout forwards every call to each renderer in order.
type Fanout []Renderer

func (f Fanout) Board(b game.Board) {
	for _, r := range f {
		r.Board(b)
	}
}

func (f Fanout) Round(b game.Board, out game.RoundOutcome) {
	for _, r := range f {
		r.Round(b, out)
	}
}

func (f Fanout) Champion(c game.Champion) {
	for _, r := range f {
		r.Champion(c)
	}
}

func (f Fanout) Challenge(owner int, c game.Challenge) {
	for _, r := range f {
		r.Challenge(owner, c)
	}
}

func (f Fanout) ChallengeResult(res game.ChallengeResult) {
	for _, r := range f {
		r.ChallengeResult(res)
	}
}

func (f Fanout) Notice(msg string) {
	for _, r := range f {
		r.Notice(msg)
	}
}

func (f Fanout) Error(err error) {
	for _, r := range f {
		r.Error(err)
	}
}

// Discard drops everything.
type Discard struct{}

func (Discard) Board(game.Board)                     {}
func (Discard) Round(game.Board, game.RoundOutcome)  {}
func (Discard) Champion(game.Champion)               {}
func (Discard) Challenge(int, game.Challenge)        {}
func (Discard) ChallengeResult(game.ChallengeResult) {}
func (Discard) Notice(string)                        {}
func (Discard) Error(error)                          {}
