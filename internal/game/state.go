package game

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Mode is the match type as the rules server names it.
type Mode string

const (
	ModePvP     Mode = "player_vs_player"
	ModeCPUEasy Mode = "player_vs_cpu_easy"
	ModeCPUHard Mode = "player_vs_cpu_hard"
	ModeCPUvCPU Mode = "cpu_vs_cpu"
)

// ParseMode accepts the wire names plus short aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "player_vs_player", "pvp":
		return ModePvP, nil
	case "player_vs_cpu_easy", "easy", "cpu":
		return ModeCPUEasy, nil
	case "player_vs_cpu_hard", "hard":
		return ModeCPUHard, nil
	case "cpu_vs_cpu", "auto":
		return ModeCPUvCPU, nil
	}
	return "", fmt.Errorf("unknown game mode %q", s)
}

// HumanSeats reports whether each seat is played by a person in mode m.
func (m Mode) HumanSeats() (p1, p2 bool) {
	switch m {
	case ModePvP:
		return true, true
	case ModeCPUvCPU:
		return false, false
	default:
		return true, false
	}
}

// Choice is a committed move. The empty choice asks the server to pick.
type Choice string

const (
	ChoiceServer   Choice = ""
	ChoiceRock     Choice = "rock"
	ChoicePaper    Choice = "paper"
	ChoiceScissors Choice = "scissors"
)

var Choices = []Choice{ChoiceRock, ChoicePaper, ChoiceScissors}

var ErrInvalidChoice = errors.New("choice must be rock, paper or scissors")

func ParseChoice(s string) (Choice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rock", "r":
		return ChoiceRock, nil
	case "paper", "p":
		return ChoicePaper, nil
	case "scissors", "s":
		return ChoiceScissors, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidChoice, s)
}

func (c Choice) Valid() bool {
	return c == ChoiceRock || c == ChoicePaper || c == ChoiceScissors
}

// DisplayStatus is what a seat shows before and after the reveal.
type DisplayStatus string

const (
	StatusWaiting  DisplayStatus = "waiting"
	StatusReady    DisplayStatus = "ready"
	StatusRevealed DisplayStatus = "revealed"
)

// PlayerState represents one seat as sent by the server.
type PlayerState struct {
	Name      string        `json:"name"`
	Score     int           `json:"score"`
	Choice    Choice        `json:"choice,omitempty"`
	Human     bool          `json:"is_human"`
	Committed bool          `json:"choice_made"`
	Display   DisplayStatus `json:"choice_display,omitempty"`
}

// MatchState is the server-authoritative snapshot of a match.
type MatchState struct {
	Mode             Mode        `json:"game_mode"`
	Player1          PlayerState `json:"player1"`
	Player2          PlayerState `json:"player2"`
	Draws            int         `json:"draws"`
	Round            int         `json:"current_round"`
	MaxRounds        int         `json:"max_rounds"`
	History          []Choice    `json:"player_history,omitempty"`
	Active           bool        `json:"game_active"`
	BothCommitted    bool        `json:"both_choices_made"`
	PendingChallenge *int        `json:"pending_challenge,omitempty"`
}

// Player returns seat n (1 or 2), or nil.
func (s *MatchState) Player(n int) *PlayerState {
	switch n {
	case 1:
		return &s.Player1
	case 2:
		return &s.Player2
	}
	return nil
}

// Other returns the opposing seat number.
func Other(n int) int {
	return 3 - n
}

func ValidPlayer(n int) bool {
	return n == 1 || n == 2
}

// Complete reports whether the round index has passed the last round.
func (s *MatchState) Complete() bool {
	return s.Round > s.MaxRounds
}

// Owes reports whether seat n still has to commit this round.
func (s *MatchState) Owes(n int) bool {
	p := s.Player(n)
	return p != nil && !p.Committed && !s.BothCommitted
}

func (s *MatchState) Validate() error {
	if s.MaxRounds < 1 {
		return fmt.Errorf("max_rounds %d must be positive", s.MaxRounds)
	}
	if s.Round < 1 || s.Round > s.MaxRounds+1 {
		return fmt.Errorf("current_round %d outside 1..%d", s.Round, s.MaxRounds+1)
	}
	if s.Player1.Score < 0 || s.Player2.Score < 0 || s.Draws < 0 {
		return errors.New("scores must not be negative")
	}
	if s.PendingChallenge != nil && !ValidPlayer(*s.PendingChallenge) {
		return fmt.Errorf("pending challenge owner %d", *s.PendingChallenge)
	}
	return nil
}

// Clone returns a deep copy.
func (s *MatchState) Clone() *MatchState {
	if s == nil {
		return nil
	}
	c := *s
	if s.History != nil {
		c.History = append([]Choice(nil), s.History...)
	}
	if s.PendingChallenge != nil {
		owner := *s.PendingChallenge
		c.PendingChallenge = &owner
	}
	return &c
}

// Equal is structural equality between two snapshots.
func (s *MatchState) Equal(o *MatchState) bool {
	return reflect.DeepEqual(s, o)
}

// ClearRound drops the per-round commit flags and choices.
func (s *MatchState) ClearRound() {
	for _, p := range []*PlayerState{&s.Player1, &s.Player2} {
		p.Committed = false
		p.Choice = ChoiceServer
		p.Display = StatusWaiting
	}
	s.BothCommitted = false
}

// Champion is the end-of-match verdict. Winner 0 is a tie.
type Champion struct {
	Winner int    `json:"winner"`
	Name   string `json:"name,omitempty"`
	Score1 int    `json:"score1"`
	Score2 int    `json:"score2"`
	Draws  int    `json:"draws"`
}

// Champion picks the player with the strictly higher score.
func (s *MatchState) Champion() Champion {
	c := Champion{Score1: s.Player1.Score, Score2: s.Player2.Score, Draws: s.Draws}
	switch {
	case s.Player1.Score > s.Player2.Score:
		c.Winner, c.Name = 1, s.Player1.Name
	case s.Player2.Score > s.Player1.Score:
		c.Winner, c.Name = 2, s.Player2.Name
	}
	return c
}

func (c Champion) Tie() bool {
	return c.Winner == 0
}

func (c Champion) Message() string {
	if c.Tie() {
		return "🏅 The game ended in a TIE!"
	}
	return fmt.Sprintf("🎊 %s is the CHAMPION! 🎊", c.Name)
}
