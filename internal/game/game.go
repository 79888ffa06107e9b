package game

// Outcome is the server's round verdict.
type Outcome string

const (
	OutcomePlayer1 Outcome = "player1"
	OutcomePlayer2 Outcome = "player2"
	OutcomeDraw    Outcome = "draw"
)

// Winner returns the winning seat, 0 on a draw.
func (o Outcome) Winner() int {
	switch o {
	case OutcomePlayer1:
		return 1
	case OutcomePlayer2:
		return 2
	}
	return 0
}

// Loser returns the losing seat, 0 on a draw.
func (o Outcome) Loser() int {
	if w := o.Winner(); w != 0 {
		return Other(w)
	}
	return 0
}

// RoundOutcome is what gets shown once both choices are revealed.
type RoundOutcome struct {
	Result          Outcome `json:"result"`
	Message         string  `json:"message"`
	VictoryMessage  string  `json:"victory_message,omitempty"`
	MatchOver       bool    `json:"match_over"`
	ChallengeIssued bool    `json:"challenge_issued"`
	ChallengeOwner  int     `json:"challenge_owner,omitempty"`
}

// ChallengeResult is the server's verdict on a penalty answer.
type ChallengeResult struct {
	Owner   int    `json:"owner"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}
