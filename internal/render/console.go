package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rpsarena/client/internal/game"
)

var choiceEmoji = map[game.Choice]string{
	game.ChoiceRock:     "🪨",
	game.ChoicePaper:    "📄",
	game.ChoiceScissors: "✂️",
}

// Console writes plain-text screens for one viewer. Viewer 0 is a shared
// screen that never shows an unrevealed choice.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	viewer int
}

func NewConsole(w io.Writer, viewer int) *Console {
	return &Console{w: w, viewer: viewer}
}

func (c *Console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

func (c *Console) Board(b game.Board) {
	if b.Empty() {
		c.printf("No match in progress. Type 'start' to begin.\n")
		return
	}
	c.printf("%s", FormatView(b.View(c.viewer)))
}

func (c *Console) Round(b game.Board, out game.RoundOutcome) {
	var sb strings.Builder
	sb.WriteString(FormatView(b.View(c.viewer)))
	sb.WriteString(out.Message + "\n")
	if out.VictoryMessage != "" {
		sb.WriteString(out.VictoryMessage + "\n")
	}
	if out.MatchOver {
		sb.WriteString("Final round played. Type 'next' for the result.\n")
	} else if !out.ChallengeIssued {
		sb.WriteString("Type 'next' for the next round.\n")
	}
	c.printf("%s", sb.String())
}

func (c *Console) Champion(ch game.Champion) {
	c.printf("\n%s\nFinal score %d - %d (draws %d)\n", ch.Message(), ch.Score1, ch.Score2, ch.Draws)
}

func (c *Console) Challenge(owner int, ch game.Challenge) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n⚡ Challenge for player %d\n", owner)
	switch ch.Kind {
	case game.KindQuiz:
		sb.WriteString(ch.Question + "\n")
		for _, opt := range ch.LabeledOptions() {
			sb.WriteString("  " + opt + "\n")
		}
	case game.KindWordGuess:
		fmt.Fprintf(&sb, "Clue: %s\n", ch.Clue)
		if ch.Hint != "" {
			fmt.Fprintf(&sb, "Hint: %s\n", ch.Hint)
		}
	}
	fmt.Fprintf(&sb, "Answer with 'answer %d <text>'.\n", owner)
	c.printf("%s", sb.String())
}

func (c *Console) ChallengeResult(res game.ChallengeResult) {
	msg := res.Message
	if msg == "" {
		if res.Passed {
			msg = "Challenge passed, the point is saved."
		} else {
			msg = "Challenge failed, the point goes to the opponent."
		}
	}
	c.printf("Player %d: %s\nType 'continue' to go on.\n", res.Owner, msg)
}

func (c *Console) Notice(msg string) {
	c.printf("%s\n", msg)
}

func (c *Console) Error(err error) {
	c.printf("Error: %v\n", err)
}

// FormatView renders the scoreboard for one view.
func FormatView(v game.View) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\nRound %d/%d", min(v.Round, v.MaxRounds), v.MaxRounds)
	if !v.Active {
		sb.WriteString(" (finished)")
	}
	sb.WriteString("\n")
	for _, p := range v.Players {
		kind := "CPU"
		if p.Human {
			kind = "human"
		}
		fmt.Fprintf(&sb, "  %d. %-12s %-5s score %d  %s\n", p.Number, p.Name, kind, p.Score, statusText(p))
	}
	fmt.Fprintf(&sb, "  draws %d\n", v.Draws)
	if v.PendingChallenge != 0 {
		fmt.Fprintf(&sb, "  challenge pending for player %d\n", v.PendingChallenge)
	}
	return sb.String()
}

func statusText(p game.PlayerView) string {
	switch {
	case p.Status == game.StatusRevealed:
		return choiceEmoji[p.Choice] + " " + strings.ToUpper(string(p.Choice))
	case p.Status == game.StatusReady && p.Choice != game.ChoiceServer:
		return "✅ Ready! (" + string(p.Choice) + ")"
	case p.Status == game.StatusReady:
		return "✅ Ready!"
	default:
		return "❓ Waiting..."
	}
}
