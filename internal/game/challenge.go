package game

import (
	"fmt"
	"strings"
)

type ChallengeKind string

const (
	KindQuiz      ChallengeKind = "quiz"
	KindWordGuess ChallengeKind = "word_guess"
)

// MaxOptions bounds a multiple-choice prompt.
const MaxOptions = 4

// Challenge is the prompt shown to the player who lost a round. Answer keys
// in the server payload are never decoded.
type Challenge struct {
	Kind     ChallengeKind `json:"type"`
	Question string        `json:"question,omitempty"`
	Options  []string      `json:"options,omitempty"`
	Clue     string        `json:"clue,omitempty"`
	Hint     string        `json:"hint,omitempty"`
}

func (c *Challenge) Validate() error {
	switch c.Kind {
	case KindQuiz:
		if c.Question == "" {
			return fmt.Errorf("quiz without question")
		}
		if len(c.Options) > MaxOptions {
			return fmt.Errorf("quiz has %d options, max %d", len(c.Options), MaxOptions)
		}
	case KindWordGuess:
		if c.Clue == "" {
			return fmt.Errorf("word guess without clue")
		}
	default:
		return fmt.Errorf("unknown challenge type %q", c.Kind)
	}
	return nil
}

// LabeledOptions returns options prefixed "a) ", "b) " and so on unless the
// server already labelled them.
func (c *Challenge) LabeledOptions() []string {
	out := make([]string, 0, len(c.Options))
	for i, opt := range c.Options {
		label := fmt.Sprintf("%c)", 'a'+i)
		if strings.HasPrefix(strings.ToLower(opt), label) {
			out = append(out, opt)
			continue
		}
		out = append(out, label+" "+opt)
	}
	return out
}
