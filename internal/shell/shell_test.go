package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rpsarena/client/internal/coordinator"
	"github.com/rpsarena/client/internal/game"
	"github.com/rpsarena/client/internal/transport"
)

type fakeGame struct {
	calls   []string
	setup   coordinator.Setup
	status  coordinator.Status
	advance coordinator.Advance
	moveErr error
}

func (g *fakeGame) Start(ctx context.Context, setup coordinator.Setup) error {
	g.calls = append(g.calls, "start")
	g.setup = setup
	return nil
}

func (g *fakeGame) RequestMove(ctx context.Context, player int, choice game.Choice) error {
	g.calls = append(g.calls, fmt.Sprintf("move %d %s", player, choice))
	return g.moveErr
}

func (g *fakeGame) AdvanceRound(ctx context.Context) (coordinator.Advance, error) {
	g.calls = append(g.calls, "next")
	return g.advance, nil
}

func (g *fakeGame) Refresh(ctx context.Context) (bool, error) {
	g.calls = append(g.calls, "refresh")
	return false, nil
}

func (g *fakeGame) ReturnToMenu(ctx context.Context) error {
	g.calls = append(g.calls, "menu")
	return nil
}

func (g *fakeGame) Status(ctx context.Context) (coordinator.Status, error) {
	return g.status, nil
}

type fakeChallenges struct {
	submitted []string
	continued int
}

func (c *fakeChallenges) Submit(ctx context.Context, player int, answer string) error {
	c.submitted = append(c.submitted, fmt.Sprintf("%d:%s", player, answer))
	return nil
}

func (c *fakeChallenges) Continue(ctx context.Context) error {
	c.continued++
	return nil
}

type fakeRecords struct {
	invalidated int
	err         error
}

func (r *fakeRecords) Fetch(ctx context.Context) (*transport.Records, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &transport.Records{Tournament: []transport.Record{{Match: "Ann vs CPU", Winner: "Ann", Date: "2024-03-01"}}}, nil
}

func (r *fakeRecords) Invalidate() { r.invalidated++ }

func newShell() (*Shell, *fakeGame, *fakeChallenges, *fakeRecords, *bytes.Buffer) {
	g := &fakeGame{}
	ch := &fakeChallenges{}
	rec := &fakeRecords{}
	var out bytes.Buffer
	return New(g, ch, rec, &out), g, ch, rec, &out
}

func TestStartParsing(t *testing.T) {
	tests := []struct {
		line string
		want coordinator.Setup
	}{
		{"start pvp", coordinator.Setup{Mode: game.ModePvP}},
		{"start pvp Ann Bob 3", coordinator.Setup{Mode: game.ModePvP, Player1: "Ann", Player2: "Bob", MaxRounds: 3}},
		{"start easy Ann", coordinator.Setup{Mode: game.ModeCPUEasy, Player1: "Ann"}},
		{"new auto 7", coordinator.Setup{Mode: game.ModeCPUvCPU, MaxRounds: 7}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			sh, g, _, _, _ := newShell()
			if _, err := sh.Execute(context.Background(), tt.line); err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if g.setup != tt.want {
				t.Fatalf("setup = %+v, want %+v", g.setup, tt.want)
			}
		})
	}
}

func TestUsageErrors(t *testing.T) {
	for _, line := range []string{
		"start",
		"start chess",
		"start pvp Ann Bob 0",
		"move 3 rock",
		"move 1 lizard",
		"answer 1",
		"dance",
	} {
		t.Run(line, func(t *testing.T) {
			sh, g, _, _, out := newShell()
			_, err := sh.Execute(context.Background(), line)
			if !errors.Is(err, ErrUsage) {
				t.Fatalf("err = %v, want usage error", err)
			}
			if out.Len() == 0 {
				t.Fatalf("usage problem not printed")
			}
			if len(g.calls) != 0 {
				t.Fatalf("coordinator called: %v", g.calls)
			}
		})
	}
}

func TestMoveDefaultsToPlayerOnTurn(t *testing.T) {
	sh, g, _, _, _ := newShell()
	g.status.OnTurn = 2
	ctx := context.Background()

	sh.Execute(ctx, "move paper")
	sh.Execute(ctx, "r")
	sh.Execute(ctx, "move 1 s")

	want := []string{"move 2 paper", "move 2 rock", "move 1 scissors"}
	if strings.Join(g.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", g.calls, want)
	}
}

func TestCoordinatorErrorsAreNotReprinted(t *testing.T) {
	sh, g, _, _, out := newShell()
	g.moveErr = coordinator.ErrNotYourTurn
	_, err := sh.Execute(context.Background(), "move 1 rock")
	if !errors.Is(err, coordinator.ErrNotYourTurn) {
		t.Fatalf("err = %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("shell printed %q", out.String())
	}
}

func TestNextInvalidatesRecordsOnCompletion(t *testing.T) {
	sh, g, _, rec, _ := newShell()
	ctx := context.Background()

	sh.Execute(ctx, "next")
	if rec.invalidated != 0 {
		t.Fatalf("records invalidated mid-match")
	}
	g.advance = coordinator.Advance{Complete: true}
	sh.Execute(ctx, "next")
	if rec.invalidated != 1 {
		t.Fatalf("records not invalidated after the match")
	}
}

func TestChallengeCommands(t *testing.T) {
	sh, _, ch, _, _ := newShell()
	ctx := context.Background()
	sh.Execute(ctx, "answer 2 great red spot")
	sh.Execute(ctx, "continue")
	if len(ch.submitted) != 1 || ch.submitted[0] != "2:great red spot" || ch.continued != 1 {
		t.Fatalf("challenges = %+v", ch)
	}
}

func TestRecordsAndStats(t *testing.T) {
	sh, g, _, rec, out := newShell()
	ctx := context.Background()

	if _, err := sh.Execute(ctx, "records"); err != nil {
		t.Fatalf("records: %v", err)
	}
	if !strings.Contains(out.String(), "Ann vs CPU  winner: Ann") {
		t.Fatalf("records output:\n%s", out.String())
	}

	rec.err = transport.ErrTransport
	out.Reset()
	sh.Execute(ctx, "records")
	if !strings.HasPrefix(out.String(), "Error: ") {
		t.Fatalf("records failure output = %q", out.String())
	}

	g.status.Board = game.NewBoard(&game.MatchState{
		Round:     3,
		MaxRounds: 5,
		Active:    true,
		History:   []game.Choice{game.ChoiceRock, game.ChoiceRock, game.ChoicePaper},
	})
	out.Reset()
	sh.Execute(ctx, "stats")
	if !strings.Contains(out.String(), "Favourite move: rock") {
		t.Fatalf("stats output:\n%s", out.String())
	}
}

func TestRunStopsOnQuit(t *testing.T) {
	sh, g, _, _, _ := newShell()
	in := strings.NewReader("start pvp\n\nmenu\nquit\nnext\n")
	if err := sh.Run(context.Background(), in); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Join(g.calls, ",") != "start,menu" {
		t.Fatalf("calls = %v", g.calls)
	}
}
