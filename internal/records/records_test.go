package records

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rpsarena/client/internal/game"
	"github.com/rpsarena/client/internal/transport"
)

type countingSource struct {
	calls int
	err   error
}

func (s *countingSource) Records(ctx context.Context) (*transport.Records, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &transport.Records{
		PvP: []transport.Record{{Match: "Ann vs Bob", Winner: "Ann", Date: "2024-03-01T18:30:00.123456"}},
	}, nil
}

func TestBookCachesUntilInvalidated(t *testing.T) {
	src := &countingSource{}
	b := NewBook(src, time.Minute)
	defer b.Close()

	for i := 0; i < 3; i++ {
		if _, err := b.Fetch(context.Background()); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
	}
	if src.calls != 1 {
		t.Fatalf("source called %d times, want 1", src.calls)
	}

	b.Invalidate()
	if _, err := b.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("source called %d times after invalidate", src.calls)
	}
}

func TestBookPropagatesErrors(t *testing.T) {
	src := &countingSource{err: transport.ErrTransport}
	b := NewBook(src, time.Minute)
	defer b.Close()

	if _, err := b.Fetch(context.Background()); !errors.Is(err, transport.ErrTransport) {
		t.Fatalf("err = %v", err)
	}
}

func TestFormat(t *testing.T) {
	recs, _ := (&countingSource{}).Records(context.Background())
	out := Format(recs)
	if !strings.Contains(out, "Ann vs Bob  winner: Ann  (2024-03-01 18:30)") {
		t.Fatalf("formatted records:\n%s", out)
	}
	if strings.Count(out, "No records yet.") != 2 {
		t.Fatalf("empty sections not marked:\n%s", out)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]game.Choice{game.ChoiceRock, game.ChoicePaper, game.ChoiceRock, "", game.ChoiceRock})
	if s.Total != 4 || s.Counts[game.ChoiceRock] != 3 || s.Favourite != game.ChoiceRock {
		t.Fatalf("stats = %+v", s)
	}
	if p := s.Percent(game.ChoiceRock); p != 75 {
		t.Fatalf("rock percent = %v", p)
	}
	if !strings.HasPrefix(s.String(), "Moves played: 4\n  rock") {
		t.Fatalf("String() =\n%s", s.String())
	}
	if Summarize(nil).String() != "No moves played yet." {
		t.Fatalf("empty stats text wrong")
	}
}
