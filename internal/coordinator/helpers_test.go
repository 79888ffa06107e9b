package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rpsarena/client/internal/game"
	"github.com/rpsarena/client/internal/loop"
	"github.com/rpsarena/client/internal/transport"
)

type moveCall struct {
	player int
	choice game.Choice
}

// rulesServer is a small in-memory stand-in for the rules server.
type rulesServer struct {
	mu sync.Mutex

	st        *game.MatchState
	cpuChoice game.Choice
	// challengeOnLoss issues a challenge to the loser of every decided round.
	challengeOnLoss bool

	moves      []moveCall
	stateCalls int
	resets     int
	moveErr    error
	stateErr   error
	startErr   error
}

func (s *rulesServer) StartMatch(ctx context.Context, req transport.StartRequest) (*game.MatchState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return nil, s.startErr
	}
	h1, h2 := req.Mode.HumanSeats()
	s.st = &game.MatchState{
		Mode:      req.Mode,
		Player1:   game.PlayerState{Name: req.Player1Name, Human: h1, Display: game.StatusWaiting},
		Player2:   game.PlayerState{Name: req.Player2Name, Human: h2, Display: game.StatusWaiting},
		Round:     1,
		MaxRounds: req.MaxRounds,
		Active:    true,
	}
	return s.st.Clone(), nil
}

func (s *rulesServer) SubmitMove(ctx context.Context, player int, choice game.Choice) (*transport.MoveResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moves = append(s.moves, moveCall{player: player, choice: choice})
	if s.moveErr != nil {
		return nil, s.moveErr
	}
	if s.st == nil || !s.st.Active {
		return nil, &transport.ServerError{Message: "Game not active"}
	}

	cpu := s.cpuChoice
	if cpu == "" {
		cpu = game.ChoiceScissors
	}
	seat := s.st.Player(player)
	if choice == game.ChoiceServer {
		choice = cpu
	}
	seat.Choice, seat.Committed, seat.Display = choice, true, game.StatusReady
	if player == 1 && seat.Human {
		s.st.History = append(s.st.History, choice)
	}
	for n := 1; n <= 2; n++ {
		if p := s.st.Player(n); !p.Human && !p.Committed {
			p.Choice, p.Committed, p.Display = cpu, true, game.StatusReady
		}
	}

	if !s.st.Player1.Committed || !s.st.Player2.Committed {
		return &transport.MoveResponse{Status: "waiting", State: s.st.Clone(), PlayerReady: player}, nil
	}
	return s.resolve(), nil
}

func beats(a, b game.Choice) bool {
	return (a == game.ChoiceRock && b == game.ChoiceScissors) ||
		(a == game.ChoiceScissors && b == game.ChoicePaper) ||
		(a == game.ChoicePaper && b == game.ChoiceRock)
}

func (s *rulesServer) resolve() *transport.MoveResponse {
	st := s.st
	resp := &transport.MoveResponse{BothReady: true}
	switch c1, c2 := st.Player1.Choice, st.Player2.Choice; {
	case c1 == c2:
		resp.Result, resp.Message = game.OutcomeDraw, "It's a DRAW!"
		st.Draws++
	case beats(c1, c2):
		resp.Result, resp.Message = game.OutcomePlayer1, st.Player1.Name+" WINS!"
		st.Player1.Score++
	default:
		resp.Result, resp.Message = game.OutcomePlayer2, st.Player2.Name+" WINS!"
		st.Player2.Score++
	}
	st.BothCommitted = true
	if s.challengeOnLoss && resp.Result != game.OutcomeDraw {
		owner := resp.Result.Loser()
		resp.ChallengeIssued, resp.ChallengeOwner = true, owner
		st.PendingChallenge = &owner
	}
	// the reply carries the scored board; the round counter moves afterwards
	resp.State = st.Clone()
	st.Round++
	if st.Round > st.MaxRounds {
		st.Active = false
		resp.GameComplete = true
	}
	for _, p := range []*game.PlayerState{&st.Player1, &st.Player2} {
		p.Choice, p.Committed, p.Display = "", false, game.StatusWaiting
	}
	st.BothCommitted = false
	return resp
}

func (s *rulesServer) CurrentState(ctx context.Context) (*game.MatchState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateCalls++
	if s.stateErr != nil {
		return nil, s.stateErr
	}
	if s.st == nil {
		return nil, &transport.ServerError{Message: "no game"}
	}
	return s.st.Clone(), nil
}

func (s *rulesServer) ResetMatch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	s.st = nil
	return nil
}

func (s *rulesServer) with(fn func(s *rulesServer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *rulesServer) moveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.moves)
}

// recorder is a Renderer that remembers every call.
type recorder struct {
	mu         sync.Mutex
	boards     []game.Board
	rounds     []game.RoundOutcome
	champions  []game.Champion
	challenges []int
	results    []game.ChallengeResult
	notices    []string
	errs       []error
}

func (r *recorder) Board(b game.Board) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boards = append(r.boards, b)
}

func (r *recorder) Round(b game.Board, out game.RoundOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boards = append(r.boards, b)
	r.rounds = append(r.rounds, out)
}

func (r *recorder) Champion(c game.Champion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.champions = append(r.champions, c)
}

func (r *recorder) Challenge(owner int, c game.Challenge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.challenges = append(r.challenges, owner)
}

func (r *recorder) ChallengeResult(res game.ChallengeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) Notice(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, msg)
}

func (r *recorder) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) lastBoard() game.Board {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.boards) == 0 {
		return game.Board{}
	}
	return r.boards[len(r.boards)-1]
}

func (r *recorder) roundsSeen() []game.RoundOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]game.RoundOutcome(nil), r.rounds...)
}

func (r *recorder) count() (boards, rounds, champions int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.boards), len(r.rounds), len(r.champions)
}

// challengeStub records hand-offs from the coordinator.
type challengeStub struct {
	mu        sync.Mutex
	owners    []int
	abandoned int
}

func (h *challengeStub) BeginChallenge(owner int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.owners = append(h.owners, owner)
}

func (h *challengeStub) Abandon() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.abandoned++
}

type harness struct {
	c      *Coordinator
	server *rulesServer
	rec    *recorder
	loop   *loop.Loop
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{server: &rulesServer{}, rec: &recorder{}, loop: loop.New(0)}
	ctx, cancel := context.WithCancel(context.Background())
	go h.loop.Run(ctx)
	t.Cleanup(cancel)

	opts.Server = h.server
	opts.Renderer = h.rec
	opts.Loop = h.loop
	h.c = New(opts)
	return h
}

func (h *harness) status(t *testing.T) Status {
	t.Helper()
	st, err := h.c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	return st
}

func (h *harness) start(t *testing.T, setup Setup) {
	t.Helper()
	if err := h.c.Start(context.Background(), setup); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
