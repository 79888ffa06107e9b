package challenge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rpsarena/client/internal/game"
	"github.com/rpsarena/client/internal/loop"
	"github.com/rpsarena/client/internal/render"
	"github.com/rpsarena/client/internal/transport"
)

var bg = context.Background()

type fakeServer struct {
	mu        sync.Mutex
	pending   *transport.ChallengeResponse
	fetchErr  error
	answer    *transport.AnswerResponse
	answerErr error
	submits   []string
	// gate blocks PendingChallenge until closed when set.
	gate chan struct{}
}

func (s *fakeServer) PendingChallenge(ctx context.Context) (*transport.ChallengeResponse, error) {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if s.pending == nil {
		return &transport.ChallengeResponse{}, nil
	}
	return s.pending, nil
}

func (s *fakeServer) SubmitChallengeAnswer(ctx context.Context, owner int, answer string) (*transport.AnswerResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits = append(s.submits, fmt.Sprintf("%d:%s", owner, answer))
	if s.answerErr != nil {
		return nil, s.answerErr
	}
	return s.answer, nil
}

func (s *fakeServer) submitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submits)
}

type fakeHost struct {
	mu        sync.Mutex
	replaced  []*game.MatchState
	rerenders int
	closed    []*game.ChallengeResult
	reloads   int
	reloadErr error
}

func (h *fakeHost) Replace(st *game.MatchState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.replaced = append(h.replaced, st)
}

func (h *fakeHost) Rerender() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rerenders++
}

func (h *fakeHost) ChallengeClosed(res *game.ChallengeResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = append(h.closed, res)
}

func (h *fakeHost) Reload(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reloads++
	return h.reloadErr
}

type promptRecorder struct {
	render.Discard
	mu      sync.Mutex
	prompts []int
	results []game.ChallengeResult
}

func (r *promptRecorder) Challenge(owner int, c game.Challenge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, owner)
}

func (r *promptRecorder) ChallengeResult(res game.ChallengeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

type harness struct {
	flow   *Flow
	server *fakeServer
	host   *fakeHost
	rec    *promptRecorder
	loop   *loop.Loop
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	l := loop.New(0)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(cancel)

	h := &harness{
		server: &fakeServer{
			pending: &transport.ChallengeResponse{
				Challenge: &game.Challenge{Kind: game.KindQuiz, Question: "Largest planet?", Options: []string{"a) Mars", "b) Jupiter"}},
				Owner:     2,
			},
			answer: &transport.AnswerResponse{Passed: true},
		},
		host: &fakeHost{},
		rec:  &promptRecorder{},
		loop: l,
	}
	h.flow = New(h.server, h.rec, l, h.host)
	return h
}

func (h *harness) begin(t *testing.T, owner int) {
	t.Helper()
	if err := h.loop.Do(bg, func() { h.flow.BeginChallenge(owner) }); err != nil {
		t.Fatalf("BeginChallenge: %v", err)
	}
}

func (h *harness) waitState(t *testing.T, want State) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := h.flow.Snapshot(bg)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if snap.State == want {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", snap.State, want)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (h *harness) closedCount() int {
	h.host.mu.Lock()
	defer h.host.mu.Unlock()
	return len(h.host.closed)
}

func TestNoPendingChallengeReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	h.server.pending = nil
	h.begin(t, 1)

	deadline := time.Now().Add(2 * time.Second)
	for h.closedCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	h.host.mu.Lock()
	closed := append([]*game.ChallengeResult(nil), h.host.closed...)
	h.host.mu.Unlock()
	if len(closed) != 1 || closed[0] != nil {
		t.Fatalf("host not released: %+v", closed)
	}
	h.waitState(t, StateIdle)
}

func TestPresentUsesServerOwner(t *testing.T) {
	h := newHarness(t)
	h.begin(t, 1)

	snap := h.waitState(t, StatePresenting)
	if snap.Owner != 2 || snap.Prompt == nil || snap.Prompt.Kind != game.KindQuiz {
		t.Fatalf("snapshot = %+v", snap)
	}
	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	if len(h.rec.prompts) != 1 || h.rec.prompts[0] != 2 {
		t.Fatalf("prompts = %v", h.rec.prompts)
	}
}

func TestOnlyOwnerMaySubmit(t *testing.T) {
	h := newHarness(t)

	if err := h.flow.Submit(bg, 2, "b"); !errors.Is(err, ErrNoChallenge) {
		t.Fatalf("idle submit err = %v", err)
	}

	h.begin(t, 2)
	h.waitState(t, StatePresenting)

	if err := h.flow.Submit(bg, 1, "b"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("non-owner err = %v", err)
	}
	if err := h.flow.Submit(bg, 2, "   "); !errors.Is(err, ErrEmptyAnswer) {
		t.Fatalf("empty answer err = %v", err)
	}
	if n := h.server.submitCount(); n != 0 {
		t.Fatalf("rejected submissions reached the server: %d", n)
	}

	if err := h.flow.Submit(bg, 2, "b"); err != nil {
		t.Fatalf("owner submit: %v", err)
	}
	if h.server.submits[0] != "2:b" {
		t.Fatalf("submits = %v", h.server.submits)
	}
	h.waitState(t, StateResolved)
}

func TestFailedSubmitStaysPresenting(t *testing.T) {
	h := newHarness(t)
	h.begin(t, 2)
	h.waitState(t, StatePresenting)

	h.server.mu.Lock()
	h.server.answerErr = fmt.Errorf("%w: refused", transport.ErrTransport)
	h.server.mu.Unlock()

	if err := h.flow.Submit(bg, 2, "b"); !errors.Is(err, transport.ErrTransport) {
		t.Fatalf("err = %v", err)
	}
	h.waitState(t, StatePresenting)

	h.server.mu.Lock()
	h.server.answerErr = nil
	h.server.mu.Unlock()
	if err := h.flow.Submit(bg, 2, "b"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	h.waitState(t, StateResolved)
}

func TestVerdictWithStateReplacesAndRerenders(t *testing.T) {
	h := newHarness(t)
	st := &game.MatchState{Round: 2, MaxRounds: 3, Active: true}
	h.server.answer = &transport.AnswerResponse{Passed: false, State: st}
	h.begin(t, 2)
	h.waitState(t, StatePresenting)

	if err := h.flow.Submit(bg, 2, "a"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.host.mu.Lock()
	if len(h.host.replaced) != 1 || h.host.replaced[0] != st {
		t.Errorf("replaced = %v", h.host.replaced)
	}
	h.host.mu.Unlock()

	if err := h.flow.Continue(bg); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	h.waitState(t, StateIdle)

	h.host.mu.Lock()
	defer h.host.mu.Unlock()
	if h.host.reloads != 0 || h.host.rerenders != 1 {
		t.Fatalf("reloads=%d rerenders=%d", h.host.reloads, h.host.rerenders)
	}
	if len(h.host.closed) != 1 || h.host.closed[0] == nil || h.host.closed[0].Passed {
		t.Fatalf("closed = %+v", h.host.closed)
	}
}

func TestVerdictWithoutStateReloads(t *testing.T) {
	h := newHarness(t)
	h.begin(t, 2)
	h.waitState(t, StatePresenting)
	if err := h.flow.Submit(bg, 2, "b"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	h.host.mu.Lock()
	h.host.reloadErr = errors.New("server down")
	h.host.mu.Unlock()
	if err := h.flow.Continue(bg); err == nil {
		t.Fatalf("Continue should fail while reload fails")
	}
	h.waitState(t, StateResolved)
	if h.closedCount() != 0 {
		t.Fatalf("host released before state was reloaded")
	}

	h.host.mu.Lock()
	h.host.reloadErr = nil
	h.host.mu.Unlock()
	if err := h.flow.Continue(bg); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	h.waitState(t, StateIdle)
	if h.closedCount() != 1 {
		t.Fatalf("host not released")
	}
}

func TestContinueBeforeVerdict(t *testing.T) {
	h := newHarness(t)
	h.begin(t, 2)
	h.waitState(t, StatePresenting)
	if err := h.flow.Continue(bg); !errors.Is(err, ErrNotResolved) {
		t.Fatalf("err = %v", err)
	}
}

func TestAbandonDropsLateFetch(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.server.gate = gate
	h.begin(t, 2)

	h.loop.Do(bg, h.flow.Abandon)
	close(gate)
	time.Sleep(20 * time.Millisecond)

	snap := h.waitState(t, StateIdle)
	if snap.Prompt != nil {
		t.Fatalf("abandoned challenge was presented")
	}
	if h.closedCount() != 0 {
		t.Fatalf("abandon should not notify the host")
	}
}
