package challenge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rpsarena/client/internal/game"
	"github.com/rpsarena/client/internal/logger"
	"github.com/rpsarena/client/internal/loop"
	"github.com/rpsarena/client/internal/render"
	"github.com/rpsarena/client/internal/transport"
)

var (
	ErrNoChallenge    = errors.New("no challenge is waiting for an answer")
	ErrNotOwner       = errors.New("this challenge belongs to the other player")
	ErrEmptyAnswer    = errors.New("answer must not be empty")
	ErrSubmitInFlight = errors.New("an answer is already being checked")
	ErrNotResolved    = errors.New("the challenge has not been answered yet")
	ErrAbandoned      = errors.New("the challenge was abandoned")
)

type State string

const (
	StateIdle          State = "idle"
	StateAwaitingFetch State = "awaiting_fetch"
	StatePresenting    State = "presenting"
	StateResolved      State = "resolved"
)

// Server is the part of the rules server the flow talks to.
type Server interface {
	PendingChallenge(ctx context.Context) (*transport.ChallengeResponse, error)
	SubmitChallengeAnswer(ctx context.Context, owner int, answer string) (*transport.AnswerResponse, error)
}

// Host is the turn coordinator seen from the flow. Replace, Rerender and
// ChallengeClosed run on the event loop; Reload must not.
type Host interface {
	Replace(st *game.MatchState)
	Rerender()
	ChallengeClosed(res *game.ChallengeResult)
	Reload(ctx context.Context) error
}

// Flow runs the penalty challenge after a lost round. Its fields are owned by
// the event loop shared with the coordinator.
type Flow struct {
	server Server
	render render.Renderer
	loop   *loop.Loop
	host   Host
	log    *logger.Logger

	state      State
	epoch      uint64
	owner      int
	prompt     *game.Challenge
	submitting bool
	result     *game.ChallengeResult
	// delivered is set when the verdict carried a match snapshot.
	delivered bool
}

func New(server Server, r render.Renderer, l *loop.Loop, host Host) *Flow {
	if r == nil {
		r = render.Discard{}
	}
	return &Flow{
		server: server,
		render: r,
		loop:   l,
		host:   host,
		log:    logger.Default().With("challenge"),
		state:  StateIdle,
	}
}

func (f *Flow) reset() {
	f.state = StateIdle
	f.owner = 0
	f.prompt = nil
	f.submitting = false
	f.result = nil
	f.delivered = false
}

// BeginChallenge fetches the prompt for owner. Loop only.
func (f *Flow) BeginChallenge(owner int) {
	f.epoch++
	f.reset()
	f.state = StateAwaitingFetch
	f.owner = owner
	epoch := f.epoch

	go func() {
		resp, err := f.server.PendingChallenge(context.Background())
		f.loop.Post(func() { f.presented(epoch, resp, err) })
	}()
}

func (f *Flow) presented(epoch uint64, resp *transport.ChallengeResponse, err error) {
	if epoch != f.epoch || f.state != StateAwaitingFetch {
		return
	}
	if err != nil {
		f.log.Warn("challenge fetch failed", logger.Fields{"error": err.Error()})
		f.render.Error(fmt.Errorf("load challenge: %w", err))
		f.close(nil)
		return
	}
	if resp == nil || resp.Challenge == nil {
		f.close(nil)
		return
	}
	if verr := resp.Challenge.Validate(); verr != nil {
		f.render.Error(fmt.Errorf("load challenge: %w", verr))
		f.close(nil)
		return
	}
	if game.ValidPlayer(resp.Owner) {
		f.owner = resp.Owner
	}
	f.prompt = resp.Challenge
	f.state = StatePresenting
	f.log.Info("challenge presented", logger.Fields{"owner": f.owner, "kind": f.prompt.Kind})
	f.render.Challenge(f.owner, *f.prompt)
}

// close returns to idle and hands control back to the coordinator.
func (f *Flow) close(res *game.ChallengeResult) {
	f.reset()
	f.host.ChallengeClosed(res)
}

// Submit sends player's answer. Anyone but the owner is turned away locally.
func (f *Flow) Submit(ctx context.Context, player int, answer string) error {
	answer = strings.TrimSpace(answer)

	var epoch uint64
	var owner int
	var err error
	if derr := f.loop.Do(ctx, func() {
		switch {
		case f.state != StatePresenting:
			err = ErrNoChallenge
		case f.submitting:
			err = ErrSubmitInFlight
		case player != f.owner:
			err = ErrNotOwner
			f.render.Notice(fmt.Sprintf("Only player %d may answer this challenge.", f.owner))
			return
		case answer == "":
			err = ErrEmptyAnswer
		default:
			f.submitting = true
			epoch, owner = f.epoch, f.owner
			return
		}
		f.render.Error(err)
	}); derr != nil {
		return derr
	}
	if err != nil {
		return err
	}

	resp, serr := f.server.SubmitChallengeAnswer(ctx, owner, answer)

	if derr := f.loop.Do(context.Background(), func() {
		if epoch != f.epoch {
			err = ErrAbandoned
			return
		}
		f.submitting = false
		if serr != nil {
			f.render.Error(serr)
			err = fmt.Errorf("submit answer: %w", serr)
			return
		}
		f.result = &game.ChallengeResult{Owner: owner, Passed: resp.Passed, Message: resp.Message}
		f.state = StateResolved
		if resp.State != nil {
			f.host.Replace(resp.State)
			f.delivered = true
		}
		f.log.Info("challenge resolved", logger.Fields{"owner": owner, "passed": resp.Passed})
		f.render.ChallengeResult(*f.result)
	}); derr != nil {
		return derr
	}
	return err
}

// Continue leaves the resolved state. Without a snapshot from the verdict the
// current state is fetched first; if that fails the flow stays resolved.
func (f *Flow) Continue(ctx context.Context) error {
	var epoch uint64
	var delivered bool
	var err error
	if derr := f.loop.Do(ctx, func() {
		if f.state != StateResolved {
			err = ErrNotResolved
			f.render.Error(err)
			return
		}
		epoch, delivered = f.epoch, f.delivered
	}); derr != nil {
		return derr
	}
	if err != nil {
		return err
	}

	if !delivered {
		if rerr := f.host.Reload(ctx); rerr != nil {
			f.loop.Post(func() { f.render.Error(rerr) })
			return rerr
		}
	}

	if derr := f.loop.Do(context.Background(), func() {
		if epoch != f.epoch || f.state != StateResolved {
			err = ErrAbandoned
			return
		}
		res := f.result
		if delivered {
			f.host.Rerender()
		}
		f.close(res)
	}); derr != nil {
		return derr
	}
	return err
}

// Abandon drops any challenge in progress without notifying the host. Loop only.
func (f *Flow) Abandon() {
	f.epoch++
	f.reset()
}

// Snapshot is a read of the flow for display.
type Snapshot struct {
	State  State
	Owner  int
	Prompt *game.Challenge
	Result *game.ChallengeResult
}

func (f *Flow) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := f.loop.Do(ctx, func() {
		s = Snapshot{State: f.state, Owner: f.owner}
		if f.prompt != nil {
			p := *f.prompt
			s.Prompt = &p
		}
		if f.result != nil {
			r := *f.result
			s.Result = &r
		}
	})
	return s, err
}
