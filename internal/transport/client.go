package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpsarena/client/internal/game"
	"github.com/rpsarena/client/internal/logger"
)

// ErrTransport marks failures to reach the server or read its reply.
var ErrTransport = errors.New("transport failure")

// ServerError is an error reported by the rules server, kept verbatim.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// IsServerError reports whether err carries a server-reported message.
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}

type Client struct {
	baseURL string
	http    *http.Client
	session string
	log     *logger.Logger
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		session: uuid.New().String(),
		log:     logger.Default().With("transport"),
	}
}

// Session is the id sent with every request from this process.
func (c *Client) Session() string {
	return c.session
}

type StartRequest struct {
	Mode        game.Mode `json:"game_mode"`
	Player1Name string    `json:"player1_name"`
	Player2Name string    `json:"player2_name"`
	MaxRounds   int       `json:"max_rounds"`
}

type moveRequest struct {
	Choice game.Choice `json:"player_choice"`
	Player int         `json:"player_number"`
}

type answerRequest struct {
	Player int    `json:"player_number"`
	Answer string `json:"answer"`
}

// MoveResponse is either interim (status "waiting") or a resolved round.
type MoveResponse struct {
	Status          string           `json:"status,omitempty"`
	State           *game.MatchState `json:"game_state"`
	PlayerReady     int              `json:"player_ready,omitempty"`
	BothReady       bool             `json:"both_ready"`
	Result          game.Outcome     `json:"result,omitempty"`
	Message         string           `json:"message,omitempty"`
	VictoryMessage  string           `json:"victory_message,omitempty"`
	RoundComplete   bool             `json:"round_complete,omitempty"`
	GameComplete    bool             `json:"game_complete,omitempty"`
	ChallengeIssued bool             `json:"challenge_issued,omitempty"`
	ChallengeOwner  int              `json:"challenge_for_player,omitempty"`
}

// Waiting reports an interim response where only one choice is in.
func (r *MoveResponse) Waiting() bool {
	return r.Status == "waiting" || (!r.BothReady && r.Result == "")
}

type ChallengeResponse struct {
	Challenge *game.Challenge `json:"challenge"`
	Owner     int             `json:"for_player,omitempty"`
}

type AnswerResponse struct {
	Passed  bool             `json:"passed"`
	Message string           `json:"message,omitempty"`
	State   *game.MatchState `json:"game_state,omitempty"`
}

// Record is one finished match as the server stores it.
type Record struct {
	Match  string `json:"match"`
	Winner string `json:"winner"`
	Date   string `json:"date"`
}

type Records struct {
	PvP        []Record `json:"player_vs_player"`
	PvCPU      []Record `json:"player_vs_cpu"`
	Tournament []Record `json:"tournament_winners"`
}

func (c *Client) ResetMatch(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/reset_game", struct{}{}, nil)
}

func (c *Client) StartMatch(ctx context.Context, req StartRequest) (*game.MatchState, error) {
	var st game.MatchState
	if err := c.do(ctx, http.MethodPost, "/api/start_game", req, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) SubmitMove(ctx context.Context, player int, choice game.Choice) (*MoveResponse, error) {
	var resp MoveResponse
	if err := c.do(ctx, http.MethodPost, "/api/play_round", moveRequest{Choice: choice, Player: player}, &resp); err != nil {
		return nil, err
	}
	if resp.State == nil {
		return nil, fmt.Errorf("%w: move response without game_state", ErrTransport)
	}
	return &resp, nil
}

func (c *Client) CurrentState(ctx context.Context) (*game.MatchState, error) {
	var st game.MatchState
	if err := c.do(ctx, http.MethodGet, "/api/get_game_state", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) PendingChallenge(ctx context.Context) (*ChallengeResponse, error) {
	var resp ChallengeResponse
	if err := c.do(ctx, http.MethodGet, "/api/get_challenge", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SubmitChallengeAnswer(ctx context.Context, owner int, answer string) (*AnswerResponse, error) {
	var resp AnswerResponse
	if err := c.do(ctx, http.MethodPost, "/api/submit_challenge", answerRequest{Player: owner, Answer: answer}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Records(ctx context.Context) (*Records, error) {
	var recs Records
	if err := c.do(ctx, http.MethodGet, "/api/get_records", nil, &recs); err != nil {
		return nil, err
	}
	return &recs, nil
}

// do sends one JSON request. A body carrying "error" becomes a ServerError
// whatever the status code.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	reqID := uuid.New().String()
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("X-Client-Session", c.session)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request failed", logger.Fields{"path": path, "request_id": reqID, "error": err.Error()})
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrTransport, path, err)
	}
	c.log.Debug("request done", logger.Fields{
		"path":        path,
		"status":      resp.StatusCode,
		"request_id":  reqID,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	var envelope struct {
		Error *string `json:"error"`
	}
	if len(bytes.TrimSpace(raw)) > 0 && json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil {
		return &ServerError{Status: resp.StatusCode, Message: *envelope.Error}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ServerError{Status: resp.StatusCode, Message: fmt.Sprintf("server returned %s", resp.Status)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrTransport, path, err)
	}
	return nil
}
