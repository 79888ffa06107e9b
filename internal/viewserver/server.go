package viewserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/rpsarena/client/internal/game"
	"github.com/rpsarena/client/internal/logger"
	"github.com/rpsarena/client/internal/middleware"
)

// Server publishes each player's view over HTTP so players on separate
// devices only ever receive what they may see. It is a render.Renderer.
type Server struct {
	mu        sync.RWMutex
	board     game.Board
	round     *game.RoundOutcome
	champion  *championView
	challenge *challengeView
	notice    string
	lastError string
	updated   time.Time

	router *mux.Router
	http   *http.Server
	log    *logger.Logger
}

type Config struct {
	Addr           string
	AllowedOrigins []string
	RateLimit      float64
	RateBurst      float64
}

type championView struct {
	game.Champion
	Message string `json:"message"`
}

type challengeView struct {
	Owner    int                   `json:"owner"`
	Kind     game.ChallengeKind    `json:"type"`
	Question string                `json:"question,omitempty"`
	Options  []string              `json:"options,omitempty"`
	Clue     string                `json:"clue,omitempty"`
	Hint     string                `json:"hint,omitempty"`
	Result   *game.ChallengeResult `json:"result,omitempty"`
}

// Screen is the JSON document served for one viewer.
type Screen struct {
	View      game.View          `json:"view"`
	Round     *game.RoundOutcome `json:"round,omitempty"`
	Champion  *championView      `json:"champion,omitempty"`
	Challenge *challengeView     `json:"challenge,omitempty"`
	Notice    string             `json:"notice,omitempty"`
	Error     string             `json:"error,omitempty"`
	Updated   time.Time          `json:"updated"`
}

func New(cfg Config) *Server {
	s := &Server{log: logger.Default().With("viewserver")}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/view", s.handleView).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/view/{player:[12]}", s.handleView).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/challenge", s.handleChallenge).Methods(http.MethodGet, http.MethodOptions)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = cfg.RateLimit
		}
		r.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimit, burst)))
	}
	s.router = r

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown.
func (s *Server) Start() {
	go func() {
		s.log.Info("view server listening", logger.Fields{"addr": s.http.Addr})
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("view server stopped", logger.Fields{"error": err.Error()})
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	viewer := 0
	if p, ok := mux.Vars(r)["player"]; ok {
		viewer, _ = strconv.Atoi(p)
	}
	writeJSON(w, http.StatusOK, s.screen(viewer))
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ch := s.challenge
	s.mu.RUnlock()
	if ch == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"challenge": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"challenge": ch})
}

func (s *Server) screen(viewer int) Screen {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Screen{
		View:      s.board.View(viewer),
		Round:     s.round,
		Champion:  s.champion,
		Challenge: s.challenge,
		Notice:    s.notice,
		Error:     s.lastError,
		Updated:   s.updated,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) touch() {
	s.updated = time.Now().UTC()
}

func (s *Server) Board(b game.Board) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board = b
	switch {
	case b.Empty():
		s.round, s.challenge = nil, nil
	default:
		s.champion = nil
		if !b.View(0).BothCommitted {
			s.round = nil
		}
		if s.challenge != nil && s.challenge.Result != nil {
			s.challenge = nil
		}
	}
	s.notice, s.lastError = "", ""
	s.touch()
}

func (s *Server) Round(b game.Board, out game.RoundOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board = b
	s.round = &out
	s.notice, s.lastError = "", ""
	s.touch()
}

func (s *Server) Champion(c game.Champion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.champion = &championView{Champion: c, Message: c.Message()}
	s.touch()
}

func (s *Server) Challenge(owner int, c game.Challenge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenge = &challengeView{
		Owner:    owner,
		Kind:     c.Kind,
		Question: c.Question,
		Options:  c.LabeledOptions(),
		Clue:     c.Clue,
		Hint:     c.Hint,
	}
	s.touch()
}

func (s *Server) ChallengeResult(res game.ChallengeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.challenge == nil {
		s.challenge = &challengeView{Owner: res.Owner}
	}
	s.challenge.Result = &res
	s.touch()
}

func (s *Server) Notice(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = msg
	s.touch()
}

func (s *Server) Error(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err.Error()
	s.touch()
}
