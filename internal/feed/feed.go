package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rpsarena/client/internal/game"
	"github.com/rpsarena/client/internal/logger"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 64 * 1024           // Maximum message size allowed from peer.

	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// MessageGameState carries a full match snapshot.
const MessageGameState = "gameState"

// Message is one frame pushed by the feed.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Sink receives pushed snapshots.
type Sink interface {
	Reconcile(ctx context.Context, st *game.MatchState) (bool, error)
}

// Feed follows a websocket that pushes match snapshots and hands them to a
// Sink. It reconnects with backoff until its context ends.
type Feed struct {
	url    string
	header http.Header
	sink   Sink
	dialer *websocket.Dialer
	log    *logger.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

func New(url string, session string, sink Sink) *Feed {
	header := http.Header{}
	if session != "" {
		header.Set("X-Client-Session", session)
	}
	return &Feed{
		url:        url,
		header:     header,
		sink:       sink,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second, ReadBufferSize: 1024, WriteBufferSize: 1024},
		log:        logger.Default().With("feed"),
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
	}
}

// Run blocks until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	backoff := f.minBackoff
	for {
		received, err := f.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received > 0 {
			backoff = f.minBackoff
		}
		f.log.Warn("feed disconnected", logger.Fields{"error": errString(err), "retryIn": backoff.String()})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, f.maxBackoff)
	}
}

// session runs one connection and returns how many snapshots it delivered.
func (f *Feed) session(ctx context.Context) (int, error) {
	conn, _, err := f.dialer.DialContext(ctx, f.url, f.header)
	if err != nil {
		return 0, err
	}
	f.log.Info("feed connected", logger.Fields{"url": f.url})

	done := make(chan struct{})
	defer close(done)
	go f.writePump(ctx, conn, done)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	received := 0
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				err = nil
			}
			return received, err
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			f.log.Debug("error unmarshaling message", logger.Fields{"error": err.Error()})
			continue
		}
		if msg.Type != MessageGameState {
			continue
		}
		var st game.MatchState
		if err := json.Unmarshal(msg.Payload, &st); err != nil {
			f.log.Debug("error unmarshaling snapshot", logger.Fields{"error": err.Error()})
			continue
		}
		received++
		if _, err := f.sink.Reconcile(ctx, &st); err != nil {
			f.log.Debug("snapshot not applied", logger.Fields{"error": err.Error()})
		}
	}
}

// writePump keeps the connection alive and closes it when ctx ends.
func (f *Feed) writePump(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func errString(err error) string {
	if err == nil {
		return "closed"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return err.Error()
}
