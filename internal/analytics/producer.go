package analytics

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"

	"github.com/rpsarena/client/internal/logger"
)

// GameEvent is one client-side match event.
type GameEvent struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	MatchID   string                 `json:"matchId"`
	Session   string                 `json:"session,omitempty"`
	Data      map[string]interface{} `json:"data"`
}

// EventType constants
const (
	EventMatchStart   = "match_start"
	EventMove         = "move"
	EventRoundEnd     = "round_end"
	EventChallengeEnd = "challenge_end"
	EventMatchEnd     = "match_end"
)

// Producer sends events to Kafka
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	session  string
	log      *logger.Logger
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic, session string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	return NewProducerFrom(producer, topic, session), nil
}

// NewProducerFrom wraps an existing sarama producer.
func NewProducerFrom(producer sarama.SyncProducer, topic, session string) *Producer {
	return &Producer{
		producer: producer,
		topic:    topic,
		session:  session,
		log:      logger.Default().With("analytics"),
	}
}

// SendEvent sends one event, keyed by match so a match stays on one partition.
func (p *Producer) SendEvent(event GameEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Session == "" {
		event.Session = p.session
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.MatchID),
		Value: sarama.ByteEncoder(payload),
	}

	_, _, err = p.producer.SendMessage(msg)
	return err
}

// Track sends in the background; failures are logged and dropped.
func (p *Producer) Track(event GameEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	go func() {
		if err := p.SendEvent(event); err != nil {
			p.log.Warn("failed to publish event", logger.Fields{"type": event.Type, "error": err.Error()})
		}
	}()
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.producer.Close()
}

func MatchStartEvent(matchID, mode, player1, player2 string, maxRounds int) GameEvent {
	return GameEvent{
		Type:    EventMatchStart,
		MatchID: matchID,
		Data: map[string]interface{}{
			"mode":      mode,
			"player1":   player1,
			"player2":   player2,
			"maxRounds": maxRounds,
		},
	}
}

// MoveEvent records that a seat committed. The choice itself is never sent.
func MoveEvent(matchID string, round, player int, auto bool) GameEvent {
	return GameEvent{
		Type:    EventMove,
		MatchID: matchID,
		Data: map[string]interface{}{
			"round":  round,
			"player": player,
			"auto":   auto,
		},
	}
}

func RoundEndEvent(matchID string, round int, result string, challenge bool) GameEvent {
	return GameEvent{
		Type:    EventRoundEnd,
		MatchID: matchID,
		Data: map[string]interface{}{
			"round":     round,
			"result":    result,
			"challenge": challenge,
		},
	}
}

func ChallengeEndEvent(matchID string, owner int, passed bool) GameEvent {
	return GameEvent{
		Type:    EventChallengeEnd,
		MatchID: matchID,
		Data: map[string]interface{}{
			"owner":  owner,
			"passed": passed,
		},
	}
}

func MatchEndEvent(matchID, winner string, isDraw bool, score1, score2 int, duration time.Duration) GameEvent {
	return GameEvent{
		Type:    EventMatchEnd,
		MatchID: matchID,
		Data: map[string]interface{}{
			"winner":   winner,
			"isDraw":   isDraw,
			"score1":   score1,
			"score2":   score2,
			"duration": duration.Seconds(),
		},
	}
}
