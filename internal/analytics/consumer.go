package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/rpsarena/client/internal/database"
	"github.com/rpsarena/client/internal/logger"
)

// Store persists consumed events.
type Store interface {
	InsertEvent(ctx context.Context, e database.Event) error
	RecordMatch(ctx context.Context, m database.Match) error
	InsertFailedEvent(ctx context.Context, f database.FailedEvent) error
}

// Consumer handles consuming and processing game events
type Consumer struct {
	consumer sarama.ConsumerGroup
	handler  *ConsumerGroupHandler
}

// ConsumerGroupHandler implements the sarama.ConsumerGroupHandler interface
type ConsumerGroupHandler struct {
	store Store
	log   *logger.Logger
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, groupID string, store Store) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		consumer: group,
		handler:  NewHandler(store),
	}, nil
}

func NewHandler(store Store) *ConsumerGroupHandler {
	return &ConsumerGroupHandler{store: store, log: logger.Default().With("analytics")}
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, topics []string) error {
	for {
		if err := c.consumer.Consume(ctx, topics, c.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Setup is run before consuming begins
func (h *ConsumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is run when consuming ends
func (h *ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes a partition in order. Messages that fail are moved
// to the dead-letter table and still marked so the partition keeps moving.
func (h *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.HandleMessage(session.Context(), msg)
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// HandleMessage processes one message, dead-lettering it on failure.
func (h *ConsumerGroupHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) {
	err := h.process(ctx, msg.Value)
	if err == nil {
		return
	}
	h.log.Warn("error processing message", logger.Fields{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
		"error":     err.Error(),
	})
	dbErr := h.store.InsertFailedEvent(ctx, database.FailedEvent{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Message:   string(msg.Value),
		Error:     err.Error(),
	})
	if dbErr != nil {
		h.log.Error("error storing failed message", logger.Fields{"error": dbErr.Error()})
	}
}

func (h *ConsumerGroupHandler) process(ctx context.Context, value []byte) error {
	var event GameEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("error unmarshaling event: %w", err)
	}
	if event.MatchID == "" {
		return errors.New("event has no match id")
	}

	switch event.Type {
	case EventMatchStart, EventMove, EventRoundEnd, EventChallengeEnd:
	case EventMatchEnd:
		m, err := matchFromEvent(event)
		if err != nil {
			return err
		}
		if err := h.store.RecordMatch(ctx, m); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}

	return h.store.InsertEvent(ctx, database.Event{
		MatchID:   event.MatchID,
		Type:      event.Type,
		Session:   event.Session,
		Timestamp: event.Timestamp,
		Data:      event.Data,
	})
}

func matchFromEvent(event GameEvent) (database.Match, error) {
	winner, ok := event.Data["winner"].(string)
	if !ok {
		return database.Match{}, fmt.Errorf("invalid winner data")
	}
	isDraw, ok := event.Data["isDraw"].(bool)
	if !ok {
		return database.Match{}, fmt.Errorf("invalid isDraw data")
	}
	duration, ok := event.Data["duration"].(float64)
	if !ok {
		return database.Match{}, fmt.Errorf("invalid duration data")
	}
	score1, _ := event.Data["score1"].(float64)
	score2, _ := event.Data["score2"].(float64)

	return database.Match{
		MatchID:  event.MatchID,
		Winner:   winner,
		IsDraw:   isDraw,
		Score1:   int(score1),
		Score2:   int(score2),
		Duration: duration,
		EndedAt:  event.Timestamp,
	}, nil
}

// Close closes the consumer group
func (c *Consumer) Close() error {
	return c.consumer.Close()
}
