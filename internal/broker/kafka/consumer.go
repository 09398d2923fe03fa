package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/CargoLedger/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer follows the booking event topic in a consumer group. Offsets are
// committed by hand after the handler returns, so a crash replays the message.
type Consumer struct {
	r     messageReader
	topic string
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	if topic == "" {
		topic = messages.TopicBookingEvents
	}
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		MaxWait:           time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return &Consumer{r: kafka.NewReader(cfg), topic: topic}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r, topic: messages.TopicBookingEvents}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// ConsumeBookingEvents blocks until ctx is done or handle fails. Payloads that
// do not decode, or carry no booking id, are committed and dropped: the relay
// redelivers at least once and a poison message must not stall the partition.
func (c *Consumer) ConsumeBookingEvents(ctx context.Context, handle func(ctx context.Context, ev messages.BookingEvent) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch booking event")
		}

		var ev messages.BookingEvent
		switch err := json.Unmarshal(msg.Value, &ev); {
		case err != nil:
			slog.Warn("skip malformed booking event", "topic", c.topic, "offset", msg.Offset, "error", err.Error())
		case ev.BookingID == 0:
			slog.Warn("skip booking event without booking id", "topic", c.topic, "offset", msg.Offset, "event_id", ev.EventID)
		default:
			if err := handle(ctx, ev); err != nil {
				return errors.Wrapf(err, "handle booking event %s", ev.EventID)
			}
		}

		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit booking event")
		}
	}
}
