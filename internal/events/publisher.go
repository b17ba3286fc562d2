package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	kgo "github.com/segmentio/kafka-go"

	"snaptide/internal/models"
)

const TypePostCreated = "post.created"

type PostCreated struct {
	Type      string    `json:"type"`
	PostID    int64     `json:"post_id"`
	Title     string    `json:"title"`
	Owner     string    `json:"owner,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewPostCreated(p models.Post) PostCreated {
	return PostCreated{
		Type:      TypePostCreated,
		PostID:    p.ID,
		Title:     p.Title,
		Owner:     p.Owner,
		CreatedAt: p.CreatedAt,
	}
}

type Publisher interface {
	PublishPostCreated(ctx context.Context, ev PostCreated) error
	Close() error
}

type Nop struct{}

func (Nop) PublishPostCreated(context.Context, PostCreated) error { return nil }

func (Nop) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kgo.Message) error
	Close() error
}

type KafkaPublisher struct {
	w messageWriter
}

// NewKafkaPublisher writes events to topic on the comma-separated brokers.
// Messages are keyed by post id so events for one post stay ordered.
func NewKafkaPublisher(brokers, topic string) (*KafkaPublisher, error) {
	var addrs []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka: empty topic")
	}
	w := &kgo.Writer{
		Addr:         kgo.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kgo.Hash{},
		RequiredAcks: kgo.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{w: w}, nil
}

func (p *KafkaPublisher) PublishPostCreated(ctx context.Context, ev PostCreated) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Type, err)
	}
	msg := kgo.Message{
		Key:   []byte(strconv.FormatInt(ev.PostID, 10)),
		Value: b,
		Time:  ev.CreatedAt,
		Headers: []kgo.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }
