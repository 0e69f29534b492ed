package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/segmentio/kafka-go"
)

type kafkaSink struct {
	w *kafka.Writer
}

type kafkaConfig struct {
	brokers []string
	topic   string
}

// kafkaConfigFrom reads kafka://host:9092?topic=t&broker=other:9092. Extra
// brokers may be repeated.
func kafkaConfigFrom(u *url.URL) (kafkaConfig, error) {
	q := u.Query()
	cfg := kafkaConfig{topic: q.Get("topic")}
	if u.Host != "" {
		cfg.brokers = append(cfg.brokers, u.Host)
	}
	for _, b := range q["broker"] {
		for _, part := range strings.Split(b, ",") {
			if part = strings.TrimSpace(part); part != "" {
				cfg.brokers = append(cfg.brokers, part)
			}
		}
	}
	if len(cfg.brokers) == 0 {
		return cfg, errors.New("missing broker")
	}
	if cfg.topic == "" {
		return cfg, errors.New("missing ?topic=")
	}
	return cfg, nil
}

func checkKafka(u *url.URL) error {
	_, err := kafkaConfigFrom(u)
	return err
}

func openKafka(_ context.Context, u *url.URL) (Sink, error) {
	cfg, err := kafkaConfigFrom(u)
	if err != nil {
		return nil, err
	}
	return &kafkaSink{w: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.brokers...),
		Topic:                  cfg.topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           DefaultTimeout,
	}}, nil
}

func (s *kafkaSink) Send(ctx context.Context, msg Message) error {
	err := s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Event.Site),
		Value: msg.Body,
		Headers: []kafka.Header{
			{Key: "Content-Type", Value: []byte(msg.ContentType)},
			{Key: "X-Blogkit-Event", Value: []byte(msg.Event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (s *kafkaSink) Close() error {
	return s.w.Close()
}
