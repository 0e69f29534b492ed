package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
)

type pubsubSink struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
}

// pubsubTopic reads pubsub://project/topic.
func pubsubTopic(u *url.URL) (project, topic string, err error) {
	project = u.Host
	topic = strings.Trim(u.Path, "/")
	if project == "" {
		return "", "", errors.New("missing project")
	}
	if topic == "" || strings.Contains(topic, "/") {
		return "", "", errors.New("path must be a single topic ID")
	}
	return project, topic, nil
}

func checkPubSub(u *url.URL) error {
	_, _, err := pubsubTopic(u)
	return err
}

func openPubSub(ctx context.Context, u *url.URL) (Sink, error) {
	project, topic, err := pubsubTopic(u)
	if err != nil {
		return nil, err
	}
	client, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("Pub/Sub client error: %w", err)
	}
	return &pubsubSink{client: client, publisher: client.Publisher(topic)}, nil
}

func (s *pubsubSink) Send(ctx context.Context, msg Message) error {
	result := s.publisher.Publish(ctx, &pubsub.Message{
		Data: msg.Body,
		Attributes: map[string]string{
			"type":         msg.Event.Type,
			"content_type": msg.ContentType,
			"site":         msg.Event.Site,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("Pub/Sub publish: %w", err)
	}
	return nil
}

func (s *pubsubSink) Close() error {
	s.publisher.Stop()
	return s.client.Close()
}
