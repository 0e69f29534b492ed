package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/nats-io/nats.go"
)

type natsSink struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

type natsConfig struct {
	server  string
	subject string
	stream  string
}

func natsConfigFrom(u *url.URL) (natsConfig, error) {
	q := u.Query()
	cfg := natsConfig{
		server:  stripQuery(u, "subject", "stream").String(),
		subject: q.Get("subject"),
		stream:  q.Get("stream"),
	}
	if cfg.subject == "" {
		return cfg, errors.New("missing ?subject=")
	}
	return cfg, nil
}

func checkNATS(u *url.URL) error {
	_, err := natsConfigFrom(u)
	return err
}

func openNATS(_ context.Context, u *url.URL) (Sink, error) {
	cfg, err := natsConfigFrom(u)
	if err != nil {
		return nil, err
	}
	nc, err := nats.Connect(cfg.server, nats.Name("blogkit-publish"), nats.Timeout(DefaultTimeout))
	if err != nil {
		return nil, fmt.Errorf("error connecting to NATS: %w", err)
	}
	s := &natsSink{nc: nc, subject: cfg.subject}
	if cfg.stream != "" {
		if s.js, err = nc.JetStream(); err != nil {
			nc.Close()
			return nil, fmt.Errorf("JetStream context error: %w", err)
		}
	}
	return s, nil
}

func (s *natsSink) Send(ctx context.Context, msg Message) error {
	m := nats.NewMsg(s.subject)
	m.Data = msg.Body
	m.Header.Set("Content-Type", msg.ContentType)
	m.Header.Set("X-Blogkit-Event", msg.Event.Type)

	if s.js != nil {
		if _, err := s.js.PublishMsg(m, nats.Context(ctx)); err != nil {
			return fmt.Errorf("JetStream publish error: %w", err)
		}
		return nil
	}
	if err := s.nc.PublishMsg(m); err != nil {
		return fmt.Errorf("publish error: %w", err)
	}
	return s.nc.FlushWithContext(ctx)
}

func (s *natsSink) Close() error {
	return s.nc.Drain()
}
