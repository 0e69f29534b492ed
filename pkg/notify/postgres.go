package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/lib/pq"
)

type postgresSink struct {
	db      *sql.DB
	channel string
}

func postgresChannel(u *url.URL) (string, error) {
	channel := u.Query().Get("channel")
	if channel == "" {
		return "", errors.New("missing ?channel=")
	}
	return channel, nil
}

func checkPostgres(u *url.URL) error {
	_, err := postgresChannel(u)
	return err
}

func openPostgres(ctx context.Context, u *url.URL) (Sink, error) {
	channel, err := postgresChannel(u)
	if err != nil {
		return nil, err
	}
	connector, err := pq.NewConnector(stripQuery(u, "channel").String())
	if err != nil {
		return nil, fmt.Errorf("postgres DSN: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &postgresSink{db: db, channel: channel}, nil
}

func (s *postgresSink) Send(ctx context.Context, msg Message) error {
	// pg_notify takes the channel as a parameter, unlike NOTIFY.
	if _, err := s.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", s.channel, string(msg.Body)); err != nil {
		return fmt.Errorf("NOTIFY error: %w", err)
	}
	return nil
}

func (s *postgresSink) Close() error {
	return s.db.Close()
}
