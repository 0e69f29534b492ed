package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultMongoDatabase   = "blog"
	defaultMongoCollection = "publishes"
)

type mongoSink struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type mongoConfig struct {
	uri        string
	database   string
	collection string
}

func mongoConfigFrom(u *url.URL) (mongoConfig, error) {
	cfg := mongoConfig{
		uri:        stripQuery(u, "collection").String(),
		database:   strings.Trim(u.Path, "/"),
		collection: u.Query().Get("collection"),
	}
	if cfg.database == "" {
		cfg.database = defaultMongoDatabase
	}
	if cfg.collection == "" {
		cfg.collection = defaultMongoCollection
	}
	if u.Host == "" {
		return cfg, fmt.Errorf("missing host")
	}
	return cfg, nil
}

func checkMongo(u *url.URL) error {
	_, err := mongoConfigFrom(u)
	return err
}

func openMongo(ctx context.Context, u *url.URL) (Sink, error) {
	cfg, err := mongoConfigFrom(u)
	if err != nil {
		return nil, err
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.uri).SetAppName("blogkit-publish"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return &mongoSink{client: client, coll: client.Database(cfg.database).Collection(cfg.collection)}, nil
}

// Send stores the event as a document. The encoded body is not used.
func (s *mongoSink) Send(ctx context.Context, msg Message) error {
	if _, err := s.coll.InsertOne(ctx, msg.Event); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	return nil
}

func (s *mongoSink) Close() error {
	return s.client.Disconnect(context.Background())
}
