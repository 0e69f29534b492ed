package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sandrolain/blogkit/pkg/notify"
)

// startContainer runs req and returns host:port of its first exposed port.
func startContainer(t *testing.T, req testcontainers.ContainerRequest) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start %s container: %v", req.Image, err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, nat.Port(req.ExposedPorts[0]))
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, port.Port())
}

func testEvent() notify.Event {
	return notify.Event{
		Site:        "Functional Go",
		Message:     `Add "currying" post`,
		Commit:      "0123456789abcdef0123456789abcdef01234567",
		Backend:     "exec",
		OutputDir:   "/srv/blog/public",
		PublishedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		DurationMS:  1234,
	}
}

func dispatch(t *testing.T, raw string) {
	t.Helper()
	target, err := notify.ParseTarget(raw)
	require.NoError(t, err)
	d := &notify.Dispatcher{Targets: []notify.Target{target}, Timeout: 20 * time.Second}
	require.NoError(t, d.Dispatch(context.Background(), testEvent()))
}

func assertEventJSON(t *testing.T, body []byte) {
	t.Helper()
	var got notify.Event
	require.NoError(t, json.Unmarshal(body, &got))
	want := testEvent()
	want.Type = notify.EventPublished
	assert.Equal(t, want, got)
}

func TestNATSSink(t *testing.T) {
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "nats:latest",
		ExposedPorts: []string{"4222/tcp"},
		Cmd:          []string{"-js"},
		WaitingFor:   wait.ForListeningPort("4222/tcp").WithStartupTimeout(30 * time.Second),
	})

	nc, err := nats.Connect("nats://" + addr)
	require.NoError(t, err)
	defer nc.Close()

	t.Run("core", func(t *testing.T) {
		sub, err := nc.SubscribeSync("blog.published")
		require.NoError(t, err)
		require.NoError(t, nc.Flush())

		dispatch(t, "nats://"+addr+"?subject=blog.published")

		msg, err := sub.NextMsg(5 * time.Second)
		require.NoError(t, err)
		assert.Equal(t, notify.EventPublished, msg.Header.Get("X-Blogkit-Event"))
		assertEventJSON(t, msg.Data)
	})

	t.Run("jetstream", func(t *testing.T) {
		js, err := nc.JetStream()
		require.NoError(t, err)
		_, err = js.AddStream(&nats.StreamConfig{Name: "BLOG", Subjects: []string{"blog.js.>"}})
		require.NoError(t, err)

		dispatch(t, "nats://"+addr+"?subject=blog.js.published&stream=BLOG")

		raw, err := js.GetLastMsg("BLOG", "blog.js.published")
		require.NoError(t, err)
		assertEventJSON(t, raw.Data)
	})
}

func TestMQTTSink(t *testing.T) {
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "emqx/nanomq:latest",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp").WithStartupTimeout(30 * time.Second),
	})

	received := make(chan []byte, 1)
	opts := mqtt.NewClientOptions().AddBroker("tcp://" + addr).SetClientID("blogkit-integration")
	client := mqtt.NewClient(opts)
	token := client.Connect()
	require.True(t, token.WaitTimeout(10*time.Second))
	require.NoError(t, token.Error())
	defer client.Disconnect(250)

	token = client.Subscribe("blog/published", 1, func(_ mqtt.Client, m mqtt.Message) {
		received <- m.Payload()
	})
	require.True(t, token.WaitTimeout(10*time.Second))
	require.NoError(t, token.Error())

	dispatch(t, "mqtt://"+addr+"?topic=blog/published&qos=1")

	select {
	case body := <-received:
		assertEventJSON(t, body)
	case <-time.After(10 * time.Second):
		t.Fatal("no MQTT message received")
	}
}

func TestRedisSink(t *testing.T) {
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	})
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = rdb.Close() }()

	t.Run("channel", func(t *testing.T) {
		sub := rdb.Subscribe(ctx, "blog")
		defer func() { _ = sub.Close() }()
		_, err := sub.Receive(ctx)
		require.NoError(t, err)

		dispatch(t, "redis://"+addr+"?channel=blog")

		select {
		case msg := <-sub.Channel():
			assertEventJSON(t, []byte(msg.Payload))
		case <-time.After(5 * time.Second):
			t.Fatal("no Redis message received")
		}
	})

	t.Run("stream", func(t *testing.T) {
		dispatch(t, "redis://"+addr+"/0?stream=blog-events")

		entries, err := rdb.XRange(ctx, "blog-events", "-", "+").Result()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, notify.EventPublished, entries[0].Values["type"])
	})
}

func TestPostgresSink(t *testing.T) {
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env:          map[string]string{"POSTGRES_PASSWORD": "secret"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	})
	dsn := "postgres://postgres:secret@" + addr + "/postgres?sslmode=disable"

	l := pq.NewListener(dsn, time.Second, 10*time.Second, nil)
	defer func() { _ = l.Close() }()
	require.NoError(t, l.Listen("blog_published"))

	dispatch(t, dsn+"&channel=blog_published")

	select {
	case n := <-l.Notify:
		require.NotNil(t, n)
		assert.Equal(t, "blog_published", n.Channel)
		assertEventJSON(t, []byte(n.Extra))
	case <-time.After(10 * time.Second):
		t.Fatal("no NOTIFY received")
	}
}

func TestMongoSink(t *testing.T) {
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
	})
	ctx := context.Background()

	dispatch(t, "mongodb://"+addr+"/blog?collection=publishes")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://"+addr))
	require.NoError(t, err)
	defer func() { _ = client.Disconnect(ctx) }()

	var got notify.Event
	err = client.Database("blog").Collection("publishes").FindOne(ctx, bson.M{"site": "Functional Go"}).Decode(&got)
	require.NoError(t, err)
	assert.Equal(t, testEvent().Message, got.Message)
	assert.Equal(t, notify.EventPublished, got.Type)
}
