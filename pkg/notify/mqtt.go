package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type mqttSink struct {
	client mqtt.Client
	topic  string
	qos    byte
	retain bool
}

type mqttConfig struct {
	broker   string
	topic    string
	qos      byte
	retain   bool
	clientID string
	username string
	password string
}

func mqttConfigFrom(u *url.URL) (mqttConfig, error) {
	q := u.Query()
	cfg := mqttConfig{topic: q.Get("topic"), clientID: q.Get("clientid")}
	if u.Host == "" {
		return cfg, errors.New("missing broker host")
	}
	if cfg.topic == "" {
		return cfg, errors.New("missing ?topic=")
	}
	if v := q.Get("qos"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 2 {
			return cfg, fmt.Errorf("invalid qos %q (use 0, 1 or 2)", v)
		}
		cfg.qos = byte(n)
	}
	if v := q.Get("retain"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid retain %q", v)
		}
		cfg.retain = b
	}
	prefix := "tcp://"
	if u.Scheme == "mqtts" {
		prefix = "ssl://"
	}
	cfg.broker = prefix + u.Host
	if u.User != nil {
		cfg.username = u.User.Username()
		cfg.password, _ = u.User.Password()
	}
	return cfg, nil
}

func checkMQTT(u *url.URL) error {
	_, err := mqttConfigFrom(u)
	return err
}

func openMQTT(ctx context.Context, u *url.URL) (Sink, error) {
	cfg, err := mqttConfigFrom(u)
	if err != nil {
		return nil, err
	}
	if cfg.clientID == "" {
		cfg.clientID = fmt.Sprintf("blogkit-pub-%d", time.Now().UnixNano())
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.broker).
		SetClientID(cfg.clientID).
		SetConnectTimeout(DefaultTimeout)
	if cfg.username != "" {
		opts.SetUsername(cfg.username).SetPassword(cfg.password)
	}
	client := mqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect()); err != nil {
		// Stops a connect attempt still in flight.
		client.Disconnect(0)
		return nil, fmt.Errorf("MQTT connection error: %w", err)
	}
	return &mqttSink{client: client, topic: cfg.topic, qos: cfg.qos, retain: cfg.retain}, nil
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *mqttSink) Send(ctx context.Context, msg Message) error {
	if err := waitToken(ctx, s.client.Publish(s.topic, s.qos, s.retain, msg.Body)); err != nil {
		return fmt.Errorf("MQTT publish error: %w", err)
	}
	return nil
}

func (s *mqttSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
