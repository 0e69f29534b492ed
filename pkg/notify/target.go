package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Sink delivers messages to one destination.
type Sink interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

type driver struct {
	// check validates a target without touching the network.
	check func(u *url.URL) error
	open  func(ctx context.Context, u *url.URL) (Sink, error)
	// jsonOnly drivers cannot carry binary bodies.
	jsonOnly bool
}

var drivers = map[string]driver{
	"http":        {check: checkWebhook, open: openWebhook},
	"https":       {check: checkWebhook, open: openWebhook},
	"nats":        {check: checkNATS, open: openNATS},
	"mqtt":        {check: checkMQTT, open: openMQTT},
	"mqtts":       {check: checkMQTT, open: openMQTT},
	"kafka":       {check: checkKafka, open: openKafka},
	"redis":       {check: checkRedis, open: openRedis},
	"rediss":      {check: checkRedis, open: openRedis},
	"postgres":    {check: checkPostgres, open: openPostgres, jsonOnly: true},
	"postgresql":  {check: checkPostgres, open: openPostgres, jsonOnly: true},
	"mongodb":     {check: checkMongo, open: openMongo},
	"mongodb+srv": {check: checkMongo, open: openMongo},
	"pubsub":      {check: checkPubSub, open: openPubSub},
	"coap":        {check: checkCoAP, open: openCoAP},
	"coap+tcp":    {check: checkCoAP, open: openCoAP},
}

// Target is a parsed, validated sink URL.
type Target struct {
	URL    *url.URL
	Format Format
}

// Scheme returns the URL scheme selecting the sink driver.
func (t Target) Scheme() string {
	return t.URL.Scheme
}

// String returns the target with any password redacted.
func (t Target) String() string {
	return t.URL.Redacted()
}

// ParseTarget parses a sink URL. The "format" query key selects the body
// encoding and is not passed on to the driver.
func ParseTarget(raw string) (Target, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Target{}, fmt.Errorf("invalid notify target: %w", err)
	}
	d, ok := drivers[strings.ToLower(u.Scheme)]
	if !ok {
		return Target{}, fmt.Errorf("unsupported notify scheme %q", u.Scheme)
	}
	u.Scheme = strings.ToLower(u.Scheme)

	values := popQuery(u, "format")
	format, err := parseFormat(values["format"])
	if err != nil {
		return Target{}, err
	}
	if d.jsonOnly && format != FormatJSON {
		return Target{}, fmt.Errorf("%s sink only supports json bodies", u.Scheme)
	}
	if err := d.check(u); err != nil {
		return Target{}, fmt.Errorf("%s: %w", u.Redacted(), err)
	}
	return Target{URL: u, Format: format}, nil
}

// ParseTargets parses every raw target, failing on the first invalid one.
func ParseTargets(raws []string) ([]Target, error) {
	targets := make([]Target, 0, len(raws))
	for _, raw := range raws {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		t, err := ParseTarget(raw)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func (t Target) open(ctx context.Context) (Sink, error) {
	u := *t.URL
	return drivers[t.URL.Scheme].open(ctx, &u)
}

// popQuery removes keys from the URL query and returns their first values.
func popQuery(u *url.URL, keys ...string) map[string]string {
	q := u.Query()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if q.Has(k) {
			out[k] = q.Get(k)
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()
	return out
}

// stripQuery returns a copy of u without the given query keys.
func stripQuery(u *url.URL, keys ...string) *url.URL {
	c := *u
	popQuery(&c, keys...)
	return &c
}
