package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/valyala/fasthttp"
)

// webhookDial overrides how the webhook client connects. Nil uses TCP.
var webhookDial fasthttp.DialFunc

type webhookSink struct {
	url    string
	client *fasthttp.Client
}

func checkWebhook(u *url.URL) error {
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func openWebhook(_ context.Context, u *url.URL) (Sink, error) {
	return &webhookSink{
		url: u.String(),
		client: &fasthttp.Client{
			Name:         "blogkit-publish",
			Dial:         webhookDial,
			ReadTimeout:  DefaultTimeout,
			WriteTimeout: DefaultTimeout,
		},
	}, nil
}

func (s *webhookSink) Send(ctx context.Context, msg Message) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(s.url)
	req.Header.SetContentType(msg.ContentType)
	req.Header.Set("X-Blogkit-Event", msg.Event.Type)
	req.SetBody(msg.Body)

	timeout := DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := s.client.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return fmt.Errorf("webhook returned %d %s", code, fasthttp.StatusMessage(code))
	}
	return nil
}

func (s *webhookSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
