package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/message/pool"
	coaptcp "github.com/plgd-dev/go-coap/v3/tcp"
	coapudp "github.com/plgd-dev/go-coap/v3/udp"

	toolutil "github.com/sandrolain/blogkit/pkg/toolutil"
)

// coapConn is the subset shared by the UDP and TCP client connections.
type coapConn interface {
	Post(ctx context.Context, path string, contentFormat message.MediaType, payload io.ReadSeeker, opts ...message.Option) (*pool.Message, error)
	Close() error
}

type coapSink struct {
	conn coapConn
	path string
}

func checkCoAP(u *url.URL) error {
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func openCoAP(_ context.Context, u *url.URL) (Sink, error) {
	path := u.Path
	if path == "" {
		path = "/"
	}
	var (
		conn coapConn
		err  error
	)
	if u.Scheme == "coap+tcp" {
		conn, err = coaptcp.Dial(u.Host)
	} else {
		conn, err = coapudp.Dial(u.Host)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial CoAP: %w", err)
	}
	return &coapSink{conn: conn, path: path}, nil
}

func coapMediaType(contentType string) message.MediaType {
	if contentType == toolutil.CTCBOR {
		return message.AppCBOR
	}
	return message.AppJSON
}

func coapSuccess(c codes.Code) bool {
	return c>>5 == 2
}

func (s *coapSink) Send(ctx context.Context, msg Message) error {
	resp, err := s.conn.Post(ctx, s.path, coapMediaType(msg.ContentType), bytes.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("CoAP POST: %w", err)
	}
	if !coapSuccess(resp.Code()) {
		return fmt.Errorf("CoAP POST returned %v", resp.Code())
	}
	return nil
}

func (s *coapSink) Close() error {
	return s.conn.Close()
}
